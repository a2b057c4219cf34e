// Command kqlite-pg runs the PostgreSQL-wire-protocol gateway in front of
// a SQLite database. Grounded on the teacher's cmd/kqlite/main.go
// (signal.NotifyContext shutdown, flag-driven bind address and data
// directory) rebuilt onto cobra+viper per internal/config, the ambient
// CLI stack argon-it-seedfast-cli's cmd/root.go shows for this corpus.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kqlite/kqlite-pg/internal/config"
	"github.com/kqlite/kqlite-pg/pkg/cache"
	"github.com/kqlite/kqlite-pg/pkg/log"
	"github.com/kqlite/kqlite-pg/pkg/server"
)

var (
	cfgFile string
	version = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kqlite-pg",
		Short:         "PostgreSQL wire-protocol gateway backed by SQLite",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	root.AddCommand(newServeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the kqlite-pg version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("kqlite-pg " + version)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var (
		listenAddr string
		dataDir    string
		logLevel   string
		logFormat  string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway and accept PostgreSQL wire connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.ListenAddr = listenAddr
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.Database.DataDir = dataDir
			}
			if cmd.Flags().Changed("log-level") {
				cfg.Log.Level = logLevel
			}
			if cmd.Flags().Changed("log-format") {
				cfg.Log.Format = logFormat
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&listenAddr, "listen", "", "postgres wire bind address (overrides config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "directory holding one SQLite file per database (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "log level: info, debug, trace")
	cmd.Flags().StringVar(&logFormat, "log-format", "", "log format: console, json")
	_ = viper.BindPFlag("server.listen_addr", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("database.data_dir", cmd.Flags().Lookup("data-dir"))

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	level := log.LevelInfo
	switch cfg.Log.Level {
	case "debug":
		level = log.LevelDebug
	case "trace":
		level = log.LevelTrace
	}
	logger, err := log.CreateLogger(log.Options{
		Name:   "kqlite-pg",
		Level:  level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	if err := os.MkdirAll(cfg.Database.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	srv := server.New(server.Config{
		Addr:           cfg.Server.ListenAddr,
		DataDir:        cfg.Database.DataDir,
		ForeignKeys:    cfg.Database.ForeignKeys,
		WAL:            cfg.Database.WAL,
		FastPathEnable: cfg.Database.FastPathEnable,
		CacheSizes: cache.Sizes{
			Translation:   cfg.Cache.TranslationSize,
			ParamTypes:    cfg.Cache.ParamTypeSize,
			RowDesc:       cfg.Cache.RowDescSize,
			Results:       cfg.Cache.ResultSize,
			ResultMinCost: cfg.Cache.ResultMinCost,
			Connections:   cache.DefaultSizes().Connections,
		},
	}, logger)

	if err := srv.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	logger.Info("listening", "addr", cfg.Server.ListenAddr, "data_dir", cfg.Database.DataDir)

	<-ctx.Done()
	logger.Info("shutting down")

	if err := srv.Stop(); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
