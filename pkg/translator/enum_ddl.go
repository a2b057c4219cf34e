package translator

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/kqlite/kqlite-pg/pkg/catalog"
)

// enumDDLStage implements §4.4 stage 8: CREATE TYPE ... AS ENUM becomes a
// shadow-catalog registration (SQLite has no enum type of its own), ALTER
// TYPE ... ADD VALUE appends a label, and DROP TYPE removes the
// registration, refusing (unless CASCADE) when a column still uses it.
// Grounded on the teacher's migration-style DDL interception in
// pkg/pgwire/conn.go, generalized from table creation to type creation.
type enumDDLStage struct{}

func (enumDDLStage) Name() string { return "enum_ddl" }

var (
	createEnumRegex  = regexp.MustCompile(`(?is)^CREATE\s+TYPE\s+([A-Za-z0-9_\."]+)\s+AS\s+ENUM\s*\(([^)]*)\)\s*;?\s*$`)
	alterEnumAddRegex = regexp.MustCompile(`(?is)^ALTER\s+TYPE\s+([A-Za-z0-9_\."]+)\s+ADD\s+VALUE\s+'([^']*)'(\s+(BEFORE|AFTER)\s+'([^']*)')?\s*;?\s*$`)
	dropTypeRegex    = regexp.MustCompile(`(?is)^DROP\s+TYPE\s+(IF\s+EXISTS\s+)?([A-Za-z0-9_\."]+)(\s+CASCADE)?\s*;?\s*$`)
	enumLabelRegex   = regexp.MustCompile(`'([^']*)'`)
)

func (enumDDLStage) NeedsTranslation(q string) bool {
	upper := strings.ToUpper(strings.TrimSpace(q))
	return strings.HasPrefix(upper, "CREATE TYPE") || strings.HasPrefix(upper, "ALTER TYPE") || strings.HasPrefix(upper, "DROP TYPE")
}

func (enumDDLStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	trimmed := strings.TrimSpace(query)

	if m := createEnumRegex.FindStringSubmatch(trimmed); m != nil {
		name := unquoteIdent(m[1])
		var labels []string
		for _, lm := range enumLabelRegex.FindAllStringSubmatch(m[2], -1) {
			labels = append(labels, lm[1])
		}
		oid, err := catalog.NextEnumOID(ctx, db)
		if err != nil {
			return query, false, fmt.Errorf("allocate enum oid for %s: %w", name, err)
		}
		if err := catalog.CreateEnumType(ctx, db, catalog.EnumType{Name: name, OID: oid, Labels: labels}); err != nil {
			return query, false, err
		}
		if _, err := catalog.BumpSchemaVersion(ctx, db); err != nil {
			return query, false, err
		}
		return "SELECT 1 WHERE 0", true, nil
	}

	if m := alterEnumAddRegex.FindStringSubmatch(trimmed); m != nil {
		name := unquoteIdent(m[1])
		newLabel := m[2]
		existing, ok, err := catalog.LookupEnumType(ctx, db, name)
		if err != nil {
			return query, false, err
		}
		if !ok {
			return query, false, fmt.Errorf(`type "%s" does not exist`, name)
		}
		labels := existing.Labels
		anchor := m[5]
		if anchor == "" {
			labels = append(labels, newLabel)
		} else {
			inserted := make([]string, 0, len(labels)+1)
			for _, l := range labels {
				if l == anchor && strings.EqualFold(m[4], "BEFORE") {
					inserted = append(inserted, newLabel)
				}
				inserted = append(inserted, l)
				if l == anchor && strings.EqualFold(m[4], "AFTER") {
					inserted = append(inserted, newLabel)
				}
			}
			labels = inserted
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return query, false, err
		}
		defer tx.Rollback()
		_, err = tx.ExecContext(ctx, `DELETE FROM __pgsqlite_enum_labels WHERE type_oid = ?`, existing.OID)
		for i := 0; err == nil && i < len(labels); i++ {
			_, err = tx.ExecContext(ctx, `INSERT INTO __pgsqlite_enum_labels (type_oid, label, sort_order) VALUES (?, ?, ?)`, existing.OID, labels[i], i)
		}
		if err == nil {
			err = tx.Commit()
		}
		if err != nil {
			return query, false, err
		}
		return "SELECT 1 WHERE 0", true, nil
	}

	if m := dropTypeRegex.FindStringSubmatch(trimmed); m != nil {
		name := unquoteIdent(m[2])
		cascade := m[3] != ""
		var err error
		if cascade {
			err = catalog.DropEnumTypeCascade(ctx, db, name)
		} else {
			err = catalog.DropEnumType(ctx, db, name)
		}
		if err != nil {
			if m[1] != "" {
				return "SELECT 1 WHERE 0", true, nil
			}
			return query, false, err
		}
		if _, err := catalog.BumpSchemaVersion(ctx, db); err != nil {
			return query, false, err
		}
		return "SELECT 1 WHERE 0", true, nil
	}

	return query, false, nil
}

func unquoteIdent(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return strings.Trim(s, `"`)
}
