package translator

import (
	"context"
	"database/sql"
	"regexp"
	"strings"
)

// returningStage implements §4.4 stage 10: RETURNING clauses pass through
// to SQLite unchanged (SQLite has supported RETURNING since 3.35), but the
// stage records the projected column list as a row-description hint so
// the extended-protocol engine (§4.6) can describe the result without a
// round trip through SQLite's own (often type-lossy) column metadata.
type returningStage struct {
	hint []ProjectedColumn
}

func (*returningStage) Name() string { return "returning" }

var returningClauseRegex = regexp.MustCompile(`(?is)\bRETURNING\s+(.+)$`)

func (*returningStage) NeedsTranslation(q string) bool {
	return strings.Contains(strings.ToUpper(q), "RETURNING")
}

func (s *returningStage) Translate(ctx context.Context, db *sql.DB, query string) (string, bool, error) {
	m := returningClauseRegex.FindStringSubmatch(query)
	if m == nil {
		return query, false, nil
	}
	list := strings.TrimSuffix(strings.TrimSpace(m[1]), ";")
	if list == "*" {
		return query, false, nil
	}
	var hint []ProjectedColumn
	for _, part := range splitTopLevel(list) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		if idx := strings.LastIndex(strings.ToUpper(part), " AS "); idx >= 0 {
			name = strings.TrimSpace(part[idx+4:])
		}
		hint = append(hint, ProjectedColumn{Name: strings.Trim(name, `"`)})
	}
	s.hint = hint
	return query, false, nil
}

func (s *returningStage) RowShapeHint() []ProjectedColumn {
	return s.hint
}
