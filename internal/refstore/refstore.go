// Package refstore fetches the authoritative rows the chart-derived dataset
// is checked against. It tolerates whatever column names the store uses,
// including a date/time key column that is not literally "Date".
package refstore

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"chartaudit/internal/reconcile"
	"chartaudit/internal/series"
)

// Open opens the backing store. The connection belongs to the run that
// opened it and must be closed on every exit path.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open reference store: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to reference store: %w", err)
	}
	return db, nil
}

// Query describes one range fetch. KeyColumn may be left empty, in which
// case the date/time column is detected by name. Entity/EntityColumn filter
// to one metering point when the table holds several.
type Query struct {
	Table        string
	KeyColumn    string
	Start, End   string
	Entity       string
	EntityColumn string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Fetch runs the range query and returns the rows with native column names
// preserved. Row keys are normalized the same way chart keys are (day of
// month for dates, HH:MM for times) so the reconciler can join on them.
func Fetch(ctx context.Context, db *sql.DB, q Query) (reconcile.Reference, error) {
	var ref reconcile.Reference
	if !identRe.MatchString(q.Table) {
		return ref, fmt.Errorf("refstore: invalid table name %q", q.Table)
	}

	keyCol := q.KeyColumn
	if keyCol == "" {
		detected, err := detectKeyColumn(ctx, db, q.Table)
		if err != nil {
			return ref, err
		}
		keyCol = detected
	}
	if !identRe.MatchString(keyCol) {
		return ref, fmt.Errorf("refstore: invalid key column %q", keyCol)
	}

	stmt := fmt.Sprintf("SELECT * FROM %s WHERE %s BETWEEN ? AND ?", q.Table, keyCol)
	args := []any{q.Start, q.End}
	if q.EntityColumn != "" {
		if !identRe.MatchString(q.EntityColumn) {
			return ref, fmt.Errorf("refstore: invalid entity column %q", q.EntityColumn)
		}
		stmt += fmt.Sprintf(" AND %s = ?", q.EntityColumn)
		args = append(args, q.Entity)
	}
	stmt += fmt.Sprintf(" ORDER BY %s", keyCol)

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return ref, fmt.Errorf("refstore: range query on %s failed: %w", q.Table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return ref, fmt.Errorf("refstore: read columns: %w", err)
	}

	ref.KeyColumn = keyCol
	ref.Rows = make(map[string]map[string]any)
	for _, c := range cols {
		if c == keyCol || c == q.EntityColumn {
			continue
		}
		ref.Columns = append(ref.Columns, c)
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return ref, fmt.Errorf("refstore: scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		key := ""
		for i, c := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			if c == keyCol {
				key = NormalizeKey(fmt.Sprint(v))
				continue
			}
			if c == q.EntityColumn {
				continue
			}
			row[c] = v
		}
		if key == "" {
			continue
		}
		if _, dup := ref.Rows[key]; dup {
			log.Printf("refstore: duplicate key %q in %s, keeping first row", key, q.Table)
			continue
		}
		ref.Keys = append(ref.Keys, key)
		ref.Rows[key] = row
	}
	if err := rows.Err(); err != nil {
		return ref, fmt.Errorf("refstore: iterate rows: %w", err)
	}
	return ref, nil
}

// detectKeyColumn introspects the table and picks the column whose name
// looks like the date/time key.
func detectKeyColumn(ctx context.Context, db *sql.DB, table string) (string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return "", fmt.Errorf("refstore: table_info on %s: %w", table, err)
	}
	defer rows.Close()

	var cid, notnull, pk int
	var name, ctype string
	var dflt sql.NullString
	for rows.Next() {
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return "", err
		}
		low := strings.ToLower(name)
		if strings.Contains(low, "date") || strings.Contains(low, "day") || strings.Contains(low, "time") {
			return name, nil
		}
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("refstore: no date/time column found in %s, configure key_column", table)
}

var (
	dateRe = regexp.MustCompile(`^\d{4}-\d{2}-(\d{2})`)
	hhmmRe = regexp.MustCompile(`^(\d{1,2}:\d{2})`)
)

// NormalizeKey reduces a native date/time value to the same key form chart
// tooltips produce: the day of month for dates, HH:MM for times, the
// trimmed text otherwise.
func NormalizeKey(v string) string {
	v = strings.TrimSpace(v)
	if m := dateRe.FindStringSubmatch(v); m != nil {
		return strings.TrimPrefix(m[1], "0")
	}
	if m := hhmmRe.FindStringSubmatch(v); m != nil {
		return series.CanonicalKey(m[1])
	}
	return series.CanonicalKey(v)
}
