package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Querier is satisfied by *sqlx.DB, *sqlx.Tx and *sqlx.Conn.
type Querier interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
}

// Column describes one column as SQLite reports it.
type Column struct {
	Name    string
	Type    string
	NotNull bool
	Default sql.NullString
	PK      bool
}

// DefaultValue returns the declared default with SQL string quoting removed.
func (c Column) DefaultValue() (string, bool) {
	if !c.Default.Valid {
		return "", false
	}
	v := strings.TrimSpace(c.Default.String)
	if len(v) >= 2 && v[0] == '\'' && v[len(v)-1] == '\'' {
		v = strings.ReplaceAll(v[1:len(v)-1], "''", "'")
	}
	return v, true
}

// ForeignKey is one row of pragma_foreign_key_list.
type ForeignKey struct {
	Table    string
	From     string
	To       sql.NullString
	OnDelete string
}

// Columns returns the columns of table in declaration order. A missing table
// yields an empty slice.
func Columns(ctx context.Context, q Querier, table string) ([]Column, error) {
	rows, err := q.QueryxContext(ctx,
		`SELECT name, type, "notnull", dflt_value, pk FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var c Column
		var notNull, pk int
		if err := rows.Scan(&c.Name, &c.Type, &notNull, &c.Default, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column of %s: %w", table, err)
		}
		c.NotNull = notNull != 0
		c.PK = pk != 0
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	return cols, nil
}

// ColumnSet is a set of column names.
type ColumnSet map[string]Column

// ColumnsByName returns the columns of table keyed by name.
func ColumnsByName(ctx context.Context, q Querier, table string) (ColumnSet, error) {
	cols, err := Columns(ctx, q, table)
	if err != nil {
		return nil, err
	}
	set := make(ColumnSet, len(cols))
	for _, c := range cols {
		set[c.Name] = c
	}
	return set, nil
}

// Has reports whether every name is present.
func (s ColumnSet) Has(names ...string) bool {
	for _, n := range names {
		if _, ok := s[n]; !ok {
			return false
		}
	}
	return true
}

// HasAny reports whether at least one name is present.
func (s ColumnSet) HasAny(names ...string) bool {
	for _, n := range names {
		if _, ok := s[n]; ok {
			return true
		}
	}
	return false
}

// Equal reports whether the set holds exactly names.
func (s ColumnSet) Equal(names []string) bool {
	return len(s) == len(names) && s.Has(names...)
}

// Names returns the column names sorted.
func (s ColumnSet) Names() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// TableExists reports whether a table named name exists.
func TableExists(ctx context.Context, q Querier, name string) (bool, error) {
	return masterEntryExists(ctx, q, "table", name)
}

// IndexExists reports whether an index named name exists.
func IndexExists(ctx context.Context, q Querier, name string) (bool, error) {
	return masterEntryExists(ctx, q, "index", name)
}

func masterEntryExists(ctx context.Context, q Querier, kind, name string) (bool, error) {
	var n int
	err := q.QueryRowxContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?", kind, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to look up %s %s: %w", kind, name, err)
	}
	return n > 0, nil
}

// ForeignKeys lists the foreign keys declared on table.
func ForeignKeys(ctx context.Context, q Querier, table string) ([]ForeignKey, error) {
	rows, err := q.QueryxContext(ctx,
		`SELECT "table", "from", "to", on_delete FROM pragma_foreign_key_list(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to read foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Table, &fk.From, &fk.To, &fk.OnDelete); err != nil {
			return nil, fmt.Errorf("failed to scan foreign key of %s: %w", table, err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

// HasForeignKey reports whether table has a foreign key from column to ref.
func HasForeignKey(ctx context.Context, q Querier, table, column, ref string) (bool, error) {
	fks, err := ForeignKeys(ctx, q, table)
	if err != nil {
		return false, err
	}
	for _, fk := range fks {
		if strings.EqualFold(fk.Table, ref) && strings.EqualFold(fk.From, column) {
			return true, nil
		}
	}
	return false, nil
}
