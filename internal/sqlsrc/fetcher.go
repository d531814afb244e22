// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

// Package sqlsrc pages the rows of a SQL table as records.
package sqlsrc

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	// database drivers
	_ "github.com/denisenkom/go-mssqldb"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v4/stdlib"

	"github.com/a1s/gridsource/internal/datasource"
	"github.com/a1s/gridsource/internal/logger"
	"go.uber.org/zap"
)

// DB is the subset of *sql.DB used by Fetcher.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	Close() error
}

// Fetcher reads a table ordered by its key column. The key column value is
// exposed as the record id.
type Fetcher struct {
	db      DB
	dialect dialect
	table   string
	key     string
}

// Open connects to dsn and returns a fetcher over table. An empty key
// selects the id column.
func Open(dsn, table, key string) (*Fetcher, error) {
	driver, dsn, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(string(driver), dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	f, err := New(db, driver, table, key)
	if err != nil {
		db.Close()
		return nil, err
	}

	return f, nil
}

// New returns a fetcher over an open database.
func New(db DB, driver Driver, table, key string) (*Fetcher, error) {
	if key == "" {
		key = datasource.IDKey
	}
	if !ValidIdent(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if !ValidIdent(key) || strings.Contains(key, ".") {
		return nil, fmt.Errorf("invalid key column %q", key)
	}

	return &Fetcher{
		db:      db,
		dialect: dialect{driver: driver},
		table:   table,
		key:     key,
	}, nil
}

// Table returns the table name.
func (f *Fetcher) Table() string {
	return f.table
}

// Count implements remote.Fetcher.
func (f *Fetcher) Count(ctx context.Context) (int, error) {
	var n int
	if err := f.db.QueryRowContext(ctx, f.dialect.countQuery(f.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("unable to count %s: %w", f.table, err)
	}

	return n, nil
}

// Fetch implements remote.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, offset, limit int) ([]datasource.Record, error) {
	q, args := f.dialect.pageQuery(f.table, f.key, offset, limit)
	rows, err := f.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query %s: %w", f.table, err)
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve column type: %w", err)
	}

	rr := make([]datasource.Record, 0, limit)
	for rows.Next() {
		r, err := f.scan(rows, cols)
		if err != nil {
			return nil, err
		}
		rr = append(rr, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", f.table, err)
	}
	logger.Debug("Fetched rows",
		zap.String("table", f.table),
		zap.Int("offset", offset),
		zap.Int("rows", len(rr)),
	)

	return rr, nil
}

func (f *Fetcher) scan(rows *sql.Rows, cols []*sql.ColumnType) (datasource.Record, error) {
	vals := make([]any, len(cols))
	pointers := make([]any, len(cols))
	for i := range vals {
		pointers[i] = &vals[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, fmt.Errorf("unable to scan values: %w", err)
	}

	r := make(datasource.Record, len(cols)+1)
	for i, c := range cols {
		name := c.Name()
		if name == "?column?" || name == "" {
			name = fmt.Sprintf("column%d", i)
		}
		r[name] = normalize(vals[i], c.DatabaseTypeName())
	}
	if f.key != datasource.IDKey {
		r[datasource.IDKey] = r[f.key]
	}

	return r, nil
}

// Update implements remote.Updater.
func (f *Fetcher) Update(ctx context.Context, id datasource.ID, key string, value any) error {
	if key == datasource.IDKey || key == f.key {
		return datasource.ErrImmutableID
	}
	if !ValidIdent(key) || strings.Contains(key, ".") {
		return fmt.Errorf("invalid column name %q", key)
	}

	res, err := f.db.ExecContext(ctx, f.dialect.updateQuery(f.table, key, f.key), value, id.Value())
	if err != nil {
		return fmt.Errorf("unable to update %s.%s: %w", f.table, key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &datasource.NotFoundError{ID: id}
	}

	return nil
}

// Close closes the database.
func (f *Fetcher) Close() error {
	return f.db.Close()
}

// normalize converts driver values into record values.
func normalize(v any, dbType string) any {
	switch t := v.(type) {
	case []byte:
		if dbType == "UNIQUEIDENTIFIER" && len(t) == 16 {
			return formatUniqueIdentifier(t)
		}
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

// formatUniqueIdentifier renders SQL Server's mixed endian GUID bytes.
func formatUniqueIdentifier(b []byte) string {
	var u [16]byte
	copy(u[:], b)
	reverse := func(b []byte) {
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	}
	reverse(u[0:4])
	reverse(u[4:6])
	reverse(u[6:8])

	return fmt.Sprintf("%X-%X-%X-%X-%X", u[0:4], u[4:6], u[6:8], u[8:10], u[10:])
}
