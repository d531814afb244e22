// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of a1s

package sqlsrc

import (
	"fmt"
	"regexp"
	"strings"
)

// Driver names a database/sql driver.
type Driver string

const (
	DriverPostgres  Driver = "pgx"
	DriverMySQL     Driver = "mysql"
	DriverSQLServer Driver = "sqlserver"
)

// ParseDSN picks the driver from the DSN scheme and returns the DSN in the
// form the driver expects.
func ParseDSN(dsn string) (Driver, string, error) {
	scheme, err := schemeFromURL(dsn)
	if err != nil {
		return "", "", err
	}

	switch scheme {
	case "postgres", "postgresql":
		return DriverPostgres, dsn, nil
	case "mysql":
		return DriverMySQL, strings.TrimPrefix(dsn, "mysql://"), nil
	case "sqlserver":
		return DriverSQLServer, dsn, nil
	default:
		return "", "", fmt.Errorf("unexpected datasource name scheme: %q", scheme)
	}
}

func schemeFromURL(url string) (string, error) {
	if url == "" {
		return "", fmt.Errorf("a datasource name is required")
	}

	i := strings.Index(url, ":")

	// No : or : is the first character.
	if i < 1 {
		return "", fmt.Errorf("a scheme for datasource name is required")
	}

	return url[0:i], nil
}

var identRX = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent checks a possibly schema qualified identifier.
func ValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, p := range strings.Split(s, ".") {
		if !identRX.MatchString(p) {
			return false
		}
	}

	return true
}

type dialect struct {
	driver Driver
}

func (d dialect) quote(ident string) string {
	pp := strings.Split(ident, ".")
	for i, p := range pp {
		switch d.driver {
		case DriverMySQL:
			pp[i] = "`" + p + "`"
		case DriverSQLServer:
			pp[i] = "[" + p + "]"
		default:
			pp[i] = `"` + p + `"`
		}
	}

	return strings.Join(pp, ".")
}

// placeholder returns the n-th (1 based) bind parameter.
func (d dialect) placeholder(n int) string {
	switch d.driver {
	case DriverMySQL:
		return "?"
	case DriverSQLServer:
		return fmt.Sprintf("@p%d", n)
	default:
		return fmt.Sprintf("$%d", n)
	}
}

func (d dialect) countQuery(table string) string {
	return "SELECT COUNT(*) FROM " + d.quote(table)
}

// pageQuery returns the paging statement and the order its offset and limit
// arguments are bound in.
func (d dialect) pageQuery(table, key string, offset, limit int) (string, []any) {
	base := fmt.Sprintf("SELECT * FROM %s ORDER BY %s", d.quote(table), d.quote(key))
	if d.driver == DriverSQLServer {
		return base + fmt.Sprintf(" OFFSET %s ROWS FETCH NEXT %s ROWS ONLY", d.placeholder(1), d.placeholder(2)),
			[]any{offset, limit}
	}

	return base + fmt.Sprintf(" LIMIT %s OFFSET %s", d.placeholder(1), d.placeholder(2)),
		[]any{limit, offset}
}

func (d dialect) updateQuery(table, column, key string) string {
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		d.quote(table), d.quote(column), d.placeholder(1), d.quote(key), d.placeholder(2))
}
