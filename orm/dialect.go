package orm

import (
	"fmt"
	"reflect"
	"strings"
)

// Dialect identifies the SQL flavor used for schema DDL. Generated DML is
// dialect-invariant ($n placeholders, RETURNING, ON CONFLICT), so only
// table creation needs to know the engine.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// quoteIdent double-quotes an identifier so reserved words like "user"
// stay valid table names on both engines.
func quoteIdent(s string) string {
	return `"` + s + `"`
}

// validIdent restricts identifiers to the unquoted-safe character set.
// Table and column names come from type declarations, not user input, but
// they end up in SQL text verbatim.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// columnType maps a Go field type to the engine's column type.
func (dl Dialect) columnType(c *column) (string, error) {
	if c.pk {
		// SQLite's INTEGER PRIMARY KEY is the auto-assigned rowid alias.
		if dl == DialectSQLite {
			return "INTEGER", nil
		}
		return "BIGSERIAL", nil
	}

	t := c.goType
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t {
	case timeType:
		if dl == DialectSQLite {
			return "TIMESTAMP", nil
		}
		return "TIMESTAMPTZ", nil
	case bytesType:
		if dl == DialectSQLite {
			return "BLOB", nil
		}
		return "BYTEA", nil
	}

	switch t.Kind() {
	case reflect.Int, reflect.Int16, reflect.Int32, reflect.Int64:
		if dl == DialectSQLite {
			return "INTEGER", nil
		}
		return "BIGINT", nil
	case reflect.Float32, reflect.Float64:
		if dl == DialectSQLite {
			return "REAL", nil
		}
		return "DOUBLE PRECISION", nil
	case reflect.String:
		return "TEXT", nil
	case reflect.Bool:
		return "BOOLEAN", nil
	default:
		return "", fmt.Errorf("%w: no column type for %s", ErrInvalidEntity, c.goType)
	}
}

// createTableSQL renders the CREATE TABLE IF NOT EXISTS statement for one
// descriptor. Foreign key columns of belongs-to relations emit REFERENCES
// clauses; the related type must be registered so its table name can be
// resolved from registry.
func createTableSQL(d *descriptor, dl Dialect, registry map[reflect.Type]*descriptor) (string, error) {
	refs := make(map[string]*descriptor)
	for _, rel := range d.rels {
		if rel.kind != relOne {
			continue
		}
		target, ok := registry[rel.elem]
		if !ok {
			return "", fmt.Errorf("%w: %s referenced by relation %q on %s",
				ErrNotRegistered, rel.elem, rel.name, d.table)
		}
		refs[rel.fkColumn] = target
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (", quoteIdent(d.table))
	for i, c := range d.cols {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString("\n\t")

		typ, err := dl.columnType(c)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "%s %s", quoteIdent(c.name), typ)
		if c.pk {
			b.WriteString(" PRIMARY KEY")
			continue
		}
		if !c.nullable {
			b.WriteString(" NOT NULL")
		}
		if c.unique {
			b.WriteString(" UNIQUE")
		}
		if target, ok := refs[c.name]; ok {
			fmt.Fprintf(&b, " REFERENCES %s (%s)", quoteIdent(target.table), quoteIdent(target.pk.name))
		}
	}
	b.WriteString("\n)")
	return b.String(), nil
}
