package orm

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidIdent(t *testing.T) {
	valid := []string{"user", "user_id", "_shadow", "Account", "a9"}
	for _, s := range valid {
		assert.True(t, validIdent(s), "%q should be a valid identifier", s)
	}

	invalid := []string{"", "9lives", "bad name", "bad-name", "naïve", `ro"gue`}
	for _, s := range invalid {
		assert.False(t, validIdent(s), "%q should not be a valid identifier", s)
	}
}

func TestColumnTypes(t *testing.T) {
	cases := []struct {
		name     string
		col      *column
		sqlite   string
		postgres string
	}{
		{"primary key", &column{name: "id", goType: reflect.TypeOf(int64(0)), pk: true}, "INTEGER", "BIGSERIAL"},
		{"int64", &column{name: "n", goType: reflect.TypeOf(int64(0))}, "INTEGER", "BIGINT"},
		{"int", &column{name: "n", goType: reflect.TypeOf(int(0))}, "INTEGER", "BIGINT"},
		{"string", &column{name: "s", goType: reflect.TypeOf("")}, "TEXT", "TEXT"},
		{"bool", &column{name: "b", goType: reflect.TypeOf(false)}, "BOOLEAN", "BOOLEAN"},
		{"float64", &column{name: "f", goType: reflect.TypeOf(float64(0))}, "REAL", "DOUBLE PRECISION"},
		{"time", &column{name: "t", goType: reflect.TypeOf(time.Time{})}, "TIMESTAMP", "TIMESTAMPTZ"},
		{"bytes", &column{name: "raw", goType: reflect.TypeOf([]byte(nil))}, "BLOB", "BYTEA"},
		{"pointer unwraps", &column{name: "p", goType: reflect.TypeOf((*string)(nil))}, "TEXT", "TEXT"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DialectSQLite.columnType(tc.col)
			require.NoError(t, err)
			assert.Equal(t, tc.sqlite, got)

			got, err = DialectPostgres.columnType(tc.col)
			require.NoError(t, err)
			assert.Equal(t, tc.postgres, got)
		})
	}

	t.Run("unsupported type", func(t *testing.T) {
		_, err := DialectPostgres.columnType(&column{
			name:   "attrs",
			goType: reflect.TypeOf(map[string]string{}),
		})
		assert.ErrorIs(t, err, ErrInvalidEntity)
	})
}

func TestCreateTableSQL(t *testing.T) {
	authorDesc, err := buildDescriptor(reflect.TypeOf(author{}))
	require.NoError(t, err)
	bookDesc, err := buildDescriptor(reflect.TypeOf(book{}))
	require.NoError(t, err)

	registry := map[reflect.Type]*descriptor{
		reflect.TypeOf(author{}): authorDesc,
		reflect.TypeOf(book{}):   bookDesc,
	}

	t.Run("postgres", func(t *testing.T) {
		ddl, err := createTableSQL(authorDesc, DialectPostgres, registry)
		require.NoError(t, err)
		assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"author\" (\n"+
			"\t\"id\" BIGSERIAL PRIMARY KEY,\n"+
			"\t\"name\" TEXT NOT NULL,\n"+
			"\t\"email\" TEXT NOT NULL UNIQUE,\n"+
			"\t\"bio\" TEXT\n"+
			")", ddl)
	})

	t.Run("sqlite with foreign key", func(t *testing.T) {
		ddl, err := createTableSQL(bookDesc, DialectSQLite, registry)
		require.NoError(t, err)
		assert.Equal(t, "CREATE TABLE IF NOT EXISTS \"book\" (\n"+
			"\t\"id\" INTEGER PRIMARY KEY,\n"+
			"\t\"author_id\" INTEGER NOT NULL REFERENCES \"author\" (\"id\"),\n"+
			"\t\"title\" TEXT NOT NULL\n"+
			")", ddl)
	})

	t.Run("unregistered reference", func(t *testing.T) {
		_, err := createTableSQL(bookDesc, DialectSQLite, map[reflect.Type]*descriptor{
			reflect.TypeOf(book{}): bookDesc,
		})
		assert.ErrorIs(t, err, ErrNotRegistered)
	})
}
