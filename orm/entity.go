package orm

// Model carries the integer identity every persisted entity needs.
// Embed it as the first field of an entity struct:
//
//	type User struct {
//	    orm.Model
//	    Name  string `db:"name"`
//	    Email string `db:"email,unique"`
//	}
//
// The table name is the struct type name lowercased ("user" above) unless
// the type implements TableNamer.
type Model struct {
	ID int64 `db:"id" json:"id"`
}

// PK returns the primary key value. Zero means the entity has not been
// persisted yet.
func (m *Model) PK() int64 {
	return m.ID
}

// SetPK sets the primary key value. It is exposed for tests and fixtures;
// executor operations populate the key themselves.
func (m *Model) SetPK(id int64) {
	m.ID = id
}

// TableNamer overrides the derived table name for an entity type.
type TableNamer interface {
	TableName() string
}

// Fields maps column names to values. It is the write payload for Create,
// Update and Save-by-merge, and the equality predicate set for Filter,
// First, Exists and SelectRelated. Every key must name a declared column
// of the entity type; unknown keys fail with ErrUnknownField before any
// database round trip. A nil predicate value matches SQL NULL.
type Fields map[string]any
