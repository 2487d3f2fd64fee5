// Package orm provides a lightweight active-record data access layer over
// PostgreSQL and SQLite.
//
// Purlin manages two interchangeable engines behind one Manager: a native
// pgx connection pool for PostgreSQL, and a database/sql pool that serves
// PostgreSQL through the pgx stdlib driver or SQLite through modernc.org/sqlite.
// Every operation runs inside its own transaction on a pooled connection.
//
// # Entities
//
// An entity is a struct that embeds [Model] and maps exported fields to
// columns with db tags:
//
//	type User struct {
//	    orm.Model
//	    Name  string `db:"name"`
//	    Email string `db:"email,unique"`
//	    Posts []Post `rel:"many,fk:user_id"`
//	}
//
// The table name is the lowercased type name unless the entity implements
// [TableNamer]. Entities are registered once on a Manager, which builds the
// column and relation metadata used by every executor:
//
//	mgr := orm.NewManager(orm.DefaultPoolConfig(), logger)
//	if err := mgr.Register(&User{}, &Post{}); err != nil { ... }
//	if err := mgr.Initialize(ctx, nativeURL, standardURL); err != nil { ... }
//
// # Executors
//
// [Objects] binds a typed executor to a registered entity. Executors default
// to the native engine; [Executor.Standard] switches one to the database/sql
// engine:
//
//	users := orm.Objects[User](mgr)
//	u, err := users.Create(ctx, orm.Fields{"name": "ada", "email": "ada@example.com"})
//	u, err = users.Get(ctx, u.ID)
//	all, err := users.All(ctx)
//
// Field maps are validated against the entity's metadata before any session
// is acquired, so a misspelled column fails fast with [ErrUnknownField]
// instead of reaching the database.
//
// # Errors
//
// The package defines domain-specific errors:
//
//   - [ErrNotFound] - no row matched the given fields
//   - [ErrUnknownField] - a field name is not mapped by the entity
//   - [ErrUnknownRelation] - a relation name is not declared by the entity
//   - [ErrDuplicate] - a unique constraint was violated
//   - [ErrConstraint] - another integrity constraint was violated
//   - [ErrNotRegistered] - the entity type was never registered
//   - [ErrNotInitialized] - the requested engine has no configured pool
//
// Driver failures are wrapped in [OpError] with the entity and operation
// attached.
package orm
