package orm

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
)

// Common errors returned by the manager and the query executor.
var (
	// ErrNotInitialized is returned when a session is requested from a
	// manager whose engines have not been initialized, or after Close.
	ErrNotInitialized = errors.New("orm: manager not initialized")

	// ErrNotRegistered is returned when an executor operates on an entity
	// type that was never registered with the manager.
	ErrNotRegistered = errors.New("orm: entity type not registered")

	// ErrUnknownField is returned when a filter predicate or a written
	// field names a column that does not exist on the entity type.
	// It is surfaced before any database round trip.
	ErrUnknownField = errors.New("orm: unknown field")

	// ErrUnknownRelation is returned when an eager-load request names a
	// relation that does not exist on the entity type.
	// It is surfaced before any database round trip.
	ErrUnknownRelation = errors.New("orm: unknown relation")

	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("orm: not found")

	// ErrConstraint is returned when the database rejects a write due to a
	// constraint violation. The driver error stays wrapped for errors.As.
	ErrConstraint = errors.New("orm: constraint violation")

	// ErrDuplicate is the unique-constraint specialization of ErrConstraint.
	// errors.Is(err, ErrConstraint) also holds for it.
	ErrDuplicate = fmt.Errorf("%w: duplicate", ErrConstraint)

	// ErrInvalidEntity is returned when a type cannot be registered, for
	// example because it does not embed Model or carries a malformed tag.
	ErrInvalidEntity = errors.New("orm: invalid entity type")
)

// IsNotFound reports whether the error signals row absence.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAttributeError reports whether the error signals a bad field or
// relation name, the class of failures raised before touching the database.
func IsAttributeError(err error) bool {
	return errors.Is(err, ErrUnknownField) || errors.Is(err, ErrUnknownRelation)
}

// IsDuplicate reports whether the error signals a unique-constraint violation.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsConstraint reports whether the error signals any constraint violation.
func IsConstraint(err error) bool {
	return errors.Is(err, ErrConstraint)
}

// OpError adds entity and operation context to an error from the database
// layer. It supports errors.Is/errors.As through Unwrap.
type OpError struct {
	Entity string // table name (e.g. "user")
	Op     string // logical operation (e.g. "create", "filter")
	Err    error  // underlying error
}

// Error implements the error interface for OpError.
func (e *OpError) Error() string {
	return fmt.Sprintf("%s operation on %s failed: %v", e.Op, e.Entity, e.Err)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *OpError) Unwrap() error {
	return e.Err
}

// PostgreSQL error codes and the SQLite constraint code space.
const (
	pgUniqueViolationCode     = "23505"
	pgIntegrityViolationClass = "23"

	sqliteConstraintCode       = 19   // SQLITE_CONSTRAINT
	sqliteConstraintPrimaryKey = 1555 // SQLITE_CONSTRAINT_PRIMARYKEY
	sqliteConstraintUnique     = 2067 // SQLITE_CONSTRAINT_UNIQUE
)

// isNoRows reports whether the error is either engine's empty-result signal.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// mapDriverError translates engine-specific failures into the package error
// taxonomy and wraps the remainder in an OpError. The original driver error
// is always reachable through errors.As.
func mapDriverError(entity, op string, err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgUniqueViolationCode {
			return &OpError{Entity: entity, Op: op, Err: fmt.Errorf("%w: %w", ErrDuplicate, err)}
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgIntegrityViolationClass {
			return &OpError{Entity: entity, Op: op, Err: fmt.Errorf("%w: %w", ErrConstraint, err)}
		}
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		if code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey {
			return &OpError{Entity: entity, Op: op, Err: fmt.Errorf("%w: %w", ErrDuplicate, err)}
		}
		if code&0xff == sqliteConstraintCode {
			return &OpError{Entity: entity, Op: op, Err: fmt.Errorf("%w: %w", ErrConstraint, err)}
		}
	}

	return &OpError{Entity: entity, Op: op, Err: err}
}

// notFound wraps ErrNotFound with the entity name, mirroring the
// entity-specific absence errors handlers match on with errors.Is.
func notFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}
