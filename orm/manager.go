package orm

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for postgres URLs
	_ "modernc.org/sqlite"             // database/sql driver for sqlite URLs

	"github.com/purlinworks/purlin/internal/platform/logger"
)

// PoolConfig bounds both connection pools. The zero value selects the
// defaults: 5 pooled connections, 2 overflow, a 10s acquisition timeout
// and 600s connection recycling.
type PoolConfig struct {
	// Size is the number of connections the pool keeps around.
	Size int32

	// Overflow is how many extra connections may be opened under load, so
	// at most Size+Overflow are checked out concurrently.
	Overflow int32

	// AcquireTimeout bounds how long a session waits for a connection.
	AcquireTimeout time.Duration

	// Recycle closes connections older than this, so the server never
	// sees stale ones.
	Recycle time.Duration
}

// DefaultPoolConfig returns the pool bounds used when none are configured.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Size:           5,
		Overflow:       2,
		AcquireTimeout: 10 * time.Second,
		Recycle:        600 * time.Second,
	}
}

// validate fills unset fields with defaults.
func (c *PoolConfig) validate() {
	if *c == (PoolConfig{}) {
		*c = DefaultPoolConfig()
		return
	}
	def := DefaultPoolConfig()
	if c.Size <= 0 {
		c.Size = def.Size
	}
	if c.Overflow < 0 {
		c.Overflow = 0
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = def.AcquireTimeout
	}
	if c.Recycle <= 0 {
		c.Recycle = def.Recycle
	}
}

// Manager owns the two database engines and the registry of entity types.
// The native engine is a pgx pool speaking PostgreSQL; the standard engine
// is a database/sql pool speaking PostgreSQL or SQLite depending on the
// URL. One Manager is shared process-wide: create it once, Initialize it
// at startup and Close it on shutdown.
type Manager struct {
	logger     *slog.Logger
	baseLogger *slog.Logger // pre-component logger executors derive from
	pool       PoolConfig

	mu         sync.RWMutex
	native     *pgxpool.Pool
	standard   *sql.DB
	stdDialect Dialect

	regMu    sync.RWMutex
	registry map[reflect.Type]*descriptor
	order    []*descriptor
}

// NewManager creates a manager with the given pool bounds. The zero
// PoolConfig selects the defaults. If logger is nil, slog.Default is used.
func NewManager(pool PoolConfig, log *slog.Logger) *Manager {
	pool.validate()
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		logger:     log.With(slog.String("component", "orm_manager")),
		baseLogger: log,
		pool:       pool,
		registry:   make(map[reflect.Type]*descriptor),
	}
}

// Initialize constructs the native engine from nativeURL and the standard
// engine from standardURL. Either URL may be empty to leave that engine
// unconfigured; at least one must be given. Engines connect lazily, so an
// unreachable database surfaces at first use rather than here. Calling
// Initialize on an already initialized manager replaces the engines and
// disposes the previous ones.
func (m *Manager) Initialize(ctx context.Context, nativeURL, standardURL string) error {
	if nativeURL == "" && standardURL == "" {
		return fmt.Errorf("orm: initialize needs at least one engine URL")
	}

	var (
		native     *pgxpool.Pool
		standard   *sql.DB
		stdDialect Dialect
		err        error
	)
	if nativeURL != "" {
		native, err = m.openNative(ctx, nativeURL)
		if err != nil {
			return err
		}
	}
	if standardURL != "" {
		standard, stdDialect, err = m.openStandard(standardURL)
		if err != nil {
			if native != nil {
				native.Close()
			}
			return err
		}
	}

	m.mu.Lock()
	prevNative, prevStandard := m.native, m.standard
	m.native, m.standard, m.stdDialect = native, standard, stdDialect
	m.mu.Unlock()

	if prevNative != nil {
		prevNative.Close()
	}
	if prevStandard != nil {
		if cerr := prevStandard.Close(); cerr != nil {
			m.logger.Warn("failed to close previous standard engine",
				slog.String("error", cerr.Error()))
		}
	}

	m.logger.InfoContext(ctx, "engines initialized",
		slog.Bool("native", native != nil),
		slog.Bool("standard", standard != nil),
		slog.String("standard_dialect", string(stdDialect)))
	return nil
}

// Close disposes both engines, releasing every pooled connection. Session
// acquisition fails with ErrNotInitialized afterwards, until Initialize is
// called again.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	native, standard := m.native, m.standard
	m.native, m.standard, m.stdDialect = nil, nil, ""
	m.mu.Unlock()

	if native != nil {
		native.Close()
	}
	if standard != nil {
		if err := standard.Close(); err != nil {
			return fmt.Errorf("orm: close standard engine: %w", err)
		}
	}
	m.logger.InfoContext(ctx, "engines closed")
	return nil
}

func (m *Manager) openNative(ctx context.Context, url string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("orm: parse native url: %w", err)
	}
	cfg.MaxConns = m.pool.Size + m.pool.Overflow
	cfg.MaxConnLifetime = m.pool.Recycle

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("orm: create native pool: %w", err)
	}
	return pool, nil
}

func (m *Manager) openStandard(url string) (*sql.DB, Dialect, error) {
	driver, dsn, dialect := standardDSN(url)
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("orm: open standard engine: %w", err)
	}
	db.SetMaxOpenConns(int(m.pool.Size + m.pool.Overflow))
	db.SetMaxIdleConns(int(m.pool.Size))
	db.SetConnMaxLifetime(m.pool.Recycle)
	return db, dialect, nil
}

// standardDSN maps a connection URL to a database/sql driver name and DSN.
// postgres:// and postgresql:// URLs use the pgx stdlib driver; everything
// else is treated as a SQLite location. Plain paths get WAL journaling, a
// busy timeout and foreign key enforcement; file: DSNs pass through
// untouched for callers that need full control.
func standardDSN(url string) (driver, dsn string, dialect Dialect) {
	if strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://") {
		return "pgx", url, DialectPostgres
	}
	path := strings.TrimPrefix(url, "sqlite://")
	if strings.HasPrefix(path, "file:") {
		return "sqlite", path, DialectSQLite
	}
	if path == ":memory:" {
		// The shared cache keeps every pooled connection on the same
		// in-memory database.
		return "sqlite", "file::memory:?cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", DialectSQLite
	}
	dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
	return "sqlite", dsn, DialectSQLite
}

func (m *Manager) nativeEngine() (*pgxpool.Pool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.native == nil {
		return nil, fmt.Errorf("%w: native engine", ErrNotInitialized)
	}
	return m.native, nil
}

func (m *Manager) standardEngine() (*sql.DB, Dialect, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.standard == nil {
		return nil, "", fmt.Errorf("%w: standard engine", ErrNotInitialized)
	}
	return m.standard, m.stdDialect, nil
}

// SessionFn is the unit of work executed inside one session scope.
// The session is committed if the function returns nil and rolled back if
// it returns an error or panics.
type SessionFn func(ctx context.Context, s Session) error

// WithSession runs fn inside a scoped native session: a connection is
// acquired from the pgx pool (bounded by the acquisition timeout), a
// transaction begins, and commit or rollback is guaranteed on every exit
// path before the connection returns to the pool.
func (m *Manager) WithSession(ctx context.Context, fn SessionFn) error {
	pool, err := m.nativeEngine()
	if err != nil {
		return err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.pool.AcquireTimeout)
	conn, err := pool.Acquire(acquireCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("orm: acquire native connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("orm: begin native transaction: %w", err)
	}
	return m.runScope(ctx, fn, pgxSession{tx: tx},
		func() error { return tx.Commit(ctx) },
		func() error { return tx.Rollback(ctx) })
}

// WithStdSession runs fn inside a scoped standard session with the same
// commit and rollback guarantees as WithSession. The acquisition timeout
// bounds checking a connection out of the database/sql pool; the caller's
// context governs the statements themselves.
func (m *Manager) WithStdSession(ctx context.Context, fn SessionFn) error {
	db, _, err := m.standardEngine()
	if err != nil {
		return err
	}

	acquireCtx, cancel := context.WithTimeout(ctx, m.pool.AcquireTimeout)
	conn, err := db.Conn(acquireCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("orm: acquire standard connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("orm: begin standard transaction: %w", err)
	}
	return m.runScope(ctx, fn, sqlSession{tx: tx}, tx.Commit, tx.Rollback)
}

// runScope drives the session lifecycle around fn: rollback and re-panic
// on panic, rollback on error (attaching the rollback failure if that also
// fails), commit on success.
func (m *Manager) runScope(ctx context.Context, fn SessionFn, s Session, commit, rollback func() error) error {
	log := logger.FromContextOrDefault(ctx, m.logger)

	defer func() {
		if p := recover(); p != nil {
			if rbErr := rollback(); rbErr != nil {
				log.Error("failed to roll back session after panic",
					slog.String("error", rbErr.Error()),
					slog.Any("panic", p))
			} else {
				log.Error("rolled back session after panic",
					slog.Any("panic", p))
			}
			panic(p)
		}
	}()

	if err := fn(ctx, s); err != nil {
		if rbErr := rollback(); rbErr != nil {
			log.Error("failed to roll back session",
				slog.String("rollback_error", rbErr.Error()),
				slog.String("original_error", err.Error()))
			return fmt.Errorf("orm: rolling back session: %v (original error: %w)", rbErr, err)
		}
		log.Debug("rolled back session", slog.String("error", err.Error()))
		return err
	}

	if err := commit(); err != nil {
		log.Error("failed to commit session", slog.String("error", err.Error()))
		return fmt.Errorf("orm: commit session: %w", err)
	}
	return nil
}

// Register builds descriptors for the given entity prototypes, typically
// pointers to zero values:
//
//	err := mgr.Register(&User{}, &Post{})
//
// A type must be registered before executor operations or table creation
// can touch it. Re-registering a type replaces its descriptor and keeps
// its position in the creation order.
func (m *Manager) Register(prototypes ...any) error {
	for _, p := range prototypes {
		t := reflect.TypeOf(p)
		if t == nil {
			return fmt.Errorf("%w: nil prototype", ErrInvalidEntity)
		}
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		d, err := buildDescriptor(t)
		if err != nil {
			return err
		}

		m.regMu.Lock()
		if prev, ok := m.registry[t]; ok {
			for i, existing := range m.order {
				if existing == prev {
					m.order[i] = d
					break
				}
			}
		} else {
			m.order = append(m.order, d)
		}
		m.registry[t] = d
		m.regMu.Unlock()

		m.logger.Debug("registered entity",
			slog.String("table", d.table),
			slog.String("type", t.String()))
	}
	return nil
}

// descriptorFor resolves the descriptor registered for t.
func (m *Manager) descriptorFor(t reflect.Type) (*descriptor, error) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	d, ok := m.registry[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, t)
	}
	return d, nil
}

// snapshotRegistry copies the registry and the creation order so DDL
// generation does not hold the lock across database calls.
func (m *Manager) snapshotRegistry() (map[reflect.Type]*descriptor, []*descriptor) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	reg := make(map[reflect.Type]*descriptor, len(m.registry))
	for k, v := range m.registry {
		reg[k] = v
	}
	order := make([]*descriptor, len(m.order))
	copy(order, m.order)
	return reg, order
}

// CreateAllTables applies the table definition of every registered entity
// on the native engine, in registration order, inside one session. Tables
// that already exist are left untouched; there is no migration diffing.
// Register referenced types before the types that point at them so foreign
// keys resolve.
func (m *Manager) CreateAllTables(ctx context.Context) error {
	return m.createAll(ctx, DialectPostgres, m.WithSession)
}

// CreateAllTablesStd applies the table definitions on the standard engine,
// using the dialect the engine was initialized with.
func (m *Manager) CreateAllTablesStd(ctx context.Context) error {
	_, dialect, err := m.standardEngine()
	if err != nil {
		return err
	}
	return m.createAll(ctx, dialect, m.WithStdSession)
}

func (m *Manager) createAll(ctx context.Context, dl Dialect, withSession func(context.Context, SessionFn) error) error {
	registry, order := m.snapshotRegistry()
	return withSession(ctx, func(ctx context.Context, s Session) error {
		for _, d := range order {
			ddl, err := createTableSQL(d, dl, registry)
			if err != nil {
				return err
			}
			if _, err := s.Exec(ctx, ddl); err != nil {
				return mapDriverError(d.table, "create_table", err)
			}
			m.logger.Debug("ensured table", slog.String("table", d.table))
		}
		return nil
	})
}

// ColumnInfo describes one mapped column for introspection.
type ColumnInfo struct {
	Name       string
	GoType     string
	PrimaryKey bool
	Nullable   bool
	Unique     bool
}

// EntityInfo describes a registered entity type: its table, mapped columns
// in declaration order and relation names.
type EntityInfo struct {
	Table     string
	Columns   []ColumnInfo
	Relations []string
}

// Describe returns the registered metadata for the prototype's type.
func (m *Manager) Describe(prototype any) (EntityInfo, error) {
	t := reflect.TypeOf(prototype)
	if t == nil {
		return EntityInfo{}, fmt.Errorf("%w: nil prototype", ErrInvalidEntity)
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	d, err := m.descriptorFor(t)
	if err != nil {
		return EntityInfo{}, err
	}
	return d.info(), nil
}
