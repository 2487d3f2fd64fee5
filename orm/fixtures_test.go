package orm_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/purlinworks/purlin/internal/platform/logger"
	"github.com/purlinworks/purlin/orm"
)

// testTimeout is the maximum time allowed for a test to run
const testTimeout = 5 * time.Second

// user and post model the classic has-many/belongs-to pair every
// executor test exercises.
type user struct {
	orm.Model
	Name  string  `db:"name"`
	Email string  `db:"email,unique"`
	Nick  *string `db:"nick"`
	Posts []post  `rel:"many,fk:user_id"`
}

type post struct {
	orm.Model
	UserID int64  `db:"user_id"`
	Title  string `db:"title"`
	Body   string `db:"body"`
	Author *user  `rel:"one,fk:user_id"`
}

// widget is the minimal entity used by lifecycle and merge tests.
type widget struct {
	orm.Model
	Label string `db:"label"`
}

// newTestManager returns a manager backed by a fresh on-disk SQLite database
// with the test entities registered and their tables created. Each call gets
// its own database file, so tests are safe to run in parallel.
func newTestManager(t *testing.T) *orm.Manager {
	t.Helper()

	log, _ := logger.GetTestLogger(t)
	mgr := orm.NewManager(orm.DefaultPoolConfig(), log)
	require.NoError(t, mgr.Register(&user{}, &post{}, &widget{}), "Registering test entities should succeed")

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()

	dbPath := filepath.Join(t.TempDir(), "orm_test.db")
	require.NoError(t, mgr.Initialize(ctx, "", dbPath), "Initializing the standard engine should succeed")
	require.NoError(t, mgr.CreateAllTablesStd(ctx), "Creating tables should succeed")

	t.Cleanup(func() {
		_ = mgr.Close(context.Background())
	})
	return mgr
}

// testCtx returns a context bounded by the package test timeout.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

// mustCreateUser inserts a user row and returns the persisted entity.
func mustCreateUser(ctx context.Context, t *testing.T, mgr *orm.Manager, name, email string) *user {
	t.Helper()
	u, err := orm.Objects[user](mgr).Standard().Create(ctx, orm.Fields{
		"name":  name,
		"email": email,
	})
	require.NoError(t, err, "Creating a user fixture should succeed")
	return u
}

// mustCreatePost inserts a post row owned by userID and returns it.
func mustCreatePost(ctx context.Context, t *testing.T, mgr *orm.Manager, userID int64, title string) *post {
	t.Helper()
	p, err := orm.Objects[post](mgr).Standard().Create(ctx, orm.Fields{
		"user_id": userID,
		"title":   title,
		"body":    "body of " + title,
	})
	require.NoError(t, err, "Creating a post fixture should succeed")
	return p
}
