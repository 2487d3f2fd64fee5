package orm_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/purlinworks/purlin/internal/platform/logger"
	"github.com/purlinworks/purlin/orm"
)

// newNativeManager connects the native engine to the PostgreSQL database
// named by PURLIN_TEST_DATABASE_URL, or skips the test when it is not set.
// Tables are dropped on cleanup so runs stay repeatable.
func newNativeManager(t *testing.T) *orm.Manager {
	t.Helper()

	dbURL := os.Getenv("PURLIN_TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("PURLIN_TEST_DATABASE_URL not set - skipping native engine integration test")
	}

	log, _ := logger.GetTestLogger(t)
	mgr := orm.NewManager(orm.DefaultPoolConfig(), log)
	require.NoError(t, mgr.Register(&user{}, &post{}, &widget{}))

	ctx := testCtx(t)
	require.NoError(t, mgr.Initialize(ctx, dbURL, ""))

	t.Cleanup(func() {
		ctx := context.Background()
		_ = mgr.WithSession(ctx, func(ctx context.Context, s orm.Session) error {
			for _, table := range []string{`"post"`, `"user"`, `"widget"`} {
				if _, err := s.Exec(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
					return err
				}
			}
			return nil
		})
		_ = mgr.Close(ctx)
	})

	require.NoError(t, mgr.CreateAllTables(ctx))
	return mgr
}

// TestNativeEngineScenario runs the canonical round trip against PostgreSQL
// through the pgx pool.
func TestNativeEngineScenario(t *testing.T) {
	mgr := newNativeManager(t)
	ctx := testCtx(t)
	users := orm.Objects[user](mgr)
	posts := orm.Objects[post](mgr)

	created, err := users.Create(ctx, orm.Fields{"name": "a", "email": "a@example.com"})
	require.NoError(t, err)
	assert.Positive(t, created.ID)

	got, err := users.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", got.Name)

	updated, err := users.Update(ctx, created.ID, orm.Fields{"name": "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", updated.Name)

	// Relations load eagerly through the same pool.
	p, err := posts.Create(ctx, orm.Fields{
		"user_id": created.ID,
		"title":   "hello",
		"body":    "native engine",
	})
	require.NoError(t, err)

	withAuthor, err := posts.SelectRelated(ctx, orm.Fields{"id": p.ID}, "author")
	require.NoError(t, err)
	require.NotNil(t, withAuthor.Author)
	assert.Equal(t, created.ID, withAuthor.Author.ID)

	withPosts, err := users.SelectRelated(ctx, orm.Fields{"id": created.ID}, "posts")
	require.NoError(t, err)
	assert.Len(t, withPosts.Posts, 1)

	removed, err := posts.Delete(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = users.Delete(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = users.Get(ctx, created.ID)
	assert.True(t, orm.IsNotFound(err))
}

// TestNativeEngineDuplicate verifies pgx constraint failures map into the
// package taxonomy.
func TestNativeEngineDuplicate(t *testing.T) {
	mgr := newNativeManager(t)
	ctx := testCtx(t)
	users := orm.Objects[user](mgr)

	_, err := users.Create(ctx, orm.Fields{"name": "ada", "email": "dup@example.com"})
	require.NoError(t, err)

	_, err = users.Create(ctx, orm.Fields{"name": "eve", "email": "dup@example.com"})
	assert.True(t, orm.IsDuplicate(err), "expected a duplicate error, got %v", err)
}

// TestNativeEngineSave verifies the merge upsert against PostgreSQL.
func TestNativeEngineSave(t *testing.T) {
	mgr := newNativeManager(t)
	ctx := testCtx(t)
	widgets := orm.Objects[widget](mgr)

	w := &widget{Label: "first"}
	require.NoError(t, widgets.Save(ctx, w))
	require.Positive(t, w.ID)

	w.Label = "second"
	require.NoError(t, widgets.Save(ctx, w))

	got, err := widgets.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Label)
}
