package database

import (
	"context"
	"os"
	"testing"
	"time"

	"threadboard/internal/models"
	"threadboard/internal/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreSuite checks the behaviour both store implementations share.
func runStoreSuite(t *testing.T, store Store) {
	ctx := context.Background()

	user := &models.User{
		ID:       uuid.New(),
		Username: "alice",
		Name:     "Alice",
		Image:    "https://img.test/alice.png",
		Bio:      "hello",
	}
	require.NoError(t, store.SaveUser(ctx, user))

	t.Run("insert assigns id and creation time", func(t *testing.T) {
		thread := &models.Thread{Text: "first", AuthorID: user.ID}
		require.NoError(t, store.InsertThread(ctx, thread))

		assert.NotEqual(t, uuid.Nil, thread.ID)
		assert.False(t, thread.CreatedAt.IsZero())

		found, err := store.FindThread(ctx, thread.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, "first", found.Text)
		assert.Equal(t, user.ID, found.AuthorID)
		assert.Nil(t, found.ParentID)
		assert.Nil(t, found.Community)
		assert.Empty(t, found.Children)
	})

	t.Run("missing thread is nil without error", func(t *testing.T) {
		found, err := store.FindThread(ctx, uuid.New())
		assert.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("root listing excludes replies and orders newest first", func(t *testing.T) {
		base := time.Now().UTC().Add(time.Hour).Truncate(time.Millisecond)
		older := &models.Thread{Text: "older", AuthorID: user.ID, CreatedAt: base}
		newer := &models.Thread{Text: "newer", AuthorID: user.ID, CreatedAt: base.Add(time.Minute)}
		require.NoError(t, store.InsertThread(ctx, older))
		require.NoError(t, store.InsertThread(ctx, newer))

		reply := &models.Thread{Text: "reply", AuthorID: user.ID, ParentID: &older.ID, CreatedAt: base.Add(2 * time.Minute)}
		require.NoError(t, store.InsertThread(ctx, reply))

		roots, err := store.FindRootThreads(ctx, 0, 2)
		require.NoError(t, err)
		require.Len(t, roots, 2)
		assert.Equal(t, newer.ID, roots[0].ID)
		assert.Equal(t, older.ID, roots[1].ID)

		count, err := store.CountRootThreads(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)

		page, err := store.FindRootThreads(ctx, 2, 2)
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "first", page[0].Text)
	})

	t.Run("save replaces children", func(t *testing.T) {
		parent := &models.Thread{Text: "parent", AuthorID: user.ID}
		require.NoError(t, store.InsertThread(ctx, parent))

		childID := uuid.New()
		parent.Children = append(parent.Children, childID)
		require.NoError(t, store.SaveThread(ctx, parent))

		found, err := store.FindThread(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{childID}, found.Children)

		err = store.SaveThread(ctx, &models.Thread{ID: uuid.New(), AuthorID: user.ID})
		assert.True(t, utils.IsErrorCode(err, utils.ErrNotFound))
	})

	t.Run("find threads skips missing ids", func(t *testing.T) {
		a := &models.Thread{Text: "a", AuthorID: user.ID}
		require.NoError(t, store.InsertThread(ctx, a))

		threads, err := store.FindThreads(ctx, []uuid.UUID{a.ID, uuid.New()})
		require.NoError(t, err)
		require.Len(t, threads, 1)
		assert.Equal(t, a.ID, threads[0].ID)
	})

	t.Run("user projections", func(t *testing.T) {
		full, err := store.FindUsers(ctx, []uuid.UUID{user.ID}, models.FullUser)
		require.NoError(t, err)
		require.Len(t, full, 1)
		assert.Equal(t, "alice", full[0].Username)
		assert.Equal(t, "hello", full[0].Bio)

		summary, err := store.FindUsers(ctx, []uuid.UUID{user.ID, uuid.New()}, models.ReplyAuthorSummary)
		require.NoError(t, err)
		require.Len(t, summary, 1)
		assert.Equal(t, user.ID, summary[0].ID)
		assert.Equal(t, "Alice", summary[0].Name)
		assert.Equal(t, "https://img.test/alice.png", summary[0].Image)
		assert.Empty(t, summary[0].Username)
		assert.Empty(t, summary[0].Bio)
		assert.Empty(t, summary[0].ParentID)
	})

	t.Run("push user thread", func(t *testing.T) {
		threadID := uuid.New()
		require.NoError(t, store.PushUserThread(ctx, user.ID, threadID))

		authors, err := store.FindUsers(ctx, []uuid.UUID{user.ID}, models.FullUser)
		require.NoError(t, err)
		require.Len(t, authors, 1)
		assert.Contains(t, authors[0].Threads, threadID)

		err = store.PushUserThread(ctx, uuid.New(), threadID)
		assert.True(t, utils.IsErrorCode(err, utils.ErrUserNotFound))
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	thread := &models.Thread{Text: "original", AuthorID: uuid.New()}
	require.NoError(t, store.InsertThread(ctx, thread))

	found, err := store.FindThread(ctx, thread.ID)
	require.NoError(t, err)
	found.Text = "changed"
	found.Children = append(found.Children, uuid.New())

	again, err := store.FindThread(ctx, thread.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Text)
	assert.Empty(t, again.Children)
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().CountRootThreads(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		t.Skip("MONGODB_URI not set; skipping MongoDB integration test")
	}

	dbName := "threadboard_test_" + uuid.NewString()[:8]
	db, err := NewMongoDB(uri, dbName, 10*time.Second)
	require.NoError(t, err)

	ctx := context.Background()
	t.Cleanup(func() {
		_ = db.Client.Database(dbName).Drop(ctx)
		_ = db.Close(ctx)
	})

	require.NoError(t, db.EnsureIndexes(ctx))
	runStoreSuite(t, db)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping PostgreSQL integration test")
	}

	db, err := NewPostgresDB(url, 10*time.Second)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, db.EnsureIndexes(ctx))
	_, err = db.DB.ExecContext(ctx, `TRUNCATE threads, users`)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = db.DB.ExecContext(ctx, `TRUNCATE threads, users`)
		_ = db.Close(ctx)
	})

	runStoreSuite(t, db)
}
