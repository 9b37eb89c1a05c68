package threads

import (
	"context"
	"testing"
	"time"

	"threadboard/internal/database"
	"threadboard/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts batched thread lookups.
type countingStore struct {
	database.Store
	findThreadsCalls int
	findUsersCalls   int
}

func (s *countingStore) FindThreads(ctx context.Context, ids []uuid.UUID) ([]*models.Thread, error) {
	s.findThreadsCalls++
	return s.Store.FindThreads(ctx, ids)
}

func (s *countingStore) FindUsers(ctx context.Context, ids []uuid.UUID, p models.UserProjection) ([]*models.Author, error) {
	s.findUsersCalls++
	return s.Store.FindUsers(ctx, ids, p)
}

func TestPopulateStopsAtCycle(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	author := newUser(t, store, "u1")

	a := insertRoot(t, store, author.ID, "a", time.Now())
	b := &models.Thread{Text: "b", AuthorID: author.ID, ParentID: &a.ID}
	require.NoError(t, store.InsertThread(ctx, b))

	// a -> b -> a
	a.Children = []uuid.UUID{b.ID}
	require.NoError(t, store.SaveThread(ctx, a))
	b.Children = []uuid.UUID{a.ID}
	require.NoError(t, store.SaveThread(ctx, b))

	nodes, err := populate(ctx, store, []*models.Thread{a}, threadPlan)
	require.NoError(t, err)
	require.Len(t, nodes, 1)

	level1 := nodes[0].Children
	require.Len(t, level1, 1)
	assert.Equal(t, b.ID, level1[0].ID)

	level2 := level1[0].Children
	require.Len(t, level2, 1)
	assert.Equal(t, a.ID, level2[0].ID)
	assert.Equal(t, []uuid.UUID{b.ID}, level2[0].ChildIDs)
	assert.Nil(t, level2[0].Children)
}

func TestPopulateDropsMissingChildrenAndAuthors(t *testing.T) {
	ctx := context.Background()
	store := database.NewMemoryStore()
	author := newUser(t, store, "u1")

	root := insertRoot(t, store, author.ID, "root", time.Now())
	ghostAuthor := uuid.New()
	reply := &models.Thread{Text: "reply", AuthorID: ghostAuthor, ParentID: &root.ID}
	require.NoError(t, store.InsertThread(ctx, reply))

	missing := uuid.New()
	root.Children = []uuid.UUID{missing, reply.ID}
	require.NoError(t, store.SaveThread(ctx, root))

	nodes, err := populate(ctx, store, []*models.Thread{root}, postsPlan)
	require.NoError(t, err)

	node := nodes[0]
	assert.Equal(t, []uuid.UUID{missing, reply.ID}, node.ChildIDs)
	require.Len(t, node.Children, 1)
	assert.Equal(t, reply.ID, node.Children[0].ID)
	assert.Equal(t, ghostAuthor, node.Children[0].AuthorID)
	assert.Nil(t, node.Children[0].Author)
}

func TestPopulateBatchesLookupsPerLevel(t *testing.T) {
	ctx := context.Background()
	mem := database.NewMemoryStore()
	author := newUser(t, mem, "u1")
	repo := NewRepository(mem, nil, nil)

	base := time.Now()
	var roots []*models.Thread
	for i := 0; i < 3; i++ {
		root := insertRoot(t, mem, author.ID, "root", base.Add(time.Duration(i)*time.Second))
		for j := 0; j < 2; j++ {
			require.NoError(t, repo.AddCommentToThread(ctx, AddCommentParams{ThreadID: root.ID, Text: "reply", UserID: author.ID}))
		}
		reloaded, err := mem.FindThread(ctx, root.ID)
		require.NoError(t, err)
		roots = append(roots, reloaded)
	}

	store := &countingStore{Store: mem}
	nodes, err := populate(ctx, store, roots, postsPlan)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	for _, n := range nodes {
		assert.Len(t, n.Children, 2)
	}

	assert.Equal(t, 1, store.findThreadsCalls, "one lookup for the reply level")
	assert.Equal(t, 2, store.findUsersCalls, "one lookup per projection")
}

func TestPopulateWithoutRoots(t *testing.T) {
	nodes, err := populate(context.Background(), database.NewMemoryStore(), nil, threadPlan)
	require.NoError(t, err)
	assert.Empty(t, nodes)
}
