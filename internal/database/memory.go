package database

import (
	"context"
	"sort"
	"sync"

	"threadboard/internal/models"
	"threadboard/internal/utils"

	"github.com/google/uuid"
)

// MemoryStore keeps both collections in process. It follows the same
// semantics as MongoDB and is used for local runs and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[uuid.UUID]*models.Thread
	users   map[uuid.UUID]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[uuid.UUID]*models.Thread),
		users:   make(map[uuid.UUID]*models.User),
	}
}

func (s *MemoryStore) InsertThread(ctx context.Context, thread *models.Thread) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepareNewThread(thread)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.threads[thread.ID]; exists {
		return utils.NewAppError(utils.ErrDatabase, "duplicate thread ID "+thread.ID.String(), nil)
	}
	s.threads[thread.ID] = cloneThread(thread)
	return nil
}

func (s *MemoryStore) FindThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	thread, ok := s.threads[id]
	if !ok {
		return nil, nil
	}
	return cloneThread(thread), nil
}

func (s *MemoryStore) FindThreads(ctx context.Context, ids []uuid.UUID) ([]*models.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool, len(ids))
	var threads []*models.Thread
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if thread, ok := s.threads[id]; ok {
			threads = append(threads, cloneThread(thread))
		}
	}
	return threads, nil
}

// FindRootThreads mirrors the Mongo cursor options: a negative skip is
// treated as zero and a zero limit means no limit.
func (s *MemoryStore) FindRootThreads(ctx context.Context, skip, limit int64) ([]*models.Thread, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	roots := make([]*models.Thread, 0, len(s.threads))
	for _, thread := range s.threads {
		if thread.IsRoot() {
			roots = append(roots, cloneThread(thread))
		}
	}
	s.mu.RUnlock()

	sort.Slice(roots, func(i, j int) bool {
		if !roots[i].CreatedAt.Equal(roots[j].CreatedAt) {
			return roots[i].CreatedAt.After(roots[j].CreatedAt)
		}
		return roots[i].ID.String() > roots[j].ID.String()
	})

	if skip < 0 {
		skip = 0
	}
	if skip >= int64(len(roots)) {
		return nil, nil
	}
	roots = roots[skip:]

	if limit < 0 {
		limit = -limit
	}
	if limit > 0 && limit < int64(len(roots)) {
		roots = roots[:limit]
	}
	return roots, nil
}

func (s *MemoryStore) CountRootThreads(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, thread := range s.threads {
		if thread.IsRoot() {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) SaveThread(ctx context.Context, thread *models.Thread) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.threads[thread.ID]; !ok {
		return utils.NewThreadNotFoundError()
	}
	s.threads[thread.ID] = cloneThread(thread)
	return nil
}

func (s *MemoryStore) SaveUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *user
	stored.Threads = append([]uuid.UUID(nil), user.Threads...)
	s.users[user.ID] = &stored
	return nil
}

func (s *MemoryStore) FindUsers(ctx context.Context, ids []uuid.UUID, projection models.UserProjection) ([]*models.Author, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[uuid.UUID]bool, len(ids))
	var authors []*models.Author
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if user, ok := s.users[id]; ok {
			authors = append(authors, models.ProjectAuthor(user, projection))
		}
	}
	return authors, nil
}

func (s *MemoryStore) PushUserThread(ctx context.Context, userID, threadID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return utils.NewUserNotFoundError(userID.String())
	}
	user.Threads = append(user.Threads, threadID)
	return nil
}

// User returns a copy of a stored user, or nil.
func (s *MemoryStore) User(id uuid.UUID) *models.User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil
	}
	out := *user
	out.Threads = append([]uuid.UUID(nil), user.Threads...)
	return &out
}

// ThreadCount returns the number of stored threads, roots and replies.
func (s *MemoryStore) ThreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.threads)
}

func (s *MemoryStore) EnsureIndexes(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func cloneThread(t *models.Thread) *models.Thread {
	out := *t
	out.Children = append(make([]uuid.UUID, 0, len(t.Children)), t.Children...)
	if t.ParentID != nil {
		parentID := *t.ParentID
		out.ParentID = &parentID
	}
	if t.Community != nil {
		community := *t.Community
		out.Community = &community
	}
	return &out
}
