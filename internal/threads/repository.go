// Package threads implements the thread repository: creating root threads,
// listing them page by page, loading a thread with its replies and adding
// replies.
//
// Mutations touch two documents one after the other without a transaction.
// A failure after the first write leaves that write in place:
//
//   - CreateThread: the thread exists but is missing from the author's threads.
//   - AddCommentToThread: the reply exists but is missing from its parent's children.
package threads

import (
	"context"
	"time"

	"threadboard/internal/database"
	"threadboard/internal/models"
	"threadboard/internal/utils"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPageNumber = 1
	DefaultPageSize   = 20
)

// Revalidator discards cached output for a path so the next request rebuilds it.
type Revalidator interface {
	Revalidate(path string)
}

// CreateThreadParams describes a new root thread.
type CreateThreadParams struct {
	Text   string
	Author uuid.UUID
	// CommunityID is accepted but not stored; threads are saved without a community.
	CommunityID *uuid.UUID
	Path        string
}

// AddCommentParams describes a reply to an existing thread.
type AddCommentParams struct {
	ThreadID uuid.UUID
	Text     string
	UserID   uuid.UUID
	Path     string
}

// Notifier receives an event for every successful mutation.
type Notifier interface {
	Notify(event models.ThreadEvent)
}

// Repository runs thread operations against a store.
type Repository struct {
	store       database.Store
	revalidator Revalidator
	notifier    Notifier
	metrics     *utils.MetricsCollector
}

// NewRepository builds a Repository. A nil metrics collector gets a fresh one.
func NewRepository(store database.Store, revalidator Revalidator, metrics *utils.MetricsCollector) *Repository {
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	return &Repository{
		store:       store,
		revalidator: revalidator,
		metrics:     metrics,
	}
}

// CreateThread inserts a root thread and appends it to the author's threads.
func (r *Repository) CreateThread(ctx context.Context, params CreateThreadParams) (err error) {
	defer r.metrics.Track("create_thread", time.Now(), &err)

	thread := &models.Thread{
		Text:      params.Text,
		AuthorID:  params.Author,
		Community: nil,
	}

	if err := r.store.InsertThread(ctx, thread); err != nil {
		return utils.NewCreationError(err)
	}

	if err := r.store.PushUserThread(ctx, params.Author, thread.ID); err != nil {
		log.WithFields(log.Fields{
			"thread": thread.ID,
			"author": params.Author,
		}).WithError(err).Warn("Thread created but not linked to its author")
		return utils.NewCreationError(err)
	}

	log.WithFields(log.Fields{
		"thread": thread.ID,
		"author": params.Author,
	}).Info("Created thread")

	r.revalidate(params.Path)
	r.notify(models.ThreadEvent{
		Type:      models.ThreadCreated,
		ThreadID:  thread.ID,
		AuthorID:  thread.AuthorID,
		CreatedAt: thread.CreatedAt,
	})
	return nil
}

// FetchPosts returns one page of root threads, newest first. A zero page
// number or size selects the default; negative values go to the store as they
// are. Store errors are returned unwrapped.
func (r *Repository) FetchPosts(ctx context.Context, pageNumber, pageSize int) (page *models.PostsPage, err error) {
	defer r.metrics.Track("fetch_posts", time.Now(), &err)

	if pageNumber == 0 {
		pageNumber = DefaultPageNumber
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	skipAmount := int64(pageNumber-1) * int64(pageSize)

	totalPostsCount, err := r.store.CountRootThreads(ctx)
	if err != nil {
		return nil, err
	}

	roots, err := r.store.FindRootThreads(ctx, skipAmount, int64(pageSize))
	if err != nil {
		return nil, err
	}

	posts, err := populate(ctx, r.store, roots, postsPlan)
	if err != nil {
		return nil, err
	}

	return &models.PostsPage{
		Posts:  posts,
		IsNext: totalPostsCount > skipAmount+int64(len(posts)),
	}, nil
}

// FetchThreadByID loads a thread with two levels of replies. It returns nil
// without an error when the thread does not exist.
func (r *Repository) FetchThreadByID(ctx context.Context, threadID uuid.UUID) (node *models.ThreadNode, err error) {
	defer r.metrics.Track("fetch_thread", time.Now(), &err)

	thread, err := r.store.FindThread(ctx, threadID)
	if err != nil {
		return nil, utils.NewFetchError(err)
	}
	if thread == nil {
		return nil, nil
	}

	nodes, err := populate(ctx, r.store, []*models.Thread{thread}, threadPlan)
	if err != nil {
		return nil, utils.NewFetchError(err)
	}
	return nodes[0], nil
}

// AddCommentToThread creates a reply and links it from the original thread.
// A missing original thread fails before anything is written.
func (r *Repository) AddCommentToThread(ctx context.Context, params AddCommentParams) (err error) {
	defer r.metrics.Track("add_comment", time.Now(), &err)

	originalThread, err := r.store.FindThread(ctx, params.ThreadID)
	if err != nil {
		return utils.NewCommentError(err)
	}
	if originalThread == nil {
		return utils.NewCommentError(utils.NewThreadNotFoundError())
	}

	parentID := params.ThreadID
	commentThread := &models.Thread{
		Text:     params.Text,
		AuthorID: params.UserID,
		ParentID: &parentID,
	}

	if err := r.store.InsertThread(ctx, commentThread); err != nil {
		return utils.NewCommentError(err)
	}

	originalThread.Children = append(originalThread.Children, commentThread.ID)

	if err := r.store.SaveThread(ctx, originalThread); err != nil {
		log.WithFields(log.Fields{
			"thread":  params.ThreadID,
			"comment": commentThread.ID,
		}).WithError(err).Warn("Comment created but not linked to its thread")
		return utils.NewCommentError(err)
	}

	log.WithFields(log.Fields{
		"thread":  params.ThreadID,
		"comment": commentThread.ID,
		"author":  params.UserID,
	}).Info("Added comment")

	r.revalidate(params.Path)
	r.notify(models.ThreadEvent{
		Type:      models.CommentAdded,
		ThreadID:  commentThread.ID,
		ParentID:  &parentID,
		AuthorID:  commentThread.AuthorID,
		CreatedAt: commentThread.CreatedAt,
	})
	return nil
}

// SetNotifier registers n to receive mutation events.
func (r *Repository) SetNotifier(n Notifier) {
	r.notifier = n
}

func (r *Repository) notify(event models.ThreadEvent) {
	if r.notifier == nil {
		return
	}
	r.notifier.Notify(event)
}

func (r *Repository) revalidate(path string) {
	if r.revalidator == nil {
		return
	}
	r.revalidator.Revalidate(path)
}
