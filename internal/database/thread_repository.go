// internal/database/thread_repository.go
package database

import (
	"context"
	"fmt"
	"time"

	"threadboard/internal/models"
	"threadboard/internal/utils"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ThreadDocument represents thread data in MongoDB
type ThreadDocument struct {
	ID        string    `bson:"_id"`
	Text      string    `bson:"text"`
	Author    string    `bson:"author"`
	ParentID  *string   `bson:"parentId,omitempty"`
	Children  []string  `bson:"children"`
	Community *string   `bson:"community"`
	CreatedAt time.Time `bson:"createdAt"`
}

// rootThreadFilter matches threads whose parentId is null or missing.
var rootThreadFilter = bson.M{"parentId": bson.M{"$in": bson.A{nil}}}

// InsertThread stores a new thread, assigning its ID and creation time when unset.
func (m *MongoDB) InsertThread(ctx context.Context, thread *models.Thread) error {
	prepareNewThread(thread)
	doc := threadModelToDocument(thread)

	if _, err := m.Threads.InsertOne(ctx, doc); err != nil {
		log.WithError(err).WithField("thread", doc.ID).Error("Error inserting thread")
		return fmt.Errorf("failed to insert thread: %w", err)
	}

	log.WithField("thread", doc.ID).Debug("Inserted thread")
	return nil
}

// FindThread retrieves a thread by ID. A missing thread is not an error.
func (m *MongoDB) FindThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	var doc ThreadDocument

	err := m.Threads.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}

	return threadDocumentToModel(&doc)
}

// FindThreads retrieves every thread in ids that exists, in no particular order.
func (m *MongoDB) FindThreads(ctx context.Context, ids []uuid.UUID) ([]*models.Thread, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	cursor, err := m.Threads.Find(ctx, bson.M{"_id": bson.M{"$in": uuidStrings(ids)}})
	if err != nil {
		return nil, fmt.Errorf("failed to get threads: %w", err)
	}
	return decodeThreads(ctx, cursor)
}

// FindRootThreads lists top-level threads, newest first.
func (m *MongoDB) FindRootThreads(ctx context.Context, skip, limit int64) ([]*models.Thread, error) {
	opts := options.Find().
		SetSort(bson.D{
			{Key: "createdAt", Value: -1},
			{Key: "_id", Value: -1},
		}).
		SetSkip(skip).
		SetLimit(limit)

	cursor, err := m.Threads.Find(ctx, rootThreadFilter, opts)
	if err != nil {
		return nil, err
	}
	return decodeThreads(ctx, cursor)
}

// CountRootThreads counts top-level threads.
func (m *MongoDB) CountRootThreads(ctx context.Context) (int64, error) {
	return m.Threads.CountDocuments(ctx, rootThreadFilter)
}

// SaveThread replaces the stored document with the given thread.
func (m *MongoDB) SaveThread(ctx context.Context, thread *models.Thread) error {
	doc := threadModelToDocument(thread)

	result, err := m.Threads.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		log.WithError(err).WithField("thread", doc.ID).Error("Error saving thread")
		return fmt.Errorf("failed to save thread: %w", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewThreadNotFoundError()
	}

	log.WithFields(log.Fields{
		"thread":   doc.ID,
		"modified": result.ModifiedCount,
	}).Debug("Saved thread")
	return nil
}

func decodeThreads(ctx context.Context, cursor *mongo.Cursor) ([]*models.Thread, error) {
	defer cursor.Close(ctx)

	var threads []*models.Thread
	for cursor.Next(ctx) {
		var doc ThreadDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode thread: %w", err)
		}

		thread, err := threadDocumentToModel(&doc)
		if err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor iteration failed: %w", err)
	}
	return threads, nil
}

// prepareNewThread fills in the fields a store assigns on insert.
func prepareNewThread(thread *models.Thread) {
	if thread.ID == uuid.Nil {
		thread.ID = uuid.New()
	}
	if thread.CreatedAt.IsZero() {
		thread.CreatedAt = time.Now().UTC()
	}
	if thread.Children == nil {
		thread.Children = make([]uuid.UUID, 0)
	}
}

func threadModelToDocument(thread *models.Thread) *ThreadDocument {
	doc := &ThreadDocument{
		ID:        thread.ID.String(),
		Text:      thread.Text,
		Author:    thread.AuthorID.String(),
		Children:  uuidStrings(thread.Children),
		CreatedAt: thread.CreatedAt,
	}

	if thread.ParentID != nil {
		parentID := thread.ParentID.String()
		doc.ParentID = &parentID
	}
	if thread.Community != nil {
		community := thread.Community.String()
		doc.Community = &community
	}

	return doc
}

func threadDocumentToModel(doc *ThreadDocument) (*models.Thread, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid thread ID: %w", err)
	}

	authorID, err := uuid.Parse(doc.Author)
	if err != nil {
		return nil, fmt.Errorf("invalid author ID: %w", err)
	}

	parentID, err := parseOptionalUUID(doc.ParentID)
	if err != nil {
		return nil, fmt.Errorf("invalid parent ID: %w", err)
	}

	community, err := parseOptionalUUID(doc.Community)
	if err != nil {
		return nil, fmt.Errorf("invalid community ID: %w", err)
	}

	children, err := parseUUIDs(doc.Children)
	if err != nil {
		return nil, fmt.Errorf("invalid child ID: %w", err)
	}

	return &models.Thread{
		ID:        id,
		Text:      doc.Text,
		AuthorID:  authorID,
		ParentID:  parentID,
		Children:  children,
		Community: community,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func parseUUIDs(values []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, len(values))
	for i, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, err
		}
		out[i] = id
	}
	return out, nil
}

func parseOptionalUUID(value *string) (*uuid.UUID, error) {
	if value == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}
