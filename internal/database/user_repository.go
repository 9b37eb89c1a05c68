// internal/database/user_repository.go
package database

import (
	"context"
	"fmt"
	"time"

	"threadboard/internal/models"
	"threadboard/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID        string    `bson:"_id"`
	Username  string    `bson:"username"`
	Name      string    `bson:"name"`
	Image     string    `bson:"image"`
	Bio       string    `bson:"bio"`
	Threads   []string  `bson:"threads"`
	CreatedAt time.Time `bson:"createdAt"`
}

// authorDocument is decoded from a projected user document, so any field may
// be missing. parentId is only ever present if a projection asks for it.
type authorDocument struct {
	ID       string   `bson:"_id"`
	Username string   `bson:"username,omitempty"`
	Name     string   `bson:"name,omitempty"`
	Image    string   `bson:"image,omitempty"`
	Bio      string   `bson:"bio,omitempty"`
	ParentID string   `bson:"parentId,omitempty"`
	Threads  []string `bson:"threads,omitempty"`
}

// SaveUser creates or updates a user in MongoDB
func (m *MongoDB) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	doc := UserDocument{
		ID:        user.ID.String(),
		Username:  user.Username,
		Name:      user.Name,
		Image:     user.Image,
		Bio:       user.Bio,
		Threads:   uuidStrings(user.Threads),
		CreatedAt: user.CreatedAt,
	}

	opts := options.Update().SetUpsert(true)
	filter := bson.M{"_id": doc.ID}
	update := bson.M{"$set": doc}

	if _, err := m.Users.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// FindUsers loads the users in ids through the given projection. Missing
// users are skipped.
func (m *MongoDB) FindUsers(ctx context.Context, ids []uuid.UUID, projection models.UserProjection) ([]*models.Author, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	opts := options.Find()
	if projection != nil {
		fields := bson.D{}
		for _, field := range projection {
			fields = append(fields, bson.E{Key: field, Value: 1})
		}
		opts.SetProjection(fields)
	}

	cursor, err := m.Users.Find(ctx, bson.M{"_id": bson.M{"$in": uuidStrings(ids)}}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer cursor.Close(ctx)

	var authors []*models.Author
	for cursor.Next(ctx) {
		var doc authorDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode user: %w", err)
		}

		id, err := uuid.Parse(doc.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid user ID in database: %w", err)
		}

		threads, err := parseUUIDs(doc.Threads)
		if err != nil {
			return nil, fmt.Errorf("invalid thread ID in database: %w", err)
		}
		if len(threads) == 0 {
			threads = nil
		}

		authors = append(authors, &models.Author{
			ID:       id,
			Username: doc.Username,
			Name:     doc.Name,
			Image:    doc.Image,
			Bio:      doc.Bio,
			ParentID: doc.ParentID,
			Threads:  threads,
		})
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor iteration failed: %w", err)
	}
	return authors, nil
}

// PushUserThread appends threadID to the user's threads.
func (m *MongoDB) PushUserThread(ctx context.Context, userID, threadID uuid.UUID) error {
	filter := bson.M{"_id": userID.String()}
	update := bson.M{"$push": bson.M{"threads": threadID.String()}}

	result, err := m.Users.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update user threads: %w", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewUserNotFoundError(userID.String())
	}
	return nil
}
