// internal/database/database.go
package database

import (
	"context"
	"fmt"
	"strings"

	"threadboard/internal/config"
	"threadboard/internal/models"

	"github.com/google/uuid"
)

// Store is the document store behind the thread repository. It is keyed on
// two collections, threads and users (tables on PostgreSQL).
type Store interface {
	// Thread methods
	InsertThread(ctx context.Context, thread *models.Thread) error
	FindThread(ctx context.Context, id uuid.UUID) (*models.Thread, error)
	FindThreads(ctx context.Context, ids []uuid.UUID) ([]*models.Thread, error)
	FindRootThreads(ctx context.Context, skip, limit int64) ([]*models.Thread, error)
	CountRootThreads(ctx context.Context) (int64, error)
	SaveThread(ctx context.Context, thread *models.Thread) error

	// User methods
	SaveUser(ctx context.Context, user *models.User) error
	FindUsers(ctx context.Context, ids []uuid.UUID, projection models.UserProjection) ([]*models.Author, error)
	PushUserThread(ctx context.Context, userID, threadID uuid.UUID) error

	// Connection
	EnsureIndexes(ctx context.Context) error
	Close(ctx context.Context) error
}

// DatabaseType represents the type of database to use
type DatabaseType string

const (
	TypeMongoDB  DatabaseType = "mongodb"
	TypePostgres DatabaseType = "postgres"
	TypeMemory   DatabaseType = "memory"
)

// NewStore creates a store based on the configured type.
func NewStore(cfg *config.DatabaseConfig) (Store, error) {
	switch DatabaseType(strings.ToLower(cfg.Type)) {
	case TypeMongoDB:
		db, err := NewMongoDB(cfg.URI, cfg.Name, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return db, nil
	case TypePostgres:
		db, err := NewPostgresDB(cfg.URI, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return db, nil
	case TypeMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

var (
	_ Store = (*MongoDB)(nil)
	_ Store = (*PostgresDB)(nil)
	_ Store = (*MemoryStore)(nil)
)
