// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"threadboard/internal/models"
	"threadboard/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// PostgresDB stores threads and users in two tables. Child and thread id
// lists are uuid[] columns so a row maps one-to-one onto a document.
type PostgresDB struct {
	DB *sqlx.DB
}

type threadRow struct {
	ID        uuid.UUID      `db:"id"`
	Text      string         `db:"text"`
	Author    uuid.UUID      `db:"author"`
	ParentID  uuid.NullUUID  `db:"parent_id"`
	Children  pq.StringArray `db:"children"`
	Community uuid.NullUUID  `db:"community"`
	CreatedAt time.Time      `db:"created_at"`
}

type userRow struct {
	ID        uuid.UUID      `db:"id"`
	Username  string         `db:"username"`
	Name      string         `db:"name"`
	Image     string         `db:"image"`
	Bio       string         `db:"bio"`
	Threads   pq.StringArray `db:"threads"`
	CreatedAt time.Time      `db:"created_at"`
}

const threadColumns = `id, text, author, parent_id, children, community, created_at`

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, timeout time.Duration) (*PostgresDB, error) {
	db, err := sqlx.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	log.Info("Successfully connected to PostgreSQL")
	return &PostgresDB{DB: db}, nil
}

// EnsureIndexes creates the tables and their indexes if they don't exist.
func (p *PostgresDB) EnsureIndexes(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"users table", `
			CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				username TEXT NOT NULL DEFAULT '',
				name TEXT NOT NULL DEFAULT '',
				image TEXT NOT NULL DEFAULT '',
				bio TEXT NOT NULL DEFAULT '',
				threads UUID[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`},
		{"threads table", `
			CREATE TABLE IF NOT EXISTS threads (
				id UUID PRIMARY KEY,
				text TEXT NOT NULL,
				author UUID NOT NULL,
				parent_id UUID,
				children UUID[] NOT NULL DEFAULT '{}',
				community UUID,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			)`},
		{"username index", `CREATE UNIQUE INDEX IF NOT EXISTS users_username_idx ON users (username) WHERE username <> ''`},
		{"root listing index", `CREATE INDEX IF NOT EXISTS threads_root_idx ON threads (created_at DESC, id DESC) WHERE parent_id IS NULL`},
		{"author index", `CREATE INDEX IF NOT EXISTS threads_author_idx ON threads (author)`},
	}

	for _, stmt := range statements {
		if _, err := p.DB.ExecContext(ctx, stmt.sql); err != nil {
			return fmt.Errorf("failed to create %s: %w", stmt.name, err)
		}
	}
	return nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	log.Info("Closing PostgreSQL connection")
	return p.DB.Close()
}

func (p *PostgresDB) InsertThread(ctx context.Context, thread *models.Thread) error {
	prepareNewThread(thread)

	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO threads (`+threadColumns+`) VALUES ($1, $2, $3, $4, $5::uuid[], $6, $7)`,
		thread.ID, thread.Text, thread.AuthorID, nullUUID(thread.ParentID),
		pq.Array(uuidStrings(thread.Children)), nullUUID(thread.Community), thread.CreatedAt,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to insert thread", err)
	}
	return nil
}

// FindThread retrieves a thread by ID. A missing thread is not an error.
func (p *PostgresDB) FindThread(ctx context.Context, id uuid.UUID) (*models.Thread, error) {
	var row threadRow
	err := p.DB.GetContext(ctx, &row, `SELECT `+threadColumns+` FROM threads WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get thread", err)
	}
	return row.toModel()
}

func (p *PostgresDB) FindThreads(ctx context.Context, ids []uuid.UUID) ([]*models.Thread, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []threadRow
	err := p.DB.SelectContext(ctx, &rows,
		`SELECT `+threadColumns+` FROM threads WHERE id = ANY($1::uuid[])`,
		pq.Array(uuidStrings(ids)),
	)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get threads", err)
	}
	return threadRowsToModels(rows)
}

// FindRootThreads lists root threads newest first. A zero limit returns every
// remaining row; negative values are rejected by the server.
func (p *PostgresDB) FindRootThreads(ctx context.Context, skip, limit int64) ([]*models.Thread, error) {
	var limitArg interface{}
	if limit != 0 {
		limitArg = limit
	}

	var rows []threadRow
	err := p.DB.SelectContext(ctx, &rows,
		`SELECT `+threadColumns+` FROM threads
		 WHERE parent_id IS NULL
		 ORDER BY created_at DESC, id DESC
		 OFFSET $1 LIMIT $2`,
		skip, limitArg,
	)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to list root threads", err)
	}
	return threadRowsToModels(rows)
}

func (p *PostgresDB) CountRootThreads(ctx context.Context) (int64, error) {
	var count int64
	if err := p.DB.GetContext(ctx, &count, `SELECT COUNT(*) FROM threads WHERE parent_id IS NULL`); err != nil {
		return 0, utils.NewAppError(utils.ErrDatabase, "failed to count root threads", err)
	}
	return count, nil
}

// SaveThread overwrites every field of an existing thread.
func (p *PostgresDB) SaveThread(ctx context.Context, thread *models.Thread) error {
	result, err := p.DB.ExecContext(ctx,
		`UPDATE threads
		 SET text = $2, author = $3, parent_id = $4, children = $5::uuid[], community = $6, created_at = $7
		 WHERE id = $1`,
		thread.ID, thread.Text, thread.AuthorID, nullUUID(thread.ParentID),
		pq.Array(uuidStrings(thread.Children)), nullUUID(thread.Community), thread.CreatedAt,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save thread", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return utils.NewThreadNotFoundError()
	}
	return nil
}

// SaveUser creates or updates a user.
func (p *PostgresDB) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO users (id, username, name, image, bio, threads, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::uuid[], $7)
		 ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			name = EXCLUDED.name,
			image = EXCLUDED.image,
			bio = EXCLUDED.bio,
			threads = EXCLUDED.threads,
			created_at = EXCLUDED.created_at`,
		user.ID, user.Username, user.Name, user.Image, user.Bio,
		pq.Array(uuidStrings(user.Threads)), user.CreatedAt,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to save user", err)
	}
	return nil
}

// FindUsers loads whole rows and narrows them to the projection.
func (p *PostgresDB) FindUsers(ctx context.Context, ids []uuid.UUID, projection models.UserProjection) ([]*models.Author, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var rows []userRow
	err := p.DB.SelectContext(ctx, &rows,
		`SELECT id, username, name, image, bio, threads, created_at FROM users WHERE id = ANY($1::uuid[])`,
		pq.Array(uuidStrings(ids)),
	)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrDatabase, "failed to get users", err)
	}

	authors := make([]*models.Author, 0, len(rows))
	for _, row := range rows {
		threads, err := parseUUIDs(row.Threads)
		if err != nil {
			return nil, fmt.Errorf("invalid thread ID in database: %w", err)
		}
		user := &models.User{
			ID:        row.ID,
			Username:  row.Username,
			Name:      row.Name,
			Image:     row.Image,
			Bio:       row.Bio,
			Threads:   threads,
			CreatedAt: row.CreatedAt,
		}
		author := models.ProjectAuthor(user, projection)
		if len(author.Threads) == 0 {
			author.Threads = nil
		}
		authors = append(authors, author)
	}
	return authors, nil
}

// PushUserThread appends threadID to the user's threads.
func (p *PostgresDB) PushUserThread(ctx context.Context, userID, threadID uuid.UUID) error {
	result, err := p.DB.ExecContext(ctx,
		`UPDATE users SET threads = array_append(threads, $2::uuid) WHERE id = $1`,
		userID, threadID,
	)
	if err != nil {
		return utils.NewAppError(utils.ErrDatabase, "failed to update user threads", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return utils.NewUserNotFoundError(userID.String())
	}
	return nil
}

func (r *threadRow) toModel() (*models.Thread, error) {
	children, err := parseUUIDs(r.Children)
	if err != nil {
		return nil, fmt.Errorf("invalid child ID in database: %w", err)
	}

	thread := &models.Thread{
		ID:        r.ID,
		Text:      r.Text,
		AuthorID:  r.Author,
		Children:  children,
		CreatedAt: r.CreatedAt,
	}
	if r.ParentID.Valid {
		parentID := r.ParentID.UUID
		thread.ParentID = &parentID
	}
	if r.Community.Valid {
		community := r.Community.UUID
		thread.Community = &community
	}
	return thread, nil
}

func threadRowsToModels(rows []threadRow) ([]*models.Thread, error) {
	threads := make([]*models.Thread, 0, len(rows))
	for i := range rows {
		thread, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		threads = append(threads, thread)
	}
	return threads, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
