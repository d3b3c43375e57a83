package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		index_key TEXT NOT NULL,
		chunks_key TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (owner_id, name)
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		collection_id TEXT NOT NULL,
		owner_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		evidence TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_messages_collection ON messages(collection_id, seq);
	`
	_, err := db.Exec(schema)
	return err
}

const collectionColumns = `id, owner_id, name, index_key, chunks_key, created_at, updated_at`

func scanCollection(row interface{ Scan(...any) error }) (*models.Collection, error) {
	var c models.Collection
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.IndexKey, &c.ChunksKey, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCollection returns the collection named name owned by owner.
func (s *SQLiteStorage) GetCollection(ctx context.Context, owner, name string) (*models.Collection, error) {
	c, err := scanCollection(s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE owner_id = ? AND name = ?`, owner, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s/%s: %w", owner, name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// UpsertCollection inserts the collection or updates its artifact keys.
func (s *SQLiteStorage) UpsertCollection(ctx context.Context, c *models.Collection) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO collections (id, owner_id, name, index_key, chunks_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (owner_id, name) DO UPDATE SET
		   index_key = excluded.index_key,
		   chunks_key = excluded.chunks_key,
		   updated_at = excluded.updated_at`,
		c.ID, c.OwnerID, c.Name, c.IndexKey, c.ChunksKey, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert collection: %w", err)
	}
	stored, err := s.GetCollection(ctx, c.OwnerID, c.Name)
	if err != nil {
		return err
	}
	*c = *stored
	return nil
}

// ListCollections returns the owner's collections ordered by name.
func (s *SQLiteStorage) ListCollections(ctx context.Context, owner string) ([]*models.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE owner_id = ? ORDER BY name`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCollection removes the collection and its messages in one transaction.
func (s *SQLiteStorage) DeleteCollection(ctx context.Context, owner, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id string
	err = tx.QueryRowContext(ctx, `SELECT id FROM collections WHERE owner_id = ? AND name = ?`, owner, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("collection %s/%s: %w", owner, name, ErrNotFound)
	}
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE collection_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return tx.Commit()
}

// AppendMessages inserts messages in order, in a single transaction.
func (s *SQLiteStorage) AppendMessages(ctx context.Context, msgs ...*models.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO messages (id, collection_id, owner_id, role, content, evidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		var evidence sql.NullString
		if len(m.Evidence) > 0 {
			b, err := json.Marshal(m.Evidence)
			if err != nil {
				return fmt.Errorf("failed to marshal evidence: %w", err)
			}
			evidence = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.CollectionID, m.OwnerID, m.Role, m.Content, evidence, m.CreatedAt); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	return tx.Commit()
}

// ListMessages returns a collection's transcript in insertion order.
func (s *SQLiteStorage) ListMessages(ctx context.Context, collectionID string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, collection_id, owner_id, role, content, evidence, created_at
		 FROM messages WHERE collection_id = ? ORDER BY seq`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Message
	for rows.Next() {
		var m models.Message
		var evidence sql.NullString
		if err := rows.Scan(&m.ID, &m.CollectionID, &m.OwnerID, &m.Role, &m.Content, &evidence, &m.CreatedAt); err != nil {
			return nil, err
		}
		if evidence.Valid && evidence.String != "" {
			if err := json.Unmarshal([]byte(evidence.String), &m.Evidence); err != nil {
				return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
			}
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// CountCollections returns the total number of collections across owners.
func (s *SQLiteStorage) CountCollections(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM collections`).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
