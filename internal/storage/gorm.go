package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/hyperjump/kotae/internal/models"
)

type collectionRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	OwnerID   string `gorm:"not null;uniqueIndex:idx_collections_owner_name"`
	Name      string `gorm:"not null;uniqueIndex:idx_collections_owner_name"`
	IndexKey  string `gorm:"not null"`
	ChunksKey string `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (collectionRow) TableName() string { return "collections" }

func (r *collectionRow) toModel() *models.Collection {
	return &models.Collection{
		ID: r.ID, OwnerID: r.OwnerID, Name: r.Name,
		IndexKey: r.IndexKey, ChunksKey: r.ChunksKey,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type messageRow struct {
	Seq          int64          `gorm:"primaryKey;autoIncrement"`
	ID           string         `gorm:"size:36;uniqueIndex"`
	CollectionID string         `gorm:"size:36;not null;index"`
	OwnerID      string         `gorm:"not null"`
	Role         string         `gorm:"size:16;not null"`
	Content      string         `gorm:"type:text;not null"`
	Evidence     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time
}

func (messageRow) TableName() string { return "messages" }

// GormStorage implements Storage on any GORM dialect. Production deployments use Postgres.
type GormStorage struct {
	db *gorm.DB
}

// NewPostgresStorage connects to Postgres with dsn and migrates the schema.
func NewPostgresStorage(dsn string) (*GormStorage, error) {
	return NewGormStorage(postgres.Open(dsn))
}

// NewGormStorage opens dialector and migrates the schema.
func NewGormStorage(dialector gorm.Dialector) (*GormStorage, error) {
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&collectionRow{}, &messageRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormStorage{db: db}, nil
}

// GetCollection returns the collection named name owned by owner.
func (s *GormStorage) GetCollection(ctx context.Context, owner, name string) (*models.Collection, error) {
	var row collectionRow
	err := s.db.WithContext(ctx).Where("owner_id = ? AND name = ?", owner, name).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("collection %s/%s: %w", owner, name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// UpsertCollection inserts the collection or updates its artifact keys.
func (s *GormStorage) UpsertCollection(ctx context.Context, c *models.Collection) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	row := collectionRow{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name, IndexKey: c.IndexKey, ChunksKey: c.ChunksKey}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "owner_id"}, {Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"index_key", "chunks_key", "updated_at"}),
	}).Create(&row).Error
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
func (s *GormStorage) ListCollections(ctx context.Context, owner string) ([]*models.Collection, error) {
	var rows []collectionRow
	if err := s.db.WithContext(ctx).Where("owner_id = ?", owner).Order("name").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Collection, len(rows))
	for i := range rows {
		out[i] = rows[i].toModel()
	}
	return out, nil
}

// DeleteCollection removes the collection and its messages in one transaction.
func (s *GormStorage) DeleteCollection(ctx context.Context, owner, name string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row collectionRow
		err := tx.Where("owner_id = ? AND name = ?", owner, name).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("collection %s/%s: %w", owner, name, ErrNotFound)
		}
		if err != nil {
			return err
		}
		if err := tx.Where("collection_id = ?", row.ID).Delete(&messageRow{}).Error; err != nil {
			return fmt.Errorf("failed to delete messages: %w", err)
		}
		return tx.Delete(&row).Error
	})
}

// AppendMessages inserts messages in order.
func (s *GormStorage) AppendMessages(ctx context.Context, msgs ...*models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	rows := make([]messageRow, len(msgs))
	for i, m := range msgs {
		if m.ID == "" {
			m.ID = uuid.New().String()
		}
		if m.CreatedAt.IsZero() {
			m.CreatedAt = time.Now().UTC()
		}
		var evidence datatypes.JSON
		if len(m.Evidence) > 0 {
			b, err := json.Marshal(m.Evidence)
			if err != nil {
				return fmt.Errorf("failed to marshal evidence: %w", err)
			}
			evidence = datatypes.JSON(b)
		}
		rows[i] = messageRow{
			ID: m.ID, CollectionID: m.CollectionID, OwnerID: m.OwnerID,
			Role: m.Role, Content: m.Content, Evidence: evidence, CreatedAt: m.CreatedAt,
		}
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to insert messages: %w", err)
	}
	return nil
}

// ListMessages returns a collection's transcript in insertion order.
func (s *GormStorage) ListMessages(ctx context.Context, collectionID string) ([]*models.Message, error) {
	var rows []messageRow
	if err := s.db.WithContext(ctx).Where("collection_id = ?", collectionID).Order("seq").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*models.Message, len(rows))
	for i, r := range rows {
		m := &models.Message{
			ID: r.ID, CollectionID: r.CollectionID, OwnerID: r.OwnerID,
			Role: r.Role, Content: r.Content, CreatedAt: r.CreatedAt,
		}
		if len(r.Evidence) > 0 && string(r.Evidence) != "null" {
			if err := json.Unmarshal(r.Evidence, &m.Evidence); err != nil {
				return nil, fmt.Errorf("failed to unmarshal evidence: %w", err)
			}
		}
		out[i] = m
	}
	return out, nil
}

// CountCollections returns the total number of collections across owners.
func (s *GormStorage) CountCollections(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&collectionRow{}).Count(&n).Error
	return n, err
}

// Close closes the underlying connection pool.
func (s *GormStorage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
