package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"

	"github.com/hyperjump/kotae/internal/models"
)

// backends returns every Storage implementation that can run in this environment.
// Postgres runs only when KOTAE_TEST_POSTGRES_DSN is set.
func backends(t *testing.T) map[string]Storage {
	t.Helper()
	out := make(map[string]Storage)

	raw, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "db.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = raw.Close() })
	out["sqlite"] = raw

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	g, err := NewGormStorage(sqlite.Open(dsn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	out["gorm-sqlite"] = g

	if pg := os.Getenv("KOTAE_TEST_POSTGRES_DSN"); pg != "" {
		p, err := NewPostgresStorage(pg)
		require.NoError(t, err)
		t.Cleanup(func() { _ = p.Close() })
		out["postgres"] = p
	}
	return out
}

func TestStorage_CollectionLifecycle(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			owner := "owner-" + name

			_, err := s.GetCollection(ctx, owner, "reports")
			require.ErrorIs(t, err, ErrNotFound)

			c := &models.Collection{OwnerID: owner, Name: "reports", IndexKey: "k1", ChunksKey: "c1"}
			require.NoError(t, s.UpsertCollection(ctx, c))
			require.NotEmpty(t, c.ID)
			firstID := c.ID

			again := &models.Collection{OwnerID: owner, Name: "reports", IndexKey: "k2", ChunksKey: "c2"}
			require.NoError(t, s.UpsertCollection(ctx, again))
			assert.Equal(t, firstID, again.ID, "upsert keeps the original id")
			assert.Equal(t, "k2", again.IndexKey)

			require.NoError(t, s.UpsertCollection(ctx, &models.Collection{OwnerID: owner, Name: "archive", IndexKey: "k", ChunksKey: "c"}))
			require.NoError(t, s.UpsertCollection(ctx, &models.Collection{OwnerID: owner + "-other", Name: "reports", IndexKey: "k", ChunksKey: "c"}))

			list, err := s.ListCollections(ctx, owner)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, "archive", list[0].Name)
			assert.Equal(t, "reports", list[1].Name)

			n, err := s.CountCollections(ctx)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, n, int64(3))

			require.NoError(t, s.DeleteCollection(ctx, owner, "reports"))
			_, err = s.GetCollection(ctx, owner, "reports")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.DeleteCollection(ctx, owner, "reports"), ErrNotFound)

			other, err := s.GetCollection(ctx, owner+"-other", "reports")
			require.NoError(t, err)
			assert.Equal(t, "reports", other.Name)
		})
	}
}

func TestStorage_Transcript(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := &models.Collection{OwnerID: "u-" + name, Name: "chat", IndexKey: "k", ChunksKey: "c"}
			require.NoError(t, s.UpsertCollection(ctx, c))

			evidence := []models.EvidenceItem{{QuotedText: "the quoted passage of text", SourceFilename: "a.txt", ChunkIndex: 2}}
			require.NoError(t, s.AppendMessages(ctx,
				&models.Message{CollectionID: c.ID, OwnerID: c.OwnerID, Role: models.RoleUser, Content: "question?"},
				&models.Message{CollectionID: c.ID, OwnerID: c.OwnerID, Role: models.RoleBot, Content: "answer", Evidence: evidence},
			))
			require.NoError(t, s.AppendMessages(ctx,
				&models.Message{CollectionID: c.ID, OwnerID: c.OwnerID, Role: models.RoleUser, Content: "follow up"},
			))

			msgs, err := s.ListMessages(ctx, c.ID)
			require.NoError(t, err)
			require.Len(t, msgs, 3)
			assert.Equal(t, models.RoleUser, msgs[0].Role)
			assert.Equal(t, "question?", msgs[0].Content)
			assert.Empty(t, msgs[0].Evidence)
			assert.Equal(t, models.RoleBot, msgs[1].Role)
			assert.Equal(t, evidence, msgs[1].Evidence)
			assert.Equal(t, "follow up", msgs[2].Content)

			require.NoError(t, s.DeleteCollection(ctx, c.OwnerID, c.Name))
			msgs, err = s.ListMessages(ctx, c.ID)
			require.NoError(t, err)
			assert.Empty(t, msgs)
		})
	}
}
