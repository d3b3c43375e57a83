package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "u1/reports/", CollectionPrefix("u1", "reports"))
	assert.Equal(t, "u1/reports/index-g1.bin", IndexKey("u1", "reports", "g1"))
	assert.Equal(t, "u1/reports/chunks-g1.gob", ChunksKey("u1", "reports", "g1"))
	assert.Equal(t, "u1/reports/documents/a.pdf", DocumentKey("u1", "reports", "a.pdf"))
	assert.Equal(t, "u1/reports/documents/a.pdf", DocumentKey("u1", "reports", "../../a.pdf"))
}

func TestValidate(t *testing.T) {
	for _, bad := range []string{"", "/abs", "a/../b", "./a"} {
		assert.ErrorIs(t, ValidateKey(bad), ErrInvalidKey, bad)
	}
	assert.NoError(t, ValidateKey("u/c/documents/x.txt"))
	for _, bad := range []string{"", ".", "..", "a/b", `a\b`} {
		assert.ErrorIs(t, ValidateName(bad), ErrInvalidKey, bad)
	}
	assert.NoError(t, ValidateName("my collection"))
}

func TestFSStore_PutGetDeleteList(t *testing.T) {
	ctx := context.Background()
	s, err := NewFSStore(filepath.Join(t.TempDir(), "blobs"))
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, "u/c/index.bin", []byte("one")))
	require.NoError(t, s.Put(ctx, "u/c/index.bin", []byte("two")))
	require.NoError(t, s.Put(ctx, "u/c/documents/a.txt", []byte("doc")))
	require.NoError(t, s.Put(ctx, "u/other/index.bin", []byte("x")))

	got, err := s.Get(ctx, "u/c/index.bin")
	require.NoError(t, err)
	assert.Equal(t, "two", string(got))

	keys, err := s.List(ctx, "u/c/")
	require.NoError(t, err)
	assert.Equal(t, []string{"u/c/documents/a.txt", "u/c/index.bin"}, keys)

	require.NoError(t, s.Delete(ctx, "u/c/index.bin"))
	require.NoError(t, s.Delete(ctx, "u/c/index.bin"))
	_, err = s.Get(ctx, "u/c/index.bin")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFSStore_RejectsTraversal(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	err = s.Put(context.Background(), "../escape", []byte("x"))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFSStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFSStore(dir)
	require.NoError(t, err)
	require.NoError(t, s.Put(context.Background(), "k/v", []byte("data")))
	entries, err := os.ReadDir(filepath.Join(dir, "k"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v", entries[0].Name())
}

func TestFSStore_CancelledContext(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = s.Put(ctx, "a/b", []byte("x"))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()

	f1 := filepath.Join(dir, "f1.txt")
	if err := os.WriteFile(f1, []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err := DiskUsageBytes(f1)
	if err != nil {
		t.Fatal(err)
	}
	if got != 5 {
		t.Errorf("single file: got %d bytes, want 5", got)
	}

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "a"), []byte("ab"), 0644); err != nil {
		t.Fatal(err)
	}
	got, err = DiskUsageBytes(sub, filepath.Join(dir, "missing"), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("directory: got %d bytes, want 2", got)
	}
}
