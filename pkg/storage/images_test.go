package storage

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 6, 3))))
	return buf.Bytes()
}

func TestStage_WritesAndReleases(t *testing.T) {
	base := t.TempDir()
	store, err := NewImageStorage(&ImageStorageConfig{BasePath: base})
	require.NoError(t, err)

	data := testPNG(t)
	staged, err := store.Stage(data, "")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "staging"), filepath.Dir(staged.Path))
	assert.Equal(t, ".png", filepath.Ext(staged.Path))
	assert.Equal(t, "image/png", staged.MimeType)

	onDisk, err := os.ReadFile(staged.Path)
	require.NoError(t, err)
	assert.Equal(t, data, onDisk)

	require.NoError(t, staged.Release())
	_, err = os.Stat(staged.Path)
	assert.True(t, os.IsNotExist(err))

	// Second release is a no-op
	assert.NoError(t, staged.Release())
}

func TestStage_TempDirWithoutBasePath(t *testing.T) {
	store, err := NewImageStorage(nil)
	require.NoError(t, err)

	staged, err := store.Stage(testPNG(t), "jpg")
	require.NoError(t, err)
	defer staged.Release()

	assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(staged.Path))
	assert.Equal(t, ".jpg", filepath.Ext(staged.Path))
	assert.False(t, store.ArchiveEnabled())
}

func TestStage_UniquePaths(t *testing.T) {
	store, err := NewImageStorage(&ImageStorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	a, err := store.Stage(testPNG(t), ".png")
	require.NoError(t, err)
	defer a.Release()
	b, err := store.Stage(testPNG(t), ".png")
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Path, b.Path)
}

func TestStage_EmptyData(t *testing.T) {
	store, err := NewImageStorage(nil)
	require.NoError(t, err)

	_, err = store.Stage(nil, ".png")
	assert.Error(t, err)
}

func TestSaveGenerated(t *testing.T) {
	store, err := NewImageStorage(&ImageStorageConfig{BasePath: t.TempDir()})
	require.NoError(t, err)

	data := testPNG(t)
	info, err := store.SaveGenerated(context.Background(), "cycle-1", data)
	require.NoError(t, err)

	assert.Equal(t, "image/png", info.MimeType)
	assert.Equal(t, int64(len(data)), info.Size)
	assert.Equal(t, 6, info.Width)
	assert.Equal(t, 3, info.Height)
	assert.Len(t, info.Checksum, 64)

	paths, err := store.ListGenerated("cycle-1")
	require.NoError(t, err)
	assert.Equal(t, []string{info.Path}, paths)
}

func TestSaveGenerated_RequiresBasePath(t *testing.T) {
	store, err := NewImageStorage(nil)
	require.NoError(t, err)

	_, err = store.SaveGenerated(context.Background(), "cycle-1", testPNG(t))
	assert.Error(t, err)
}
