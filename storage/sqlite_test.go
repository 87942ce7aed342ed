package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seungwon-Robin/Chatbot/models"
)

func TestSQLiteSource_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src, err := OpenSQLite(filepath.Join(t.TempDir(), "music.db"))
	require.NoError(t, err)
	defer src.Close()

	want, err := ReadCatalog(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.NoError(t, src.ReplaceCatalog(ctx, want))

	got, err := src.LoadCatalog(ctx)
	require.NoError(t, err)
	assert.Equal(t, want.Rows(), got.Rows())
}

func TestSQLiteSource_ReplaceOverwrites(t *testing.T) {
	ctx := context.Background()
	src, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, src.ReplaceCatalog(ctx, NewCatalog([]models.Song{{Genre: "a"}, {Genre: "b"}, {Genre: "c"}})))
	require.NoError(t, src.ReplaceCatalog(ctx, NewCatalog([]models.Song{{Genre: "z"}})))

	got, err := src.LoadCatalog(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, "z", got.Rows()[0].Genre)
}

func TestSQLiteSource_EmptyTable(t *testing.T) {
	src, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer src.Close()

	got, err := src.LoadCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Len())
}
