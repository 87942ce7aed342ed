package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Seungwon-Robin/Chatbot/models"
	"github.com/Seungwon-Robin/Chatbot/storage"
)

func TestNewChatbot_BuildsOnceThenReloads(t *testing.T) {
	ctx := context.Background()
	indexPath := filepath.Join(t.TempDir(), "faiss_index.bin")

	first := testEmbedder()
	bot, err := NewChatbot(ctx, testCatalog(), first, &fakeGenerator{}, Options{IndexPath: indexPath})
	require.NoError(t, err)
	assert.Equal(t, StateReady, bot.State())

	_, many := first.calls()
	assert.Equal(t, 1, many)
	_, err = os.Stat(indexPath)
	require.NoError(t, err, "index should be saved")

	// a restart with the saved file present must not embed the catalog again
	second := testEmbedder()
	restarted, err := NewChatbot(ctx, testCatalog(), second, &fakeGenerator{}, Options{IndexPath: indexPath})
	require.NoError(t, err)
	assert.Equal(t, StateReady, restarted.State())

	_, many = second.calls()
	assert.Zero(t, many)

	want, err := bot.Retriever().Retrieve(ctx, "party time", 3)
	require.NoError(t, err)
	got, err := restarted.Retriever().Retrieve(ctx, "party time", 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewChatbot_CorruptIndexIsFatal(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "faiss_index.bin")
	require.NoError(t, os.WriteFile(indexPath, []byte("corrupt"), 0o644))

	emb := testEmbedder()
	_, err := NewChatbot(context.Background(), testCatalog(), emb, &fakeGenerator{}, Options{IndexPath: indexPath})
	require.Error(t, err)

	var startupErr *StartupError
	require.True(t, errors.As(err, &startupErr))
	assert.Equal(t, "index load", startupErr.Stage)
	assert.ErrorIs(t, err, ErrIndexLoad)

	_, many := emb.calls()
	assert.Zero(t, many, "a corrupt index must not be rebuilt")

	data, err := os.ReadFile(indexPath)
	require.NoError(t, err)
	assert.Equal(t, "corrupt", string(data))
}

func TestNewChatbot_EmbeddingFailureIsFatal(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "faiss_index.bin")
	emb := testEmbedder()
	emb.manyErr = errors.New("out of memory")

	_, err := NewChatbot(context.Background(), testCatalog(), emb, &fakeGenerator{}, Options{IndexPath: indexPath})

	var startupErr *StartupError
	require.True(t, errors.As(err, &startupErr))
	assert.Equal(t, "embedding", startupErr.Stage)

	_, statErr := os.Stat(indexPath)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "no index should be written")
}

func TestNewChatbot_DimensionMismatchIsFatal(t *testing.T) {
	emb := newFakeEmbedder(map[string][]float32{
		"calm late-night jazz": {0, 0},
		"upbeat happy pop":     {1, 1, 1},
		"loud driving anthem":  {2, 2},
	})

	_, err := NewChatbot(context.Background(), testCatalog(), emb, &fakeGenerator{}, Options{IndexPath: filepath.Join(t.TempDir(), "idx.bin")})

	var startupErr *StartupError
	require.True(t, errors.As(err, &startupErr))
	assert.Equal(t, "index build", startupErr.Stage)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNewChatbot_SavedIndexFromAnotherModelIsFatal(t *testing.T) {
	ctx := context.Background()
	indexPath := filepath.Join(t.TempDir(), "faiss_index.bin")

	_, err := NewChatbot(ctx, testCatalog(), testEmbedder(), &fakeGenerator{}, Options{IndexPath: indexPath})
	require.NoError(t, err)

	// same catalog, but the embedding model now yields 3-dimensional vectors
	wider := newFakeEmbedder(map[string][]float32{"I feel relaxed": {0, 0, 0}})
	_, err = NewChatbot(ctx, testCatalog(), wider, &fakeGenerator{}, Options{IndexPath: indexPath})

	var startupErr *StartupError
	require.True(t, errors.As(err, &startupErr))
	assert.Equal(t, "index load", startupErr.Stage)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, many := wider.calls()
	assert.Zero(t, many, "a mismatched index is not rebuilt")
}

func TestNewChatbot_EmptyCatalogIsFatal(t *testing.T) {
	_, err := NewChatbot(context.Background(), storage.NewCatalog(nil), testEmbedder(), &fakeGenerator{}, Options{IndexPath: filepath.Join(t.TempDir(), "idx.bin")})

	var startupErr *StartupError
	require.True(t, errors.As(err, &startupErr))
	assert.ErrorIs(t, err, ErrIndexBuild)
}

func TestChatbot_GenerateResponse(t *testing.T) {
	catalog := storage.NewCatalog([]models.Song{
		{Genre: "jazz", Artist: "A", SongTitle: "Blue Night", Description: "calm late-night jazz"},
		{Genre: "pop", Artist: "B", SongTitle: "Sunny Day", Description: "upbeat happy pop"},
	})
	gen := &fakeGenerator{answer: "Listen to Blue Night."}

	bot, err := NewChatbot(context.Background(), catalog, testEmbedder(), gen, Options{
		IndexPath: filepath.Join(t.TempDir(), "idx.bin"),
		TopK:      1,
	})
	require.NoError(t, err)

	answer, err := bot.GenerateResponse(context.Background(), "I feel relaxed")
	require.NoError(t, err)
	assert.Equal(t, "Listen to Blue Night.", answer)

	assert.Contains(t, gen.prompt, "I feel relaxed")
	assert.Contains(t, gen.prompt, "Genre: jazz, Artist: A, Title: Blue Night")
	assert.Contains(t, gen.prompt, "Description: calm late-night jazz")
	assert.NotContains(t, gen.prompt, "Sunny Day")
}

func TestChatbot_GenerateResponseEmptyQuery(t *testing.T) {
	emb := testEmbedder()
	gen := &fakeGenerator{}
	bot, err := NewChatbot(context.Background(), testCatalog(), emb, gen, Options{IndexPath: filepath.Join(t.TempDir(), "idx.bin")})
	require.NoError(t, err)

	_, err = bot.GenerateResponse(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyQuery)

	one, _ := emb.calls()
	assert.Zero(t, one)
	assert.Zero(t, gen.calls)
}

func TestChatbot_GenerationFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("quota exceeded")}
	bot, err := NewChatbot(context.Background(), testCatalog(), testEmbedder(), gen, Options{IndexPath: filepath.Join(t.TempDir(), "idx.bin")})
	require.NoError(t, err)

	_, err = bot.GenerateResponse(context.Background(), "I feel relaxed")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, 1, gen.calls, "generation is not retried")
}

func TestChatbot_GenerationKeepsCause(t *testing.T) {
	gen := &fakeGenerator{err: context.DeadlineExceeded}
	bot, err := NewChatbot(context.Background(), testCatalog(), testEmbedder(), gen, Options{IndexPath: filepath.Join(t.TempDir(), "idx.bin")})
	require.NoError(t, err)

	_, err = bot.GenerateResponse(context.Background(), "I feel relaxed")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChatbot_Status(t *testing.T) {
	bot, err := NewChatbot(context.Background(), testCatalog(), testEmbedder(), &fakeGenerator{}, Options{IndexPath: filepath.Join(t.TempDir(), "idx.bin")})
	require.NoError(t, err)

	assert.Equal(t, Status{
		State:          "ready",
		Songs:          3,
		IndexedVectors: 3,
		Dimension:      2,
		EmbeddingModel: "fake",
	}, bot.Status())
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt("rainy day", []models.SearchResult{
		{Song: models.Song{Genre: "lofi", Artist: "X", SongTitle: "Drizzle", Description: "soft rain beats"}},
		{Song: models.Song{Genre: "folk", Artist: "Y", SongTitle: "Puddles", Description: "acoustic and warm"}},
	})

	assert.Contains(t, prompt, "[User question]\nrainy day\n")
	assert.Contains(t, prompt, "- Genre: lofi, Artist: X, Title: Drizzle\n  Description: soft rain beats\n")
	assert.Contains(t, prompt, "- Genre: folk, Artist: Y, Title: Puddles\n  Description: acoustic and warm\n")
	assert.Less(t, strings.Index(prompt, "Drizzle"), strings.Index(prompt, "Puddles"))
}
