package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Seungwon-Robin/Chatbot/models"
	"github.com/Seungwon-Robin/Chatbot/storage"
)

type State int32

const (
	StateLoading State = iota
	StateReady
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Options struct {
	// IndexPath is where the similarity index is read from or written to.
	IndexPath string
	TopK      int
}

// Status is a point-in-time summary used by the health endpoint.
type Status struct {
	State          string `json:"state"`
	Songs          int    `json:"songs"`
	IndexedVectors int    `json:"indexed_vectors"`
	Dimension      int    `json:"dimension"`
	EmbeddingModel string `json:"embedding_model"`
}

// Chatbot answers song recommendation queries from the catalog.
type Chatbot struct {
	catalog   *storage.Catalog
	embedder  TextEmbedder
	generator ResponseGenerator
	retriever *Retriever
	indexPath string
	topK      int

	state atomic.Int32
	index *FlatIndex
}

// NewChatbot loads the persisted index, or builds and saves it when the file
// does not exist yet. Any failure is returned as *StartupError.
func NewChatbot(ctx context.Context, catalog *storage.Catalog, embedder TextEmbedder, generator ResponseGenerator, opts Options) (*Chatbot, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	c := &Chatbot{
		catalog:   catalog,
		embedder:  embedder,
		generator: generator,
		retriever: NewRetriever(embedder, catalog, topK),
		indexPath: opts.IndexPath,
		topK:      topK,
	}
	c.state.Store(int32(StateLoading))

	if err := c.setupIndex(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Chatbot) setupIndex(ctx context.Context) error {
	_, err := os.Stat(c.indexPath)
	switch {
	case err == nil:
		log.Printf("Loading saved index from %s...", c.indexPath)
		index, err := LoadIndex(c.indexPath)
		if err != nil {
			return &StartupError{Stage: "index load", Err: err}
		}
		if dim := c.embedder.Dimension(); dim > 0 && dim != index.Dimension() {
			return &StartupError{Stage: "index load", Err: fmt.Errorf("%w: index has dimension %d, embedding model %s has %d; delete %s to rebuild",
				ErrDimensionMismatch, index.Dimension(), c.embedder.ModelName(), dim, c.indexPath)}
		}
		if index.Len() != c.catalog.Len() {
			// no content check is done; a stale index is only reported
			log.Printf("Warning: index has %d vectors but catalog has %d songs; rebuild by deleting %s", index.Len(), c.catalog.Len(), c.indexPath)
		}
		c.markReady(index)
		log.Printf("Index loaded (%d vectors, %d dimensions)", index.Len(), index.Dimension())
		return nil
	case errors.Is(err, os.ErrNotExist):
		return c.buildIndex(ctx)
	default:
		return &StartupError{Stage: "index lookup", Err: err}
	}
}

func (c *Chatbot) buildIndex(ctx context.Context) error {
	log.Printf("Building a new index for %d songs (this may take a while)...", c.catalog.Len())
	startTime := time.Now()

	descriptions, err := c.catalog.Column(storage.ColumnDescription)
	if err != nil {
		return &StartupError{Stage: "catalog", Err: err}
	}

	embeddings, err := c.embedder.EmbedMany(ctx, descriptions)
	if err != nil {
		return &StartupError{Stage: "embedding", Err: err}
	}
	if len(embeddings) != len(descriptions) {
		return &StartupError{Stage: "embedding", Err: fmt.Errorf("got %d embeddings for %d descriptions", len(embeddings), len(descriptions))}
	}

	index, err := BuildIndex(embeddings)
	if err != nil {
		return &StartupError{Stage: "index build", Err: err}
	}

	log.Printf("Saving index to %s...", c.indexPath)
	if err := index.Save(c.indexPath); err != nil {
		return &StartupError{Stage: "index save", Err: err}
	}

	c.markReady(index)
	log.Printf("Index built and saved in %v (%d vectors, %d dimensions)", time.Since(startTime), index.Len(), index.Dimension())
	return nil
}

func (c *Chatbot) markReady(index *FlatIndex) {
	c.index = index
	c.retriever.SetIndex(index)
	c.state.Store(int32(StateReady))
}

func (c *Chatbot) State() State { return State(c.state.Load()) }

func (c *Chatbot) Retriever() *Retriever { return c.retriever }

func (c *Chatbot) Status() Status {
	s := Status{
		State:          c.State().String(),
		Songs:          c.catalog.Len(),
		EmbeddingModel: c.embedder.ModelName(),
	}
	if c.index != nil {
		s.IndexedVectors = c.index.Len()
		s.Dimension = c.index.Dimension()
	}
	return s
}

// GenerateResponse retrieves the closest songs and asks the generator to
// recommend one of them.
func (c *Chatbot) GenerateResponse(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}

	results, err := c.retriever.Retrieve(ctx, query, c.topK)
	if err != nil {
		return "", err
	}

	answer, err := c.generator.Generate(ctx, BuildPrompt(query, results))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return answer, nil
}

// BuildContext renders retrieved songs in the fixed per-song template.
func BuildContext(results []models.SearchResult) string {
	var sb strings.Builder
	for _, r := range results {
		fmt.Fprintf(&sb, "- Genre: %s, Artist: %s, Title: %s\n  Description: %s\n",
			r.Song.Genre, r.Song.Artist, r.Song.SongTitle, r.Song.Description)
	}
	return sb.String()
}

// BuildPrompt assembles the instruction prompt sent to the generator.
func BuildPrompt(query string, results []models.SearchResult) string {
	var sb strings.Builder

	sb.WriteString("You are a music expert who recommends songs that fit the user's mood or situation.\n")
	sb.WriteString("Using the retrieved song information below, recommend the most suitable song for the user's question.\n")
	sb.WriteString("When recommending, briefly explain why you chose the song.\n\n")

	sb.WriteString("[User question]\n")
	sb.WriteString(query)
	sb.WriteString("\n\n")

	sb.WriteString("[Retrieved songs]\n")
	sb.WriteString(BuildContext(results))
	sb.WriteString("\n")

	sb.WriteString("[Answer]\n")
	return sb.String()
}
