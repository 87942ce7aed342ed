package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"log"
	"math"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SimpleModel is the local feature-hashing model; it needs no server.
const SimpleModel = "simple"

const simpleDimension = 128

// TextEmbedder turns text into fixed-dimension vectors.
type TextEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	// EmbedMany preserves input order.
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// handle embedding generation via Ollama, or locally for the simple model
type Embedder struct {
	BaseURL string
	Model   string
	Client  *http.Client

	dimension int
	// Ollama inference is serialized; concurrent requests share one model.
	mu sync.Mutex
}

// NewEmbedder prepares the model once. For Ollama models it checks the
// server and probes the model to learn its dimension.
func NewEmbedder(ctx context.Context, baseURL, model string, timeout time.Duration) (*Embedder, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	e := &Embedder{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Model:   model,
		Client: &http.Client{
			Timeout: timeout,
		},
	}

	if e.Model == SimpleModel {
		e.dimension = simpleDimension
		log.Printf("Using simple embedding model (%d dimensions)", e.dimension)
		return e, nil
	}

	if err := e.TestConnection(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrModelLoad, err)
	}
	probe, err := e.ollamaEmbedding(ctx, "model warmup")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelLoad, e.Model, err)
	}
	e.dimension = len(probe)
	log.Printf("Loaded embedding model %s via Ollama (%d dimensions)", e.Model, e.dimension)
	return e, nil
}

func (e *Embedder) Dimension() int { return e.dimension }

func (e *Embedder) ModelName() string { return e.Model }

type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	text = cleanText(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if e.Model == SimpleModel {
		return generateSimpleEmbedding(text), nil
	}
	return e.ollamaEmbedding(ctx, text)
}

func (e *Embedder) ollamaEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	jsonData, err := json.Marshal(OllamaEmbedRequest{Model: e.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/embeddings", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var embedResp OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("received empty embedding from ollama")
	}

	return embedResp.Embedding, nil
}

// generateSimpleEmbedding hashes word counts into a fixed number of buckets
// and L2-normalizes the result. Identical text gives identical vectors.
func generateSimpleEmbedding(text string) []float32 {
	text = strings.ToLower(text)
	words := strings.Fields(text)

	embedding := make([]float32, simpleDimension)

	wordCounts := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) > 0 {
			wordCounts[word]++
		}
	}
	if len(wordCounts) == 0 {
		return embedding
	}

	for word, count := range wordCounts {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		pos := h.Sum32() % simpleDimension
		embedding[pos] += float32(count) / float32(len(words))
	}

	var norm float64
	for _, val := range embedding {
		norm += float64(val) * float64(val)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range embedding {
			embedding[i] /= n
		}
	}

	return embedding
}

// EmbedMany embeds texts in order. The simple model fans out over a bounded
// errgroup; Ollama requests go one at a time.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	log.Printf("Starting batch embedding generation for %d texts (model: %s)", len(texts), e.Model)
	startTime := time.Now()
	embeddings := make([][]float32, len(texts))

	for i, text := range texts {
		if cleanText(text) == "" {
			return nil, fmt.Errorf("text %d: %w", i, ErrEmptyText)
		}
	}

	if e.Model == SimpleModel {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.NumCPU())
		for i := range texts {
			i := i
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return err
				}
				embeddings[i] = generateSimpleEmbedding(cleanText(texts[i]))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		log.Printf("All %d embeddings generated in %v", len(texts), time.Since(startTime))
		return embeddings, nil
	}

	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if i%10 == 0 && i > 0 {
			log.Printf("Progress: %d/%d embeddings generated...", i, len(texts))
		}

		embedding, err := e.ollamaEmbedding(ctx, cleanText(text))
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding for text %d: %w", i, err)
		}
		embeddings[i] = embedding
	}

	log.Printf("All %d embeddings generated successfully in %v", len(texts), time.Since(startTime))
	return embeddings, nil
}

func (e *Embedder) TestConnection(ctx context.Context) error {
	// simple mode, runs locally
	if e.Model == SimpleModel {
		return nil
	}

	url := fmt.Sprintf("%s/api/tags", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := e.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API returned status %d", resp.StatusCode)
	}

	return nil
}
