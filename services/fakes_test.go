package services

import (
	"context"
	"errors"
	"sync"
)

// fakeEmbedder maps known texts to fixed vectors and counts calls.
type fakeEmbedder struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	dim       int
	manyErr   error
	oneCalls  int
	manyCalls int
}

func newFakeEmbedder(vectors map[string][]float32) *fakeEmbedder {
	dim := 0
	for _, v := range vectors {
		dim = len(v)
		break
	}
	return &fakeEmbedder{vectors: vectors, dim: dim}
}

func (f *fakeEmbedder) lookup(text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	v, ok := f.vectors[text]
	if !ok {
		return nil, errors.New("fake embedder: unknown text " + text)
	}
	return append([]float32(nil), v...), nil
}

func (f *fakeEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.oneCalls++
	f.mu.Unlock()
	return f.lookup(text)
}

func (f *fakeEmbedder) EmbedMany(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.manyCalls++
	f.mu.Unlock()
	if f.manyErr != nil {
		return nil, f.manyErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := f.lookup(text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int    { return f.dim }
func (f *fakeEmbedder) ModelName() string { return "fake" }

func (f *fakeEmbedder) calls() (one, many int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.oneCalls, f.manyCalls
}

// fakeGenerator records the last prompt.
type fakeGenerator struct {
	answer string
	err    error
	prompt string
	calls  int
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}
