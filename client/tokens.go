package client

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates how many tokens text occupies for model.
type TokenCounter interface {
	Count(model, text string) int
}

// tiktokenCounter caches one encoding per model. When no encoding can be loaded
// it falls back to a four-characters-per-token estimate.
type tiktokenCounter struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
}

func newTiktokenCounter() *tiktokenCounter {
	return &tiktokenCounter{encodings: make(map[string]*tiktoken.Tiktoken)}
}

func (t *tiktokenCounter) encoding(model string) *tiktoken.Tiktoken {
	t.mu.Lock()
	defer t.mu.Unlock()

	if enc, ok := t.encodings[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	t.encodings[model] = enc
	return enc
}

func (t *tiktokenCounter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := t.encoding(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(text)/4 + 1
}
