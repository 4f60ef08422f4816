// Package tokenizer provides deterministic token counting under named
// tokenizers. The chunker and the context builder must count with the same
// tokenizer family the embedding and generation providers use.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter counts and truncates text under one fixed tokenizer.
type Counter interface {
	Name() string
	Count(text string) int
	// Truncate returns the longest prefix of text whose token count does not
	// exceed maxTokens. Truncation is right-side and token-aligned.
	Truncate(text string, maxTokens int) string
}

// UnavailableError is returned when the requested tokenizer is not
// registered and cannot be loaded.
type UnavailableError struct {
	Name string
	Err  error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("tokenizer %q unavailable: %v", e.Name, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

var (
	mu       sync.RWMutex
	registry = map[string]Counter{}
)

func init() {
	Register(heuristicCounter{})
}

// Register makes a counter available under its name.
func Register(c Counter) {
	mu.Lock()
	defer mu.Unlock()
	registry[c.Name()] = c
}

// Get returns the counter registered under name. Unregistered BPE encodings
// known to tiktoken are loaded lazily and cached.
func Get(name string) (Counter, error) {
	mu.RLock()
	c, ok := registry[name]
	mu.RUnlock()
	if ok {
		return c, nil
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, &UnavailableError{Name: name, Err: err}
	}

	c = &bpeCounter{name: name, enc: enc}
	Register(c)
	return c, nil
}

// bpeCounter wraps a tiktoken encoding.
type bpeCounter struct {
	name string
	enc  *tiktoken.Tiktoken
}

func (c *bpeCounter) Name() string { return c.name }

func (c *bpeCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}

func (c *bpeCounter) Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return ""
	}
	ids := c.enc.Encode(text, nil, nil)
	if len(ids) <= maxTokens {
		return text
	}
	return c.enc.Decode(ids[:maxTokens])
}
