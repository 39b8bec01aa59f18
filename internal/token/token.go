package token

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Source generates 32 character lowercase hex tokens from random UUIDs.
// It is safe for concurrent use.
type Source struct {
	mu sync.Mutex
	r  io.Reader
}

// NewSource returns a Source reading entropy from r, or crypto/rand when r is nil.
func NewSource(r io.Reader) *Source {
	if r == nil {
		r = rand.Reader
	}
	return &Source{r: r}
}

// Next returns a fresh token. It falls back to the default uuid generator if
// the configured reader fails.
func (s *Source) Next() string {
	s.mu.Lock()
	id, err := uuid.NewRandomFromReader(s.r)
	s.mu.Unlock()
	if err != nil {
		id = uuid.New()
	}
	return strings.ReplaceAll(id.String(), "-", "")
}
