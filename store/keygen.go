package store

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// KeyGenerator assigns keys to new documents of a collection.
//
// Implementations must return keys of the form "<collection>/<suffix>" that
// are unique within a database and must be safe for concurrent use.
type KeyGenerator interface {
	GenerateKey(ctx context.Context, collection string) (string, error)
}

// UUIDKeyGenerator suffixes keys with a random UUID. It needs no
// coordination and is the default.
type UUIDKeyGenerator struct{}

// NewUUIDKeyGenerator creates a UUIDKeyGenerator.
func NewUUIDKeyGenerator() *UUIDKeyGenerator {
	return &UUIDKeyGenerator{}
}

// GenerateKey implements KeyGenerator.
func (g *UUIDKeyGenerator) GenerateKey(_ context.Context, collection string) (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return collection + "/" + id.String(), nil
}

// SequenceKeyGenerator numbers keys per collection starting at 1.
// Counters live in process memory, so keys are only unique when a single
// process writes the collection. See the hilo package for a shared counter.
type SequenceKeyGenerator struct {
	mu   sync.Mutex
	next map[string]int64
}

// NewSequenceKeyGenerator creates a SequenceKeyGenerator.
func NewSequenceKeyGenerator() *SequenceKeyGenerator {
	return &SequenceKeyGenerator{next: make(map[string]int64)}
}

// Seed makes the next key of collection start after last.
func (g *SequenceKeyGenerator) Seed(collection string, last int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next[collection] = last
}

// GenerateKey implements KeyGenerator.
func (g *SequenceKeyGenerator) GenerateKey(_ context.Context, collection string) (string, error) {
	g.mu.Lock()
	g.next[collection]++
	n := g.next[collection]
	g.mu.Unlock()
	return collection + "/" + strconv.FormatInt(n, 10), nil
}
