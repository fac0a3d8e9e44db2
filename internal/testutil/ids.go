package testutil

import (
	"fmt"
	"sync"
)

// FixedGenerator returns predictable identifiers for tests.
//
// IDs follow the pattern "<prefix>-1", "<prefix>-2", ... so assertions can
// name the exact timer or task they expect. Thread-safe via internal mutex.
type FixedGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewFixedGenerator creates a generator with the given prefix.
func NewFixedGenerator(prefix string) *FixedGenerator {
	return &FixedGenerator{prefix: prefix, next: 1}
}

// NewID returns the next identifier in sequence.
func (g *FixedGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	id := fmt.Sprintf("%s-%d", g.prefix, g.next)
	g.next++
	return id
}
