package domain

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// IdentityGenerator asigna (id, createdAt) a los eventos en el momento del commit.
// Los ids son UUIDv7 y createdAt nunca retrocede, de modo que el orden de los ids
// coincide con el orden (createdAt, id).
type IdentityGenerator struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewIdentityGenerator recibe el reloj a usar; nil equivale a time.Now.
func NewIdentityGenerator(now func() time.Time) *IdentityGenerator {
	if now == nil {
		now = time.Now
	}
	return &IdentityGenerator{now: now}
}

func (g *IdentityGenerator) Next() (string, time.Time, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ts := g.now().UTC().Truncate(time.Millisecond)
	if ts.Before(g.last) {
		ts = g.last
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate event id: %w", err)
	}

	g.last = ts
	return id.String(), ts, nil
}
