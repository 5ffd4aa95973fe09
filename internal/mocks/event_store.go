package mocks

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/davicafu/doorbell/internal/event/domain"
	sharedQuery "github.com/davicafu/doorbell/shared/platform/query"
)

// InMemoryEventStore simula EventStore con la misma semántica de orden que los backends reales.
type InMemoryEventStore struct {
	Events map[string]*domain.Event
	ids    *domain.IdentityGenerator
	mu     sync.Mutex

	// CommitErr fuerza un fallo de I/O en Commit.
	CommitErr error
	// GetCalls cuenta las lecturas que llegan al store.
	GetCalls int
}

var _ domain.EventStore = (*InMemoryEventStore)(nil)

func NewInMemoryEventStore() *InMemoryEventStore {
	return NewInMemoryEventStoreWithClock(nil)
}

func NewInMemoryEventStoreWithClock(now func() time.Time) *InMemoryEventStore {
	return NewInMemoryEventStoreWithIDs(domain.NewIdentityGenerator(now))
}

func NewInMemoryEventStoreWithIDs(ids *domain.IdentityGenerator) *InMemoryEventStore {
	return &InMemoryEventStore{
		Events: make(map[string]*domain.Event),
		ids:    ids,
	}
}

func (s *InMemoryEventStore) Commit(ctx context.Context, d domain.Draft) (*domain.Event, error) {
	if err := d.Validate(0); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CommitErr != nil {
		return nil, s.CommitErr
	}

	id, ts, err := s.ids.Next()
	if err != nil {
		return nil, err
	}
	e := d.Seal(id, ts)
	s.Events[id] = e
	return e, nil
}

func (s *InMemoryEventStore) Get(ctx context.Context, id string) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++
	e, ok := s.Events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return e, nil
}

func (s *InMemoryEventStore) List(ctx context.Context, page sharedQuery.CursorPagination) ([]domain.EventMeta, error) {
	page = page.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*domain.Event, 0, len(s.Events))
	for _, e := range s.Events {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return newer(all[i], all[j]) })

	var cursor *domain.Event
	if page.BeforeID != "" {
		c, ok := s.Events[page.BeforeID]
		if !ok {
			return nil, domain.ErrEventNotFound
		}
		cursor = c
	}

	out := make([]domain.EventMeta, 0, page.Limit)
	for _, e := range all {
		if cursor != nil && !newer(cursor, e) {
			continue
		}
		if !page.BeforeTime.IsZero() && !e.CreatedAt.Before(page.BeforeTime) {
			continue
		}
		if page.Kind != "" && string(e.Kind) != page.Kind {
			continue
		}
		out = append(out, e.Meta())
		if len(out) == page.Limit {
			break
		}
	}
	return out, nil
}

func (s *InMemoryEventStore) DeleteAll(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.Events))
	s.Events = make(map[string]*domain.Event)
	return n, nil
}

func (s *InMemoryEventStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Events)
}

// newer ordena por (createdAt desc, id desc).
func newer(a, b *domain.Event) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// MockEventStore es un mock de testify para forzar respuestas concretas.
type MockEventStore struct {
	mock.Mock
}

var _ domain.EventStore = (*MockEventStore)(nil)

func (m *MockEventStore) Commit(ctx context.Context, d domain.Draft) (*domain.Event, error) {
	args := m.Called(ctx, d)
	e, _ := args.Get(0).(*domain.Event)
	return e, args.Error(1)
}

func (m *MockEventStore) List(ctx context.Context, page sharedQuery.CursorPagination) ([]domain.EventMeta, error) {
	args := m.Called(ctx, page)
	metas, _ := args.Get(0).([]domain.EventMeta)
	return metas, args.Error(1)
}

func (m *MockEventStore) Get(ctx context.Context, id string) (*domain.Event, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*domain.Event)
	return e, args.Error(1)
}

func (m *MockEventStore) DeleteAll(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}
