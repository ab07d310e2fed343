// Package memory keeps audit events in process. It backs the memory
// deployment and the publisher and worker tests.
package memory

import (
	"context"
	"slices"
	"sync"

	audit "landdocs/pkg/platform/audit"
)

type InMemoryStore struct {
	mu  sync.RWMutex
	log []audit.Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Append records event, filling Category from Kind when unset the same way
// the outbox and Kafka sinks do.
func (s *InMemoryStore) Append(_ context.Context, event audit.Event) error {
	if event.Category == "" {
		event.Category = event.Kind.Category()
	}
	s.mu.Lock()
	s.log = append(s.log, event)
	s.mu.Unlock()
	return nil
}

func (s *InMemoryStore) ListByDocument(_ context.Context, documentID string) ([]audit.Event, error) {
	return s.filter(func(e audit.Event) bool { return e.DocumentID == documentID }), nil
}

func (s *InMemoryStore) ListByCategory(_ context.Context, category audit.EventCategory) ([]audit.Event, error) {
	return s.filter(func(e audit.Event) bool { return e.Category == category }), nil
}

// ListAll returns every event in append order.
func (s *InMemoryStore) ListAll(_ context.Context) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.log), nil
}

func (s *InMemoryStore) filter(keep func(audit.Event) bool) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []audit.Event{}
	for _, e := range s.log {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
