// Package publisher delivers audit events to a Store after the business
// operation has committed.
//
// Synchronous mode (the default) writes inline and returns the store error.
// Async mode queues into a bounded buffer drained by one goroutine; Emit
// never blocks longer than the caller's context, and Close drains what is
// left.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	audit "landdocs/pkg/platform/audit"
	"landdocs/pkg/requestcontext"
)

var errBufferFull = errors.New("audit buffer full")

// ErrClosed is returned by Emit once Close has been called.
var ErrClosed = errors.New("audit publisher closed")

// Publisher fans audit events into a store.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
	breaker *CircuitBreaker

	// mu guards closed against a concurrent send on buffer.
	mu     sync.RWMutex
	closed bool
	buffer chan audit.Event
	wg     sync.WaitGroup
	once   sync.Once
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches to async delivery with a buffer of size n.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.buffer = make(chan audit.Event, n)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithCircuitBreaker drops events without touching the store while the
// breaker is open.
func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(p *Publisher) {
		p.breaker = cb
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit persists or enqueues an event. A zero timestamp is set to now.
// After Close the event is dropped and ErrClosed returned.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = event.Kind.Category()
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		if p.metrics != nil {
			p.metrics.IncDropped()
		}
		return fmt.Errorf("%w: dropped %s", ErrClosed, event.Kind)
	}
	if p.buffer == nil {
		return p.persist(ctx, event)
	}

	select {
	case p.buffer <- event:
		return nil
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.metrics != nil {
		p.metrics.IncDropped()
	}
	return errBufferFull
}

// Record builds an event from request context and emits it. Errors are
// logged, never returned: audit delivery does not roll back a committed
// issuance.
func (p *Publisher) Record(ctx context.Context, kind audit.EventKind, documentID, caseFileID, actorID string, fields map[string]string) {
	event := audit.Event{
		Kind:       kind,
		Timestamp:  requestcontext.Now(ctx),
		DocumentID: documentID,
		CaseFileID: caseFileID,
		ActorID:    actorID,
		RequestID:  requestcontext.RequestID(ctx),
		Fields:     fields,
	}
	if err := p.Emit(ctx, event); err != nil && p.logger != nil {
		p.logger.WarnContext(ctx, "audit event not recorded",
			"kind", kind,
			"document_id", documentID,
			"error", err,
		)
	}
}

// List returns stored events for a document when the store can read.
func (p *Publisher) List(ctx context.Context, documentID string) ([]audit.Event, error) {
	r, ok := p.store.(audit.Reader)
	if !ok {
		return nil, fmt.Errorf("audit store %T does not support listing", p.store)
	}
	return r.ListByDocument(ctx, documentID)
}

// Close stops accepting events and waits for the async buffer to drain.
// It waits for in-flight synchronous writes too.
func (p *Publisher) Close() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		if p.buffer != nil {
			close(p.buffer)
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.buffer {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.persist(ctx, event); err != nil && p.logger != nil {
			p.logger.Error("async audit persist failed",
				"kind", event.Kind,
				"document_id", event.DocumentID,
				"error", err,
			)
		}
		cancel()
	}
}

func (p *Publisher) persist(ctx context.Context, event audit.Event) error {
	if p.breaker != nil && !p.breaker.Allow() {
		if p.metrics != nil {
			p.metrics.IncCircuitBreakerDropped()
		}
		return fmt.Errorf("audit circuit open: dropped %s", event.Kind)
	}

	start := time.Now()
	err := p.store.Append(ctx, event)
	if p.breaker != nil {
		if err != nil {
			p.breaker.RecordFailure()
		} else {
			p.breaker.RecordSuccess()
		}
		if p.metrics != nil {
			p.metrics.SetCircuitBreakerState(p.breaker.IsOpen())
		}
	}
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncPersistFailures()
		}
		return fmt.Errorf("append audit event: %w", err)
	}
	if p.metrics != nil {
		p.metrics.ObservePersistDuration(time.Since(start).Seconds())
		p.metrics.IncEmitted(event.Category)
	}
	return nil
}
