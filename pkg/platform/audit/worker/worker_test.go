package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	audit "landdocs/pkg/platform/audit"
	"landdocs/pkg/platform/audit/store/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutbox struct {
	pending []audit.Event
	calls   int
}

func (f *fakeOutbox) Relay(ctx context.Context, limit int, publish func(context.Context, audit.Event) error) (int, error) {
	f.calls++
	n := 0
	for len(f.pending) > 0 && n < limit {
		if err := publish(ctx, f.pending[0]); err != nil {
			return n, err
		}
		f.pending = f.pending[1:]
		n++
	}
	return n, nil
}

func TestWorker_RunOnceForwardsBatch(t *testing.T) {
	outbox := &fakeOutbox{pending: []audit.Event{
		{DocumentID: "a", Kind: audit.EventDocumentGenerated},
		{DocumentID: "b", Kind: audit.EventDocumentGenerated},
		{DocumentID: "c", Kind: audit.EventDocumentDeleted},
	}}
	sink := memory.NewInMemoryStore()
	w := NewWorker(outbox, sink, nil, time.Millisecond, 2)

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err := sink.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].DocumentID)
	assert.Len(t, outbox.pending, 1)
}

func TestWorker_RunDrainsUntilCancelled(t *testing.T) {
	outbox := &fakeOutbox{}
	for range 5 {
		outbox.pending = append(outbox.pending, audit.Event{DocumentID: "doc", Kind: audit.EventDocumentDownloaded})
	}
	sink := memory.NewInMemoryStore()
	w := NewWorker(outbox, sink, nil, 5*time.Millisecond, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := w.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	events, err := sink.ListByDocument(context.Background(), "doc")
	require.NoError(t, err)
	assert.Len(t, events, 5)
}

type brokenSink struct{}

func (brokenSink) Append(context.Context, audit.Event) error { return errors.New("broker down") }

func TestWorker_SinkFailureLeavesEntriesPending(t *testing.T) {
	outbox := &fakeOutbox{pending: []audit.Event{{DocumentID: "a"}}}
	w := NewWorker(outbox, brokenSink{}, nil, time.Millisecond, 10)

	n, err := w.RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, n)
	assert.Len(t, outbox.pending, 1)
}
