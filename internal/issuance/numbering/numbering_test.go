package numbering

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landdocs/internal/issuance/models"
)

type fakeSequencer struct {
	highest int
	locks   int
	reads   int
	err     error
}

func (f *fakeSequencer) LockSequence(context.Context, string, models.DocumentType) error {
	f.locks++
	return f.err
}

func (f *fakeSequencer) MaxSequence(context.Context, string, models.DocumentType) (int, error) {
	f.reads++
	return f.highest, nil
}

func TestFormat(t *testing.T) {
	tests := []struct {
		seq  int
		want string
	}{
		{1, "001/25"},
		{3, "003/25"},
		{42, "042/25"},
		{999, "999/25"},
		{1000, "1000/25"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(tt.seq, "25"))
		})
	}
}

func TestAllocate(t *testing.T) {
	ctx := context.Background()

	t.Run("next after highest", func(t *testing.T) {
		seq := &fakeSequencer{highest: 2}
		n, err := NewAllocation("C-1", models.Receipt, "25").Allocate(ctx, seq)
		require.NoError(t, err)
		assert.Equal(t, Number{Sequence: 3, Legal: "003/25"}, n)
		assert.Equal(t, 1, seq.locks)
	})

	t.Run("memoized within one issuance", func(t *testing.T) {
		seq := &fakeSequencer{}
		a := NewAllocation("C-1", models.Receipt, "25")
		first, err := a.Allocate(ctx, seq)
		require.NoError(t, err)
		seq.highest = 7
		second, err := a.Allocate(ctx, seq)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.Equal(t, 1, seq.reads)

		got, ok := a.Allocated()
		assert.True(t, ok)
		assert.Equal(t, "001/25", got.Legal)
	})

	t.Run("unnumbered type refuses", func(t *testing.T) {
		_, err := NewAllocation("C-1", models.SaleDeed, "25").Allocate(ctx, &fakeSequencer{})
		assert.ErrorIs(t, err, models.ErrNotNumbered)
	})

	t.Run("lock failure leaves nothing memoized", func(t *testing.T) {
		boom := errors.New("lock timeout")
		a := NewAllocation("C-1", models.Receipt, "25")
		_, err := a.Allocate(ctx, &fakeSequencer{err: boom})
		assert.ErrorIs(t, err, boom)
		_, ok := a.Allocated()
		assert.False(t, ok)
	})
}

func TestPreview(t *testing.T) {
	seq := &fakeSequencer{highest: 4}
	got, err := Preview(context.Background(), seq, "C-1", models.Receipt, "25")
	require.NoError(t, err)
	assert.Equal(t, "005/25", got)
	assert.Zero(t, seq.locks)

	_, err = Preview(context.Background(), seq, "C-1", models.Requisition, "25")
	assert.ErrorIs(t, err, models.ErrNotNumbered)
}
