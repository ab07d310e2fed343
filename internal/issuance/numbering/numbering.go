// Package numbering assigns sequential legal numbers per case file and
// document type. A number is the next sequence rendered as "%03d/<opening>",
// for example 003/25. The field widens past 999 instead of wrapping, so
// sequence 1000 becomes 1000/25.
package numbering

import (
	"context"
	"fmt"

	"landdocs/internal/issuance/models"
)

// Sequencer is the slice of a ledger transaction the allocator needs.
type Sequencer interface {
	LockSequence(ctx context.Context, caseFileID string, t models.DocumentType) error
	MaxSequence(ctx context.Context, caseFileID string, t models.DocumentType) (int, error)
}

// MaxReader reads the highest assigned sequence without locking.
type MaxReader interface {
	MaxSequence(ctx context.Context, caseFileID string, t models.DocumentType) (int, error)
}

// Number is an assigned legal number.
type Number struct {
	Sequence int
	Legal    string
}

// Format renders seq against the case file opening number.
func Format(seq int, openingNumber string) string {
	return fmt.Sprintf("%03d/%s", seq, openingNumber)
}

// Allocation memoizes the number of one logical issuance. Retrying a step of
// the same issuance must not consume a second sequence.
type Allocation struct {
	caseFileID    string
	documentType  models.DocumentType
	openingNumber string
	number        *Number
}

func NewAllocation(caseFileID string, t models.DocumentType, openingNumber string) *Allocation {
	return &Allocation{caseFileID: caseFileID, documentType: t, openingNumber: openingNumber}
}

// Allocate takes the counting lock and returns MAX(sequence)+1. The caller
// must hold the scope lock and stay in the same transaction until insert,
// otherwise two issuances can read the same maximum.
func (a *Allocation) Allocate(ctx context.Context, seq Sequencer) (Number, error) {
	if a.number != nil {
		return *a.number, nil
	}
	policy, ok := models.PolicyFor(a.documentType)
	if !ok || !policy.Numbered {
		return Number{}, fmt.Errorf("allocate %s: %w", a.documentType, models.ErrNotNumbered)
	}
	if err := seq.LockSequence(ctx, a.caseFileID, a.documentType); err != nil {
		return Number{}, fmt.Errorf("lock sequence: %w", err)
	}
	highest, err := seq.MaxSequence(ctx, a.caseFileID, a.documentType)
	if err != nil {
		return Number{}, fmt.Errorf("read sequence: %w", err)
	}
	n := Number{Sequence: highest + 1, Legal: Format(highest+1, a.openingNumber)}
	a.number = &n
	return n, nil
}

// Allocated reports the memoized number, if any.
func (a *Allocation) Allocated() (Number, bool) {
	if a.number == nil {
		return Number{}, false
	}
	return *a.number, true
}

// Preview estimates the next number from committed state. It takes no lock
// and reserves nothing; a concurrent issuance may claim the number first.
func Preview(ctx context.Context, r MaxReader, caseFileID string, t models.DocumentType, openingNumber string) (string, error) {
	policy, ok := models.PolicyFor(t)
	if !ok || !policy.Numbered {
		return "", fmt.Errorf("preview %s: %w", t, models.ErrNotNumbered)
	}
	highest, err := r.MaxSequence(ctx, caseFileID, t)
	if err != nil {
		return "", fmt.Errorf("read sequence: %w", err)
	}
	return Format(highest+1, openingNumber), nil
}
