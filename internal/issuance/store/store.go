// Package store is the document ledger. Every mutation happens inside
// RunInTx; the scope lock taken by FindActive(forUpdate=true) is held until
// the callback returns and the transaction commits or rolls back.
//
// Errors are infrastructure facts from pkg/platform/sentinel:
//   - ErrNotFound: no such record, or no ACTIVE record for the scope
//   - ErrConflict: a write would create a second ACTIVE record for a scope
//   - ErrInvalidState: the record is not ACTIVE
//   - ErrLockTimeout: a scope or sequence lock was not granted in time
package store

import (
	"context"
	"time"

	"landdocs/internal/issuance/models"
)

// Tx is the set of ledger operations available inside one transaction.
type Tx interface {
	// FindActive returns the ACTIVE record for key. With forUpdate it first
	// takes the scope's exclusive lock, even when no record exists yet.
	FindActive(ctx context.Context, key models.ScopeKey, forUpdate bool) (*models.DocumentRecord, error)
	FindByID(ctx context.Context, id string) (*models.DocumentRecord, error)
	// LockSequence takes the per (case file, type) counting lock. Callers
	// must already hold the scope lock.
	LockSequence(ctx context.Context, caseFileID string, t models.DocumentType) error
	// MaxSequence is the highest sequence ever assigned, deleted records
	// included.
	MaxSequence(ctx context.Context, caseFileID string, t models.DocumentType) (int, error)
	// CountRecords counts records in any of statuses; no statuses means all.
	CountRecords(ctx context.Context, caseFileID string, t models.DocumentType, statuses ...models.Status) (int, error)
	Insert(ctx context.Context, rec *models.DocumentRecord) error
	UpdateArtifact(ctx context.Context, id, ref string, snap models.Snapshot, at time.Time) error
	IncrementDownloads(ctx context.Context, id string) error
	MarkSuperseded(ctx context.Context, id, successorID string) error
	MarkDeleted(ctx context.Context, id, actorID string, at time.Time) error
	// ReleaseReferences clears ReferenceID on every record pointing at id.
	ReleaseReferences(ctx context.Context, referenceID string) (int, error)
}

const (
	defaultLockTimeout = 3 * time.Second
	defaultTxTimeout   = 10 * time.Second
)

type options struct {
	lockTimeout time.Duration
	txTimeout   time.Duration
}

// Option configures either store implementation.
type Option func(*options)

// WithLockTimeout bounds how long a scope or sequence lock is waited for.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// WithTxTimeout bounds a whole transaction when the caller set no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.txTimeout = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{lockTimeout: defaultLockTimeout, txTimeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func statusIn(s models.Status, statuses []models.Status) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if s == want {
			return true
		}
	}
	return false
}
