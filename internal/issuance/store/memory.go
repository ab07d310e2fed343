package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"landdocs/internal/issuance/models"
	"landdocs/pkg/platform/sentinel"
)

// InMemory is a single-process ledger. Scope and sequence locks come from a
// keyed lock registry so unrelated scopes never wait on each other. Writes
// are staged per transaction and applied atomically at commit, where the
// one-ACTIVE-per-scope rule is checked again.
type InMemory struct {
	mu      sync.RWMutex
	records map[string]*models.DocumentRecord
	locks   *keyedLocker
	opts    options
}

func NewInMemory(opts ...Option) *InMemory {
	return &InMemory{
		records: make(map[string]*models.DocumentRecord),
		locks:   newKeyedLocker(),
		opts:    buildOptions(opts),
	}
}

// RunInTx runs fn as one unit of work. Any error from fn, or cancellation of
// ctx before commit, discards every staged write and releases the locks.
func (s *InMemory) RunInTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.txTimeout)
		defer cancel()
	}

	tx := &memTx{
		s:        s,
		staged:   make(map[string]*models.DocumentRecord),
		released: make(map[string]string),
		held:     make(map[string]bool),
	}
	defer tx.releaseAll()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return s.commit(tx)
}

func (s *InMemory) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range tx.order {
		rec := tx.staged[id]
		if !rec.IsActive() {
			continue
		}
		scope := rec.ScopeKey.String()
		for otherID, other := range s.records {
			if otherID == id || !other.IsActive() || other.ScopeKey.String() != scope {
				continue
			}
			if staged, ok := tx.staged[otherID]; ok && !staged.IsActive() {
				continue
			}
			return fmt.Errorf("commit document %s: %w", id, sentinel.ErrConflict)
		}
	}
	for _, id := range tx.order {
		s.records[id] = tx.staged[id]
	}
	// Released references are applied to the committed row, not a staged
	// copy, since the dependent record's scope is not locked by this tx.
	for id, ref := range tx.released {
		if cur, ok := s.records[id]; ok && cur.ReferenceID == ref {
			c := cur.Clone()
			c.ReferenceID = ""
			s.records[id] = c
		}
	}
	return nil
}

// FindByID reads committed state outside any transaction.
func (s *InMemory) FindByID(_ context.Context, id string) (*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	return rec.Clone(), nil
}

// ListByCaseFile returns every record of the case file, history included,
// ordered by creation time.
func (s *InMemory) ListByCaseFile(_ context.Context, caseFileID string) ([]*models.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.DocumentRecord
	for _, rec := range s.records {
		if rec.ScopeKey.CaseFileID == caseFileID {
			out = append(out, rec.Clone())
		}
	}
	sortRecords(out)
	return out, nil
}

// MaxSequence reads committed state without locking. Only advisory callers
// use it; allocation goes through Tx.MaxSequence under the sequence lock.
func (s *InMemory) MaxSequence(_ context.Context, caseFileID string, t models.DocumentType) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	highest := 0
	for _, rec := range s.records {
		if rec.ScopeKey.CaseFileID == caseFileID && rec.DocumentType == t && rec.Sequence > highest {
			highest = rec.Sequence
		}
	}
	return highest, nil
}

type memTx struct {
	s        *InMemory
	staged   map[string]*models.DocumentRecord
	order    []string
	released map[string]string
	held     map[string]bool
}

func (t *memTx) lock(ctx context.Context, key string) error {
	if t.held[key] {
		return nil
	}
	if err := t.s.locks.acquire(ctx, key, t.s.opts.lockTimeout); err != nil {
		return err
	}
	t.held[key] = true
	return nil
}

func (t *memTx) releaseAll() {
	for key := range t.held {
		t.s.locks.release(key)
	}
	t.held = nil
}

// view returns committed records overlaid with this transaction's writes.
func (t *memTx) view() map[string]*models.DocumentRecord {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make(map[string]*models.DocumentRecord, len(t.s.records)+len(t.staged))
	for id, rec := range t.s.records {
		out[id] = rec
	}
	for id, rec := range t.staged {
		out[id] = rec
	}
	for id := range t.released {
		if rec, ok := out[id]; ok {
			c := rec.Clone()
			c.ReferenceID = ""
			out[id] = c
		}
	}
	return out
}

func (t *memTx) get(id string) (*models.DocumentRecord, error) {
	if rec, ok := t.staged[id]; ok {
		return rec.Clone(), nil
	}
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	rec, ok := t.s.records[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	c := rec.Clone()
	if _, ok := t.released[id]; ok {
		c.ReferenceID = ""
	}
	return c, nil
}

func (t *memTx) stage(rec *models.DocumentRecord) {
	if _, ok := t.staged[rec.ID]; !ok {
		t.order = append(t.order, rec.ID)
	}
	t.staged[rec.ID] = rec
}

func (t *memTx) getActive(id string) (*models.DocumentRecord, error) {
	rec, err := t.get(id)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive() {
		return nil, fmt.Errorf("document %s is %s: %w", id, rec.Status, sentinel.ErrInvalidState)
	}
	return rec, nil
}

func (t *memTx) FindActive(ctx context.Context, key models.ScopeKey, forUpdate bool) (*models.DocumentRecord, error) {
	if forUpdate {
		if err := t.lock(ctx, "scope|"+key.String()); err != nil {
			return nil, err
		}
	}
	scope := key.String()
	for _, rec := range t.view() {
		if rec.IsActive() && rec.ScopeKey.String() == scope {
			return rec.Clone(), nil
		}
	}
	return nil, fmt.Errorf("active document for %s: %w", scope, sentinel.ErrNotFound)
}

func (t *memTx) FindByID(_ context.Context, id string) (*models.DocumentRecord, error) {
	return t.get(id)
}

func (t *memTx) LockSequence(ctx context.Context, caseFileID string, dt models.DocumentType) error {
	return t.lock(ctx, models.SequenceKey(caseFileID, dt))
}

func (t *memTx) MaxSequence(_ context.Context, caseFileID string, dt models.DocumentType) (int, error) {
	highest := 0
	for _, rec := range t.view() {
		if rec.ScopeKey.CaseFileID == caseFileID && rec.DocumentType == dt && rec.Sequence > highest {
			highest = rec.Sequence
		}
	}
	return highest, nil
}

func (t *memTx) CountRecords(_ context.Context, caseFileID string, dt models.DocumentType, statuses ...models.Status) (int, error) {
	n := 0
	for _, rec := range t.view() {
		if rec.ScopeKey.CaseFileID == caseFileID && rec.DocumentType == dt && statusIn(rec.Status, statuses) {
			n++
		}
	}
	return n, nil
}

func (t *memTx) Insert(_ context.Context, rec *models.DocumentRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("insert document: empty id")
	}
	view := t.view()
	if _, exists := view[rec.ID]; exists {
		return fmt.Errorf("insert document %s: %w", rec.ID, sentinel.ErrConflict)
	}
	if rec.IsActive() {
		scope := rec.ScopeKey.String()
		for _, other := range view {
			if other.IsActive() && other.ScopeKey.String() == scope {
				return fmt.Errorf("insert document %s: active %s already holds scope: %w", rec.ID, other.ID, sentinel.ErrConflict)
			}
		}
	}
	t.stage(rec.Clone())
	return nil
}

func (t *memTx) UpdateArtifact(_ context.Context, id, ref string, snap models.Snapshot, at time.Time) error {
	rec, err := t.getActive(id)
	if err != nil {
		return fmt.Errorf("update artifact: %w", err)
	}
	rec.ArtifactRef = ref
	rec.Snapshot = snap.Clone()
	rec.RegenerationCount++
	rec.LastRegeneratedAt = &at
	t.stage(rec)
	return nil
}

func (t *memTx) IncrementDownloads(_ context.Context, id string) error {
	rec, err := t.getActive(id)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	rec.DownloadCount++
	t.stage(rec)
	return nil
}

func (t *memTx) MarkSuperseded(_ context.Context, id, successorID string) error {
	rec, err := t.getActive(id)
	if err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}
	rec.Status = models.StatusSuperseded
	rec.SupersededBy = successorID
	t.stage(rec)
	return nil
}

func (t *memTx) MarkDeleted(_ context.Context, id, actorID string, at time.Time) error {
	rec, err := t.getActive(id)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}
	rec.Status = models.StatusDeleted
	rec.DeletedAt = &at
	rec.DeletedBy = actorID
	t.stage(rec)
	return nil
}

func (t *memTx) ReleaseReferences(_ context.Context, referenceID string) (int, error) {
	if referenceID == "" {
		return 0, nil
	}
	n := 0
	for id, rec := range t.view() {
		if rec.ReferenceID != referenceID {
			continue
		}
		if staged, ok := t.staged[id]; ok {
			staged.ReferenceID = ""
		} else {
			t.released[id] = referenceID
		}
		n++
	}
	return n, nil
}

func sortRecords(rs []*models.DocumentRecord) {
	sort.SliceStable(rs, func(i, j int) bool {
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.Before(rs[j].CreatedAt)
		}
		return rs[i].ID < rs[j].ID
	})
}
