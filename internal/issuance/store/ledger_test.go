package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"landdocs/internal/issuance/models"
	"landdocs/internal/issuance/store"
	"landdocs/pkg/platform/sentinel"
)

type ledger interface {
	RunInTx(ctx context.Context, fn func(store.Tx) error) error
	FindByID(ctx context.Context, id string) (*models.DocumentRecord, error)
	ListByCaseFile(ctx context.Context, caseFileID string) ([]*models.DocumentRecord, error)
	MaxSequence(ctx context.Context, caseFileID string, t models.DocumentType) (int, error)
}

// ledgerSuite runs the same behavioural checks against every Tx
// implementation. Embedders set newLedger.
type ledgerSuite struct {
	suite.Suite
	ctx       context.Context
	ledger    ledger
	newLedger func() ledger
}

func (s *ledgerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = s.newLedger()
}

var baseTime = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

func receiptScope(applicant string) models.ScopeKey {
	return models.ScopeKey{
		CaseFileID:   "C-1",
		DocumentType: models.Receipt,
		PropertyID:   "P-1",
		ApplicantID:  applicant,
		DistrictID:   "D-1",
	}
}

func newRecord(key models.ScopeKey, seq int) *models.DocumentRecord {
	rec := &models.DocumentRecord{
		ID:           uuid.NewString(),
		DocumentType: key.DocumentType,
		ScopeKey:     key,
		Status:       models.StatusActive,
		ArtifactRef:  "artifacts/" + uuid.NewString(),
		CreatedAt:    baseTime.Add(time.Duration(seq) * time.Minute),
		CreatedBy:    "clerk-1",
		Snapshot: models.Snapshot{
			Variables:   map[string]string{"case_file_id": key.CaseFileID},
			RepeatCount: 1,
			Checksum:    "abc",
		},
	}
	if seq > 0 {
		rec.Sequence = seq
		rec.LegalNumber = fmt.Sprintf("%03d/25", seq)
	}
	return rec
}

func (s *ledgerSuite) insert(rec *models.DocumentRecord) {
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
		return tx.Insert(s.ctx, rec)
	}))
}

func (s *ledgerSuite) TestInsertAndFind() {
	rec := newRecord(receiptScope("A-1"), 1)
	s.insert(rec)

	s.Run("by id outside a transaction", func() {
		got, err := s.ledger.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(rec.LegalNumber, got.LegalNumber)
		s.Equal(rec.ScopeKey, got.ScopeKey)
		s.Equal("abc", got.Snapshot.Checksum)
		s.Equal(rec.Snapshot.Variables, got.Snapshot.Variables)
	})

	s.Run("active by scope", func() {
		err := s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
			got, err := tx.FindActive(s.ctx, rec.ScopeKey, true)
			s.Require().NoError(err)
			s.Equal(rec.ID, got.ID)
			return nil
		})
		s.Require().NoError(err)
	})

	s.Run("empty scope is ErrNotFound", func() {
		err := s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
			_, err := tx.FindActive(s.ctx, receiptScope("A-2"), false)
			return err
		})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("unknown id is ErrNotFound", func() {
		_, err := s.ledger.FindByID(s.ctx, uuid.NewString())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *ledgerSuite) TestSecondActiveForScopeIsConflict() {
	key := receiptScope("A-1")
	s.insert(newRecord(key, 1))

	err := s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
		return tx.Insert(s.ctx, newRecord(key, 2))
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *ledgerSuite) TestRollbackDiscardsWrites() {
	rec := newRecord(receiptScope("A-1"), 1)
	boom := errors.New("boom")

	err := s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
		if err := tx.Insert(s.ctx, rec); err != nil {
			return err
		}
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.ledger.FindByID(s.ctx, rec.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *ledgerSuite) TestMaxSequenceCountsEveryStatus() {
	first := newRecord(receiptScope("A-1"), 1)
	second := newRecord(receiptScope("A-2"), 2)
	s.insert(first)
	s.insert(second)

	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
		return tx.MarkDeleted(s.ctx, second.ID, "clerk-2", baseTime)
	}))

	highest, err := s.ledger.MaxSequence(s.ctx, "C-1", models.Receipt)
	s.Require().NoError(err)
	s.Equal(2, highest)

	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
		n, err := tx.MaxSequence(s.ctx, "C-1", models.Receipt)
		s.Equal(2, n)
		if err != nil {
			return err
		}
		active, err := tx.CountRecords(s.ctx, "C-1", models.Receipt, models.StatusActive)
		s.Equal(1, active)
		if err != nil {
			return err
		}
		all, err := tx.CountRecords(s.ctx, "C-1", models.Receipt)
		s.Equal(2, all)
		return err
	}))

	other, err := s.ledger.MaxSequence(s.ctx, "C-2", models.Receipt)
	s.Require().NoError(err)
	s.Zero(other)
}

func (s *ledgerSuite) TestLifecycleTransitions() {
	rec := newRecord(receiptScope("A-1"), 1)
	s.insert(rec)

	s.Run("update artifact bumps regeneration count", func() {
		snap := rec.Snapshot
		snap.Checksum = "def"
		s.Require().NoError(s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
			return tx.UpdateArtifact(s.ctx, rec.ID, "artifacts/new", snap, baseTime.Add(time.Hour))
		}))
		got, err := s.ledger.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal("artifacts/new", got.ArtifactRef)
		s.Equal(1, got.RegenerationCount)
		s.Equal("def", got.Snapshot.Checksum)
		s.Require().NotNil(got.LastRegeneratedAt)
	})

	s.Run("downloads only grow", func() {
		s.Require().NoError(s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
			if err := tx.IncrementDownloads(s.ctx, rec.ID); err != nil {
				return err
			}
			return tx.IncrementDownloads(s.ctx, rec.ID)
		}))
		got, err := s.ledger.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(2, got.DownloadCount)
	})

	successor := newRecord(rec.ScopeKey, 0)
	successor.Sequence = rec.Sequence
	successor.LegalNumber = rec.LegalNumber

	s.Run("supersede then insert successor in one transaction", func() {
		s.Require().NoError(s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
			if _, err := tx.FindActive(s.ctx, rec.ScopeKey, true); err != nil {
				return err
			}
			if err := tx.MarkSuperseded(s.ctx, rec.ID, successor.ID); err != nil {
				return err
			}
			return tx.Insert(s.ctx, successor)
		}))
		old, err := s.ledger.FindByID(s.ctx, rec.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusSuperseded, old.Status)
		s.Equal(successor.ID, old.SupersededBy)
	})

	s.Run("non-active record rejects mutation", func() {
		err := s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
			return tx.IncrementDownloads(s.ctx, rec.ID)
		})
		s.ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("history is listed in creation order", func() {
		all, err := s.ledger.ListByCaseFile(s.ctx, "C-1")
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal(rec.ID, all[0].ID)
		s.Equal(successor.ID, all[1].ID)
	})
}

func (s *ledgerSuite) TestReleaseReferences() {
	receipt := newRecord(receiptScope("A-1"), 1)
	s.insert(receipt)

	deedKey := models.ScopeKey{
		CaseFileID: "C-1", DocumentType: models.SaleDeed, PropertyID: "P-1",
		ApplicantID: models.AllApplicants, DistrictID: "D-1",
	}
	deed := newRecord(deedKey, 0)
	deed.LegalNumber = receipt.LegalNumber
	deed.ReferenceID = receipt.ID
	s.insert(deed)

	var released int
	s.Require().NoError(s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
		if err := tx.MarkDeleted(s.ctx, receipt.ID, "clerk-2", baseTime); err != nil {
			return err
		}
		var err error
		released, err = tx.ReleaseReferences(s.ctx, receipt.ID)
		return err
	}))
	s.Equal(1, released)

	got, err := s.ledger.FindByID(s.ctx, deed.ID)
	s.Require().NoError(err)
	s.Empty(got.ReferenceID)
	s.Equal(receipt.LegalNumber, got.LegalNumber)

	gone, err := s.ledger.FindByID(s.ctx, receipt.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDeleted, gone.Status)
	s.Equal("clerk-2", gone.DeletedBy)
}

// TestConcurrentCheckThenInsert races many transactions on one scope. The
// scope lock must let exactly one of them insert.
func (s *ledgerSuite) TestConcurrentCheckThenInsert() {
	key := receiptScope("A-1")
	const workers = 20

	var (
		created atomic.Int32
		reused  atomic.Int32
		wg      sync.WaitGroup
		start   = make(chan struct{})
		errs    = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
				_, err := tx.FindActive(s.ctx, key, true)
				if err == nil {
					reused.Add(1)
					return nil
				}
				if !errors.Is(err, sentinel.ErrNotFound) {
					return err
				}
				if err := tx.LockSequence(s.ctx, key.CaseFileID, key.DocumentType); err != nil {
					return err
				}
				highest, err := tx.MaxSequence(s.ctx, key.CaseFileID, key.DocumentType)
				if err != nil {
					return err
				}
				if err := tx.Insert(s.ctx, newRecord(key, highest+1)); err != nil {
					return err
				}
				created.Add(1)
				return nil
			})
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Equal(int32(1), created.Load())
	s.Equal(int32(workers-1), reused.Load())

	all, err := s.ledger.ListByCaseFile(s.ctx, key.CaseFileID)
	s.Require().NoError(err)
	s.Len(all, 1)
	s.Equal(1, all[0].Sequence)
}

// TestConcurrentDistinctScopesGetDistinctNumbers allocates under the
// sequence lock from many applicants at once.
func (s *ledgerSuite) TestConcurrentDistinctScopesGetDistinctNumbers() {
	const workers = 15
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := receiptScope(fmt.Sprintf("A-%02d", i))
			errs <- s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
				if _, err := tx.FindActive(s.ctx, key, true); !errors.Is(err, sentinel.ErrNotFound) {
					return fmt.Errorf("expected empty scope, got %v", err)
				}
				if err := tx.LockSequence(s.ctx, key.CaseFileID, key.DocumentType); err != nil {
					return err
				}
				highest, err := tx.MaxSequence(s.ctx, key.CaseFileID, key.DocumentType)
				if err != nil {
					return err
				}
				return tx.Insert(s.ctx, newRecord(key, highest+1))
			})
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	all, err := s.ledger.ListByCaseFile(s.ctx, "C-1")
	s.Require().NoError(err)
	s.Require().Len(all, workers)
	seen := make(map[int]bool)
	for _, rec := range all {
		s.False(seen[rec.Sequence], "sequence %d assigned twice", rec.Sequence)
		seen[rec.Sequence] = true
	}
	for i := 1; i <= workers; i++ {
		s.True(seen[i], "sequence %d missing", i)
	}
}
