package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"landdocs/internal/issuance/models"
	"landdocs/internal/issuance/store"
	"landdocs/pkg/platform/sentinel"
)

type InMemoryLedgerSuite struct {
	ledgerSuite
}

func TestInMemoryLedgerSuite(t *testing.T) {
	s := new(InMemoryLedgerSuite)
	s.newLedger = func() ledger { return store.NewInMemory() }
	suite.Run(t, s)
}

func TestInMemoryLockTimeout(t *testing.T) {
	ledger := store.NewInMemory(store.WithLockTimeout(50 * time.Millisecond))
	ctx := context.Background()
	key := receiptScope("A-1")

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = ledger.RunInTx(ctx, func(tx store.Tx) error {
			_, _ = tx.FindActive(ctx, key, true)
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	err := ledger.RunInTx(ctx, func(tx store.Tx) error {
		_, err := tx.FindActive(ctx, key, true)
		return err
	})
	close(done)
	assert.ErrorIs(t, err, sentinel.ErrLockTimeout)
}

func TestInMemoryCanceledContextRollsBack(t *testing.T) {
	ledger := store.NewInMemory()
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecord(receiptScope("A-1"), 1)

	err := ledger.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.Insert(ctx, rec); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = ledger.FindByID(context.Background(), rec.ID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestInMemoryScopeLockIsReentrant(t *testing.T) {
	ledger := store.NewInMemory(store.WithLockTimeout(50 * time.Millisecond))
	ctx := context.Background()
	key := receiptScope("A-1")

	err := ledger.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.FindActive(ctx, key, true); !assert.ErrorIs(t, err, sentinel.ErrNotFound) {
			return err
		}
		if err := tx.LockSequence(ctx, key.CaseFileID, key.DocumentType); err != nil {
			return err
		}
		_, err := tx.FindActive(ctx, key, true)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
		return tx.LockSequence(ctx, key.CaseFileID, key.DocumentType)
	})
	assert.NoError(t, err)
}

// A deed download committing while its receipt is being retired must keep
// its counter update once the retire commits.
func TestInMemoryReleaseKeepsConcurrentDeedWrites(t *testing.T) {
	ledger := store.NewInMemory()
	ctx := context.Background()

	receipt := newRecord(receiptScope("A-1"), 1)
	deed := newRecord(models.ScopeKey{
		CaseFileID: "C-1", DocumentType: models.SaleDeed, PropertyID: "P-1",
		ApplicantID: models.AllApplicants, DistrictID: "D-1",
	}, 0)
	deed.ReferenceID = receipt.ID
	deed.DownloadCount = 1
	require.NoError(t, ledger.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.Insert(ctx, receipt); err != nil {
			return err
		}
		return tx.Insert(ctx, deed)
	}))

	err := ledger.RunInTx(ctx, func(tx store.Tx) error {
		if _, err := tx.FindActive(ctx, receipt.ScopeKey, true); err != nil {
			return err
		}
		if err := tx.MarkDeleted(ctx, receipt.ID, "clerk-2", baseTime); err != nil {
			return err
		}
		n, err := tx.ReleaseReferences(ctx, receipt.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, n)

		got, err := tx.FindByID(ctx, deed.ID)
		if err != nil {
			return err
		}
		assert.Empty(t, got.ReferenceID)

		return ledger.RunInTx(ctx, func(other store.Tx) error {
			if _, err := other.FindActive(ctx, deed.ScopeKey, true); err != nil {
				return err
			}
			return other.IncrementDownloads(ctx, deed.ID)
		})
	})
	require.NoError(t, err)

	got, err := ledger.FindByID(ctx, deed.ID)
	require.NoError(t, err)
	assert.Empty(t, got.ReferenceID)
	assert.Equal(t, 2, got.DownloadCount)
}
