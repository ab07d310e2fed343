//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"landdocs/internal/issuance/store"
	audit "landdocs/pkg/platform/audit"
	pgaudit "landdocs/pkg/platform/audit/store/postgres"
	"landdocs/pkg/platform/sentinel"
	txcontext "landdocs/pkg/platform/tx"
	"landdocs/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	ledgerSuite
	postgres *containers.PostgresContainer
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(s.postgres.Exec(context.Background(), store.Schema))
	s.Require().NoError(s.postgres.Exec(context.Background(), pgaudit.Schema))
	s.newLedger = func() ledger {
		return store.NewPostgres(s.postgres.DB, store.WithLockTimeout(2*time.Second))
	}
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "document_records", "audit_outbox"))
	s.ledgerSuite.SetupTest()
}

func (s *PostgresLedgerSuite) TestLockTimeoutMapsToSentinel() {
	ledger := store.NewPostgres(s.postgres.DB, store.WithLockTimeout(100*time.Millisecond))
	key := receiptScope("A-1")

	holding := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = ledger.RunInTx(s.ctx, func(tx store.Tx) error {
			_, _ = tx.FindActive(s.ctx, key, true)
			close(holding)
			<-done
			return nil
		})
	}()
	<-holding

	err := ledger.RunInTx(s.ctx, func(tx store.Tx) error {
		_, err := tx.FindActive(s.ctx, key, true)
		return err
	})
	close(done)
	s.ErrorIs(err, sentinel.ErrLockTimeout)
}

func (s *PostgresLedgerSuite) TestUniqueIndexBacksScopeRule() {
	key := receiptScope("A-1")
	s.insert(newRecord(key, 1))

	// Skip the scope lock entirely; the partial index still refuses.
	err := s.ledger.RunInTx(s.ctx, func(tx store.Tx) error {
		return tx.Insert(s.ctx, newRecord(key, 2))
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresLedgerSuite) TestJoinsTransactionCarriedByContext() {
	outbox := pgaudit.New(s.postgres.DB)
	rec := newRecord(receiptScope("A-1"), 1)

	outer, err := s.postgres.DB.BeginTx(s.ctx, nil)
	s.Require().NoError(err)
	ctx := txcontext.WithTx(s.ctx, outer)

	s.Require().NoError(s.ledger.RunInTx(ctx, func(tx store.Tx) error {
		return tx.Insert(ctx, rec)
	}))
	s.Require().NoError(outbox.Append(ctx, audit.Event{Kind: audit.EventDocumentGenerated, DocumentID: rec.ID}))

	found, err := s.ledger.FindByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.LegalNumber, found.LegalNumber)

	s.Require().NoError(outer.Rollback())

	_, err = s.ledger.FindByID(s.ctx, rec.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	events, err := outbox.ListByDocument(s.ctx, rec.ID)
	s.Require().NoError(err)
	s.Empty(events)
}
