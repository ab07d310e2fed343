package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"landdocs/internal/issuance/models"
	"landdocs/pkg/platform/sentinel"
	txcontext "landdocs/pkg/platform/tx"
)

// Schema creates the ledger table and its indexes.
//
//go:embed schema.sql
var Schema string

const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	pgDeadlockDetected  = "40P01"
	pgSerializationFail = "40001"
)

const recordColumns = `id, document_type, case_file_id, property_id, applicant_id, district_id,
	legal_number, sequence, status, artifact_ref, download_count, regeneration_count,
	created_at, created_by, last_regenerated_at, metadata, reference_id, superseded_by,
	deleted_at, deleted_by`

// Postgres is the ledger on PostgreSQL. Scope and sequence locks are
// transaction-scoped advisory locks keyed by a 64-bit hash of the key
// string, so they work before any row exists and vanish on commit,
// rollback, or a dropped connection.
type Postgres struct {
	db   *sql.DB
	opts options
}

func NewPostgres(db *sql.DB, opts ...Option) *Postgres {
	return &Postgres{db: db, opts: buildOptions(opts)}
}

// RunInTx opens a READ COMMITTED transaction with a bounded lock_timeout.
// Each statement sees rows committed before it ran, which is what lets a
// caller that waited on the scope lock observe the winner's record.
// A transaction already carried by ctx is joined; its owner commits.
func (s *Postgres) RunInTx(ctx context.Context, fn func(Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if outer, ok := txcontext.From(ctx); ok {
		return fn(&pgTx{tx: outer})
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.txTimeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", mapError(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	lockTimeout := fmt.Sprintf("%dms", s.opts.lockTimeout.Milliseconds())
	if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, lockTimeout); err != nil {
		return fmt.Errorf("set lock timeout: %w", mapError(err))
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", mapError(err))
	}
	return nil
}

// FindByID reads outside any transaction, or inside one carried by ctx.
func (s *Postgres) FindByID(ctx context.Context, id string) (*models.DocumentRecord, error) {
	return findByID(ctx, s.querier(ctx), id)
}

func (s *Postgres) ListByCaseFile(ctx context.Context, caseFileID string) ([]*models.DocumentRecord, error) {
	rows, err := s.querier(ctx).QueryContext(ctx,
		`SELECT `+recordColumns+` FROM document_records WHERE case_file_id = $1 ORDER BY created_at, id`,
		caseFileID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", mapError(err))
	}
	defer rows.Close()

	var out []*models.DocumentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// MaxSequence is the unlocked advisory read.
func (s *Postgres) MaxSequence(ctx context.Context, caseFileID string, t models.DocumentType) (int, error) {
	return maxSequence(ctx, s.querier(ctx), caseFileID, t)
}

type querier = txcontext.Querier

func (s *Postgres) querier(ctx context.Context) querier {
	return txcontext.Or(ctx, s.db)
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) advisoryLock(ctx context.Context, key string) error {
	if _, err := t.tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, mapError(err))
	}
	return nil
}

func (t *pgTx) FindActive(ctx context.Context, key models.ScopeKey, forUpdate bool) (*models.DocumentRecord, error) {
	scope := key.String()
	query := `SELECT ` + recordColumns + ` FROM document_records WHERE scope_key = $1 AND status = 'ACTIVE'`
	if forUpdate {
		if err := t.advisoryLock(ctx, "scope|"+scope); err != nil {
			return nil, err
		}
		query += ` FOR UPDATE`
	}
	rec, err := scanRecord(t.tx.QueryRowContext(ctx, query, scope))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("active document for %s: %w", scope, sentinel.ErrNotFound)
	}
	return rec, err
}

func (t *pgTx) FindByID(ctx context.Context, id string) (*models.DocumentRecord, error) {
	return findByID(ctx, t.tx, id)
}

func (t *pgTx) LockSequence(ctx context.Context, caseFileID string, dt models.DocumentType) error {
	return t.advisoryLock(ctx, models.SequenceKey(caseFileID, dt))
}

func (t *pgTx) MaxSequence(ctx context.Context, caseFileID string, dt models.DocumentType) (int, error) {
	return maxSequence(ctx, t.tx, caseFileID, dt)
}

func (t *pgTx) CountRecords(ctx context.Context, caseFileID string, dt models.DocumentType, statuses ...models.Status) (int, error) {
	query := `SELECT COUNT(*) FROM document_records WHERE case_file_id = $1 AND document_type = $2`
	args := []any{caseFileID, string(dt)}
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		query += ` AND status = ANY($3)`
		args = append(args, pq.Array(names))
	}
	var n int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count documents: %w", mapError(err))
	}
	return n, nil
}

func (t *pgTx) Insert(ctx context.Context, rec *models.DocumentRecord) error {
	meta, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO document_records (
			id, document_type, scope_key, case_file_id, property_id, applicant_id, district_id,
			legal_number, sequence, status, artifact_ref, download_count, regeneration_count,
			created_at, created_by, last_regenerated_at, metadata, reference_id, superseded_by,
			deleted_at, deleted_by
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		rec.ID, string(rec.DocumentType), rec.ScopeKey.String(),
		rec.ScopeKey.CaseFileID, rec.ScopeKey.PropertyID, rec.ScopeKey.ApplicantID, rec.ScopeKey.DistrictID,
		nullString(rec.LegalNumber), nullInt(rec.Sequence), string(rec.Status), rec.ArtifactRef,
		rec.DownloadCount, rec.RegenerationCount, rec.CreatedAt, rec.CreatedBy,
		nullTime(rec.LastRegeneratedAt), meta, nullString(rec.ReferenceID), nullString(rec.SupersededBy),
		nullTime(rec.DeletedAt), nullString(rec.DeletedBy),
	)
	if err != nil {
		return fmt.Errorf("insert document %s: %w", rec.ID, mapError(err))
	}
	return nil
}

func (t *pgTx) UpdateArtifact(ctx context.Context, id, ref string, snap models.Snapshot, at time.Time) error {
	meta, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, `
		UPDATE document_records
		SET artifact_ref = $2, metadata = $3, regeneration_count = regeneration_count + 1, last_regenerated_at = $4
		WHERE id = $1 AND status = 'ACTIVE'`,
		id, ref, meta, at)
	if err != nil {
		return fmt.Errorf("update artifact: %w", mapError(err))
	}
	return t.requireActiveRow(ctx, res, id, "update artifact")
}

func (t *pgTx) IncrementDownloads(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE document_records SET download_count = download_count + 1 WHERE id = $1 AND status = 'ACTIVE'`, id)
	if err != nil {
		return fmt.Errorf("increment downloads: %w", mapError(err))
	}
	return t.requireActiveRow(ctx, res, id, "increment downloads")
}

func (t *pgTx) MarkSuperseded(ctx context.Context, id, successorID string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE document_records SET status = 'SUPERSEDED', superseded_by = $2 WHERE id = $1 AND status = 'ACTIVE'`,
		id, successorID)
	if err != nil {
		return fmt.Errorf("mark superseded: %w", mapError(err))
	}
	return t.requireActiveRow(ctx, res, id, "mark superseded")
}

func (t *pgTx) MarkDeleted(ctx context.Context, id, actorID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE document_records SET status = 'DELETED', deleted_at = $2, deleted_by = $3 WHERE id = $1 AND status = 'ACTIVE'`,
		id, at, actorID)
	if err != nil {
		return fmt.Errorf("mark deleted: %w", mapError(err))
	}
	return t.requireActiveRow(ctx, res, id, "mark deleted")
}

func (t *pgTx) ReleaseReferences(ctx context.Context, referenceID string) (int, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE document_records SET reference_id = NULL WHERE reference_id = $1`, referenceID)
	if err != nil {
		return 0, fmt.Errorf("release references: %w", mapError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release references: %w", err)
	}
	return int(n), nil
}

// requireActiveRow turns "0 rows updated" into NotFound or InvalidState.
func (t *pgTx) requireActiveRow(ctx context.Context, res sql.Result, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 1 {
		return nil
	}
	rec, err := findByID(ctx, t.tx, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: document %s is %s: %w", op, id, rec.Status, sentinel.ErrInvalidState)
}

func findByID(ctx context.Context, q querier, id string) (*models.DocumentRecord, error) {
	rec, err := scanRecord(q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM document_records WHERE id = $1`, id))
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, sentinel.ErrNotFound)
	}
	return rec, err
}

func maxSequence(ctx context.Context, q querier, caseFileID string, dt models.DocumentType) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) FROM document_records WHERE case_file_id = $1 AND document_type = $2`,
		caseFileID, string(dt)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max sequence: %w", mapError(err))
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.DocumentRecord, error) {
	var (
		rec                                 models.DocumentRecord
		docType, status                     string
		legalNumber, referenceID, successor sql.NullString
		deletedBy                           sql.NullString
		sequence                            sql.NullInt64
		lastRegen, deletedAt                sql.NullTime
		meta                                []byte
	)
	err := row.Scan(
		&rec.ID, &docType, &rec.ScopeKey.CaseFileID, &rec.ScopeKey.PropertyID, &rec.ScopeKey.ApplicantID,
		&rec.ScopeKey.DistrictID, &legalNumber, &sequence, &status, &rec.ArtifactRef, &rec.DownloadCount,
		&rec.RegenerationCount, &rec.CreatedAt, &rec.CreatedBy, &lastRegen, &meta, &referenceID, &successor,
		&deletedAt, &deletedBy,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", mapError(err))
	}
	rec.DocumentType = models.DocumentType(docType)
	rec.ScopeKey.DocumentType = rec.DocumentType
	rec.Status = models.Status(status)
	rec.LegalNumber = legalNumber.String
	rec.Sequence = int(sequence.Int64)
	rec.ReferenceID = referenceID.String
	rec.SupersededBy = successor.String
	rec.DeletedBy = deletedBy.String
	if lastRegen.Valid {
		t := lastRegen.Time
		rec.LastRegeneratedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		rec.DeletedAt = &t
	}
	if err := json.Unmarshal(meta, &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &rec, nil
}

// mapError translates Postgres error codes into sentinel facts, keeping the
// original in the chain for logs.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgUniqueViolation:
		return fmt.Errorf("%w: %s (%s)", sentinel.ErrConflict, pgErr.ConstraintName, pgErr.Message)
	case pgLockNotAvailable, pgDeadlockDetected, pgSerializationFail:
		return fmt.Errorf("%w: %s", sentinel.ErrLockTimeout, pgErr.Message)
	default:
		return err
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
