// Package service is the issuance orchestrator. Every request runs one
// state machine:
//
//	CHECKING -> REUSING | SELF_HEALING | CREATING -> DONE | FAILED
//
// The scope lock taken by the first ledger call of the transaction
// serializes requests for the same logical document; everything that
// decides the outcome happens while it is held.
package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	cfmodels "landdocs/internal/casefile/models"
	"landdocs/internal/issuance/builder"
	"landdocs/internal/issuance/metrics"
	"landdocs/internal/issuance/models"
	"landdocs/internal/issuance/store"
	audit "landdocs/pkg/platform/audit"
)

// Ledger is the document record store.
type Ledger interface {
	RunInTx(ctx context.Context, fn func(store.Tx) error) error
	FindByID(ctx context.Context, id string) (*models.DocumentRecord, error)
	ListByCaseFile(ctx context.Context, caseFileID string) ([]*models.DocumentRecord, error)
	MaxSequence(ctx context.Context, caseFileID string, t models.DocumentType) (int, error)
}

type CaseFiles interface {
	GetCaseFile(ctx context.Context, id string) (*cfmodels.CaseFile, error)
}

type ArtifactBuilder interface {
	Prepare(ctx context.Context, req builder.Request) (*builder.Plan, error)
	Render(ctx context.Context, plan *builder.Plan, legalNumber string) (*builder.Artifact, error)
	Rebuild(ctx context.Context, t models.DocumentType, snap models.Snapshot) (*builder.Artifact, error)
}

type BlobStore interface {
	Get(ctx context.Context, ref string) ([]byte, error)
	Exists(ctx context.Context, ref string) (bool, error)
	Delete(ctx context.Context, ref string) error
}

// AuditRecorder is fire-and-forget; it must not block or fail the caller.
type AuditRecorder interface {
	Record(ctx context.Context, kind audit.EventKind, documentID, caseFileID, actorID string, fields map[string]string)
}

type Service struct {
	ledger    Ledger
	caseFiles CaseFiles
	builder   ArtifactBuilder
	blobs     BlobStore
	logger    *slog.Logger
	audit     AuditRecorder
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditRecorder(r AuditRecorder) Option {
	return func(s *Service) {
		s.audit = r
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(ledger Ledger, caseFiles CaseFiles, b ArtifactBuilder, blobs BlobStore, opts ...Option) *Service {
	s := &Service{
		ledger:    ledger,
		caseFiles: caseFiles,
		builder:   b,
		blobs:     blobs,
		logger:    slog.Default(),
		tracer:    otel.Tracer("landdocs/issuance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) record(ctx context.Context, kind audit.EventKind, rec *models.DocumentRecord, actorID string, fields map[string]string) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, kind, rec.ID, rec.ScopeKey.CaseFileID, actorID, fields)
}

func (s *Service) observeIssue(t models.DocumentType, start time.Time, outcome models.Outcome, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveIssue(string(t), start)
	if err != nil {
		s.metrics.IncFailure(string(t), errorCode(err))
		return
	}
	s.metrics.IncIssued(string(t), string(outcome))
}
