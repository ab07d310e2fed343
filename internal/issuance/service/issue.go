package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	cfmodels "landdocs/internal/casefile/models"
	"landdocs/internal/issuance/builder"
	"landdocs/internal/issuance/models"
	"landdocs/internal/issuance/numbering"
	"landdocs/internal/issuance/scope"
	"landdocs/internal/issuance/store"
	dErrors "landdocs/pkg/domain-errors"
	audit "landdocs/pkg/platform/audit"
	"landdocs/pkg/platform/middleware/device"
	"landdocs/pkg/platform/sentinel"
	"landdocs/pkg/requestcontext"
)

// attempt collects what one transaction left behind outside the ledger.
type attempt struct {
	written []string
}

// Issue returns the document for the request's scope, creating it on first
// use. Concurrent identical requests produce one record: the first creates,
// the rest reuse.
func (s *Service) Issue(ctx context.Context, req models.IssueRequest) (*models.IssueResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "issuance.Issue", trace.WithAttributes(
		attribute.String("document_type", string(req.DocumentType)),
		attribute.String("case_file_id", req.CaseFileID),
	))
	defer span.End()

	res, err := s.issue(ctx, req)
	if err != nil {
		err = s.fail(ctx, span, "issue", req.DocumentType, err)
		s.observeIssue(req.DocumentType, start, "", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)), attribute.String("document_id", res.Record.ID))
	s.observeIssue(req.DocumentType, start, res.Outcome, nil)
	s.afterCommit(ctx, res, req.ActorID, nil)
	return res, nil
}

func (s *Service) issue(ctx context.Context, req models.IssueRequest) (*models.IssueResult, error) {
	if strings.TrimSpace(req.ActorID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor_id is required")
	}
	key, err := scope.FromRequest(req)
	if err != nil {
		return nil, err
	}
	cf, err := s.caseFile(ctx, key.CaseFileID)
	if err != nil {
		return nil, err
	}
	if cf.DistrictID != key.DistrictID {
		return nil, fmt.Errorf("case file %s is in district %s, not %s: %w",
			cf.ID, cf.DistrictID, key.DistrictID, models.ErrDistrictMismatch)
	}

	var (
		res *models.IssueResult
		at  attempt
	)
	err = s.ledger.RunInTx(ctx, func(tx store.Tx) error {
		// The locked lookup must be the first statement of the transaction.
		rec, err := tx.FindActive(ctx, key, true)
		switch {
		case err == nil:
			res, err = s.reuseOrHeal(ctx, tx, rec, &at)
		case errors.Is(err, sentinel.ErrNotFound):
			res, err = s.create(ctx, tx, key, req, cf, &at)
		}
		return err
	})
	if err != nil {
		s.discard(ctx, at.written)
		return nil, err
	}
	return res, nil
}

// Download hands out the artifact of an ACTIVE record, regenerating it if
// the stored bytes are gone.
func (s *Service) Download(ctx context.Context, id, actorID string) (*models.IssueResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "issuance.Download", trace.WithAttributes(attribute.String("document_id", id)))
	defer span.End()

	rec, err := s.document(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, "download", "", err)
	}
	res, err := s.download(ctx, rec, actorID)
	if err != nil {
		err = s.fail(ctx, span, "download", rec.DocumentType, err)
		s.observeIssue(rec.DocumentType, start, "", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	s.observeIssue(rec.DocumentType, start, res.Outcome, nil)
	s.afterCommit(ctx, res, actorID, nil)
	return res, nil
}

func (s *Service) download(ctx context.Context, rec *models.DocumentRecord, actorID string) (*models.IssueResult, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor_id is required")
	}
	if !rec.IsActive() {
		return nil, notActive(rec)
	}
	var (
		res *models.IssueResult
		at  attempt
	)
	err := s.ledger.RunInTx(ctx, func(tx store.Tx) error {
		active, err := s.lockActive(ctx, tx, rec)
		if err != nil {
			return err
		}
		res, err = s.reuseOrHeal(ctx, tx, active, &at)
		return err
	})
	if err != nil {
		s.discard(ctx, at.written)
		return nil, err
	}
	return res, nil
}

// lockActive takes the scope lock of rec and confirms it still holds it.
func (s *Service) lockActive(ctx context.Context, tx store.Tx, rec *models.DocumentRecord) (*models.DocumentRecord, error) {
	active, err := tx.FindActive(ctx, rec.ScopeKey, true)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("document %s: %w", rec.ID, models.ErrDocumentNotActive)
	}
	if err != nil {
		return nil, err
	}
	if active.ID != rec.ID {
		return nil, fmt.Errorf("document %s was replaced by %s: %w", rec.ID, active.ID, models.ErrDocumentNotActive)
	}
	return active, nil
}

// reuseOrHeal serves an existing record. Missing bytes are rendered again
// from the stored snapshot; the record keeps its number.
func (s *Service) reuseOrHeal(ctx context.Context, tx store.Tx, rec *models.DocumentRecord, at *attempt) (*models.IssueResult, error) {
	exists, err := s.blobs.Exists(ctx, rec.ArtifactRef)
	if err != nil {
		return nil, fmt.Errorf("%w: check artifact: %w", models.ErrArtifactStorageFailed, err)
	}
	if exists {
		data, err := s.blobs.Get(ctx, rec.ArtifactRef)
		switch {
		case err == nil:
			if err := tx.IncrementDownloads(ctx, rec.ID); err != nil {
				return nil, err
			}
			rec.DownloadCount++
			return &models.IssueResult{Record: rec, Artifact: data, Outcome: models.OutcomeReused}, nil
		case !errors.Is(err, sentinel.ErrNotFound):
			return nil, fmt.Errorf("%w: read artifact: %w", models.ErrArtifactStorageFailed, err)
		}
		// vanished between Exists and Get
	}

	art, err := s.builder.Rebuild(ctx, rec.DocumentType, rec.Snapshot)
	if err != nil {
		return nil, err
	}
	at.written = append(at.written, art.Ref)
	if rec.Snapshot.Checksum != "" && art.Snapshot.Checksum != rec.Snapshot.Checksum {
		s.logger.WarnContext(ctx, "regenerated artifact differs from original",
			"document_id", rec.ID,
			"original_checksum", rec.Snapshot.Checksum,
			"checksum", art.Snapshot.Checksum,
		)
	}

	now := requestcontext.Now(ctx)
	if err := tx.UpdateArtifact(ctx, rec.ID, art.Ref, art.Snapshot, now); err != nil {
		return nil, err
	}
	if err := tx.IncrementDownloads(ctx, rec.ID); err != nil {
		return nil, err
	}
	rec.ArtifactRef = art.Ref
	rec.Snapshot = art.Snapshot
	rec.RegenerationCount++
	rec.LastRegeneratedAt = &now
	rec.DownloadCount++
	return &models.IssueResult{Record: rec, Artifact: art.Bytes, Outcome: models.OutcomeSelfHealed}, nil
}

// create builds and inserts the first record of a scope. Entity state is
// read here, under the scope lock, not before it.
func (s *Service) create(ctx context.Context, tx store.Tx, key models.ScopeKey, req models.IssueRequest, cf *cfmodels.CaseFile, at *attempt) (*models.IssueResult, error) {
	policy, _ := models.PolicyFor(key.DocumentType)
	now := requestcontext.Now(ctx)

	plan, err := s.builder.Prepare(ctx, builder.Request{
		DocumentType: key.DocumentType,
		CaseFile:     cf,
		PropertyID:   key.PropertyID,
		ApplicantIDs: req.ApplicantIDs,
		ExtraFields:  req.ExtraFields,
		IssuedAt:     now,
	})
	if err != nil {
		return nil, err
	}

	rec := &models.DocumentRecord{
		ID:            uuid.NewString(),
		DocumentType:  key.DocumentType,
		ScopeKey:      key,
		Status:        models.StatusActive,
		DownloadCount: 1,
		CreatedAt:     now,
		CreatedBy:     req.ActorID,
	}
	switch {
	case policy.Numbered:
		n, err := numbering.NewAllocation(cf.ID, key.DocumentType, cf.OpeningNumber).Allocate(ctx, tx)
		if err != nil {
			return nil, err
		}
		rec.Sequence = n.Sequence
		rec.LegalNumber = n.Legal
	case policy.InheritsFrom != "":
		ref, err := s.inheritedNumber(ctx, tx, key, policy.InheritsFrom, plan.Lead)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			rec.LegalNumber = ref.LegalNumber
			rec.ReferenceID = ref.ID
		}
	}

	art, err := s.builder.Render(ctx, plan, rec.LegalNumber)
	if err != nil {
		return nil, err
	}
	at.written = append(at.written, art.Ref)
	rec.ArtifactRef = art.Ref
	rec.Snapshot = art.Snapshot

	if err := tx.Insert(ctx, rec); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, fmt.Errorf("%w: %w", models.ErrDuplicateActiveDocument, err)
		}
		return nil, err
	}
	if policy.Numbered && s.metrics != nil {
		s.metrics.IncNumberAllocated(string(key.DocumentType))
	}
	return &models.IssueResult{Record: rec, Artifact: art.Bytes, Outcome: models.OutcomeCreated}, nil
}

// inheritedNumber finds the ACTIVE document whose number a dependent type
// prints, or nil when the lead has none and the document goes out
// unnumbered. Its scope is locked too so it cannot be retired underneath
// us; the dependent scope is always locked first.
func (s *Service) inheritedNumber(ctx context.Context, tx store.Tx, key models.ScopeKey, from models.DocumentType, lead string) (*models.DocumentRecord, error) {
	refKey := models.ScopeKey{
		CaseFileID:   key.CaseFileID,
		DocumentType: from,
		PropertyID:   key.PropertyID,
		ApplicantID:  lead,
		DistrictID:   key.DistrictID,
	}
	ref, err := tx.FindActive(ctx, refKey, true)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return ref, err
}

// carriedReference re-reads the reference of active under its owner's
// scope lock, taken after the dependent lock the caller already holds. It
// returns the record now ACTIVE in that scope, or nil once it was retired.
func (s *Service) carriedReference(ctx context.Context, tx store.Tx, active *models.DocumentRecord) (*models.DocumentRecord, error) {
	if active.ReferenceID == "" {
		return nil, nil
	}
	prev, err := tx.FindByID(ctx, active.ReferenceID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cur, err := tx.FindActive(ctx, prev.ScopeKey, true)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	return cur, err
}

func (s *Service) caseFile(ctx context.Context, id string) (*cfmodels.CaseFile, error) {
	cf, err := s.caseFiles.GetCaseFile(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("case file %s: %w", id, models.ErrCaseFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load case file: %w", err)
	}
	return cf, nil
}

func (s *Service) document(ctx context.Context, id string) (*models.DocumentRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "document id must be a uuid")
	}
	rec, err := s.ledger.FindByID(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, fmt.Errorf("document %s: %w", id, models.ErrDocumentNotFound)
	}
	return rec, err
}

func notActive(rec *models.DocumentRecord) error {
	if rec.SupersededBy != "" {
		return fmt.Errorf("document %s is %s, see %s: %w", rec.ID, rec.Status, rec.SupersededBy, models.ErrDocumentNotActive)
	}
	return fmt.Errorf("document %s is %s: %w", rec.ID, rec.Status, models.ErrDocumentNotActive)
}

// discard removes blobs written by a transaction that rolled back. They are
// unreachable either way; this only saves space.
func (s *Service) discard(ctx context.Context, refs []string) {
	for _, ref := range refs {
		if err := s.blobs.Delete(context.WithoutCancel(ctx), ref); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.WarnContext(ctx, "failed to remove orphaned artifact", "artifact_ref", ref, "error", err)
		}
	}
}

// fail translates err and reports it. A duplicate ACTIVE record means the
// scope lock did not hold; it is logged as a defect and raised as a
// security event.
func (s *Service) fail(ctx context.Context, span trace.Span, op string, t models.DocumentType, err error) error {
	err = translate(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, errorCode(err))

	switch {
	case isDuplicate(err):
		s.logger.ErrorContext(ctx, "duplicate active document rejected",
			"op", op, "document_type", t, "request_id", requestcontext.RequestID(ctx), "error", err)
		if s.metrics != nil {
			s.metrics.IncDuplicateActive()
		}
		if s.audit != nil {
			s.audit.Record(ctx, audit.EventDuplicateActiveDetected, "", "", "", map[string]string{
				"op": op, "document_type": string(t), "error": err.Error(),
			})
		}
	case isLockTimeout(err):
		s.logger.WarnContext(ctx, "lock wait timed out", "op", op, "document_type", t)
		if s.metrics != nil {
			s.metrics.IncLockTimeout()
		}
	case dErrors.HasCode(err, dErrors.CodeInternal), dErrors.HasCode(err, dErrors.CodeDependencyFailed):
		s.logger.ErrorContext(ctx, "issuance failed", "op", op, "document_type", t, "error", err)
	default:
		s.logger.DebugContext(ctx, "issuance rejected", "op", op, "document_type", t, "code", errorCode(err), "error", err)
	}
	return err
}

func (s *Service) afterCommit(ctx context.Context, res *models.IssueResult, actorID string, extra map[string]string) {
	fields := device.ClientFields(ctx)
	for k, v := range extra {
		fields[k] = v
	}
	fields["document_type"] = string(res.Record.DocumentType)
	fields["outcome"] = string(res.Outcome)
	if res.Record.LegalNumber != "" {
		fields["legal_number"] = res.Record.LegalNumber
	}

	kind := audit.EventDocumentDownloaded
	switch res.Outcome {
	case models.OutcomeCreated:
		kind = audit.EventDocumentGenerated
	case models.OutcomeSelfHealed:
		kind = audit.EventDocumentRegenerated
	case models.OutcomeReissued:
		kind = audit.EventDocumentReissued
	}
	s.record(ctx, kind, res.Record, actorID, fields)
	s.logger.InfoContext(ctx, "document issued",
		"document_id", res.Record.ID,
		"document_type", res.Record.DocumentType,
		"outcome", res.Outcome,
		"legal_number", res.Record.LegalNumber,
		"request_id", requestcontext.RequestID(ctx),
	)
}
