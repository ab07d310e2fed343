package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"landdocs/internal/issuance/builder"
	"landdocs/internal/issuance/models"
	"landdocs/internal/issuance/store"
	dErrors "landdocs/pkg/domain-errors"
	audit "landdocs/pkg/platform/audit"
	"landdocs/pkg/platform/middleware/device"
	"landdocs/pkg/platform/sentinel"
	"landdocs/pkg/requestcontext"
)

// Reissue replaces an ACTIVE document with one rendered from current entity
// state. The successor keeps the legal number, except that a dependent type
// follows whatever its reference scope holds now. The predecessor becomes
// SUPERSEDED and points at the successor.
func (s *Service) Reissue(ctx context.Context, id, actorID string) (*models.IssueResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "issuance.Reissue", trace.WithAttributes(attribute.String("document_id", id)))
	defer span.End()

	rec, err := s.document(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, "reissue", "", err)
	}
	res, err := s.reissue(ctx, rec, actorID)
	if err != nil {
		err = s.fail(ctx, span, "reissue", rec.DocumentType, err)
		s.observeIssue(rec.DocumentType, start, "", err)
		return nil, err
	}
	s.observeIssue(rec.DocumentType, start, res.Outcome, nil)
	s.afterCommit(ctx, res, actorID, map[string]string{"predecessor_id": rec.ID})
	return res, nil
}

func (s *Service) reissue(ctx context.Context, rec *models.DocumentRecord, actorID string) (*models.IssueResult, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "actor_id is required")
	}
	if !rec.IsActive() {
		return nil, notActive(rec)
	}
	cf, err := s.caseFile(ctx, rec.ScopeKey.CaseFileID)
	if err != nil {
		return nil, err
	}

	var (
		res *models.IssueResult
		at  attempt
	)
	err = s.ledger.RunInTx(ctx, func(tx store.Tx) error {
		active, err := s.lockActive(ctx, tx, rec)
		if err != nil {
			return err
		}
		number, referenceID := active.LegalNumber, ""
		ref, err := s.carriedReference(ctx, tx, active)
		if err != nil {
			return err
		}
		if ref != nil {
			number, referenceID = ref.LegalNumber, ref.ID
		}

		now := requestcontext.Now(ctx)
		plan, err := s.builder.Prepare(ctx, builder.Request{
			DocumentType: active.DocumentType,
			CaseFile:     cf,
			PropertyID:   active.ScopeKey.PropertyID,
			ApplicantIDs: scopeApplicants(active.ScopeKey),
			ExtraFields:  extraFields(active.Snapshot.Variables),
			IssuedAt:     now,
		})
		if err != nil {
			return err
		}
		art, err := s.builder.Render(ctx, plan, number)
		if err != nil {
			return err
		}
		at.written = append(at.written, art.Ref)

		successor := &models.DocumentRecord{
			ID:            uuid.NewString(),
			DocumentType:  active.DocumentType,
			ScopeKey:      active.ScopeKey,
			LegalNumber:   number,
			Sequence:      active.Sequence,
			Status:        models.StatusActive,
			ArtifactRef:   art.Ref,
			DownloadCount: 1,
			CreatedAt:     now,
			CreatedBy:     actorID,
			Snapshot:      art.Snapshot,
			ReferenceID:   referenceID,
		}
		if err := tx.MarkSuperseded(ctx, active.ID, successor.ID); err != nil {
			return err
		}
		if err := tx.Insert(ctx, successor); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return fmt.Errorf("%w: %w", models.ErrDuplicateActiveDocument, err)
			}
			return err
		}
		res = &models.IssueResult{Record: successor, Artifact: art.Bytes, Outcome: models.OutcomeReissued}
		return nil
	})
	if err != nil {
		s.discard(ctx, at.written)
		return nil, err
	}
	return res, nil
}

// Retire marks an ACTIVE document DELETED, releases records that carried
// its number and removes the artifact once the change is committed. Other
// records keep their numbers.
func (s *Service) Retire(ctx context.Context, id, actorID string) (*models.DocumentRecord, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.Retire", trace.WithAttributes(attribute.String("document_id", id)))
	defer span.End()

	rec, err := s.document(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, span, "retire", "", err)
	}
	deleted, released, err := s.retire(ctx, rec, actorID)
	if err != nil {
		return nil, s.fail(ctx, span, "retire", rec.DocumentType, err)
	}

	if err := s.blobs.Delete(context.WithoutCancel(ctx), deleted.ArtifactRef); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		s.logger.WarnContext(ctx, "failed to remove retired artifact", "document_id", deleted.ID, "artifact_ref", deleted.ArtifactRef, "error", err)
	}
	if s.metrics != nil {
		s.metrics.IncRetired(string(deleted.DocumentType))
	}
	fields := device.ClientFields(ctx)
	fields["document_type"] = string(deleted.DocumentType)
	fields["released_references"] = strconv.Itoa(released)
	if deleted.LegalNumber != "" {
		fields["legal_number"] = deleted.LegalNumber
	}
	s.record(ctx, audit.EventDocumentDeleted, deleted, actorID, fields)
	s.logger.InfoContext(ctx, "document retired",
		"document_id", deleted.ID,
		"document_type", deleted.DocumentType,
		"released_references", released,
		"request_id", requestcontext.RequestID(ctx),
	)
	return deleted, nil
}

func (s *Service) retire(ctx context.Context, rec *models.DocumentRecord, actorID string) (*models.DocumentRecord, int, error) {
	if strings.TrimSpace(actorID) == "" {
		return nil, 0, dErrors.New(dErrors.CodeValidation, "actor_id is required")
	}
	if !rec.IsActive() {
		return nil, 0, notActive(rec)
	}
	var (
		deleted  *models.DocumentRecord
		released int
	)
	err := s.ledger.RunInTx(ctx, func(tx store.Tx) error {
		active, err := s.lockActive(ctx, tx, rec)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if err := tx.MarkDeleted(ctx, active.ID, actorID, now); err != nil {
			return err
		}
		if released, err = tx.ReleaseReferences(ctx, active.ID); err != nil {
			return err
		}
		active.Status = models.StatusDeleted
		active.DeletedAt = &now
		active.DeletedBy = actorID
		deleted = active
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return deleted, released, nil
}

// scopeApplicants turns a scope back into the applicant list a request
// would carry.
func scopeApplicants(key models.ScopeKey) []string {
	switch key.ApplicantID {
	case "", models.NoApplicant, models.AllApplicants:
		return nil
	default:
		return []string{key.ApplicantID}
	}
}

// computed lists the variables the builder derives itself; anything else in
// a snapshot came from the request's extra fields.
var computed = map[string]bool{
	"legal_number":        true,
	"case_file_id":        true,
	"case_file_title":     true,
	"district_id":         true,
	"property_reference":  true,
	"land_use_category":   true,
	"area":                true,
	"unit_price":          true,
	"valuation":           true,
	"consolidated_amount": true,
	"issued_on":           true,
}

func extraFields(vars map[string]string) map[string]string {
	out := make(map[string]string)
	for k, v := range vars {
		if computed[k] || strings.Contains(k, "#") {
			continue
		}
		out[k] = v
	}
	return out
}
