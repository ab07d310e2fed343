package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"landdocs/internal/issuance/models"
	"landdocs/internal/issuance/numbering"
	dErrors "landdocs/pkg/domain-errors"
)

// PreviewNextNumber estimates the number the next document of type t would
// get. It takes no lock and reserves nothing.
func (s *Service) PreviewNextNumber(ctx context.Context, caseFileID string, t models.DocumentType) (*models.NumberPreview, error) {
	ctx, span := s.tracer.Start(ctx, "issuance.PreviewNextNumber", trace.WithAttributes(
		attribute.String("case_file_id", caseFileID),
		attribute.String("document_type", string(t)),
	))
	defer span.End()

	if _, ok := models.PolicyFor(t); !ok {
		return nil, s.fail(ctx, span, "preview", t, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown document type %q", t)))
	}
	cf, err := s.caseFile(ctx, caseFileID)
	if err != nil {
		return nil, s.fail(ctx, span, "preview", t, err)
	}
	number, err := numbering.Preview(ctx, s.ledger, cf.ID, t, cf.OpeningNumber)
	if err != nil {
		return nil, s.fail(ctx, span, "preview", t, err)
	}
	return &models.NumberPreview{
		CaseFileID:   cf.ID,
		DocumentType: t,
		LegalNumber:  number,
		Advisory:     true,
	}, nil
}

// Get returns a record in any status.
func (s *Service) Get(ctx context.Context, id string) (*models.DocumentRecord, error) {
	rec, err := s.document(ctx, id)
	if err != nil {
		return nil, translate(err)
	}
	return rec, nil
}

// List returns the case file's ledger, history included, oldest first.
func (s *Service) List(ctx context.Context, caseFileID string) ([]*models.DocumentRecord, error) {
	if _, err := s.caseFile(ctx, caseFileID); err != nil {
		return nil, translate(err)
	}
	recs, err := s.ledger.ListByCaseFile(ctx, caseFileID)
	if err != nil {
		return nil, translate(err)
	}
	return recs, nil
}
