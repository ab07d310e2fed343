package service

import (
	"context"
	"errors"
	"fmt"

	"landdocs/internal/issuance/models"
	dErrors "landdocs/pkg/domain-errors"
	"landdocs/pkg/platform/sentinel"
)

// translate maps builder, store and context failures onto coded errors.
// The original error stays in the chain, so errors.Is still finds the
// models sentinel.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return dErrors.Wrap(err, dErrors.CodeTimeout, "request cancelled before commit")
	case errors.Is(err, sentinel.ErrLockTimeout):
		return dErrors.Wrap(fmt.Errorf("%w: %w", models.ErrLockTimeout, err), dErrors.CodeContention,
			"document is locked by a concurrent request")
	case errors.Is(err, models.ErrDuplicateActiveDocument):
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "duplicate active document")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(fmt.Errorf("%w: %w", models.ErrDuplicateActiveDocument, err), dErrors.CodeInvariantViolation,
			"duplicate active document")
	case errors.Is(err, models.ErrCaseFileNotFound),
		errors.Is(err, models.ErrPropertyNotFound),
		errors.Is(err, models.ErrApplicantNotFound),
		errors.Is(err, models.ErrDocumentNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "not found")
	case errors.Is(err, models.ErrNoActiveApplicants),
		errors.Is(err, models.ErrPricingNotConfigured):
		return dErrors.Wrap(err, dErrors.CodePreconditionFailed, "cannot issue document")
	case errors.Is(err, models.ErrDistrictMismatch), errors.Is(err, models.ErrNotNumbered):
		return dErrors.Wrap(err, dErrors.CodeValidation, "invalid request")
	case errors.Is(err, models.ErrDocumentNotActive), errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeInvalidState, "document is not active")
	case errors.Is(err, models.ErrTemplateRenderingFailed),
		errors.Is(err, models.ErrArtifactStorageFailed),
		errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeDependencyFailed, "collaborator failed")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "issuance failed")
	}
}

func errorCode(err error) string {
	return string(dErrors.CodeOf(err))
}

func isDuplicate(err error) bool {
	return errors.Is(err, models.ErrDuplicateActiveDocument)
}

func isLockTimeout(err error) bool {
	return errors.Is(err, models.ErrLockTimeout)
}
