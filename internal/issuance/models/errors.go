package models

import "errors"

// Failure identities. The service wraps them in coded domain errors, so
// callers can match either the code or, with errors.Is, the exact failure.
var (
	ErrCaseFileNotFound        = errors.New("case file not found")
	ErrPropertyNotFound        = errors.New("property not found")
	ErrApplicantNotFound       = errors.New("applicant not found")
	ErrNoActiveApplicants      = errors.New("property has no active applicants")
	ErrPricingNotConfigured    = errors.New("pricing not configured")
	ErrDuplicateActiveDocument = errors.New("duplicate active document")
	ErrTemplateRenderingFailed = errors.New("template rendering failed")
	ErrLockTimeout             = errors.New("lock timeout")
	ErrDocumentNotFound        = errors.New("document not found")
	ErrDocumentNotActive       = errors.New("document is not active")
	ErrDistrictMismatch        = errors.New("district does not match case file")
	ErrNotNumbered             = errors.New("document type does not allocate numbers")
	ErrArtifactStorageFailed   = errors.New("artifact storage failed")
)
