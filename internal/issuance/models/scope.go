package models

import "strings"

const (
	// NoApplicant fills the applicant slot for types scoped to the property.
	NoApplicant = "-"
	// AllApplicants marks a scope covering the property's co-applicant set.
	AllApplicants = "*"
)

// ScopeKey identifies which logical document a request is about. It is the
// uniqueness and locking granularity of the ledger.
type ScopeKey struct {
	CaseFileID   string       `json:"case_file_id"`
	DocumentType DocumentType `json:"document_type"`
	PropertyID   string       `json:"property_id"`
	ApplicantID  string       `json:"applicant_id"`
	DistrictID   string       `json:"district_id"`
}

// String is the canonical form stored and hashed for locking.
func (k ScopeKey) String() string {
	return strings.Join([]string{
		k.CaseFileID,
		string(k.DocumentType),
		k.PropertyID,
		k.ApplicantID,
		k.DistrictID,
	}, "|")
}

// SequenceKey names the counter shared by all scopes of one type in one
// case file.
func SequenceKey(caseFileID string, t DocumentType) string {
	return "seq|" + caseFileID + "|" + string(t)
}
