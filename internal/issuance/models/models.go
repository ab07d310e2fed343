package models

import (
	"fmt"
	"strings"
	"time"
)

type DocumentType string

const (
	Receipt       DocumentType = "RECEIPT"
	SaleDeed      DocumentType = "SALE_DEED"
	FinancialCert DocumentType = "FINANCIAL_CERT"
	Requisition   DocumentType = "REQUISITION"
)

// ParseDocumentType accepts the canonical upper-case names.
func ParseDocumentType(s string) (DocumentType, error) {
	t := DocumentType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := policies[t]; !ok {
		return "", fmt.Errorf("unknown document type %q", s)
	}
	return t, nil
}

type Status string

const (
	StatusActive     Status = "ACTIVE"
	StatusSuperseded Status = "SUPERSEDED"
	StatusDeleted    Status = "DELETED"
)

// DocumentRecord is one row in the issuance ledger.
//
// Invariants:
//   - at most one ACTIVE record per ScopeKey
//   - LegalNumber and Sequence never change once assigned; a reissued
//     successor copies them from its predecessor
//   - DownloadCount and RegenerationCount only grow
type DocumentRecord struct {
	ID           string       `json:"id"`
	DocumentType DocumentType `json:"document_type"`
	ScopeKey     ScopeKey     `json:"scope"`
	// LegalNumber is empty for documents that carry no number.
	LegalNumber string `json:"legal_number,omitempty"`
	// Sequence backs LegalNumber for types that allocate their own number.
	// Zero when the number is inherited or absent.
	Sequence          int        `json:"sequence,omitempty"`
	Status            Status     `json:"status"`
	ArtifactRef       string     `json:"artifact_ref"`
	DownloadCount     int        `json:"download_count"`
	RegenerationCount int        `json:"regeneration_count"`
	CreatedAt         time.Time  `json:"created_at"`
	CreatedBy         string     `json:"created_by"`
	LastRegeneratedAt *time.Time `json:"last_regenerated_at,omitempty"`
	Snapshot          Snapshot   `json:"metadata"`
	// ReferenceID is the record whose number this one carries (a sale deed
	// printing its lead applicant's receipt number).
	ReferenceID  string     `json:"reference_id,omitempty"`
	SupersededBy string     `json:"superseded_by,omitempty"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeletedBy    string     `json:"deleted_by,omitempty"`
}

func (r *DocumentRecord) IsActive() bool {
	return r.Status == StatusActive
}

// Clone returns a deep copy so stores can hand out records without sharing
// maps or pointers.
func (r *DocumentRecord) Clone() *DocumentRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Snapshot = r.Snapshot.Clone()
	if r.LastRegeneratedAt != nil {
		t := *r.LastRegeneratedAt
		c.LastRegeneratedAt = &t
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

// Snapshot is everything needed to render the same artifact again without
// consulting live entity state.
type Snapshot struct {
	Variables          map[string]string `json:"variables"`
	RepeatCount        int               `json:"repeat_count"`
	ConsolidatedAmount int64             `json:"consolidated_amount"`
	ApplicantIDs       []string          `json:"applicant_ids,omitempty"`
	// Checksum is the hex SHA-256 of the rendered bytes.
	Checksum string `json:"checksum"`
}

func (s Snapshot) Clone() Snapshot {
	c := s
	if s.Variables != nil {
		c.Variables = make(map[string]string, len(s.Variables))
		for k, v := range s.Variables {
			c.Variables[k] = v
		}
	}
	c.ApplicantIDs = append([]string(nil), s.ApplicantIDs...)
	return c
}

// Outcome says which path an issuance took.
type Outcome string

const (
	OutcomeCreated    Outcome = "CREATED"
	OutcomeReused     Outcome = "REUSED"
	OutcomeSelfHealed Outcome = "SELF_HEALED"
	OutcomeReissued   Outcome = "REISSUED"
)

// IssueRequest asks for the document identified by its scope. ActorID is the
// clerk on whose behalf the call is made.
type IssueRequest struct {
	DocumentType DocumentType      `json:"document_type"`
	CaseFileID   string            `json:"case_file_id"`
	PropertyID   string            `json:"property_id"`
	ApplicantIDs []string          `json:"applicant_ids,omitempty"`
	DistrictID   string            `json:"district_id"`
	ExtraFields  map[string]string `json:"extra_fields,omitempty"`
	ActorID      string            `json:"-"`
}

// IssueResult carries the ledger row and the artifact bytes to hand out.
type IssueResult struct {
	Record   *DocumentRecord
	Artifact []byte
	Outcome  Outcome
}

// NumberPreview is an advisory estimate and reserves nothing.
type NumberPreview struct {
	CaseFileID   string       `json:"case_file_id"`
	DocumentType DocumentType `json:"document_type"`
	LegalNumber  string       `json:"legal_number"`
	Advisory     bool         `json:"advisory"`
}
