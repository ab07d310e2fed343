// Package models holds the case-file entities that documents are issued
// against. They are owned by the wider case-management system; this service
// only reads them.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CaseFile bundles properties and applicants and scopes legal numbering.
type CaseFile struct {
	ID string `json:"id"`
	// OpeningNumber is printed after the sequence in legal numbers ("003/25").
	OpeningNumber string    `json:"opening_number"`
	DistrictID    string    `json:"district_id"`
	Title         string    `json:"title"`
	OpenedAt      time.Time `json:"opened_at"`
}

type Property struct {
	ID              string          `json:"id"`
	CaseFileID      string          `json:"case_file_id"`
	DistrictID      string          `json:"district_id"`
	Reference       string          `json:"reference"`
	LandUseCategory string          `json:"land_use_category"`
	Area            decimal.Decimal `json:"area"`
}

type ApplicantStatus string

const (
	ApplicantActive     ApplicantStatus = "ACTIVE"
	ApplicantSuperseded ApplicantStatus = "SUPERSEDED"
)

// Applicant is one of possibly several joint applicants on a property.
// Share is the amount this applicant owes, in the smallest currency unit.
type Applicant struct {
	ID         string          `json:"id"`
	PropertyID string          `json:"property_id"`
	FullName   string          `json:"full_name"`
	NationalID string          `json:"national_id"`
	Share      int64           `json:"share"`
	Status     ApplicantStatus `json:"status"`
	Position   int             `json:"position"`
}

func (a Applicant) IsActive() bool {
	return a.Status == ApplicantActive
}

// UnitPrice is the district's configured price per unit of area for one
// land-use category.
type UnitPrice struct {
	DistrictID      string `json:"district_id"`
	LandUseCategory string `json:"land_use_category"`
	Amount          int64  `json:"amount"`
}
