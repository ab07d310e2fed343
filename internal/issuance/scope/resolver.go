// Package scope derives the ledger's uniqueness key from a request.
package scope

import (
	"fmt"
	"strings"

	"landdocs/internal/issuance/models"
	dErrors "landdocs/pkg/domain-errors"
)

// Resolve builds the scope key for one document. It performs no I/O and
// fails only when a field the type's policy needs is missing. For
// co-applicant types applicantID is ignored; the scope always covers the
// whole applicant set.
func Resolve(t models.DocumentType, caseFileID, propertyID, applicantID, districtID string) (models.ScopeKey, error) {
	policy, ok := models.PolicyFor(t)
	if !ok {
		return models.ScopeKey{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown document type %q", t))
	}

	caseFileID = strings.TrimSpace(caseFileID)
	propertyID = strings.TrimSpace(propertyID)
	applicantID = strings.TrimSpace(applicantID)
	districtID = strings.TrimSpace(districtID)

	var missing []string
	if caseFileID == "" {
		missing = append(missing, "case_file_id")
	}
	if propertyID == "" {
		missing = append(missing, "property_id")
	}
	if districtID == "" {
		missing = append(missing, "district_id")
	}
	if policy.RequiresApplicant && applicantID == "" {
		missing = append(missing, "applicant_id")
	}
	if len(missing) > 0 {
		return models.ScopeKey{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("%s requires %s", t, strings.Join(missing, ", ")))
	}

	key := models.ScopeKey{
		CaseFileID:   caseFileID,
		DocumentType: t,
		PropertyID:   propertyID,
		DistrictID:   districtID,
	}
	switch {
	case policy.RequiresApplicant:
		key.ApplicantID = applicantID
	case policy.CoApplicants:
		key.ApplicantID = models.AllApplicants
	default:
		key.ApplicantID = models.NoApplicant
	}
	return key, nil
}

// FromRequest resolves the scope of an issue request. Single-applicant types
// take exactly one applicant id; property-level types take none.
func FromRequest(req models.IssueRequest) (models.ScopeKey, error) {
	policy, ok := models.PolicyFor(req.DocumentType)
	if !ok {
		return models.ScopeKey{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown document type %q", req.DocumentType))
	}
	applicantID := ""
	switch {
	case policy.RequiresApplicant:
		if len(req.ApplicantIDs) > 1 {
			return models.ScopeKey{}, dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("%s is issued to a single applicant", req.DocumentType))
		}
		if len(req.ApplicantIDs) == 1 {
			applicantID = req.ApplicantIDs[0]
		}
	case !policy.CoApplicants && len(req.ApplicantIDs) > 0:
		return models.ScopeKey{}, dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("%s does not take applicants", req.DocumentType))
	}
	return Resolve(req.DocumentType, req.CaseFileID, req.PropertyID, applicantID, req.DistrictID)
}
