package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"gorm.io/gorm"

	"landdocs/internal/casefile/models"
)

// Seed is the JSON fixture the server loads case-file data from when no
// case-management database is attached.
type Seed struct {
	CaseFiles  []models.CaseFile  `json:"case_files"`
	Properties []models.Property  `json:"properties"`
	Applicants []models.Applicant `json:"applicants"`
	UnitPrices []models.UnitPrice `json:"unit_prices"`
}

// ReadSeed decodes and validates a seed. Unknown fields are rejected so a
// typo does not silently drop data.
func ReadSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("decode case-file seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func ReadSeedFile(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open case-file seed: %w", err)
	}
	defer f.Close()
	return ReadSeed(f)
}

// validate checks that every row points at a parent present in the seed.
// Applicants without a status are taken as ACTIVE.
func (s *Seed) validate() error {
	caseFiles := make(map[string]bool, len(s.CaseFiles))
	for _, cf := range s.CaseFiles {
		if cf.ID == "" || cf.DistrictID == "" || cf.OpeningNumber == "" {
			return fmt.Errorf("seed case file %q: id, district_id and opening_number are required", cf.ID)
		}
		caseFiles[cf.ID] = true
	}
	properties := make(map[string]bool, len(s.Properties))
	for _, p := range s.Properties {
		if p.ID == "" {
			return errors.New("seed property without id")
		}
		if !caseFiles[p.CaseFileID] {
			return fmt.Errorf("seed property %s: unknown case file %q", p.ID, p.CaseFileID)
		}
		properties[p.ID] = true
	}
	for i := range s.Applicants {
		a := &s.Applicants[i]
		if a.ID == "" {
			return errors.New("seed applicant without id")
		}
		if !properties[a.PropertyID] {
			return fmt.Errorf("seed applicant %s: unknown property %q", a.ID, a.PropertyID)
		}
		switch a.Status {
		case "":
			a.Status = models.ApplicantActive
		case models.ApplicantActive, models.ApplicantSuperseded:
		default:
			return fmt.Errorf("seed applicant %s: unknown status %q", a.ID, a.Status)
		}
	}
	for _, p := range s.UnitPrices {
		if p.DistrictID == "" || p.LandUseCategory == "" {
			return errors.New("seed unit price needs district_id and land_use_category")
		}
	}
	return nil
}

// Load copies seed into the repository.
func (s *InMemory) Load(seed *Seed) {
	for _, cf := range seed.CaseFiles {
		s.PutCaseFile(cf)
	}
	for _, p := range seed.Properties {
		s.PutProperty(p)
	}
	for _, a := range seed.Applicants {
		s.PutApplicant(a)
	}
	for _, p := range seed.UnitPrices {
		s.PutUnitPrice(p)
	}
}

// Load upserts seed rows in one transaction.
func (s *Gorm) Load(ctx context.Context, seed *Seed) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		g := &Gorm{db: tx}
		for _, cf := range seed.CaseFiles {
			if err := g.PutCaseFile(ctx, cf); err != nil {
				return fmt.Errorf("seed case file %s: %w", cf.ID, err)
			}
		}
		for _, p := range seed.Properties {
			if err := g.PutProperty(ctx, p); err != nil {
				return fmt.Errorf("seed property %s: %w", p.ID, err)
			}
		}
		for _, a := range seed.Applicants {
			if err := g.PutApplicant(ctx, a); err != nil {
				return fmt.Errorf("seed applicant %s: %w", a.ID, err)
			}
		}
		for _, p := range seed.UnitPrices {
			if err := g.PutUnitPrice(ctx, p); err != nil {
				return fmt.Errorf("seed unit price %s/%s: %w", p.DistrictID, p.LandUseCategory, err)
			}
		}
		return nil
	})
}
