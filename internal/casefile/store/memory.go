package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"landdocs/internal/casefile/models"
	"landdocs/pkg/platform/sentinel"
)

// InMemory is a seeded repository for tests and single-process demos.
type InMemory struct {
	mu         sync.RWMutex
	caseFiles  map[string]models.CaseFile
	properties map[string]models.Property
	applicants map[string]models.Applicant
	prices     map[priceKey]int64
}

type priceKey struct {
	district string
	category string
}

func NewInMemory() *InMemory {
	return &InMemory{
		caseFiles:  make(map[string]models.CaseFile),
		properties: make(map[string]models.Property),
		applicants: make(map[string]models.Applicant),
		prices:     make(map[priceKey]int64),
	}
}

func (s *InMemory) PutCaseFile(cf models.CaseFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caseFiles[cf.ID] = cf
}

func (s *InMemory) PutProperty(p models.Property) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.properties[p.ID] = p
}

func (s *InMemory) PutApplicant(a models.Applicant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applicants[a.ID] = a
}

// SetApplicantStatus flips an applicant between active and superseded.
func (s *InMemory) SetApplicantStatus(id string, status models.ApplicantStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applicants[id]
	if !ok {
		return fmt.Errorf("applicant %s: %w", id, sentinel.ErrNotFound)
	}
	a.Status = status
	s.applicants[id] = a
	return nil
}

func (s *InMemory) PutUnitPrice(p models.UnitPrice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[priceKey{p.DistrictID, p.LandUseCategory}] = p.Amount
}

func (s *InMemory) GetCaseFile(_ context.Context, id string) (*models.CaseFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cf, ok := s.caseFiles[id]
	if !ok {
		return nil, fmt.Errorf("case file %s: %w", id, sentinel.ErrNotFound)
	}
	return &cf, nil
}

func (s *InMemory) GetProperty(_ context.Context, id string) (*models.Property, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, fmt.Errorf("property %s: %w", id, sentinel.ErrNotFound)
	}
	return &p, nil
}

// GetApplicants returns every applicant on the property, active or not,
// ordered by position then id.
func (s *InMemory) GetApplicants(_ context.Context, propertyID string) ([]models.Applicant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Applicant
	for _, a := range s.applicants {
		if a.PropertyID == propertyID {
			out = append(out, a)
		}
	}
	sortApplicants(out)
	return out, nil
}

// GetUnitPrice looks the price up through the case file's district.
func (s *InMemory) GetUnitPrice(_ context.Context, caseFileID, landUseCategory string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cf, ok := s.caseFiles[caseFileID]
	if !ok {
		return 0, false, fmt.Errorf("case file %s: %w", caseFileID, sentinel.ErrNotFound)
	}
	amount, ok := s.prices[priceKey{cf.DistrictID, landUseCategory}]
	return amount, ok, nil
}

func sortApplicants(as []models.Applicant) {
	sort.SliceStable(as, func(i, j int) bool {
		if as[i].Position != as[j].Position {
			return as[i].Position < as[j].Position
		}
		return as[i].ID < as[j].ID
	})
}
