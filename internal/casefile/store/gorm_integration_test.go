//go:build integration

package store_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"landdocs/internal/casefile/models"
	"landdocs/internal/casefile/store"
	"landdocs/pkg/platform/sentinel"
	"landdocs/pkg/testutil/containers"
)

type GormSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Gorm
}

func TestGormSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(GormSuite))
}

func (s *GormSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	var err error
	s.store, err = store.NewGorm(s.postgres.DB)
	s.Require().NoError(err)
	s.Require().NoError(s.store.AutoMigrate(context.Background()))
}

func (s *GormSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.postgres.TruncateTables(ctx, "case_files", "properties", "applicants", "unit_prices"))
	s.Require().NoError(s.store.PutCaseFile(ctx, models.CaseFile{ID: "C", OpeningNumber: "25", DistrictID: "D1"}))
	s.Require().NoError(s.store.PutProperty(ctx, models.Property{
		ID: "P", CaseFileID: "C", DistrictID: "D1", LandUseCategory: "residential", Area: decimal.RequireFromString("120.5"),
	}))
	s.Require().NoError(s.store.PutUnitPrice(ctx, models.UnitPrice{DistrictID: "D1", LandUseCategory: "residential", Amount: 40}))
}

func (s *GormSuite) TestRoundTrip() {
	ctx := context.Background()
	s.Require().NoError(s.store.PutApplicant(ctx, models.Applicant{ID: "A2", PropertyID: "P", FullName: "Second", Share: 200, Status: models.ApplicantActive, Position: 2}))
	s.Require().NoError(s.store.PutApplicant(ctx, models.Applicant{ID: "A1", PropertyID: "P", FullName: "First", Share: 100, Status: models.ApplicantActive, Position: 1}))

	cf, err := s.store.GetCaseFile(ctx, "C")
	s.Require().NoError(err)
	s.Equal("D1", cf.DistrictID)

	p, err := s.store.GetProperty(ctx, "P")
	s.Require().NoError(err)
	s.True(decimal.RequireFromString("120.5").Equal(p.Area))

	as, err := s.store.GetApplicants(ctx, "P")
	s.Require().NoError(err)
	s.Require().Len(as, 2)
	s.Equal("A1", as[0].ID)

	amount, ok, err := s.store.GetUnitPrice(ctx, "C", "residential")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(int64(40), amount)
}

func (s *GormSuite) TestMissingRowsMapToSentinel() {
	ctx := context.Background()
	_, err := s.store.GetCaseFile(ctx, "nope")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, ok, err := s.store.GetUnitPrice(ctx, "C", "industrial")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *GormSuite) TestLoadSeedUpserts() {
	ctx := context.Background()
	seed, err := store.ReadSeedFile("testdata/seed.json")
	s.Require().NoError(err)

	s.Require().NoError(s.store.Load(ctx, seed))
	s.Require().NoError(s.store.Load(ctx, seed))

	applicants, err := s.store.GetApplicants(ctx, "P-7")
	s.Require().NoError(err)
	s.Len(applicants, 3)

	price, ok, err := s.store.GetUnitPrice(ctx, "C-2025-001", "residential")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(int64(40), price)
}
