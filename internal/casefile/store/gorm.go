package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"landdocs/internal/casefile/models"
	"landdocs/pkg/platform/sentinel"
)

// Row types mirror the case-management tables. They stay private so the rest
// of the service only sees models.

type caseFileRow struct {
	ID            string `gorm:"primaryKey"`
	OpeningNumber string `gorm:"not null"`
	DistrictID    string `gorm:"not null;index"`
	Title         string
	OpenedAt      time.Time
}

func (caseFileRow) TableName() string { return "case_files" }

type propertyRow struct {
	ID              string `gorm:"primaryKey"`
	CaseFileID      string `gorm:"not null;index"`
	DistrictID      string `gorm:"not null"`
	Reference       string
	LandUseCategory string          `gorm:"not null"`
	Area            decimal.Decimal `gorm:"type:numeric(14,4);not null"`
}

func (propertyRow) TableName() string { return "properties" }

type applicantRow struct {
	ID         string `gorm:"primaryKey"`
	PropertyID string `gorm:"not null;index"`
	FullName   string `gorm:"not null"`
	NationalID string
	Share      int64  `gorm:"not null"`
	Status     string `gorm:"not null;default:'ACTIVE'"`
	Position   int    `gorm:"not null;default:0"`
}

func (applicantRow) TableName() string { return "applicants" }

type unitPriceRow struct {
	DistrictID      string `gorm:"primaryKey"`
	LandUseCategory string `gorm:"primaryKey"`
	Amount          int64  `gorm:"not null"`
}

func (unitPriceRow) TableName() string { return "unit_prices" }

// Gorm reads case-file entities from Postgres.
type Gorm struct {
	db *gorm.DB
}

// NewGorm shares an existing *sql.DB pool with gorm.
func NewGorm(sqlDB *sql.DB) (*Gorm, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &Gorm{db: db}, nil
}

// AutoMigrate creates the case-file tables. Production schemas are owned by
// the case-management system; this is for local runs and tests.
func (s *Gorm) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&caseFileRow{}, &propertyRow{}, &applicantRow{}, &unitPriceRow{})
}

func (s *Gorm) GetCaseFile(ctx context.Context, id string) (*models.CaseFile, error) {
	var row caseFileRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "case file", id)
	}
	return &models.CaseFile{
		ID:            row.ID,
		OpeningNumber: row.OpeningNumber,
		DistrictID:    row.DistrictID,
		Title:         row.Title,
		OpenedAt:      row.OpenedAt,
	}, nil
}

func (s *Gorm) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	var row propertyRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "property", id)
	}
	return &models.Property{
		ID:              row.ID,
		CaseFileID:      row.CaseFileID,
		DistrictID:      row.DistrictID,
		Reference:       row.Reference,
		LandUseCategory: row.LandUseCategory,
		Area:            row.Area,
	}, nil
}

func (s *Gorm) GetApplicants(ctx context.Context, propertyID string) ([]models.Applicant, error) {
	var rows []applicantRow
	err := s.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Order("position ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list applicants: %w", err)
	}
	out := make([]models.Applicant, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Applicant{
			ID:         r.ID,
			PropertyID: r.PropertyID,
			FullName:   r.FullName,
			NationalID: r.NationalID,
			Share:      r.Share,
			Status:     models.ApplicantStatus(r.Status),
			Position:   r.Position,
		})
	}
	return out, nil
}

func (s *Gorm) GetUnitPrice(ctx context.Context, caseFileID, landUseCategory string) (int64, bool, error) {
	var row unitPriceRow
	err := s.db.WithContext(ctx).
		Joins("JOIN case_files ON case_files.district_id = unit_prices.district_id").
		Where("case_files.id = ? AND unit_prices.land_use_category = ?", caseFileID, landUseCategory).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find unit price: %w", err)
	}
	return row.Amount, true, nil
}

// Seed helpers write through the same row types; used by integration tests
// and the dev bootstrap.

func (s *Gorm) PutCaseFile(ctx context.Context, cf models.CaseFile) error {
	return s.db.WithContext(ctx).Save(&caseFileRow{
		ID: cf.ID, OpeningNumber: cf.OpeningNumber, DistrictID: cf.DistrictID, Title: cf.Title, OpenedAt: cf.OpenedAt,
	}).Error
}

func (s *Gorm) PutProperty(ctx context.Context, p models.Property) error {
	return s.db.WithContext(ctx).Save(&propertyRow{
		ID: p.ID, CaseFileID: p.CaseFileID, DistrictID: p.DistrictID, Reference: p.Reference,
		LandUseCategory: p.LandUseCategory, Area: p.Area,
	}).Error
}

func (s *Gorm) PutApplicant(ctx context.Context, a models.Applicant) error {
	return s.db.WithContext(ctx).Save(&applicantRow{
		ID: a.ID, PropertyID: a.PropertyID, FullName: a.FullName, NationalID: a.NationalID,
		Share: a.Share, Status: string(a.Status), Position: a.Position,
	}).Error
}

func (s *Gorm) PutUnitPrice(ctx context.Context, p models.UnitPrice) error {
	return s.db.WithContext(ctx).Save(&unitPriceRow{
		DistrictID: p.DistrictID, LandUseCategory: p.LandUseCategory, Amount: p.Amount,
	}).Error
}

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, sentinel.ErrNotFound)
	}
	return fmt.Errorf("find %s: %w", what, err)
}
