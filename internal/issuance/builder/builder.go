// Package builder turns case-file state into a rendered, stored artifact and
// the snapshot needed to render it again.
package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	cfmodels "landdocs/internal/casefile/models"
	"landdocs/internal/issuance/models"
	"landdocs/pkg/platform/sentinel"
)

// Repository reads the case-file entities documents are issued against.
type Repository interface {
	GetCaseFile(ctx context.Context, id string) (*cfmodels.CaseFile, error)
	GetProperty(ctx context.Context, id string) (*cfmodels.Property, error)
	GetApplicants(ctx context.Context, propertyID string) ([]cfmodels.Applicant, error)
	GetUnitPrice(ctx context.Context, caseFileID, landUseCategory string) (int64, bool, error)
}

type Renderer interface {
	Render(ctx context.Context, documentType string, vars map[string]string, repeatCount int) ([]byte, error)
}

type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
}

const dateLayout = "2006-01-02"

// Request is what the builder needs from an issuance. CaseFile is loaded by
// the caller since it also scopes numbering.
type Request struct {
	DocumentType models.DocumentType
	CaseFile     *cfmodels.CaseFile
	PropertyID   string
	ApplicantIDs []string
	ExtraFields  map[string]string
	IssuedAt     time.Time
}

// Plan is a validated render payload still waiting for its legal number.
type Plan struct {
	DocumentType models.DocumentType
	Snapshot     models.Snapshot
	// Lead is the first applicant block, empty for property-level types.
	Lead string
}

// Artifact is a stored rendering.
type Artifact struct {
	Ref      string
	Bytes    []byte
	Snapshot models.Snapshot
}

type Builder struct {
	repo     Repository
	renderer Renderer
	blobs    BlobStore
}

func New(repo Repository, renderer Renderer, blobs BlobStore) *Builder {
	return &Builder{repo: repo, renderer: renderer, blobs: blobs}
}

// Build prepares and renders in one step.
func (b *Builder) Build(ctx context.Context, req Request, legalNumber string) (*Artifact, error) {
	plan, err := b.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	return b.Render(ctx, plan, legalNumber)
}

// Prepare loads live entity state and computes every figure the document
// prints. Call it after the scope lock is held so the applicant set is the
// one the record will be stored with.
func (b *Builder) Prepare(ctx context.Context, req Request) (*Plan, error) {
	policy, ok := models.PolicyFor(req.DocumentType)
	if !ok {
		return nil, fmt.Errorf("prepare: unknown document type %q", req.DocumentType)
	}
	if req.CaseFile == nil {
		return nil, fmt.Errorf("prepare %s: %w", req.DocumentType, models.ErrCaseFileNotFound)
	}

	var (
		property   *cfmodels.Property
		applicants []cfmodels.Applicant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		p, err := b.repo.GetProperty(gctx, req.PropertyID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("property %s: %w", req.PropertyID, models.ErrPropertyNotFound)
		}
		if err != nil {
			return fmt.Errorf("load property: %w", err)
		}
		property = p
		return nil
	})
	if policy.RequiresApplicant || policy.CoApplicants {
		g.Go(func() error {
			as, err := b.repo.GetApplicants(gctx, req.PropertyID)
			if err != nil {
				return fmt.Errorf("load applicants: %w", err)
			}
			applicants = as
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if property.CaseFileID != req.CaseFile.ID {
		return nil, fmt.Errorf("property %s is not in case file %s: %w", property.ID, req.CaseFile.ID, models.ErrPropertyNotFound)
	}

	selected, err := selectApplicants(policy, applicants, req.ApplicantIDs)
	if err != nil {
		return nil, err
	}

	unitPrice, found, err := b.repo.GetUnitPrice(ctx, req.CaseFile.ID, property.LandUseCategory)
	if err != nil {
		return nil, fmt.Errorf("load unit price: %w", err)
	}
	if policy.RequiresPricing && (!found || unitPrice <= 0) {
		return nil, fmt.Errorf("%s in district %s: %w", property.LandUseCategory, req.CaseFile.DistrictID, models.ErrPricingNotConfigured)
	}

	valuation := property.Area.Mul(decimal.NewFromInt(unitPrice)).Round(2)
	var consolidated int64
	ids := make([]string, len(selected))
	for i, a := range selected {
		consolidated += a.Share
		ids[i] = a.ID
	}

	vars := make(map[string]string, 16+4*len(selected))
	for k, v := range req.ExtraFields {
		vars[k] = v
	}
	vars["case_file_id"] = req.CaseFile.ID
	vars["case_file_title"] = req.CaseFile.Title
	vars["district_id"] = req.CaseFile.DistrictID
	vars["property_reference"] = property.Reference
	vars["land_use_category"] = property.LandUseCategory
	vars["area"] = property.Area.StringFixed(2)
	vars["unit_price"] = strconv.FormatInt(unitPrice, 10)
	vars["valuation"] = valuation.StringFixed(2)
	vars["consolidated_amount"] = strconv.FormatInt(consolidated, 10)
	vars["issued_on"] = req.IssuedAt.UTC().Format(dateLayout)
	for i, a := range selected {
		n := strconv.Itoa(i + 1)
		vars["applicant_name#"+n] = a.FullName
		vars["applicant_national_id#"+n] = a.NationalID
		vars["applicant_share#"+n] = strconv.FormatInt(a.Share, 10)
		marker := ""
		if i == 0 && policy.CoApplicants {
			marker = " (lead applicant)"
		}
		vars["applicant_marker#"+n] = marker
	}

	plan := &Plan{
		DocumentType: req.DocumentType,
		Snapshot: models.Snapshot{
			Variables:          vars,
			RepeatCount:        len(selected),
			ConsolidatedAmount: consolidated,
			ApplicantIDs:       ids,
		},
	}
	if len(selected) > 0 {
		plan.Lead = selected[0].ID
	}
	return plan, nil
}

// selectApplicants picks the applicant blocks in property order. Superseded
// applicants are invisible: naming one is ApplicantNotFound.
func selectApplicants(policy models.Policy, all []cfmodels.Applicant, requested []string) ([]cfmodels.Applicant, error) {
	if !policy.RequiresApplicant && !policy.CoApplicants {
		return nil, nil
	}
	active := make([]cfmodels.Applicant, 0, len(all))
	for _, a := range all {
		if a.IsActive() {
			active = append(active, a)
		}
	}
	for _, id := range requested {
		if !slices.ContainsFunc(active, func(a cfmodels.Applicant) bool { return a.ID == id }) {
			return nil, fmt.Errorf("applicant %s: %w", id, models.ErrApplicantNotFound)
		}
	}

	if policy.RequiresApplicant {
		if len(requested) != 1 {
			return nil, fmt.Errorf("expected one applicant, got %d: %w", len(requested), models.ErrApplicantNotFound)
		}
		for _, a := range active {
			if a.ID == requested[0] {
				return []cfmodels.Applicant{a}, nil
			}
		}
	}
	if len(active) == 0 {
		return nil, models.ErrNoActiveApplicants
	}
	return active, nil
}

// Render fills in the legal number, renders, and stores the bytes. The
// returned snapshot carries the checksum and is what the record persists.
func (b *Builder) Render(ctx context.Context, plan *Plan, legalNumber string) (*Artifact, error) {
	snap := plan.Snapshot.Clone()
	snap.Variables["legal_number"] = legalNumber
	return b.renderAndStore(ctx, plan.DocumentType, snap)
}

// Rebuild renders from a stored snapshot alone, without touching live
// entity state. Figures come out exactly as first issued.
func (b *Builder) Rebuild(ctx context.Context, t models.DocumentType, snap models.Snapshot) (*Artifact, error) {
	return b.renderAndStore(ctx, t, snap.Clone())
}

func (b *Builder) renderAndStore(ctx context.Context, t models.DocumentType, snap models.Snapshot) (*Artifact, error) {
	data, err := b.renderer.Render(ctx, string(t), snap.Variables, snap.RepeatCount)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("render %s: %w", t, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", models.ErrTemplateRenderingFailed, err)
	}
	snap.Checksum = Checksum(data)

	ref, err := b.blobs.Put(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrArtifactStorageFailed, err)
	}
	return &Artifact{Ref: ref, Bytes: data, Snapshot: snap}, nil
}

// Checksum is the hex SHA-256 recorded in snapshots.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
