package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"landdocs/internal/issuance/models"
	dErrors "landdocs/pkg/domain-errors"
	"landdocs/pkg/platform/httputil"
	strs "landdocs/pkg/platform/strings"
)

// ActorHeader carries the clerk on whose behalf a request is made.
const ActorHeader = "X-Actor-ID"

// Service is the issuance orchestrator as seen by HTTP.
type Service interface {
	Issue(ctx context.Context, req models.IssueRequest) (*models.IssueResult, error)
	Download(ctx context.Context, id, actorID string) (*models.IssueResult, error)
	Reissue(ctx context.Context, id, actorID string) (*models.IssueResult, error)
	Retire(ctx context.Context, id, actorID string) (*models.DocumentRecord, error)
	PreviewNextNumber(ctx context.Context, caseFileID string, t models.DocumentType) (*models.NumberPreview, error)
	Get(ctx context.Context, id string) (*models.DocumentRecord, error)
	List(ctx context.Context, caseFileID string) ([]*models.DocumentRecord, error)
}

type Handler struct {
	svc    Service
	logger *slog.Logger
}

func New(svc Service, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Register mounts the document routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/case-files/{caseFileID}", func(r chi.Router) {
		r.Post("/documents", h.handleIssue)
		r.Get("/documents", h.handleList)
		r.Get("/numbers/{documentType}/preview", h.handlePreview)
	})
	r.Route("/documents/{documentID}", func(r chi.Router) {
		r.Get("/", h.handleGet)
		r.Get("/download", h.handleDownload)
		r.Post("/reissue", h.handleReissue)
		r.Delete("/", h.handleRetire)
	})
}

type issueRequest struct {
	DocumentType string            `json:"document_type"`
	PropertyID   string            `json:"property_id"`
	ApplicantIDs []string          `json:"applicant_ids,omitempty"`
	DistrictID   string            `json:"district_id"`
	ExtraFields  map[string]string `json:"extra_fields,omitempty"`
}

type issueResponse struct {
	Document *models.DocumentRecord `json:"document"`
	Outcome  models.Outcome         `json:"outcome"`
	// Content is the artifact, base64 encoded.
	Content string `json:"content"`
}

type listResponse struct {
	Documents []*models.DocumentRecord `json:"documents"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := httputil.DecodeJSON[issueRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	docType, err := models.ParseDocumentType(body.DocumentType)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid document_type"))
		return
	}

	res, err := h.svc.Issue(ctx, models.IssueRequest{
		DocumentType: docType,
		CaseFileID:   chi.URLParam(r, "caseFileID"),
		PropertyID:   body.PropertyID,
		ApplicantIDs: strs.DedupeAndTrim(body.ApplicantIDs),
		DistrictID:   body.DistrictID,
		ExtraFields:  body.ExtraFields,
		ActorID:      actor(r),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	status := http.StatusOK
	if res.Outcome == models.OutcomeCreated {
		status = http.StatusCreated
	}
	httputil.WriteJSON(w, status, toIssueResponse(res))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), chi.URLParam(r, "documentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// handleDownload streams the artifact itself rather than a JSON envelope.
func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Download(r.Context(), chi.URLParam(r, "documentID"), actor(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	rec := res.Record
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Artifact)))
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename(rec)))
	w.Header().Set("X-Document-Outcome", string(res.Outcome))
	if rec.LegalNumber != "" {
		w.Header().Set("X-Legal-Number", rec.LegalNumber)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Artifact); err != nil {
		h.logger.WarnContext(r.Context(), "failed to write artifact", "document_id", rec.ID, "error", err)
	}
}

func (h *Handler) handleReissue(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reissue(r.Context(), chi.URLParam(r, "documentID"), actor(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toIssueResponse(res))
}

func (h *Handler) handleRetire(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Retire(r.Context(), chi.URLParam(r, "documentID"), actor(r))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.List(r.Context(), chi.URLParam(r, "caseFileID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if recs == nil {
		recs = []*models.DocumentRecord{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Documents: recs})
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	docType, err := models.ParseDocumentType(chi.URLParam(r, "documentType"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "invalid document type"))
		return
	}
	p, err := h.svc.PreviewNextNumber(r.Context(), chi.URLParam(r, "caseFileID"), docType)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, p)
}

func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

func toIssueResponse(res *models.IssueResult) issueResponse {
	return issueResponse{
		Document: res.Record,
		Outcome:  res.Outcome,
		Content:  base64.StdEncoding.EncodeToString(res.Artifact),
	}
}

func filename(rec *models.DocumentRecord) string {
	name := strings.ToLower(string(rec.DocumentType))
	if rec.LegalNumber != "" {
		name += "-" + strings.ReplaceAll(rec.LegalNumber, "/", "-")
	} else {
		name += "-" + rec.ID
	}
	return name + ".txt"
}
