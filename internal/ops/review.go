package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	clusters "rollguard/internal/clusters/models"
	dedupe "rollguard/internal/dedupe/models"
	"rollguard/internal/platform/middleware"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

// FlagResolver applies reviewer decisions to duplicate flags.
type FlagResolver interface {
	Resolve(ctx context.Context, id uuid.UUID, res dedupe.Resolution) (*dedupe.DuplicateFlag, error)
}

// ClusterReviewer moves address cluster flags through review.
type ClusterReviewer interface {
	Assign(ctx context.Context, id uuid.UUID, reviewer string) (*clusters.AddressClusterFlag, error)
	Resolve(ctx context.Context, id uuid.UUID, reviewer string, confirmed bool, note string) (*clusters.AddressClusterFlag, error)
}

// WithFlagResolver mounts POST /flags/{id}/resolve.
func WithFlagResolver(r FlagResolver) Option {
	return func(h *Handler) {
		h.flags = r
	}
}

// WithClusterReviewer mounts POST /clusters/{id}/assign and /clusters/{id}/resolve.
func WithClusterReviewer(r ClusterReviewer) Option {
	return func(h *Handler) {
		h.clusters = r
	}
}

func (h *Handler) registerReview(r chi.Router) {
	if h.flags != nil {
		r.Post("/flags/{id}/resolve", h.handleResolveFlag)
	}
	if h.clusters != nil {
		r.Post("/clusters/{id}/assign", h.handleAssignCluster)
		r.Post("/clusters/{id}/resolve", h.handleResolveCluster)
	}
}

type resolveFlagRequest struct {
	Action      string     `json:"action"`
	Reviewer    string     `json:"reviewer"`
	Note        string     `json:"note"`
	MergedInto  string     `json:"merged_into"`
	AppealUntil *time.Time `json:"appeal_until"`
}

type flagResponse struct {
	ID          string     `json:"id"`
	Scope       string     `json:"scope"`
	RecordA     string     `json:"record_a"`
	RecordB     string     `json:"record_b"`
	Combined    float64    `json:"combined"`
	Tier        string     `json:"tier"`
	Status      string     `json:"status"`
	Reviewer    string     `json:"reviewer,omitempty"`
	Note        string     `json:"note,omitempty"`
	MergedInto  string     `json:"merged_into,omitempty"`
	AppealUntil *time.Time `json:"appeal_until,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

func (h *Handler) handleResolveFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req resolveFlagRequest
	if !h.decode(w, r, &req) {
		return
	}

	flag, err := h.flags.Resolve(ctx, id, dedupe.Resolution{
		Action:      dedupe.Action(req.Action),
		Reviewer:    req.Reviewer,
		Note:        req.Note,
		MergedInto:  req.MergedInto,
		AppealUntil: req.AppealUntil,
	})
	if err != nil {
		h.writeReviewError(ctx, w, "flag resolution failed", id, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, flagResponse{
		ID:          flag.ID.String(),
		Scope:       flag.Scope,
		RecordA:     flag.RecordA,
		RecordB:     flag.RecordB,
		Combined:    flag.Score.Combined,
		Tier:        string(flag.Score.Tier),
		Status:      string(flag.Status),
		Reviewer:    flag.Reviewer,
		Note:        flag.Note,
		MergedInto:  flag.MergedInto,
		AppealUntil: flag.AppealUntil,
		ResolvedAt:  flag.ResolvedAt,
	})
}

type assignClusterRequest struct {
	Reviewer string `json:"reviewer"`
}

type resolveClusterRequest struct {
	Reviewer  string `json:"reviewer"`
	Confirmed bool   `json:"confirmed"`
	Note      string `json:"note"`
}

type clusterResponse struct {
	ID               string   `json:"id"`
	CanonicalAddress string   `json:"canonical_address"`
	VoterCount       int      `json:"voter_count"`
	RiskLevel        string   `json:"risk_level"`
	RiskScore        float64  `json:"risk_score"`
	Reasons          []string `json:"reasons"`
	Status           string   `json:"status"`
	Reviewer         string   `json:"reviewer,omitempty"`
	Note             string   `json:"note,omitempty"`
}

func newClusterResponse(f *clusters.AddressClusterFlag) clusterResponse {
	return clusterResponse{
		ID:               f.ID.String(),
		CanonicalAddress: f.CanonicalAddress,
		VoterCount:       f.VoterCount,
		RiskLevel:        string(f.RiskLevel),
		RiskScore:        f.RiskScore,
		Reasons:          f.Reasons,
		Status:           string(f.Status),
		Reviewer:         f.Reviewer,
		Note:             f.Note,
	}
}

func (h *Handler) handleAssignCluster(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req assignClusterRequest
	if !h.decode(w, r, &req) {
		return
	}
	flag, err := h.clusters.Assign(r.Context(), id, req.Reviewer)
	if err != nil {
		h.writeReviewError(r.Context(), w, "cluster assignment failed", id, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newClusterResponse(flag))
}

func (h *Handler) handleResolveCluster(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req resolveClusterRequest
	if !h.decode(w, r, &req) {
		return
	}
	flag, err := h.clusters.Resolve(r.Context(), id, req.Reviewer, req.Confirmed, req.Note)
	if err != nil {
		h.writeReviewError(r.Context(), w, "cluster resolution failed", id, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, newClusterResponse(flag))
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "id must be a uuid"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.logger.WarnContext(r.Context(), "invalid review request",
			"request_id", middleware.GetRequestID(r.Context()),
			"error", err,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) writeReviewError(ctx context.Context, w http.ResponseWriter, msg string, id uuid.UUID, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, "id", id, "request_id", middleware.GetRequestID(ctx), "error", err)
	}
	httputil.WriteError(w, err)
}
