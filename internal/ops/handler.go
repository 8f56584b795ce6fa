// Package ops is the operational HTTP surface of the engine daemon: health,
// metrics, ledger verification and reviewer decisions on open flags.
package ops

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	ledger "rollguard/internal/ledger/models"
	"rollguard/internal/platform/metrics"
	"rollguard/internal/platform/middleware"
	dErrors "rollguard/pkg/domain-errors"
	"rollguard/pkg/platform/httputil"
)

const readinessTimeout = 2 * time.Second

// LedgerVerifier replays a chain.
type LedgerVerifier interface {
	Verify(ctx context.Context, chain string) (*ledger.Verification, error)
}

// Check is one readiness dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handler struct {
	ledger   LedgerVerifier
	flags    FlagResolver
	clusters ClusterReviewer
	checks   []Check
	logger   *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithCheck adds a readiness probe. Probes run in registration order.
func WithCheck(name string, probe func(ctx context.Context) error) Option {
	return func(h *Handler) {
		h.checks = append(h.checks, Check{Name: name, Probe: probe})
	}
}

func New(verifier LedgerVerifier, opts ...Option) *Handler {
	h := &Handler{ledger: verifier, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NewRouter mounts the handler behind the shared middleware chain.
func NewRouter(h *Handler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	h.Register(r)
	return r
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/readyz", h.handleReady)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ledger/{chain}/verify", h.handleVerify)
	h.registerReview(r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := readinessResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.Probe(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness check failed", "check", c.Name, "error", err)
			resp.Checks[c.Name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.Name] = "ok"
	}
	httputil.WriteJSON(w, status, resp)
}

type verificationResponse struct {
	Chain             string          `json:"chain"`
	Valid             bool            `json:"valid"`
	Blocks            int64           `json:"blocks"`
	FirstInvalidIndex *int64          `json:"first_invalid_index,omitempty"`
	Issues            []issueResponse `json:"issues"`
}

type issueResponse struct {
	Sequence int64  `json:"sequence"`
	Kind     string `json:"kind"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// handleVerify answers 200 for a valid chain and 409 with the findings for a
// broken one, so monitors can alert on status alone.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	chain := chi.URLParam(r, "chain")
	v, err := h.ledger.Verify(r.Context(), chain)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(r.Context(), "ledger verification failed", "chain", chain, "error", err)
		}
		httputil.WriteError(w, err)
		return
	}

	resp := verificationResponse{
		Chain:             v.Chain,
		Valid:             v.Valid,
		Blocks:            v.Blocks,
		FirstInvalidIndex: v.FirstInvalidIndex,
		Issues:            make([]issueResponse, 0, len(v.Issues)),
	}
	for _, is := range v.Issues {
		resp.Issues = append(resp.Issues, issueResponse{
			Sequence: is.Sequence,
			Kind:     string(is.Kind),
			Expected: is.Expected,
			Actual:   is.Actual,
		})
	}
	status := http.StatusOK
	if !v.Valid {
		status = http.StatusConflict
	}
	httputil.WriteJSON(w, status, resp)
}
