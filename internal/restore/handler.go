package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-restore/internal/platform/db"
	"github.com/odyssey-erp/odyssey-restore/internal/platform/httpx"
)

// DefaultMaxBatch caps the records accepted by one restore request.
const DefaultMaxBatch = 5000

// HealthSource reports store connectivity. db.Manager satisfies it.
type HealthSource interface {
	Snapshot() db.Health
}

// BatchRestorer is the part of Service the handler drives.
type BatchRestorer interface {
	RestoreBatch(ctx context.Context, records []LegacyRecord, overrideBranch string) (Summary, error)
	SyncBranches(ctx context.Context) (SyncResult, error)
}

// Handler exposes the restore service over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   BatchRestorer
	health    HealthSource
	validator *validator.Validate
	maxBatch  int
	rateLimit int
}

// NewHandler constructs a Handler. maxBatch <= 0 selects DefaultMaxBatch.
func NewHandler(logger *slog.Logger, service BatchRestorer, health HealthSource, maxBatch int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Handler{
		logger:    logger,
		service:   service,
		health:    health,
		validator: validator.New(),
		maxBatch:  maxBatch,
		rateLimit: 10,
	}
}

// MountRoutes registers restore endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(h.rateLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)

	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Post("/inventory/restore", h.handleRestore)
	})
	r.Post("/branches/sync", h.handleSync)
	r.Get("/healthz/db", h.handleHealth)
}

// RestoreRequest is the body of POST /inventory/restore.
type RestoreRequest struct {
	Records        []LegacyRecord `json:"records" validate:"required"`
	OverrideBranch string         `json:"overrideBranch" validate:"max=100"`
}

func (h *Handler) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req RestoreRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validate(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	summary, err := h.service.RestoreBatch(r.Context(), req.Records, req.OverrideBranch)
	if err != nil {
		h.logger.Error("restore batch", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) validate(req RestoreRequest) error {
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed on %s", httpx.ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	if err := h.validator.Var(req.Records, "max="+strconv.Itoa(h.maxBatch)); err != nil {
		return fmt.Errorf("%w: at most %d records per request", httpx.ErrValidation, h.maxBatch)
	}
	return nil
}

func (h *Handler) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.SyncBranches(r.Context())
	if err != nil {
		h.logger.Error("sync branches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		httpx.RespondError(w, httpx.ErrUnavailable)
		return
	}
	snapshot := h.health.Snapshot()
	status := http.StatusOK
	if !snapshot.Connected {
		status = http.StatusServiceUnavailable
	}
	httpx.JSON(w, status, snapshot)
}
