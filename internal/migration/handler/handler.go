package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/migration"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/httputil"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/requestcontext"
)

const (
	defaultProgressAfter = 2 * time.Second
	defaultRunTimeout    = 30 * time.Second
)

// Service defines the migration operation the handler needs.
type Service interface {
	Migrate(ctx context.Context, req migration.MigrateRequest) (*migration.Result, error)
}

// Handler serves the migration endpoint.
type Handler struct {
	service       Service
	logger        *slog.Logger
	progressAfter time.Duration
	runTimeout    time.Duration
}

type Option func(*Handler)

// WithProgressAfter sets how long the handler waits before answering 202.
func WithProgressAfter(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.progressAfter = d
		}
	}
}

// WithRunTimeout bounds a migration that continues after the 202 response.
func WithRunTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.runTimeout = d
		}
	}
}

func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		service:       service,
		logger:        logger,
		progressAfter: defaultProgressAfter,
		runTimeout:    defaultRunTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts migration endpoints. The caller wraps r with RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/groups/migrate", h.HandleMigrate)
}

type outcome struct {
	result *migration.Result
	err    error
}

// HandleMigrate handles POST /groups/migrate.
func (h *Handler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[MigrateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	// The migration must not be torn down when the client stops waiting.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.runTimeout)
	done := make(chan outcome, 1)
	go func() {
		defer cancel()
		res, err := h.service.Migrate(runCtx, migration.MigrateRequest{
			UserID:              userID,
			RegistrationGroupID: req.RegistrationGroupID,
			GroupName:           req.name(),
		})
		done <- outcome{result: res, err: err}
	}()

	timer := time.NewTimer(h.progressAfter)
	defer timer.Stop()

	select {
	case out := <-done:
		h.writeOutcome(ctx, w, req.RegistrationGroupID, out)
	case <-timer.C:
		h.logger.InfoContext(ctx, "migration still running, answering with progress",
			"request_id", requestID,
			"registration_group_id", req.RegistrationGroupID,
		)
		w.Header().Set("Retry-After", strconv.Itoa(int(h.progressAfter.Round(time.Second)/time.Second)+1))
		httputil.WriteJSON(w, http.StatusAccepted, ProcessingResponse{
			Status:              "processing",
			RegistrationGroupID: req.RegistrationGroupID,
		})
	case <-ctx.Done():
		h.logger.WarnContext(ctx, "client left before migration finished",
			"request_id", requestID,
			"registration_group_id", req.RegistrationGroupID,
		)
	}
}

func (h *Handler) writeOutcome(ctx context.Context, w http.ResponseWriter, rg string, out outcome) {
	requestID := requestcontext.RequestID(ctx)
	if out.err != nil {
		if am, ok := migration.AsAlreadyMigrated(out.err); ok {
			httputil.WriteJSON(w, http.StatusConflict, AlreadyMigratedResponse{
				Error:                string(dErrors.CodeConflict),
				ErrorDescription:     "registration group has already been migrated",
				AuthenticatedGroupID: am.AuthenticatedGroupID.String(),
				MigrationID:          am.MigrationID.String(),
				Name:                 am.GroupName,
			})
			return
		}
		h.logger.WarnContext(ctx, "migration failed",
			"request_id", requestID,
			"registration_group_id", rg,
			"error", out.err,
		)
		httputil.WriteError(w, out.err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, MigrateResponse{
		AuthenticatedGroupID: out.result.AuthenticatedGroupID.String(),
		Name:                 out.result.Name,
		DevicesMigrated:      out.result.DevicesMigrated,
		MigrationID:          out.result.MigrationID.String(),
	})
}
