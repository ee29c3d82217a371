package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/status"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/httputil"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/requestcontext"
)

// Service defines the status lookup the handler needs.
type Service interface {
	RegistrationGroupStatus(ctx context.Context, userID id.UserID) (*status.RegistrationGroupStatus, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/users/me/registration-group-status", h.HandleStatus)
}

// StatusResponse is the body of GET /users/me/registration-group-status.
type StatusResponse struct {
	HasRegistrationGroup bool    `json:"has_registration_group"`
	RegistrationGroupID  *string `json:"registration_group_id,omitempty"`
	DeviceCount          int     `json:"device_count"`
	AlreadyMigrated      bool    `json:"already_migrated"`
	MigratedToGroupID    *string `json:"migrated_to_group_id,omitempty"`
}

// HandleStatus handles GET /users/me/registration-group-status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	st, err := h.service.RegistrationGroupStatus(ctx, userID)
	if err != nil {
		h.logger.ErrorContext(ctx, "registration group status failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := StatusResponse{
		HasRegistrationGroup: st.HasRegistrationGroup,
		DeviceCount:          st.DeviceCount,
		AlreadyMigrated:      st.AlreadyMigrated,
	}
	if st.RegistrationGroupID != nil {
		rg := st.RegistrationGroupID.String()
		resp.RegistrationGroupID = &rg
	}
	if st.MigratedToGroupID != nil {
		g := st.MigratedToGroupID.String()
		resp.MigratedToGroupID = &g
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
