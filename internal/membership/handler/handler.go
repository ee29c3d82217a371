package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/membership"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/httputil"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/requestcontext"
)

// Service defines the membership operations the handler needs.
type Service interface {
	Add(ctx context.Context, caller id.UserID, deviceID id.DeviceID, groupID id.GroupID) (*domain.Membership, error)
	Remove(ctx context.Context, caller id.UserID, deviceID id.DeviceID, groupID id.GroupID) error
	ListDevices(ctx context.Context, caller id.UserID, groupID id.GroupID, page membership.Page, includeLocation bool) (*membership.DevicePage, error)
	ListGroups(ctx context.Context, caller id.UserID, deviceID id.DeviceID) ([]domain.DeviceGroup, error)
	MemberDeviceCounts(ctx context.Context, caller id.UserID, groupID id.GroupID) ([]domain.MemberDeviceCount, error)
}

// Handler serves device-group membership endpoints.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts membership endpoints. The caller wraps r with RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/groups/{groupId}/devices", h.HandleAddDevice)
	r.Delete("/groups/{groupId}/devices/{deviceId}", h.HandleRemoveDevice)
	r.Get("/groups/{groupId}/devices", h.HandleListDevices)
	r.Get("/groups/{groupId}/members", h.HandleListMembers)
	r.Get("/devices/{deviceId}/groups", h.HandleListDeviceGroups)
}

// HandleAddDevice handles POST /groups/{groupId}/devices.
func (h *Handler) HandleAddDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	groupID, ok := h.groupParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[AddDeviceRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	m, err := h.service.Add(ctx, caller, req.deviceID, groupID)
	if err != nil {
		h.fail(ctx, w, "add device to group failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toMembershipResponse(m))
}

// HandleRemoveDevice handles DELETE /groups/{groupId}/devices/{deviceId}.
func (h *Handler) HandleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	groupID, ok := h.groupParam(w, r)
	if !ok {
		return
	}
	deviceID, ok := h.deviceParam(w, r)
	if !ok {
		return
	}

	if err := h.service.Remove(ctx, caller, deviceID, groupID); err != nil {
		h.fail(ctx, w, "remove device from group failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListDevices handles GET /groups/{groupId}/devices.
func (h *Handler) HandleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	groupID, ok := h.groupParam(w, r)
	if !ok {
		return
	}
	page, includeLocation, err := parseListQuery(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	result, err := h.service.ListDevices(ctx, caller, groupID, page, includeLocation)
	if err != nil {
		h.fail(ctx, w, "list group devices failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toDeviceListResponse(result))
}

// HandleListMembers handles GET /groups/{groupId}/members.
func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	groupID, ok := h.groupParam(w, r)
	if !ok {
		return
	}

	counts, err := h.service.MemberDeviceCounts(ctx, caller, groupID)
	if err != nil {
		h.fail(ctx, w, "list group members failed", err)
		return
	}
	resp := MemberListResponse{Members: make([]MemberResponse, 0, len(counts))}
	for _, c := range counts {
		resp.Members = append(resp.Members, MemberResponse{
			UserID:      c.UserID.String(),
			Role:        string(c.Role),
			DeviceCount: c.DeviceCount,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// HandleListDeviceGroups handles GET /devices/{deviceId}/groups.
func (h *Handler) HandleListDeviceGroups(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	deviceID, ok := h.deviceParam(w, r)
	if !ok {
		return
	}

	groups, err := h.service.ListGroups(ctx, caller, deviceID)
	if err != nil {
		h.fail(ctx, w, "list device groups failed", err)
		return
	}
	resp := DeviceGroupListResponse{Groups: make([]DeviceGroupResponse, 0, len(groups))}
	for _, g := range groups {
		resp.Groups = append(resp.Groups, DeviceGroupResponse{
			GroupID: g.GroupID.String(),
			Name:    g.Name,
			Role:    string(g.Role),
			AddedAt: g.AddedAt,
		})
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) caller(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return userID, false
	}
	return userID, true
}

func (h *Handler) groupParam(w http.ResponseWriter, r *http.Request) (id.GroupID, bool) {
	groupID, err := id.ParseGroupID(chi.URLParam(r, "groupId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "groupId must be a UUID"))
		return groupID, false
	}
	return groupID, true
}

func (h *Handler) deviceParam(w http.ResponseWriter, r *http.Request) (id.DeviceID, bool) {
	deviceID, err := id.ParseDeviceID(chi.URLParam(r, "deviceId"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "deviceId must be a UUID"))
		return deviceID, false
	}
	return deviceID, true
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}

func parseListQuery(r *http.Request) (membership.Page, bool, error) {
	q := r.URL.Query()
	var page membership.Page
	var err error
	if v := q.Get("limit"); v != "" {
		if page.Limit, err = strconv.Atoi(v); err != nil {
			return page, false, dErrors.New(dErrors.CodeValidation, "limit must be an integer")
		}
		if page.Limit == 0 {
			return page, false, dErrors.New(dErrors.CodeValidation, "limit must be positive")
		}
	}
	if v := q.Get("offset"); v != "" {
		if page.Offset, err = strconv.Atoi(v); err != nil {
			return page, false, dErrors.New(dErrors.CodeValidation, "offset must be an integer")
		}
	}
	includeLocation := false
	if v := q.Get("include_location"); v != "" {
		if includeLocation, err = strconv.ParseBool(v); err != nil {
			return page, false, dErrors.New(dErrors.CodeValidation, "include_location must be a boolean")
		}
	}
	return page, includeLocation, nil
}
