package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/ledger"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/httputil"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/requestcontext"
)

// Service defines the ledger query operation.
type Service interface {
	Query(ctx context.Context, f ledger.Filter) (*ledger.Page, error)
}

// Handler serves the admin view of the migration ledger.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts ledger endpoints. The caller wraps r with admin auth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/migrations", h.HandleList)
}

// ListResponse is the body of GET /admin/migrations.
type ListResponse struct {
	Entries []ledger.Event `json:"entries"`
	Total   int            `json:"total"`
	Limit   int            `json:"limit"`
	Offset  int            `json:"offset"`
}

// HandleList handles GET /admin/migrations.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	filter, err := parseFilter(r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid ledger query",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	page, err := h.service.Query(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "ledger query failed",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := ListResponse{
		Entries: make([]ledger.Event, 0, len(page.Entries)),
		Total:   page.Total,
		Limit:   page.Limit,
		Offset:  page.Offset,
	}
	for _, e := range page.Entries {
		resp.Entries = append(resp.Entries, ledger.EventFromEntry(e))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func parseFilter(r *http.Request) (ledger.Filter, error) {
	q := r.URL.Query()
	var f ledger.Filter

	if v := q.Get("user_id"); v != "" {
		userID, err := id.ParseUserID(v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeValidation, "user_id must be a UUID")
		}
		f.UserID = &userID
	}
	if v := q.Get("status"); v != "" {
		status := domain.LedgerStatus(v)
		f.Status = &status
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeValidation, "from must be an RFC 3339 timestamp")
		}
		f.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, dErrors.New(dErrors.CodeValidation, "to must be an RFC 3339 timestamp")
		}
		f.To = &t
	}
	var err error
	if f.Limit, err = intParam(q.Get("limit"), "limit"); err != nil {
		return f, err
	}
	if f.Offset, err = intParam(q.Get("offset"), "offset"); err != nil {
		return f, err
	}
	return f, nil
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be an integer")
	}
	return n, nil
}
