package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/migration"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/migration/handler/mocks"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/requestcontext"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type MigrationHandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	userID  id.UserID
}

func TestMigrationHandlerSuite(t *testing.T) {
	suite.Run(t, new(MigrationHandlerSuite))
}

func (s *MigrationHandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	s.userID = id.UserID(uuid.New())
}

func (s *MigrationHandlerSuite) router(opts ...Option) chi.Router {
	r := chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil)), opts...).Register(r)
	return r
}

func (s *MigrationHandlerSuite) post(r chi.Router, body string, authenticated bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/groups/migrate", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if authenticated {
		req = req.WithContext(requestcontext.WithUserID(req.Context(), s.userID))
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func (s *MigrationHandlerSuite) decode(rec *httptest.ResponseRecorder) map[string]any {
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func (s *MigrationHandlerSuite) TestMigrateSuccess() {
	groupID := id.NewGroupID()
	migrationID := id.NewMigrationID()
	s.service.EXPECT().
		Migrate(gomock.Any(), migration.MigrateRequest{
			UserID:              s.userID,
			RegistrationGroupID: "camping-2025",
			GroupName:           "Camping Crew",
		}).
		Return(&migration.Result{
			AuthenticatedGroupID: groupID,
			Name:                 "Camping Crew",
			DevicesMigrated:      3,
			MigrationID:          migrationID,
		}, nil)

	rec := s.post(s.router(), `{"registration_group_id":" camping-2025 ","group_name":"  Camping Crew "}`, true)

	s.Equal(http.StatusOK, rec.Code)
	body := s.decode(rec)
	s.Equal(groupID.String(), body["authenticated_group_id"])
	s.Equal("Camping Crew", body["name"])
	s.Equal(float64(3), body["devices_migrated_count"])
	s.Equal(migrationID.String(), body["migration_id"])
}

func (s *MigrationHandlerSuite) TestMigrateAlreadyMigrated() {
	groupID := id.NewGroupID()
	migrationID := id.NewMigrationID()
	s.service.EXPECT().
		Migrate(gomock.Any(), gomock.Any()).
		Return(nil, &migration.AlreadyMigratedError{
			RegistrationGroupID:  "weekend",
			AuthenticatedGroupID: groupID,
			MigrationID:          migrationID,
			GroupName:            "weekend",
		})

	rec := s.post(s.router(), `{"registration_group_id":"weekend"}`, true)

	testutil.AssertAlreadyMigrated(s.T(), rec, groupID.String(), migrationID.String())
}

func (s *MigrationHandlerSuite) TestMigrateMapsDomainErrors() {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"no devices", dErrors.Wrap(migration.ErrNoDevices, dErrors.CodeNotFound, "registration group has no devices"), http.StatusNotFound},
		{"not owner", dErrors.Wrap(migration.ErrNotDeviceOwner, dErrors.CodeForbidden, "forbidden"), http.StatusForbidden},
		{"name taken", dErrors.Wrap(migration.ErrGroupNameTaken, dErrors.CodeConflict, "taken"), http.StatusConflict},
		{"internal", dErrors.New(dErrors.CodeInternal, "migration failed"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().Migrate(gomock.Any(), gomock.Any()).Return(nil, tc.err)
			rec := s.post(s.router(), `{"registration_group_id":"abc"}`, true)
			s.Equal(tc.status, rec.Code)
		})
	}
}

func (s *MigrationHandlerSuite) TestMigrateRejectsBadInput() {
	cases := []struct {
		name string
		body string
	}{
		{"missing registration group", `{}`},
		{"invalid registration group", `{"registration_group_id":"has space"}`},
		{"blank group name", `{"registration_group_id":"abc","group_name":"   "}`},
		{"unknown field", `{"registration_group_id":"abc","extra":true}`},
		{"malformed json", `{"registration_group_id":`},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.post(s.router(), tc.body, true)
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}

func (s *MigrationHandlerSuite) TestMigrateRequiresAuthentication() {
	rec := s.post(s.router(), `{"registration_group_id":"abc"}`, false)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *MigrationHandlerSuite) TestMigrateAnswersProgressWhenSlow() {
	release := make(chan struct{})
	finished := make(chan error, 1)
	s.service.EXPECT().
		Migrate(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ migration.MigrateRequest) (*migration.Result, error) {
			<-release
			finished <- ctx.Err()
			return &migration.Result{}, nil
		})

	r := s.router(WithProgressAfter(20*time.Millisecond), WithRunTimeout(time.Second))
	rec := s.post(r, `{"registration_group_id":"slow-group"}`, true)

	s.Equal(http.StatusAccepted, rec.Code)
	s.NotEmpty(rec.Header().Get("Retry-After"))
	body := s.decode(rec)
	s.Equal("processing", body["status"])
	s.Equal("slow-group", body["registration_group_id"])

	close(release)
	select {
	case err := <-finished:
		s.NoError(err, "migration keeps running after the response")
	case <-time.After(time.Second):
		s.Fail("migration did not finish")
	}
}
