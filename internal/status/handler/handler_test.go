package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/status"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/status/handler/mocks"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type StatusHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
	userID  id.UserID
}

func TestStatusHandlerSuite(t *testing.T) {
	suite.Run(t, new(StatusHandlerSuite))
}

func (s *StatusHandlerSuite) SetupTest() {
	s.service = mocks.NewMockService(gomock.NewController(s.T()))
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
	s.userID = id.UserID(uuid.New())
}

func (s *StatusHandlerSuite) get() *httptest.ResponseRecorder {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/users/me/registration-group-status")
	return testutil.DoRequest(s.router, testutil.WithUserID(req, s.userID))
}

func (s *StatusHandlerSuite) TestMigratedGroup() {
	rg := id.RegistrationGroupID("camping-2025")
	groupID := id.NewGroupID()
	s.service.EXPECT().RegistrationGroupStatus(gomock.Any(), s.userID).Return(&status.RegistrationGroupStatus{
		HasRegistrationGroup: true,
		RegistrationGroupID:  &rg,
		DeviceCount:          3,
		AlreadyMigrated:      true,
		MigratedToGroupID:    &groupID,
	}, nil)

	rec := s.get()
	s.Require().Equal(http.StatusOK, rec.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(true, body["has_registration_group"])
	s.Equal("camping-2025", body["registration_group_id"])
	s.Equal(float64(3), body["device_count"])
	s.Equal(true, body["already_migrated"])
	s.Equal(groupID.String(), body["migrated_to_group_id"])
}

func (s *StatusHandlerSuite) TestNoGroupOmitsOptionalFields() {
	s.service.EXPECT().RegistrationGroupStatus(gomock.Any(), s.userID).Return(&status.RegistrationGroupStatus{}, nil)

	rec := s.get()
	s.Require().Equal(http.StatusOK, rec.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal(false, body["has_registration_group"])
	s.NotContains(body, "registration_group_id")
	s.NotContains(body, "migrated_to_group_id")
}

func (s *StatusHandlerSuite) TestServiceFailureIsInternal() {
	s.service.EXPECT().RegistrationGroupStatus(gomock.Any(), s.userID).Return(nil, errors.New("boom"))
	rec := s.get()
	s.Equal(http.StatusInternalServerError, rec.Code)
}
