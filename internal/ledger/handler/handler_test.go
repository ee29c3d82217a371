package handler

import (
	"context"
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

	"github.com/hanibalsk/phone-manager-backend-sub002/internal/domain"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/ledger"
	"github.com/hanibalsk/phone-manager-backend-sub002/internal/ledger/handler/mocks"
	id "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain"
	dErrors "github.com/hanibalsk/phone-manager-backend-sub002/pkg/domain-errors"
	"github.com/hanibalsk/phone-manager-backend-sub002/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service
type LedgerHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestLedgerHandlerSuite(t *testing.T) {
	suite.Run(t, new(LedgerHandlerSuite))
}

func (s *LedgerHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *LedgerHandlerSuite) get(target string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, target))
}

func (s *LedgerHandlerSuite) TestListParsesFilters() {
	userID := id.UserID(uuid.New())
	groupID := id.NewGroupID()
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	entry := domain.LedgerEntry{
		MigrationID:          id.NewMigrationID(),
		UserID:               userID,
		RegistrationGroupID:  "camping-2025",
		AuthenticatedGroupID: &groupID,
		DevicesMigrated:      1,
		DeviceIDs:            []id.DeviceID{id.DeviceID(uuid.New())},
		Status:               domain.LedgerStatusSuccess,
		CreatedAt:            created,
	}

	s.service.EXPECT().Query(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, f ledger.Filter) (*ledger.Page, error) {
			s.Require().NotNil(f.UserID)
			s.Equal(userID, *f.UserID)
			s.Require().NotNil(f.Status)
			s.Equal(domain.LedgerStatusSuccess, *f.Status)
			s.Require().NotNil(f.From)
			s.True(f.From.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))
			s.Nil(f.To)
			s.Equal(10, f.Limit)
			s.Equal(20, f.Offset)
			return &ledger.Page{Entries: []domain.LedgerEntry{entry}, Total: 21, Limit: 10, Offset: 20}, nil
		})

	rec := s.get("/admin/migrations?user_id=" + userID.String() +
		"&status=success&from=2025-01-01T00:00:00Z&limit=10&offset=20")
	s.Require().Equal(http.StatusOK, rec.Code)

	resp := testutil.DecodeJSON[ListResponse](s.T(), rec)
	s.Equal(21, resp.Total)
	s.Require().Len(resp.Entries, 1)
	s.Equal(entry.MigrationID.String(), resp.Entries[0].MigrationID)
	s.Equal(groupID.String(), *resp.Entries[0].AuthenticatedGroupID)
}

func (s *LedgerHandlerSuite) TestListRejectsMalformedParameters() {
	for _, target := range []string{
		"/admin/migrations?user_id=not-a-uuid",
		"/admin/migrations?from=yesterday",
		"/admin/migrations?limit=ten",
	} {
		s.Run(target, func() {
			testutil.AssertError(s.T(), s.get(target), http.StatusBadRequest, dErrors.CodeValidation)
		})
	}
}

func (s *LedgerHandlerSuite) TestListSurfacesServiceValidation() {
	s.service.EXPECT().Query(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeValidation, "limit must be between 1 and 200"))

	rec := s.get("/admin/migrations?limit=500")
	testutil.AssertError(s.T(), rec, http.StatusBadRequest, dErrors.CodeValidation)
}

func (s *LedgerHandlerSuite) TestListHidesInternalErrors() {
	s.service.EXPECT().Query(gomock.Any(), gomock.Any()).
		Return(nil, dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeInternal, "failed to query migration ledger"))

	rec := s.get("/admin/migrations")
	testutil.AssertError(s.T(), rec, http.StatusInternalServerError, dErrors.CodeInternal)
	s.NotContains(rec.Body.String(), "unexpected EOF")
}
