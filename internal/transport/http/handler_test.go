package httptransport

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"flock/internal/absentee"
	attendanceservice "flock/internal/attendance/service"
	"flock/internal/birthday"
	followupstore "flock/internal/followup/store"
	jwttoken "flock/internal/jwt_token"
	personmodels "flock/internal/person/models"
	personservice "flock/internal/person/service"
	programmodels "flock/internal/program/models"
	programservice "flock/internal/program/service"
	"flock/internal/settings"
	"flock/internal/storage"
	"flock/internal/storage/memory"
	tallymodels "flock/internal/tally/models"
	tallyservice "flock/internal/tally/service"
	"flock/pkg/platform/middleware/admin"
	"flock/pkg/testutil"
)

// =============================================================================
// HTTP API Test Suite
// =============================================================================
// The router runs over the real services on an in-memory store.

type APISuite struct {
	suite.Suite
	router   http.Handler
	provider *settings.StoreProvider
}

func TestAPISuite(t *testing.T) {
	suite.Run(t, new(APISuite))
}

const testAdminToken = "admin-secret"

func (s *APISuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tx := storage.NewRunner(memory.New())
	s.provider = settings.NewStoreProvider(tx, settings.Defaults())
	people := personservice.New(tx, s.provider)
	programs := programservice.New(tx)
	ledger := attendanceservice.New(tx, people, programs)
	sink := followupstore.NewSink(tx, logger)

	h := NewHandler(Services{
		Settings:   s.provider,
		People:     people,
		Programs:   programs,
		Attendance: ledger,
		Tallies:    tallyservice.New(tx, s.provider, programs, ledger),
		FollowUps:  sink,
		Absentee:   absentee.New(s.provider, people, programs, ledger, sink),
		Birthday:   birthday.New(s.provider, people, sink),
	}, logger)
	s.router = NewRouter(h, RouterConfig{AdminToken: testAdminToken}, logger)
}

func (s *APISuite) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	req := testutil.AsOperator(testutil.NewJSONRequest(s.T(), method, path, body), "usher-1")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return testutil.DoRequest(s.router, req)
}

func decodeBody[T any](s *APISuite, rec *httptest.ResponseRecorder) T {
	return testutil.UnmarshalResponse[T](s.T(), rec)
}

func (s *APISuite) createProgram() programmodels.Program {
	rec := s.do(http.MethodPost, "/programs", map[string]any{"type": "sunday-service", "date": time.Now().UTC()})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[programmodels.Program](s, rec)
}

func (s *APISuite) registerPerson(name string) personmodels.Person {
	rec := s.do(http.MethodPost, "/people", map[string]any{"personal_data": map[string]any{"first_name": name}})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[personmodels.Person](s, rec)
}

// =============================================================================
// Tests
// =============================================================================

func (s *APISuite) TestHealthz() {
	rec := s.do(http.MethodGet, "/healthz", nil)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *APISuite) TestTallyCheckInFlow() {
	prog := s.createProgram()
	ada := s.registerPerson("Ada")
	base := "/programs/" + prog.ID.String()

	rec := s.do(http.MethodPost, base+"/tallies/generate", map[string]int{"count": 2})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	generated := decodeBody[talliesResponse](s, rec)
	s.Len(generated.Tallies, 2)
	s.False(generated.Skipped)

	rec = s.do(http.MethodPost, base+"/tallies/issue", map[string]any{})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	issued := decodeBody[tallymodels.Tally](s, rec)
	s.Equal("T001", issued.Code)

	rec = s.do(http.MethodPost, base+"/tallies/T001/map", map[string]any{"person_id": ada.ID})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/tallies/T001/map", map[string]any{"person_id": ada.ID})
	testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "already_mapped")

	rec = s.do(http.MethodGet, base+"/attendance", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	records := decodeBody[[]map[string]any](s, rec)
	s.Require().Len(records, 1)
	s.Equal("usher-1", records[0]["recorded_by"])

	rec = s.do(http.MethodGet, base+"/tallies/summary", nil)
	s.Equal(http.StatusOK, rec.Code)
	sum := decodeBody[tallymodels.Summary](s, rec)
	s.Equal(1, sum.Logged)
	s.Equal(1, sum.Available)
}

func (s *APISuite) TestTallyDisabledIsSkipped() {
	prog := s.createProgram()
	rec := s.do(http.MethodPatch, "/settings", map[string]any{"tally": map[string]any{"enabled": false}}, admin.HeaderAdminToken, testAdminToken)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, "/programs/"+prog.ID.String()+"/tallies/issue", map[string]any{})
	s.Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"skipped":true}`, rec.Body.String())
}

func (s *APISuite) TestSettingsRequireAdminToken() {
	rec := s.do(http.MethodPatch, "/settings", map[string]any{"tally": map[string]any{"prefix": "G"}})
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPatch, "/settings", map[string]any{"tally": map[string]any{"padding": 99}}, admin.HeaderAdminToken, testAdminToken)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(http.MethodGet, "/settings", nil)
	s.Equal(http.StatusOK, rec.Code)
	cfg := decodeBody[settings.Settings](s, rec)
	s.Equal(3, cfg.Tally.Padding)
}

func (s *APISuite) TestPromotionGate() {
	ada := s.registerPerson("Ada")
	rec := s.do(http.MethodPost, "/people/"+ada.ID.String()+"/promote", map[string]any{})
	testutil.AssertStatusAndError(s.T(), rec, http.StatusConflict, "promotion_not_eligible")

	rec = s.do(http.MethodPost, "/people/"+ada.ID.String()+"/promote", map[string]any{"force": true})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Equal(personmodels.CategoryMember, decodeBody[personmodels.Person](s, rec).Category)
}

func (s *APISuite) TestErrors() {
	testutil.AssertStatusAndError(s.T(), s.do(http.MethodGet, "/people/nobody", nil), http.StatusNotFound, "not_found")
	s.Equal(http.StatusBadRequest, s.do(http.MethodPost, "/people", "not-an-object").Code)
	s.Equal(http.StatusUnprocessableEntity, s.do(http.MethodPost, "/people", map[string]any{"personal_data": map[string]any{}}).Code)

	prog := s.createProgram()
	rec := s.do(http.MethodGet, "/programs/"+prog.ID.String()+"/attendance/buckets?width=soon", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *APISuite) TestAutomations() {
	rec := s.do(http.MethodPost, "/automations/absentee/run", nil, admin.HeaderAdminToken, testAdminToken)
	s.Require().Equal(http.StatusOK, rec.Code)
	res := decodeBody[absentee.Result](s, rec)
	s.True(res.RuleEnabled)
	s.Empty(res.Error)

	rec = s.do(http.MethodPost, "/automations/birthday/run", nil, admin.HeaderAdminToken, testAdminToken)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *APISuite) TestBearerTokens() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwtService := jwttoken.NewJWTService("k", "flock", "flock-api")
	router := NewRouter(NewHandler(Services{}, logger), RouterConfig{Validator: jwttoken.NewJWTServiceAdapter(jwtService)}, logger)

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	s.Equal(http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	s.Equal(http.StatusOK, rec.Code)
}
