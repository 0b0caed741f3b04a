// Package httptransport is the JSON HTTP surface over the core services.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"flock/internal/absentee"
	attendancemodels "flock/internal/attendance/models"
	"flock/internal/birthday"
	followupmodels "flock/internal/followup/models"
	personmodels "flock/internal/person/models"
	programmodels "flock/internal/program/models"
	"flock/internal/settings"
	tallymodels "flock/internal/tally/models"
	id "flock/pkg/domain"
	"flock/pkg/platform/httputil"
	"flock/pkg/requestcontext"
)

type SettingsService interface {
	Get(ctx context.Context) (settings.Settings, error)
	Update(ctx context.Context, patch settings.Patch) (settings.Settings, error)
}

type PersonService interface {
	Register(ctx context.Context, req personmodels.RegisterRequest) (*personmodels.Person, error)
	Get(ctx context.Context, personID id.PersonID) (*personmodels.Person, error)
	List(ctx context.Context, filter personmodels.ListFilter) ([]*personmodels.Person, error)
	UpdatePersonalData(ctx context.Context, personID id.PersonID, data personmodels.PersonalData) (*personmodels.Person, error)
	SetDoNotContact(ctx context.Context, personID id.PersonID, flag bool, reason string) (*personmodels.Person, error)
	ApplyEvolution(ctx context.Context, personID id.PersonID) (*personmodels.Person, error)
	RecomputeAll(ctx context.Context) (int, error)
	Promote(ctx context.Context, personID id.PersonID, details personmodels.MembershipDetails, force bool) (*personmodels.Person, error)
}

type ProgramService interface {
	Create(ctx context.Context, req programmodels.CreateRequest) (*programmodels.Program, error)
	Get(ctx context.Context, programID id.ProgramID) (*programmodels.Program, error)
	List(ctx context.Context) ([]*programmodels.Program, error)
	ListInWindow(ctx context.Context, q programmodels.WindowQuery) ([]*programmodels.Program, error)
	UpdateStatus(ctx context.Context, programID id.ProgramID, status programmodels.Status) (*programmodels.Program, error)
}

type AttendanceService interface {
	MarkAttendance(ctx context.Context, req attendancemodels.MarkRequest) (*attendancemodels.Record, error)
	ListByProgram(ctx context.Context, programID id.ProgramID) ([]attendancemodels.Record, error)
	ListByPerson(ctx context.Context, personID id.PersonID) ([]attendancemodels.Record, error)
	Summary(ctx context.Context, programID id.ProgramID) (*attendancemodels.Summary, error)
	ArrivalBuckets(ctx context.Context, programID id.ProgramID, width time.Duration) ([]attendancemodels.Bucket, error)
}

type TallyService interface {
	Generate(ctx context.Context, programID id.ProgramID, expectedCount int) ([]*tallymodels.Tally, error)
	Issue(ctx context.Context, req tallymodels.IssueRequest) (*tallymodels.Tally, error)
	Map(ctx context.Context, req tallymodels.MapRequest) (*tallymodels.Tally, error)
	Void(ctx context.Context, programID id.ProgramID, code, reason string) (*tallymodels.Tally, error)
	Get(ctx context.Context, programID id.ProgramID, code string) (*tallymodels.Tally, error)
	List(ctx context.Context, programID id.ProgramID) ([]*tallymodels.Tally, error)
	Summary(ctx context.Context, programID id.ProgramID) (*tallymodels.Summary, error)
}

type FollowUpService interface {
	List(ctx context.Context, personID id.PersonID) ([]*followupmodels.FollowUp, error)
	Complete(ctx context.Context, personID id.PersonID, followUpID id.FollowUpID) (*followupmodels.FollowUp, error)
}

type AbsenteeRunner interface {
	Run(ctx context.Context, now time.Time) absentee.Result
}

type BirthdayRunner interface {
	Run(ctx context.Context, now time.Time) birthday.Result
}

// Services groups the collaborators of the Handler.
type Services struct {
	Settings   SettingsService
	People     PersonService
	Programs   ProgramService
	Attendance AttendanceService
	Tallies    TallyService
	FollowUps  FollowUpService
	Absentee   AbsenteeRunner
	Birthday   BirthdayRunner
}

type Handler struct {
	svc    Services
	logger *slog.Logger
}

func NewHandler(svc Services, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// skipped is the body for operations whose feature is switched off.
type skipped struct {
	Skipped bool `json:"skipped"`
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	h.logger.WarnContext(ctx, msg,
		"request_id", requestcontext.RequestID(ctx),
		"path", r.URL.Path,
		"error", err,
	)
	httputil.WriteError(w, err)
}

func personIDParam(r *http.Request) (id.PersonID, error) {
	return id.ParsePersonID(chi.URLParam(r, "personID"))
}

func programIDParam(r *http.Request) (id.ProgramID, error) {
	return id.ParseProgramID(chi.URLParam(r, "programID"))
}
