package absentee

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	attendancemodels "flock/internal/attendance/models"
	attendanceservice "flock/internal/attendance/service"
	followupmocks "flock/internal/followup/mocks"
	followupstore "flock/internal/followup/store"
	personmodels "flock/internal/person/models"
	personservice "flock/internal/person/service"
	programmodels "flock/internal/program/models"
	programservice "flock/internal/program/service"
	"flock/internal/settings"
	"flock/internal/storage"
	"flock/internal/storage/memory"
	id "flock/pkg/domain"
	"flock/pkg/requestcontext"
)

// =============================================================================
// Absentee Detector Test Suite
// =============================================================================

type DetectorSuite struct {
	suite.Suite
	cfg      settings.Settings
	people   *personservice.Service
	programs *programservice.Service
	ledger   *attendanceservice.Service
	sink     *followupstore.Sink
	detector *Detector
	ctx      context.Context
	now      time.Time

	ada, bea, cy *personmodels.Person
	recent       []*programmodels.Program
}

func TestDetectorSuite(t *testing.T) {
	suite.Run(t, new(DetectorSuite))
}

func (s *DetectorSuite) SetupTest() {
	s.now = time.Date(2026, 3, 22, 18, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.cfg = settings.Defaults()
	s.cfg.FollowUp.AbsenteeRule.Scope = settings.ScopeAll
	s.cfg.FollowUp.AbsenteeRule.MissedProgramsCount = 2
	s.cfg.FollowUp.AbsenteeRule.ConsideredProgramTypes = []string{"sunday-service"}

	tx := storage.NewRunner(memory.New())
	provider := settings.Static(s.cfg)
	s.people = personservice.New(tx, provider)
	s.programs = programservice.New(tx)
	s.ledger = attendanceservice.New(tx, s.people, s.programs)
	s.sink = followupstore.NewSink(tx, nil)
	s.detector = New(provider, s.people, s.programs, s.ledger, s.sink)

	s.recent = []*programmodels.Program{s.program("sunday-service", 14), s.program("sunday-service", 7), s.program("sunday-service", 0)}
	s.program("sunday-service", 30)
	s.program("choir", 3)
	cancelled := s.program("sunday-service", 10)
	_, err := s.programs.UpdateStatus(s.ctx, cancelled.ID, programmodels.StatusCancelled)
	s.Require().NoError(err)

	s.ada = s.person("Ada", personmodels.CategoryMember)
	s.bea = s.person("Bea", personmodels.CategoryMember)
	s.cy = s.person("Cy", personmodels.CategoryGuest)

	for _, p := range s.recent {
		s.mark(p, s.ada, id.AttendancePresent)
	}
	s.mark(s.recent[2], s.bea, id.AttendancePresent)
	s.mark(s.recent[1], s.bea, id.AttendanceAbsent)
}

func (s *DetectorSuite) program(typ string, daysAgo int) *programmodels.Program {
	p, err := s.programs.Create(s.ctx, programmodels.CreateRequest{Type: typ, Date: s.now.AddDate(0, 0, -daysAgo)})
	s.Require().NoError(err)
	return p
}

func (s *DetectorSuite) person(name string, category personmodels.Category) *personmodels.Person {
	p, err := s.people.Register(s.ctx, personmodels.RegisterRequest{Category: category, PersonalData: personmodels.PersonalData{FirstName: name}})
	s.Require().NoError(err)
	return p
}

func (s *DetectorSuite) mark(prog *programmodels.Program, p *personmodels.Person, status id.AttendanceStatus) {
	_, err := s.ledger.MarkAttendance(s.ctx, attendancemodels.MarkRequest{ProgramID: prog.ID, PersonID: p.ID, Status: status})
	s.Require().NoError(err)
}

func candidateIDs(res Result) []id.PersonID {
	out := []id.PersonID{}
	for _, c := range res.Candidates {
		out = append(out, c.PersonID)
	}
	return out
}

func (s *DetectorSuite) TestMissingRecordCountsAsMissed() {
	res := s.detector.Run(s.ctx, s.now)
	s.Empty(res.Error)
	s.True(res.RuleEnabled)
	s.Equal(3, res.ProgramsConsidered, "old, cancelled and other-type programs are not considered")
	s.Equal(3, res.PeopleScanned)
	s.Equal(2, res.AbsenteesFound)
	s.ElementsMatch([]id.PersonID{s.bea.ID, s.cy.ID}, candidateIDs(res))
	for _, c := range res.Candidates {
		switch c.PersonID {
		case s.bea.ID:
			s.Equal(2, c.MissedCount)
		case s.cy.ID:
			s.Equal(3, c.MissedCount)
		}
	}
}

func (s *DetectorSuite) TestDedupAcrossRuns() {
	first := s.detector.Run(s.ctx, s.now)
	s.Equal(2, first.FollowUpsCreated)

	second := s.detector.Run(s.ctx, s.now)
	s.Empty(second.Error)
	s.Equal(2, second.AbsenteesFound)
	s.Equal(0, second.FollowUpsCreated)
	for _, c := range second.Candidates {
		s.Equal(SkipOpenFollowUp, c.SkipReason)
	}

	open, err := s.sink.ListOpen(s.ctx, s.cy.ID, "absentee")
	s.Require().NoError(err)
	s.Require().Len(open, 1)
	s.Equal(s.now.AddDate(0, 0, s.cfg.FollowUp.AbsenteeRule.DueInDays), *open[0].DueAt)

	_, err = s.sink.Complete(s.ctx, s.cy.ID, open[0].ID)
	s.Require().NoError(err)
	third := s.detector.Run(s.ctx, s.now)
	s.Equal(1, third.FollowUpsCreated, "a completed follow-up no longer blocks a new one")
}

func (s *DetectorSuite) TestScopeAndOptOut() {
	rule := s.cfg.FollowUp.AbsenteeRule
	rule.AutoCreate = false
	rule.Scope = settings.ScopeMembersOnly
	res := s.detector.RunWithRule(s.ctx, s.now, rule)
	s.Equal([]id.PersonID{s.bea.ID}, candidateIDs(res))
	s.Equal(SkipReportOnly, res.Candidates[0].SkipReason)
	s.Equal(0, res.FollowUpsCreated)

	rule.AutoCreate = true
	rule.Scope = settings.ScopeAll
	_, err := s.people.SetDoNotContact(s.ctx, s.cy.ID, true, "asked")
	s.Require().NoError(err)
	res = s.detector.RunWithRule(s.ctx, s.now, rule)
	s.Equal(2, res.AbsenteesFound)
	s.Equal(1, res.FollowUpsCreated)
	for _, c := range res.Candidates {
		if c.PersonID == s.cy.ID {
			s.Equal(SkipDoNotContact, c.SkipReason)
			s.Empty(c.FollowUpID)
		}
	}
}

func (s *DetectorSuite) TestDisabledRule() {
	rule := s.cfg.FollowUp.AbsenteeRule
	rule.Enabled = false
	res := s.detector.RunWithRule(s.ctx, s.now, rule)
	s.False(res.RuleEnabled)
	s.True(res.Skipped)
	s.Empty(res.Candidates)

	cfg := s.cfg
	cfg.FollowUp.Enabled = false
	d := New(settings.Static(cfg), s.people, s.programs, s.ledger, s.sink)
	s.True(d.Run(s.ctx, s.now).Skipped)
}

func (s *DetectorSuite) TestSinkFailureIsReported() {
	ctrl := gomock.NewController(s.T())
	sink := followupmocks.NewMockSink(ctrl)
	sink.EXPECT().ListOpen(gomock.Any(), gomock.Any(), "absentee").Return(nil, errors.New("store down"))

	d := New(settings.Static(s.cfg), s.people, s.programs, s.ledger, sink)
	res := d.Run(s.ctx, s.now)
	s.Contains(res.Error, "store down")
	s.Equal(0, res.FollowUpsCreated)
}

type panickingPeople struct{}

func (panickingPeople) List(context.Context, personmodels.ListFilter) ([]*personmodels.Person, error) {
	panic("boom")
}

func (s *DetectorSuite) TestPanicIsRecovered() {
	d := New(settings.Static(s.cfg), panickingPeople{}, s.programs, s.ledger, s.sink)
	res := d.Run(s.ctx, s.now)
	s.Contains(res.Error, "boom")
}

func TestInScope(t *testing.T) {
	member := &personmodels.Person{Category: personmodels.CategoryMember}
	regular := &personmodels.Person{Category: personmodels.CategoryGuest, Evolution: personmodels.Evolution{GuestType: personmodels.GuestRegular}}
	firstTime := &personmodels.Person{Category: personmodels.CategoryGuest, Evolution: personmodels.Evolution{GuestType: personmodels.GuestFirstTime}}

	tests := []struct {
		scope settings.AbsenteeScope
		want  [3]bool
	}{
		{settings.ScopeAll, [3]bool{true, true, true}},
		{settings.ScopeMembersOnly, [3]bool{true, false, false}},
		{settings.ScopeGuestsOnly, [3]bool{false, true, true}},
		{settings.ScopeMembersAndRegularGuests, [3]bool{true, true, false}},
		{"nobody", [3]bool{false, false, false}},
	}
	for _, tt := range tests {
		t.Run(string(tt.scope), func(t *testing.T) {
			got := [3]bool{InScope(member, tt.scope), InScope(regular, tt.scope), InScope(firstTime, tt.scope)}
			assert.Equal(t, tt.want, got)
		})
	}
}
