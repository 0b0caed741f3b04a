// Package absentee scans recent programs for people who keep missing them and
// raises de-duplicated follow-ups for staff.
package absentee

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	attendancemodels "flock/internal/attendance/models"
	"flock/internal/followup"
	followupmodels "flock/internal/followup/models"
	"flock/internal/notify"
	personmodels "flock/internal/person/models"
	"flock/internal/platform/metrics"
	programmodels "flock/internal/program/models"
	"flock/internal/settings"
	id "flock/pkg/domain"
)

const ruleName = "absentee"

// Skip reasons reported on candidates that got no new follow-up.
const (
	SkipOpenFollowUp = "open_follow_up"
	SkipDoNotContact = "do_not_contact"
	SkipReportOnly   = "report_only"
)

type PersonRegistry interface {
	List(ctx context.Context, filter personmodels.ListFilter) ([]*personmodels.Person, error)
}

type ProgramRegistry interface {
	ListInWindow(ctx context.Context, q programmodels.WindowQuery) ([]*programmodels.Program, error)
}

type Ledger interface {
	Snapshot(ctx context.Context, programIDs []id.ProgramID) (map[id.ProgramID][]attendancemodels.Record, error)
}

// Candidate is one person who missed enough programs.
type Candidate struct {
	PersonID      id.PersonID           `json:"person_id"`
	FullName      string                `json:"full_name"`
	Category      personmodels.Category `json:"category"`
	MissedCount   int                   `json:"missed_count"`
	LastVisitDate *time.Time            `json:"last_visit_date,omitempty"`
	FollowUpID    id.FollowUpID         `json:"follow_up_id,omitempty"`
	SkipReason    string                `json:"skip_reason,omitempty"`
}

// Result reports one scan. Error is set instead of returning an error so a
// scheduled run never fails the batch.
type Result struct {
	RuleEnabled        bool        `json:"rule_enabled"`
	Skipped            bool        `json:"skipped"`
	RanAt              time.Time   `json:"ran_at"`
	ProgramsConsidered int         `json:"programs_considered"`
	PeopleScanned      int         `json:"people_scanned"`
	AbsenteesFound     int         `json:"absentees_found"`
	FollowUpsCreated   int         `json:"follow_ups_created"`
	Candidates         []Candidate `json:"candidates"`
	Error              string      `json:"error,omitempty"`
}

type Detector struct {
	settings  settings.Provider
	people    PersonRegistry
	programs  ProgramRegistry
	ledger    Ledger
	followUps followup.Sink
	notifier  notify.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Detector)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Detector) {
		d.logger = logger
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(d *Detector) {
		d.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Detector) {
		d.metrics = m
	}
}

func New(provider settings.Provider, people PersonRegistry, programs ProgramRegistry, ledger Ledger, followUps followup.Sink, opts ...Option) *Detector {
	d := &Detector{
		settings:  provider,
		people:    people,
		programs:  programs,
		ledger:    ledger,
		followUps: followUps,
		logger:    slog.Default(),
		tracer:    otel.Tracer("flock/absentee"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run scans with the configured rule.
func (d *Detector) Run(ctx context.Context, now time.Time) Result {
	cfg, err := d.settings.Get(ctx)
	if err != nil {
		return Result{RanAt: now, Skipped: true, Error: err.Error(), Candidates: []Candidate{}}
	}
	if !cfg.FollowUp.Enabled {
		return Result{RanAt: now, Skipped: true, Candidates: []Candidate{}}
	}
	return d.RunWithRule(ctx, now, cfg.FollowUp.AbsenteeRule)
}

// RunWithRule scans with an explicit rule, e.g. a dry run from the settings
// screen.
func (d *Detector) RunWithRule(ctx context.Context, now time.Time, rule settings.AbsenteeRule) (res Result) {
	res = Result{RuleEnabled: rule.Enabled, RanAt: now, Candidates: []Candidate{}}
	if !rule.Enabled {
		res.Skipped = true
		return res
	}

	start := time.Now()
	ctx, span := d.tracer.Start(ctx, "absentee.run", trace.WithAttributes(
		attribute.String("scope", string(rule.Scope)),
		attribute.Int("within_days", rule.WithinDays),
		attribute.Int("missed_programs_count", rule.MissedProgramsCount),
	))
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("absentee scan panicked: %v", r)
		}
		outcome := "ok"
		if res.Error != "" {
			outcome = "error"
			span.SetStatus(codes.Error, res.Error)
			d.logger.ErrorContext(ctx, "absentee scan failed", "error", res.Error)
		}
		span.SetAttributes(
			attribute.Int("absentees_found", res.AbsenteesFound),
			attribute.Int("follow_ups_created", res.FollowUpsCreated),
		)
		span.End()
		d.metrics.ObserveAutomation(ruleName, outcome, start)
	}()

	if err := d.scan(ctx, now, rule, &res); err != nil {
		span.RecordError(err)
		res.Error = err.Error()
	}
	return res
}

func (d *Detector) scan(ctx context.Context, now time.Time, rule settings.AbsenteeRule, res *Result) error {
	if !rule.Scope.IsValid() {
		return fmt.Errorf("unknown absentee scope %q", rule.Scope)
	}
	programs, err := d.programs.ListInWindow(ctx, programmodels.WindowQuery{
		From:  now.AddDate(0, 0, -rule.WithinDays),
		To:    now,
		Types: rule.ConsideredProgramTypes,
	})
	if err != nil {
		return fmt.Errorf("list programs: %w", err)
	}
	res.ProgramsConsidered = len(programs)
	if len(programs) == 0 {
		return nil
	}

	programIDs := make([]id.ProgramID, 0, len(programs))
	for _, p := range programs {
		programIDs = append(programIDs, p.ID)
	}
	snapshot, err := d.ledger.Snapshot(ctx, programIDs)
	if err != nil {
		return fmt.Errorf("load attendance: %w", err)
	}
	present := presentSets(snapshot)

	people, err := d.people.List(ctx, personmodels.ListFilter{})
	if err != nil {
		return fmt.Errorf("list people: %w", err)
	}

	for _, p := range people {
		if !InScope(p, rule.Scope) {
			continue
		}
		res.PeopleScanned++
		missed := 0
		for _, programID := range programIDs {
			if !present[programID][p.ID] {
				missed++
			}
		}
		if missed < rule.MissedProgramsCount {
			continue
		}
		res.AbsenteesFound++
		c := Candidate{
			PersonID:      p.ID,
			FullName:      p.PersonalData.FullName(),
			Category:      p.Category,
			MissedCount:   missed,
			LastVisitDate: p.Evolution.LastVisitDate,
		}
		if err := d.raise(ctx, now, rule, p, len(programIDs), &c); err != nil {
			return err
		}
		if c.FollowUpID != "" {
			res.FollowUpsCreated++
		}
		res.Candidates = append(res.Candidates, c)
	}
	d.metrics.AddFollowUpsCreated(rule.FollowUpType, res.FollowUpsCreated)
	d.logger.InfoContext(ctx, "absentee scan completed",
		"programs_considered", res.ProgramsConsidered,
		"absentees_found", res.AbsenteesFound,
		"follow_ups_created", res.FollowUpsCreated,
	)
	return nil
}

// raise creates the candidate's follow-up unless an open one of the same type
// exists or the person opted out of contact.
func (d *Detector) raise(ctx context.Context, now time.Time, rule settings.AbsenteeRule, p *personmodels.Person, considered int, c *Candidate) error {
	notify.Emit(ctx, d.notifier, d.logger, notify.NewEvent(ctx, notify.EventAbsenteeCandidate, p.ID.String(), map[string]any{
		"missed_count": c.MissedCount,
		"considered":   considered,
	}))

	switch {
	case !rule.AutoCreate:
		c.SkipReason = SkipReportOnly
		return nil
	case p.Engagement.DoNotContact:
		c.SkipReason = SkipDoNotContact
		return nil
	}

	open, err := d.followUps.ListOpen(ctx, p.ID, rule.FollowUpType)
	if err != nil {
		return fmt.Errorf("list open follow-ups for %s: %w", p.ID, err)
	}
	if len(open) > 0 {
		c.SkipReason = SkipOpenFollowUp
		return nil
	}

	due := now.AddDate(0, 0, rule.DueInDays)
	f, err := d.followUps.Create(ctx, followupmodels.CreateRequest{
		PersonID:  p.ID,
		Type:      rule.FollowUpType,
		Title:     fmt.Sprintf("Missed %d of the last %d programs", c.MissedCount, considered),
		Priority:  rule.Priority,
		DueAt:     &due,
		CreatedBy: "automation:" + ruleName,
	})
	if err != nil {
		return fmt.Errorf("create follow-up for %s: %w", p.ID, err)
	}
	c.FollowUpID = f.ID
	notify.Emit(ctx, d.notifier, d.logger, notify.NewEvent(ctx, notify.EventFollowUpCreated, p.ID.String(), map[string]any{
		"follow_up_id":   f.ID.String(),
		"follow_up_type": f.Type,
	}))
	return nil
}

// InScope applies the rule scope. members-and-regular-guests keeps every
// member and only guests currently classified regular.
func InScope(p *personmodels.Person, scope settings.AbsenteeScope) bool {
	switch scope {
	case settings.ScopeAll:
		return true
	case settings.ScopeMembersOnly:
		return p.IsMember()
	case settings.ScopeGuestsOnly:
		return p.IsGuest()
	case settings.ScopeMembersAndRegularGuests:
		return p.IsMember() || p.IsRegularGuest()
	}
	return false
}

// presentSets indexes who was marked present per program. A missing record
// and an absent mark both count as missed.
func presentSets(snapshot map[id.ProgramID][]attendancemodels.Record) map[id.ProgramID]map[id.PersonID]bool {
	out := make(map[id.ProgramID]map[id.PersonID]bool, len(snapshot))
	for programID, records := range snapshot {
		set := make(map[id.PersonID]bool, len(records))
		for _, r := range records {
			if r.Status.IsPresent() {
				set[r.PersonID] = true
			}
		}
		out[programID] = set
	}
	return out
}
