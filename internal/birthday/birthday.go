// Package birthday raises a follow-up, and optionally sends a greeting, for
// everyone whose birthday falls on the scan date.
package birthday

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"flock/internal/followup"
	followupmodels "flock/internal/followup/models"
	"flock/internal/messaging"
	"flock/internal/notify"
	personmodels "flock/internal/person/models"
	"flock/internal/platform/metrics"
	"flock/internal/settings"
	id "flock/pkg/domain"
)

const ruleName = "birthday"

type PersonRegistry interface {
	List(ctx context.Context, filter personmodels.ListFilter) ([]*personmodels.Person, error)
}

type Messenger interface {
	SendTemplate(ctx context.Context, p *personmodels.Person, kind, channel, template string) (messaging.SendResult, error)
}

type Celebrant struct {
	PersonID   id.PersonID   `json:"person_id"`
	FullName   string        `json:"full_name"`
	FollowUpID id.FollowUpID `json:"follow_up_id,omitempty"`
	Greeted    bool          `json:"greeted"`
}

type Result struct {
	RuleEnabled      bool        `json:"rule_enabled"`
	Skipped          bool        `json:"skipped"`
	RanAt            time.Time   `json:"ran_at"`
	BirthdaysFound   int         `json:"birthdays_found"`
	FollowUpsCreated int         `json:"follow_ups_created"`
	MessagesSent     int         `json:"messages_sent"`
	Celebrants       []Celebrant `json:"celebrants"`
	Error            string      `json:"error,omitempty"`
}

type Automation struct {
	settings  settings.Provider
	people    PersonRegistry
	followUps followup.Sink
	messenger Messenger
	notifier  notify.Notifier
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type Option func(*Automation)

func WithLogger(logger *slog.Logger) Option {
	return func(a *Automation) {
		a.logger = logger
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(a *Automation) {
		a.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Automation) {
		a.metrics = m
	}
}

// WithMessenger enables greetings when the rule asks for them.
func WithMessenger(m Messenger) Option {
	return func(a *Automation) {
		a.messenger = m
	}
}

func New(provider settings.Provider, people PersonRegistry, followUps followup.Sink, opts ...Option) *Automation {
	a := &Automation{
		settings:  provider,
		people:    people,
		followUps: followUps,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run scans for birthdays on now's calendar day. People flagged
// do-not-contact are left out.
func (a *Automation) Run(ctx context.Context, now time.Time) (res Result) {
	res = Result{RanAt: now, Celebrants: []Celebrant{}}
	cfg, err := a.settings.Get(ctx)
	if err != nil {
		res.Skipped = true
		res.Error = err.Error()
		return res
	}
	rule := cfg.FollowUp.BirthdayRule
	res.RuleEnabled = rule.Enabled
	if !cfg.FollowUp.Enabled || !rule.Enabled {
		res.Skipped = true
		return res
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Error = fmt.Sprintf("birthday scan panicked: %v", r)
		}
		outcome := "ok"
		if res.Error != "" {
			outcome = "error"
			a.logger.ErrorContext(ctx, "birthday scan failed", "error", res.Error)
		}
		a.metrics.ObserveAutomation(ruleName, outcome, start)
	}()

	if err := a.scan(ctx, now, rule, &res); err != nil {
		res.Error = err.Error()
	}
	return res
}

func (a *Automation) scan(ctx context.Context, now time.Time, rule settings.BirthdayRule, res *Result) error {
	people, err := a.people.List(ctx, personmodels.ListFilter{})
	if err != nil {
		return fmt.Errorf("list people: %w", err)
	}
	// Only this year's open follow-up marks a birthday as handled. One left
	// open from a previous year does not suppress the next one.
	yearStart := time.Date(now.UTC().Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	for _, p := range people {
		if p.Engagement.DoNotContact || !IsBirthday(p.PersonalData.DateOfBirth, now) {
			continue
		}
		res.BirthdaysFound++
		c := Celebrant{PersonID: p.ID, FullName: p.PersonalData.FullName()}

		open, err := a.followUps.ListOpen(ctx, p.ID, rule.FollowUpType)
		if err != nil {
			return fmt.Errorf("list open follow-ups for %s: %w", p.ID, err)
		}
		if !slices.ContainsFunc(open, createdSince(yearStart)) {
			f, err := a.followUps.Create(ctx, followupmodels.CreateRequest{
				PersonID:  p.ID,
				Type:      rule.FollowUpType,
				Title:     "Birthday: " + c.FullName,
				Priority:  rule.Priority,
				DueAt:     &now,
				CreatedBy: "automation:" + ruleName,
			})
			if err != nil {
				return fmt.Errorf("create follow-up for %s: %w", p.ID, err)
			}
			c.FollowUpID = f.ID
			res.FollowUpsCreated++

			if rule.SendMessage && a.greet(ctx, p, rule) {
				c.Greeted = true
				res.MessagesSent++
			}
		}
		res.Celebrants = append(res.Celebrants, c)
	}
	a.metrics.AddFollowUpsCreated(rule.FollowUpType, res.FollowUpsCreated)
	return nil
}

func createdSince(t time.Time) func(*followupmodels.FollowUp) bool {
	return func(f *followupmodels.FollowUp) bool {
		return !f.CreatedAt.Before(t)
	}
}

// greet only sends alongside a new follow-up so a rerun on the same day does
// not greet twice. Failures are logged and never fail the scan.
func (a *Automation) greet(ctx context.Context, p *personmodels.Person, rule settings.BirthdayRule) bool {
	if a.messenger == nil {
		return false
	}
	sent, err := a.messenger.SendTemplate(ctx, p, ruleName, rule.Channel, rule.MessageTemplate)
	if err == nil && !sent.Success {
		err = errors.New(sent.ErrorMessage)
	}
	a.metrics.IncrementMessagesSent(ruleName, err == nil)
	if err != nil {
		a.logger.WarnContext(ctx, "birthday greeting failed", "person_id", p.ID.String(), "error", err)
		return false
	}
	notify.Emit(ctx, a.notifier, a.logger, notify.NewEvent(ctx, notify.EventBirthdayGreeted, p.ID.String(), map[string]any{
		"channel":             rule.Channel,
		"provider_message_id": sent.ProviderMessageID,
	}))
	return true
}

// IsBirthday compares month and day in UTC. A 29 February birthday is
// observed on 28 February in non-leap years.
func IsBirthday(dob *time.Time, now time.Time) bool {
	if dob == nil {
		return false
	}
	d, n := dob.UTC(), now.UTC()
	if d.Month() == n.Month() && d.Day() == n.Day() {
		return true
	}
	return d.Month() == time.February && d.Day() == 29 &&
		n.Month() == time.February && n.Day() == 28 && !isLeap(n.Year())
}

func isLeap(year int) bool {
	return year%4 == 0 && (year%100 != 0 || year%400 == 0)
}
