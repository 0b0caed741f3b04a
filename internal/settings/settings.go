// Package settings holds the tunable thresholds the core reads: evolution
// thresholds, the absentee and birthday rules, and the tally code format.
// Settings are read as a snapshot per operation and only change through
// typed patches that are validated before they are persisted.
package settings

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	dErrors "flock/pkg/domain-errors"
)

// Settings is the full tunable configuration of the core.
type Settings struct {
	Evolution EvolutionSettings `json:"evolution" yaml:"evolution"`
	FollowUp  FollowUpSettings  `json:"follow_up" yaml:"follow_up"`
	Tally     TallySettings     `json:"tally" yaml:"tally"`
	Messaging MessagingSettings `json:"messaging" yaml:"messaging"`
}

// EvolutionSettings drives guest classification and member rating.
//
// Invariants:
//   - 0 < GuestToReturningThreshold < ReturningToRegularThreshold
//   - RegularGuestToMemberThreshold >= ReturningToRegularThreshold
//   - every rating tier has a percentage in [0,100] and a positive window
type EvolutionSettings struct {
	Enabled                       bool        `json:"enabled" yaml:"enabled"`
	GuestToReturningThreshold     int         `json:"guest_to_returning_threshold" yaml:"guest_to_returning_threshold"`
	ReturningToRegularThreshold   int         `json:"returning_to_regular_threshold" yaml:"returning_to_regular_threshold"`
	RegularGuestToMemberThreshold int         `json:"regular_guest_to_member_threshold" yaml:"regular_guest_to_member_threshold"`
	MemberRatings                 RatingTiers `json:"member_ratings" yaml:"member_ratings"`
}

// RatingTiers configures each member rating independently. Each tier's
// attendance percentage is measured over its own trailing window.
type RatingTiers struct {
	Adherent  RatingThreshold `json:"adherent" yaml:"adherent"`
	Regular   RatingThreshold `json:"regular" yaml:"regular"`
	Returning RatingThreshold `json:"returning" yaml:"returning"`
	Visiting  RatingThreshold `json:"visiting" yaml:"visiting"`
}

type RatingThreshold struct {
	MinAttendancePercentage float64 `json:"min_attendance_percentage" yaml:"min_attendance_percentage"`
	MinWeeksConsidered      int     `json:"min_weeks_considered" yaml:"min_weeks_considered"`
}

type FollowUpSettings struct {
	Enabled      bool         `json:"enabled" yaml:"enabled"`
	AbsenteeRule AbsenteeRule `json:"absentee_rule" yaml:"absentee_rule"`
	BirthdayRule BirthdayRule `json:"birthday_rule" yaml:"birthday_rule"`
}

// AbsenteeScope selects which people an absentee scan considers.
type AbsenteeScope string

const (
	ScopeAll                     AbsenteeScope = "all"
	ScopeMembersOnly             AbsenteeScope = "members-only"
	ScopeGuestsOnly              AbsenteeScope = "guests-only"
	ScopeMembersAndRegularGuests AbsenteeScope = "members-and-regular-guests"
)

func (s AbsenteeScope) IsValid() bool {
	switch s {
	case ScopeAll, ScopeMembersOnly, ScopeGuestsOnly, ScopeMembersAndRegularGuests:
		return true
	}
	return false
}

// AbsenteeRule flags people who missed MissedProgramsCount or more of the
// considered programs held in the last WithinDays days.
type AbsenteeRule struct {
	Enabled                bool          `json:"enabled" yaml:"enabled"`
	WithinDays             int           `json:"within_days" yaml:"within_days"`
	MissedProgramsCount    int           `json:"missed_programs_count" yaml:"missed_programs_count"`
	ConsideredProgramTypes []string      `json:"considered_program_types" yaml:"considered_program_types"`
	Scope                  AbsenteeScope `json:"scope" yaml:"scope"`
	FollowUpType           string        `json:"follow_up_type" yaml:"follow_up_type"`
	Priority               string        `json:"priority" yaml:"priority"`
	DueInDays              int           `json:"due_in_days" yaml:"due_in_days"`
	// AutoCreate creates follow-ups for candidates; when false the scan only reports.
	AutoCreate bool `json:"auto_create" yaml:"auto_create"`
}

type BirthdayRule struct {
	Enabled         bool   `json:"enabled" yaml:"enabled"`
	FollowUpType    string `json:"follow_up_type" yaml:"follow_up_type"`
	Priority        string `json:"priority" yaml:"priority"`
	SendMessage     bool   `json:"send_message" yaml:"send_message"`
	MessageTemplate string `json:"message_template" yaml:"message_template"`
	Channel         string `json:"channel" yaml:"channel"`
}

// TallySettings formats generated codes as Prefix + zero padded sequence.
type TallySettings struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	Prefix       string `json:"prefix" yaml:"prefix"`
	Padding      int    `json:"padding" yaml:"padding"`
	DefaultCount int    `json:"default_count" yaml:"default_count"`
}

type MessagingSettings struct {
	WelcomeOnPromotion bool   `json:"welcome_on_promotion" yaml:"welcome_on_promotion"`
	WelcomeTemplate    string `json:"welcome_template" yaml:"welcome_template"`
	DefaultChannel     string `json:"default_channel" yaml:"default_channel"`
}

const maxTallyPadding = 8

// Defaults returns the settings used when nothing has been persisted yet.
func Defaults() Settings {
	return Settings{
		Evolution: EvolutionSettings{
			Enabled:                       true,
			GuestToReturningThreshold:     2,
			ReturningToRegularThreshold:   4,
			RegularGuestToMemberThreshold: 8,
			MemberRatings: RatingTiers{
				Adherent:  RatingThreshold{MinAttendancePercentage: 90, MinWeeksConsidered: 12},
				Regular:   RatingThreshold{MinAttendancePercentage: 75, MinWeeksConsidered: 8},
				Returning: RatingThreshold{MinAttendancePercentage: 50, MinWeeksConsidered: 8},
				Visiting:  RatingThreshold{MinAttendancePercentage: 10, MinWeeksConsidered: 12},
			},
		},
		FollowUp: FollowUpSettings{
			Enabled: true,
			AbsenteeRule: AbsenteeRule{
				Enabled:             true,
				WithinDays:          21,
				MissedProgramsCount: 3,
				Scope:               ScopeMembersAndRegularGuests,
				FollowUpType:        "absentee",
				Priority:            "medium",
				DueInDays:           3,
				AutoCreate:          true,
			},
			BirthdayRule: BirthdayRule{
				Enabled:         true,
				FollowUpType:    "birthday",
				Priority:        "low",
				MessageTemplate: "Happy birthday, {{ first_name }}!",
				Channel:         "sms",
			},
		},
		Tally: TallySettings{
			Enabled:      true,
			Prefix:       "T",
			Padding:      3,
			DefaultCount: 100,
		},
		Messaging: MessagingSettings{
			WelcomeTemplate: "Welcome to the family, {{ first_name }}!",
			DefaultChannel:  "sms",
		},
	}
}

// Validate checks every section. It reports the first violation found.
func (s Settings) Validate() error {
	if err := s.Evolution.Validate(); err != nil {
		return err
	}
	if err := s.FollowUp.Validate(); err != nil {
		return err
	}
	return s.Tally.Validate()
}

func (e EvolutionSettings) Validate() error {
	if e.GuestToReturningThreshold <= 0 {
		return invalid("evolution.guest_to_returning_threshold must be positive")
	}
	if e.ReturningToRegularThreshold <= e.GuestToReturningThreshold {
		return invalid("evolution.returning_to_regular_threshold must exceed guest_to_returning_threshold")
	}
	if e.RegularGuestToMemberThreshold < e.ReturningToRegularThreshold {
		return invalid("evolution.regular_guest_to_member_threshold must be at least returning_to_regular_threshold")
	}
	tiers := map[string]RatingThreshold{
		"adherent":  e.MemberRatings.Adherent,
		"regular":   e.MemberRatings.Regular,
		"returning": e.MemberRatings.Returning,
		"visiting":  e.MemberRatings.Visiting,
	}
	for name, t := range tiers {
		if t.MinAttendancePercentage < 0 || t.MinAttendancePercentage > 100 {
			return invalid(fmt.Sprintf("evolution.member_ratings.%s.min_attendance_percentage must be within [0,100]", name))
		}
		if t.MinWeeksConsidered <= 0 {
			return invalid(fmt.Sprintf("evolution.member_ratings.%s.min_weeks_considered must be positive", name))
		}
	}
	return nil
}

func (f FollowUpSettings) Validate() error {
	r := f.AbsenteeRule
	if r.WithinDays <= 0 {
		return invalid("follow_up.absentee_rule.within_days must be positive")
	}
	if r.MissedProgramsCount <= 0 {
		return invalid("follow_up.absentee_rule.missed_programs_count must be positive")
	}
	if !r.Scope.IsValid() {
		return invalid("follow_up.absentee_rule.scope is not a known scope")
	}
	if r.FollowUpType == "" {
		return invalid("follow_up.absentee_rule.follow_up_type is required")
	}
	if r.DueInDays < 0 {
		return invalid("follow_up.absentee_rule.due_in_days must not be negative")
	}
	if f.BirthdayRule.FollowUpType == "" {
		return invalid("follow_up.birthday_rule.follow_up_type is required")
	}
	return nil
}

func (t TallySettings) Validate() error {
	if t.Padding < 1 || t.Padding > maxTallyPadding {
		return invalid(fmt.Sprintf("tally.padding must be within [1,%d]", maxTallyPadding))
	}
	if t.DefaultCount < 0 {
		return invalid("tally.default_count must not be negative")
	}
	return nil
}

// LoadFile reads a YAML seed file on top of Defaults. Keys missing from the
// file keep their default values.
func LoadFile(path string) (Settings, error) {
	s := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func invalid(msg string) error {
	return dErrors.New(dErrors.CodeValidation, msg)
}
