package settings

import (
	"slices"

	strutil "flock/pkg/platform/strings"
)

// Patch updates one or more sections. Nil pointers leave a field unchanged;
// slices replace the stored slice wholesale.
type Patch struct {
	Evolution *EvolutionPatch `json:"evolution,omitempty"`
	FollowUp  *FollowUpPatch  `json:"follow_up,omitempty"`
	Tally     *TallyPatch     `json:"tally,omitempty"`
	Messaging *MessagingPatch `json:"messaging,omitempty"`
}

type EvolutionPatch struct {
	Enabled                       *bool            `json:"enabled,omitempty"`
	GuestToReturningThreshold     *int             `json:"guest_to_returning_threshold,omitempty"`
	ReturningToRegularThreshold   *int             `json:"returning_to_regular_threshold,omitempty"`
	RegularGuestToMemberThreshold *int             `json:"regular_guest_to_member_threshold,omitempty"`
	Adherent                      *RatingThreshold `json:"adherent,omitempty"`
	Regular                       *RatingThreshold `json:"regular,omitempty"`
	Returning                     *RatingThreshold `json:"returning,omitempty"`
	Visiting                      *RatingThreshold `json:"visiting,omitempty"`
}

type FollowUpPatch struct {
	Enabled  *bool              `json:"enabled,omitempty"`
	Absentee *AbsenteeRulePatch `json:"absentee_rule,omitempty"`
	Birthday *BirthdayRulePatch `json:"birthday_rule,omitempty"`
}

type AbsenteeRulePatch struct {
	Enabled                *bool          `json:"enabled,omitempty"`
	WithinDays             *int           `json:"within_days,omitempty"`
	MissedProgramsCount    *int           `json:"missed_programs_count,omitempty"`
	ConsideredProgramTypes *[]string      `json:"considered_program_types,omitempty"`
	Scope                  *AbsenteeScope `json:"scope,omitempty"`
	FollowUpType           *string        `json:"follow_up_type,omitempty"`
	Priority               *string        `json:"priority,omitempty"`
	DueInDays              *int           `json:"due_in_days,omitempty"`
	AutoCreate             *bool          `json:"auto_create,omitempty"`
}

type BirthdayRulePatch struct {
	Enabled         *bool   `json:"enabled,omitempty"`
	FollowUpType    *string `json:"follow_up_type,omitempty"`
	Priority        *string `json:"priority,omitempty"`
	SendMessage     *bool   `json:"send_message,omitempty"`
	MessageTemplate *string `json:"message_template,omitempty"`
	Channel         *string `json:"channel,omitempty"`
}

type TallyPatch struct {
	Enabled      *bool   `json:"enabled,omitempty"`
	Prefix       *string `json:"prefix,omitempty"`
	Padding      *int    `json:"padding,omitempty"`
	DefaultCount *int    `json:"default_count,omitempty"`
}

type MessagingPatch struct {
	WelcomeOnPromotion *bool   `json:"welcome_on_promotion,omitempty"`
	WelcomeTemplate    *string `json:"welcome_template,omitempty"`
	DefaultChannel     *string `json:"default_channel,omitempty"`
}

// Apply returns a copy of s with p applied. The receiver is never modified and
// the result is validated as a whole, so a patch cannot leave the thresholds
// in an inconsistent order.
func (s Settings) Apply(p Patch) (Settings, error) {
	next := s
	next.FollowUp.AbsenteeRule.ConsideredProgramTypes = slices.Clone(s.FollowUp.AbsenteeRule.ConsideredProgramTypes)

	if e := p.Evolution; e != nil {
		ev := &next.Evolution
		set(&ev.Enabled, e.Enabled)
		set(&ev.GuestToReturningThreshold, e.GuestToReturningThreshold)
		set(&ev.ReturningToRegularThreshold, e.ReturningToRegularThreshold)
		set(&ev.RegularGuestToMemberThreshold, e.RegularGuestToMemberThreshold)
		set(&ev.MemberRatings.Adherent, e.Adherent)
		set(&ev.MemberRatings.Regular, e.Regular)
		set(&ev.MemberRatings.Returning, e.Returning)
		set(&ev.MemberRatings.Visiting, e.Visiting)
	}
	if f := p.FollowUp; f != nil {
		set(&next.FollowUp.Enabled, f.Enabled)
		if a := f.Absentee; a != nil {
			r := &next.FollowUp.AbsenteeRule
			set(&r.Enabled, a.Enabled)
			set(&r.WithinDays, a.WithinDays)
			set(&r.MissedProgramsCount, a.MissedProgramsCount)
			if a.ConsideredProgramTypes != nil {
				r.ConsideredProgramTypes = strutil.DedupeAndTrim(*a.ConsideredProgramTypes)
			}
			set(&r.Scope, a.Scope)
			set(&r.FollowUpType, a.FollowUpType)
			set(&r.Priority, a.Priority)
			set(&r.DueInDays, a.DueInDays)
			set(&r.AutoCreate, a.AutoCreate)
		}
		if b := f.Birthday; b != nil {
			r := &next.FollowUp.BirthdayRule
			set(&r.Enabled, b.Enabled)
			set(&r.FollowUpType, b.FollowUpType)
			set(&r.Priority, b.Priority)
			set(&r.SendMessage, b.SendMessage)
			set(&r.MessageTemplate, b.MessageTemplate)
			set(&r.Channel, b.Channel)
		}
	}
	if t := p.Tally; t != nil {
		set(&next.Tally.Enabled, t.Enabled)
		set(&next.Tally.Prefix, t.Prefix)
		set(&next.Tally.Padding, t.Padding)
		set(&next.Tally.DefaultCount, t.DefaultCount)
	}
	if m := p.Messaging; m != nil {
		set(&next.Messaging.WelcomeOnPromotion, m.WelcomeOnPromotion)
		set(&next.Messaging.WelcomeTemplate, m.WelcomeTemplate)
		set(&next.Messaging.DefaultChannel, m.DefaultChannel)
	}

	if err := next.Validate(); err != nil {
		return s, err
	}
	return next, nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
