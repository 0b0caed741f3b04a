// Package evolution holds the pure classification rules that turn a person's
// attendance into a guest type, a member rating and promotion readiness.
// Nothing here touches storage; callers persist the returned value.
package evolution

import (
	"time"

	"flock/internal/person/models"
	"flock/internal/settings"
	id "flock/pkg/domain"
)

const day = 24 * time.Hour

// ApplyRules recomputes the derived classification of p under cfg as of now.
// It returns a new value and leaves p untouched. When evolution is disabled
// the input is returned as is.
func ApplyRules(p models.Person, cfg settings.EvolutionSettings, now time.Time) models.Person {
	out := p.Clone()
	if !cfg.Enabled {
		return out
	}
	switch out.Category {
	case models.CategoryGuest:
		out.Evolution.GuestType = ClassifyGuest(out.Evolution.VisitCount, cfg)
		out.Evolution.MemberRating = ""
		out.Evolution.ReadyForPromotion = out.Evolution.GuestType == models.GuestRegular &&
			out.Evolution.VisitCount >= cfg.RegularGuestToMemberThreshold
	case models.CategoryMember:
		out.Evolution.GuestType = ""
		out.Evolution.ReadyForPromotion = false
		if rating, pct, ok := RateMember(out.Evolution.AttendanceHistory, cfg.MemberRatings, now); ok && rating != out.Evolution.MemberRating {
			out.Evolution.RatingHistory = append(out.Evolution.RatingHistory, models.RatingChange{
				From:                 out.Evolution.MemberRating,
				To:                   rating,
				AttendancePercentage: pct,
				ChangedAt:            now,
			})
			out.Evolution.MemberRating = rating
		}
	}
	evaluated := now
	out.Evolution.LastEvaluatedAt = &evaluated
	return out
}

// ClassifyGuest maps a visit count onto a guest type.
func ClassifyGuest(visits int, cfg settings.EvolutionSettings) models.GuestType {
	switch {
	case visits >= cfg.ReturningToRegularThreshold:
		return models.GuestRegular
	case visits >= cfg.GuestToReturningThreshold:
		return models.GuestReturning
	default:
		return models.GuestFirstTime
	}
}

type tier struct {
	rating    models.MemberRating
	threshold settings.RatingThreshold
}

func tiers(t settings.RatingTiers) []tier {
	return []tier{
		{models.RatingAdherent, t.Adherent},
		{models.RatingRegular, t.Regular},
		{models.RatingReturning, t.Returning},
		{models.RatingVisiting, t.Visiting},
	}
}

// RateMember walks the tiers from strictest to loosest and returns the first
// whose trailing-window attendance percentage meets its minimum. Only the
// latest entry per program inside the window counts. ok is false when no tier
// is met, in which case the current rating should be kept.
func RateMember(history []models.HistoryEntry, t settings.RatingTiers, now time.Time) (models.MemberRating, float64, bool) {
	for _, tr := range tiers(t) {
		pct, counted := AttendancePercentage(history, now.Add(-time.Duration(tr.threshold.MinWeeksConsidered)*7*day), now)
		if counted == 0 {
			continue
		}
		if pct >= tr.threshold.MinAttendancePercentage {
			return tr.rating, pct, true
		}
	}
	return "", 0, false
}

// AttendancePercentage returns the present share of distinct programs dated
// within [from, to], and how many programs were counted.
func AttendancePercentage(history []models.HistoryEntry, from, to time.Time) (float64, int) {
	latest := make(map[id.ProgramID]models.HistoryEntry)
	for _, e := range history {
		if e.Date.Before(from) || e.Date.After(to) {
			continue
		}
		latest[e.ProgramID] = e
	}
	if len(latest) == 0 {
		return 0, 0
	}
	present := 0
	for _, e := range latest {
		if e.Status.IsPresent() {
			present++
		}
	}
	return float64(present) * 100 / float64(len(latest)), len(latest)
}

// ApplyAttendance folds one attendance mark into p and reclassifies it.
//
// Counters move only on a status change for the program: marking present twice
// for the same program counts one visit, and correcting present to absent
// takes the visit back. The history always gains an entry.
func ApplyAttendance(p models.Person, programID id.ProgramID, date time.Time, status id.AttendanceStatus, cfg settings.EvolutionSettings, now time.Time) models.Person {
	out := p.Clone()
	ev := &out.Evolution
	prev, seen := ev.LatestStatus(programID)
	ev.AttendanceHistory = append(ev.AttendanceHistory, models.HistoryEntry{
		ProgramID:  programID,
		Date:       date,
		Status:     status,
		RecordedAt: now,
	})

	if status.IsPresent() {
		if !seen || !prev.IsPresent() {
			ev.VisitCount++
			ev.TotalVisits++
			ev.CurrentStreak++
		}
		if ev.FirstVisitDate == nil {
			d := date
			ev.FirstVisitDate = &d
		}
		if ev.LastVisitDate == nil || date.After(*ev.LastVisitDate) {
			d := date
			ev.LastVisitDate = &d
		}
	} else {
		ev.CurrentStreak = 0
		if seen && prev.IsPresent() {
			ev.VisitCount = max(ev.VisitCount-1, 0)
			ev.TotalVisits = max(ev.TotalVisits-1, 0)
		}
	}
	ev.LongestStreak = max(ev.LongestStreak, ev.CurrentStreak)
	out.UpdatedAt = now

	return ApplyRules(out, cfg, now)
}
