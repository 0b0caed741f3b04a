package models

import (
	"slices"
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// Category is the lifecycle stage of a person. Promotion from guest to member
// is the only transition.
type Category string

const (
	CategoryGuest  Category = "guest"
	CategoryMember Category = "member"
)

func (c Category) IsValid() bool {
	return c == CategoryGuest || c == CategoryMember
}

// GuestType classifies guests by visit count.
type GuestType string

const (
	GuestFirstTime GuestType = "first-time"
	GuestReturning GuestType = "returning"
	GuestRegular   GuestType = "regular"
)

// MemberRating classifies members by trailing attendance percentage.
type MemberRating string

const (
	RatingAdherent  MemberRating = "adherent"
	RatingRegular   MemberRating = "regular"
	RatingReturning MemberRating = "returning"
	RatingVisiting  MemberRating = "visiting"
)

// Person is the aggregate root of the person registry.
//
// Invariants:
//   - ID is immutable
//   - Category is guest or member; member never reverts to guest
//   - Evolution.GuestType is set iff Category is guest
//   - Evolution.MemberRating is only ever set while Category is member
//   - GuestData survives promotion
//   - people are never physically deleted
type Person struct {
	ID           id.PersonID        `json:"id"`
	Category     Category           `json:"category"`
	PersonalData PersonalData       `json:"personal_data"`
	GuestData    *GuestData         `json:"guest_data,omitempty"`
	Membership   *MembershipDetails `json:"membership,omitempty"`
	Evolution    Evolution          `json:"evolution"`
	Engagement   Engagement         `json:"engagement"`
	CreatedAt    time.Time          `json:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at"`
}

type PersonalData struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
}

func (d PersonalData) FullName() string {
	if d.LastName == "" {
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}

type GuestData struct {
	FirstVisitSource string `json:"first_visit_source,omitempty"`
	InvitedBy        string `json:"invited_by,omitempty"`
	Notes            string `json:"notes,omitempty"`
}

type MembershipDetails struct {
	MemberSince      time.Time `json:"member_since"`
	MembershipNumber string    `json:"membership_number,omitempty"`
	Ministry         string    `json:"ministry,omitempty"`
}

// Engagement.DoNotContact suppresses every outbound action for the person.
type Engagement struct {
	DoNotContact       bool   `json:"do_not_contact"`
	DoNotContactReason string `json:"do_not_contact_reason,omitempty"`
	PreferredChannel   string `json:"preferred_channel,omitempty"`
}

// Evolution is the mutable classification state embedded in every person.
//
// Invariants:
//   - VisitCount, TotalVisits >= 0
//   - LongestStreak >= CurrentStreak
//   - AttendanceHistory is append-only; a correction is a new entry
//   - ReadyForPromotion implies GuestType == regular
type Evolution struct {
	GuestType         GuestType      `json:"guest_type,omitempty"`
	MemberRating      MemberRating   `json:"member_rating,omitempty"`
	VisitCount        int            `json:"visit_count"`
	TotalVisits       int            `json:"total_visits"`
	CurrentStreak     int            `json:"current_streak"`
	LongestStreak     int            `json:"longest_streak"`
	FirstVisitDate    *time.Time     `json:"first_visit_date,omitempty"`
	LastVisitDate     *time.Time     `json:"last_visit_date,omitempty"`
	ReadyForPromotion bool           `json:"ready_for_promotion"`
	AttendanceHistory []HistoryEntry `json:"attendance_history,omitempty"`
	RatingHistory     []RatingChange `json:"rating_history,omitempty"`
	PromotedAt        *time.Time     `json:"promoted_at,omitempty"`
	LastEvaluatedAt   *time.Time     `json:"last_evaluated_at,omitempty"`
}

type HistoryEntry struct {
	ProgramID  id.ProgramID        `json:"program_id"`
	Date       time.Time           `json:"date"`
	Status     id.AttendanceStatus `json:"status"`
	RecordedAt time.Time           `json:"recorded_at"`
}

type RatingChange struct {
	From                 MemberRating `json:"from,omitempty"`
	To                   MemberRating `json:"to"`
	AttendancePercentage float64      `json:"attendance_percentage"`
	ChangedAt            time.Time    `json:"changed_at"`
}

// LatestStatus returns the most recent history status recorded for a program.
func (e Evolution) LatestStatus(programID id.ProgramID) (id.AttendanceStatus, bool) {
	for i := len(e.AttendanceHistory) - 1; i >= 0; i-- {
		if e.AttendanceHistory[i].ProgramID == programID {
			return e.AttendanceHistory[i].Status, true
		}
	}
	return "", false
}

func NewPerson(personID id.PersonID, category Category, data PersonalData, now time.Time) (*Person, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "category must be guest or member")
	}
	if data.FirstName == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "first name cannot be empty")
	}
	p := &Person{
		ID:           personID,
		Category:     category,
		PersonalData: data,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if category == CategoryGuest {
		p.GuestData = &GuestData{}
		p.Evolution.GuestType = GuestFirstTime
	} else {
		p.Membership = &MembershipDetails{MemberSince: now}
	}
	return p, nil
}

func (p *Person) IsGuest() bool  { return p.Category == CategoryGuest }
func (p *Person) IsMember() bool { return p.Category == CategoryMember }

// IsRegularGuest reports a guest currently classified regular.
func (p *Person) IsRegularGuest() bool {
	return p.IsGuest() && p.Evolution.GuestType == GuestRegular
}

// CanPromote checks the promotion gate. force bypasses the visit thresholds but
// never the guest-only rule: there is no member to member promotion and no
// demotion.
func (p *Person) CanPromote(memberThreshold int, force bool) error {
	if !p.IsGuest() {
		return dErrors.New(dErrors.CodeInvalidState, "only guests can be promoted")
	}
	if force {
		return nil
	}
	if p.Evolution.GuestType != GuestRegular {
		return dErrors.New(dErrors.CodePromotionNotEligible, "guest is not classified regular")
	}
	if p.Evolution.VisitCount < memberThreshold {
		return dErrors.New(dErrors.CodePromotionNotEligible, "guest has not reached the member visit threshold")
	}
	return nil
}

// ApplyPromotion flips the category to member. Guest data and all history are
// retained. Call CanPromote first; the caller recomputes the member rating.
func (p *Person) ApplyPromotion(details MembershipDetails, now time.Time) {
	if details.MemberSince.IsZero() {
		details.MemberSince = now
	}
	p.Category = CategoryMember
	p.Membership = &details
	p.Evolution.GuestType = ""
	p.Evolution.ReadyForPromotion = false
	p.Evolution.PromotedAt = &now
	p.UpdatedAt = now
}

// Clone returns a deep copy so pure functions can return a new value.
func (p Person) Clone() Person {
	out := p
	if p.GuestData != nil {
		g := *p.GuestData
		out.GuestData = &g
	}
	if p.Membership != nil {
		m := *p.Membership
		out.Membership = &m
	}
	out.PersonalData.DateOfBirth = cloneTime(p.PersonalData.DateOfBirth)
	out.Evolution.FirstVisitDate = cloneTime(p.Evolution.FirstVisitDate)
	out.Evolution.LastVisitDate = cloneTime(p.Evolution.LastVisitDate)
	out.Evolution.PromotedAt = cloneTime(p.Evolution.PromotedAt)
	out.Evolution.LastEvaluatedAt = cloneTime(p.Evolution.LastEvaluatedAt)
	out.Evolution.AttendanceHistory = slices.Clone(p.Evolution.AttendanceHistory)
	out.Evolution.RatingHistory = slices.Clone(p.Evolution.RatingHistory)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
