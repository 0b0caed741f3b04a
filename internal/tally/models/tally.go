package models

import (
	"encoding/json"
	"fmt"
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusIssued    Status = "issued"
	StatusLogged    Status = "logged"
	StatusVoid      Status = "void"
)

// State is the tagged lifecycle of a tally. Exactly one of Available, Issued,
// Logged or Void; fields that only exist in a later phase cannot be set in an
// earlier one.
type State interface {
	Status() Status
	isState()
}

type Available struct{}

// Issued is a token handed out at the gate. IssuedAt is the true arrival time.
type Issued struct {
	IssuedAt time.Time
	IssuedBy id.UserID
}

// Logged is an issued token reconciled with a person.
type Logged struct {
	Issued
	PersonID      id.PersonID
	MappedAt      time.Time
	CheckInSource string
}

// Void is terminal. Issued is set when the token had been handed out.
type Void struct {
	Issued   *Issued
	VoidedAt time.Time
	VoidedBy id.UserID
	Reason   string
}

func (Available) Status() Status { return StatusAvailable }
func (Issued) Status() Status    { return StatusIssued }
func (Logged) Status() Status    { return StatusLogged }
func (Void) Status() Status      { return StatusVoid }

func (Available) isState() {}
func (Issued) isState()    {}
func (Logged) isState()    {}
func (Void) isState()      {}

// Tally is one anonymous arrival token of a program.
//
// Invariants:
//   - Code is unique within ProgramID and never reused or renumbered
//   - Sequence is the numeric part of Code and strictly increases per program
//   - the issue time is set exactly once, on available -> issued
//   - a person is attached only from issued; a logged tally is never remapped
//   - void is reachable from available or issued and is terminal
type Tally struct {
	ID        id.TallyID
	ProgramID id.ProgramID
	Code      string
	Sequence  int
	State     State
	CreatedAt time.Time
}

func NewTally(programID id.ProgramID, code string, seq int, now time.Time) *Tally {
	return &Tally{
		ID:        id.NewTallyID(),
		ProgramID: programID,
		Code:      code,
		Sequence:  seq,
		State:     Available{},
		CreatedAt: now,
	}
}

// FormatCode renders prefix + zero padded sequence, e.g. T007.
func FormatCode(prefix string, padding, seq int) string {
	return fmt.Sprintf("%s%0*d", prefix, padding, seq)
}

func (t *Tally) Status() Status { return t.State.Status() }

// IssuedAt returns the arrival time once the tally has been handed out.
func (t *Tally) IssuedAt() (time.Time, bool) {
	switch st := t.State.(type) {
	case Issued:
		return st.IssuedAt, true
	case Logged:
		return st.IssuedAt, true
	case Void:
		if st.Issued != nil {
			return st.Issued.IssuedAt, true
		}
	}
	return time.Time{}, false
}

// PersonID returns the mapped person of a logged tally.
func (t *Tally) PersonID() (id.PersonID, bool) {
	if st, ok := t.State.(Logged); ok {
		return st.PersonID, true
	}
	return "", false
}

func (t *Tally) CanIssue() error {
	if _, ok := t.State.(Available); !ok {
		return dErrors.New(dErrors.CodeInvalidState, "tally "+t.Code+" is "+string(t.Status())+", not available")
	}
	return nil
}

func (t *Tally) ApplyIssue(by id.UserID, now time.Time) {
	t.State = Issued{IssuedAt: now, IssuedBy: by}
}

// CanMap allows only issued tallies. A logged tally already carries a person,
// including when the same person is mapped again.
func (t *Tally) CanMap() error {
	switch t.State.(type) {
	case Issued:
		return nil
	case Logged:
		return dErrors.New(dErrors.CodeAlreadyMapped, "tally "+t.Code+" is already mapped")
	}
	return dErrors.New(dErrors.CodeInvalidState, "tally "+t.Code+" is "+string(t.Status())+", not issued")
}

// ApplyMap attaches a person. Call CanMap first; the issue time is carried
// over untouched.
func (t *Tally) ApplyMap(personID id.PersonID, source string, now time.Time) {
	issued := t.State.(Issued)
	t.State = Logged{Issued: issued, PersonID: personID, MappedAt: now, CheckInSource: source}
}

func (t *Tally) CanVoid() error {
	switch t.State.(type) {
	case Available, Issued:
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidState, "tally "+t.Code+" is "+string(t.Status())+" and cannot be voided")
}

func (t *Tally) ApplyVoid(by id.UserID, reason string, now time.Time) {
	v := Void{VoidedAt: now, VoidedBy: by, Reason: reason}
	if st, ok := t.State.(Issued); ok {
		v.Issued = &st
	}
	t.State = v
}

// tallyJSON is the persisted and wire form: a flat record tagged by status.
type tallyJSON struct {
	ID            id.TallyID   `json:"id"`
	ProgramID     id.ProgramID `json:"program_id"`
	Code          string       `json:"code"`
	Sequence      int          `json:"sequence"`
	Status        Status       `json:"status"`
	IssuedAt      *time.Time   `json:"issued_at,omitempty"`
	IssuedBy      id.UserID    `json:"issued_by,omitempty"`
	PersonID      id.PersonID  `json:"person_id,omitempty"`
	MappedAt      *time.Time   `json:"mapped_at,omitempty"`
	CheckInSource string       `json:"check_in_source,omitempty"`
	VoidedAt      *time.Time   `json:"voided_at,omitempty"`
	VoidedBy      id.UserID    `json:"voided_by,omitempty"`
	VoidReason    string       `json:"void_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (t Tally) MarshalJSON() ([]byte, error) {
	out := tallyJSON{
		ID:        t.ID,
		ProgramID: t.ProgramID,
		Code:      t.Code,
		Sequence:  t.Sequence,
		Status:    t.State.Status(),
		CreatedAt: t.CreatedAt,
	}
	setIssued := func(i Issued) {
		at := i.IssuedAt
		out.IssuedAt = &at
		out.IssuedBy = i.IssuedBy
	}
	switch st := t.State.(type) {
	case Issued:
		setIssued(st)
	case Logged:
		setIssued(st.Issued)
		mapped := st.MappedAt
		out.PersonID = st.PersonID
		out.MappedAt = &mapped
		out.CheckInSource = st.CheckInSource
	case Void:
		if st.Issued != nil {
			setIssued(*st.Issued)
		}
		voided := st.VoidedAt
		out.VoidedAt = &voided
		out.VoidedBy = st.VoidedBy
		out.VoidReason = st.Reason
	}
	return json.Marshal(out)
}

func (t *Tally) UnmarshalJSON(data []byte) error {
	var in tallyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	issued := func() (Issued, error) {
		if in.IssuedAt == nil {
			return Issued{}, fmt.Errorf("tally %s: %s without issued_at", in.Code, in.Status)
		}
		return Issued{IssuedAt: *in.IssuedAt, IssuedBy: in.IssuedBy}, nil
	}

	var state State
	switch in.Status {
	case StatusAvailable:
		state = Available{}
	case StatusIssued:
		i, err := issued()
		if err != nil {
			return err
		}
		state = i
	case StatusLogged:
		i, err := issued()
		if err != nil {
			return err
		}
		if in.PersonID == "" || in.MappedAt == nil {
			return fmt.Errorf("tally %s: logged without person", in.Code)
		}
		state = Logged{Issued: i, PersonID: in.PersonID, MappedAt: *in.MappedAt, CheckInSource: in.CheckInSource}
	case StatusVoid:
		v := Void{VoidedBy: in.VoidedBy, Reason: in.VoidReason}
		if in.VoidedAt != nil {
			v.VoidedAt = *in.VoidedAt
		}
		if in.IssuedAt != nil {
			i := Issued{IssuedAt: *in.IssuedAt, IssuedBy: in.IssuedBy}
			v.Issued = &i
		}
		state = v
	default:
		return fmt.Errorf("tally %s: unknown status %q", in.Code, in.Status)
	}

	*t = Tally{
		ID:        in.ID,
		ProgramID: in.ProgramID,
		Code:      in.Code,
		Sequence:  in.Sequence,
		State:     state,
		CreatedAt: in.CreatedAt,
	}
	return nil
}
