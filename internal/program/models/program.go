package models

import (
	"strings"
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) IsValid() bool {
	return s == StatusScheduled || s == StatusCompleted || s == StatusCancelled
}

// Program is one scheduled event instance, e.g. a Sunday service.
//
// Invariants:
//   - ID, Type and Date are immutable after creation
//   - Date is a calendar date stored as UTC midnight
//   - completed is terminal; cancelled can only go back to scheduled
type Program struct {
	ID        id.ProgramID `json:"id"`
	Type      string       `json:"type"`
	Name      string       `json:"name"`
	Date      time.Time    `json:"date"`
	Status    Status       `json:"status"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// CalendarDate drops the clock part of t, keeping its local calendar day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func NewProgram(programID id.ProgramID, programType, name string, date time.Time, now time.Time) (*Program, error) {
	programType = strings.TrimSpace(programType)
	if programType == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "program type is required")
	}
	if date.IsZero() {
		return nil, dErrors.New(dErrors.CodeValidation, "program date is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = programType
	}
	return &Program{
		ID:        programID,
		Type:      programType,
		Name:      name,
		Date:      CalendarDate(date),
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (p *Program) IsCancelled() bool { return p.Status == StatusCancelled }

// CanTransition checks a status change.
func (p *Program) CanTransition(to Status) error {
	if !to.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown program status")
	}
	switch {
	case p.Status == to:
		return nil
	case p.Status == StatusScheduled:
		return nil
	case p.Status == StatusCancelled && to == StatusScheduled:
		return nil
	}
	return dErrors.New(dErrors.CodeInvalidState, "program cannot move from "+string(p.Status)+" to "+string(to))
}

func (p *Program) ApplyTransition(to Status, now time.Time) {
	p.Status = to
	p.UpdatedAt = now
}

// InWindow reports whether the program date falls in [from, to] by calendar day.
func (p *Program) InWindow(from, to time.Time) bool {
	d := p.Date
	return !d.Before(CalendarDate(from)) && !d.After(CalendarDate(to))
}

// CreateRequest carries a new program.
type CreateRequest struct {
	Type string    `json:"type"`
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

// WindowQuery selects programs for reporting and absentee scans.
type WindowQuery struct {
	From time.Time
	To   time.Time
	// Types restricts to these program types; empty means all.
	Types            []string
	IncludeCancelled bool
}
