package models

import (
	"strings"
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

type Status string

const (
	StatusOpen Status = "open"
	StatusDone Status = "done"
)

// FollowUp is a pastoral task created for a person, usually by an automation.
//
// Invariants:
//   - at most one open follow-up per (PersonID, Type) when created through
//     an automation
//   - CompletedAt is set iff Status is done
type FollowUp struct {
	ID          id.FollowUpID `json:"id"`
	PersonID    id.PersonID   `json:"person_id"`
	Type        string        `json:"type"`
	Title       string        `json:"title"`
	Notes       string        `json:"notes,omitempty"`
	Priority    string        `json:"priority"`
	DueAt       *time.Time    `json:"due_at,omitempty"`
	Status      Status        `json:"status"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}

// CreateRequest describes a new follow-up. CreatedBy names the automation
// rule or operator.
type CreateRequest struct {
	PersonID  id.PersonID `json:"person_id"`
	Type      string      `json:"type"`
	Title     string      `json:"title"`
	Notes     string      `json:"notes,omitempty"`
	Priority  string      `json:"priority,omitempty"`
	DueAt     *time.Time  `json:"due_at,omitempty"`
	CreatedBy string      `json:"created_by,omitempty"`
}

func (r CreateRequest) Validate() error {
	if r.PersonID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "person_id is required")
	}
	if strings.TrimSpace(r.Type) == "" {
		return dErrors.New(dErrors.CodeValidation, "type is required")
	}
	if strings.TrimSpace(r.Title) == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	return nil
}

func NewFollowUp(req CreateRequest, now time.Time) (*FollowUp, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	priority := req.Priority
	if priority == "" {
		priority = "medium"
	}
	return &FollowUp{
		ID:        id.NewFollowUpID(),
		PersonID:  req.PersonID,
		Type:      strings.TrimSpace(req.Type),
		Title:     strings.TrimSpace(req.Title),
		Notes:     req.Notes,
		Priority:  priority,
		DueAt:     req.DueAt,
		Status:    StatusOpen,
		CreatedBy: req.CreatedBy,
		CreatedAt: now,
	}, nil
}

func (f *FollowUp) IsOpen() bool { return f.Status == StatusOpen }

func (f *FollowUp) CanComplete() error {
	if !f.IsOpen() {
		return dErrors.New(dErrors.CodeInvalidState, "follow-up is already done")
	}
	return nil
}

func (f *FollowUp) ApplyComplete(now time.Time) {
	f.Status = StatusDone
	f.CompletedAt = &now
}
