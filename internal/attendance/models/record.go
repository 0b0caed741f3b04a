package models

import (
	"time"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// Record joins a person to a program.
//
// Invariants:
//   - at most one Record per (ProgramID, PersonID); every write is an upsert
//   - Timestamp is the effective attendance time supplied by the caller; for
//     tally check-ins it equals the tally's issue time, never the mapping time
type Record struct {
	ID         id.RecordID         `json:"id"`
	ProgramID  id.ProgramID        `json:"program_id"`
	PersonID   id.PersonID         `json:"person_id"`
	Status     id.AttendanceStatus `json:"status"`
	Timestamp  time.Time           `json:"timestamp"`
	RecordedBy id.UserID           `json:"recorded_by,omitempty"`
	TallyID    id.TallyID          `json:"tally_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// MarkRequest is one attendance write. Timestamp defaults to now when nil.
type MarkRequest struct {
	ProgramID  id.ProgramID        `json:"program_id"`
	PersonID   id.PersonID         `json:"person_id"`
	Status     id.AttendanceStatus `json:"status"`
	Timestamp  *time.Time          `json:"timestamp,omitempty"`
	RecordedBy id.UserID           `json:"recorded_by,omitempty"`
	TallyID    id.TallyID          `json:"tally_id,omitempty"`
}

func (r MarkRequest) Validate() error {
	if r.ProgramID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "program_id is required")
	}
	if r.PersonID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "person_id is required")
	}
	if !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "status must be present or absent")
	}
	return nil
}

// Summary totals one program's records.
type Summary struct {
	ProgramID id.ProgramID `json:"program_id"`
	Present   int          `json:"present"`
	Absent    int          `json:"absent"`
	Total     int          `json:"total"`
}

// Bucket counts present arrivals whose timestamp falls in [Start, Start+width).
type Bucket struct {
	Start time.Time `json:"start"`
	Count int       `json:"count"`
}
