package httptransport

import (
	"time"

	personmodels "flock/internal/person/models"
	programmodels "flock/internal/program/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

type DoNotContactRequest struct {
	DoNotContact bool   `json:"do_not_contact"`
	Reason       string `json:"reason,omitempty"`
}

type PromoteRequest struct {
	Membership personmodels.MembershipDetails `json:"membership"`
	Force      bool                           `json:"force,omitempty"`
}

type ProgramStatusRequest struct {
	Status programmodels.Status `json:"status"`
}

func (r *ProgramStatusRequest) Validate() error {
	if r.Status == "" {
		return dErrors.New(dErrors.CodeValidation, "status is required")
	}
	return nil
}

// MarkAttendanceRequest is the body of POST /programs/{id}/attendance. The
// recorder is always the calling operator.
type MarkAttendanceRequest struct {
	PersonID  id.PersonID         `json:"person_id"`
	Status    id.AttendanceStatus `json:"status"`
	Present   *bool               `json:"present,omitempty"`
	Timestamp *time.Time          `json:"timestamp,omitempty"`
}

// Normalize lets kiosks send a bare present flag instead of a status.
func (r *MarkAttendanceRequest) Normalize() {
	if r.Status == "" && r.Present != nil {
		r.Status = id.StatusFromPresent(*r.Present)
	}
}

type GenerateTalliesRequest struct {
	Count int `json:"count"`
}

type IssueTallyRequest struct {
	Code     string      `json:"code,omitempty"`
	PersonID id.PersonID `json:"person_id,omitempty"`
	Source   string      `json:"source,omitempty"`
}

type MapTallyRequest struct {
	PersonID id.PersonID `json:"person_id"`
	Source   string      `json:"source,omitempty"`
}

func (r *MapTallyRequest) Validate() error {
	if r.PersonID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "person_id is required")
	}
	return nil
}

type VoidTallyRequest struct {
	Reason string `json:"reason,omitempty"`
}
