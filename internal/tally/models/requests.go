package models

import (
	"strings"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// IssueRequest hands out a tally. An empty Code takes the next available one.
// A PersonID collapses issue and map into one step.
type IssueRequest struct {
	ProgramID id.ProgramID `json:"program_id"`
	Code      string       `json:"code,omitempty"`
	IssuedBy  id.UserID    `json:"issued_by,omitempty"`
	PersonID  id.PersonID  `json:"person_id,omitempty"`
	Source    string       `json:"source,omitempty"`
}

func (r *IssueRequest) Normalize() {
	r.Code = strings.TrimSpace(r.Code)
	r.Source = strings.TrimSpace(r.Source)
}

func (r IssueRequest) Validate() error {
	if r.ProgramID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "program_id is required")
	}
	return nil
}

type MapRequest struct {
	ProgramID id.ProgramID `json:"program_id"`
	Code      string       `json:"code"`
	PersonID  id.PersonID  `json:"person_id"`
	Source    string       `json:"source,omitempty"`
	MappedBy  id.UserID    `json:"mapped_by,omitempty"`
}

func (r *MapRequest) Normalize() {
	r.Code = strings.TrimSpace(r.Code)
	r.Source = strings.TrimSpace(r.Source)
}

func (r MapRequest) Validate() error {
	if r.ProgramID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "program_id is required")
	}
	if r.Code == "" {
		return dErrors.New(dErrors.CodeValidation, "code is required")
	}
	if r.PersonID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "person_id is required")
	}
	return nil
}

// Summary counts a program's tallies per status.
type Summary struct {
	ProgramID id.ProgramID `json:"program_id"`
	Total     int          `json:"total"`
	Available int          `json:"available"`
	Issued    int          `json:"issued"`
	Logged    int          `json:"logged"`
	Void      int          `json:"void"`
}

func Summarize(programID id.ProgramID, tallies []*Tally) Summary {
	s := Summary{ProgramID: programID, Total: len(tallies)}
	for _, t := range tallies {
		switch t.Status() {
		case StatusAvailable:
			s.Available++
		case StatusIssued:
			s.Issued++
		case StatusLogged:
			s.Logged++
		case StatusVoid:
			s.Void++
		}
	}
	return s
}
