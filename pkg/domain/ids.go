package domain

import (
	"strings"
	"unicode"

	"github.com/google/uuid"

	dErrors "flock/pkg/domain-errors"
)

// Typed identifiers keep a program id from being passed where a person id is
// expected. Values are opaque; new ones are UUID strings but imported data may
// carry any short printable identifier.
type (
	PersonID   string
	ProgramID  string
	TallyID    string
	RecordID   string
	FollowUpID string
	// UserID identifies the operator performing an action.
	UserID string
)

const maxIDLength = 128

func NewPersonID() PersonID     { return PersonID(uuid.NewString()) }
func NewProgramID() ProgramID   { return ProgramID(uuid.NewString()) }
func NewTallyID() TallyID       { return TallyID(uuid.NewString()) }
func NewRecordID() RecordID     { return RecordID(uuid.NewString()) }
func NewFollowUpID() FollowUpID { return FollowUpID(uuid.NewString()) }

func (id PersonID) String() string  { return string(id) }
func (id ProgramID) String() string { return string(id) }
func (id TallyID) String() string   { return string(id) }
func (id UserID) String() string    { return string(id) }
func (id RecordID) String() string  { return string(id) }
func (id FollowUpID) String() string { return string(id) }

func (id PersonID) IsNil() bool  { return id == "" }
func (id ProgramID) IsNil() bool { return id == "" }
func (id UserID) IsNil() bool    { return id == "" }
func (id TallyID) IsNil() bool   { return id == "" }

func ParsePersonID(s string) (PersonID, error) {
	v, err := parseOpaque(s, "person_id")
	return PersonID(v), err
}

func ParseProgramID(s string) (ProgramID, error) {
	v, err := parseOpaque(s, "program_id")
	return ProgramID(v), err
}

func ParseUserID(s string) (UserID, error) {
	v, err := parseOpaque(s, "user_id")
	return UserID(v), err
}

// parseOpaque accepts non-empty printable identifiers without whitespace.
func parseOpaque(s, field string) (string, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" is required")
	}
	if len(s) > maxIDLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" is too long")
	}
	if strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || !unicode.IsPrint(r)
	}) >= 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, field+" contains invalid characters")
	}
	return s, nil
}
