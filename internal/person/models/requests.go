package models

import (
	"strings"

	dErrors "flock/pkg/domain-errors"
)

// RegisterRequest carries a new person. Category defaults to guest.
type RegisterRequest struct {
	Category     Category           `json:"category"`
	PersonalData PersonalData       `json:"personal_data"`
	GuestData    *GuestData         `json:"guest_data,omitempty"`
	Membership   *MembershipDetails `json:"membership,omitempty"`
	Engagement   *Engagement        `json:"engagement,omitempty"`
}

func (r *RegisterRequest) Normalize() {
	if r.Category == "" {
		r.Category = CategoryGuest
	}
	r.PersonalData = r.PersonalData.Normalized()
}

func (r *RegisterRequest) Validate() error {
	if !r.Category.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "category must be guest or member")
	}
	if r.Category == CategoryMember && r.GuestData != nil {
		return dErrors.New(dErrors.CodeValidation, "guest_data is only accepted for guests")
	}
	if r.Category == CategoryGuest && r.Membership != nil {
		return dErrors.New(dErrors.CodeValidation, "membership is only accepted for members")
	}
	return r.PersonalData.Validate()
}

func (d PersonalData) Normalized() PersonalData {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.Email = strings.ToLower(strings.TrimSpace(d.Email))
	d.Phone = strings.TrimSpace(d.Phone)
	return d
}

func (d PersonalData) Validate() error {
	if d.FirstName == "" {
		return dErrors.New(dErrors.CodeValidation, "first_name is required")
	}
	if d.Email != "" && !strings.Contains(d.Email, "@") {
		return dErrors.New(dErrors.CodeValidation, "email is malformed")
	}
	return nil
}

// ListFilter narrows List results. Zero fields match everything.
type ListFilter struct {
	Category          Category
	GuestType         GuestType
	MemberRating      MemberRating
	ReadyForPromotion *bool
}

func (f ListFilter) Matches(p *Person) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.GuestType != "" && p.Evolution.GuestType != f.GuestType {
		return false
	}
	if f.MemberRating != "" && p.Evolution.MemberRating != f.MemberRating {
		return false
	}
	if f.ReadyForPromotion != nil && p.Evolution.ReadyForPromotion != *f.ReadyForPromotion {
		return false
	}
	return true
}
