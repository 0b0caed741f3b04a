// Package followup defines the collaborator the automations hand their
// findings to.
package followup

import (
	"context"

	"flock/internal/followup/models"
	id "flock/pkg/domain"
)

// Sink records follow-ups. ListOpen with an empty type returns every open
// follow-up of the person.
type Sink interface {
	Create(ctx context.Context, req models.CreateRequest) (*models.FollowUp, error)
	ListOpen(ctx context.Context, personID id.PersonID, typ string) ([]*models.FollowUp, error)
}
