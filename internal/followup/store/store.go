// Package store keeps follow-ups as one JSON array per person under
// followups:<personId> and exposes them as a followup.Sink.
package store

import (
	"context"
	"log/slog"
	"slices"

	"flock/internal/followup/models"
	"flock/internal/storage"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/requestcontext"
)

func personKey(personID id.PersonID) string {
	return "followups:" + personID.String()
}

type Store struct {
	kv storage.Store
}

func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) ListByPerson(ctx context.Context, personID id.PersonID) ([]*models.FollowUp, error) {
	list, _, err := storage.GetJSON[[]*models.FollowUp](ctx, s.kv, personKey(personID))
	return list, err
}

func (s *Store) SaveAll(ctx context.Context, personID id.PersonID, list []*models.FollowUp) error {
	return storage.PutJSON(ctx, s.kv, personKey(personID), list)
}

// Sink is the store-backed follow-up collaborator.
type Sink struct {
	tx     *storage.Runner
	logger *slog.Logger
}

func NewSink(tx *storage.Runner, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{tx: tx, logger: logger}
}

func (s *Sink) Create(ctx context.Context, req models.CreateRequest) (*models.FollowUp, error) {
	f, err := models.NewFollowUp(req, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		st := New(kv)
		list, err := st.ListByPerson(ctx, req.PersonID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load follow-ups")
		}
		return st.SaveAll(ctx, req.PersonID, append(list, f))
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "follow_up_created",
		"person_id", f.PersonID.String(),
		"follow_up_type", f.Type,
		"created_by", f.CreatedBy,
		"event", "follow_up_created",
		"log_type", "audit",
	)
	return f, nil
}

func (s *Sink) ListOpen(ctx context.Context, personID id.PersonID, typ string) ([]*models.FollowUp, error) {
	all, err := s.List(ctx, personID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(f *models.FollowUp) bool {
		return !f.IsOpen() || (typ != "" && f.Type != typ)
	}), nil
}

// List returns every follow-up of the person, oldest first.
func (s *Sink) List(ctx context.Context, personID id.PersonID) ([]*models.FollowUp, error) {
	var out []*models.FollowUp
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		list, err := New(kv).ListByPerson(ctx, personID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load follow-ups")
		}
		out = list
		return nil
	})
	if out == nil {
		out = []*models.FollowUp{}
	}
	return out, err
}

// Complete closes an open follow-up so a later automation run may raise a
// new one of the same type.
func (s *Sink) Complete(ctx context.Context, personID id.PersonID, followUpID id.FollowUpID) (*models.FollowUp, error) {
	var out *models.FollowUp
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		st := New(kv)
		list, err := st.ListByPerson(ctx, personID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load follow-ups")
		}
		i := slices.IndexFunc(list, func(f *models.FollowUp) bool { return f.ID == followUpID })
		if i < 0 {
			return dErrors.New(dErrors.CodeNotFound, "follow-up not found")
		}
		if err := list[i].CanComplete(); err != nil {
			return err
		}
		list[i].ApplyComplete(requestcontext.Now(ctx))
		out = list[i]
		return st.SaveAll(ctx, personID, list)
	})
	return out, err
}
