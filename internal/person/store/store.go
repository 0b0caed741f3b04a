// Package store persists people as one JSON blob per person plus an id index.
package store

import (
	"context"
	"fmt"

	"flock/internal/person/models"
	"flock/internal/storage"
	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
)

const indexKey = "people"

func personKey(personID id.PersonID) string {
	return "person:" + personID.String()
}

// Store is bound to one unit of work; build it from the storage.Store handed
// to a RunInTx callback.
type Store struct {
	kv storage.Store
}

func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

// FindByID returns sentinel.ErrNotFound when the person does not exist.
func (s *Store) FindByID(ctx context.Context, personID id.PersonID) (*models.Person, error) {
	p, found, err := storage.GetJSON[models.Person](ctx, s.kv, personKey(personID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

// Save writes the person and indexes new ids.
func (s *Store) Save(ctx context.Context, p *models.Person) error {
	if err := storage.PutJSON(ctx, s.kv, personKey(p.ID), p); err != nil {
		return err
	}
	return storage.AddToIndex(ctx, s.kv, indexKey, p.ID.String())
}

// ListAll returns every person in registration order.
func (s *Store) ListAll(ctx context.Context) ([]*models.Person, error) {
	ids, err := storage.ReadIndex(ctx, s.kv, indexKey)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Person, 0, len(ids))
	for _, raw := range ids {
		p, err := s.FindByID(ctx, id.PersonID(raw))
		if err != nil {
			return nil, fmt.Errorf("load indexed person %s: %w", raw, err)
		}
		out = append(out, p)
	}
	return out, nil
}
