// Package store persists programs as one JSON blob per program plus an id index.
package store

import (
	"context"
	"fmt"

	"flock/internal/program/models"
	"flock/internal/storage"
	id "flock/pkg/domain"
	"flock/pkg/platform/sentinel"
)

const indexKey = "programs"

func programKey(programID id.ProgramID) string {
	return "program:" + programID.String()
}

type Store struct {
	kv storage.Store
}

func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) FindByID(ctx context.Context, programID id.ProgramID) (*models.Program, error) {
	p, found, err := storage.GetJSON[models.Program](ctx, s.kv, programKey(programID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, sentinel.ErrNotFound
	}
	return &p, nil
}

func (s *Store) Save(ctx context.Context, p *models.Program) error {
	if err := storage.PutJSON(ctx, s.kv, programKey(p.ID), p); err != nil {
		return err
	}
	return storage.AddToIndex(ctx, s.kv, indexKey, p.ID.String())
}

func (s *Store) ListAll(ctx context.Context) ([]*models.Program, error) {
	ids, err := storage.ReadIndex(ctx, s.kv, indexKey)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Program, 0, len(ids))
	for _, raw := range ids {
		p, err := s.FindByID(ctx, id.ProgramID(raw))
		if err != nil {
			return nil, fmt.Errorf("load indexed program %s: %w", raw, err)
		}
		out = append(out, p)
	}
	return out, nil
}
