// Package store keeps a program's tallies as one JSON array under
// tallies:<programId>, ordered by sequence.
package store

import (
	"context"
	"slices"

	"flock/internal/storage"
	"flock/internal/tally/models"
	id "flock/pkg/domain"
)

func programKey(programID id.ProgramID) string {
	return "tallies:" + programID.String()
}

type Store struct {
	kv storage.Store
}

func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) ListByProgram(ctx context.Context, programID id.ProgramID) ([]*models.Tally, error) {
	tallies, _, err := storage.GetJSON[[]*models.Tally](ctx, s.kv, programKey(programID))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(tallies, func(a, b *models.Tally) int { return a.Sequence - b.Sequence })
	return tallies, nil
}

// SaveAll replaces the program's tally list.
func (s *Store) SaveAll(ctx context.Context, programID id.ProgramID, tallies []*models.Tally) error {
	return storage.PutJSON(ctx, s.kv, programKey(programID), tallies)
}
