// Package store keeps one JSON array of records per program under
// attendance:<programId>.
package store

import (
	"context"

	"flock/internal/attendance/models"
	"flock/internal/storage"
	id "flock/pkg/domain"
)

func programKey(programID id.ProgramID) string {
	return "attendance:" + programID.String()
}

type Store struct {
	kv storage.Store
}

func New(kv storage.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) ListByProgram(ctx context.Context, programID id.ProgramID) ([]models.Record, error) {
	records, _, err := storage.GetJSON[[]models.Record](ctx, s.kv, programKey(programID))
	return records, err
}

// Find returns the record for the pair; ok is false when there is none.
func (s *Store) Find(ctx context.Context, programID id.ProgramID, personID id.PersonID) (models.Record, bool, error) {
	records, err := s.ListByProgram(ctx, programID)
	if err != nil {
		return models.Record{}, false, err
	}
	for _, r := range records {
		if r.PersonID == personID {
			return r, true, nil
		}
	}
	return models.Record{}, false, nil
}

// Upsert replaces the record for (ProgramID, PersonID) or appends it.
func (s *Store) Upsert(ctx context.Context, rec models.Record) error {
	records, err := s.ListByProgram(ctx, rec.ProgramID)
	if err != nil {
		return err
	}
	replaced := false
	for i := range records {
		if records[i].PersonID == rec.PersonID {
			records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, rec)
	}
	return storage.PutJSON(ctx, s.kv, programKey(rec.ProgramID), records)
}
