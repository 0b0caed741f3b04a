// Package service is the program registry.
package service

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"

	"flock/internal/program/models"
	"flock/internal/program/store"
	"flock/internal/storage"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

type Service struct {
	tx     *storage.Runner
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(tx *storage.Runner, opts ...Option) *Service {
	s := &Service{tx: tx, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, req models.CreateRequest) (*models.Program, error) {
	p, err := models.NewProgram(id.NewProgramID(), req.Type, req.Name, req.Date, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		if err := store.New(kv).Save(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save program")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "program created",
		"program_id", p.ID.String(),
		"program_type", p.Type,
		"date", p.Date.Format("2006-01-02"),
	)
	return p, nil
}

func (s *Service) Get(ctx context.Context, programID id.ProgramID) (*models.Program, error) {
	var out *models.Program
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		p, err := load(ctx, store.New(kv), programID)
		out = p
		return err
	})
	return out, err
}

// List returns every program ordered by date, then creation.
func (s *Service) List(ctx context.Context) ([]*models.Program, error) {
	var out []*models.Program
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		all, err := store.New(kv).ListAll(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list programs")
		}
		out = all
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByDate(out)
	return out, nil
}

// ListInWindow returns the programs dated within the query window whose type
// is allowed. Cancelled programs are excluded unless asked for.
func (s *Service) ListInWindow(ctx context.Context, q models.WindowQuery) ([]*models.Program, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Program, 0, len(all))
	for _, p := range all {
		if !p.InWindow(q.From, q.To) {
			continue
		}
		if p.IsCancelled() && !q.IncludeCancelled {
			continue
		}
		if len(q.Types) > 0 && !slices.Contains(q.Types, p.Type) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) UpdateStatus(ctx context.Context, programID id.ProgramID, status models.Status) (*models.Program, error) {
	var out *models.Program
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		programs := store.New(kv)
		p, err := load(ctx, programs, programID)
		if err != nil {
			return err
		}
		if err := p.CanTransition(status); err != nil {
			return err
		}
		p.ApplyTransition(status, requestcontext.Now(ctx))
		if err := programs.Save(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save program")
		}
		out = p
		return nil
	})
	return out, err
}

func load(ctx context.Context, programs *store.Store, programID id.ProgramID) (*models.Program, error) {
	p, err := programs.FindByID(ctx, programID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "program not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load program")
	}
	return p, nil
}

func sortByDate(ps []*models.Program) {
	slices.SortStableFunc(ps, func(a, b *models.Program) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
}
