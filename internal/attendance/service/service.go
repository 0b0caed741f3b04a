// Package service is the attendance ledger. It owns the per (program, person)
// records and keeps each person's evolution in step with them: a ledger write
// and the evolution recompute it triggers commit or fail as one unit.
package service

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"flock/internal/attendance/models"
	"flock/internal/attendance/store"
	"flock/internal/notify"
	personmodels "flock/internal/person/models"
	"flock/internal/platform/metrics"
	programmodels "flock/internal/program/models"
	"flock/internal/storage"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/requestcontext"
)

// PersonRegistry is the slice of the person service the ledger drives.
type PersonRegistry interface {
	Get(ctx context.Context, personID id.PersonID) (*personmodels.Person, error)
	ApplyAttendance(ctx context.Context, personID id.PersonID, programID id.ProgramID, date time.Time, status id.AttendanceStatus) (*personmodels.Person, error)
}

type ProgramRegistry interface {
	Get(ctx context.Context, programID id.ProgramID) (*programmodels.Program, error)
	List(ctx context.Context) ([]*programmodels.Program, error)
}

type Service struct {
	tx       *storage.Runner
	people   PersonRegistry
	programs ProgramRegistry
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

func New(tx *storage.Runner, people PersonRegistry, programs ProgramRegistry, opts ...Option) *Service {
	s := &Service{
		tx:       tx,
		people:   people,
		programs: programs,
		logger:   slog.Default(),
		tracer:   otel.Tracer("flock/attendance"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MarkAttendance upserts the record for (program, person) and folds the mark
// into the person's evolution. When req.Timestamp is nil the record is
// stamped with the request time; tally check-ins always pass the issue time.
func (s *Service) MarkAttendance(ctx context.Context, req models.MarkRequest) (_ *models.Record, err error) {
	ctx, span := s.tracer.Start(ctx, "attendance.mark", trace.WithAttributes(
		attribute.String("program_id", req.ProgramID.String()),
		attribute.String("person_id", req.PersonID.String()),
		attribute.String("status", string(req.Status)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, dErrors.MessageOf(err))
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	var out models.Record
	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		program, err := s.programs.Get(ctx, req.ProgramID)
		if err != nil {
			return err
		}
		if program.IsCancelled() {
			return dErrors.New(dErrors.CodeInvalidState, "program is cancelled")
		}
		if _, err := s.people.Get(ctx, req.PersonID); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		ts := now
		if req.Timestamp != nil {
			ts = *req.Timestamp
		}

		records := store.New(kv)
		rec, exists, err := records.Find(ctx, req.ProgramID, req.PersonID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attendance")
		}
		if !exists {
			rec = models.Record{
				ID:        id.NewRecordID(),
				ProgramID: req.ProgramID,
				PersonID:  req.PersonID,
				CreatedAt: now,
			}
		}
		rec.Status = req.Status
		rec.Timestamp = ts
		rec.RecordedBy = req.RecordedBy
		if !req.TallyID.IsNil() {
			rec.TallyID = req.TallyID
		}
		rec.UpdatedAt = now

		if err := records.Upsert(ctx, rec); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save attendance")
		}
		if _, err := s.people.ApplyAttendance(ctx, req.PersonID, req.ProgramID, program.Date, req.Status); err != nil {
			return err
		}
		out = rec
		storage.AfterCommit(ctx, func(ctx context.Context) {
			s.metrics.IncrementAttendanceMarked(string(rec.Status))
			notify.Emit(ctx, s.notifier, s.logger, notify.NewEvent(ctx, notify.EventAttendanceMarked, rec.ProgramID.String(), map[string]any{
				"person_id": rec.PersonID.String(),
				"status":    string(rec.Status),
				"tally_id":  rec.TallyID.String(),
			}))
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) Get(ctx context.Context, programID id.ProgramID, personID id.PersonID) (*models.Record, error) {
	var out *models.Record
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		rec, ok, err := store.New(kv).Find(ctx, programID, personID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attendance")
		}
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "attendance record not found")
		}
		out = &rec
		return nil
	})
	return out, err
}

func (s *Service) ListByProgram(ctx context.Context, programID id.ProgramID) ([]models.Record, error) {
	var out []models.Record
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		if _, err := s.programs.Get(ctx, programID); err != nil {
			return err
		}
		records, err := store.New(kv).ListByProgram(ctx, programID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attendance")
		}
		out = records
		return nil
	})
	return out, err
}

// ListByPerson returns the person's records across all programs, oldest
// program first.
func (s *Service) ListByPerson(ctx context.Context, personID id.PersonID) ([]models.Record, error) {
	var out []models.Record
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		if _, err := s.people.Get(ctx, personID); err != nil {
			return err
		}
		programs, err := s.programs.List(ctx)
		if err != nil {
			return err
		}
		records := store.New(kv)
		for _, p := range programs {
			rec, ok, err := records.Find(ctx, p.ID, personID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attendance")
			}
			if ok {
				out = append(out, rec)
			}
		}
		return nil
	})
	return out, err
}

// Snapshot returns every program's records keyed by program id in one unit
// of work. The absentee scan reads it so all counts come from one state.
func (s *Service) Snapshot(ctx context.Context, programIDs []id.ProgramID) (map[id.ProgramID][]models.Record, error) {
	out := make(map[id.ProgramID][]models.Record, len(programIDs))
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		records := store.New(kv)
		for _, pid := range programIDs {
			rs, err := records.ListByProgram(ctx, pid)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load attendance")
			}
			out[pid] = rs
		}
		return nil
	})
	return out, err
}

func (s *Service) Summary(ctx context.Context, programID id.ProgramID) (*models.Summary, error) {
	records, err := s.ListByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	sum := &models.Summary{ProgramID: programID, Total: len(records)}
	for _, r := range records {
		if r.Status.IsPresent() {
			sum.Present++
		} else {
			sum.Absent++
		}
	}
	return sum, nil
}

// ArrivalBuckets groups present records by timestamp into buckets of the
// given width, aligned to the width since the Unix epoch. Empty buckets are
// omitted. The result is ordered by start time.
func (s *Service) ArrivalBuckets(ctx context.Context, programID id.ProgramID, width time.Duration) ([]models.Bucket, error) {
	if width <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "bucket width must be positive")
	}
	records, err := s.ListByProgram(ctx, programID)
	if err != nil {
		return nil, err
	}
	counts := make(map[time.Time]int)
	for _, r := range records {
		if !r.Status.IsPresent() {
			continue
		}
		counts[r.Timestamp.UTC().Truncate(width)]++
	}
	out := make([]models.Bucket, 0, len(counts))
	for start, n := range counts {
		out = append(out, models.Bucket{Start: start, Count: n})
	}
	slices.SortFunc(out, func(a, b models.Bucket) int {
		return cmp.Compare(a.Start.UnixNano(), b.Start.UnixNano())
	})
	return out, nil
}
