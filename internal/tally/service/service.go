// Package service is the tally engine: it generates a program's arrival
// tokens, issues them at the gate and later maps them to people, writing
// attendance anchored to the original issue time.
package service

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	attendancemodels "flock/internal/attendance/models"
	"flock/internal/notify"
	programmodels "flock/internal/program/models"
	"flock/internal/settings"
	"flock/internal/storage"
	"flock/internal/tally/metrics"
	"flock/internal/tally/models"
	"flock/internal/tally/store"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/requestcontext"
)

// maxGenerate bounds one top-up.
const maxGenerate = 10000

type Ledger interface {
	MarkAttendance(ctx context.Context, req attendancemodels.MarkRequest) (*attendancemodels.Record, error)
}

type ProgramRegistry interface {
	Get(ctx context.Context, programID id.ProgramID) (*programmodels.Program, error)
}

type Service struct {
	tx       *storage.Runner
	settings settings.Provider
	programs ProgramRegistry
	ledger   Ledger
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

func New(tx *storage.Runner, provider settings.Provider, programs ProgramRegistry, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		tx:       tx,
		settings: provider,
		programs: programs,
		ledger:   ledger,
		logger:   slog.Default(),
		tracer:   otel.Tracer("flock/tally"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate tops the program up to expectedCount tallies. Existing tallies are
// never renumbered or touched; new codes continue after the highest sequence.
// A zero count uses the configured default. Returns every tally of the
// program, or an empty slice when the tally feature is off.
func (s *Service) Generate(ctx context.Context, programID id.ProgramID, expectedCount int) (_ []*models.Tally, err error) {
	ctx, span := s.startSpan(ctx, "tally.generate", programID, attribute.Int("expected_count", expectedCount))
	defer func() { endSpan(span, err) }()

	var out []*models.Tally
	created := 0
	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
		}
		if !cfg.Tally.Enabled {
			out = []*models.Tally{}
			return nil
		}
		if expectedCount == 0 {
			expectedCount = cfg.Tally.DefaultCount
		}
		if expectedCount < 0 || expectedCount > maxGenerate {
			return dErrors.New(dErrors.CodeValidation, "expected count out of range")
		}
		if err := s.requireOpenProgram(ctx, programID); err != nil {
			return err
		}

		tallies := store.New(kv)
		existing, err := tallies.ListByProgram(ctx, programID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tallies")
		}
		if len(existing) >= expectedCount {
			out = existing
			return nil
		}

		codes := make(map[string]bool, len(existing))
		seq := 0
		for _, t := range existing {
			codes[t.Code] = true
			seq = max(seq, t.Sequence)
		}
		now := requestcontext.Now(ctx)
		for range expectedCount - len(existing) {
			seq++
			code := models.FormatCode(cfg.Tally.Prefix, cfg.Tally.Padding, seq)
			for codes[code] {
				seq++
				code = models.FormatCode(cfg.Tally.Prefix, cfg.Tally.Padding, seq)
			}
			codes[code] = true
			existing = append(existing, models.NewTally(programID, code, seq, now))
			created++
		}
		if err := tallies.SaveAll(ctx, programID, existing); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save tallies")
		}
		out = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created > 0 {
		s.metrics.AddGenerated(created)
		s.logger.InfoContext(ctx, "tallies generated",
			"program_id", programID.String(),
			"created", created,
			"total", len(out),
		)
	}
	return out, nil
}

// Issue hands out a tally and stamps its arrival time. With a person the
// tally is mapped at once and attendance is written with the issue time.
// Returns nil, nil when the tally feature is off.
func (s *Service) Issue(ctx context.Context, req models.IssueRequest) (_ *models.Tally, err error) {
	ctx, span := s.startSpan(ctx, "tally.issue", req.ProgramID, attribute.String("tally_code", req.Code))
	defer func() { endSpan(span, err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.IssuedBy.IsNil() {
		req.IssuedBy = requestcontext.OperatorID(ctx)
	}

	var out *models.Tally
	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
		}
		if !cfg.Tally.Enabled {
			return nil
		}
		if err := s.requireOpenProgram(ctx, req.ProgramID); err != nil {
			return err
		}

		tallies := store.New(kv)
		all, err := tallies.ListByProgram(ctx, req.ProgramID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tallies")
		}
		t, err := pickForIssue(all, req.Code)
		if err != nil {
			return err
		}
		if err := t.CanIssue(); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		t.ApplyIssue(req.IssuedBy, now)
		if !req.PersonID.IsNil() {
			t.ApplyMap(req.PersonID, checkInSource(ctx, req.Source), now)
			if err := s.markPresent(ctx, t, req.IssuedBy); err != nil {
				return err
			}
		}
		if err := tallies.SaveAll(ctx, req.ProgramID, all); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save tallies")
		}
		out = t
		return nil
	})
	if err != nil || out == nil {
		return nil, err
	}

	_, known := out.PersonID()
	s.metrics.IncrementIssued(known)
	s.logAudit(ctx, string(notify.EventTallyIssued),
		"program_id", out.ProgramID.String(),
		"tally_code", out.Code,
		"issued_by", req.IssuedBy.String(),
		"known_identity", known,
	)
	s.emit(ctx, notify.EventTallyIssued, out)
	return out, nil
}

// Map attaches a person to an issued tally and writes their attendance with
// the tally's issue time. Returns nil, nil when the tally feature is off.
func (s *Service) Map(ctx context.Context, req models.MapRequest) (_ *models.Tally, err error) {
	ctx, span := s.startSpan(ctx, "tally.map", req.ProgramID, attribute.String("tally_code", req.Code))
	defer func() { endSpan(span, err) }()

	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.MappedBy.IsNil() {
		req.MappedBy = requestcontext.OperatorID(ctx)
	}

	var out *models.Tally
	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
		}
		if !cfg.Tally.Enabled {
			return nil
		}
		if _, err := s.programs.Get(ctx, req.ProgramID); err != nil {
			return err
		}

		tallies := store.New(kv)
		all, err := tallies.ListByProgram(ctx, req.ProgramID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tallies")
		}
		t, err := findByCode(all, req.Code)
		if err != nil {
			return err
		}
		if err := t.CanMap(); err != nil {
			return err
		}

		t.ApplyMap(req.PersonID, checkInSource(ctx, req.Source), requestcontext.Now(ctx))
		if err := s.markPresent(ctx, t, req.MappedBy); err != nil {
			return err
		}
		if err := tallies.SaveAll(ctx, req.ProgramID, all); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save tallies")
		}
		out = t
		return nil
	})
	if err != nil || out == nil {
		return nil, err
	}

	if st, ok := out.State.(models.Logged); ok {
		s.metrics.ObserveMapped(st.IssuedAt, st.MappedAt)
	}
	s.logAudit(ctx, string(notify.EventTallyMapped),
		"program_id", out.ProgramID.String(),
		"tally_code", out.Code,
		"person_id", req.PersonID.String(),
	)
	s.emit(ctx, notify.EventTallyMapped, out)
	return out, nil
}

// Void retires an available or issued tally. Returns nil, nil when the tally
// feature is off.
func (s *Service) Void(ctx context.Context, programID id.ProgramID, code, reason string) (_ *models.Tally, err error) {
	ctx, span := s.startSpan(ctx, "tally.void", programID, attribute.String("tally_code", code))
	defer func() { endSpan(span, err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "code is required")
	}

	var out *models.Tally
	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
		}
		if !cfg.Tally.Enabled {
			return nil
		}
		tallies := store.New(kv)
		all, err := tallies.ListByProgram(ctx, programID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tallies")
		}
		t, err := findByCode(all, code)
		if err != nil {
			return err
		}
		if err := t.CanVoid(); err != nil {
			return err
		}
		t.ApplyVoid(requestcontext.OperatorID(ctx), reason, requestcontext.Now(ctx))
		if err := tallies.SaveAll(ctx, programID, all); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save tallies")
		}
		out = t
		return nil
	})
	if err != nil || out == nil {
		return nil, err
	}

	s.metrics.IncrementVoided()
	s.logAudit(ctx, string(notify.EventTallyVoided),
		"program_id", programID.String(),
		"tally_code", out.Code,
		"reason", reason,
	)
	s.emit(ctx, notify.EventTallyVoided, out)
	return out, nil
}

func (s *Service) Get(ctx context.Context, programID id.ProgramID, code string) (*models.Tally, error) {
	var out *models.Tally
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		all, err := store.New(kv).ListByProgram(ctx, programID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tallies")
		}
		out, err = findByCode(all, strings.TrimSpace(code))
		return err
	})
	return out, err
}

// List returns the program's tallies ordered by sequence.
func (s *Service) List(ctx context.Context, programID id.ProgramID) ([]*models.Tally, error) {
	var out []*models.Tally
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		if _, err := s.programs.Get(ctx, programID); err != nil {
			return err
		}
		all, err := store.New(kv).ListByProgram(ctx, programID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tallies")
		}
		out = all
		return nil
	})
	if out == nil && err == nil {
		out = []*models.Tally{}
	}
	return out, err
}

func (s *Service) Summary(ctx context.Context, programID id.ProgramID) (*models.Summary, error) {
	all, err := s.List(ctx, programID)
	if err != nil {
		return nil, err
	}
	sum := models.Summarize(programID, all)
	return &sum, nil
}

// markPresent writes the ledger record for a logged tally, anchored to the
// tally's issue time.
func (s *Service) markPresent(ctx context.Context, t *models.Tally, by id.UserID) error {
	personID, _ := t.PersonID()
	issuedAt, ok := t.IssuedAt()
	if !ok {
		issuedAt = requestcontext.Now(ctx)
	}
	_, err := s.ledger.MarkAttendance(ctx, attendancemodels.MarkRequest{
		ProgramID:  t.ProgramID,
		PersonID:   personID,
		Status:     id.AttendancePresent,
		Timestamp:  &issuedAt,
		RecordedBy: by,
		TallyID:    t.ID,
	})
	return err
}

func (s *Service) requireOpenProgram(ctx context.Context, programID id.ProgramID) error {
	program, err := s.programs.Get(ctx, programID)
	if err != nil {
		return err
	}
	if program.IsCancelled() {
		return dErrors.New(dErrors.CodeInvalidState, "program is cancelled")
	}
	return nil
}

// pickForIssue resolves an explicit code, or the lexicographically smallest
// available code when none is given.
func pickForIssue(all []*models.Tally, code string) (*models.Tally, error) {
	if code != "" {
		return findByCode(all, code)
	}
	var best *models.Tally
	for _, t := range all {
		if t.Status() != models.StatusAvailable {
			continue
		}
		if best == nil || t.Code < best.Code {
			best = t
		}
	}
	if best == nil {
		return nil, dErrors.New(dErrors.CodeNoneAvailable, "no available tally left for this program")
	}
	return best, nil
}

func findByCode(all []*models.Tally, code string) (*models.Tally, error) {
	i := slices.IndexFunc(all, func(t *models.Tally) bool { return t.Code == code })
	if i < 0 {
		return nil, dErrors.New(dErrors.CodeNotFound, "tally "+code+" not found")
	}
	return all[i], nil
}

func (s *Service) startSpan(ctx context.Context, name string, programID id.ProgramID, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("program_id", programID.String()))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

func (s *Service) emit(ctx context.Context, typ notify.EventType, t *models.Tally) {
	data := map[string]any{"tally_code": t.Code, "status": string(t.Status())}
	if personID, ok := t.PersonID(); ok {
		data["person_id"] = personID.String()
	}
	if issuedAt, ok := t.IssuedAt(); ok {
		data["issued_at"] = issuedAt
	}
	storage.AfterCommit(ctx, func(ctx context.Context) {
		notify.Emit(ctx, s.notifier, s.logger, notify.NewEvent(ctx, typ, t.ProgramID.String(), data))
	})
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
