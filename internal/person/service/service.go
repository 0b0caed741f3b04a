// Package service is the person registry: registration, lookup, evolution
// recompute and the guest to member promotion.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"flock/internal/messaging"
	"flock/internal/notify"
	"flock/internal/person/evolution"
	"flock/internal/person/models"
	"flock/internal/person/store"
	"flock/internal/platform/metrics"
	"flock/internal/settings"
	"flock/internal/storage"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/sentinel"
	"flock/pkg/requestcontext"
)

type Service struct {
	tx       *storage.Runner
	settings settings.Provider
	composer *messaging.Composer
	notifier notify.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
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

// WithComposer enables the welcome message on promotion.
func WithComposer(c *messaging.Composer) Option {
	return func(s *Service) {
		s.composer = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(tx *storage.Runner, provider settings.Provider, opts ...Option) *Service {
	s := &Service{tx: tx, settings: provider, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.Person, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
	}

	now := requestcontext.Now(ctx)
	p, err := models.NewPerson(id.NewPersonID(), req.Category, req.PersonalData, now)
	if err != nil {
		return nil, err
	}
	if req.GuestData != nil {
		g := *req.GuestData
		p.GuestData = &g
	}
	if req.Membership != nil {
		m := *req.Membership
		if m.MemberSince.IsZero() {
			m.MemberSince = now
		}
		p.Membership = &m
	}
	if req.Engagement != nil {
		p.Engagement = *req.Engagement
	}
	next := evolution.ApplyRules(*p, cfg.Evolution, now)

	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		if err := store.New(kv).Save(ctx, &next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save person")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementPeopleRegistered(string(next.Category))
	s.emit(ctx, notify.EventPersonRegistered, next.ID, map[string]any{"category": string(next.Category)})
	return &next, nil
}

func (s *Service) Get(ctx context.Context, personID id.PersonID) (*models.Person, error) {
	var out *models.Person
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		p, err := load(ctx, store.New(kv), personID)
		out = p
		return err
	})
	return out, err
}

func (s *Service) List(ctx context.Context, filter models.ListFilter) ([]*models.Person, error) {
	var out []*models.Person
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		all, err := store.New(kv).ListAll(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list people")
		}
		out = make([]*models.Person, 0, len(all))
		for _, p := range all {
			if filter.Matches(p) {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (s *Service) UpdatePersonalData(ctx context.Context, personID id.PersonID, data models.PersonalData) (*models.Person, error) {
	data = data.Normalized()
	if err := data.Validate(); err != nil {
		return nil, err
	}
	return s.mutate(ctx, personID, func(p *models.Person, _ settings.Settings, now time.Time) error {
		p.PersonalData = data
		p.UpdatedAt = now
		return nil
	})
}

// SetDoNotContact flips the opt-out flag that every automation honours.
func (s *Service) SetDoNotContact(ctx context.Context, personID id.PersonID, flag bool, reason string) (*models.Person, error) {
	p, err := s.mutate(ctx, personID, func(p *models.Person, _ settings.Settings, now time.Time) error {
		p.Engagement.DoNotContact = flag
		p.Engagement.DoNotContactReason = reason
		if !flag {
			p.Engagement.DoNotContactReason = ""
		}
		p.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logAudit(ctx, "person_do_not_contact_changed", "person_id", personID.String(), "do_not_contact", flag)
	return p, nil
}

// ApplyEvolution recomputes and persists one person's classification.
func (s *Service) ApplyEvolution(ctx context.Context, personID id.PersonID) (*models.Person, error) {
	return s.mutate(ctx, personID, func(p *models.Person, cfg settings.Settings, now time.Time) error {
		*p = evolution.ApplyRules(*p, cfg.Evolution, now)
		return nil
	})
}

// RecomputeAll reclassifies every person, typically after a settings change.
// It returns how many people were rewritten.
func (s *Service) RecomputeAll(ctx context.Context) (int, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
	}
	now := requestcontext.Now(ctx)
	count := 0
	err = s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		people := store.New(kv)
		all, err := people.ListAll(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list people")
		}
		for _, p := range all {
			next := evolution.ApplyRules(*p, cfg.Evolution, now)
			if err := people.Save(ctx, &next); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save person")
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ApplyAttendance folds one attendance mark into the person and reclassifies.
// Callers inside a unit of work pass its context so the write joins it.
func (s *Service) ApplyAttendance(ctx context.Context, personID id.PersonID, programID id.ProgramID, date time.Time, status id.AttendanceStatus) (*models.Person, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "status must be present or absent")
	}
	return s.mutate(ctx, personID, func(p *models.Person, cfg settings.Settings, now time.Time) error {
		*p = evolution.ApplyAttendance(*p, programID, date, status, cfg.Evolution, now)
		return nil
	})
}

// Promote turns a guest into a member. Without force the guest must be
// classified regular and have reached the member visit threshold. Members
// are rejected even with force. History and guest data are retained.
func (s *Service) Promote(ctx context.Context, personID id.PersonID, details models.MembershipDetails, force bool) (*models.Person, error) {
	var cfg settings.Settings
	p, err := s.mutate(ctx, personID, func(p *models.Person, c settings.Settings, now time.Time) error {
		cfg = c
		if err := p.CanPromote(c.Evolution.RegularGuestToMemberThreshold, force); err != nil {
			return err
		}
		p.ApplyPromotion(details, now)
		*p = evolution.ApplyRules(*p, c.Evolution, now)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncrementPromotions()
	s.logAudit(ctx, string(notify.EventPersonPromoted), "person_id", personID.String(), "forced", force)
	s.emit(ctx, notify.EventPersonPromoted, personID, map[string]any{"forced": force})
	s.sendWelcome(ctx, p, cfg.Messaging)
	return p, nil
}

func (s *Service) sendWelcome(ctx context.Context, p *models.Person, cfg settings.MessagingSettings) {
	if s.composer == nil || !cfg.WelcomeOnPromotion || p.Engagement.DoNotContact {
		return
	}
	res, err := s.composer.SendTemplate(ctx, p, "welcome", cfg.DefaultChannel, cfg.WelcomeTemplate)
	if err == nil && !res.Success {
		err = errors.New(res.ErrorMessage)
	}
	s.metrics.IncrementMessagesSent("welcome", err == nil)
	if err != nil {
		s.logger.WarnContext(ctx, "welcome message failed",
			"person_id", p.ID.String(),
			"error", err,
		)
	}
}

// mutate loads a person, applies fn and saves, all in one unit of work.
func (s *Service) mutate(ctx context.Context, personID id.PersonID, fn func(p *models.Person, cfg settings.Settings, now time.Time) error) (*models.Person, error) {
	var out *models.Person
	err := s.tx.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		cfg, err := s.settings.Get(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load settings")
		}
		people := store.New(kv)
		p, err := load(ctx, people, personID)
		if err != nil {
			return err
		}
		if err := fn(p, cfg, requestcontext.Now(ctx)); err != nil {
			return err
		}
		if err := people.Save(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save person")
		}
		out = p
		return nil
	})
	return out, err
}

func load(ctx context.Context, people *store.Store, personID id.PersonID) (*models.Person, error) {
	p, err := people.FindByID(ctx, personID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "person not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load person")
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, typ notify.EventType, personID id.PersonID, data map[string]any) {
	storage.AfterCommit(ctx, func(ctx context.Context) {
		notify.Emit(ctx, s.notifier, s.logger, notify.NewEvent(ctx, typ, personID.String(), data))
	})
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	if operator := requestcontext.OperatorID(ctx); !operator.IsNil() {
		attributes = append(attributes, "operator_id", operator.String())
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
