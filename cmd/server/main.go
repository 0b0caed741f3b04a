package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	"flock/internal/absentee"
	attendanceservice "flock/internal/attendance/service"
	"flock/internal/birthday"
	followupstore "flock/internal/followup/store"
	jwttoken "flock/internal/jwt_token"
	"flock/internal/messaging"
	"flock/internal/notify"
	personservice "flock/internal/person/service"
	"flock/internal/platform/config"
	"flock/internal/platform/httpserver"
	"flock/internal/platform/logger"
	"flock/internal/platform/metrics"
	programservice "flock/internal/program/service"
	"flock/internal/settings"
	tallymetrics "flock/internal/tally/metrics"
	tallyservice "flock/internal/tally/service"
	httptransport "flock/internal/transport/http"
	id "flock/pkg/domain"
	"flock/pkg/platform/circuit"
	"flock/pkg/platform/middleware/auth"
)

func main() {
	mintOperator := flag.String("mint-operator", "", "print a bearer token for this operator id and exit")
	mintName := flag.String("mint-name", "", "display name embedded in a minted token")
	mintTTL := flag.Duration("mint-ttl", 12*time.Hour, "lifetime of a minted token")
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	if *mintOperator != "" {
		if err := mintToken(cfg, *mintOperator, *mintName, *mintTTL); err != nil {
			log.Error("mint token failed", "error", err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func mintToken(cfg config.Server, operator, name string, ttl time.Duration) error {
	if cfg.JWTSigningKey == "" {
		return errors.New("JWT_SIGNING_KEY is not set")
	}
	operatorID, err := id.ParseUserID(operator)
	if err != nil {
		return err
	}
	token, err := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience).
		GenerateOperatorToken(operatorID, name, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	st, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("store close failed", "error", err)
		}
	}()
	tx := newRunner(st, cfg)

	seed := settings.Defaults()
	if cfg.SettingsFile != "" {
		if seed, err = settings.LoadFile(cfg.SettingsFile); err != nil {
			return err
		}
		log.Info("loaded settings seed", "path", cfg.SettingsFile)
	}
	provider := settings.NewStoreProvider(tx, seed)

	notifier, closeNotifier, err := buildNotifier(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	m := metrics.New()
	composer := messaging.NewComposer(buildSender(cfg, log), messaging.NewRenderer())
	sink := followupstore.NewSink(tx, log)

	people := personservice.New(tx, provider,
		personservice.WithLogger(log),
		personservice.WithNotifier(notifier),
		personservice.WithComposer(composer),
		personservice.WithMetrics(m),
	)
	programs := programservice.New(tx, programservice.WithLogger(log))
	ledger := attendanceservice.New(tx, people, programs,
		attendanceservice.WithLogger(log),
		attendanceservice.WithNotifier(notifier),
		attendanceservice.WithMetrics(m),
	)
	tallies := tallyservice.New(tx, provider, programs, ledger,
		tallyservice.WithLogger(log),
		tallyservice.WithNotifier(notifier),
		tallyservice.WithMetrics(tallymetrics.New()),
	)
	detector := absentee.New(provider, people, programs, ledger, sink,
		absentee.WithLogger(log),
		absentee.WithNotifier(notifier),
		absentee.WithMetrics(m),
	)
	birthdays := birthday.New(provider, people, sink,
		birthday.WithLogger(log),
		birthday.WithNotifier(notifier),
		birthday.WithMetrics(m),
		birthday.WithMessenger(composer),
	)

	var validator auth.JWTValidator
	if cfg.JWTSigningKey != "" {
		validator = jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience))
	} else {
		log.Warn("JWT_SIGNING_KEY not set; trusting the operator header")
	}

	handler := httptransport.NewHandler(httptransport.Services{
		Settings:   provider,
		People:     people,
		Programs:   programs,
		Attendance: ledger,
		Tallies:    tallies,
		FollowUps:  sink,
		Absentee:   detector,
		Birthday:   birthdays,
	}, log)
	router := httptransport.NewRouter(handler, httptransport.RouterConfig{
		Validator:      validator,
		AdminToken:     cfg.AdminToken,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        httptransport.MetricsHandler(),
	}, log)
	srv := httpserver.New(cfg.Addr, router)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting flock", "addr", cfg.Addr, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		runAutomations(ctx, cfg.AutomationInterval, detector, birthdays, log)
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Info("server stopped")
		return nil
	})
	return g.Wait()
}

func buildNotifier(ctx context.Context, cfg config.Server, log *slog.Logger) (notify.Notifier, func(), error) {
	base := notify.NewLogNotifier(log)
	if len(cfg.Kafka.Brokers) == 0 {
		return base, func() {}, nil
	}
	cl, err := notify.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Kafka.EnsureTopic {
		if err := notify.EnsureTopic(ctx, cl, cfg.Kafka.Topic, 3, 1); err != nil {
			cl.Close()
			return nil, nil, err
		}
	}
	log.Info("publishing events to kafka", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	return notify.Fanout{base, notify.NewKafkaNotifier(cl, cfg.Kafka.Topic)}, closeKafka(cl), nil
}

func closeKafka(cl *kgo.Client) func() {
	return func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cl.Flush(flushCtx)
		cl.Close()
	}
}

func buildSender(cfg config.Server, log *slog.Logger) messaging.Sender {
	fallback := messaging.NewLogSender(log)
	if cfg.WebhookURL == "" {
		return fallback
	}
	var opts []messaging.WebhookOption
	if cfg.WebhookToken != "" {
		opts = append(opts, messaging.WithBearerToken(cfg.WebhookToken))
	}
	webhook := messaging.NewFailoverSender(
		messaging.NewWebhookSender(cfg.WebhookURL, opts...),
		fallback,
		circuit.New("message-webhook"),
		log,
	)
	return messaging.NewRouter(fallback).
		Handle("sms", webhook).
		Handle("email", webhook).
		Handle("whatsapp", webhook)
}

// runAutomations fires both automations on every tick until ctx ends. A zero
// interval disables the scheduler; failures land in the result and are logged.
func runAutomations(ctx context.Context, interval time.Duration, detector *absentee.Detector, birthdays *birthday.Automation, log *slog.Logger) {
	if interval <= 0 {
		log.Info("automation scheduler disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			now = now.UTC()
			abs := detector.Run(ctx, now)
			log.Info("absentee automation finished",
				"skipped", abs.Skipped,
				"absentees_found", abs.AbsenteesFound,
				"follow_ups_created", abs.FollowUpsCreated,
				"error", abs.Error,
			)
			bday := birthdays.Run(ctx, now)
			log.Info("birthday automation finished",
				"skipped", bday.Skipped,
				"error", bday.Error,
			)
		}
	}
}
