package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/circuit"
)

// LogSender records messages in the log instead of delivering them. It is the
// default for local runs.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	ref := uuid.NewString()
	s.logger.InfoContext(ctx, "message sent",
		"person_id", msg.PersonID,
		"channel", msg.Channel,
		"kind", msg.Kind,
		"provider_message_id", ref,
	)
	return SendResult{Success: true, ProviderMessageID: ref}, nil
}

// WebhookSender posts each message as JSON to a provider gateway and expects
// {"id": "..."} back.
type WebhookSender struct {
	url    string
	token  string
	client *http.Client
}

type WebhookOption func(*WebhookSender)

func WithHTTPClient(c *http.Client) WebhookOption {
	return func(s *WebhookSender) {
		s.client = c
	}
}

func WithBearerToken(token string) WebhookOption {
	return func(s *WebhookSender) {
		s.token = token
	}
}

func NewWebhookSender(url string, opts ...WebhookOption) *WebhookSender {
	s := &WebhookSender{url: url, client: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type webhookResponse struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

func (s *WebhookSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return SendResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode message")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build provider request")
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "provider unreachable")
	}
	defer resp.Body.Close()

	var out webhookResponse
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode >= 300 {
		msg := out.Error
		if msg == "" {
			msg = fmt.Sprintf("provider returned status %d", resp.StatusCode)
		}
		return SendResult{Success: false, ErrorMessage: msg}, nil
	}
	return SendResult{Success: true, ProviderMessageID: out.ID}, nil
}

// Router dispatches by Message.Channel, falling back to a default sender.
type Router struct {
	routes   map[string]Sender
	fallback Sender
}

func NewRouter(fallback Sender) *Router {
	return &Router{routes: make(map[string]Sender), fallback: fallback}
}

func (r *Router) Handle(channel string, s Sender) *Router {
	r.routes[channel] = s
	return r
}

func (r *Router) Send(ctx context.Context, msg Message) (SendResult, error) {
	if s, ok := r.routes[msg.Channel]; ok {
		return s.Send(ctx, msg)
	}
	if r.fallback == nil {
		return SendResult{Success: false, ErrorMessage: "no sender for channel " + msg.Channel}, nil
	}
	return r.fallback.Send(ctx, msg)
}

// FailoverSender always tries the primary. Once the breaker opens, a failed
// primary send is retried on the fallback so messages keep flowing while the
// provider recovers.
type FailoverSender struct {
	primary  Sender
	fallback Sender
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

func NewFailoverSender(primary, fallback Sender, breaker *circuit.Breaker, logger *slog.Logger) *FailoverSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverSender{primary: primary, fallback: fallback, breaker: breaker, logger: logger}
}

func (s *FailoverSender) Send(ctx context.Context, msg Message) (SendResult, error) {
	res, err := s.primary.Send(ctx, msg)
	if err == nil && res.Success {
		if _, change := s.breaker.RecordSuccess(); change.Closed {
			s.logger.InfoContext(ctx, "message provider recovered", "breaker", s.breaker.Name())
		}
		return res, nil
	}

	useFallback, change := s.breaker.RecordFailure()
	if change.Opened {
		s.logger.WarnContext(ctx, "message provider failing, using fallback", "breaker", s.breaker.Name())
	}
	if !useFallback || s.fallback == nil {
		return res, err
	}
	return s.fallback.Send(ctx, msg)
}
