// Package messaging sends rendered text to people over a named channel
// (sms, email, whatsapp). Delivery is best effort: callers log a failed send
// and carry on.
package messaging

import (
	"context"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"flock/internal/person/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

// Message is one outbound text addressed to a person.
type Message struct {
	PersonID id.PersonID `json:"person_id"`
	Channel  string      `json:"channel"`
	To       string      `json:"to"`
	Body     string      `json:"body"`
	Kind     string      `json:"kind"`
}

// SendResult reports what the provider did with a message.
type SendResult struct {
	Success           bool   `json:"success"`
	ProviderMessageID string `json:"provider_message_id,omitempty"`
	ErrorMessage      string `json:"error_message,omitempty"`
}

// Sender delivers a message. A transport error is returned as err; a
// provider-side rejection comes back as a result with Success false.
type Sender interface {
	Send(ctx context.Context, msg Message) (SendResult, error)
}

// Renderer compiles Liquid templates like "Hello {{ first_name }}" and caches
// them by source text.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // template source -> *liquid.Template
}

func NewRenderer() *Renderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value any, fallback string) any {
		if s, ok := value.(string); value == nil || (ok && s == "") {
			return fallback
		}
		return value
	})
	return &Renderer{engine: engine}
}

func (r *Renderer) Render(source string, vars map[string]any) (string, error) {
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(source); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(source)
		if err != nil {
			return "", dErrors.Wrap(err, dErrors.CodeValidation, "invalid message template")
		}
		r.cache.Store(source, parsed)
		tpl = parsed
	}
	out, err := tpl.RenderString(vars)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to render message")
	}
	return out, nil
}

// PersonVars exposes the template variables available for a person.
func PersonVars(p *models.Person) map[string]any {
	return map[string]any{
		"first_name": p.PersonalData.FirstName,
		"last_name":  p.PersonalData.LastName,
		"full_name":  p.PersonalData.FullName(),
		"email":      p.PersonalData.Email,
		"phone":      p.PersonalData.Phone,
		"category":   string(p.Category),
	}
}

// Address picks the contact string for a channel: email for "email", phone
// otherwise. ok is false when the person has no usable address.
func Address(p *models.Person, channel string) (string, bool) {
	if strings.EqualFold(channel, "email") {
		return p.PersonalData.Email, p.PersonalData.Email != ""
	}
	return p.PersonalData.Phone, p.PersonalData.Phone != ""
}

// Composer turns a template and a person into a Message and hands it to a
// Sender. It refuses people flagged do-not-contact.
type Composer struct {
	sender   Sender
	renderer *Renderer
}

func NewComposer(sender Sender, renderer *Renderer) *Composer {
	if renderer == nil {
		renderer = NewRenderer()
	}
	return &Composer{sender: sender, renderer: renderer}
}

// ErrDoNotContact is returned when the recipient opted out.
var ErrDoNotContact = dErrors.New(dErrors.CodeInvalidState, "person is flagged do-not-contact")

func (c *Composer) SendTemplate(ctx context.Context, p *models.Person, kind, channel, template string) (SendResult, error) {
	if p.Engagement.DoNotContact {
		return SendResult{}, ErrDoNotContact
	}
	if p.Engagement.PreferredChannel != "" {
		channel = p.Engagement.PreferredChannel
	}
	to, ok := Address(p, channel)
	if !ok {
		return SendResult{Success: false, ErrorMessage: "no address for channel " + channel}, nil
	}
	body, err := c.renderer.Render(template, PersonVars(p))
	if err != nil {
		return SendResult{}, err
	}
	return c.sender.Send(ctx, Message{PersonID: p.ID, Channel: channel, To: to, Body: body, Kind: kind})
}
