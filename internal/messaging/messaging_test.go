package messaging

//go:generate mockgen -source=messaging.go -destination=mocks/mocks.go -package=mocks Sender

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/person/models"
	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/circuit"
)

type recordingSender struct {
	sent []Message
}

func (r *recordingSender) Send(_ context.Context, msg Message) (SendResult, error) {
	r.sent = append(r.sent, msg)
	return SendResult{Success: true, ProviderMessageID: "m-1"}, nil
}

func person() *models.Person {
	return &models.Person{
		ID:           id.PersonID("p1"),
		Category:     models.CategoryGuest,
		PersonalData: models.PersonalData{FirstName: "Ada", LastName: "Obi", Phone: "+2348000", Email: "ada@example.com"},
	}
}

func TestRenderer(t *testing.T) {
	r := NewRenderer()
	out, err := r.Render("Hello {{ first_name }} {{ last_name }}!", PersonVars(person()))
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada Obi!", out)

	out, err = r.Render(`Hi {{ nickname | default: "friend" }}`, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "Hi friend", out)

	_, err = r.Render("{% endif %}", nil)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestComposer(t *testing.T) {
	t.Run("renders and routes to phone", func(t *testing.T) {
		rec := &recordingSender{}
		res, err := NewComposer(rec, nil).SendTemplate(context.Background(), person(), "welcome", "sms", "Welcome {{ first_name }}")
		require.NoError(t, err)
		assert.True(t, res.Success)
		require.Len(t, rec.sent, 1)
		assert.Equal(t, "+2348000", rec.sent[0].To)
		assert.Equal(t, "Welcome Ada", rec.sent[0].Body)
	})

	t.Run("preferred channel wins", func(t *testing.T) {
		rec := &recordingSender{}
		p := person()
		p.Engagement.PreferredChannel = "email"
		_, err := NewComposer(rec, nil).SendTemplate(context.Background(), p, "welcome", "sms", "x")
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", rec.sent[0].To)
	})

	t.Run("do not contact", func(t *testing.T) {
		rec := &recordingSender{}
		p := person()
		p.Engagement.DoNotContact = true
		_, err := NewComposer(rec, nil).SendTemplate(context.Background(), p, "welcome", "sms", "x")
		assert.ErrorIs(t, err, ErrDoNotContact)
		assert.Empty(t, rec.sent)
	})

	t.Run("missing address", func(t *testing.T) {
		rec := &recordingSender{}
		p := person()
		p.PersonalData.Phone = ""
		res, err := NewComposer(rec, nil).SendTemplate(context.Background(), p, "welcome", "sms", "x")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Empty(t, rec.sent)
	})
}

func TestWebhookSender(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
			var msg Message
			require.NoError(t, json.NewDecoder(r.Body).Decode(&msg))
			assert.Equal(t, "hello", msg.Body)
			_, _ = w.Write([]byte(`{"id":"prov-42"}`))
		}))
		defer srv.Close()

		res, err := NewWebhookSender(srv.URL, WithBearerToken("secret")).Send(context.Background(), Message{Body: "hello"})
		require.NoError(t, err)
		assert.Equal(t, SendResult{Success: true, ProviderMessageID: "prov-42"}, res)
	})

	t.Run("provider rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"invalid number"}`))
		}))
		defer srv.Close()

		res, err := NewWebhookSender(srv.URL).Send(context.Background(), Message{})
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "invalid number", res.ErrorMessage)
	})
}

func TestRouter(t *testing.T) {
	sms, fallback := &recordingSender{}, &recordingSender{}
	r := NewRouter(fallback).Handle("sms", sms)

	_, _ = r.Send(context.Background(), Message{Channel: "sms"})
	_, _ = r.Send(context.Background(), Message{Channel: "email"})
	assert.Len(t, sms.sent, 1)
	assert.Len(t, fallback.sent, 1)

	res, err := NewRouter(nil).Send(context.Background(), Message{Channel: "fax"})
	require.NoError(t, err)
	assert.False(t, res.Success)
}

type failingSender struct{ calls int }

func (f *failingSender) Send(context.Context, Message) (SendResult, error) {
	f.calls++
	return SendResult{Success: false, ErrorMessage: "provider down"}, nil
}

func TestFailoverSender(t *testing.T) {
	primary := &failingSender{}
	fallback := &recordingSender{}
	s := NewFailoverSender(primary, fallback, circuit.New("sms", circuit.WithFailureThreshold(2)), nil)
	msg := Message{PersonID: "p1", Channel: "sms", Body: "hi"}

	res, err := s.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.False(t, res.Success, "below the threshold the primary failure surfaces")
	assert.Empty(t, fallback.sent)

	res, err = s.Send(context.Background(), msg)
	require.NoError(t, err)
	assert.True(t, res.Success, "opening the breaker hands the message to the fallback")
	assert.Len(t, fallback.sent, 1)

	_, _ = s.Send(context.Background(), msg)
	assert.Equal(t, 3, primary.calls, "the primary is still probed while open")
	assert.Len(t, fallback.sent, 2)
}
