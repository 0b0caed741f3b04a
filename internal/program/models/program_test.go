package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "flock/pkg/domain"
	dErrors "flock/pkg/domain-errors"
)

func TestNewProgram(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p, err := NewProgram(id.NewProgramID(), " sunday-service ", "", time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC), now)
	require.NoError(t, err)
	assert.Equal(t, "sunday-service", p.Type)
	assert.Equal(t, "sunday-service", p.Name)
	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), p.Date)
	assert.Equal(t, StatusScheduled, p.Status)

	_, err = NewProgram(id.NewProgramID(), "", "x", now, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	_, err = NewProgram(id.NewProgramID(), "midweek", "x", time.Time{}, now)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		wantErr  dErrors.Code
	}{
		{StatusScheduled, StatusCompleted, ""},
		{StatusScheduled, StatusCancelled, ""},
		{StatusCancelled, StatusScheduled, ""},
		{StatusCompleted, StatusCompleted, ""},
		{StatusCompleted, StatusScheduled, dErrors.CodeInvalidState},
		{StatusCancelled, StatusCompleted, dErrors.CodeInvalidState},
		{StatusScheduled, "postponed", dErrors.CodeValidation},
	}
	for _, tt := range tests {
		p := &Program{Status: tt.from}
		err := p.CanTransition(tt.to)
		if tt.wantErr == "" {
			assert.NoError(t, err, "%s -> %s", tt.from, tt.to)
			continue
		}
		assert.True(t, dErrors.HasCode(err, tt.wantErr), "%s -> %s: %v", tt.from, tt.to, err)
	}
}

func TestInWindow(t *testing.T) {
	p := &Program{Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, p.InWindow(time.Date(2026, 2, 20, 18, 0, 0, 0, time.UTC), time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)))
	assert.False(t, p.InWindow(time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)))
}
