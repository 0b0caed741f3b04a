package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("matches outer code", func(t *testing.T) {
		err := New(CodeNotFound, "tally not found")
		assert.True(t, HasCode(err, CodeNotFound))
		assert.False(t, HasCode(err, CodeInvalidState))
	})

	t.Run("matches code wrapped with fmt", func(t *testing.T) {
		err := fmt.Errorf("issue: %w", New(CodeNoneAvailable, "no tallies left"))
		assert.True(t, HasCode(err, CodeNoneAvailable))
	})

	t.Run("matches inner code through nested wraps", func(t *testing.T) {
		inner := New(CodeAlreadyMapped, "mapped")
		err := Wrap(inner, CodeConflict, "map failed")
		assert.True(t, HasCode(err, CodeConflict))
		assert.True(t, HasCode(err, CodeAlreadyMapped))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestWrap(t *testing.T) {
	cause := errors.New("redis down")
	err := Wrap(cause, CodeInternal, "failed to load settings")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeInternal, CodeOf(err))
	assert.Equal(t, "failed to load settings", MessageOf(err))
	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("raw")))
	assert.Equal(t, CodePromotionNotEligible, CodeOf(New(CodePromotionNotEligible, "not yet")))
}
