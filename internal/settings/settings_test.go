package settings

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/storage"
	"flock/internal/storage/memory"
	dErrors "flock/pkg/domain-errors"
)

func ptr[T any](v T) *T { return &v }

func TestDefaults_AreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"thresholds out of order", func(s *Settings) { s.Evolution.ReturningToRegularThreshold = s.Evolution.GuestToReturningThreshold }},
		{"zero returning threshold", func(s *Settings) { s.Evolution.GuestToReturningThreshold = 0 }},
		{"member threshold below regular", func(s *Settings) { s.Evolution.RegularGuestToMemberThreshold = 1 }},
		{"percentage above 100", func(s *Settings) { s.Evolution.MemberRatings.Regular.MinAttendancePercentage = 120 }},
		{"zero week window", func(s *Settings) { s.Evolution.MemberRatings.Visiting.MinWeeksConsidered = 0 }},
		{"unknown scope", func(s *Settings) { s.FollowUp.AbsenteeRule.Scope = "everyone" }},
		{"zero missed count", func(s *Settings) { s.FollowUp.AbsenteeRule.MissedProgramsCount = 0 }},
		{"padding too wide", func(s *Settings) { s.Tally.Padding = 12 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}

func TestApply(t *testing.T) {
	base := Defaults()

	t.Run("nil fields leave values unchanged", func(t *testing.T) {
		next, err := base.Apply(Patch{Tally: &TallyPatch{Prefix: ptr("A")}})
		require.NoError(t, err)
		assert.Equal(t, "A", next.Tally.Prefix)
		assert.Equal(t, base.Tally.Padding, next.Tally.Padding)
		assert.Equal(t, "T", base.Tally.Prefix, "receiver must not be modified")
	})

	t.Run("slices replace wholesale", func(t *testing.T) {
		withTypes, err := base.Apply(Patch{FollowUp: &FollowUpPatch{Absentee: &AbsenteeRulePatch{
			ConsideredProgramTypes: ptr([]string{"sunday-service", "midweek"}),
		}}})
		require.NoError(t, err)

		next, err := withTypes.Apply(Patch{FollowUp: &FollowUpPatch{Absentee: &AbsenteeRulePatch{
			ConsideredProgramTypes: ptr([]string{"youth"}),
		}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"youth"}, next.FollowUp.AbsenteeRule.ConsideredProgramTypes)
		assert.Equal(t, []string{"sunday-service", "midweek"}, withTypes.FollowUp.AbsenteeRule.ConsideredProgramTypes)
	})

	t.Run("invalid result is rejected and original returned", func(t *testing.T) {
		next, err := base.Apply(Patch{Evolution: &EvolutionPatch{GuestToReturningThreshold: ptr(10)}})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, base, next)
	})

	t.Run("rating tiers patch independently", func(t *testing.T) {
		next, err := base.Apply(Patch{Evolution: &EvolutionPatch{
			Adherent: &RatingThreshold{MinAttendancePercentage: 95, MinWeeksConsidered: 26},
		}})
		require.NoError(t, err)
		assert.Equal(t, 26, next.Evolution.MemberRatings.Adherent.MinWeeksConsidered)
		assert.Equal(t, base.Evolution.MemberRatings.Regular, next.Evolution.MemberRatings.Regular)
	})
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("overrides defaults with file values", func(t *testing.T) {
		path := filepath.Join(dir, "settings.yaml")
		content := `
tally:
  prefix: "G"
  padding: 4
follow_up:
  absentee_rule:
    considered_program_types: ["sunday-service"]
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		s, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "G", s.Tally.Prefix)
		assert.Equal(t, 4, s.Tally.Padding)
		assert.True(t, s.Tally.Enabled)
		assert.Equal(t, []string{"sunday-service"}, s.FollowUp.AbsenteeRule.ConsideredProgramTypes)
		assert.Equal(t, 8, s.Evolution.RegularGuestToMemberThreshold)
	})

	t.Run("rejects invalid file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("tally:\n  padding: 0\n"), 0o600))
		_, err := LoadFile(path)
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)
	})
}

func TestStoreProvider(t *testing.T) {
	ctx := context.Background()
	runner := storage.NewRunner(memory.New())
	seed := Defaults()
	seed.Tally.Prefix = "S"
	p := NewStoreProvider(runner, seed)

	got, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "S", got.Tally.Prefix, "seed is served before anything is persisted")

	updated, err := p.Update(ctx, Patch{Tally: &TallyPatch{Padding: ptr(5)}})
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Tally.Padding)

	got, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Tally.Padding)
	assert.Equal(t, "S", got.Tally.Prefix)

	_, err = p.Update(ctx, Patch{Tally: &TallyPatch{Padding: ptr(0)}})
	require.Error(t, err)
	got, err = p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Tally.Padding, "invalid patch must not be persisted")
}

func TestApplyDedupesProgramTypes(t *testing.T) {
	next, err := Defaults().Apply(Patch{FollowUp: &FollowUpPatch{Absentee: &AbsenteeRulePatch{
		ConsideredProgramTypes: ptr([]string{" midweek", "midweek", ""}),
	}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"midweek"}, next.FollowUp.AbsenteeRule.ConsideredProgramTypes)
}
