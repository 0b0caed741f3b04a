package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/pkg/platform/sentinel"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	s := New()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	value := []byte("v1")
	require.NoError(t, s.Set(ctx, "k", value))
	value[0] = 'x'
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got), "stored bytes are copied")

	got[0] = 'y'
	again, _ := s.Get(ctx, "k")
	assert.Equal(t, "v1", string(again), "returned bytes are copied")

	require.NoError(t, s.SetBatch(ctx, map[string][]byte{"a": []byte("1"), "b": []byte("2")}))
	assert.Equal(t, 3, s.Len())
}
