//go:build integration

package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flock/internal/storage"
	"flock/pkg/platform/sentinel"
	"flock/pkg/testutil/containers"
)

func TestStoreAgainstPostgres(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)

	st := New(pg.DB)
	require.NoError(t, st.EnsureSchema(ctx))
	require.NoError(t, st.EnsureSchema(ctx), "schema creation is repeatable")

	_, err := st.Get(ctx, "settings")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	runner := storage.NewRunner(st)
	err = runner.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
		if err := kv.Set(ctx, "person:p1", []byte(`{"id":"p1"}`)); err != nil {
			return err
		}
		return storage.AddToIndex(ctx, kv, "people", "p1")
	})
	require.NoError(t, err)

	got, err := st.Get(ctx, "person:p1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"p1"}`, string(got))

	ids, err := storage.ReadIndex(ctx, st, "people")
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, ids)
}
