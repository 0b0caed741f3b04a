package storage_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"flock/internal/storage"
	"flock/internal/storage/memory"
	dErrors "flock/pkg/domain-errors"
	"flock/pkg/platform/sentinel"
)

type RunnerSuite struct {
	suite.Suite
	backend *memory.Store
	runner  *storage.Runner
	ctx     context.Context
}

func TestRunnerSuite(t *testing.T) {
	suite.Run(t, new(RunnerSuite))
}

func (s *RunnerSuite) SetupTest() {
	s.backend = memory.New()
	s.runner = storage.NewRunner(s.backend)
	s.ctx = context.Background()
}

func (s *RunnerSuite) TestCommitAndDiscard() {
	s.Run("writes reach the backend only after fn succeeds", func() {
		err := s.runner.RunInTx(s.ctx, func(ctx context.Context, kv storage.Store) error {
			s.Require().NoError(kv.Set(ctx, "a", []byte("1")))
			_, err := s.backend.Get(ctx, "a")
			s.ErrorIs(err, sentinel.ErrNotFound)

			got, err := kv.Get(ctx, "a")
			s.Require().NoError(err)
			s.Equal("1", string(got))
			return nil
		})
		s.Require().NoError(err)

		got, err := s.backend.Get(s.ctx, "a")
		s.Require().NoError(err)
		s.Equal("1", string(got))
	})

	s.Run("failed fn leaves no partial write", func() {
		boom := errors.New("boom")
		err := s.runner.RunInTx(s.ctx, func(ctx context.Context, kv storage.Store) error {
			s.Require().NoError(kv.Set(ctx, "b", []byte("1")))
			s.Require().NoError(kv.Set(ctx, "c", []byte("2")))
			return boom
		})
		s.ErrorIs(err, boom)
		_, err = s.backend.Get(s.ctx, "b")
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.backend.Get(s.ctx, "c")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})
}

func (s *RunnerSuite) TestNestedCallsJoinOuterUnit() {
	boom := errors.New("outer failed")
	err := s.runner.RunInTx(s.ctx, func(ctx context.Context, kv storage.Store) error {
		innerErr := s.runner.RunInTx(ctx, func(ctx context.Context, inner storage.Store) error {
			return inner.Set(ctx, "nested", []byte("x"))
		})
		s.Require().NoError(innerErr)

		got, err := kv.Get(ctx, "nested")
		s.Require().NoError(err)
		s.Equal("x", string(got))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.backend.Get(s.ctx, "nested")
	s.ErrorIs(err, sentinel.ErrNotFound, "inner write must be discarded with the outer unit")
}

// failingBatch rejects every commit once broken is set.
type failingBatch struct {
	*memory.Store
	broken bool
}

func (f *failingBatch) SetBatch(ctx context.Context, values map[string][]byte) error {
	if f.broken {
		return errors.New("disk full")
	}
	return f.Store.SetBatch(ctx, values)
}

func (s *RunnerSuite) TestAfterCommit() {
	s.Run("nested hooks wait for the outer commit", func() {
		var fired []string
		err := s.runner.RunInTx(s.ctx, func(ctx context.Context, kv storage.Store) error {
			innerErr := s.runner.RunInTx(ctx, func(ctx context.Context, inner storage.Store) error {
				storage.AfterCommit(ctx, func(context.Context) { fired = append(fired, "inner") })
				return inner.Set(ctx, "hooked", []byte("1"))
			})
			s.Require().NoError(innerErr)
			s.Empty(fired, "hook must not run before the outer unit commits")
			storage.AfterCommit(ctx, func(context.Context) { fired = append(fired, "outer") })
			return nil
		})
		s.Require().NoError(err)
		s.Equal([]string{"inner", "outer"}, fired)
	})

	s.Run("failed unit drops its hooks", func() {
		fired := false
		err := s.runner.RunInTx(s.ctx, func(ctx context.Context, _ storage.Store) error {
			storage.AfterCommit(ctx, func(context.Context) { fired = true })
			return errors.New("boom")
		})
		s.Require().Error(err)
		s.False(fired)
	})

	s.Run("failed commit drops its hooks", func() {
		backend := &failingBatch{Store: memory.New(), broken: true}
		runner := storage.NewRunner(backend)
		fired := false
		err := runner.RunInTx(s.ctx, func(ctx context.Context, kv storage.Store) error {
			storage.AfterCommit(ctx, func(context.Context) { fired = true })
			return kv.Set(ctx, "k", []byte("v"))
		})
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
		s.False(fired)
	})

	s.Run("hooks run after the lock is released", func() {
		var readBack string
		err := s.runner.RunInTx(s.ctx, func(ctx context.Context, kv storage.Store) error {
			storage.AfterCommit(ctx, func(ctx context.Context) {
				_ = s.runner.RunInTx(ctx, func(ctx context.Context, kv storage.Store) error {
					got, err := kv.Get(ctx, "released")
					readBack = string(got)
					return err
				})
			})
			return kv.Set(ctx, "released", []byte("yes"))
		})
		s.Require().NoError(err)
		s.Equal("yes", readBack)
	})

	s.Run("hooks outlive the unit deadline", func() {
		var hookErr error
		r := storage.NewRunner(s.backend, storage.WithTimeout(time.Second))
		err := r.RunInTx(s.ctx, func(ctx context.Context, _ storage.Store) error {
			storage.AfterCommit(ctx, func(ctx context.Context) { hookErr = ctx.Err() })
			return nil
		})
		s.Require().NoError(err)
		s.NoError(hookErr)
	})

	s.Run("outside a unit the hook runs at once", func() {
		fired := false
		storage.AfterCommit(s.ctx, func(context.Context) { fired = true })
		s.True(fired)
	})
}

func (s *RunnerSuite) TestSerializesReadModifyWrite() {
	const workers = 50
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.runner.RunInTx(s.ctx, func(ctx context.Context, kv storage.Store) error {
				n, _, err := storage.GetJSON[int](ctx, kv, "counter")
				if err != nil {
					return err
				}
				return storage.PutJSON(ctx, kv, "counter", n+1)
			})
		}()
	}
	wg.Wait()

	n, found, err := storage.GetJSON[int](s.ctx, s.backend, "counter")
	s.Require().NoError(err)
	s.True(found)
	s.Equal(workers, n)
}

func (s *RunnerSuite) TestCancelledContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	called := false
	err := s.runner.RunInTx(ctx, func(context.Context, storage.Store) error {
		called = true
		return nil
	})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.False(called)
}

func (s *RunnerSuite) TestTimeoutOption() {
	r := storage.NewRunner(s.backend, storage.WithTimeout(10*time.Millisecond))
	err := r.RunInTx(s.ctx, func(ctx context.Context, _ storage.Store) error {
		_, ok := ctx.Deadline()
		s.True(ok)
		return nil
	})
	s.NoError(err)
}

func (s *RunnerSuite) TestIndexHelpers() {
	s.Require().NoError(storage.AddToIndex(s.ctx, s.backend, "people", "p1"))
	s.Require().NoError(storage.AddToIndex(s.ctx, s.backend, "people", "p2"))
	s.Require().NoError(storage.AddToIndex(s.ctx, s.backend, "people", "p1"))

	ids, err := storage.ReadIndex(s.ctx, s.backend, "people")
	s.Require().NoError(err)
	s.Equal([]string{"p1", "p2"}, ids)

	empty, err := storage.ReadIndex(s.ctx, s.backend, "missing")
	s.Require().NoError(err)
	s.Empty(empty)
}
