package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	calls   atomic.Int32
	horizon atomic.Int64
	err     error
	block   chan struct{}
}

func (j *countingJob) MaterializeRepeatingTimes(ctx context.Context, horizon time.Duration) (int, error) {
	j.calls.Add(1)
	j.horizon.Store(int64(horizon))
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	return 1, j.err
}

func TestNew_RejectsInvalidSpec(t *testing.T) {
	_, err := New(&countingJob{}, WithSpec("every now and then"))
	assert.Error(t, err)
}

func TestRunOnce(t *testing.T) {
	job := &countingJob{}
	s, err := New(job, WithHorizon(48*time.Hour))
	require.NoError(t, err)

	updated, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, int32(1), job.calls.Load())
	assert.Equal(t, int64(48*time.Hour), job.horizon.Load())
}

func TestRunOnce_ReturnsJobError(t *testing.T) {
	failure := errors.New("database down")
	s, err := New(&countingJob{err: failure})
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, failure)
}

func TestRunOnce_Timeout(t *testing.T) {
	job := &countingJob{block: make(chan struct{})}
	s, err := New(job, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = s.RunOnce(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStartStop(t *testing.T) {
	job := &countingJob{}
	s, err := New(job, WithSpec("@every 1s"))
	require.NoError(t, err)

	require.NoError(t, s.Start())
	assert.ErrorIs(t, s.Start(), ErrAlreadyStarted)

	assert.Eventually(t, func() bool { return job.calls.Load() > 0 }, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx), "stopping twice is a no-op")
}
