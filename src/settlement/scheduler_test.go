package settlement

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cyruslab/pedalpay/src/chain"
)

func TestSchedulerLockIsExclusive(t *testing.T) {
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	lockPath := filepath.Join(t.TempDir(), "scheduler.lock")

	first := NewScheduler(pipeline, lockPath, 3, 30, logger)
	held, err := first.TryAcquireExclusiveRun()
	require.NoError(t, err)
	require.True(t, held, "first process must win the lock")
	defer first.Stop()

	second := NewScheduler(pipeline, lockPath, 3, 30, logger)
	held, err = second.TryAcquireExclusiveRun()
	require.NoError(t, err)
	require.False(t, held, "second process must skip job registration")
}

func TestSchedulerLockReleasedOnStop(t *testing.T) {
	mock := chain.NewMockClient(chain.Config{})
	pipeline := newTestPipeline(t, mock)
	lockPath := filepath.Join(t.TempDir(), "scheduler.lock")

	first := NewScheduler(pipeline, lockPath, 3, 30, logger)
	held, err := first.TryAcquireExclusiveRun()
	require.NoError(t, err)
	require.True(t, held)
	first.Stop()

	second := NewScheduler(pipeline, lockPath, 3, 30, logger)
	held, err = second.TryAcquireExclusiveRun()
	require.NoError(t, err)
	require.True(t, held, "lock must be reacquirable after release")
	second.Stop()
}
