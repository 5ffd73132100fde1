package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddAndStopRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpdateEthoscope(ctx, "abc123", "ethoscope_001", "10.0.0.1", 9000))

	runID, err := s.AddRun(ctx, "abc123", "alice")
	require.NoError(t, err)
	require.NotZero(t, runID)

	active, err := s.ActiveRunsFor(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, s.StopRun(ctx, runID))

	active, err = s.ActiveRunsFor(ctx, "abc123")
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestFlagProblemAppendsRatherThanOverwrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpdateEthoscope(ctx, "abc123", "ethoscope_001", "10.0.0.1", 9000))

	runID, err := s.AddRun(ctx, "abc123", "alice")
	require.NoError(t, err)

	require.NoError(t, s.FlagProblem(ctx, runID, "disk almost full"))
	require.NoError(t, s.FlagProblem(ctx, runID, "lost connection briefly"))

	active, err := s.ActiveRunsFor(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Contains(t, active[0].Problems, "disk almost full")
	require.Contains(t, active[0].Problems, "lost connection briefly")
}

func TestStopOrphanedRunsKeepsOldest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpdateEthoscope(ctx, "abc123", "ethoscope_001", "10.0.0.1", 9000))

	oldest, err := s.AddRun(ctx, "abc123", "alice")
	require.NoError(t, err)
	_, err = s.AddRun(ctx, "abc123", "bob")
	require.NoError(t, err)

	s.RunCleanupJobs(ctx)

	active, err := s.ActiveRunsFor(ctx, "abc123")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, oldest, active[0].RunID)
}

func TestAddToExperimentUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddToExperiment(ctx, "exp1", "foraging study", "alice", "first run"))
	require.NoError(t, s.AddToExperiment(ctx, "exp1", "foraging study v2", "alice", "revised"))
}
