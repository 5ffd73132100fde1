package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gilestrolab/ethoscope-node/pkg/eventlog"
	"github.com/gilestrolab/ethoscope-node/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RefreshPeriod = 5 * time.Millisecond
	cfg.BusyRefreshPeriod = 10 * time.Millisecond
	cfg.UserActionTimeout = 30 * time.Second
	cfg.GracefulShutdownGrace = 5 * time.Minute
	cfg.BusyTimeout = 10 * time.Minute
	cfg.UnreachableTimeout = 20 * time.Minute
	return cfg
}

func scriptedFetch(results ...func() (FetchResult, error)) FetchFunc {
	var idx atomic.Int32
	return func(ctx context.Context) (FetchResult, error) {
		i := idx.Add(1) - 1
		if int(i) >= len(results) {
			return results[len(results)-1]()
		}
		return results[i]()
	}
}

func runForTicks(t *testing.T, d *Device, ticks int, tick time.Duration) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)
	time.Sleep(time.Duration(ticks) * tick)
}

func TestDeviceTransitionsToRunningOnSuccessfulPoll(t *testing.T) {
	fetch := scriptedFetch(func() (FetchResult, error) {
		return FetchResult{StatusName: status.Running, Info: map[string]any{"status": "running"}}, nil
	})

	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, testConfig(), eventlog.NoopLogger{})
	runForTicks(t, d, 3, 5*time.Millisecond)

	_, st := d.Snapshot()
	require.NotNil(t, st)
	assert.Equal(t, status.Running, st.StatusName)
}

func TestDeviceOfflineToRunningForcesUserTriggered(t *testing.T) {
	var call int
	fetch := func(ctx context.Context) (FetchResult, error) {
		call++
		if call == 1 {
			return FetchResult{StatusName: status.Offline}, nil
		}
		return FetchResult{StatusName: status.Running}, nil
	}

	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, testConfig(), eventlog.NoopLogger{})
	runForTicks(t, d, 4, 5*time.Millisecond)

	_, st := d.Snapshot()
	require.NotNil(t, st)
	assert.Equal(t, status.Running, st.StatusName)
	assert.True(t, st.IsUserTriggered)
}

func TestDeviceBusyErrorReportsBusyStatus(t *testing.T) {
	fetch := func(ctx context.Context) (FetchResult, error) {
		return FetchResult{}, &BusyError{Err: errors.New("data endpoint timed out")}
	}

	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, testConfig(), eventlog.NoopLogger{})
	runForTicks(t, d, 2, 5*time.Millisecond)

	_, st := d.Snapshot()
	require.NotNil(t, st)
	assert.Equal(t, status.Busy, st.StatusName)
}

func TestDeviceConnectionRefusedLatchesSkipScanningAfterThreshold(t *testing.T) {
	fetch := func(ctx context.Context) (FetchResult, error) {
		return FetchResult{}, errors.New("dial tcp: connection refused")
	}

	cfg := testConfig()
	cfg.ConnectionRefusedThreshold = 3
	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, cfg, eventlog.NoopLogger{})
	runForTicks(t, d, 5, 5*time.Millisecond)

	assert.True(t, d.SkipScanning())
}

func TestDeviceMaxConsecutiveErrorsLatchesSkipScanning(t *testing.T) {
	fetch := func(ctx context.Context) (FetchResult, error) {
		return FetchResult{}, errors.New("some transient network error")
	}

	cfg := testConfig()
	cfg.MaxConsecutiveErrors = 3
	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, cfg, eventlog.NoopLogger{})
	runForTicks(t, d, 5, 5*time.Millisecond)

	assert.True(t, d.SkipScanning())
}

func TestDeviceResetErrorStateClearsSkipScanning(t *testing.T) {
	fetch := func(ctx context.Context) (FetchResult, error) {
		return FetchResult{}, errors.New("dial tcp: connection refused")
	}

	cfg := testConfig()
	cfg.ConnectionRefusedThreshold = 2
	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, cfg, eventlog.NoopLogger{})
	runForTicks(t, d, 3, 5*time.Millisecond)
	require.True(t, d.SkipScanning())

	d.ResetErrorState()
	assert.False(t, d.SkipScanning())
}

func TestDeviceSkipScanningResetsInfoToOfflineStub(t *testing.T) {
	fetch := func(ctx context.Context) (FetchResult, error) {
		return FetchResult{StatusName: status.Running, Info: map[string]any{"status": "running"}}, nil
	}

	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, testConfig(), eventlog.NoopLogger{})
	d.skipScanning = true
	runForTicks(t, d, 2, 5*time.Millisecond)

	info, _ := d.Snapshot()
	assert.Equal(t, "offline", info["status"])
}

func TestRecordUserInstructionMakesStopUserTriggered(t *testing.T) {
	var call int
	fetch := func(ctx context.Context) (FetchResult, error) {
		call++
		if call == 1 {
			return FetchResult{StatusName: status.Running}, nil
		}
		return FetchResult{StatusName: status.Stopped}, nil
	}

	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, testConfig(), eventlog.NoopLogger{})
	d.RecordUserInstruction("stop")
	runForTicks(t, d, 4, 5*time.Millisecond)

	_, st := d.Snapshot()
	require.NotNil(t, st)
	if st.StatusName == status.Stopped {
		assert.True(t, st.IsUserTriggered)
	}
}

func TestTransitionHookInvokedOnCommittedTransition(t *testing.T) {
	fetch := func(ctx context.Context) (FetchResult, error) {
		return FetchResult{StatusName: status.Running}, nil
	}

	var mu sync.Mutex
	var seen []status.Name

	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, testConfig(), eventlog.NoopLogger{})
	d.SetTransitionHook(func(dev *Device, s *status.DeviceStatus) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.StatusName)
	})

	runForTicks(t, d, 3, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, status.Running)
}

func TestMarkRemovedLatchesSkipScanningAndGoesOffline(t *testing.T) {
	fetch := func(ctx context.Context) (FetchResult, error) {
		return FetchResult{StatusName: status.Running}, nil
	}

	var mu sync.Mutex
	var seen []status.Name

	d := New("dev1", "ethoscope_001", "10.0.0.1", 9000, fetch, testConfig(), eventlog.NoopLogger{})
	d.SetTransitionHook(func(dev *Device, s *status.DeviceStatus) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s.StatusName)
	})

	runForTicks(t, d, 3, 5*time.Millisecond)

	d.MarkRemoved()

	assert.True(t, d.SkipScanning())
	info, s := d.Snapshot()
	assert.Equal(t, "offline", info["status"])
	require.Equal(t, status.Offline, s.StatusName)

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, status.Offline)
}
