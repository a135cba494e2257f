package resource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gib = 1 << 30

func newTestMonitor(t *testing.T, memFree, diskFree uint64) *Monitor {
	t.Helper()
	m, err := NewMonitor(Config{}, nil)
	require.NoError(t, err)
	m.memProbe = func() (uint64, uint64, error) { return 16 * gib, memFree, nil }
	m.diskProbe = func(string) (uint64, uint64, error) { return 100 * gib, diskFree, nil }
	return m
}

func TestMonitorLevels(t *testing.T) {
	tests := []struct {
		name     string
		memFree  uint64
		diskFree uint64
		wantMem  Level
		wantDisk Level
		overall  Level
	}{
		{
			name:     "plenty of headroom",
			memFree:  8 * gib,
			diskFree: 50 * gib,
			wantMem:  LevelOK,
			wantDisk: LevelOK,
			overall:  LevelOK,
		},
		{
			name:     "memory shrinking",
			memFree:  3 * gib, // 18.75% of 16GiB, below the 25% warning line
			diskFree: 50 * gib,
			wantMem:  LevelWarning,
			wantDisk: LevelOK,
			overall:  LevelWarning,
		},
		{
			name:     "memory nearly gone",
			memFree:  1 * gib, // 6.25%, below the 10% critical line
			diskFree: 50 * gib,
			wantMem:  LevelCritical,
			wantDisk: LevelOK,
			overall:  LevelCritical,
		},
		{
			name:     "disk shrinking",
			memFree:  8 * gib,
			diskFree: 10 * gib, // 10%, below the 15% warning line
			wantMem:  LevelOK,
			wantDisk: LevelWarning,
			overall:  LevelWarning,
		},
		{
			name:     "disk nearly full",
			memFree:  8 * gib,
			diskFree: 2 * gib, // 2%, below the 5% critical line
			wantMem:  LevelOK,
			wantDisk: LevelCritical,
			overall:  LevelCritical,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(t, tt.memFree, tt.diskFree)
			snap := m.Check(context.Background())

			assert.Equal(t, tt.wantMem, snap.Memory.Level)
			assert.Equal(t, tt.wantDisk, snap.Disk.Level)
			assert.Equal(t, tt.overall, snap.Overall)
		})
	}
}

func TestMonitorLocalAllowed(t *testing.T) {
	ok := newTestMonitor(t, 8*gib, 50*gib)
	assert.True(t, ok.LocalAllowed())

	lowMem := newTestMonitor(t, 1*gib, 50*gib)
	assert.False(t, lowMem.LocalAllowed(), "critical memory blocks local providers")

	lowDisk := newTestMonitor(t, 8*gib, 2*gib)
	assert.True(t, lowDisk.LocalAllowed(), "disk pressure alone does not block embedding")
}

func TestMonitorCachesWithinTTL(t *testing.T) {
	m := newTestMonitor(t, 8*gib, 50*gib)

	probes := 0
	m.memProbe = func() (uint64, uint64, error) {
		probes++
		return 16 * gib, 8 * gib, nil
	}

	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	m.Check(context.Background())
	m.Check(context.Background())
	assert.Equal(t, 1, probes, "second check within the TTL is served from cache")

	clock = clock.Add(6 * time.Second)
	m.Check(context.Background())
	assert.Equal(t, 2, probes)
}

func TestMonitorProbeFailureDegradesToWarning(t *testing.T) {
	m := newTestMonitor(t, 8*gib, 50*gib)
	m.memProbe = func() (uint64, uint64, error) {
		return 0, 0, errors.New("sysinfo unavailable")
	}

	snap := m.Check(context.Background())
	assert.Equal(t, LevelWarning, snap.Memory.Level, "a blind probe never reports ok")
	assert.Equal(t, LevelWarning, snap.Overall)
}

func TestConfigValidate(t *testing.T) {
	bad := Config{MemoryWarning: 0.1, MemoryCritical: 0.2, DiskWarning: 0.15, DiskCritical: 0.05}
	assert.Error(t, bad.Validate())

	badDisk := Config{MemoryWarning: 0.25, MemoryCritical: 0.1, DiskWarning: 0.05, DiskCritical: 0.15}
	assert.Error(t, badDisk.Validate())

	_, err := NewMonitor(Config{MemoryWarning: 0.1, MemoryCritical: 0.2}, nil)
	assert.Error(t, err)
}

func TestWorse(t *testing.T) {
	assert.Equal(t, LevelCritical, worse(LevelWarning, LevelCritical))
	assert.Equal(t, LevelWarning, worse(LevelWarning, LevelOK))
	assert.Equal(t, LevelOK, worse(LevelOK, LevelOK))
}
