// Package resource probes host memory and disk headroom so callers can shed
// optional work before the machine does it for them.
package resource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level grades resource headroom.
type Level string

const (
	// LevelOK means plenty of headroom.
	LevelOK Level = "ok"
	// LevelWarning means headroom is shrinking; optional work should yield.
	LevelWarning Level = "warning"
	// LevelCritical means the host is close to exhaustion; resource-heavy
	// local work must stop.
	LevelCritical Level = "critical"
)

// Config holds monitor thresholds, expressed as free fractions of the total.
type Config struct {
	// MemoryWarning is the free-memory fraction below which the level is
	// warning (default 0.25).
	MemoryWarning float64 `koanf:"memory_warning"`

	// MemoryCritical is the free-memory fraction below which the level is
	// critical (default 0.10).
	MemoryCritical float64 `koanf:"memory_critical"`

	// DiskWarning is the free-disk fraction below which the level is
	// warning (default 0.15).
	DiskWarning float64 `koanf:"disk_warning"`

	// DiskCritical is the free-disk fraction below which the level is
	// critical (default 0.05).
	DiskCritical float64 `koanf:"disk_critical"`

	// DiskPath is the filesystem to probe (default "/").
	DiskPath string `koanf:"disk_path"`

	// CacheTTL bounds probe frequency; snapshots younger than this are
	// served from cache (default 5s).
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MemoryWarning == 0 {
		c.MemoryWarning = 0.25
	}
	if c.MemoryCritical == 0 {
		c.MemoryCritical = 0.10
	}
	if c.DiskWarning == 0 {
		c.DiskWarning = 0.15
	}
	if c.DiskCritical == 0 {
		c.DiskCritical = 0.05
	}
	if c.DiskPath == "" {
		c.DiskPath = "/"
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 5 * time.Second
	}
}

// Validate checks threshold ordering.
func (c Config) Validate() error {
	if c.MemoryCritical >= c.MemoryWarning {
		return fmt.Errorf("memory_critical (%v) must be below memory_warning (%v)",
			c.MemoryCritical, c.MemoryWarning)
	}
	if c.DiskCritical >= c.DiskWarning {
		return fmt.Errorf("disk_critical (%v) must be below disk_warning (%v)",
			c.DiskCritical, c.DiskWarning)
	}
	return nil
}

// Usage is one probed dimension.
type Usage struct {
	Total        uint64  `json:"total_bytes"`
	Free         uint64  `json:"free_bytes"`
	FreeFraction float64 `json:"free_fraction"`
	Level        Level   `json:"level"`
}

// Snapshot is a point-in-time view of host resources.
type Snapshot struct {
	Memory  Usage     `json:"memory"`
	Disk    Usage     `json:"disk"`
	Overall Level     `json:"overall"`
	TakenAt time.Time `json:"taken_at"`
}

// memoryProbe and diskProbe return (total, free) in bytes. Injectable so
// tests can simulate pressure without starving the host.
type (
	memoryProbe func() (total, free uint64, err error)
	diskProbe   func(path string) (total, free uint64, err error)
)

// Monitor grades host memory and disk against configured thresholds.
// Probes are cached for CacheTTL; LocalAllowed stays cheap enough to sit on
// the embedding hot path.
type Monitor struct {
	cfg    Config
	logger *zap.Logger

	memProbe  memoryProbe
	diskProbe diskProbe
	now       func() time.Time

	mu     sync.Mutex
	cached Snapshot
}

// NewMonitor creates a monitor using the host probes.
func NewMonitor(cfg Config, logger *zap.Logger) (*Monitor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating resource config: %w", err)
	}
	return &Monitor{
		cfg:       cfg,
		logger:    logger,
		memProbe:  hostMemory,
		diskProbe: hostDisk,
		now:       time.Now,
	}, nil
}

// grade maps a free fraction onto a level.
func grade(freeFraction, warning, critical float64) Level {
	switch {
	case freeFraction < critical:
		return LevelCritical
	case freeFraction < warning:
		return LevelWarning
	default:
		return LevelOK
	}
}

// worse returns the more severe of two levels.
func worse(a, b Level) Level {
	rank := map[Level]int{LevelOK: 0, LevelWarning: 1, LevelCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// Check probes the host, serving from cache within CacheTTL. A failed probe
// degrades to warning rather than guessing ok.
func (m *Monitor) Check(ctx context.Context) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.cached.TakenAt.IsZero() && now.Sub(m.cached.TakenAt) < m.cfg.CacheTTL {
		return m.cached
	}

	snap := Snapshot{TakenAt: now}

	if total, free, err := m.memProbe(); err != nil {
		m.logger.Warn("memory probe failed", zap.Error(err))
		snap.Memory = Usage{Level: LevelWarning}
	} else {
		frac := fraction(total, free)
		snap.Memory = Usage{
			Total:        total,
			Free:         free,
			FreeFraction: frac,
			Level:        grade(frac, m.cfg.MemoryWarning, m.cfg.MemoryCritical),
		}
	}

	if total, free, err := m.diskProbe(m.cfg.DiskPath); err != nil {
		m.logger.Warn("disk probe failed", zap.String("path", m.cfg.DiskPath), zap.Error(err))
		snap.Disk = Usage{Level: LevelWarning}
	} else {
		frac := fraction(total, free)
		snap.Disk = Usage{
			Total:        total,
			Free:         free,
			FreeFraction: frac,
			Level:        grade(frac, m.cfg.DiskWarning, m.cfg.DiskCritical),
		}
	}

	snap.Overall = worse(snap.Memory.Level, snap.Disk.Level)
	if snap.Overall != LevelOK && m.cached.Overall != snap.Overall {
		m.logger.Warn("resource pressure",
			zap.String("level", string(snap.Overall)),
			zap.Float64("memory_free", snap.Memory.FreeFraction),
			zap.Float64("disk_free", snap.Disk.FreeFraction))
	}

	m.cached = snap
	return snap
}

// LocalAllowed reports whether memory-heavy local providers may run.
// Critical memory blocks them; disk pressure alone does not.
func (m *Monitor) LocalAllowed() bool {
	snap := m.Check(context.Background())
	return snap.Memory.Level != LevelCritical
}

func fraction(total, free uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(free) / float64(total)
}
