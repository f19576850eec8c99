package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Manager coordinates the memory and disk levels. Disk hits are promoted to
// memory. Expired disk entries are removed by a background cleanup routine.
type Manager struct {
	l1 *MemoryCache
	l2 *DiskCache // nil when no disk path is configured

	config Config
	logger *log.Logger

	cleanupStop chan struct{}
	cleanupWg   sync.WaitGroup
	closeOnce   sync.Once

	mu    sync.Mutex
	stats struct {
		L1Hits     int64
		L2Hits     int64
		Misses     int64
		Promotions int64
	}
}

// NewManager creates a cache manager.
func NewManager(config Config) (*Manager, error) {
	defaults := DefaultConfig()
	if config.MemoryEntries <= 0 {
		config.MemoryEntries = defaults.MemoryEntries
	}
	if config.MemoryCapacity <= 0 {
		config.MemoryCapacity = defaults.MemoryCapacity
	}

	l1, err := NewMemoryCache(config.MemoryEntries, config.MemoryCapacity)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	m := &Manager{
		l1:          l1,
		config:      config,
		logger:      log.Default().WithPrefix("cache"),
		cleanupStop: make(chan struct{}),
	}

	if config.DiskPath != "" {
		if config.DiskCapacity <= 0 {
			config.DiskCapacity = defaults.DiskCapacity
		}
		m.l2, err = NewDiskCache(config.DiskPath, config.DiskCapacity, config.CompressionLevel)
		if err != nil {
			return nil, fmt.Errorf("failed to create disk cache: %w", err)
		}
		if config.TTL > 0 && config.CleanupInterval > 0 {
			m.startCleanupRoutine()
		}
	}

	return m, nil
}

// Get checks L1, then L2.
func (m *Manager) Get(key string) ([]byte, bool) {
	if data, ok := m.l1.Get(key); ok {
		m.count(func() { m.stats.L1Hits++ })
		return data, true
	}

	if m.l2 != nil {
		if data, ok := m.l2.Get(key); ok {
			m.count(func() {
				m.stats.L2Hits++
				m.stats.Promotions++
			})
			// Promotion is best-effort.
			_ = m.l1.Put(key, data)
			return data, true
		}
	}

	m.count(func() { m.stats.Misses++ })
	return nil, false
}

// Put stores value in every level. Items too large for memory still go to disk.
func (m *Manager) Put(key string, value []byte) error {
	memErr := m.l1.Put(key, value)
	if m.l2 == nil {
		return memErr
	}
	return m.l2.Put(key, value)
}

// Delete removes key from every level.
func (m *Manager) Delete(key string) error {
	_ = m.l1.Delete(key)
	if m.l2 != nil {
		return m.l2.Delete(key)
	}
	return nil
}

// Clear empties every level.
func (m *Manager) Clear() error {
	_ = m.l1.Clear()
	if m.l2 != nil {
		return m.l2.Clear()
	}
	return nil
}

// Stats returns per-level statistics keyed by level name.
func (m *Manager) Stats() map[string]Stats {
	out := map[string]Stats{LevelMemory.String(): m.l1.Stats()}
	if m.l2 != nil {
		out[LevelDisk.String()] = m.l2.Stats()
	}
	return out
}

// Close stops cleanup and persists the disk index.
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.cleanupStop)
		m.cleanupWg.Wait()

		m.mu.Lock()
		m.logger.Debug("cache closed",
			"l1_hits", m.stats.L1Hits,
			"l2_hits", m.stats.L2Hits,
			"misses", m.stats.Misses)
		m.mu.Unlock()

		if m.l2 != nil {
			if cerr := m.l2.Close(); cerr != nil {
				err = fmt.Errorf("failed to close disk cache: %w", cerr)
			}
		}
	})
	return err
}

func (m *Manager) count(f func()) {
	m.mu.Lock()
	f()
	m.mu.Unlock()
}

func (m *Manager) startCleanupRoutine() {
	ticker := time.NewTicker(m.config.CleanupInterval)
	m.cleanupWg.Add(1)

	go func() {
		defer m.cleanupWg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.performCleanup()
			case <-m.cleanupStop:
				return
			}
		}
	}()
}

func (m *Manager) performCleanup() {
	removed := m.l2.RemoveOlderThan(time.Now().Add(-m.config.TTL))
	if removed > 0 {
		m.logger.Debug("expired cache entries removed", "count", removed)
	}
}
