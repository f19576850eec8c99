package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Common errors for cache operations
var (
	// ErrItemTooLarge is returned when an item exceeds the cache capacity
	ErrItemTooLarge = errors.New("item too large for cache")

	// ErrCacheClosed is returned after Close
	ErrCacheClosed = errors.New("cache closed")
)

// Level represents the cache tier
type Level int

const (
	// LevelMemory is the L1 memory cache
	LevelMemory Level = iota

	// LevelDisk is the L2 disk cache
	LevelDisk
)

// String returns the string representation of the cache level
func (l Level) String() string {
	switch l {
	case LevelMemory:
		return "L1-Memory"
	case LevelDisk:
		return "L2-Disk"
	default:
		return "Unknown"
	}
}

// Stats holds cache performance metrics
type Stats struct {
	Capacity  int64 // Maximum capacity in bytes
	Size      int64 // Current size in bytes
	ItemCount int64 // Number of items in cache

	Hits      int64
	Misses    int64
	Evictions int64
	HitRate   float64 // hits / (hits + misses)
}

func (s *Stats) computeHitRate() {
	if s.Hits+s.Misses > 0 {
		s.HitRate = float64(s.Hits) / float64(s.Hits+s.Misses)
	}
}

// Config holds configuration for the cache manager
type Config struct {
	// Memory cache (L1)
	MemoryEntries  int   // Maximum number of entries
	MemoryCapacity int64 // Bytes

	// Disk cache (L2)
	DiskPath         string // Directory for cache files; empty disables L2
	DiskCapacity     int64  // Bytes
	CompressionLevel int    // Zstd level (1-22); 0 disables compression

	// Cleanup settings
	TTL             time.Duration // Age before disk entries expire; 0 keeps forever
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultConfig returns default cache configuration
func DefaultConfig() Config {
	return Config{
		MemoryEntries:    256,
		MemoryCapacity:   64 * 1024 * 1024,  // 64MB
		DiskCapacity:     512 * 1024 * 1024, // 512MB
		CompressionLevel: 3,
		TTL:              7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
	}
}

// Cache is implemented by each level
type Cache interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
	Delete(key string) error
	Clear() error
	Size() int64
	Contains(key string) bool
	Stats() Stats
}

// Key derives the cache key for a synthesized sentence.
func Key(text, voice string, speed float64, format string) string {
	data := fmt.Sprintf("%s|%s|%.3f|%s", text, voice, speed, format)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
