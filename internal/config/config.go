// Package config holds the module's write-once global configuration,
// modeled on the teacher's cmn.Rom "read-mostly" pattern: assigned once
// at load, then only read (under an RWMutex read lock) for the remainder
// of the process lifetime.
package config

import (
	"fmt"
	"sync"
	"time"
)

// Encoding names the chunk codec selected by configuration or a per-series override.
type Encoding int

const (
	EncodingGorilla Encoding = iota // default
	EncodingUncompressed
	EncodingPco
)

func (e Encoding) String() string {
	switch e {
	case EncodingUncompressed:
		return "uncompressed"
	case EncodingPco:
		return "pco"
	default:
		return "gorilla"
	}
}

func ParseEncoding(s string) (Encoding, error) {
	switch s {
	case "", "compressed", "gorilla":
		return EncodingGorilla, nil
	case "uncompressed":
		return EncodingUncompressed, nil
	case "pco":
		return EncodingPco, nil
	default:
		return 0, fmt.Errorf("invalid ENCODING %q", s)
	}
}

// DuplicatePolicy mirrors sample.DuplicatePolicy with the same numeric
// encoding; series.Options.ApplyDefaults translates it at the boundary.
type DuplicatePolicy int

const (
	PolicyBlock DuplicatePolicy = iota
	PolicyKeepFirst
	PolicyKeepLast
	PolicyMin
	PolicyMax
	PolicySum
)

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	switch s {
	case "", "block":
		return PolicyBlock, nil
	case "first":
		return PolicyKeepFirst, nil
	case "last":
		return PolicyKeepLast, nil
	case "min":
		return PolicyMin, nil
	case "max":
		return PolicyMax, nil
	case "sum":
		return PolicySum, nil
	default:
		return 0, fmt.Errorf("invalid DUPLICATE_POLICY %q", s)
	}
}

const (
	MinChunkSizeBytes = 48
	MaxChunkSizeBytes = 1048576
)

// Config is the set of options recognized at module load (spec section 6.1).
type Config struct {
	KeyPrefix string

	QueryDefaultStep time.Duration
	QueryRoundDigits *uint8 // nil = unset

	RetentionPolicy time.Duration
	Encoding        Encoding
	ChunkSizeBytes  int

	IgnoreMaxTimeDiff  int64 // ms
	IgnoreMaxValueDiff float64

	DuplicatePolicy DuplicatePolicy

	RoundDigits       *int8 // -18..18, nil = unset
	SignificantDigits *int8

	WorkerInterval time.Duration
}

func defaults() Config {
	return Config{
		KeyPrefix:        "__vts__",
		QueryDefaultStep: 5 * time.Minute,
		Encoding:         EncodingGorilla,
		ChunkSizeBytes:   4096,
		DuplicatePolicy:  PolicyBlock,
		WorkerInterval:   60 * time.Second,
	}
}

func (c *Config) Validate() error {
	if c.ChunkSizeBytes < MinChunkSizeBytes || c.ChunkSizeBytes > MaxChunkSizeBytes {
		return fmt.Errorf("CHUNK_SIZE_BYTES must be in [%d, %d], got %d",
			MinChunkSizeBytes, MaxChunkSizeBytes, c.ChunkSizeBytes)
	}
	if c.ChunkSizeBytes%8 != 0 {
		return fmt.Errorf("CHUNK_SIZE_BYTES must be a multiple of 8, got %d", c.ChunkSizeBytes)
	}
	if c.QueryRoundDigits != nil && *c.QueryRoundDigits > 18 {
		return fmt.Errorf("query.round_digits must be <= 18, got %d", *c.QueryRoundDigits)
	}
	for _, d := range []*int8{c.RoundDigits, c.SignificantDigits} {
		if d != nil && (*d < -18 || *d > 18) {
			return fmt.Errorf("ROUND_DIGITS/SIGNIFICANT_DIGITS must be in [-18, 18], got %d", *d)
		}
	}
	return nil
}

var (
	once    sync.Once
	current Config
	loaded  bool
	mu      sync.RWMutex
)

// Init assigns the global configuration exactly once. Subsequent calls
// are no-ops; callers that need a fresh process should restart, matching
// the teacher's "write-once at startup" ambient-config convention.
func Init(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	once.Do(func() {
		mu.Lock()
		current = c
		loaded = true
		mu.Unlock()
	})
	return nil
}

// Get returns the current global configuration, or built-in defaults if
// Init was never called (useful for tests and the CLI tool).
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	if !loaded {
		return defaults()
	}
	return current
}

// reset is for tests only: it bypasses the write-once guard.
func reset(c Config) {
	mu.Lock()
	current = c
	loaded = true
	mu.Unlock()
	once = sync.Once{}
}
