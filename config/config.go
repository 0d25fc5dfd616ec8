// Package config loads the TOML-encoded Config an embedding caller passes
// to Open (spec.md §6 "open(config)"; SPEC_FULL.md's AMBIENT STACK
// "Configuration" section), covering the data directory, resource limits,
// worker-pool size, WAL flush threshold, and auto-create policy.
package config

import (
	"time"

	"github.com/BurntSushi/toml"

	ilerrors "github.com/inputlayer/inputlayer/errors"
	"github.com/inputlayer/inputlayer/exec"
	"github.com/inputlayer/inputlayer/storage"
)

// Config is the on-disk TOML shape. Durations are written as Go duration
// strings ("30s", "2m") and parsed at load time, the same convention the
// teacher's own server config uses for timeouts.
type Config struct {
	DataDir        string `toml:"data_dir"`
	AutoCreate     bool   `toml:"auto_create"`
	FlushThreshold int    `toml:"flush_threshold"`
	WorkerPoolSize int    `toml:"worker_pool_size"`

	QueryTimeout        string `toml:"query_timeout"`
	MaxResultTuples     int    `toml:"max_result_tuples"`
	MaxIntermediateSize int    `toml:"max_intermediate_size"`
	MaxRecursionDepth   int    `toml:"max_recursion_depth"`
	MaxMemoryBytes      uint64 `toml:"max_memory_bytes"`
}

// Default returns the conservative defaults that Load("") returns when no
// config file is given.
func Default() Config {
	limits := exec.DefaultLimits()
	return Config{
		DataDir:             "./data",
		AutoCreate:          true,
		FlushThreshold:      1000,
		WorkerPoolSize:      4,
		QueryTimeout:        limits.Timeout.String(),
		MaxResultTuples:     limits.MaxResultTuples,
		MaxIntermediateSize: limits.MaxIntermediateSize,
		MaxRecursionDepth:   limits.MaxRecursionDepth,
	}
}

// Load reads and decodes a TOML config file, filling in Default() for any
// field the file leaves unset.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, ilerrors.ErrInvalidArgument.New("config: " + err.Error())
	}
	return cfg, nil
}

// Validate rejects configurations that would make Open misbehave rather
// than fail fast (spec.md §7 "fail fast on an invalid configuration").
func (c Config) Validate() error {
	if c.DataDir == "" {
		return ilerrors.ErrInvalidArgument.New("config: data_dir must not be empty")
	}
	if c.WorkerPoolSize <= 0 {
		return ilerrors.ErrInvalidArgument.New("config: worker_pool_size must be positive")
	}
	if _, err := c.timeout(); err != nil {
		return ilerrors.ErrInvalidArgument.New("config: invalid query_timeout: " + err.Error())
	}
	return nil
}

func (c Config) timeout() (time.Duration, error) {
	if c.QueryTimeout == "" {
		return exec.DefaultLimits().Timeout, nil
	}
	return time.ParseDuration(c.QueryTimeout)
}

// Limits lowers the TOML config's flat resource-limit fields into an
// exec.Limits, used by every query/rule/delete evaluation (spec.md §5).
func (c Config) Limits() exec.Limits {
	timeout, err := c.timeout()
	if err != nil {
		timeout = exec.DefaultLimits().Timeout
	}
	limits := exec.Limits{
		Timeout:             timeout,
		MaxResultTuples:     c.MaxResultTuples,
		MaxIntermediateSize: c.MaxIntermediateSize,
		MaxRecursionDepth:   c.MaxRecursionDepth,
		MaxMemoryBytes:      c.MaxMemoryBytes,
	}
	if limits.MaxResultTuples == 0 {
		limits = exec.DefaultLimits()
		limits.Timeout = timeout
		limits.MaxMemoryBytes = c.MaxMemoryBytes
	}
	return limits
}

// StorageConfig lowers c into the storage package's own Config shape.
func (c Config) StorageConfig() storage.Config {
	return storage.Config{
		DataDir:        c.DataDir,
		AutoCreate:     c.AutoCreate,
		FlushThreshold: c.FlushThreshold,
		Limits:         c.Limits(),
	}
}
