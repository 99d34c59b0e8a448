package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/calyxdb/calyx/internal/log"
)

// Defaults for the execution memory model.
const (
	// DefaultBlockCapacity is the number of rows per block. A block is the
	// unit of I/O and of memory accounting.
	DefaultBlockCapacity = 128

	// DefaultMemoryBlocks is the number of blocks an operator may hold
	// resident at once unless the caller grants a different budget.
	DefaultMemoryBlocks = 16
)

// Config represents the execution engine configuration.
type Config struct {
	// Execution memory model
	BlockCapacity int `json:"block_capacity"` // rows per block
	MemoryBlocks  int `json:"memory_blocks"`  // default per-operator budget

	// Temporary partition storage
	TempDir     string `json:"temp_dir"`    // "" means the OS temp dir
	Compression bool   `json:"compression"` // lz4-compress spill files

	// Logging configuration
	Log log.Config `json:"log"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BlockCapacity: DefaultBlockCapacity,
		MemoryBlocks:  DefaultMemoryBlocks,
		TempDir:       "",
		Compression:   false,
		Log:           log.DefaultConfig(),
	}
}

// Load reads configuration from a JSON file, applying defaults for any
// omitted fields.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	if c.BlockCapacity < 1 {
		return fmt.Errorf("block_capacity must be at least 1, got %d", c.BlockCapacity)
	}
	if c.MemoryBlocks < 3 {
		return fmt.Errorf("memory_blocks must be at least 3, got %d", c.MemoryBlocks)
	}
	return nil
}

// Save writes the configuration to a JSON file.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
