package config

import (
	"os"
	"strconv"
	"time"
)

// EngineConfig holds configuration for the query engine
type EngineConfig struct {
	// Remote paging
	PageSize int

	// DML safety
	DefaultDmlRowCap int64

	// Client-side buffering (DISTINCT)
	DistinctMemoryLimit int
	SpillDir            string

	// Planning
	PlanTimeout time.Duration

	// Parallelism hint used when the caller supplies none
	PoolCapacity int

	// Script execution
	MaxWhileIterations int
}

// DefaultEngineConfig returns the default engine configuration
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		PageSize:            5000,
		DefaultDmlRowCap:    10000,
		DistinctMemoryLimit: 100000,
		SpillDir:            "",
		PlanTimeout:         10 * time.Second,
		PoolCapacity:        1,
		MaxWhileIterations:  10000,
	}
}

// LoadEngineConfig loads configuration from environment variables
func LoadEngineConfig() EngineConfig {
	config := DefaultEngineConfig()

	if pageSizeStr := os.Getenv("ENGINE_PAGE_SIZE"); pageSizeStr != "" {
		if size, err := strconv.Atoi(pageSizeStr); err == nil && size > 0 {
			config.PageSize = size
		}
	}

	if capStr := os.Getenv("ENGINE_DML_ROW_CAP"); capStr != "" {
		if cap, err := strconv.ParseInt(capStr, 10, 64); err == nil && cap > 0 {
			config.DefaultDmlRowCap = cap
		}
	}

	if limitStr := os.Getenv("ENGINE_DISTINCT_MEMORY_LIMIT"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			config.DistinctMemoryLimit = limit
		}
	}

	if spillDir := os.Getenv("ENGINE_SPILL_DIR"); spillDir != "" {
		config.SpillDir = spillDir
	}

	if timeoutStr := os.Getenv("ENGINE_PLAN_TIMEOUT_MS"); timeoutStr != "" {
		if ms, err := strconv.ParseInt(timeoutStr, 10, 64); err == nil && ms > 0 {
			config.PlanTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if capacityStr := os.Getenv("ENGINE_POOL_CAPACITY"); capacityStr != "" {
		if capacity, err := strconv.Atoi(capacityStr); err == nil && capacity > 0 {
			config.PoolCapacity = capacity
		}
	}

	if iterStr := os.Getenv("ENGINE_MAX_WHILE_ITERATIONS"); iterStr != "" {
		if iter, err := strconv.Atoi(iterStr); err == nil && iter > 0 {
			config.MaxWhileIterations = iter
		}
	}

	return config
}
