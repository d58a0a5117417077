package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultEngineConfig(t *testing.T) {
	cfg := DefaultEngineConfig()
	assert.Equal(t, 5000, cfg.PageSize)
	assert.Equal(t, int64(10000), cfg.DefaultDmlRowCap)
	assert.Equal(t, 100000, cfg.DistinctMemoryLimit)
	assert.Equal(t, 10*time.Second, cfg.PlanTimeout)
	assert.Equal(t, 1, cfg.PoolCapacity)
	assert.Equal(t, 10000, cfg.MaxWhileIterations)
}

func TestLoadEngineConfigFromEnv(t *testing.T) {
	t.Setenv("ENGINE_PAGE_SIZE", "250")
	t.Setenv("ENGINE_DML_ROW_CAP", "42")
	t.Setenv("ENGINE_PLAN_TIMEOUT_MS", "1500")
	t.Setenv("ENGINE_POOL_CAPACITY", "4")
	t.Setenv("ENGINE_SPILL_DIR", "/tmp/spill")

	cfg := LoadEngineConfig()
	assert.Equal(t, 250, cfg.PageSize)
	assert.Equal(t, int64(42), cfg.DefaultDmlRowCap)
	assert.Equal(t, 1500*time.Millisecond, cfg.PlanTimeout)
	assert.Equal(t, 4, cfg.PoolCapacity)
	assert.Equal(t, "/tmp/spill", cfg.SpillDir)
}

func TestLoadEngineConfigIgnoresInvalid(t *testing.T) {
	t.Setenv("ENGINE_PAGE_SIZE", "not-a-number")
	t.Setenv("ENGINE_DML_ROW_CAP", "-5")

	cfg := LoadEngineConfig()
	assert.Equal(t, 5000, cfg.PageSize)
	assert.Equal(t, int64(10000), cfg.DefaultDmlRowCap)
}
