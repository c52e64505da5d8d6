package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "credits", cfg.AppName)
	assert.Equal(t, BackendMemory, cfg.BackendKind)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, int64(10), cfg.LowCreditThreshold)
	assert.Equal(t, 7, cfg.ExpiringSoonDays)
	assert.Equal(t, time.Minute, cfg.SchedulerInterval)
	assert.Equal(t, "credit_ledger.jsonl", cfg.LedgerFilePath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CREDITS_BACKEND", "SQLite")
	t.Setenv("LOW_CREDIT_THRESHOLD", "25")
	t.Setenv("SCHEDULER_INTERVAL", "5m")

	cfg := Load()
	assert.Equal(t, BackendSQLite, cfg.BackendKind)
	assert.Equal(t, int64(25), cfg.LowCreditThreshold)
	assert.Equal(t, 5*time.Minute, cfg.SchedulerInterval)
}

func TestNormalizeBackend(t *testing.T) {
	assert.Equal(t, BackendMemory, normalizeBackend(""))
	assert.Equal(t, BackendMemory, normalizeBackend("bogus"))
	assert.Equal(t, BackendPostgres, normalizeBackend(" Postgres "))
	assert.Equal(t, BackendSQLite, normalizeBackend("sqlite"))
}
