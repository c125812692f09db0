package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/furlat/Abstractions-sub003/internal/config"
)

func TestLoadAppliesDefaultsWhenEnvUnset(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 10000, cfg.EventBusHistoryCapacity)
	assert.Equal(t, "@every 1m", cfg.MaintenanceSweepCron)
	assert.Equal(t, "", cfg.Database.DSN(), "DSN is empty until a host is configured")
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("ENTITYCORE_RING_BUFFER_CAPACITY", "42")
	t.Setenv("ENTITYCORE_DB_HOST", "db.internal")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 42, cfg.EventBusHistoryCapacity)
	assert.Equal(t, "postgres://entitycore:@db.internal:5432/entitycore?sslmode=disable", cfg.Database.DSN())
}
