package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesEnvironmentOverDefaults(t *testing.T) {
	t.Setenv("GAME_SERVICE_TOKEN", "secret")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("QUEUE_ENTRY_TTL_SECONDS", "0")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.GameServiceToken)
	assert.Equal(t, StoreDriverMemory, cfg.StoreDriver)
	assert.Equal(t, time.Duration(0), cfg.QueueEntryTTL())
	assert.Equal(t, 15*time.Minute, cfg.BattleDuration())
	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
	assert.False(t, cfg.R2Enabled())
}

func TestValidate(t *testing.T) {
	ok := Default
	ok.GameServiceToken = "secret"
	ok.StoreDriver = StoreDriverMemory
	require.NoError(t, ok.Validate())

	missingToken := ok
	missingToken.GameServiceToken = ""
	assert.Error(t, missingToken.Validate())

	missingDSN := ok
	missingDSN.StoreDriver = StoreDriverPostgres
	assert.Error(t, missingDSN.Validate())

	badNotifier := ok
	badNotifier.NotifierDriver = "kafka"
	assert.Error(t, badNotifier.Validate())

	badDuration := ok
	badDuration.BattleDurationSeconds = 0
	assert.Error(t, badDuration.Validate())
}
