package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-restore/internal/inventory"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, inventory.SchemeFine, cfg.StatusScheme)
	require.Equal(t, 500, cfg.RestoreBatchSize)
	require.Equal(t, 5, cfg.ManagerConfig().Attempts)
	require.Equal(t, 2*time.Second, cfg.ManagerConfig().Backoff)
	require.Equal(t, 3, cfg.ExecutorConfig().MaxAttempts)
	require.Equal(t, "lock:inventory:restore", cfg.LockConfig().Key)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("RESTORE_STATUS_SCHEME", "coarse")
	t.Setenv("DB_OP_RETRIES", "5")
	t.Setenv("RESTORE_LOCK_WAIT", "30s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, inventory.SchemeCoarse, cfg.StatusScheme)
	require.Equal(t, 5, cfg.ExecutorConfig().MaxAttempts)
	require.Equal(t, 30*time.Second, cfg.LockConfig().Wait)
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("RESTORE_STATUS_SCHEME", "weekly")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("RESTORE_STATUS_SCHEME", "fine")
	t.Setenv("RESTORE_BATCH_SIZE", "900")
	t.Setenv("RESTORE_MAX_BATCH", "100")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "max batch")
}
