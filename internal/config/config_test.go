package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func unsetAfter(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		require.NoError(t, os.Unsetenv(key))
	}
	t.Cleanup(func() {
		for _, key := range keys {
			_ = os.Unsetenv(key)
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	unsetAfter(t, "RAFFLE_DB_PATH", "RAFFLE_OPERATOR", "RAFFLE_WINNER_PCT", "RAFFLE_ORACLE_INTERVAL")

	configuration, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	require.Equal(t, "persistent.db", configuration.DatabasePath)
	require.Equal(t, "operator", configuration.Operator)
	require.Equal(t, uint64(85), configuration.WinnerPct)
	require.Equal(t, uint64(5), configuration.CreatorPct)
	require.Equal(t, uint64(10), configuration.OperatorPct)
	require.Equal(t, 5*time.Second, configuration.OracleInterval)
}

func TestLoadDotEnv(t *testing.T) {
	unsetAfter(t, "RAFFLE_OPERATOR", "RAFFLE_WINNER_PCT", "RAFFLE_CREATOR_PCT", "RAFFLE_LOG_LEVEL")

	file := filepath.Join(t.TempDir(), ".env")
	content := "RAFFLE_OPERATOR=dev-wallet\nRAFFLE_WINNER_PCT=90\nRAFFLE_CREATOR_PCT=0\nRAFFLE_LOG_LEVEL=debug\n"
	require.NoError(t, os.WriteFile(file, []byte(content), 0o600))

	configuration, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, "dev-wallet", configuration.Operator)
	require.Equal(t, uint64(90), configuration.WinnerPct)
	require.Equal(t, uint64(0), configuration.CreatorPct)
	require.Equal(t, "debug", configuration.Logger().Level)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("RAFFLE_WINNER_PCT", "lots")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}

func TestLoadRejectsNonPositiveInterval(t *testing.T) {
	t.Setenv("RAFFLE_ORACLE_INTERVAL", "-1s")
	_, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.Error(t, err)
}
