package diag

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPopulatesAllFields(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 10*time.Second, cfg.DriveWaitTimeout)
	require.Equal(t, -1, cfg.DefaultPartitionIndex)
	require.Equal(t, ":8761", cfg.HTTPListenAddr)
	require.NotEmpty(t, cfg.HistoryPath)
}

func TestApplyEnvFileOverridesFields(t *testing.T) {
	cfg := DefaultConfig()
	content := "# comment\n" +
		"NX_FATDRIVE_DRIVE_WAIT_TIMEOUT_MS=2500\n" +
		"NX_FATDRIVE_DEFAULT_PARTITION_INDEX=2\n" +
		"NX_FATDRIVE_HTTP_LISTEN_ADDR=127.0.0.1:9000\n" +
		"\n" +
		"malformed-line-without-equals\n"
	applyEnvFile(content, &cfg)

	require.Equal(t, 2500*time.Millisecond, cfg.DriveWaitTimeout)
	require.Equal(t, 2, cfg.DefaultPartitionIndex)
	require.Equal(t, "127.0.0.1:9000", cfg.HTTPListenAddr)
}

func TestApplyEnvVarsOverridesFields(t *testing.T) {
	cfg := DefaultConfig()
	t.Setenv("NX_FATDRIVE_HISTORY_PATH", "/tmp/custom-history.db")
	t.Setenv("NX_FATDRIVE_DEFAULT_PARTITION_INDEX", "3")

	applyEnvVars(&cfg)

	require.Equal(t, "/tmp/custom-history.db", cfg.HistoryPath)
	require.Equal(t, 3, cfg.DefaultPartitionIndex)
}

func TestSetFieldIgnoresUnparsableNumbers(t *testing.T) {
	cfg := DefaultConfig()
	original := cfg.DriveWaitTimeout
	setField(&cfg, "NX_FATDRIVE_DRIVE_WAIT_TIMEOUT_MS", "not-a-number")
	require.Equal(t, original, cfg.DriveWaitTimeout)
}

func TestConfigSearchPathsOrdering(t *testing.T) {
	paths := ConfigSearchPaths()
	require.Len(t, paths, 3)
	require.Equal(t, "/etc/nx-fatdrive/config.json", paths[1])
	require.Equal(t, "./nx-fatdrive.json", paths[2])
	require.True(t, filepath.IsAbs(paths[1]))
}
