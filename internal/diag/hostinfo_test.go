package diag

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTakeHostSnapshotPopulatesGoVersion(t *testing.T) {
	snap := TakeHostSnapshot()
	require.Equal(t, runtime.Version(), snap.GoVersion)
}

func TestHostSnapshotSummaryFormat(t *testing.T) {
	snap := HostSnapshot{CPUPercent: 12.345, MemUsedPercent: 67.891, GoVersion: "go1.21"}
	require.Equal(t, "CPU: 12.3% | RAM: 67.9% | Go: go1.21", snap.Summary())
}
