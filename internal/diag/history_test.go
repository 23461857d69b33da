package diag

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	h, err := OpenHistory(path)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestLookupMissingRecordReturnsNotFound(t *testing.T) {
	h := openTestHistory(t)
	var fp Fingerprint
	fp[0] = 0xAB

	_, found, err := h.Lookup(fp)
	require.NoError(t, err)
	require.False(t, found)
}

func TestRecordMountInsertsThenUpdates(t *testing.T) {
	h := openTestHistory(t)
	var fp Fingerprint
	fp[0] = 0xCD

	first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, h.RecordMount(fp, "FAT32", 512, 65536, first))

	rec, found, err := h.Lookup(fp)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "FAT32", rec.PartitionType)
	require.Equal(t, uint32(512), rec.BlockSize)
	require.Equal(t, uint32(65536), rec.TotalClusters)
	require.Equal(t, 1, rec.MountCount)
	require.True(t, rec.FirstSeenAt.Equal(first))
	require.True(t, rec.LastMountedAt.Equal(first))

	second := first.Add(24 * time.Hour)
	require.NoError(t, h.RecordMount(fp, "FAT32", 512, 65536, second))

	rec, found, err = h.Lookup(fp)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, rec.MountCount)
	require.True(t, rec.FirstSeenAt.Equal(first), "FirstSeenAt must not change on subsequent mounts")
	require.True(t, rec.LastMountedAt.Equal(second))
}

func TestAllListsEveryRecord(t *testing.T) {
	h := openTestHistory(t)
	var fp1, fp2 Fingerprint
	fp1[0] = 1
	fp2[0] = 2
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, h.RecordMount(fp1, "FAT16", 512, 1000, now))
	require.NoError(t, h.RecordMount(fp2, "FAT32", 4096, 2000, now))

	all, err := h.All()
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Contains(t, all, fp1.String())
	require.Contains(t, all, fp2.String())
	require.Equal(t, "FAT16", all[fp1.String()].PartitionType)
}
