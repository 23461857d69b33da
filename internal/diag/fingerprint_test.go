package diag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeFingerprintDeterministic(t *testing.T) {
	mbr := make([]byte, 512)
	mbr[0] = 0xEB
	bpb := make([]byte, 64)
	bpb[0] = 0x55

	fp1, err := ComputeFingerprint(mbr, bpb)
	require.NoError(t, err)
	fp2, err := ComputeFingerprint(mbr, bpb)
	require.NoError(t, err)
	require.Equal(t, fp1, fp2)
	require.Len(t, fp1.String(), 64)
}

func TestComputeFingerprintDiffersOnInputChange(t *testing.T) {
	mbr := make([]byte, 512)
	bpb := make([]byte, 64)

	fp1, err := ComputeFingerprint(mbr, bpb)
	require.NoError(t, err)

	mbr[100] = 0x01
	fp2, err := ComputeFingerprint(mbr, bpb)
	require.NoError(t, err)

	require.NotEqual(t, fp1, fp2)
}

func TestComputeFingerprintRejectsShortInputs(t *testing.T) {
	_, err := ComputeFingerprint(make([]byte, 10), make([]byte, 64))
	require.ErrorIs(t, err, errShortMBR)

	_, err = ComputeFingerprint(make([]byte, 512), make([]byte, 10))
	require.ErrorIs(t, err, errShortBPB)
}
