package diag

import (
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/blake2b"
)

var (
	errShortMBR = errors.New("diag: MBR sector shorter than 512 bytes")
	errShortBPB = errors.New("diag: BPB prefix shorter than 64 bytes")
)

// Fingerprint identifies a specific drive+partition by content rather than
// by any OS-assigned device path, so the history cache survives the same
// drive being re-plugged into a different port. Per §3's data model: a
// BLAKE2b-256 digest of the 512-byte MBR sector concatenated with the first
// 64 bytes of the mounted partition's BPB. Cache key only — never used for
// any access-control or security decision.
type Fingerprint [blake2b.Size256]byte

// String renders the fingerprint as lowercase hex, suitable as a bbolt key.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ComputeFingerprint hashes mbrSector (the 512-byte boot sector at LBA 0)
// concatenated with the first 64 bytes of bpbPrefix (the mounted
// partition's boot sector). Returns an error only if either input is
// shorter than required, since a short read here means the caller read the
// wrong thing, not that fingerprinting itself failed.
func ComputeFingerprint(mbrSector, bpbPrefix []byte) (Fingerprint, error) {
	if len(mbrSector) < 512 {
		return Fingerprint{}, errShortMBR
	}
	if len(bpbPrefix) < 64 {
		return Fingerprint{}, errShortBPB
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return Fingerprint{}, err
	}
	h.Write(mbrSector[:512])
	h.Write(bpbPrefix[:64])

	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out, nil
}
