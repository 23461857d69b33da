package diag

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var driveHistoryBucket = []byte("DriveHistory")

// DriveRecord is what the history cache remembers about a previously
// mounted drive, keyed by its Fingerprint.
type DriveRecord struct {
	PartitionType string    `json:"partition_type"`
	BlockSize     uint32    `json:"block_size"`
	TotalClusters uint32    `json:"total_clusters"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastMountedAt time.Time `json:"last_mounted_at"`
	MountCount    int       `json:"mount_count"`
}

// History is a bbolt-backed cache of DriveRecords keyed by Fingerprint.
// Grounded on pipeline/1_DATA_MINER/internal/checkpoint/checkpoint.go's
// Checkpointer: open-or-create bucket at construction, one bucket, JSON
// values, View/Update per operation.
type History struct {
	db *bbolt.DB
}

// OpenHistory opens (creating if necessary) a bbolt database at path.
func OpenHistory(path string) (*History, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("diag: open history database: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(driveHistoryBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("diag: create history bucket: %w", err)
	}
	return &History{db: db}, nil
}

// Close closes the underlying database.
func (h *History) Close() error {
	return h.db.Close()
}

// Lookup returns the record for fp, if one exists.
func (h *History) Lookup(fp Fingerprint) (DriveRecord, bool, error) {
	var rec DriveRecord
	var found bool
	err := h.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(driveHistoryBucket)
		v := b.Get([]byte(fp.String()))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	return rec, found, err
}

// RecordMount inserts or updates fp's record: bumps MountCount, sets
// LastMountedAt to now, and fills in partitionType/blockSize/totalClusters
// and FirstSeenAt on first sight.
func (h *History) RecordMount(fp Fingerprint, partitionType string, blockSize, totalClusters uint32, now time.Time) error {
	return h.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(driveHistoryBucket)
		key := []byte(fp.String())

		var rec DriveRecord
		if existing := b.Get(key); existing != nil {
			if err := json.Unmarshal(existing, &rec); err != nil {
				return fmt.Errorf("diag: decode existing history record: %w", err)
			}
		} else {
			rec.FirstSeenAt = now
		}
		rec.PartitionType = partitionType
		rec.BlockSize = blockSize
		rec.TotalClusters = totalClusters
		rec.LastMountedAt = now
		rec.MountCount++

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("diag: encode history record: %w", err)
		}
		return b.Put(key, data)
	})
}

// All returns every known drive's fingerprint hex string and record.
func (h *History) All() (map[string]DriveRecord, error) {
	out := make(map[string]DriveRecord)
	err := h.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(driveHistoryBucket)
		return b.ForEach(func(k, v []byte) error {
			var rec DriveRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out[string(k)] = rec
			return nil
		})
	})
	return out, err
}
