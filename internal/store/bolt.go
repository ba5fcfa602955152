package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// OpenBolt opens (creating if needed) the database file at path.
func OpenBolt(path string) (*bolt.DB, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return db, nil
}

// BoltBucket keeps a collection in one bucket, one JSON value per record
// key. SaveAll drops and refills the bucket inside a single transaction.
type BoltBucket[T Record] struct {
	db     *bolt.DB
	bucket []byte
}

// NewBoltBucket returns a collection stored in the named bucket of db.
func NewBoltBucket[T Record](db *bolt.DB, bucket string) *BoltBucket[T] {
	return &BoltBucket[T]{db: db, bucket: []byte(bucket)}
}

// Load returns every record in key order. A missing bucket is empty.
func (b *BoltBucket[T]) Load() ([]T, error) {
	var out []T
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return nil
		}
		return bk.ForEach(func(k, v []byte) error {
			var rec T
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode %s/%s: %w", b.bucket, k, err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveAll replaces the bucket contents with records.
func (b *BoltBucket[T]) SaveAll(records []T) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(b.bucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("clear %s: %w", b.bucket, err)
		}
		bk, err := tx.CreateBucket(b.bucket)
		if err != nil {
			return fmt.Errorf("create %s: %w", b.bucket, err)
		}
		for _, rec := range records {
			v, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", b.bucket, rec.RecordKey(), err)
			}
			if err := bk.Put([]byte(rec.RecordKey()), v); err != nil {
				return fmt.Errorf("put %s/%s: %w", b.bucket, rec.RecordKey(), err)
			}
		}
		return nil
	})
}
