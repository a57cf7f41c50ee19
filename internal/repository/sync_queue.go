package repository

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"medicapp-sync/internal/domain"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// Queue entries are keyed by the bucket's monotonic sequence number, so a
// cursor walk returns them in insertion order. That order is the replay
// order: a delete replayed before its preceding update corrupts the record.

// AddToSyncQueue appends one deferred mutation. The entry gets its unique id
// and enqueue timestamp here, not at the call site.
func (s *boltStore) AddToSyncQueue(op *domain.PendingOperation) error {
	if op.ID == "" {
		op.ID = uuid.New().String()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now()
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncQueue)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		v, err := json.Marshal(op)
		if err != nil {
			return err
		}
		return b.Put(queueKey(seq), v)
	})
	if err != nil {
		return &StorageError{Op: "enqueue", Err: err}
	}
	return nil
}

// GetSyncQueue returns every pending operation in insertion (replay) order.
func (s *boltStore) GetSyncQueue() ([]*domain.PendingOperation, error) {
	var ops []*domain.PendingOperation

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSyncQueue).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var op domain.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return err
			}
			ops = append(ops, &op)
		}
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "read queue", Err: err}
	}

	return ops, nil
}

// RemoveSyncQueueItem drops one entry after its remote apply was confirmed.
func (s *boltStore) RemoveSyncQueueItem(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncQueue)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var op domain.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return err
			}
			if op.ID == id {
				return c.Delete()
			}
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "remove queue item", Err: err}
	}
	return nil
}

// RetargetSyncQueue rewrites the target id of every queued operation aimed at
// oldID. Runs when a queued create is assigned its server id, so operations
// queued behind it keep a resolvable target even if they fail this drain and
// are replayed by a later one. Keys are untouched, so replay order holds.
func (s *boltStore) RetargetSyncQueue(oldID, newID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSyncQueue)

		// Writing to a bucket mid-iteration invalidates its cursor, so
		// collect first, rewrite after.
		updates := make(map[string][]byte)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var op domain.PendingOperation
			if err := json.Unmarshal(v, &op); err != nil {
				return err
			}
			if op.TargetID != oldID {
				continue
			}
			op.TargetID = newID
			updated, err := json.Marshal(&op)
			if err != nil {
				return err
			}
			updates[string(k)] = updated
		}

		for k, v := range updates {
			if err := b.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "retarget queue", Err: err}
	}
	return nil
}

// ClearSyncQueue empties the queue. Recovery and tests only; the normal flow
// removes entries one by one as they are confirmed.
func (s *boltStore) ClearSyncQueue() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketSyncQueue); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketSyncQueue)
		return err
	})
	if err != nil {
		return &StorageError{Op: "clear queue", Err: err}
	}
	return nil
}

func queueKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
