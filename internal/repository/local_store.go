package repository

import (
	"encoding/json"
	"time"

	"medicapp-sync/internal/domain"

	bolt "go.etcd.io/bbolt"
)

// LocalStore is the durable client-side replica: cached patients and
// pre-hospital records plus the pending-operation queue. Everything survives
// a process restart; nothing here touches the network.
type LocalStore interface {
	GetAllPatients() ([]*domain.PatientRecord, error)
	GetPatientByID(id string) (*domain.PatientRecord, error)
	SavePatient(record *domain.PatientRecord) error
	DeletePatient(id string) error
	ReplaceAllPatients(records []*domain.PatientRecord) error
	RekeyPatient(oldID string, record *domain.PatientRecord) error

	GetAllRecords() ([]*domain.PrehospitalRecord, error)
	GetRecordByID(id string) (*domain.PrehospitalRecord, error)
	GetRecordsByPatient(patientID string) ([]*domain.PrehospitalRecord, error)
	SaveRecord(record *domain.PrehospitalRecord) error
	DeleteRecord(id string) error
	ReplaceAllRecords(records []*domain.PrehospitalRecord) error

	AddToSyncQueue(op *domain.PendingOperation) error
	GetSyncQueue() ([]*domain.PendingOperation, error)
	RemoveSyncQueueItem(id string) error
	RetargetSyncQueue(oldID, newID string) error
	ClearSyncQueue() error

	Close() error
}

// Store is the full embedded store: the replica plus the session namespace.
// The two concerns share one file but separate buckets.
type Store interface {
	LocalStore
	SessionStore
}

var (
	bucketPatients  = []byte("patients")
	bucketRecords   = []byte("records")
	bucketSyncQueue = []byte("sync_queue")
	bucketSession   = []byte("session")
)

type boltStore struct {
	db *bolt.DB
}

// OpenLocalStore opens (or creates) the single-file embedded store and
// ensures every bucket exists.
func OpenLocalStore(path string) (Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketPatients, bucketRecords, bucketSyncQueue, bucketSession} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, &StorageError{Op: "init", Err: err}
	}

	return &boltStore{db: db}, nil
}

func (s *boltStore) Close() error {
	return s.db.Close()
}

func (s *boltStore) GetAllPatients() ([]*domain.PatientRecord, error) {
	var patients []*domain.PatientRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPatients).ForEach(func(_, v []byte) error {
			var p domain.PatientRecord
			if err := json.Unmarshal(v, &p); err != nil {
				return err
			}
			patients = append(patients, &p)
			return nil
		})
	})
	if err != nil {
		return nil, &StorageError{Op: "list patients", Err: err}
	}

	return patients, nil
}

func (s *boltStore) GetPatientByID(id string) (*domain.PatientRecord, error) {
	var patient *domain.PatientRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPatients).Get([]byte(id))
		if v == nil {
			return nil
		}
		var p domain.PatientRecord
		if err := json.Unmarshal(v, &p); err != nil {
			return err
		}
		patient = &p
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "get patient", Err: err}
	}

	return patient, nil
}

func (s *boltStore) SavePatient(record *domain.PatientRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		v, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketPatients).Put([]byte(record.ID), v)
	})
	if err != nil {
		return &StorageError{Op: "save patient", Err: err}
	}
	return nil
}

func (s *boltStore) DeletePatient(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPatients).Delete([]byte(id))
	})
	if err != nil {
		return &StorageError{Op: "delete patient", Err: err}
	}
	return nil
}

// ReplaceAllPatients swaps the whole replica for a fresh remote snapshot.
// Runs in one write transaction, so readers never observe the cleared
// intermediate state.
func (s *boltStore) ReplaceAllPatients(records []*domain.PatientRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketPatients); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketPatients)
		if err != nil {
			return err
		}
		for _, p := range records {
			v, err := json.Marshal(p)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(p.ID), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "replace patients", Err: err}
	}
	return nil
}

// RekeyPatient reconciles a temp id with the server-assigned one. The delete
// and reinsert share a transaction so no reader sees both copies or neither.
func (s *boltStore) RekeyPatient(oldID string, record *domain.PatientRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketPatients)
		if err := b.Delete([]byte(oldID)); err != nil {
			return err
		}
		v, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.ID), v)
	})
	if err != nil {
		return &StorageError{Op: "rekey patient", Err: err}
	}
	return nil
}

func (s *boltStore) GetAllRecords() ([]*domain.PrehospitalRecord, error) {
	var records []*domain.PrehospitalRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).ForEach(func(_, v []byte) error {
			var r domain.PrehospitalRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			records = append(records, &r)
			return nil
		})
	})
	if err != nil {
		return nil, &StorageError{Op: "list records", Err: err}
	}

	return records, nil
}

func (s *boltStore) GetRecordByID(id string) (*domain.PrehospitalRecord, error) {
	var record *domain.PrehospitalRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRecords).Get([]byte(id))
		if v == nil {
			return nil
		}
		var r domain.PrehospitalRecord
		if err := json.Unmarshal(v, &r); err != nil {
			return err
		}
		record = &r
		return nil
	})
	if err != nil {
		return nil, &StorageError{Op: "get record", Err: err}
	}

	return record, nil
}

func (s *boltStore) GetRecordsByPatient(patientID string) ([]*domain.PrehospitalRecord, error) {
	all, err := s.GetAllRecords()
	if err != nil {
		return nil, err
	}

	var records []*domain.PrehospitalRecord
	for _, r := range all {
		if r.PatientID == patientID {
			records = append(records, r)
		}
	}
	return records, nil
}

func (s *boltStore) SaveRecord(record *domain.PrehospitalRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		v, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRecords).Put([]byte(record.ID), v)
	})
	if err != nil {
		return &StorageError{Op: "save record", Err: err}
	}
	return nil
}

func (s *boltStore) DeleteRecord(id string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete([]byte(id))
	})
	if err != nil {
		return &StorageError{Op: "delete record", Err: err}
	}
	return nil
}

func (s *boltStore) ReplaceAllRecords(records []*domain.PrehospitalRecord) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketRecords); err != nil {
			return err
		}
		b, err := tx.CreateBucket(bucketRecords)
		if err != nil {
			return err
		}
		for _, r := range records {
			v, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(r.ID), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return &StorageError{Op: "replace records", Err: err}
	}
	return nil
}
