package repository

import (
	"encoding/json"

	"medicapp-sync/internal/domain"

	bolt "go.etcd.io/bbolt"
)

// SessionStore persists the single logical session. Two keys live in the
// session bucket: the full envelope and a denormalized user copy for fast
// reads. They are written and cleared together so they cannot desync.
type SessionStore interface {
	SaveSession(session *domain.Session) error
	LoadSession() (*domain.Session, error)
	LoadSessionUser() (*domain.SessionUser, error)
	ClearSession() error
}

var (
	keySessionEnvelope = []byte("envelope")
	keySessionUser     = []byte("user")
)

func (s *boltStore) SaveSession(session *domain.Session) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)

		env, err := json.Marshal(session)
		if err != nil {
			return err
		}
		if err := b.Put(keySessionEnvelope, env); err != nil {
			return err
		}

		user, err := json.Marshal(session.User)
		if err != nil {
			return err
		}
		return b.Put(keySessionUser, user)
	})
	if err != nil {
		return &StorageError{Op: "save session", Err: err}
	}
	return nil
}

// LoadSession returns nil when no session is persisted. Unreadable state
// comes back as ErrSessionCorrupt so callers can degrade to logged-out.
func (s *boltStore) LoadSession() (*domain.Session, error) {
	var session *domain.Session

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSession).Get(keySessionEnvelope)
		if v == nil {
			return nil
		}
		var sess domain.Session
		if err := json.Unmarshal(v, &sess); err != nil {
			return ErrSessionCorrupt
		}
		if sess.Token == "" || sess.ExpiresAt.IsZero() {
			return ErrSessionCorrupt
		}
		session = &sess
		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

func (s *boltStore) LoadSessionUser() (*domain.SessionUser, error) {
	var user *domain.SessionUser

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSession).Get(keySessionUser)
		if v == nil {
			return nil
		}
		var u domain.SessionUser
		if err := json.Unmarshal(v, &u); err != nil {
			return ErrSessionCorrupt
		}
		user = &u
		return nil
	})
	if err != nil {
		return nil, err
	}

	return user, nil
}

func (s *boltStore) ClearSession() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSession)
		if err := b.Delete(keySessionEnvelope); err != nil {
			return err
		}
		return b.Delete(keySessionUser)
	})
	if err != nil {
		return &StorageError{Op: "clear session", Err: err}
	}
	return nil
}
