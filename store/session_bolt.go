package store

import (
	"context"
	"encoding/json"
	"time"

	"sysrev/types"

	"go.etcd.io/bbolt"
)

var bucketSessions = []byte("sessions")

// BoltSessionStore is the durable session backend: sessions survive a
// process restart, so previously built indexes stay reachable.
type BoltSessionStore struct {
	db *bbolt.DB
}

func NewBoltSessionStore(path string) (*BoltSessionStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessions)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltSessionStore{db: db}, nil
}

func (s *BoltSessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	var session types.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketSessions).Get([]byte(id))
		if data == nil {
			return ErrSessionNotFound
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *BoltSessionStore) Put(ctx context.Context, session types.Session) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(session)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSessions).Put([]byte(session.ID), data)
	})
}

func (s *BoltSessionStore) Close() error {
	return s.db.Close()
}
