package session

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("credential")
var docKey = []byte("current")

// BoltStore persists the credential document in a single-bucket bbolt
// file (§6 "Credential document: opaque JSON... stored at a
// configured path with user-only permissions"). bbolt gives atomic,
// lock-free reads and writes without reimplementing temp+rename.
type BoltStore struct {
	path string
}

// NewBoltStore opens (creating if absent) the bbolt file at path with
// user-only permissions.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open credential store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init credential bucket: %w", err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("close after init: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return nil, fmt.Errorf("chmod credential store: %w", err)
	}
	return &BoltStore{path: path}, nil
}

// Save writes cred atomically into the bucket.
func (s *BoltStore) Save(cred Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}

	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}
	defer db.Close()

	return db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put(docKey, data)
	})
}

// Load reads the persisted credential, if any.
func (s *BoltStore) Load() (Credential, bool, error) {
	db, err := bolt.Open(s.path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, false, fmt.Errorf("open credential store: %w", err)
	}
	defer db.Close()

	var cred Credential
	found := false
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		data := b.Get(docKey)
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &cred)
	})
	if err != nil {
		return nil, false, fmt.Errorf("read credential: %w", err)
	}
	return cred, found, nil
}
