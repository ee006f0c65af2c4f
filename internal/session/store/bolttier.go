package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/darceymckelvey/codestrata-auth/internal/session/domain"
	"github.com/darceymckelvey/codestrata-auth/pkg/cryptox"
	"go.etcd.io/bbolt"
)

var (
	credBucket  = []byte("credentials")
	probeBucket = []byte("probe")
	credKey     = []byte("current")
)

// BoltTier is the long-lived tier: a bbolt database that survives restarts.
// Values are sealed before they hit disk, so a copied database file leaks
// nothing without the master key.
type BoltTier struct {
	db *bbolt.DB
}

// NewBoltTier opens (creating if needed) the bbolt database at path. The
// open timeout keeps a second process from blocking forever on the file
// lock.
func NewBoltTier(path string) (*BoltTier, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening token db: %w", err)
	}
	return &BoltTier{db: db}, nil
}

func (t *BoltTier) Name() string { return "bolt" }

func (t *BoltTier) Close() error { return t.db.Close() }

func (t *BoltTier) Read() (*domain.Credential, error) {
	var sealed []byte
	err := t.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credBucket)
		if b == nil {
			return nil
		}
		if v := b.Get(credKey); v != nil {
			sealed = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bolt tier read: %w", err)
	}
	if sealed == nil {
		return nil, nil
	}

	plain, err := cryptox.Open(sealed)
	if err != nil {
		return nil, fmt.Errorf("bolt tier unseal: %w", err)
	}

	var cred domain.Credential
	if err := json.Unmarshal(plain, &cred); err != nil {
		return nil, fmt.Errorf("bolt tier decode: %w", err)
	}
	if cred.IsZero() {
		return nil, nil
	}
	return &cred, nil
}

func (t *BoltTier) Write(cred domain.Credential) error {
	plain, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("bolt tier encode: %w", err)
	}
	sealed, err := cryptox.Seal(plain)
	if err != nil {
		return fmt.Errorf("bolt tier seal: %w", err)
	}

	return t.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(credBucket)
		if err != nil {
			return err
		}
		return b.Put(credKey, sealed)
	})
}

func (t *BoltTier) Clear() error {
	return t.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(credBucket)
		if b == nil {
			return nil
		}
		return b.Delete(credKey)
	})
}

func (t *BoltTier) Probe() error {
	return t.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(probeBucket)
		if err != nil {
			return err
		}
		if err := b.Put([]byte("probe"), []byte("ok")); err != nil {
			return err
		}
		return b.Delete([]byte("probe"))
	})
}
