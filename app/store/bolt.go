package store

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	usersBktName = "users"
	prefsBktName = "preferences"
)

// Bolt is a storage that uses BoltDB as a backend. Users are keyed by
// email, preferences live in a nested per-user bucket keyed by topic, so
// a (user, topic) pair is unique by construction.
type Bolt struct {
	db *bolt.DB
}

// NewBolt creates new Bolt storage.
func NewBolt(dir string) (*Bolt, error) {
	db, err := bolt.Open(path.Join(dir, "prefeed.db"), 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to make boltdb for %s: %w", dir, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{usersBktName, prefsBktName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create top-level bucket %s: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("make buckets: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Create puts user to storage along with the initial set of topics, in a
// single transaction.
func (b *Bolt) Create(_ context.Context, u User, topics []string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(usersBktName))

		if bkt.Get([]byte(u.Email)) != nil {
			return fmt.Errorf("user %s: %w", u.Email, ErrAlreadyExists)
		}

		bts, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("marshal user: %w", err)
		}

		if err := bkt.Put([]byte(u.Email), bts); err != nil {
			return fmt.Errorf("put user to storage: %w", err)
		}

		if err := putTopics(tx, u.ID, topics); err != nil {
			return fmt.Errorf("put topics: %w", err)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("update storage: %w", err)
	}

	return nil
}

// GetByEmail returns user from storage.
func (b *Bolt) GetByEmail(_ context.Context, email string) (u User, err error) {
	err = b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(usersBktName))

		bts := bkt.Get([]byte(email))
		if bts == nil {
			return ErrNotFound
		}

		if err := json.Unmarshal(bts, &u); err != nil {
			return fmt.Errorf("unmarshal user: %w", err)
		}

		return nil
	})
	if err != nil {
		return User{}, fmt.Errorf("view storage: %w", err)
	}

	return u, nil
}

// ListPreferences returns the user's topics in bolt's key order, which is
// stable between calls.
func (b *Bolt) ListPreferences(_ context.Context, userID string) ([]string, error) {
	var result []string
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(prefsBktName)).Bucket([]byte(userID))
		if bkt == nil {
			return nil
		}

		err := bkt.ForEach(func(k, _ []byte) error {
			result = append(result, string(k))
			return nil
		})
		if err != nil {
			return fmt.Errorf("foreach: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("view storage: %w", err)
	}
	return result, nil
}

// UpsertPreferences adds topics to the user's preference set, already
// present topics are left untouched.
func (b *Bolt) UpsertPreferences(_ context.Context, userID string, topics []string) error {
	err := b.db.Update(func(tx *bolt.Tx) error {
		return putTopics(tx, userID, topics)
	})
	if err != nil {
		return fmt.Errorf("update storage: %w", err)
	}

	return nil
}

func putTopics(tx *bolt.Tx, userID string, topics []string) error {
	bkt, err := tx.Bucket([]byte(prefsBktName)).CreateBucketIfNotExists([]byte(userID))
	if err != nil {
		return fmt.Errorf("create user bucket: %w", err)
	}

	for _, topic := range topics {
		if bkt.Get([]byte(topic)) != nil {
			continue
		}

		ts, err := time.Now().UTC().MarshalBinary()
		if err != nil {
			return fmt.Errorf("marshal timestamp: %w", err)
		}

		if err := bkt.Put([]byte(topic), ts); err != nil {
			return fmt.Errorf("put topic %s: %w", topic, err)
		}
	}

	return nil
}

// Close closes the storage.
func (b *Bolt) Close() error { return b.db.Close() }
