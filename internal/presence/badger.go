package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerRegistry is an embedded alternative to RedisRegistry for
// single-node deployments.
type BadgerRegistry struct {
	db     *badger.DB
	prefix string
	ttl    time.Duration
}

// NewBadgerRegistry creates a registry on an opened Badger database.
func NewBadgerRegistry(db *badger.DB, prefix string, ttl time.Duration) *BadgerRegistry {
	return &BadgerRegistry{db: db, prefix: prefix, ttl: ttl}
}

func (b *BadgerRegistry) key(connectionID string) []byte {
	return []byte(b.prefix + connectionID)
}

// Put records that connectionID belongs to userID.
func (b *BadgerRegistry) Put(ctx context.Context, connectionID, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(b.key(connectionID), []byte(userID))
		if b.ttl > 0 {
			entry = entry.WithTTL(b.ttl)
		}
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("presence put error: %w", err)
	}
	return nil
}

// Get returns the user registered for connectionID, or ErrNotFound.
func (b *BadgerRegistry) Get(ctx context.Context, connectionID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var userID []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(connectionID))
		if err != nil {
			return err
		}
		userID, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("presence get error: %w", err)
	}
	return string(userID), nil
}

// Delete removes the entry for connectionID. Deleting a missing entry is not an error.
func (b *BadgerRegistry) Delete(ctx context.Context, connectionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(connectionID))
	})
	if err != nil {
		return fmt.Errorf("presence delete error: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (b *BadgerRegistry) Close() error {
	return b.db.Close()
}
