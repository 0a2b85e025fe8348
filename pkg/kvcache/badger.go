package kvcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerStore implements Store using BadgerDB for durable storage.
// Suitable for production use with persistence across restarts.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadger opens (or creates) a badger database at dir and wraps it
// in a BadgerStore. Badger's own logger is silenced; callers log at
// the call sites instead.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

// OpenBadgerInMemory opens a non-persistent badger database, used in tests.
func OpenBadgerInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Get returns the value stored under key, or ErrNotFound. Expired
// entries behave as absent.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get %s: %w", key, err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key with no expiry.
func (s *BadgerStore) Set(ctx context.Context, key string, value []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// SetTTL stores value under key, expiring after ttl.
func (s *BadgerStore) SetTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete([]byte(key))
		if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("delete %s: %w", key, err)
		}
		return nil
	})
}

// Close closes the underlying badger database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
