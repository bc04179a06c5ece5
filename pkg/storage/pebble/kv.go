package pebblestore

import (
	"errors"

	"github.com/cockroachdb/pebble"

	"github.com/rzbill/flare/pkg/storage"
)

// kvPrefix keeps the key-value keyspace apart from archive records when both
// share one DB.
const kvPrefix = "kv/"

// KV adapts a DB to the storage.Store interface. The pipeline persists its
// spool and stable identity through this adapter.
type KV struct {
	db *DB
}

// NewKV wraps db as a storage.Store.
func NewKV(db *DB) *KV {
	return &KV{db: db}
}

// Get implements storage.Store.
func (k *KV) Get(key string) (string, bool) {
	val, err := k.db.Get(k.key(key))
	if err != nil {
		return "", false
	}
	return string(val), true
}

// Set implements storage.Store.
func (k *KV) Set(key, value string) error {
	return k.db.Set(k.key(key), []byte(value))
}

// Remove implements storage.Store.
func (k *KV) Remove(key string) error {
	err := k.db.Delete(k.key(key))
	if err != nil && errors.Is(err, pebble.ErrNotFound) {
		return nil
	}
	return err
}

func (k *KV) key(key string) []byte {
	b := make([]byte, 0, len(kvPrefix)+len(key))
	b = append(b, kvPrefix...)
	return append(b, key...)
}

var _ storage.Store = (*KV)(nil)
