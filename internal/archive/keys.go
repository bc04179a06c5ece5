package archive

import (
	"github.com/rzbill/flare/pkg/id"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - archive/e/{id16}
//
// The 16-byte ID embeds the receive time in its leading 8 bytes, so key
// order is arrival order and age-based trims can stop at the first
// entry newer than the cutoff.

var entryPrefix = []byte("archive/e/")

// KeyEntry builds the entry key for an ID.
func KeyEntry(rid id.ID) []byte {
	k := make([]byte, 0, len(entryPrefix)+16)
	k = append(k, entryPrefix...)
	k = append(k, rid[:]...)
	return k
}

// entryBounds returns the [low, high) iteration bounds for all entries.
func entryBounds() (low, high []byte) {
	low = KeyEntry(id.ID{})
	var maxID id.ID
	for i := range maxID {
		maxID[i] = 0xff
	}
	high = append(KeyEntry(maxID), 0x00)
	return low, high
}

// idFromKey recovers the entry ID from a full key.
func idFromKey(key []byte) (id.ID, bool) {
	if len(key) != len(entryPrefix)+16 {
		return id.ID{}, false
	}
	rid, err := id.FromBytes(key[len(entryPrefix):])
	if err != nil {
		return id.ID{}, false
	}
	return rid, true
}
