// Package storage defines the durable key-value substrate the event pipeline
// persists its spool and stable identity into.
//
// The substrate is synchronous and local: reads and writes are discrete steps
// that complete before the process is allowed to terminate on the shutdown
// path. Implementations live in the memory and pebble subpackages.
package storage

// Store is a synchronous, local key-value substrate.
type Store interface {
	// Get returns the value for key, or false when the key is absent or
	// unreadable.
	Get(key string) (string, bool)
	// Set stores value under key, overwriting any prior value.
	Set(key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}
