// Package kv provides a small key-value store interface with hierarchical
// path keys. Keys are slices of segments (e.g., Key{"calls", "ae0…"})
// joined with '/' in storage, so prefix listing follows the path
// hierarchy.
//
// Two implementations ship: a BadgerDB store for the service and an
// in-memory store for tests and the simulator.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key does not exist in the store.
var ErrNotFound = errors.New("kv: not found")

// Separator joins key segments in storage. Segments must not contain it.
const Separator = '/'

// Key is a hierarchical path represented as a slice of segments.
type Key []string

// String returns the encoded form of the key.
func (k Key) String() string {
	return strings.Join(k, string(Separator))
}

func encode(k Key) []byte {
	return []byte(k.String())
}

func decode(b []byte) Key {
	if len(b) == 0 {
		return nil
	}
	return Key(strings.Split(string(b), string(Separator)))
}

// Entry is a key-value pair yielded by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if absent.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key Key) error

	// List iterates entries under the given key prefix in lexicographic
	// order of the encoded key. An empty prefix lists the whole store.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// Close releases store resources.
	Close() error
}

// prefixBytes encodes a listing prefix, appending the separator so that
// prefix "a/b" does not match key "a/bc".
func prefixBytes(prefix Key) []byte {
	if len(prefix) == 0 {
		return nil
	}
	return append(encode(prefix), Separator)
}
