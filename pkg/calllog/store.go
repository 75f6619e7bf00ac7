// Package calllog persists one record per call in a key-value store.
package calllog

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/ringlet-ai/ringlet/pkg/kv"
)

// ErrNotFound is returned when no record matches the requested id.
var ErrNotFound = errors.New("calllog: record not found")

const keyspace = "calls"

// Store reads and writes call records.
//
// Records are keyed by inverted start time, so the KV store's ascending
// scan yields the newest call first.
type Store struct {
	store kv.Store
}

// NewStore wraps a kv.Store.
func NewStore(store kv.Store) *Store {
	return &Store{store: store}
}

// recordKey is calls/<MaxInt64-startedUnixNano>/<id>. The timestamp
// component is zero-padded so lexicographic order matches numeric order.
func recordKey(r *Record) kv.Key {
	return kv.Key{keyspace, invertedStamp(r.StartedAt), r.ID}
}

func invertedStamp(t time.Time) string {
	return fmt.Sprintf("%020d", math.MaxInt64-t.UnixNano())
}

// Put stores or overwrites a record.
func (s *Store) Put(ctx context.Context, r *Record) error {
	if r.ID == "" {
		return errors.New("calllog: record has no id")
	}
	if r.StartedAt.IsZero() {
		return errors.New("calllog: record has no start time")
	}
	data, err := msgpack.Marshal(r)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, recordKey(r), data)
}

// Get retrieves a record by full id or unique id prefix.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rec, _, err := s.resolve(ctx, id)
	return rec, err
}

// Delete removes the record matching the id or unique id prefix.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, key, err := s.resolve(ctx, id)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, key)
}

// List iterates all records, newest call first. Entries that fail to
// decode are skipped.
func (s *Store) List(ctx context.Context) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for entry, err := range s.store.List(ctx, kv.Key{keyspace}) {
			if err != nil {
				yield(nil, err)
				return
			}
			var rec Record
			if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
				continue
			}
			if !yield(&rec, nil) {
				return
			}
		}
	}
}

// resolve finds a record by id. Keys are time-based, so this scans the
// keyspace; call logs are small enough for that. An exact id match wins
// outright, a prefix match must be unique.
func (s *Store) resolve(ctx context.Context, id string) (*Record, kv.Key, error) {
	if id == "" {
		return nil, nil, ErrNotFound
	}
	var (
		match    *Record
		matchKey kv.Key
	)
	for entry, err := range s.store.List(ctx, kv.Key{keyspace}) {
		if err != nil {
			return nil, nil, err
		}
		var rec Record
		if err := msgpack.Unmarshal(entry.Value, &rec); err != nil {
			continue
		}
		if rec.ID == id {
			return &rec, entry.Key, nil
		}
		if strings.HasPrefix(rec.ID, id) {
			if match != nil {
				return nil, nil, fmt.Errorf("calllog: id prefix %q is ambiguous", id)
			}
			match = &rec
			matchKey = entry.Key
		}
	}
	if match == nil {
		return nil, nil, ErrNotFound
	}
	return match, matchKey, nil
}
