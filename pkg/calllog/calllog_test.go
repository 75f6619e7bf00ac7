package calllog

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/ringlet-ai/ringlet/pkg/kv"
	"github.com/ringlet-ai/ringlet/pkg/summary"
)

func TestStorePutGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemory())

	rec := NewRecord("MZ1", "CA1", "+12024561111")
	rec.Transcript = []Turn{{Role: "caller", Text: "hello", At: rec.StartedAt}}
	rec.Summary = &summary.CallSummary{Synopsis: "caller said hello"}
	rec.AddTool("get_weather", nil)
	rec.AddTool("lookup_order", errors.New("order not found"))
	rec.Finish(rec.StartedAt.Add(90 * time.Second))
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CallID != "CA1" || got.Caller != "+12024561111" {
		t.Fatalf("record = %+v", got)
	}
	if got.Duration.Duration() != 90*time.Second {
		t.Fatalf("duration = %v", got.Duration)
	}
	if len(got.Tools) != 2 || got.Tools[0].Error != "" || got.Tools[1].Error != "order not found" {
		t.Fatalf("tools = %+v", got.Tools)
	}
	if got.Summary == nil || got.Summary.Synopsis != "caller said hello" {
		t.Fatalf("summary = %+v", got.Summary)
	}
	if len(got.Transcript) != 1 || got.Transcript[0].Text != "hello" {
		t.Fatalf("transcript = %+v", got.Transcript)
	}

	byPrefix, err := s.Get(ctx, rec.ID[:8])
	if err != nil || byPrefix.ID != rec.ID {
		t.Fatalf("prefix get = %+v, %v", byPrefix, err)
	}

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing get err = %v", err)
	}
}

func TestStoreAmbiguousPrefix(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemory())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"abc-one", "abc-two"} {
		rec := &Record{ID: id, StreamID: "MZ", CallID: "CA", StartedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	if _, err := s.Get(ctx, "abc"); err == nil || !strings.Contains(err.Error(), "ambiguous") {
		t.Fatalf("err = %v", err)
	}
	got, err := s.Get(ctx, "abc-t")
	if err != nil || got.ID != "abc-two" {
		t.Fatalf("got = %+v, %v", got, err)
	}
	exact, err := s.Get(ctx, "abc-one")
	if err != nil || exact.ID != "abc-one" {
		t.Fatalf("exact = %+v, %v", exact, err)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemory())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		rec := &Record{ID: id, StreamID: "MZ", CallID: "CA", StartedAt: base.Add(time.Duration(i) * time.Hour)}
		if err := s.Put(ctx, rec); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	var got []string
	for rec, err := range s.List(ctx) {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		got = append(got, rec.ID)
	}
	if want := []string{"third", "second", "first"}; !slices.Equal(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestStoreListSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	s := NewStore(mem)

	rec := &Record{ID: "good", StreamID: "MZ", CallID: "CA", StartedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	if err := s.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := mem.Set(ctx, kv.Key{keyspace, "00000000000000000000", "junk"}, []byte("not msgpack")); err != nil {
		t.Fatalf("set: %v", err)
	}

	var ids []string
	for r, err := range s.List(ctx) {
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		ids = append(ids, r.ID)
	}
	if !slices.Equal(ids, []string{"good"}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kv.NewMemory())

	keep := NewRecord("MZ1", "CA1", "+12024561111")
	drop := NewRecord("MZ2", "CA2", "+12024561212")
	for _, r := range []*Record{keep, drop} {
		if err := s.Put(ctx, r); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	if err := s.Delete(ctx, drop.ID[:8]); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, drop.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted get err = %v", err)
	}
	if _, err := s.Get(ctx, keep.ID); err != nil {
		t.Fatalf("kept get err = %v", err)
	}
	if err := s.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing delete err = %v", err)
	}
}

func TestRecordFinish(t *testing.T) {
	rec := NewRecord("MZ1", "CA1", "+12024561111")
	if rec.ID == "" || rec.StartedAt.IsZero() {
		t.Fatalf("record = %+v", rec)
	}
	end := rec.StartedAt.Add(2*time.Minute + 5*time.Second)
	rec.Finish(end)
	if rec.Duration.Duration() != 2*time.Minute+5*time.Second {
		t.Fatalf("duration = %v", rec.Duration)
	}
	if !rec.EndedAt.Equal(end) {
		t.Fatalf("ended = %v", rec.EndedAt)
	}
}
