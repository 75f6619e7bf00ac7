package recorder

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"slices"
	"strings"
	"testing"

	"github.com/ringlet-ai/ringlet/pkg/audio/wav"
	"github.com/ringlet-ai/ringlet/pkg/storage"
)

func newTestStore(t *testing.T) *storage.Dir {
	t.Helper()
	store, err := storage.NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("new dir store: %v", err)
	}
	return store
}

func readTrack(t *testing.T, store storage.FileStore, path string) *wav.File {
	t.Helper()
	rc, err := store.Read(context.Background(), path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	defer rc.Close()
	f, err := wav.Decode(rc)
	if err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return f
}

func TestRecorderTwoTracks(t *testing.T) {
	store := newTestStore(t)
	rec := New(store, "CA1")

	callerFrames := [][]byte{
		bytes.Repeat([]byte{0x7f}, 160),
		bytes.Repeat([]byte{0x00}, 160),
		bytes.Repeat([]byte{0xff}, 160),
	}
	for _, f := range callerFrames {
		rec.WriteCaller(f)
	}
	assistantChunk := bytes.Repeat([]byte{0x55}, 800)
	rec.WriteAssistant(assistantChunk)

	paths, err := rec.Close(context.Background())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	want := []string{"recordings/CA1/caller.wav", "recordings/CA1/assistant.wav"}
	if !slices.Equal(paths, want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}

	caller := readTrack(t, store, paths[0])
	if caller.Format != wav.FormatULaw || caller.SampleRate != 8000 || caller.Channels != 1 {
		t.Fatalf("caller format = %+v", caller)
	}
	if !bytes.Equal(caller.Data, bytes.Join(callerFrames, nil)) {
		t.Fatalf("caller data = %d bytes", len(caller.Data))
	}

	assistant := readTrack(t, store, paths[1])
	if !bytes.Equal(assistant.Data, assistantChunk) {
		t.Fatalf("assistant data = %d bytes", len(assistant.Data))
	}
}

func TestRecorderSkipsEmptyTrack(t *testing.T) {
	store := newTestStore(t)
	rec := New(store, "CA2")
	rec.WriteCaller(bytes.Repeat([]byte{0x10}, 160))

	paths, err := rec.Close(context.Background())
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if !slices.Equal(paths, []string{"recordings/CA2/caller.wav"}) {
		t.Fatalf("paths = %v", paths)
	}
	ok, err := store.Exists(context.Background(), "recordings/CA2/assistant.wav")
	if err != nil || ok {
		t.Fatalf("assistant exists = %v, %v", ok, err)
	}
}

func TestRecorderCloseIdempotent(t *testing.T) {
	rec := New(newTestStore(t), "CA3")
	rec.WriteAssistant([]byte{1, 2, 3})

	if _, err := rec.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	paths, err := rec.Close(context.Background())
	if paths != nil || err != nil {
		t.Fatalf("second close = %v, %v", paths, err)
	}

	// Late writes after close are dropped, not queued.
	rec.WriteCaller([]byte{9, 9, 9})
}

type failStore struct{}

func (failStore) Read(context.Context, string) (io.ReadCloser, error) {
	return nil, os.ErrNotExist
}

func (failStore) Write(context.Context, string) (io.WriteCloser, error) {
	return nil, errors.New("bucket unavailable")
}

func (failStore) Delete(context.Context, string) error { return nil }

func (failStore) Exists(context.Context, string) (bool, error) { return false, nil }

func TestRecorderUploadFailure(t *testing.T) {
	rec := New(failStore{}, "CA4")
	rec.WriteCaller(bytes.Repeat([]byte{0x20}, 160))

	paths, err := rec.Close(context.Background())
	if err == nil || !strings.Contains(err.Error(), "bucket unavailable") {
		t.Fatalf("err = %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("paths = %v", paths)
	}
}
