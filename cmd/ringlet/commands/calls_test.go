package commands

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/ringlet-ai/ringlet/pkg/calllog"
	"github.com/ringlet-ai/ringlet/pkg/kv"
)

// seedCallLog installs an in-memory call log with two finished calls
// and returns their ids, newest first.
func seedCallLog(t *testing.T) (newerID, olderID string) {
	t.Helper()

	mem := kv.NewMemory()
	testCallLogOverride = mem
	t.Cleanup(func() { testCallLogOverride = nil })

	store := calllog.NewStore(mem)
	ctx := context.Background()

	older := calllog.NewRecord("MZ001", "CA001", "+12125550100")
	older.ID = "cafe1111-0000-4000-8000-000000000000"
	older.StartedAt = time.Now().Add(-time.Hour).UTC()
	older.Finish(older.StartedAt.Add(90 * time.Second))
	if err := store.Put(ctx, older); err != nil {
		t.Fatal(err)
	}

	newer := calllog.NewRecord("MZ002", "CA002", "+13105550199")
	newer.ID = "cafe2222-0000-4000-8000-000000000000"
	newer.StartedAt = time.Now().Add(-10 * time.Minute).UTC()
	newer.Transcript = []calllog.Turn{
		{Role: "caller", Text: "where is my order", At: newer.StartedAt},
		{Role: "assistant", Text: "let me check", At: newer.StartedAt.Add(2 * time.Second)},
	}
	newer.AddTool("lookup_order", nil)
	newer.Finish(newer.StartedAt.Add(3 * time.Minute))
	if err := store.Put(ctx, newer); err != nil {
		t.Fatal(err)
	}

	return newer.ID, older.ID
}

func TestCallsListNewestFirst(t *testing.T) {
	setupTestConfig(t)
	newerID, olderID := seedCallLog(t)

	stdout, _, code := runCmd(t, "calls", "list")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "(2 calls)") {
		t.Fatalf("expected 2 calls, got: %s", stdout)
	}
	newerIdx := strings.Index(stdout, shortID(newerID))
	olderIdx := strings.Index(stdout, shortID(olderID))
	if newerIdx < 0 || olderIdx < 0 {
		t.Fatalf("expected both ids, got: %s", stdout)
	}
	if newerIdx > olderIdx {
		t.Fatalf("expected newest first, got: %s", stdout)
	}
}

func TestCallsListLimit(t *testing.T) {
	setupTestConfig(t)
	newerID, olderID := seedCallLog(t)

	stdout, _, code := runCmd(t, "calls", "list", "--limit", "1")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, shortID(newerID)) {
		t.Fatalf("expected newest call, got: %s", stdout)
	}
	if strings.Contains(stdout, shortID(olderID)) {
		t.Fatalf("limit ignored, got: %s", stdout)
	}
}

func TestCallsListJSON(t *testing.T) {
	setupTestConfig(t)
	seedCallLog(t)

	stdout, _, code := runCmd(t, "calls", "list", "--output", "json")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, `"call_id"`) {
		t.Fatalf("expected JSON records, got: %s", stdout)
	}
}

func TestCallsListJQ(t *testing.T) {
	setupTestConfig(t)
	seedCallLog(t)

	stdout, _, code := runCmd(t, "calls", "list", "--jq", ".[].caller", "--output", "raw")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "+13105550199") || !strings.Contains(stdout, "+12125550100") {
		t.Fatalf("expected caller numbers, got: %s", stdout)
	}
}

func TestCallsShowByPrefix(t *testing.T) {
	setupTestConfig(t)
	seedCallLog(t)

	stdout, _, code := runCmd(t, "calls", "show", "cafe2")
	if code != 0 {
		t.Fatalf("exit %d", code)
	}
	if !strings.Contains(stdout, "CA002") {
		t.Fatalf("expected call CA002, got: %s", stdout)
	}
	if !strings.Contains(stdout, "where is my order") {
		t.Fatalf("expected transcript, got: %s", stdout)
	}
}

func TestCallsShowAmbiguousPrefix(t *testing.T) {
	setupTestConfig(t)
	seedCallLog(t)

	_, stderr, code := runCmd(t, "calls", "show", "cafe")
	if code == 0 {
		t.Fatal("expected non-zero exit for ambiguous prefix")
	}
	if !strings.Contains(stderr, "ambiguous") {
		t.Fatalf("expected 'ambiguous', got: %s", stderr)
	}
}

func TestCallsShowNotFound(t *testing.T) {
	setupTestConfig(t)
	seedCallLog(t)

	_, stderr, code := runCmd(t, "calls", "show", "zzzz")
	if code == 0 {
		t.Fatal("expected non-zero exit")
	}
	if !strings.Contains(stderr, "not found") {
		t.Fatalf("expected 'not found', got: %s", stderr)
	}
}

func TestCallsDelete(t *testing.T) {
	setupTestConfig(t)
	newerID, _ := seedCallLog(t)

	stdout, _, code := runCmd(t, "calls", "delete", "cafe2")
	if code != 0 {
		t.Fatalf("delete failed, exit %d", code)
	}
	if !strings.Contains(stdout, newerID) {
		t.Fatalf("expected deleted id, got: %s", stdout)
	}

	_, stderr, code := runCmd(t, "calls", "show", "cafe2")
	if code == 0 {
		t.Fatal("expected non-zero exit after delete")
	}
	if !strings.Contains(stderr, "not found") {
		t.Fatalf("expected 'not found', got: %s", stderr)
	}
}
