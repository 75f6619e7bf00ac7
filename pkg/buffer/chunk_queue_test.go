package buffer

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestChunkQueueFIFO(t *testing.T) {
	q := NewChunkQueue[int](4)
	for i := 1; i <= 3; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) dropped", i)
		}
	}
	for i := 1; i <= 3; i++ {
		v, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop error: %v", err)
		}
		if v != i {
			t.Errorf("Pop = %d; want %d", v, i)
		}
	}
}

func TestChunkQueueDropsWhenFull(t *testing.T) {
	q := NewChunkQueue[string](2)
	q.Push("a")
	q.Push("b")
	if q.Push("c") {
		t.Fatal("Push into full queue succeeded")
	}
	if q.Dropped() != 1 {
		t.Errorf("Dropped = %d; want 1", q.Dropped())
	}
	if q.Len() != 2 {
		t.Errorf("Len = %d; want 2", q.Len())
	}
}

func TestChunkQueueDrainThenEOF(t *testing.T) {
	q := NewChunkQueue[int](4)
	q.Push(1)
	q.Push(2)
	q.CloseWrite()

	if q.Push(3) {
		t.Fatal("Push after CloseWrite succeeded")
	}

	for want := 1; want <= 2; want++ {
		v, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop error: %v", err)
		}
		if v != want {
			t.Errorf("Pop = %d; want %d", v, want)
		}
	}
	if _, err := q.Pop(); err != io.EOF {
		t.Fatalf("Pop after drain: %v; want io.EOF", err)
	}
}

func TestChunkQueuePopBlocksUntilPush(t *testing.T) {
	q := NewChunkQueue[int](1)

	done := make(chan int, 1)
	go func() {
		v, err := q.Pop()
		if err != nil {
			done <- -1
			return
		}
		done <- v
	}()

	// Give the consumer a moment to park in Pop.
	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-done:
		if v != 42 {
			t.Fatalf("Pop = %d; want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestChunkQueueCloseWithErrorUnblocks(t *testing.T) {
	q := NewChunkQueue[int](1)
	boom := errors.New("boom")

	var wg sync.WaitGroup
	wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := q.Pop()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.CloseWithError(boom)
	wg.Wait()

	if err := <-errCh; !errors.Is(err, boom) {
		t.Fatalf("Pop after CloseWithError = %v; want wrapped boom", err)
	}
}
