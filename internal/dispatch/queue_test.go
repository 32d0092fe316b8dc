package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	var (
		mu      sync.Mutex
		lengths []int
	)
	q.OnChange(func(n int) {
		mu.Lock()
		lengths = append(lengths, n)
		mu.Unlock()
	})

	a, _ := q.Enqueue("  first ")
	b, _ := q.Enqueue("second")
	if a.ID == "" || a.ID == b.ID || a.Text != "first" || a.EnqueuedAt.IsZero() {
		t.Fatalf("requests=%+v %+v", a, b)
	}
	if q.Len() != 2 {
		t.Fatalf("len=%d", q.Len())
	}

	ctx := context.Background()
	got1, err := q.Dequeue(ctx)
	if err != nil || got1.ID != a.ID {
		t.Fatalf("got=%+v err=%v", got1, err)
	}
	got2, _ := q.Dequeue(ctx)
	if got2.ID != b.ID {
		t.Fatalf("got=%+v", got2)
	}

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]int{1, 2, 1, 0}, lengths); diff != "" {
		t.Fatalf("lengths mismatch (-want +got):\n%s", diff)
	}
}

func TestQueue_DequeueBlocksUntilEnqueue(t *testing.T) {
	q := NewQueue()
	got := make(chan Request, 1)
	go func() {
		r, err := q.Dequeue(context.Background())
		if err == nil {
			got <- r
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	want, _ := q.Enqueue("later")
	select {
	case r := <-got:
		if r.ID != want.ID {
			t.Fatalf("got=%+v want=%+v", r, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("dequeue did not wake up")
	}
}

func TestQueue_DequeueHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err=%v", err)
	}
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue()
	_, _ = q.Enqueue("pending")
	q.Close()
	q.Close()

	if _, err := q.Enqueue("late"); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("enqueue err=%v", err)
	}
	if r, err := q.Dequeue(context.Background()); err != nil || r.Text != "pending" {
		t.Fatalf("drain: r=%+v err=%v", r, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("err=%v", err)
	}
}

func TestQueue_CloseWakesWaiter(t *testing.T) {
	q := NewQueue()
	errc := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(context.Background())
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrQueueClosed) {
			t.Fatalf("err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter not woken")
	}
}
