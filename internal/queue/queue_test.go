package queue

import (
	"sync"
	"testing"
)

func TestQueue_PushLen(t *testing.T) {
	q := New[int]()
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}

	q.Push(1)
	q.Push(2, 3)
	if q.Len() != 3 {
		t.Errorf("expected length 3, got %d", q.Len())
	}
}

func TestQueue_DrainBatch(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3, 4, 5)

	batch := q.Drain(2)
	if len(batch) != 2 || batch[0] != 1 || batch[1] != 2 {
		t.Errorf("expected [1 2], got %v", batch)
	}
	if q.Len() != 3 {
		t.Errorf("expected 3 left, got %d", q.Len())
	}

	rest := q.Drain(0)
	if len(rest) != 3 || rest[0] != 3 || rest[2] != 5 {
		t.Errorf("expected [3 4 5], got %v", rest)
	}
	if q.Len() != 0 {
		t.Errorf("expected empty queue, got %d", q.Len())
	}
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := New[int]()
	if batch := q.Drain(10); batch != nil {
		t.Errorf("expected nil, got %v", batch)
	}
}

func TestQueue_DrainedBatchIsIndependent(t *testing.T) {
	q := New[int]()
	q.Push(1, 2)
	batch := q.Drain(1)
	q.Push(9)
	if batch[0] != 1 {
		t.Errorf("batch changed after push: %v", batch)
	}
}

func TestQueue_Requeue(t *testing.T) {
	q := New[int]()
	q.Push(3, 4)
	q.Requeue(1, 2)

	got := q.Drain(0)
	want := []int{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			q.Push(n)
		}(i)
	}
	wg.Wait()

	if q.Len() != 100 {
		t.Errorf("expected 100 items, got %d", q.Len())
	}
	if len(q.Drain(0)) != 100 {
		t.Error("expected to drain 100 items")
	}
}
