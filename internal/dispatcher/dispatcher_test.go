package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testLogger implements Logger for testing
type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("DEBUG: %s %v", msg, keysAndValues))
}

func (l *testLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("INFO: %s %v", msg, keysAndValues))
}

func (l *testLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("ERROR: %s %v", msg, keysAndValues))
}

func (l *testLogger) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	logger := &testLogger{}

	d, err := New(logger)
	if err != nil {
		t.Fatalf("failed to create dispatcher: %v", err)
	}

	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Command
	d.Register("marker.add", func(c Command) (any, error) {
		got = c
		return 3, nil
	})

	result, err := d.Dispatch(Command{
		Name:   "marker.add",
		Params: map[string]string{"map": "main"},
		Body:   []byte(`{}`),
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if result != 3 {
		t.Errorf("expected 3, got %v", result)
	}
	if got.Param("map") != "main" {
		t.Errorf("expected map param 'main', got %q", got.Param("map"))
	}
	if got.Param("missing") != "" {
		t.Errorf("expected empty param, got %q", got.Param("missing"))
	}
	if got.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestDispatcher_KeepsGivenTimestamp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	var got time.Time
	d.Register("x", func(c Command) (any, error) {
		got = c.Timestamp
		return nil, nil
	})
	d.Dispatch(Command{Name: "x", Timestamp: ts})

	if !got.Equal(ts) {
		t.Errorf("expected %v, got %v", ts, got)
	}
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Command{Name: "nope"})

	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}
}

func TestDispatcher_HandlerError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	boom := errors.New("boom")

	d.Register("fail", func(c Command) (any, error) {
		return nil, boom
	})

	_, err := d.Dispatch(Command{Name: "fail"})

	if !errors.Is(err, boom) {
		t.Errorf("expected boom, got %v", err)
	}
}

func TestDispatcher_HasHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.Register("a", func(c Command) (any, error) { return nil, nil })

	if !d.HasHandler("a") {
		t.Error("expected handler for a")
	}
	if d.HasHandler("b") {
		t.Error("expected no handler for b")
	}
}

func TestDispatcher_SyncHandlersAreSerialized(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var running, maxRunning atomic.Int32
	d.Register("slow", func(c Command) (any, error) {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Dispatch(Command{Name: "slow"})
		}()
	}
	wg.Wait()

	if maxRunning.Load() != 1 {
		t.Errorf("expected at most 1 concurrent handler, got %d", maxRunning.Load())
	}
}

func TestDispatcher_Serialized(t *testing.T) {
	d, _ := newTestDispatcher(t)

	ran := false
	d.Serialized(func() { ran = true })

	if !ran {
		t.Error("expected fn to run")
	}
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	var wg sync.WaitGroup
	wg.Add(3)

	d.Register("stats.render", func(c Command) (any, error) {
		processed.Add(1)
		wg.Done()
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Command{Name: "stats.render"})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if result != "queued" {
			t.Errorf("expected 'queued', got %v", result)
		}
	}

	wg.Wait()

	if processed.Load() != 3 {
		t.Errorf("expected 3 processed, got %d", processed.Load())
	}
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("full", func(c Command) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))

	d.Dispatch(Command{Name: "full"}) // being processed
	<-started
	d.Dispatch(Command{Name: "full"}) // queued
	d.Dispatch(Command{Name: "full"}) // queued

	_, err := d.Dispatch(Command{Name: "full"})

	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	block := make(chan struct{})
	started := make(chan struct{}, 1)
	d.Register("blocking", func(c Command) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	d.Dispatch(Command{Name: "blocking"})
	<-started
	d.Dispatch(Command{Name: "blocking"})

	done := make(chan struct{})
	go func() {
		d.Dispatch(Command{Name: "blocking"})
		close(done)
	}()

	select {
	case <-done:
		t.Error("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
		// Expected - dispatch is blocking
	}

	close(block)
	<-done
}

func TestDispatcher_BufferedErrorIsLogged(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("bad", func(c Command) (any, error) {
		return nil, errors.New("nope")
	}, Buffered(1))

	d.Dispatch(Command{Name: "bad"})
	d.Close()

	if logger.count() != 1 {
		t.Errorf("expected 1 log message, got %d", logger.count())
	}
}

func TestDispatcher_CloseDrainsQueue(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register("q", func(c Command) (any, error) {
		processed.Add(1)
		return nil, nil
	}, Buffered(10))

	for i := 0; i < 5; i++ {
		d.Dispatch(Command{Name: "q"})
	}
	d.Close()

	if processed.Load() != 5 {
		t.Errorf("expected 5 processed, got %d", processed.Load())
	}
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("logged", func(c Command) (any, error) {
		return "ok", nil
	}, Logged())

	d.Dispatch(Command{Name: "logged", Params: map[string]string{"a": "b"}})

	if logger.count() < 2 {
		t.Errorf("expected at least 2 log messages, got %d", logger.count())
	}
}
