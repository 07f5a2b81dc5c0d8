// Package dispatcher routes map commands to their handlers. Synchronous
// handlers run one at a time, so a map controller behind them sees the same
// single-threaded access it would get from a UI event loop.
package dispatcher

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
)

// ErrUnknownCommand is returned when no handler is registered for a command
var ErrUnknownCommand = errors.New("unknown command")

// ErrQueueFull is returned when a buffered handler drops a command
var ErrQueueFull = errors.New("queue full")

// Command is a request against a map, e.g. from the HTTP API or an import.
type Command struct {
	Name      string
	Params    map[string]string
	Body      []byte
	Timestamp time.Time
}

// Param returns a named parameter or "" when absent
func (c Command) Param(name string) string {
	return c.Params[name]
}

// HandlerFunc processes a command and returns a result.
type HandlerFunc func(Command) (any, error)

// Logger interface for pluggable logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option configures handler registration.
type Option func(*config)

type config struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered makes the handler async with a queue of the given size. Buffered
// handlers run outside the serialized section and must not touch a controller.
func Buffered(size int) Option {
	return func(c *config) {
		c.bufferSize = size
	}
}

// Blocking makes a buffered handler block when the queue is full instead of dropping.
func Blocking() Option {
	return func(c *config) {
		c.blocking = true
	}
}

// Logged adds debug logging to the handler.
func Logged() Option {
	return func(c *config) {
		c.logged = true
	}
}

type route struct {
	handler HandlerFunc
	async   bool
}

// Dispatcher routes commands to registered handlers.
type Dispatcher struct {
	routes map[string]route
	logger Logger

	// serial is held while a synchronous handler runs
	serial sync.Mutex

	metrics *metrics

	mu      sync.RWMutex
	buffers map[string]chan Command
	wg      sync.WaitGroup
}

// New creates a new Dispatcher with the given logger.
// Metrics go to the global OTel meter, a no-op until a provider is installed.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		routes:  make(map[string]route),
		buffers: make(map[string]chan Command),
		logger:  logger,
	}

	metrics, err := newMetrics(otel.Meter(instrumentationName), d.queueLengths)
	if err != nil {
		return nil, err
	}
	d.metrics = metrics
	return d, nil
}

// Register adds a handler for the named command. Registering a name twice
// replaces the earlier handler.
func (d *Dispatcher) Register(name string, h HandlerFunc, opts ...Option) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	handler := d.withMetrics(name, h)

	if cfg.logged {
		handler = d.withLogging(name, handler)
	}

	if cfg.bufferSize > 0 {
		handler = d.withBuffer(name, cfg.bufferSize, cfg.blocking, handler)
	}

	d.routes[name] = route{handler: handler, async: cfg.bufferSize > 0}
}

// Dispatch routes a command to its handler. A zero Timestamp is set to now.
func (d *Dispatcher) Dispatch(c Command) (any, error) {
	r, ok := d.routes[c.Name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, c.Name)
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now()
	}
	if r.async {
		return r.handler(c)
	}

	d.serial.Lock()
	defer d.serial.Unlock()
	return r.handler(c)
}

// Serialized runs fn while no synchronous handler is running.
func (d *Dispatcher) Serialized(fn func()) {
	d.serial.Lock()
	defer d.serial.Unlock()
	fn()
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(name string) bool {
	_, ok := d.routes[name]
	return ok
}

// Close stops accepting buffered commands and waits for queued ones to finish.
// The dispatcher must not be used afterwards.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	for name, buf := range d.buffers {
		close(buf)
		delete(d.buffers, name)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// queueLengths returns the number of commands waiting in each buffered queue
func (d *Dispatcher) queueLengths() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]int, len(d.buffers))
	for name, buf := range d.buffers {
		out[name] = len(buf)
	}
	return out
}

func (d *Dispatcher) withMetrics(name string, h HandlerFunc) HandlerFunc {
	return func(c Command) (any, error) {
		start := time.Now()
		result, err := h(c)
		d.metrics.observe(name, time.Since(start), err)
		return result, err
	}
}

func (d *Dispatcher) withBuffer(name string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	buffer := make(chan Command, size)

	d.mu.Lock()
	d.buffers[name] = buffer
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for c := range buffer {
			if _, err := h(c); err != nil {
				d.logger.Error("buffered command failed", "command", name, "error", err)
			}
		}
	}()

	if blocking {
		return func(c Command) (any, error) {
			buffer <- c
			return "queued", nil
		}
	}

	return func(c Command) (any, error) {
		select {
		case buffer <- c:
			return "queued", nil
		default:
			d.metrics.drop(name)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, name)
		}
	}
}

func (d *Dispatcher) withLogging(name string, h HandlerFunc) HandlerFunc {
	return func(c Command) (any, error) {
		start := time.Now()
		d.logger.Debug("handling command", "command", name, "params", len(c.Params), "body", len(c.Body))

		result, err := h(c)

		if err != nil {
			d.logger.Error("command failed", "command", name, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("command complete", "command", name, "duration", time.Since(start))
		}

		return result, err
	}
}
