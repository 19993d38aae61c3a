package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/neurosonar/neurosonar/logging"
)

// ErrConsumerBusy is returned by AsyncConsumer when a prompt is still being
// handled and the new one is dropped.
var ErrConsumerBusy = errors.New("consumer busy, prompt dropped")

// Consumer receives every composed prompt. Implementations may fail; the
// acquisition loop logs the failure and keeps running.
type Consumer interface {
	Consume(ctx context.Context, p Prompt) error
	Close() error
}

// WriterConsumer prints the prompt text, the behaviour of a bare terminal run
type WriterConsumer struct {
	w  io.Writer
	mu sync.Mutex
}

// NewWriterConsumer creates a consumer printing to w
func NewWriterConsumer(w io.Writer) *WriterConsumer {
	return &WriterConsumer{w: w}
}

func (c *WriterConsumer) Consume(_ context.Context, p Prompt) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.WriteString(c.w, p.Text); err != nil {
		return fmt.Errorf("writing prompt: %w", err)
	}
	return nil
}

func (c *WriterConsumer) Close() error { return nil }

// NoOpConsumer drops every prompt
type NoOpConsumer struct{}

func (NoOpConsumer) Consume(context.Context, Prompt) error { return nil }
func (NoOpConsumer) Close() error                          { return nil }

// MultiConsumer hands each prompt to every consumer in order and joins the errors
type MultiConsumer []Consumer

func (m MultiConsumer) Consume(ctx context.Context, p Prompt) error {
	var errs []error
	for _, c := range m {
		if err := c.Consume(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiConsumer) Close() error {
	var errs []error
	for _, c := range m {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncConsumer moves a slow consumer off the acquisition goroutine. It holds
// at most one pending prompt; while that slot is taken new prompts are
// dropped with ErrConsumerBusy. Failures of the wrapped consumer are logged.
type AsyncConsumer struct {
	next    Consumer
	queue   chan Prompt
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	logger  logging.Logger
	closed  atomic.Bool
	closeMu sync.Once
}

// NewAsyncConsumer starts the worker goroutine
func NewAsyncConsumer(next Consumer) *AsyncConsumer {
	ctx, cancel := context.WithCancel(context.Background())

	a := &AsyncConsumer{
		next:   next,
		queue:  make(chan Prompt, 1),
		done:   make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
		logger: logging.WithFields(logging.Fields{
			"component": "async_consumer",
		}),
	}

	go a.run()
	return a
}

func (a *AsyncConsumer) run() {
	defer close(a.done)

	for p := range a.queue {
		if err := a.next.Consume(a.ctx, p); err != nil {
			a.logger.Error(err, "Prompt consumer failed", logging.Fields{
				"activity": p.Activity,
			})
		}
	}
}

// Consume enqueues p without blocking
func (a *AsyncConsumer) Consume(_ context.Context, p Prompt) error {
	if a.closed.Load() {
		return errors.New("consumer closed")
	}
	select {
	case a.queue <- p:
		return nil
	default:
		return ErrConsumerBusy
	}
}

// Close waits for the pending prompt, then closes the wrapped consumer.
// Safe to call more than once.
func (a *AsyncConsumer) Close() error {
	var err error
	a.closeMu.Do(func() {
		a.closed.Store(true)
		close(a.queue)
		<-a.done
		a.cancel()
		err = a.next.Close()
	})
	return err
}
