package prompt

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConsumer struct {
	mu       sync.Mutex
	prompts  []Prompt
	closed   int
	err      error
	release  chan struct{}
	received chan struct{}
}

func (r *recordingConsumer) Consume(_ context.Context, p Prompt) error {
	if r.received != nil {
		r.received <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prompts = append(r.prompts, p)
	return r.err
}

func (r *recordingConsumer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed++
	return nil
}

func (r *recordingConsumer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prompts)
}

func TestWriterConsumer(t *testing.T) {
	var buf bytes.Buffer
	c := NewWriterConsumer(&buf)

	require.NoError(t, c.Consume(context.Background(), Prompt{Text: "one\n"}))
	require.NoError(t, c.Consume(context.Background(), Prompt{Text: "two\n"}))
	require.NoError(t, c.Close())

	assert.Equal(t, "one\ntwo\n", buf.String())
}

func TestMultiConsumerJoinsErrors(t *testing.T) {
	errA := errors.New("a failed")
	errB := errors.New("b failed")
	a := &recordingConsumer{err: errA}
	ok := &recordingConsumer{}
	b := &recordingConsumer{err: errB}

	m := MultiConsumer{a, ok, b}
	err := m.Consume(context.Background(), Prompt{Activity: "Stress"})

	require.Error(t, err)
	assert.ErrorIs(t, err, errA)
	assert.ErrorIs(t, err, errB)
	assert.Equal(t, 1, ok.count(), "a failing consumer must not stop the others")

	require.NoError(t, m.Close())
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}

func TestNoOpConsumer(t *testing.T) {
	var c Consumer = NoOpConsumer{}
	assert.NoError(t, c.Consume(context.Background(), Prompt{}))
	assert.NoError(t, c.Close())
}

func TestAsyncConsumerDropsWhenBusy(t *testing.T) {
	next := &recordingConsumer{
		release:  make(chan struct{}),
		received: make(chan struct{}, 4),
	}
	a := NewAsyncConsumer(next)

	require.NoError(t, a.Consume(context.Background(), Prompt{Activity: "first"}))

	select {
	case <-next.received:
	case <-time.After(2 * time.Second):
		t.Fatal("worker never picked up the first prompt")
	}

	// worker is blocked on the first prompt; one slot remains
	require.NoError(t, a.Consume(context.Background(), Prompt{Activity: "second"}))
	assert.ErrorIs(t, a.Consume(context.Background(), Prompt{Activity: "third"}), ErrConsumerBusy)

	close(next.release)
	require.NoError(t, a.Close())

	require.Equal(t, 2, next.count())
	assert.Equal(t, "first", next.prompts[0].Activity)
	assert.Equal(t, "second", next.prompts[1].Activity)
}

func TestAsyncConsumerLogsFailures(t *testing.T) {
	next := &recordingConsumer{err: errors.New("service down")}
	a := NewAsyncConsumer(next)

	require.NoError(t, a.Consume(context.Background(), Prompt{Activity: "x"}))
	require.NoError(t, a.Close())
	assert.Equal(t, 1, next.count())
}

func TestAsyncConsumerCloseIsIdempotent(t *testing.T) {
	next := &recordingConsumer{}
	a := NewAsyncConsumer(next)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Equal(t, 1, next.closed)

	assert.Error(t, a.Consume(context.Background(), Prompt{}))
}
