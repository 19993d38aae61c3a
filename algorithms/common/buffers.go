package common

import (
	"fmt"
	"math"
)

// ChannelBuffer keeps the most recent samples of one channel. Appending to a
// full buffer overwrites the oldest sample, so Len never exceeds Cap.
type ChannelBuffer struct {
	buffer   []float64
	size     int
	writePos int
	count    int
}

// NewChannelBuffer creates a buffer holding at most capacity samples
func NewChannelBuffer(capacity int) *ChannelBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ChannelBuffer{
		buffer: make([]float64, capacity),
		size:   capacity,
	}
}

// WindowCapacity returns round(sampleRate * windowSeconds)
func WindowCapacity(sampleRate int, windowSeconds float64) int {
	return int(math.Round(float64(sampleRate) * windowSeconds))
}

// Append adds one sample at the tail
func (cb *ChannelBuffer) Append(sample float64) {
	cb.buffer[cb.writePos] = sample
	cb.writePos = (cb.writePos + 1) % cb.size
	if cb.count < cb.size {
		cb.count++
	}
}

// Write appends every sample in data and returns how many were written
func (cb *ChannelBuffer) Write(data []float64) int {
	for _, sample := range data {
		cb.Append(sample)
	}
	return len(data)
}

// Snapshot copies the stored samples, oldest first
func (cb *ChannelBuffer) Snapshot() []float64 {
	out := make([]float64, cb.count)
	cb.Peek(out)
	return out
}

// Peek copies up to len(data) of the oldest samples into data without consuming them
func (cb *ChannelBuffer) Peek(data []float64) int {
	start := (cb.writePos - cb.count + cb.size) % cb.size
	n := min(len(data), cb.count)

	first := min(n, cb.size-start)
	copy(data, cb.buffer[start:start+first])
	copy(data[first:n], cb.buffer[:n-first])
	return n
}

// Len returns number of stored samples
func (cb *ChannelBuffer) Len() int {
	return cb.count
}

// Cap returns the window capacity
func (cb *ChannelBuffer) Cap() int {
	return cb.size
}

// IsFull returns true if buffer is full
func (cb *ChannelBuffer) IsFull() bool {
	return cb.count == cb.size
}

// Reset empties the buffer
func (cb *ChannelBuffer) Reset() {
	cb.writePos = 0
	cb.count = 0
}

// ChannelBuffers is one ChannelBuffer per channel, all with the same capacity
type ChannelBuffers []*ChannelBuffer

// NewChannelBuffers creates channels buffers of the given capacity
func NewChannelBuffers(channels, capacity int) ChannelBuffers {
	buffers := make(ChannelBuffers, channels)
	for i := range buffers {
		buffers[i] = NewChannelBuffer(capacity)
	}
	return buffers
}

// AppendFrame appends frame[ch] to buffer ch
func (b ChannelBuffers) AppendFrame(frame []float64) error {
	if len(frame) != len(b) {
		return fmt.Errorf("frame has %d channels, buffers have %d", len(frame), len(b))
	}
	for ch, v := range frame {
		b[ch].Append(v)
	}
	return nil
}

// Snapshots returns a chronological copy of every channel
func (b ChannelBuffers) Snapshots() [][]float64 {
	out := make([][]float64, len(b))
	for ch, buf := range b {
		out[ch] = buf.Snapshot()
	}
	return out
}

// MinLen returns the shortest channel length
func (b ChannelBuffers) MinLen() int {
	if len(b) == 0 {
		return 0
	}
	m := b[0].Len()
	for _, buf := range b[1:] {
		m = min(m, buf.Len())
	}
	return m
}
