package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/ligl/struxis/internal/model"
)

// BufferedWriter wraps a Redis Writer with a circuit breaker. During
// circuit-open state, bars are buffered locally and flushed when the
// circuit closes again.
type BufferedWriter struct {
	writer *Writer
	cb     *CircuitBreaker
	ctx    context.Context

	mu     sync.Mutex
	buffer [][]byte
	maxBuf int // max buffered bars before dropping oldest (default: 10000)

	OnBuffer func()          // called when a bar is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered bars
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([][]byte, 0, 256),
		maxBuf: maxBufferSize,
	}

	prevCallback := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prevCallback != nil {
			prevCallback(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}

	return bw
}

// WriteBar writes a bar through the circuit breaker. If the circuit is
// open, the bar is buffered locally instead of lost.
func (bw *BufferedWriter) WriteBar(bar model.SBar) error {
	err := bw.cb.Execute(func() error {
		bw.writer.writeBar(bw.ctx, bar)
		return nil // writeBar logs errors internally
	})
	if err == ErrCircuitOpen {
		bw.bufferBar(bar)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferBar(bar model.SBar) {
	data, err := json.Marshal(bar)
	if err != nil {
		log.Printf("[buffered-writer] marshal error: %v", err)
		return
	}

	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, data)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays all buffered bars through the underlying writer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([][]byte, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for _, raw := range toFlush {
		var bar model.SBar
		if json.Unmarshal(raw, &bar) == nil {
			bw.writer.writeBar(bw.ctx, bar)
			flushed++
		}
	}

	log.Printf("[buffered-writer] flushed %d buffered bars", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered bars waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Underlying returns the underlying Redis writer for direct access.
func (bw *BufferedWriter) Underlying() *Writer {
	return bw.writer
}
