package redis

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"chartscan/internal/logger"
)

const defaultMaxBuffer = 10000

// BufferedWriter sends writes through a circuit breaker. While the breaker
// is open, writes are kept in memory and replayed when it closes again.
type BufferedWriter struct {
	exec func(context.Context, write) error
	cb   *CircuitBreaker
	ctx  context.Context
	log  zerolog.Logger

	mu     sync.Mutex
	buffer []write
	maxBuf int

	// Hooks (optional)
	OnBuffer func()          // a write was buffered
	OnFlush  func(count int) // buffered writes were replayed
}

// newBufferedWriter wraps exec with cb. ctx bounds the replays.
func newBufferedWriter(ctx context.Context, exec func(context.Context, write) error, cb *CircuitBreaker, maxBuffer int) *BufferedWriter {
	if maxBuffer <= 0 {
		maxBuffer = defaultMaxBuffer
	}
	bw := &BufferedWriter{
		exec:   exec,
		cb:     cb,
		ctx:    ctx,
		log:    logger.For("redis-buffer"),
		buffer: make([]write, 0, 256),
		maxBuf: maxBuffer,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			go bw.flush()
		}
	}
	return bw
}

// Write sends w, or buffers it when the breaker is open. Failures while the
// breaker is still closed are returned to the caller.
func (bw *BufferedWriter) Write(ctx context.Context, w write) error {
	err := bw.cb.Execute(func() error { return bw.exec(ctx, w) })
	if errors.Is(err, ErrCircuitOpen) {
		bw.push(w)
		return nil
	}
	return err
}

func (bw *BufferedWriter) push(w write) {
	bw.mu.Lock()
	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, w)
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays buffered writes in order. A failed replay puts the rest back.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	pending := bw.buffer
	bw.buffer = make([]write, 0, 256)
	bw.mu.Unlock()
	if len(pending) == 0 {
		return
	}

	for i, w := range pending {
		if err := bw.exec(bw.ctx, w); err != nil {
			bw.log.Warn().Err(err).Int("left", len(pending)-i).Msg("replay interrupted")
			bw.mu.Lock()
			bw.buffer = append(pending[i:], bw.buffer...)
			bw.mu.Unlock()
			if bw.OnFlush != nil && i > 0 {
				bw.OnFlush(i)
			}
			return
		}
	}

	bw.log.Info().Int("writes", len(pending)).Msg("replayed buffered writes")
	if bw.OnFlush != nil {
		bw.OnFlush(len(pending))
	}
}

// PendingCount returns the number of buffered writes.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}
