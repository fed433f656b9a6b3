package proxy

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Batching thresholds: a batch is emitted when it reaches FlushBatchSize
// advertisements or FlushTimeout after the previous flush, whichever comes
// first.
const (
	FlushBatchSize = 16
	FlushTimeout   = 100 * time.Millisecond
)

// freePoolLimit bounds the recycled-advertisement pool.
const freePoolLimit = 2 * FlushBatchSize

// BatcherStats is a point-in-time snapshot of batcher counters.
type BatcherStats struct {
	Buffered     int
	FreePool     int
	Batches      uint64
	Appended     uint64
	ForcedFlush  uint64
	TimerFlushes uint64
}

// Batcher coalesces advertisements and hands completed batches to a send
// callback. Append and flush are serialised by one mutex; the callback runs
// with the mutex released so senders may re-enter.
type Batcher struct {
	send   func([]*Advertisement)
	logger *logrus.Entry

	mu        sync.Mutex
	batchSize int
	buffer    []*Advertisement
	freePool  []*Advertisement
	timer     *time.Timer
	lastFlush time.Time

	batches      uint64
	appended     uint64
	forcedFlush  uint64
	timerFlushes uint64
}

func NewBatcher(send func([]*Advertisement), logger *logrus.Logger) *Batcher {
	return &Batcher{
		send:      send,
		logger:    logger.WithField("component", "batcher"),
		batchSize: FlushBatchSize,
		buffer:    make([]*Advertisement, 0, FlushBatchSize),
		lastFlush: time.Now(),
	}
}

// Acquire hands out a recycled advertisement record, or a fresh one when the
// pool is empty. The caller must fully repopulate it before use.
func (b *Batcher) Acquire() *Advertisement {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n := len(b.freePool); n > 0 {
		adv := b.freePool[n-1]
		b.freePool = b.freePool[:n-1]
		return adv
	}
	return &Advertisement{}
}

// SetBatchSize overrides the flush threshold. Intended for startup
// configuration, before advertisements flow.
func (b *Batcher) SetBatchSize(n int) {
	if n <= 0 {
		return
	}
	b.mu.Lock()
	b.batchSize = n
	b.mu.Unlock()
}

// Append adds one advertisement and flushes when the batch is full. An
// undersized batch is flushed by the timer FlushTimeout after the last flush.
func (b *Batcher) Append(adv *Advertisement) {
	b.mu.Lock()
	b.appended++
	b.buffer = append(b.buffer, adv)

	if len(b.buffer) >= b.batchSize {
		batch := b.detachLocked()
		b.mu.Unlock()
		b.emit(batch)
		return
	}

	if b.timer == nil {
		delay := FlushTimeout - time.Since(b.lastFlush)
		if delay < 0 {
			delay = 0
		}
		b.timer = time.AfterFunc(delay, b.onTimer)
	}
	b.mu.Unlock()
}

func (b *Batcher) onTimer() {
	b.mu.Lock()
	b.timer = nil
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	b.timerFlushes++
	batch := b.detachLocked()
	b.mu.Unlock()
	b.emit(batch)
}

// ForceFlush emits the current buffer immediately regardless of size.
func (b *Batcher) ForceFlush() {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return
	}
	b.forcedFlush++
	batch := b.detachLocked()
	b.mu.Unlock()
	b.emit(batch)
}

// Clear discards the buffer without emitting.
func (b *Batcher) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = b.buffer[:0]
	b.stopTimerLocked()
}

// detachLocked swaps the buffer for an empty one and resets the flush clock.
func (b *Batcher) detachLocked() []*Advertisement {
	batch := b.buffer
	b.buffer = make([]*Advertisement, 0, b.batchSize)
	b.lastFlush = time.Now()
	b.batches++
	b.stopTimerLocked()
	return batch
}

func (b *Batcher) stopTimerLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}

func (b *Batcher) emit(batch []*Advertisement) {
	b.logger.WithField("size", len(batch)).Trace("Flushing advertisement batch")
	b.send(batch)

	// Recycle sent records, trimming the pool from the front when it
	// overflows.
	b.mu.Lock()
	b.freePool = append(b.freePool, batch...)
	if excess := len(b.freePool) - freePoolLimit; excess > 0 {
		b.freePool = append(b.freePool[:0:0], b.freePool[excess:]...)
	}
	b.mu.Unlock()
}

// Stats returns a snapshot of the batcher counters.
func (b *Batcher) Stats() BatcherStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BatcherStats{
		Buffered:     len(b.buffer),
		FreePool:     len(b.freePool),
		Batches:      b.batches,
		Appended:     b.appended,
		ForcedFlush:  b.forcedFlush,
		TimerFlushes: b.timerFlushes,
	}
}
