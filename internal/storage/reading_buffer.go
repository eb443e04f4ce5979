package storage

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// ReadingBuffer buffers accepted readings for batch insertion into the
// archive. It flushes on either batch size threshold or time interval,
// whichever comes first, and implements backpressure by dropping the
// oldest readings when the buffer reaches max capacity. A store outage
// degrades to dropped history, never to a stalled pipeline.
type ReadingBuffer struct {
	repo          ReadingRepository
	batchSize     int
	flushInterval time.Duration
	maxSize       int
	logger        *zap.Logger

	mu       sync.Mutex
	buffer   []*models.SensorReading
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopped  atomic.Bool
	dropped  atomic.Int64
	flushed  atomic.Int64
	inserted atomic.Int64
}

// ReadingBufferConfig holds ReadingBuffer configuration.
type ReadingBufferConfig struct {
	// BatchSize is the number of readings that triggers a flush.
	BatchSize int

	// FlushInterval is the time interval that triggers a flush.
	FlushInterval time.Duration

	// MaxSize is the maximum buffer size. When reached, oldest readings
	// are dropped.
	MaxSize int
}

// NewReadingBuffer creates a reading buffer and starts its flush loop.
func NewReadingBuffer(repo ReadingRepository, config *ReadingBufferConfig, logger *zap.Logger) *ReadingBuffer {
	if config.BatchSize == 0 {
		config.BatchSize = 500
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = 5 * time.Second
	}
	if config.MaxSize == 0 {
		config.MaxSize = 50000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	b := &ReadingBuffer{
		repo:          repo,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		maxSize:       config.MaxSize,
		logger:        logger,
		buffer:        make([]*models.SensorReading, 0, config.BatchSize),
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	go b.flushLoop()
	return b
}

// Add appends one reading to the buffer.
func (b *ReadingBuffer) Add(reading *models.SensorReading) error {
	return b.AddBatch([]*models.SensorReading{reading})
}

// AddBatch appends readings to the buffer, dropping the oldest held
// readings on overflow.
func (b *ReadingBuffer) AddBatch(readings []*models.SensorReading) error {
	if b.stopped.Load() {
		return nil
	}

	b.mu.Lock()

	newLen := len(b.buffer) + len(readings)
	if newLen > b.maxSize {
		toDrop := newLen - b.maxSize
		if toDrop >= len(b.buffer) {
			b.dropped.Add(int64(len(b.buffer)))
			b.buffer = b.buffer[:0]
			keep := b.maxSize
			if keep > len(readings) {
				keep = len(readings)
			}
			drop := len(readings) - keep
			b.dropped.Add(int64(drop))
			readings = readings[drop:]
		} else {
			b.dropped.Add(int64(toDrop))
			b.buffer = b.buffer[toDrop:]
		}
		b.logger.Warn("reading buffer overflow", zap.Int("dropped", toDrop))
	}

	b.buffer = append(b.buffer, readings...)
	shouldFlush := len(b.buffer) >= b.batchSize
	b.mu.Unlock()

	if shouldFlush {
		return b.Flush()
	}
	return nil
}

// Flush forces a flush of the current buffer.
func (b *ReadingBuffer) Flush() error {
	b.mu.Lock()
	if len(b.buffer) == 0 {
		b.mu.Unlock()
		return nil
	}

	toFlush := b.buffer
	b.buffer = make([]*models.SensorReading, 0, b.batchSize)
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := b.repo.InsertBatch(ctx, toFlush); err != nil {
		// Put readings back so the next flush retries them.
		b.mu.Lock()
		b.buffer = append(toFlush, b.buffer...)
		if len(b.buffer) > b.maxSize {
			excess := len(b.buffer) - b.maxSize
			b.dropped.Add(int64(excess))
			b.buffer = b.buffer[excess:]
		}
		b.mu.Unlock()
		return err
	}

	b.flushed.Add(1)
	b.inserted.Add(int64(len(toFlush)))
	return nil
}

// flushLoop periodically flushes the buffer.
func (b *ReadingBuffer) flushLoop() {
	defer close(b.doneCh)
	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.logger.Warn("reading buffer flush failed", zap.Error(err))
			}
		case <-b.stopCh:
			if err := b.Flush(); err != nil {
				b.logger.Warn("reading buffer final flush failed", zap.Error(err))
			}
			return
		}
	}
}

// Close stops the buffer and flushes remaining readings.
func (b *ReadingBuffer) Close() error {
	if b.stopped.Swap(true) {
		return nil
	}
	close(b.stopCh)
	<-b.doneCh
	return nil
}

// Stats returns buffer statistics.
func (b *ReadingBuffer) Stats() ReadingBufferStats {
	b.mu.Lock()
	pending := len(b.buffer)
	b.mu.Unlock()

	return ReadingBufferStats{
		Pending:  pending,
		Dropped:  b.dropped.Load(),
		Flushed:  b.flushed.Load(),
		Inserted: b.inserted.Load(),
	}
}

// ReadingBufferStats contains buffer statistics.
type ReadingBufferStats struct {
	Pending  int
	Dropped  int64
	Flushed  int64
	Inserted int64
}
