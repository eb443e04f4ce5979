package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// fakeReadingRepo records batches. failing makes InsertBatch error.
type fakeReadingRepo struct {
	mu      sync.Mutex
	batches [][]*models.SensorReading
	failing bool
}

func (r *fakeReadingRepo) InsertBatch(ctx context.Context, readings []*models.SensorReading) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return errors.New("store unavailable")
	}
	r.batches = append(r.batches, readings)
	return nil
}

func (r *fakeReadingRepo) Query(ctx context.Context, key models.SeriesKey, from, to time.Time, limit int) ([]*models.SensorReading, error) {
	return nil, nil
}

func (r *fakeReadingRepo) Count(ctx context.Context, key models.SeriesKey) (int64, error) {
	return 0, nil
}

func (r *fakeReadingRepo) setFailing(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = v
}

func (r *fakeReadingRepo) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func bufferReading(i int) *models.SensorReading {
	return &models.SensorReading{
		DeviceID:   "press-07",
		SensorType: models.SensorTemperature,
		Value:      float64(i),
		Unit:       "°C",
		Timestamp:  time.Date(2026, 3, 1, 8, 0, i, 0, time.UTC),
		FactoryID:  "plant-a",
	}
}

func TestBufferFlushesAtBatchSize(t *testing.T) {
	repo := &fakeReadingRepo{}
	b := NewReadingBuffer(repo, &ReadingBufferConfig{BatchSize: 3, FlushInterval: time.Hour}, nil)
	defer b.Close()

	for i := 0; i < 2; i++ {
		if err := b.Add(bufferReading(i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if repo.total() != 0 {
		t.Errorf("flushed before batch size: %d readings", repo.total())
	}

	if err := b.Add(bufferReading(2)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if repo.total() != 3 {
		t.Errorf("inserted = %d, want 3", repo.total())
	}

	stats := b.Stats()
	if stats.Pending != 0 || stats.Flushed != 1 || stats.Inserted != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBufferCloseFlushesRemainder(t *testing.T) {
	repo := &fakeReadingRepo{}
	b := NewReadingBuffer(repo, &ReadingBufferConfig{BatchSize: 100, FlushInterval: time.Hour}, nil)

	for i := 0; i < 5; i++ {
		b.Add(bufferReading(i))
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if repo.total() != 5 {
		t.Errorf("inserted = %d, want 5 after close", repo.total())
	}
}

func TestBufferRetainsOnInsertFailure(t *testing.T) {
	repo := &fakeReadingRepo{failing: true}
	b := NewReadingBuffer(repo, &ReadingBufferConfig{BatchSize: 2, FlushInterval: time.Hour}, nil)
	defer b.Close()

	b.Add(bufferReading(0))
	if err := b.Add(bufferReading(1)); err == nil {
		t.Fatal("Add did not surface the flush failure")
	}
	if got := b.Stats().Pending; got != 2 {
		t.Errorf("Pending = %d, want 2 (readings put back)", got)
	}

	repo.setFailing(false)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush after recovery: %v", err)
	}
	if repo.total() != 2 {
		t.Errorf("inserted = %d, want 2", repo.total())
	}
}

func TestBufferDropsOldestOnOverflow(t *testing.T) {
	repo := &fakeReadingRepo{failing: true}
	b := NewReadingBuffer(repo, &ReadingBufferConfig{BatchSize: 100, FlushInterval: time.Hour, MaxSize: 3}, nil)
	defer b.Close()

	for i := 0; i < 5; i++ {
		b.Add(bufferReading(i))
	}

	stats := b.Stats()
	if stats.Pending != 3 {
		t.Errorf("Pending = %d, want 3", stats.Pending)
	}
	if stats.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", stats.Dropped)
	}

	// The newest readings survive.
	repo.setFailing(false)
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	repo.mu.Lock()
	first := repo.batches[0][0].Value
	repo.mu.Unlock()
	if first != 2 {
		t.Errorf("oldest surviving value = %v, want 2", first)
	}
}

func TestBufferIgnoresAddAfterClose(t *testing.T) {
	repo := &fakeReadingRepo{}
	b := NewReadingBuffer(repo, &ReadingBufferConfig{BatchSize: 1, FlushInterval: time.Hour}, nil)
	b.Close()

	if err := b.Add(bufferReading(0)); err != nil {
		t.Fatalf("Add after close: %v", err)
	}
	if repo.total() != 0 {
		t.Errorf("inserted = %d, want 0", repo.total())
	}
}
