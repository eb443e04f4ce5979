// Package pipeline wires the normalizer, scorer, and alert manager
// into an ingestion pipeline with key-partitioned workers and
// backpressure.
package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/tidewater-labs/plantpulse/internal/alerting"
	"github.com/tidewater-labs/plantpulse/internal/metrics"
	"github.com/tidewater-labs/plantpulse/internal/models"
	"github.com/tidewater-labs/plantpulse/internal/normalize"
	"github.com/tidewater-labs/plantpulse/internal/scorer"
)

// ErrOverloaded means a worker queue was full. The reading was not
// enqueued; the caller may retry with backoff.
var ErrOverloaded = errors.New("pipeline overloaded")

// Defaults for the coordinator configuration.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 256
)

// ReadingArchive receives accepted readings for durable history.
// Implementations must not block; the clickhouse-backed buffer drops
// under sustained store outage rather than stalling the pipeline.
type ReadingArchive interface {
	Add(reading *models.SensorReading) error
}

// Config configures the Coordinator.
type Config struct {
	// Workers is the number of partitions. All readings for one series
	// key route to the same worker, serializing per-key processing.
	Workers int

	// QueueSize bounds each worker's queue; a full queue refuses new
	// submissions with ErrOverloaded.
	QueueSize int
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
}

// Result is the outcome of one submission within a batch.
type Result struct {
	// Reading is the normalized reading, nil when rejected.
	Reading *models.SensorReading
	// Err is nil for accepted readings; otherwise one of the normalizer
	// errors or ErrOverloaded.
	Err error
}

// Coordinator accepts readings individually or in batches and drives
// them through scoring and alert transitions. Distinct series keys are
// processed in parallel; operations for a single key are strictly
// serialized on its owning worker.
type Coordinator struct {
	cfg        Config
	normalizer *normalize.Normalizer
	scorer     *scorer.Scorer
	manager    *alerting.Manager
	archive    ReadingArchive
	logger     *zap.Logger

	queues []chan *models.SensorReading
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// New creates a Coordinator. archive may be nil.
func New(cfg Config, n *normalize.Normalizer, s *scorer.Scorer, m *alerting.Manager, archive ReadingArchive, logger *zap.Logger) *Coordinator {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	queues := make([]chan *models.SensorReading, cfg.Workers)
	for i := range queues {
		queues[i] = make(chan *models.SensorReading, cfg.QueueSize)
	}

	return &Coordinator{
		cfg:        cfg,
		normalizer: n,
		scorer:     s,
		manager:    m,
		archive:    archive,
		logger:     logger,
		queues:     queues,
	}
}

// Start launches the worker goroutines.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	for i := range c.queues {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
}

// Stop closes the queues and waits for in-flight readings to drain.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	c.mu.Unlock()

	for _, q := range c.queues {
		close(q)
	}
	c.wg.Wait()
}

// Running reports whether the workers have been started and not yet
// stopped.
func (c *Coordinator) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.stopped
}

// Submit normalizes and enqueues a single raw reading. It fails with
// a normalizer error for bad payloads and ErrOverloaded when the
// owning worker's queue is full; it never blocks indefinitely.
func (c *Coordinator) Submit(raw normalize.RawReading) (*models.SensorReading, error) {
	reading, err := c.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}
	if err := c.enqueue(reading); err != nil {
		return nil, err
	}
	return reading, nil
}

// SubmitBatch submits readings with per-item isolation: one malformed
// reading never aborts its siblings, and backpressure applies per
// item. Results are positional. Cross-key ordering within a batch is
// unconstrained; per-key order follows batch order.
func (c *Coordinator) SubmitBatch(raws []normalize.RawReading) []Result {
	results := make([]Result, len(raws))
	for i, raw := range raws {
		reading, err := c.Submit(raw)
		results[i] = Result{Reading: reading, Err: err}
	}
	return results
}

// enqueue routes the reading to its key's worker without blocking.
func (c *Coordinator) enqueue(reading *models.SensorReading) error {
	idx := c.partition(reading.Key())
	select {
	case c.queues[idx] <- reading:
		metrics.ReadingsAccepted.Inc()
		metrics.PipelineQueueDepth.WithLabelValues(strconv.Itoa(idx)).Set(float64(len(c.queues[idx])))
		return nil
	default:
		metrics.ReadingsOverloaded.Inc()
		return ErrOverloaded
	}
}

// partition maps a series key to its owning worker.
func (c *Coordinator) partition(key models.SeriesKey) int {
	h := fnv.New32a()
	h.Write([]byte(key.DeviceID))
	h.Write([]byte{0})
	h.Write([]byte(key.SensorType))
	return int(h.Sum32() % uint32(len(c.queues)))
}

// worker drains one partition: score, alert transition, archive.
// Scoring and alert transitions are in-memory and non-blocking; the
// archive hands off to an async buffer.
func (c *Coordinator) worker(ctx context.Context, idx int) {
	defer c.wg.Done()
	label := strconv.Itoa(idx)

	for {
		select {
		case <-ctx.Done():
			return
		case reading, ok := <-c.queues[idx]:
			if !ok {
				return
			}
			metrics.PipelineQueueDepth.WithLabelValues(label).Set(float64(len(c.queues[idx])))

			classification := c.scorer.Score(reading)
			c.manager.Process(reading, classification)

			if c.archive != nil {
				if err := c.archive.Add(reading); err != nil {
					c.logger.Warn("archive reading failed",
						zap.String("series", reading.Key().String()),
						zap.Error(err),
					)
				}
			}
		}
	}
}
