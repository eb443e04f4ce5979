package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tidewater-labs/plantpulse/internal/alerting"
	"github.com/tidewater-labs/plantpulse/internal/metrics"
	"github.com/tidewater-labs/plantpulse/internal/models"
)

// ErrJobNotFound is returned for unknown notification job IDs.
var ErrJobNotFound = errors.New("notification job not found")

// DefaultAttemptTimeout bounds each channel delivery call. A timeout
// counts as a failed attempt for backoff purposes.
const DefaultAttemptTimeout = 10 * time.Second

// Recipient is one address on one channel, used in on-call rosters.
type Recipient struct {
	Channel models.Channel
	Address string
}

// Config configures the Dispatcher.
type Config struct {
	// ChannelMap routes severities to channels. Nil means
	// DefaultChannelMap.
	ChannelMap map[models.Severity][]models.Channel

	// Recipients are the per-channel recipient lists, already filtered
	// by user preference upstream.
	Recipients map[models.Channel][]string

	// OnCall lists the broadcast roster per factory. Severity >= critical
	// notifies every entry, bypassing preference filtering.
	OnCall map[string][]Recipient

	// AttemptTimeout bounds each channel call; zero means
	// DefaultAttemptTimeout.
	AttemptTimeout time.Duration

	// Retry is the per-job backoff schedule; zero-valued means
	// DefaultRetryPolicy.
	Retry RetryPolicy

	// RenotifyPerMinute caps repeat-notification dispatches to protect
	// channels from flapping alerts. Zero disables the cap.
	RenotifyPerMinute int
}

// DefaultChannelMap returns the default severity-to-channel routing:
// critical/high reach sms+email+push, medium email+push, low push only.
func DefaultChannelMap() map[models.Severity][]models.Channel {
	return map[models.Severity][]models.Channel{
		models.SeverityCritical: {models.ChannelSMS, models.ChannelEmail, models.ChannelPush},
		models.SeverityHigh:     {models.ChannelSMS, models.ChannelEmail, models.ChannelPush},
		models.SeverityMedium:   {models.ChannelEmail, models.ChannelPush},
		models.SeverityLow:      {models.ChannelPush},
	}
}

// AlertSource lets the dispatcher read alert state at retry time and
// feed delivery outcomes back onto the alert record.
type AlertSource interface {
	Get(id string) (*models.Alert, error)
	SetNotificationStatus(alertID string, channel models.Channel, status models.JobStatus)
}

// JobStore persists notification job records. Failures degrade to
// logged warnings.
type JobStore interface {
	SaveJob(ctx context.Context, job *models.NotificationJob) error
}

// Dispatcher owns notification jobs: it creates one per (alert event,
// channel, recipient), attempts delivery with independent per-channel
// retry and backoff, and surfaces outcomes on the alert record.
// Jobs are mutated only by the dispatcher; callers get clones.
type Dispatcher struct {
	cfg    Config
	source AlertSource
	store  JobStore
	logger *zap.Logger

	mu          sync.RWMutex
	senders     map[models.Channel]Sender
	jobs        map[string]*models.NotificationJob
	jobsByAlert map[string][]string

	sched   *retryScheduler
	limiter *rate.Limiter
	nowFn   func() time.Time
}

// NewDispatcher creates a Dispatcher. store may be nil for in-memory
// operation.
func NewDispatcher(cfg Config, source AlertSource, store JobStore, logger *zap.Logger) *Dispatcher {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultAttemptTimeout
	}
	if cfg.Retry == (RetryPolicy{}) {
		cfg.Retry = DefaultRetryPolicy()
	}
	if cfg.ChannelMap == nil {
		cfg.ChannelMap = DefaultChannelMap()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		cfg:         cfg,
		source:      source,
		store:       store,
		logger:      logger,
		senders:     make(map[models.Channel]Sender),
		jobs:        make(map[string]*models.NotificationJob),
		jobsByAlert: make(map[string][]string),
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
	if cfg.RenotifyPerMinute > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(float64(cfg.RenotifyPerMinute)/60), cfg.RenotifyPerMinute)
	}
	d.sched = newRetryScheduler(d.attempt)
	return d
}

// UpdateChannelMap swaps the severity-to-channel routing, used by
// config hot reload. Callers pass a whole replacement map; nil restores
// the default routing. In-flight jobs keep their original channels.
func (d *Dispatcher) UpdateChannelMap(m map[models.Severity][]models.Channel) {
	if m == nil {
		m = DefaultChannelMap()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg.ChannelMap = m
}

// RegisterSender adds a delivery channel.
func (d *Dispatcher) RegisterSender(s Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.senders[s.Channel()] = s
}

// Start begins the retry scheduler.
func (d *Dispatcher) Start() {
	d.sched.Start()
}

// Run consumes alert events until the context is cancelled or the
// channel closes.
func (d *Dispatcher) Run(ctx context.Context, events <-chan alerting.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.Dispatch(ev)
		}
	}
}

// Dispatch fans an alert event out to its channels and recipients,
// returning the created jobs. First attempts run concurrently; failure
// on one channel never blocks the others.
func (d *Dispatcher) Dispatch(ev alerting.Event) []*models.NotificationJob {
	alert := ev.Alert

	if ev.Type == models.EventRenotify && d.limiter != nil && !d.limiter.Allow() {
		d.logger.Warn("renotify rate limited",
			zap.String("alert_id", alert.ID))
		return nil
	}

	targets := d.targets(alert)
	if len(targets) == 0 {
		d.logger.Warn("no recipients configured for alert",
			zap.String("alert_id", alert.ID),
			zap.String("severity", alert.Severity.String()),
		)
		return nil
	}

	now := d.nowFn()
	created := make([]*models.NotificationJob, 0, len(targets))

	d.mu.Lock()
	for _, t := range targets {
		msg := renderMessage(t.Channel, ev.Type, alert)
		job := &models.NotificationJob{
			ID:        uuid.NewString(),
			AlertID:   alert.ID,
			Event:     ev.Type,
			Channel:   t.Channel,
			Recipient: t.Address,
			Subject:   msg.Subject,
			Body:      msg.Body,
			Status:    models.JobPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		d.jobs[job.ID] = job
		d.jobsByAlert[alert.ID] = append(d.jobsByAlert[alert.ID], job.ID)
		created = append(created, job.Clone())
	}
	d.mu.Unlock()

	for _, job := range created {
		d.persist(job)
		go d.attempt(job.ID)
	}
	return created
}

// targets resolves the (channel, recipient) tuples for an alert:
// the severity's channel map with configured per-channel recipients,
// plus the factory on-call roster for critical severity.
func (d *Dispatcher) targets(alert *models.Alert) []Recipient {
	d.mu.RLock()
	channelMap := d.cfg.ChannelMap
	d.mu.RUnlock()

	seen := make(map[Recipient]struct{})
	var out []Recipient

	add := func(r Recipient) {
		if _, dup := seen[r]; dup {
			return
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}

	for _, ch := range channelMap[alert.Severity] {
		for _, addr := range d.cfg.Recipients[ch] {
			add(Recipient{Channel: ch, Address: addr})
		}
	}

	// Critical broadcasts to everyone on call for the factory,
	// regardless of channel map or preference filtering.
	if alert.Severity.AtLeast(models.SeverityCritical) {
		for _, r := range d.cfg.OnCall[alert.FactoryID] {
			add(r)
		}
	}
	return out
}

// attempt performs one delivery attempt for a job. Retries check the
// alert state at fire time: a resolved or acknowledged alert cancels
// the remaining sequence.
func (d *Dispatcher) attempt(jobID string) {
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok || job.Status.Terminal() {
		d.mu.Unlock()
		return
	}
	isRetry := job.Attempts > 0
	channel := job.Channel
	alertID := job.AlertID
	sender := d.senders[channel]
	attempt := *job
	d.mu.Unlock()

	if isRetry && d.source != nil {
		if alert, err := d.source.Get(alertID); err == nil &&
			(alert.State == models.AlertResolved || alert.State == models.AlertAcknowledged) {
			d.cancel(jobID, alert.State)
			return
		}
	}

	if sender == nil {
		d.fail(jobID, fmt.Errorf("no sender registered for channel %s", channel))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
	defer cancel()

	start := time.Now()
	err := sender.Send(ctx, &attempt)
	metrics.NotificationSendDuration.WithLabelValues(string(channel)).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.NotificationAttempts.WithLabelValues(string(channel), "failure").Inc()
		d.fail(jobID, err)
		return
	}
	metrics.NotificationAttempts.WithLabelValues(string(channel), "success").Inc()
	d.succeed(jobID)
}

// succeed marks a job sent and feeds the outcome back to the alert.
func (d *Dispatcher) succeed(jobID string) {
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok || job.Status.Terminal() {
		d.mu.Unlock()
		return
	}
	job.Attempts++
	job.Status = models.JobSent
	job.LastError = ""
	job.UpdatedAt = d.nowFn()
	clone := job.Clone()
	d.mu.Unlock()

	d.persist(clone)
	if d.source != nil {
		d.source.SetNotificationStatus(clone.AlertID, clone.Channel, models.JobSent)
	}
}

// fail records a failed attempt, scheduling a retry or exhausting the
// job when the budget is spent.
func (d *Dispatcher) fail(jobID string, sendErr error) {
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok || job.Status.Terminal() {
		d.mu.Unlock()
		return
	}
	now := d.nowFn()
	job.Attempts++
	job.LastError = sendErr.Error()
	job.UpdatedAt = now

	exhausted := d.cfg.Retry.Exhausted(job.Attempts)
	if exhausted {
		job.Status = models.JobExhausted
		job.NextAttemptAt = time.Time{}
	} else {
		job.Status = models.JobFailed
		job.NextAttemptAt = now.Add(d.cfg.Retry.Delay(job.Attempts))
	}
	clone := job.Clone()
	d.mu.Unlock()

	d.logger.Warn("notification attempt failed",
		zap.String("job_id", jobID),
		zap.String("channel", string(clone.Channel)),
		zap.Int("attempts", clone.Attempts),
		zap.Bool("exhausted", exhausted),
		zap.Error(sendErr),
	)

	d.persist(clone)
	if exhausted {
		metrics.NotificationJobsExhausted.WithLabelValues(string(clone.Channel)).Inc()
		if d.source != nil {
			d.source.SetNotificationStatus(clone.AlertID, clone.Channel, models.JobExhausted)
		}
		return
	}
	if d.source != nil {
		d.source.SetNotificationStatus(clone.AlertID, clone.Channel, models.JobFailed)
	}
	d.sched.Schedule(jobID, clone.NextAttemptAt)
}

// cancel terminates a job's retry sequence because its alert left the
// open state.
func (d *Dispatcher) cancel(jobID string, state models.AlertState) {
	d.mu.Lock()
	job, ok := d.jobs[jobID]
	if !ok || job.Status.Terminal() {
		d.mu.Unlock()
		return
	}
	job.Status = models.JobCancelled
	job.NextAttemptAt = time.Time{}
	job.UpdatedAt = d.nowFn()
	clone := job.Clone()
	d.mu.Unlock()

	d.logger.Info("notification retries cancelled",
		zap.String("job_id", jobID),
		zap.String("alert_state", string(state)),
	)
	d.persist(clone)
}

// ReportOutcome records a delivery outcome reported by an external
// channel integration, driving the same bookkeeping as a local
// attempt.
func (d *Dispatcher) ReportOutcome(jobID string, status models.JobStatus) error {
	d.mu.RLock()
	_, ok := d.jobs[jobID]
	d.mu.RUnlock()
	if !ok {
		return ErrJobNotFound
	}

	switch status {
	case models.JobSent:
		d.succeed(jobID)
		return nil
	case models.JobFailed:
		d.fail(jobID, errors.New("delivery failure reported by channel integration"))
		return nil
	default:
		return fmt.Errorf("outcome must be %q or %q, got %q",
			models.JobSent, models.JobFailed, status)
	}
}

// Job returns a job by ID.
func (d *Dispatcher) Job(jobID string) (*models.NotificationJob, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	job, ok := d.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// Jobs returns all jobs for an alert, oldest first.
func (d *Dispatcher) Jobs(alertID string) []*models.NotificationJob {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ids := d.jobsByAlert[alertID]
	out := make([]*models.NotificationJob, 0, len(ids))
	for _, id := range ids {
		if job, ok := d.jobs[id]; ok {
			out = append(out, job.Clone())
		}
	}
	return out
}

// PruneSettledBefore drops terminal jobs (sent, cancelled, or
// exhausted) last touched before cutoff from the in-memory index.
// Pending and retrying jobs are never pruned. Returns the number
// pruned.
func (d *Dispatcher) PruneSettledBefore(cutoff time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	pruned := 0
	for id, job := range d.jobs {
		if !job.Status.Terminal() || !job.UpdatedAt.Before(cutoff) {
			continue
		}
		delete(d.jobs, id)
		pruned++

		ids := d.jobsByAlert[job.AlertID]
		for i, jid := range ids {
			if jid == id {
				d.jobsByAlert[job.AlertID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
		if len(d.jobsByAlert[job.AlertID]) == 0 {
			delete(d.jobsByAlert, job.AlertID)
		}
	}
	if pruned > 0 {
		d.logger.Info("pruned settled notification jobs", zap.Int("count", pruned))
	}
	return pruned
}

// Close stops the scheduler and closes all senders.
func (d *Dispatcher) Close() error {
	d.sched.Stop()

	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for name, s := range d.senders {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	d.senders = make(map[models.Channel]Sender)

	if len(errs) > 0 {
		return fmt.Errorf("close senders: %v", errs)
	}
	return nil
}

func (d *Dispatcher) persist(job *models.NotificationJob) {
	if d.store == nil {
		return
	}
	if err := d.store.SaveJob(context.Background(), job); err != nil {
		d.logger.Warn("persist notification job failed",
			zap.String("job_id", job.ID),
			zap.Error(err),
		)
	}
}
