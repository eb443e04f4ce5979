package notifier

import (
	"container/heap"
	"sync"
	"time"
)

// retryScheduler fires job retries at their scheduled times. One
// goroutine owns a timer over a min-heap of pending entries, so a
// waiting retry never blocks a goroutine of its own.
type retryScheduler struct {
	mu      sync.Mutex
	entries entryHeap
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started bool

	fire func(jobID string)
}

type schedEntry struct {
	at    time.Time
	jobID string
}

type entryHeap []schedEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].at.Before(h[j].at) }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *entryHeap) Push(x interface{}) { *h = append(*h, x.(schedEntry)) }
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// newRetryScheduler creates a scheduler that calls fire for each due
// job ID.
func newRetryScheduler(fire func(jobID string)) *retryScheduler {
	return &retryScheduler{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
		fire: fire,
	}
}

// Start begins the scheduler loop.
func (s *retryScheduler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	go s.loop()
}

// Stop terminates the loop; pending entries are discarded.
func (s *retryScheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

// Schedule registers a job to fire at the given time.
func (s *retryScheduler) Schedule(jobID string, at time.Time) {
	s.mu.Lock()
	heap.Push(&s.entries, schedEntry{at: at, jobID: jobID})
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of scheduled entries.
func (s *retryScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.Len()
}

func (s *retryScheduler) loop() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		s.mu.Lock()
		var wait time.Duration
		if s.entries.Len() == 0 {
			wait = time.Hour
		} else {
			wait = time.Until(s.entries[0].at)
		}
		s.mu.Unlock()

		if wait <= 0 {
			s.fireDue()
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(wait)

		select {
		case <-s.stop:
			return
		case <-s.wake:
		case <-timer.C:
			s.fireDue()
		}
	}
}

// fireDue pops and fires every entry whose time has come. Callbacks
// run in their own goroutines so a slow delivery never delays the
// timer loop.
func (s *retryScheduler) fireDue() {
	now := time.Now()

	s.mu.Lock()
	var due []string
	for s.entries.Len() > 0 && !s.entries[0].at.After(now) {
		e := heap.Pop(&s.entries).(schedEntry)
		due = append(due, e.jobID)
	}
	s.mu.Unlock()

	for _, id := range due {
		go s.fire(id)
	}
}
