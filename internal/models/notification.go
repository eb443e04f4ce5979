package models

import (
	"fmt"
	"time"
)

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// ParseChannel converts a string to a Channel.
func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelSMS, ChannelEmail, ChannelPush:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}

// AlertEvent is the alert transition that triggered a dispatch.
type AlertEvent string

const (
	EventOpened    AlertEvent = "opened"
	EventEscalated AlertEvent = "escalated"
	EventRenotify  AlertEvent = "renotify"
)

// JobStatus is the delivery state of a notification job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobSent      JobStatus = "sent"
	JobFailed    JobStatus = "failed"
	JobExhausted JobStatus = "exhausted"
	JobCancelled JobStatus = "cancelled"
)

// ParseJobStatus converts a string to a JobStatus.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobPending, JobSent, JobFailed, JobExhausted, JobCancelled:
		return JobStatus(s), nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// Terminal reports whether the status ends the job's retry sequence.
func (s JobStatus) Terminal() bool {
	return s == JobSent || s == JobExhausted || s == JobCancelled
}

// NotificationJob tracks one delivery attempt sequence for one
// (alert event, channel, recipient) tuple. Owned by the dispatcher;
// status-reporting callers only ever see clones.
type NotificationJob struct {
	ID        string     `json:"id"`
	AlertID   string     `json:"alert_id"`
	Event     AlertEvent `json:"event"`
	Channel   Channel    `json:"channel"`
	Recipient string     `json:"recipient"`
	Subject   string     `json:"subject,omitempty"`
	Body      string     `json:"body"`

	Status        JobStatus `json:"status"`
	Attempts      int       `json:"attempts"`
	NextAttemptAt time.Time `json:"next_attempt_at"`
	LastError     string    `json:"last_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Clone returns a copy safe to hand to concurrent readers.
func (j *NotificationJob) Clone() *NotificationJob {
	c := *j
	return &c
}
