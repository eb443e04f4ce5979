// Package notifier fans alert events out to delivery channels with
// independent per-job retry and backoff.
package notifier

import (
	"context"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// Sender is the interface all delivery channels implement. Send is
// called with a per-attempt timeout context; a timeout counts as a
// failed attempt for backoff purposes.
type Sender interface {
	// Channel returns the channel this sender delivers on.
	Channel() models.Channel
	// Send delivers one notification job to its recipient.
	Send(ctx context.Context, job *models.NotificationJob) error
	// Close releases any resources.
	Close() error
}
