package notifier

import (
	"strings"
	"testing"
	"time"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

func templateAlert(message string) *models.Alert {
	return &models.Alert{
		ID:              "a1",
		DeviceID:        "press-07",
		SensorType:      models.SensorTemperature,
		FactoryID:       "plant-a",
		Severity:        models.SeverityHigh,
		State:           models.AlertOpen,
		Message:         message,
		OpenedAt:        time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		OccurrenceCount: 4,
	}
}

func TestSMSTruncation(t *testing.T) {
	long := strings.Repeat("temperature excursion ", 20)
	msg := renderMessage(models.ChannelSMS, models.EventOpened, templateAlert(long))

	if len(msg.Body) != smsMaxLen {
		t.Errorf("len(Body) = %d, want %d", len(msg.Body), smsMaxLen)
	}
	if !strings.HasSuffix(msg.Body, "...") {
		t.Errorf("Body = %q, want ... suffix", msg.Body)
	}
	if msg.Subject != "" {
		t.Errorf("Subject = %q, want empty for sms", msg.Subject)
	}
}

func TestSMSShortBodyNotTruncated(t *testing.T) {
	msg := renderMessage(models.ChannelSMS, models.EventOpened, templateAlert("hot"))
	if strings.HasSuffix(msg.Body, "...") {
		t.Errorf("Body = %q, short message should not be truncated", msg.Body)
	}
}

func TestEmailMessage(t *testing.T) {
	msg := renderMessage(models.ChannelEmail, models.EventEscalated, templateAlert("reading 95 °C"))

	if !strings.Contains(msg.Subject, "HIGH") {
		t.Errorf("Subject = %q, want upper-case severity", msg.Subject)
	}
	if !strings.Contains(msg.Subject, "escalated") {
		t.Errorf("Subject = %q, want event verb", msg.Subject)
	}
	for _, want := range []string{"press-07", "plant-a", "temperature", "reading 95 °C"} {
		if !strings.Contains(msg.Body, want) {
			t.Errorf("Body missing %q:\n%s", want, msg.Body)
		}
	}
}

func TestPushMessage(t *testing.T) {
	msg := renderMessage(models.ChannelPush, models.EventRenotify, templateAlert("still hot"))
	if !strings.Contains(msg.Subject, "HIGH") {
		t.Errorf("Subject = %q, want severity title", msg.Subject)
	}
	if !strings.Contains(msg.Body, "still firing") {
		t.Errorf("Body = %q, want renotify verb", msg.Body)
	}
}
