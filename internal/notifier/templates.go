package notifier

import (
	"fmt"
	"strings"

	"github.com/tidewater-labs/plantpulse/internal/models"
)

// smsMaxLen is the truncation limit for SMS bodies.
const smsMaxLen = 120

// Message is the rendered notification content for one channel.
type Message struct {
	Subject string
	Body    string
}

// renderMessage builds channel-appropriate content for an alert event.
func renderMessage(channel models.Channel, event models.AlertEvent, alert *models.Alert) Message {
	base := fmt.Sprintf("%s %s on device %s (%s), factory %s: %s",
		strings.ToUpper(alert.Severity.String()),
		alert.SensorType,
		alert.DeviceID,
		eventVerb(event),
		alert.FactoryID,
		alert.Message,
	)

	switch channel {
	case models.ChannelSMS:
		body := base
		if len(body) > smsMaxLen {
			body = body[:smsMaxLen-3] + "..."
		}
		return Message{Body: body}

	case models.ChannelEmail:
		subject := fmt.Sprintf("[%s] PlantPulse alert %s: %s/%s",
			strings.ToUpper(alert.Severity.String()),
			eventVerb(event),
			alert.DeviceID,
			alert.SensorType,
		)
		var b strings.Builder
		fmt.Fprintf(&b, "Alert %s\n\n", eventVerb(event))
		fmt.Fprintf(&b, "Device:     %s\n", alert.DeviceID)
		fmt.Fprintf(&b, "Sensor:     %s\n", alert.SensorType)
		fmt.Fprintf(&b, "Factory:    %s\n", alert.FactoryID)
		fmt.Fprintf(&b, "Severity:   %s\n", alert.Severity)
		fmt.Fprintf(&b, "State:      %s\n", alert.State)
		fmt.Fprintf(&b, "Opened:     %s\n", alert.OpenedAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(&b, "Occurrences: %d\n\n", alert.OccurrenceCount)
		fmt.Fprintf(&b, "%s\n", alert.Message)
		return Message{Subject: subject, Body: b.String()}

	case models.ChannelPush:
		title := fmt.Sprintf("%s: %s %s", strings.ToUpper(alert.Severity.String()),
			alert.SensorType, eventVerb(event))
		return Message{Subject: title, Body: base}
	}

	return Message{Body: base}
}

func eventVerb(event models.AlertEvent) string {
	switch event {
	case models.EventOpened:
		return "opened"
	case models.EventEscalated:
		return "escalated"
	case models.EventRenotify:
		return "still firing"
	default:
		return string(event)
	}
}
