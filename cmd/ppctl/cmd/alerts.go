package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

var (
	alertFactory  string
	alertSeverity string
	alertState    string
	alertActor    string
)

// alertRecord mirrors the server's alert representation.
type alertRecord struct {
	ID                 string            `json:"id"`
	DeviceID           string            `json:"device_id"`
	SensorType         string            `json:"sensor_type"`
	FactoryID          string            `json:"factory_id"`
	Severity           string            `json:"severity"`
	State              string            `json:"state"`
	Message            string            `json:"message"`
	OpenedAt           string            `json:"opened_at"`
	AcknowledgedBy     string            `json:"acknowledged_by"`
	ResolvedBy         string            `json:"resolved_by"`
	OccurrenceCount    int               `json:"occurrence_count"`
	NotificationStatus map[string]string `json:"notification_status"`
}

type alertList struct {
	Items []alertRecord `json:"items"`
	Total int           `json:"total"`
}

// alertsCmd represents the alerts command group
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert management commands",
	Long: `Commands for listing and working alerts on a PlantPulse server.

Examples:
  # List open alerts for one factory
  ppctl alerts list --state open --factory plant-a

  # Show one alert
  ppctl alerts show 4f6b2c1d

  # Acknowledge and later resolve it
  ppctl alerts ack 4f6b2c1d --actor alice
  ppctl alerts resolve 4f6b2c1d --actor alice`,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		if alertFactory != "" {
			q.Set("factory_id", alertFactory)
		}
		if alertSeverity != "" {
			q.Set("severity", alertSeverity)
		}
		if alertState != "" {
			q.Set("state", alertState)
		}
		path := "/api/v1/alerts"
		if len(q) > 0 {
			path += "?" + q.Encode()
		}

		var list alertList
		if err := newClient().get(path, &list); err != nil {
			return err
		}

		if output == "json" {
			return printJSON(list)
		}

		if list.Total == 0 {
			fmt.Println("No alerts found.")
			return nil
		}

		fmt.Printf("\n%-36s  %-18s  %-12s  %-8s  %-12s  %s\n",
			"ID", "DEVICE", "SENSOR", "SEVERITY", "STATE", "OPENED")
		fmt.Println(strings.Repeat("-", 110))
		for _, a := range list.Items {
			fmt.Printf("%-36s  %-18s  %-12s  %-8s  %-12s  %s\n",
				a.ID, a.DeviceID, a.SensorType, a.Severity, a.State, a.OpenedAt)
		}
		fmt.Printf("\n%d alert(s)\n", list.Total)
		return nil
	},
}

var alertsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var a alertRecord
		if err := newClient().get("/api/v1/alerts/"+url.PathEscape(args[0]), &a); err != nil {
			return err
		}

		if output == "json" {
			return printJSON(a)
		}

		fmt.Printf("ID:          %s\n", a.ID)
		fmt.Printf("Device:      %s\n", a.DeviceID)
		fmt.Printf("Sensor:      %s\n", a.SensorType)
		fmt.Printf("Factory:     %s\n", a.FactoryID)
		fmt.Printf("Severity:    %s\n", a.Severity)
		fmt.Printf("State:       %s\n", a.State)
		fmt.Printf("Opened:      %s\n", a.OpenedAt)
		fmt.Printf("Occurrences: %d\n", a.OccurrenceCount)
		fmt.Printf("Message:     %s\n", a.Message)
		if len(a.NotificationStatus) > 0 {
			fmt.Println("Notifications:")
			for ch, st := range a.NotificationStatus {
				fmt.Printf("  %-8s %s\n", ch, st)
			}
		}
		return nil
	},
}

var alertsAckCmd = &cobra.Command{
	Use:   "ack <id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"actor": alertActor}
		var a alertRecord
		if err := newClient().post("/api/v1/alerts/"+url.PathEscape(args[0])+"/acknowledge", body, &a); err != nil {
			return err
		}
		fmt.Printf("Alert %s acknowledged by %s\n", a.ID, alertActor)
		return nil
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Resolve an alert",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := map[string]string{"actor": alertActor}
		var a alertRecord
		if err := newClient().post("/api/v1/alerts/"+url.PathEscape(args[0])+"/resolve", body, &a); err != nil {
			return err
		}
		fmt.Printf("Alert %s resolved by %s\n", a.ID, alertActor)
		return nil
	},
}

func init() {
	alertsListCmd.Flags().StringVar(&alertFactory, "factory", "", "filter by factory ID")
	alertsListCmd.Flags().StringVar(&alertSeverity, "severity", "", "filter by severity (low, medium, high, critical)")
	alertsListCmd.Flags().StringVar(&alertState, "state", "", "filter by state (open, acknowledged, resolved)")

	alertsAckCmd.Flags().StringVar(&alertActor, "actor", "", "operator performing the action (required)")
	alertsAckCmd.MarkFlagRequired("actor")
	alertsResolveCmd.Flags().StringVar(&alertActor, "actor", "", "operator performing the action (required)")
	alertsResolveCmd.MarkFlagRequired("actor")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsShowCmd)
	alertsCmd.AddCommand(alertsAckCmd)
	alertsCmd.AddCommand(alertsResolveCmd)
	rootCmd.AddCommand(alertsCmd)
}
