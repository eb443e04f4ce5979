package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

var (
	readingDevice    string
	readingSensor    string
	readingValue     float64
	readingUnit      string
	readingFactory   string
	readingTimestamp string
	readingFile      string
)

// readingsCmd represents the readings command group
var readingsCmd = &cobra.Command{
	Use:   "readings",
	Short: "Reading submission commands",
	Long: `Commands for submitting sensor readings to a PlantPulse server.

Useful for smoke-testing a deployment or replaying captured data.

Examples:
  # Submit a single reading
  ppctl readings send --device press-07 --sensor temperature --value 85.2 --unit "°C" --factory plant-a

  # Submit a batch from a JSON file (array of reading objects)
  ppctl readings send --file readings.json`,
}

type rawReading struct {
	DeviceID   string   `json:"device_id"`
	SensorType string   `json:"sensor_type"`
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit"`
	Timestamp  string   `json:"timestamp,omitempty"`
	FactoryID  string   `json:"factory_id"`
}

type batchResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	Results  []struct {
		Index  int    `json:"index"`
		Status string `json:"status"`
		Error  string `json:"error"`
	} `json:"results"`
}

var readingsSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Submit one reading or a batch file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if readingFile != "" {
			return sendBatch(readingFile)
		}

		if readingDevice == "" || readingSensor == "" || readingUnit == "" {
			return fmt.Errorf("--device, --sensor, and --unit are required without --file")
		}

		value := readingValue
		raw := rawReading{
			DeviceID:   readingDevice,
			SensorType: readingSensor,
			Value:      &value,
			Unit:       readingUnit,
			Timestamp:  readingTimestamp,
			FactoryID:  readingFactory,
		}

		var resp struct {
			DeviceID   string `json:"device_id"`
			SensorType string `json:"sensor_type"`
			Timestamp  string `json:"timestamp"`
			Status     string `json:"status"`
		}
		if err := newClient().post("/api/v1/readings", raw, &resp); err != nil {
			return err
		}

		fmt.Printf("Reading %s for %s/%s at %s\n",
			resp.Status, resp.DeviceID, resp.SensorType, resp.Timestamp)
		return nil
	},
}

func sendBatch(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read batch file: %w", err)
	}

	var raws []rawReading
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("parse batch file: %w", err)
	}

	var result batchResult
	if err := newClient().post("/api/v1/readings/batch", raws, &result); err != nil {
		return err
	}

	if output == "json" {
		return printJSON(result)
	}

	fmt.Printf("Accepted %d, rejected %d of %d readings\n",
		result.Accepted, result.Rejected, len(raws))
	for _, r := range result.Results {
		if r.Status != "accepted" {
			fmt.Printf("  [%d] %s: %s\n", r.Index, r.Status, r.Error)
		}
	}
	return nil
}

var readingsClassifyCmd = &cobra.Command{
	Use:   "classify <device_id> <sensor_type>",
	Short: "Show the current classification for a series",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := fmt.Sprintf("/api/v1/series/%s/%s/classification",
			url.PathEscape(args[0]), url.PathEscape(args[1]))

		var c struct {
			DeviceID            string  `json:"device_id"`
			SensorType          string  `json:"sensor_type"`
			SampleCount         int     `json:"sample_count"`
			Severity            string  `json:"severity"`
			Score               float64 `json:"score"`
			Basis               string  `json:"basis"`
			Reason              string  `json:"reason"`
			FailureHorizonHours float64 `json:"failure_horizon_hours"`
		}
		if err := newClient().get(path, &c); err != nil {
			return err
		}

		if output == "json" {
			return printJSON(c)
		}

		fmt.Printf("Series:   %s/%s\n", c.DeviceID, c.SensorType)
		fmt.Printf("Samples:  %d\n", c.SampleCount)
		fmt.Printf("Severity: %s\n", c.Severity)
		fmt.Printf("Score:    %.2f (%s)\n", c.Score, c.Basis)
		if c.Reason != "" {
			fmt.Printf("Reason:   %s\n", c.Reason)
		}
		if c.FailureHorizonHours > 0 {
			fmt.Printf("Horizon:  %.1f hours to hard limit\n", c.FailureHorizonHours)
		}
		return nil
	},
}

func init() {
	readingsSendCmd.Flags().StringVar(&readingDevice, "device", "", "device ID")
	readingsSendCmd.Flags().StringVar(&readingSensor, "sensor", "", "sensor type (temperature, humidity, vibration, pressure, noise, tension)")
	readingsSendCmd.Flags().Float64Var(&readingValue, "value", 0, "reading value")
	readingsSendCmd.Flags().StringVar(&readingUnit, "unit", "", "reading unit")
	readingsSendCmd.Flags().StringVar(&readingFactory, "factory", "", "factory ID")
	readingsSendCmd.Flags().StringVar(&readingTimestamp, "timestamp", "", "RFC3339 timestamp (default: server receive time)")
	readingsSendCmd.Flags().StringVar(&readingFile, "file", "", "JSON file holding an array of readings")

	readingsCmd.AddCommand(readingsSendCmd)
	readingsCmd.AddCommand(readingsClassifyCmd)
	rootCmd.AddCommand(readingsCmd)
}
