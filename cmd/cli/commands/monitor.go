package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/predictops/mlcp/internal/monitor"
	"github.com/predictops/mlcp/pkg/models"
)

type MonitorMetricsOptions struct {
	InputFile    string
	WindowSize   int
	OutputFormat string
}

func NewMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Inspect prediction performance logs",
	}

	cmd.AddCommand(newMonitorMetricsCmd())

	return cmd
}

func newMonitorMetricsCmd() *cobra.Command {
	opts := &MonitorMetricsOptions{}

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Compute error metrics over a flushed prediction log",
		Long: `Replays a JSON prediction log (as written by the monitor's flush) and
computes MAE, RMSE and max error over the most recent window. Entries without
a ground-truth actual are counted but excluded from the error math.`,
		Example: `  mlcp-cli monitor metrics --input predictions.json --window 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitorMetrics(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "Prediction log file (required)")
	cmd.Flags().IntVarP(&opts.WindowSize, "window", "w", 100, "Window size in entries")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "table", "Output format (table, json)")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runMonitorMetrics(opts *MonitorMetricsOptions) error {
	data, err := os.ReadFile(opts.InputFile)
	if err != nil {
		return fmt.Errorf("failed to read prediction log: %w", err)
	}
	var entries []models.PredictionLogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("prediction log must be a JSON array of entries: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	capacity := cfg.Monitor.Capacity
	if len(entries) > capacity {
		capacity = len(entries)
	}

	m, err := monitor.New(&monitor.Config{Capacity: capacity}, newLogger())
	if err != nil {
		return err
	}
	for _, entry := range entries {
		m.Log(entry.Prediction, entry.Actual, entry.Metadata)
	}

	metrics := m.Metrics(opts.WindowSize)
	if opts.OutputFormat == "json" {
		return printJSON(metrics)
	}

	fmt.Printf("Entries in window: %d (of %d logged)\n", metrics.TotalInWindow, len(entries))
	fmt.Printf("With ground truth: %d\n", metrics.SampleCount)
	if !metrics.HasData() {
		fmt.Println("No entries with actuals in the window; error metrics unavailable")
		return nil
	}
	fmt.Printf("MAE:       %.4f\n", metrics.MAE)
	fmt.Printf("RMSE:      %.4f\n", metrics.RMSE)
	fmt.Printf("Max error: %.4f\n", metrics.MaxError)
	return nil
}
