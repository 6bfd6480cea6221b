package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/predictops/mlcp/internal/drift"
	"github.com/predictops/mlcp/pkg/models"
)

type DriftDetectOptions struct {
	Group         string
	ReferenceRows int
	CurrentRows   int
	Numeric       []string
	Categorical   []string
	OutputFormat  string
	SaveToHistory bool
}

type DriftStatsOptions struct {
	Group         string
	ReferenceRows int
	CurrentRows   int
	Numeric       []string
}

func NewDriftCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Detect input distribution drift",
	}

	cmd.AddCommand(newDriftDetectCmd())
	cmd.AddCommand(newDriftStatsCmd())
	cmd.AddCommand(newDriftHistoryCmd())

	return cmd
}

func newDriftDetectCmd() *cobra.Command {
	opts := &DriftDetectOptions{}

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Compare recent feature rows against an older reference window",
		Long: `Splits a feature group's history into a reference window and a current
window, then runs two-sample tests per feature: Kolmogorov-Smirnov for
numeric features, chi-square for categorical ones.`,
		Example: `  # Compare the last 24 rows against the 168 before them
  mlcp-cli drift detect --group hourly_aqi --reference-rows 168 --current-rows 24 \
    --numeric pm25 --numeric pm10 --categorical station`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriftDetect(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "Feature group name (required)")
	cmd.Flags().IntVar(&opts.ReferenceRows, "reference-rows", 168, "Size of the reference window")
	cmd.Flags().IntVar(&opts.CurrentRows, "current-rows", 24, "Size of the current window")
	cmd.Flags().StringArrayVar(&opts.Numeric, "numeric", nil, "Numeric feature to test (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Categorical, "categorical", nil, "Categorical feature to test (repeatable)")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "table", "Output format (table, json)")
	cmd.Flags().BoolVar(&opts.SaveToHistory, "save", false, "Append the report to the drift history file")
	cmd.MarkFlagRequired("group")

	return cmd
}

func runDriftDetect(cmd *cobra.Command, opts *DriftDetectOptions) error {
	if len(opts.Numeric) == 0 && len(opts.Categorical) == 0 {
		return fmt.Errorf("at least one --numeric or --categorical feature is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	reference, current, err := splitWindows(cmd, opts.Group, opts.ReferenceRows, opts.CurrentRows)
	if err != nil {
		return err
	}

	detector, err := drift.NewDetector(reference, &cfg.Drift.Detector, logger)
	if err != nil {
		return err
	}
	report, err := detector.Detect(current, opts.Numeric, opts.Categorical)
	if err != nil {
		return err
	}

	if opts.SaveToHistory {
		if err := drift.SaveReport(report, cfg.Drift.HistoryPath); err != nil {
			return err
		}
	}

	if opts.OutputFormat == "json" {
		return printJSON(report)
	}
	printDriftReport(report)
	return nil
}

func newDriftStatsCmd() *cobra.Command {
	opts := &DriftStatsOptions{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize numeric feature statistics across the two windows",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDriftStats(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "Feature group name (required)")
	cmd.Flags().IntVar(&opts.ReferenceRows, "reference-rows", 168, "Size of the reference window")
	cmd.Flags().IntVar(&opts.CurrentRows, "current-rows", 24, "Size of the current window")
	cmd.Flags().StringArrayVar(&opts.Numeric, "numeric", nil, "Numeric feature to summarize (repeatable, required)")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("numeric")

	return cmd
}

func runDriftStats(cmd *cobra.Command, opts *DriftStatsOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	reference, current, err := splitWindows(cmd, opts.Group, opts.ReferenceRows, opts.CurrentRows)
	if err != nil {
		return err
	}

	detector, err := drift.NewDetector(reference, &cfg.Drift.Detector, newLogger())
	if err != nil {
		return err
	}
	summary, err := detector.StatisticsSummary(current, opts.Numeric)
	if err != nil {
		return err
	}

	features := make([]string, 0, len(summary))
	for name := range summary {
		features = append(features, name)
	}
	sort.Strings(features)

	for _, name := range features {
		s := summary[name]
		fmt.Printf("%s\n", name)
		fmt.Printf("  reference: mean=%.4f std=%.4f min=%.4f max=%.4f n=%d\n",
			s.Reference.Mean, s.Reference.StdDev, s.Reference.Min, s.Reference.Max, s.Reference.Count)
		fmt.Printf("  current:   mean=%.4f std=%.4f min=%.4f max=%.4f n=%d\n",
			s.Current.Mean, s.Current.StdDev, s.Current.Min, s.Current.Max, s.Current.Count)
		fmt.Printf("  mean change: %+.2f%%\n", s.MeanChangePct)
	}
	return nil
}

func newDriftHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show saved drift reports, newest last",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reports, err := drift.History(cfg.Drift.HistoryPath)
			if err != nil {
				return err
			}
			if limit > 0 && len(reports) > limit {
				reports = reports[len(reports)-limit:]
			}
			for _, report := range reports {
				status := "ok"
				if report.Summary.OverallDrift {
					status = "DRIFT"
				}
				fmt.Printf("%s  %-5s  %d/%d features drifted\n",
					report.Timestamp.Format(time.RFC3339), status,
					report.Summary.NumDrifted, report.Summary.TotalFeatures)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Show only the N most recent reports")
	return cmd
}

// splitWindows loads the newest referenceRows+currentRows rows of the group
// and splits them into the two comparison windows.
func splitWindows(cmd *cobra.Command, group string, referenceRows, currentRows int) (*models.FeatureSet, *models.FeatureSet, error) {
	if referenceRows <= 0 || currentRows <= 0 {
		return nil, nil, fmt.Errorf("window sizes must be positive")
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := openFeatureStore(cmd.Context(), cfg, newLogger())
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()

	// Latest returns newest first; re-reverse into write order before
	// splitting so the reference window is the older slice.
	latest, err := store.Latest(cmd.Context(), group, referenceRows+currentRows)
	if err != nil {
		return nil, nil, err
	}
	if latest.Len() <= currentRows {
		return nil, nil, fmt.Errorf("feature group %q has %d rows, need more than %d", group, latest.Len(), currentRows)
	}

	ordered := make([]models.FeatureRecord, latest.Len())
	for i, rec := range latest.Records {
		ordered[len(ordered)-1-i] = rec
	}

	split := len(ordered) - currentRows
	reference := models.NewFeatureSet(group, ordered[:split])
	current := models.NewFeatureSet(group, ordered[split:])
	return reference, current, nil
}

func printDriftReport(report *models.DriftReport) {
	fmt.Printf("Drift report @ %s\n", report.Timestamp.Format(time.RFC3339))

	features := make([]string, 0, len(report.Scores))
	for name := range report.Scores {
		features = append(features, name)
	}
	sort.Strings(features)

	for _, name := range features {
		score := report.Scores[name]
		status := "ok"
		if score.Drifted {
			status = "DRIFT"
		}
		if !score.Tested {
			status += " (untested)"
		}
		fmt.Printf("  %-20s %-14s %-9s stat=%.4f p=%.4f\n",
			name, score.Test, status, score.Statistic, score.PValue)
	}

	s := report.Summary
	fmt.Printf("\n%d features: %d tested, %d untested, %d drifted (%.1f%%)\n",
		s.TotalFeatures, s.TestedFeatures, s.UntestedFeatures, s.NumDrifted, s.DriftPercentage)
	if s.OverallDrift {
		fmt.Println("Overall: DRIFT DETECTED")
	} else {
		fmt.Println("Overall: no drift")
	}
}
