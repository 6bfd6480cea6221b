package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/predictops/mlcp/pkg/models"
)

type FeaturesSaveOptions struct {
	Group     string
	InputFile string
}

type FeaturesQueryOptions struct {
	Group        string
	Latest       int
	OutputFormat string
}

func NewFeaturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "features",
		Short: "Manage engineered feature groups",
	}

	cmd.AddCommand(newFeaturesSaveCmd())
	cmd.AddCommand(newFeaturesLoadCmd())
	cmd.AddCommand(newFeaturesLatestCmd())
	cmd.AddCommand(newFeaturesGroupsCmd())

	return cmd
}

func newFeaturesSaveCmd() *cobra.Command {
	opts := &FeaturesSaveOptions{}

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Append a batch of feature rows to a group",
		Example: `  # Append rows from a JSON file
  mlcp-cli features save --group hourly_aqi --input rows.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeaturesSave(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "Feature group name (required)")
	cmd.Flags().StringVarP(&opts.InputFile, "input", "i", "", "JSON file with an array of feature rows (required)")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("input")

	return cmd
}

func runFeaturesSave(cmd *cobra.Command, opts *FeaturesSaveOptions) error {
	records, err := readFeatureRows(opts.InputFile, opts.Group)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	store, err := openFeatureStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(cmd.Context(), opts.Group, records); err != nil {
		return err
	}
	fmt.Printf("Saved %d rows to feature group %q\n", len(records), opts.Group)
	return nil
}

func newFeaturesLoadCmd() *cobra.Command {
	opts := &FeaturesQueryOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Read rows from a feature group",
		Example: `  # All rows, oldest first
  mlcp-cli features load --group hourly_aqi

  # The 24 most recent rows
  mlcp-cli features load --group hourly_aqi --latest 24`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFeaturesLoad(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "Feature group name (required)")
	cmd.Flags().IntVarP(&opts.Latest, "latest", "n", 0, "Return only the N most recent rows, newest first")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "table", "Output format (table, json)")
	cmd.MarkFlagRequired("group")

	return cmd
}

func runFeaturesLoad(cmd *cobra.Command, opts *FeaturesQueryOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()

	store, err := openFeatureStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	var set *models.FeatureSet
	if opts.Latest > 0 {
		set, err = store.Latest(cmd.Context(), opts.Group, opts.Latest)
	} else {
		set, err = store.Load(cmd.Context(), opts.Group)
	}
	if err != nil {
		return err
	}

	if opts.OutputFormat == "json" {
		return printJSON(set)
	}
	printFeatureTable(set)
	return nil
}

func newFeaturesLatestCmd() *cobra.Command {
	opts := &FeaturesQueryOptions{}

	cmd := &cobra.Command{
		Use:   "latest",
		Short: "Read the N most recent rows of a feature group, newest first",
		Example: `  mlcp-cli features latest --group hourly_aqi -n 24`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Latest <= 0 {
				return fmt.Errorf("-n must be positive")
			}
			return runFeaturesLoad(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Group, "group", "g", "", "Feature group name (required)")
	cmd.Flags().IntVarP(&opts.Latest, "latest", "n", 24, "Number of rows to return")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "table", "Output format (table, json)")
	cmd.MarkFlagRequired("group")

	return cmd
}

func newFeaturesGroupsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "List known feature groups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openFeatureStore(cmd.Context(), cfg, newLogger())
			if err != nil {
				return err
			}
			defer store.Close()

			groups, err := store.Groups(cmd.Context())
			if err != nil {
				return err
			}
			for _, group := range groups {
				fmt.Println(group)
			}
			return nil
		},
	}
	return cmd
}

// readFeatureRows parses a JSON array of objects into feature records. Rows
// may be bare value maps or full records with "values" and "created_at".
func readFeatureRows(path, group string) ([]models.FeatureRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}

	var full []models.FeatureRecord
	if err := json.Unmarshal(data, &full); err == nil && len(full) > 0 && full[0].Values != nil {
		for i := range full {
			full[i].Group = group
			if full[i].CreatedAt.IsZero() {
				full[i].CreatedAt = time.Now().UTC()
			}
		}
		return full, nil
	}

	var rows []map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("input must be a JSON array of objects: %w", err)
	}

	now := time.Now().UTC()
	records := make([]models.FeatureRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.FeatureRecord{
			Values:    row,
			Group:     group,
			CreatedAt: now,
		})
	}
	return records, nil
}

func printFeatureTable(set *models.FeatureSet) {
	columns := set.Columns()
	fmt.Printf("Group: %s (%d rows)\n", set.Group, set.Len())
	fmt.Printf("%-25s %s\n", "TIMESTAMP", strings.Join(columns, "  "))
	for _, rec := range set.Records {
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			if raw, ok := rec.Values[col]; ok && raw != nil {
				cells = append(cells, fmt.Sprintf("%v", raw))
			} else {
				cells = append(cells, "-")
			}
		}
		fmt.Printf("%-25s %s\n", rec.CreatedAt.Format(time.RFC3339), strings.Join(cells, "  "))
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
