package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/predictops/mlcp/pkg/models"
)

type ModelsRegisterOptions struct {
	Name         string
	ArtifactFile string
	Metrics      []string
	Params       []string
	Tags         []string
}

type ModelsPromoteOptions struct {
	Name    string
	Version int
	Stage   string
}

type ModelsCompareOptions struct {
	Name         string
	Limit        int
	OutputFormat string
}

func NewModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage registered model versions",
	}

	cmd.AddCommand(newModelsRegisterCmd())
	cmd.AddCommand(newModelsPromoteCmd())
	cmd.AddCommand(newModelsCompareCmd())
	cmd.AddCommand(newModelsListCmd())
	cmd.AddCommand(newModelsTagCmd())

	return cmd
}

func newModelsRegisterCmd() *cobra.Command {
	opts := &ModelsRegisterOptions{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register a trained model artifact as a new version",
		Example: `  # Register with evaluation metrics and training parameters
  mlcp-cli models register --name aqi-forecaster --artifact model.bin \
    --metric rmse=3.2 --metric mae=2.1 --param n_estimators=200`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelsRegister(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Model name (required)")
	cmd.Flags().StringVarP(&opts.ArtifactFile, "artifact", "a", "", "Serialized model file (required)")
	cmd.Flags().StringArrayVar(&opts.Metrics, "metric", nil, "Evaluation metric as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Params, "param", nil, "Training parameter as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&opts.Tags, "tag", nil, "Tag as key=value (repeatable)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("artifact")

	return cmd
}

func runModelsRegister(cmd *cobra.Command, opts *ModelsRegisterOptions) error {
	metrics, err := parseMetricFlags(opts.Metrics)
	if err != nil {
		return err
	}
	params, err := parseParamFlags(opts.Params)
	if err != nil {
		return err
	}
	tags, err := parsePairFlags(opts.Tags)
	if err != nil {
		return err
	}

	file, err := os.Open(opts.ArtifactFile)
	if err != nil {
		return fmt.Errorf("failed to open artifact file: %w", err)
	}
	defer file.Close()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger()
	ctx := cmd.Context()

	reg, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer reg.Close()

	blobs, err := openArtifactStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer blobs.Close()

	// The artifact slot is the version the registry will assign next.
	next := 1
	if latest, err := reg.Compare(ctx, opts.Name, 1); err == nil && len(latest) > 0 {
		next = latest[0].Version + 1
	}
	ref, err := blobs.Put(ctx, opts.Name, next, file)
	if err != nil {
		return err
	}

	mv, err := reg.LogModel(ctx, ref, opts.Name, metrics, params, tags)
	if err != nil {
		return err
	}

	fmt.Printf("Registered %s version %d\n", mv.ModelName, mv.Version)
	fmt.Printf("  Run ID:   %s\n", mv.RunID)
	fmt.Printf("  Artifact: %s (%d bytes, sha256 %s)\n", mv.Artifact.URI, mv.Artifact.SizeBytes, mv.Artifact.Checksum)
	return nil
}

func newModelsPromoteCmd() *cobra.Command {
	opts := &ModelsPromoteOptions{}

	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Move a model version to a new lifecycle stage",
		Example: `  # Stage a candidate, then promote it
  mlcp-cli models promote --name aqi-forecaster --version 3 --stage Staging
  mlcp-cli models promote --name aqi-forecaster --version 3 --stage Production`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelsPromote(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Model name (required)")
	cmd.Flags().IntVar(&opts.Version, "version", 0, "Version number (required)")
	cmd.Flags().StringVarP(&opts.Stage, "stage", "s", "", "Target stage: Staging, Production or Archived (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("version")
	cmd.MarkFlagRequired("stage")

	return cmd
}

func runModelsPromote(cmd *cobra.Command, opts *ModelsPromoteOptions) error {
	stage, err := models.ParseStage(opts.Stage)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := openRegistry(cmd.Context(), cfg, newLogger())
	if err != nil {
		return err
	}
	defer reg.Close()

	if err := reg.Promote(cmd.Context(), opts.Name, opts.Version, stage); err != nil {
		return err
	}
	fmt.Printf("Promoted %s version %d to %s\n", opts.Name, opts.Version, stage)
	return nil
}

func newModelsCompareCmd() *cobra.Command {
	opts := &ModelsCompareOptions{}

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare recent versions of a model side by side",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModelsCompare(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Name, "name", "n", "", "Model name (required)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 5, "Number of recent versions to show")
	cmd.Flags().StringVar(&opts.OutputFormat, "format", "table", "Output format (table, json)")
	cmd.MarkFlagRequired("name")

	return cmd
}

func runModelsCompare(cmd *cobra.Command, opts *ModelsCompareOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	reg, err := openRegistry(cmd.Context(), cfg, newLogger())
	if err != nil {
		return err
	}
	defer reg.Close()

	comparisons, err := reg.Compare(cmd.Context(), opts.Name, opts.Limit)
	if err != nil {
		return err
	}

	if opts.OutputFormat == "json" {
		return printJSON(comparisons)
	}

	fmt.Printf("Model: %s\n", opts.Name)
	for _, c := range comparisons {
		fmt.Printf("\nVersion %d  [%s]  %s\n", c.Version, c.Stage, c.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Run ID: %s\n", c.RunID)
		for _, name := range sortedKeys(c.Metrics) {
			fmt.Printf("  metric %s = %g\n", name, c.Metrics[name])
		}
		for _, name := range sortedParamKeys(c.Params) {
			fmt.Printf("  param  %s = %s\n", name, c.Params[name].String())
		}
	}
	return nil
}

func newModelsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered model names",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := openRegistry(cmd.Context(), cfg, newLogger())
			if err != nil {
				return err
			}
			defer reg.Close()

			for _, name := range reg.ListModels(cmd.Context()) {
				fmt.Println(name)
			}
			return nil
		},
	}
	return cmd
}

func newModelsTagCmd() *cobra.Command {
	var (
		name    string
		version int
		tag     string
	)

	cmd := &cobra.Command{
		Use:   "tag",
		Short: "Set a tag on a model version",
		Example: `  mlcp-cli models tag --name aqi-forecaster --version 3 --set validated_by=batch-eval`,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value, ok := strings.Cut(tag, "=")
			if !ok || key == "" {
				return fmt.Errorf("tag must be key=value, got %q", tag)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := openRegistry(cmd.Context(), cfg, newLogger())
			if err != nil {
				return err
			}
			defer reg.Close()

			if err := reg.SetTag(cmd.Context(), name, version, key, value); err != nil {
				return err
			}
			fmt.Printf("Tagged %s version %d: %s=%s\n", name, version, key, value)
			return nil
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Model name (required)")
	cmd.Flags().IntVar(&version, "version", 0, "Version number (required)")
	cmd.Flags().StringVar(&tag, "set", "", "Tag as key=value (required)")
	cmd.MarkFlagRequired("name")
	cmd.MarkFlagRequired("version")
	cmd.MarkFlagRequired("set")

	return cmd
}

func parsePairFlags(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[key] = value
	}
	return out, nil
}

func parseMetricFlags(pairs []string) (map[string]float64, error) {
	raw, err := parsePairFlags(pairs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(raw))
	for key, value := range raw {
		var f float64
		if _, err := fmt.Sscanf(value, "%g", &f); err != nil {
			return nil, fmt.Errorf("metric %s: %q is not a number", key, value)
		}
		out[key] = f
	}
	return out, nil
}

// parseParamFlags keeps each value's natural JSON type: numbers and booleans
// parse as themselves, everything else stays a string.
func parseParamFlags(pairs []string) (map[string]models.ParamValue, error) {
	raw, err := parsePairFlags(pairs)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.ParamValue, len(raw))
	for key, value := range raw {
		var pv models.ParamValue
		if err := json.Unmarshal([]byte(value), &pv); err != nil {
			pv = models.StringParam(value)
		}
		out[key] = pv
	}
	return out, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedParamKeys(m map[string]models.ParamValue) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
