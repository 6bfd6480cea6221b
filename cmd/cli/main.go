package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/predictops/mlcp/cmd/cli/commands"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mlcp-cli",
		Short: "ML prediction-service control plane CLI",
		Long: `A command-line interface for the prediction-service control plane:
feature storage, model registry, drift detection and performance monitoring.`,
		Version: "0.1.0",
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mlcp.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(commands.NewFeaturesCmd())
	rootCmd.AddCommand(commands.NewModelsCmd())
	rootCmd.AddCommand(commands.NewDriftCmd())
	rootCmd.AddCommand(commands.NewMonitorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func initConfig() {
	if cfgFile != "" {
		commands.SetConfigFile(cfgFile)
	} else if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".mlcp")
		if err := viper.ReadInConfig(); err == nil {
			commands.SetConfigFile(viper.ConfigFileUsed())
		}
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("MLCP")

	if verbose {
		commands.SetVerbose(true)
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintln(os.Stderr, "Using config file:", used)
		}
	}
}
