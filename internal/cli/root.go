// Package cli provides the glassbox command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/internal/config"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// Version is set at build time.
var Version = "0.1.0"

// configKey stores the loaded config in the command context.
type configKey struct{}

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "glassbox",
		Short: "Transparent and black-box models for tabular risk data",
		Long: `glassbox fits a hand-written risk scorecard, a decision tree, a random
forest, a tuned forest and a logistic baseline on delimited health records,
evaluates them on a later period and explains them: permutation importance,
partial dependence, break-down and Shapley attributions, plots and a single
HTML report.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Help and completion must work without a valid config.
			switch cmd.Name() {
			case "help", "completion", "__complete", "version":
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			setupLogging(cfg)
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./glassbox.yaml)")
	rootCmd.PersistentFlags().String("train", "", "training data file")
	rootCmd.PersistentFlags().String("validation", "", "later-period validation data file")
	rootCmd.PersistentFlags().String("target", "", "outcome column name")
	rootCmd.PersistentFlags().String("delimiter", "", "field separator of the data files")
	rootCmd.PersistentFlags().String("output-dir", "", "directory for plots, saved models and the report")
	rootCmd.PersistentFlags().Int64("seed", 0, "random seed")
	rootCmd.PersistentFlags().Float64("threshold", 0, "classification probability threshold")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (console|json)")

	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newSummaryCommand())
	rootCmd.AddCommand(newExplainCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// setupLogging points the library loggers at the configured sink: zerolog
// console output for terminals, the slog JSON setup for machine consumption.
func setupLogging(cfg *config.Config) {
	level := log.Level(log.ToLogLevel(cfg.LogLevel))
	if cfg.LogFormat == "json" {
		log.SetupLogger(cfg.LogLevel)
		log.SetProvider(log.NewSlogProvider(level, os.Stderr))
		return
	}
	provider := log.NewConsoleProvider(level, os.Stderr)
	provider.RouteWarnings()
	log.SetProvider(provider)
}

// configFrom returns the config stored by the root command.
func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return &config.Config{}
}

// observation copies row i of X into a vector, checking bounds.
func observation(X *mat.Dense, i int) (*mat.VecDense, error) {
	rows, cols := X.Dims()
	if i < 0 || i >= rows {
		return nil, errors.NewValidationError("row", fmt.Sprintf("must be in [0, %d)", rows), i)
	}
	buf := make([]float64, cols)
	mat.Row(buf, i, X)
	return mat.NewVecDense(cols, buf), nil
}

// newVersionCommand creates the version command.
func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "glassbox v%s\n", Version)
		},
	}
}
