package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YuminosukeSato/glassbox/dataset"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

type summaryOptions struct {
	Data string
}

func newSummaryCommand() *cobra.Command {
	opts := &summaryOptions{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print per-column statistics for a data file",
		Long: `Summary loads one delimited data file and prints a table with one row
per column: count, missing values, mean, standard deviation, min,
quartiles and max for numeric columns, level counts for flags.`,
		Example: `  glassbox summary --train train.csv
  glassbox summary --data validation.csv --delimiter ";"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSummary(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "data file to summarize (default: the training file)")

	return cmd
}

func runSummary(cmd *cobra.Command, opts *summaryOptions) error {
	cfg := configFrom(cmd.Context())

	path := opts.Data
	if path == "" {
		path = cfg.Train
	}
	if path == "" {
		return errors.NewValidationError("data", "a data file is required", path)
	}

	tbl, err := dataset.Load(path, dataset.WithDelimiter(cfg.Delim()))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d rows, %d columns\n\n", path, tbl.NRows(), tbl.NCols())
	tbl.Describe().Render(out)
	return nil
}
