package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/dataset"
	"github.com/YuminosukeSato/glassbox/explain"
	"github.com/YuminosukeSato/glassbox/internal/config"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
	"github.com/YuminosukeSato/glassbox/risk"
	"github.com/YuminosukeSato/glassbox/sklearn/ensemble"
	"github.com/YuminosukeSato/glassbox/sklearn/tree"
)

type explainOptions struct {
	Model     string
	ModelType string
	Data      string
	Row       int
	Plots     bool
}

func newExplainCommand() *cobra.Command {
	opts := &explainOptions{}

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Explain one prediction of a previously saved model",
		Long: `Explain reloads a model saved by analyze and attributes its prediction
for one data row to the individual features, printing a break-down table
and sampled Shapley values. With --plots it also renders the break-down
and ceteris-paribus charts.`,
		Example: `  glassbox explain --model out/forest.gob --row 12
  glassbox explain --model out/tree.gob --model-type tree --data validation.csv
  glassbox explain --model out/scorecard.json --model-type scorecard --row 3 --plots`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExplain(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Model, "model", "", "saved model file")
	cmd.Flags().StringVar(&opts.ModelType, "model-type", "forest", "saved model kind (forest|tree|scorecard)")
	cmd.Flags().StringVar(&opts.Data, "data", "", "data file with the rows to explain (default: validation, then train)")
	cmd.Flags().IntVar(&opts.Row, "row", 0, "row to explain")
	cmd.Flags().BoolVar(&opts.Plots, "plots", false, "also render break-down and ceteris-paribus plots")
	_ = cmd.MarkFlagRequired("model")

	return cmd
}

func runExplain(cmd *cobra.Command, opts *explainOptions) error {
	cfg := configFrom(cmd.Context())
	out := cmd.OutOrStdout()

	m, err := loadSavedModel(opts.ModelType, opts.Model)
	if err != nil {
		return err
	}

	path := opts.Data
	if path == "" {
		path = cfg.Validation
	}
	if path == "" {
		path = cfg.Train
	}
	if path == "" {
		return errors.NewValidationError("data", "a data file is required", path)
	}

	tbl, err := dataset.Load(path,
		dataset.WithDelimiter(cfg.Delim()),
		dataset.WithTarget(cfg.Target),
	)
	if err != nil {
		return err
	}
	tbl = tbl.DropIncomplete()

	X, y, features, err := tbl.Features(cfg.Target)
	if err != nil {
		return err
	}

	exp, err := explain.NewExplainer(m, X, y,
		explain.WithFeatureNames(features),
		explain.WithLabel(opts.ModelType),
		explain.WithThreshold(cfg.Threshold),
	)
	if err != nil {
		return err
	}

	obs, err := observation(X, opts.Row)
	if err != nil {
		return err
	}

	bd, err := exp.BreakDown(obs)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Break-down for row %d of %s (%s):\n", opts.Row, path, bd.Label)
	printBreakDown(out, bd)

	sh, err := exp.ShapleyValues(obs,
		explain.WithShapleyRounds(cfg.Explain.ShapleyRounds),
		explain.WithShapleySeed(cfg.Seed),
		explain.WithShapleyWorkers(cfg.Explain.Workers),
	)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nShapley values over %d rounds:\n", sh.Rounds)
	printShapley(out, sh)

	if !opts.Plots {
		return nil
	}
	return writeExplainPlots(cfg, exp, bd, obs, opts.Row)
}

// loadSavedModel restores a model written by analyze. Forests and trees
// come back from gob, scorecards from their JSON weight export.
func loadSavedModel(modelType, path string) (explain.ProbabilityModel, error) {
	switch modelType {
	case "forest":
		rf := ensemble.NewRandomForestClassifier()
		if err := rf.Load(path); err != nil {
			return nil, err
		}
		return rf, nil
	case "tree":
		dt := tree.NewDecisionTreeClassifier()
		if err := model.LoadModel(dt, path); err != nil {
			return nil, err
		}
		return dt, nil
	case "scorecard":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read scorecard weights %s", path)
		}
		var weights model.ModelWeights
		if err := weights.FromJSON(data); err != nil {
			return nil, err
		}
		card := risk.NewScorecard(nil, nil)
		if err := card.ImportWeights(&weights); err != nil {
			return nil, err
		}
		return card, nil
	default:
		return nil, errors.NewValidationError("model-type", "must be one of forest, tree, scorecard", modelType)
	}
}

func printBreakDown(w io.Writer, r *explain.BreakDownResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Feature", "Value", "Contribution", "Cumulative"})
	t.AppendRow(table.Row{"(intercept)", "", fmt.Sprintf("%+.4f", r.Intercept), fmt.Sprintf("%.4f", r.Intercept)})
	for _, c := range r.Contributions {
		t.AppendRow(table.Row{
			c.Feature,
			fmt.Sprintf("%g", c.Value),
			fmt.Sprintf("%+.4f", c.Contribution),
			fmt.Sprintf("%.4f", c.Cumulative),
		})
	}
	t.AppendFooter(table.Row{"prediction", "", "", fmt.Sprintf("%.4f", r.Prediction)})
	t.Render()
}

func printShapley(w io.Writer, r *explain.ShapleyResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Feature", "Value", "Mean", "Std"})
	t.AppendRow(table.Row{"(intercept)", "", fmt.Sprintf("%.4f", r.Intercept), ""})
	for _, c := range r.Contributions {
		t.AppendRow(table.Row{
			c.Feature,
			fmt.Sprintf("%g", c.Value),
			fmt.Sprintf("%+.4f", c.Mean),
			fmt.Sprintf("%.4f", c.Std),
		})
	}
	t.AppendFooter(table.Row{"prediction", "", fmt.Sprintf("%.4f", r.Prediction), ""})
	t.Render()
}

// writeExplainPlots renders the break-down chart plus ceteris-paribus
// curves for the two strongest features of the explained row.
func writeExplainPlots(cfg *config.Config, exp *explain.Explainer, bd *explain.BreakDownResult, obs *mat.VecDense, row int) error {
	plotDir := filepath.Join(cfg.OutputDir, "plots")
	if err := os.MkdirAll(plotDir, 0o750); err != nil {
		return errors.Wrap(err, "failed to create plot directory")
	}

	bdPath := filepath.Join(plotDir, fmt.Sprintf("breakdown_row%d.png", row))
	if err := explain.PlotBreakDown(bd, bdPath); err != nil {
		return err
	}

	top := make([]string, 0, 2)
	for _, c := range bd.Contributions {
		if len(top) == 2 {
			break
		}
		top = append(top, c.Feature)
	}
	cp, err := exp.CeterisParibus(obs, top, explain.WithGridSize(cfg.Explain.GridSize))
	if err != nil {
		return err
	}
	cpPath := filepath.Join(plotDir, fmt.Sprintf("cp_row%d.png", row))
	if err := explain.PlotCeterisParibus(cp, cpPath); err != nil {
		return err
	}

	log.GetLoggerWithName("cli.explain").Info("plots written",
		"breakdown", bdPath,
		"ceteris_paribus", cpPath,
	)
	return nil
}
