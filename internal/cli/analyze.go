package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/dataset"
	"github.com/YuminosukeSato/glassbox/explain"
	"github.com/YuminosukeSato/glassbox/internal/config"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
	"github.com/YuminosukeSato/glassbox/preprocessing"
	"github.com/YuminosukeSato/glassbox/report"
	"github.com/YuminosukeSato/glassbox/risk"
	"github.com/YuminosukeSato/glassbox/sklearn/ensemble"
	"github.com/YuminosukeSato/glassbox/sklearn/linear_model"
	"github.com/YuminosukeSato/glassbox/sklearn/model_selection"
	"github.com/YuminosukeSato/glassbox/sklearn/tree"
)

type analyzeOptions struct {
	Row int
}

func newAnalyzeCommand() *cobra.Command {
	opts := &analyzeOptions{}

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Fit, evaluate and explain every model, then write the report",
		Long: `Analyze runs the full study: it loads the training data, fits the risk
scorecard, the decision tree, the random forest, the cross-validated
forest and the logistic baseline, scores them on the evaluation period,
computes permutation importance, partial dependence, break-down and
Shapley attributions for the tuned forest, and writes plots, saved
models and a self-contained HTML report to the output directory.`,
		Example: `  glassbox analyze --train train.csv --validation validation.csv
  glassbox analyze --train train.csv --seed 7 --output-dir results
  glassbox analyze --config study.yaml --explain-row 12`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Row, "explain-row", 0, "evaluation row explained in the report")

	return cmd
}

// study bundles the loaded tables with their matrix views. Evaluation
// features are aligned to the training column order.
type study struct {
	train    *dataset.Table
	eval     *dataset.Table
	evalName string

	X        *mat.Dense
	y        *mat.VecDense
	features []string
	Xe       *mat.Dense
	ye       *mat.VecDense
}

type studyModels struct {
	card        *risk.Scorecard
	tree        *tree.DecisionTreeClassifier
	forest      *ensemble.RandomForestClassifier
	tuned       *ensemble.RandomForestClassifier
	tunedParams map[string]interface{}
	scaler      *preprocessing.StandardScaler
	logit       *linear_model.LogisticRegression
}

func runAnalyze(cmd *cobra.Command, opts *analyzeOptions) error {
	cfg := configFrom(cmd.Context())
	out := cmd.OutOrStdout()
	start := time.Now()

	st, err := loadStudy(cfg)
	if err != nil {
		return err
	}

	models, err := fitStudyModels(cfg, st)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	models.card.RenderCard(out)
	fmt.Fprintln(out)

	rep := report.NewBuilder("glassbox model report")
	rep.AddVersion("glassbox", Version)
	rep.AddDataset("training", st.train.Describe())
	rep.AddDataset(st.evalName, st.eval.Describe())

	entries := []struct {
		label string
		m     explain.ProbabilityModel
	}{
		{"risk scorecard", models.card},
		{"decision tree", models.tree},
		{"random forest", models.forest},
		{"tuned forest", models.tuned},
		{"logistic baseline", &scaledModel{scaler: models.scaler, inner: models.logit}},
	}

	var tunedExp *explain.Explainer
	var tunedPerf *explain.Performance
	perfs := make([]*explain.Performance, 0, len(entries))
	for _, entry := range entries {
		exp, err := explain.NewExplainer(entry.m, st.Xe, st.ye,
			explain.WithFeatureNames(st.features),
			explain.WithLabel(entry.label),
			explain.WithThreshold(cfg.Threshold),
		)
		if err != nil {
			return err
		}
		perf, err := exp.ModelPerformance()
		if err != nil {
			return err
		}
		perfs = append(perfs, perf)
		rep.AddPerformance(perf)
		if entry.label == "tuned forest" {
			tunedExp = exp
			tunedPerf = perf
		}
	}

	fmt.Fprintf(out, "Tuned forest parameters: %v\n\n", models.tunedParams)
	fmt.Fprintf(out, "Evaluation on %s (%d rows):\n", st.evalName, st.eval.NRows())
	writePerformanceTable(out, perfs)

	if err := rep.AddCoefficients("logistic baseline", models.logit, st.features); err != nil {
		return err
	}
	if err := writeExplanations(cfg, rep, tunedExp, tunedPerf, st, opts.Row); err != nil {
		return err
	}
	if err := saveModels(cfg, models); err != nil {
		return err
	}

	path, err := rep.WriteFile(cfg.OutputDir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nReport written to %s\n", path)
	fmt.Fprintf(out, "Completed in %s\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// loadStudy reads the training data and the evaluation period. Without a
// validation file the training table is split, stratified on the target.
func loadStudy(cfg *config.Config) (*study, error) {
	logger := log.GetLoggerWithName("cli.analyze")

	if cfg.Train == "" {
		return nil, errors.NewValidationError("train", "training data file is required", cfg.Train)
	}
	train, err := dataset.Load(cfg.Train,
		dataset.WithDelimiter(cfg.Delim()),
		dataset.WithTarget(cfg.Target),
	)
	if err != nil {
		return nil, err
	}
	clean := train.DropIncomplete()
	if dropped := train.NRows() - clean.NRows(); dropped > 0 {
		logger.Warn("dropped incomplete rows", "file", cfg.Train, "rows", dropped)
	}
	train = clean

	var eval *dataset.Table
	evalName := "held-out split"
	if cfg.Validation != "" {
		eval, err = dataset.Load(cfg.Validation,
			dataset.WithDelimiter(cfg.Delim()),
			dataset.WithTarget(cfg.Target),
		)
		if err != nil {
			return nil, err
		}
		cleanEval := eval.DropIncomplete()
		if dropped := eval.NRows() - cleanEval.NRows(); dropped > 0 {
			logger.Warn("dropped incomplete rows", "file", cfg.Validation, "rows", dropped)
		}
		eval = cleanEval
		evalName = "validation"
	} else {
		train, eval, err = train.TrainTestSplit(0.25, cfg.Seed, cfg.Target)
		if err != nil {
			return nil, err
		}
	}

	X, y, features, err := train.Features(cfg.Target)
	if err != nil {
		return nil, err
	}
	Xe, ye, err := eval.FeaturesAs(cfg.Target, features)
	if err != nil {
		return nil, err
	}

	logger.Info("data loaded",
		"train_rows", train.NRows(),
		"eval_rows", eval.NRows(),
		"features", len(features),
		"evaluation", evalName,
	)

	return &study{
		train:    train,
		eval:     eval,
		evalName: evalName,
		X:        X,
		y:        y,
		features: features,
		Xe:       Xe,
		ye:       ye,
	}, nil
}

func fitStudyModels(cfg *config.Config, st *study) (*studyModels, error) {
	logger := log.GetLoggerWithName("cli.analyze")

	card := risk.NewScorecard(risk.DefaultCardiacRules(st.features), st.features,
		risk.WithClassThreshold(cfg.Threshold))
	if err := card.Fit(st.X, st.y); err != nil {
		return nil, err
	}

	dt := tree.NewDecisionTreeClassifier(
		tree.WithMaxDepth(cfg.Models.Tree.MaxDepth),
		tree.WithMinSamplesSplit(cfg.Models.Tree.MinSamplesSplit),
		tree.WithMinSamplesLeaf(cfg.Models.Tree.MinSamplesLeaf),
		tree.WithRandomState(cfg.Seed),
	)
	if err := dt.Fit(st.X, st.y); err != nil {
		return nil, err
	}

	rf := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(cfg.Models.Forest.Estimators),
		ensemble.WithMaxDepth(cfg.Models.Forest.MaxDepth),
		ensemble.WithMinSamplesSplit(cfg.Models.Forest.MinSamplesSplit),
		ensemble.WithMinSamplesLeaf(cfg.Models.Forest.MinSamplesLeaf),
		ensemble.WithMaxFeatures(cfg.Models.Forest.MaxFeaturesValue()),
		ensemble.WithRandomState(cfg.Seed),
		ensemble.WithNJobs(cfg.Models.Forest.Workers),
	)
	if err := rf.Fit(st.X, st.y); err != nil {
		return nil, err
	}

	// Candidate forests run single-threaded; the search parallelizes
	// across candidates instead.
	search := model_selection.NewGridSearchCV(
		func() model_selection.TunableClassifier {
			return ensemble.NewRandomForestClassifier(
				ensemble.WithRandomState(cfg.Seed),
				ensemble.WithNJobs(1),
			)
		},
		cfg.Tuning.Grid(),
		model_selection.WithSearchScoring(cfg.Tuning.Scoring),
		model_selection.WithSearchSplitter(model_selection.NewStratifiedKFold(cfg.Tuning.Folds, true, int(cfg.Seed))),
		model_selection.WithSearchNJobs(cfg.Tuning.Workers),
	)
	if err := search.Fit(st.X, st.y); err != nil {
		return nil, err
	}
	tuned, ok := search.BestModel().(*ensemble.RandomForestClassifier)
	if !ok {
		return nil, errors.NewValueError("analyze", "grid search returned an unexpected model type")
	}
	logger.Info("grid search finished",
		"candidates", len(search.Results()),
		"best_score", search.BestScore(),
		"best_params", fmt.Sprintf("%v", search.BestParams()),
	)

	scaler := preprocessing.NewStandardScalerDefault()
	Xs, err := scaler.FitTransform(st.X)
	if err != nil {
		return nil, err
	}
	logit := linear_model.NewLogisticRegression(
		linear_model.WithLRMaxIter(cfg.Models.Logistic.MaxIter),
		linear_model.WithLRTol(cfg.Models.Logistic.Tol),
		linear_model.WithLRC(cfg.Models.Logistic.C),
	)
	if err := logit.Fit(Xs, st.y); err != nil {
		return nil, err
	}

	return &studyModels{
		card:        card,
		tree:        dt,
		forest:      rf,
		tuned:       tuned,
		tunedParams: search.BestParams(),
		scaler:      scaler,
		logit:       logit,
	}, nil
}

// scaledModel standardizes features before delegating, so a model fitted
// on scaled inputs can be scored against raw evaluation rows.
type scaledModel struct {
	scaler model.Transformer
	inner  explain.ProbabilityModel
}

func (s *scaledModel) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	Xs, err := s.scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	return s.inner.PredictProba(Xs)
}

func (s *scaledModel) Classes() []int { return s.inner.Classes() }

func writePerformanceTable(w io.Writer, perfs []*explain.Performance) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Model", "Accuracy", "Precision", "Recall", "F1", "AUC", "Log loss", "Brier"})
	for _, p := range perfs {
		t.AppendRow(table.Row{
			p.Label,
			fmt.Sprintf("%.3f", p.Accuracy),
			fmt.Sprintf("%.3f", p.Precision),
			fmt.Sprintf("%.3f", p.Recall),
			fmt.Sprintf("%.3f", p.F1),
			fmt.Sprintf("%.3f", p.AUC),
			fmt.Sprintf("%.3f", p.LogLoss),
			fmt.Sprintf("%.3f", p.Brier),
		})
	}
	t.Render()
}

// writeExplanations renders the tuned forest's explanation artifacts into
// <output-dir>/plots and registers them with the report.
func writeExplanations(cfg *config.Config, rep *report.Builder, exp *explain.Explainer, perf *explain.Performance, st *study, row int) error {
	plotDir := filepath.Join(cfg.OutputDir, "plots")
	if err := os.MkdirAll(plotDir, 0o750); err != nil {
		return errors.Wrap(err, "failed to create plot directory")
	}

	imp, err := exp.PermutationImportance(
		explain.WithImportanceRounds(cfg.Explain.ImportanceRounds),
		explain.WithImportanceSeed(cfg.Seed),
		explain.WithImportanceWorkers(cfg.Explain.Workers),
	)
	if err != nil {
		return err
	}
	impPath := filepath.Join(plotDir, "importance.png")
	if err := explain.PlotImportance(imp, impPath); err != nil {
		return err
	}
	if err := rep.AddPlotFile("Permutation importance", impPath); err != nil {
		return err
	}

	top := topFeatures(imp, 2)

	pd, err := exp.PartialDependence(top, explain.WithGridSize(cfg.Explain.GridSize))
	if err != nil {
		return err
	}
	pdPath := filepath.Join(plotDir, "pdp.png")
	if err := explain.PlotPartialDependence(pd, pdPath); err != nil {
		return err
	}
	if err := rep.AddPlotFile("Partial dependence", pdPath); err != nil {
		return err
	}

	obs, err := observation(st.Xe, row)
	if err != nil {
		return err
	}

	cp, err := exp.CeterisParibus(obs, top, explain.WithGridSize(cfg.Explain.GridSize))
	if err != nil {
		return err
	}
	cpPath := filepath.Join(plotDir, "cp.png")
	if err := explain.PlotCeterisParibus(cp, cpPath); err != nil {
		return err
	}
	if err := rep.AddPlotFile(fmt.Sprintf("Ceteris paribus, row %d", row), cpPath); err != nil {
		return err
	}

	bd, err := exp.BreakDown(obs)
	if err != nil {
		return err
	}
	bdPath := filepath.Join(plotDir, "breakdown.png")
	if err := explain.PlotBreakDown(bd, bdPath); err != nil {
		return err
	}
	if err := rep.AddPlotFile(fmt.Sprintf("Break-down, row %d", row), bdPath); err != nil {
		return err
	}
	rep.AddBreakDown(bd)

	sh, err := exp.ShapleyValues(obs,
		explain.WithShapleyRounds(cfg.Explain.ShapleyRounds),
		explain.WithShapleySeed(cfg.Seed),
		explain.WithShapleyWorkers(cfg.Explain.Workers),
	)
	if err != nil {
		return err
	}
	rep.AddShapley(sh)

	rocPath := filepath.Join(plotDir, "roc.png")
	if err := explain.PlotROC(perf, rocPath); err != nil {
		return err
	}
	return rep.AddPlotFile("ROC curve", rocPath)
}

func topFeatures(imp *explain.ImportanceResult, n int) []string {
	if n > len(imp.Importances) {
		n = len(imp.Importances)
	}
	names := make([]string, 0, n)
	for _, fi := range imp.Importances[:n] {
		names = append(names, fi.Feature)
	}
	return names
}

// saveModels persists the refittable models: the tuned forest and the
// tree as gob, the scorecard as portable JSON weights. The logistic
// baseline is not saved; it is only meaningful next to its fitted scaler.
func saveModels(cfg *config.Config, m *studyModels) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o750); err != nil {
		return errors.Wrap(err, "failed to create output directory")
	}
	if err := m.tuned.Save(filepath.Join(cfg.OutputDir, "forest.gob")); err != nil {
		return err
	}
	if err := model.SaveModel(m.tree, filepath.Join(cfg.OutputDir, "tree.gob")); err != nil {
		return err
	}
	weights, err := m.card.ExportWeights()
	if err != nil {
		return err
	}
	data, err := weights.ToJSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(cfg.OutputDir, "scorecard.json"), data, 0o600); err != nil {
		return errors.Wrap(err, "failed to write scorecard weights")
	}
	return nil
}
