// Package glassbox is a library and CLI for responsible modeling on
// small tabular health data: transparent models next to black-box ones,
// honest evaluation on a later period and model-agnostic explanations.
//
// The packages walk the full path of a tabular risk study:
//
//   - dataset: semicolon-delimited loading with Yes/No and Male/Female
//     encoding, missing-value handling, summaries and stratified splits
//   - risk: a hand-written points-based scorecard with logistic
//     calibration, rendered as a table a clinician can apply
//   - sklearn/tree, sklearn/ensemble, sklearn/linear_model: decision
//     tree, random forest and logistic regression classifiers
//   - sklearn/model_selection: k-fold splitters, cross-validation,
//     grid and randomized parameter search
//   - metrics: confusion-matrix metrics, ROC/AUC, log loss, Brier
//   - explain: permutation importance, partial dependence, ceteris
//     paribus, break-down and Shapley attributions with gonum plots
//   - report: a self-contained HTML report of the whole study
//   - preprocessing: scalers and label encoding
//
// # Quick Start
//
// Load a cohort, fit a forest and explain it:
//
//	tbl, err := dataset.Load("train.csv", dataset.WithTarget("Death"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	X, y, features, err := tbl.Features("Death")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rf := ensemble.NewRandomForestClassifier(ensemble.WithRandomState(1313))
//	if err := rf.Fit(X, y); err != nil {
//	    log.Fatal(err)
//	}
//
//	exp, err := explain.NewExplainer(rf, X, y, explain.WithFeatureNames(features))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	imp, err := exp.PermutationImportance()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(imp.Importances)
//
// The glassbox command under cmd/glassbox drives the same workflow from
// the shell; examples/mortality_study is the complete walkthrough.
//
// # Errors and warnings
//
// Operations return typed errors (NotFittedError, DimensionError,
// ValidationError) carrying stack traces; recoverable data issues are
// routed through the pkg/errors warning handler instead of failing the
// run. See examples/error_handling.
package glassbox
