// Package config loads the analysis configuration from built-in defaults,
// an optional YAML file, GLASSBOX_ environment variables and command-line
// flags, later sources overriding earlier ones.
package config

import (
	"strconv"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// Default configuration values.
const (
	DefaultTarget    = "Death"
	DefaultDelimiter = ";"
	DefaultOutputDir = "out"
	DefaultSeed      = 1313
	DefaultThreshold = 0.5
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Config holds everything the analysis commands need.
type Config struct {
	Train      string  `koanf:"train"`
	Validation string  `koanf:"validation"`
	Target     string  `koanf:"target"`
	Delimiter  string  `koanf:"delimiter"`
	OutputDir  string  `koanf:"output_dir"`
	Seed       int64   `koanf:"seed"`
	Threshold  float64 `koanf:"threshold"`
	LogLevel   string  `koanf:"log_level"`
	LogFormat  string  `koanf:"log_format"`

	Models  ModelsConfig  `koanf:"models"`
	Tuning  TuningConfig  `koanf:"tuning"`
	Explain ExplainConfig `koanf:"explain"`

	// File is the config file the values came from, empty when none was found.
	File string `koanf:"-"`
}

// ModelsConfig groups the per-model hyperparameters.
type ModelsConfig struct {
	Tree     TreeConfig     `koanf:"tree"`
	Forest   ForestConfig   `koanf:"forest"`
	Logistic LogisticConfig `koanf:"logistic"`
}

// TreeConfig configures the decision tree.
type TreeConfig struct {
	MaxDepth        int `koanf:"max_depth"`
	MinSamplesSplit int `koanf:"min_samples_split"`
	MinSamplesLeaf  int `koanf:"min_samples_leaf"`
}

// ForestConfig configures the random forest. MaxFeatures is textual so the
// file can say "sqrt", "log2" or a plain integer.
type ForestConfig struct {
	Estimators      int    `koanf:"estimators"`
	MaxDepth        int    `koanf:"max_depth"`
	MinSamplesSplit int    `koanf:"min_samples_split"`
	MinSamplesLeaf  int    `koanf:"min_samples_leaf"`
	MaxFeatures     string `koanf:"max_features"`
	Workers         int    `koanf:"workers"`
}

// LogisticConfig configures the logistic regression baseline.
type LogisticConfig struct {
	MaxIter int     `koanf:"max_iter"`
	Tol     float64 `koanf:"tol"`
	C       float64 `koanf:"c"`
}

// TuningConfig holds the cross-validated parameter grid for the forest.
type TuningConfig struct {
	Folds           int      `koanf:"folds"`
	Scoring         string   `koanf:"scoring"`
	Estimators      []int    `koanf:"estimators"`
	MaxDepth        []int    `koanf:"max_depth"`
	MinSamplesSplit []int    `koanf:"min_samples_split"`
	MaxFeatures     []string `koanf:"max_features"`
	Workers         int      `koanf:"workers"`
}

// ExplainConfig sizes the explanation artifacts.
type ExplainConfig struct {
	ImportanceRounds int `koanf:"importance_rounds"`
	ShapleyRounds    int `koanf:"shapley_rounds"`
	GridSize         int `koanf:"grid_size"`
	Workers          int `koanf:"workers"`
}

// Delim returns the field separator as a rune.
func (c *Config) Delim() rune {
	if c.Delimiter == "" {
		return ';'
	}
	return []rune(c.Delimiter)[0]
}

// MaxFeaturesValue converts the textual max_features setting into the value
// the forest options accept: an int when the text is numeric, the string
// itself otherwise.
func (f ForestConfig) MaxFeaturesValue() interface{} {
	if n, err := strconv.Atoi(f.MaxFeatures); err == nil {
		return n
	}
	return f.MaxFeatures
}

// Grid expands the tuning lists into a parameter grid keyed the way the
// forest's SetParams expects. Empty lists are left out of the grid.
func (t TuningConfig) Grid() map[string][]interface{} {
	grid := make(map[string][]interface{})
	if len(t.Estimators) > 0 {
		grid["n_estimators"] = intValues(t.Estimators)
	}
	if len(t.MaxDepth) > 0 {
		grid["max_depth"] = intValues(t.MaxDepth)
	}
	if len(t.MinSamplesSplit) > 0 {
		grid["min_samples_split"] = intValues(t.MinSamplesSplit)
	}
	if len(t.MaxFeatures) > 0 {
		vals := make([]interface{}, len(t.MaxFeatures))
		for i, v := range t.MaxFeatures {
			if n, err := strconv.Atoi(v); err == nil {
				vals[i] = n
			} else {
				vals[i] = v
			}
		}
		grid["max_features"] = vals
	}
	return grid
}

func intValues(in []int) []interface{} {
	out := make([]interface{}, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// Validate checks the loaded configuration for values no command can
// work with. The training file is required per command, not here: the
// summary command can run on any file. Input file existence is checked
// when the file is read.
func (c *Config) Validate() error {
	if c.Target == "" {
		return errors.NewValidationError("target", "target column name is required", c.Target)
	}
	if len([]rune(c.Delimiter)) != 1 {
		return errors.NewValidationError("delimiter", "must be a single character", c.Delimiter)
	}
	if c.Threshold <= 0 || c.Threshold >= 1 {
		return errors.NewValidationError("threshold", "must be in (0, 1)", c.Threshold)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return errors.NewValidationError("log_format", `must be "console" or "json"`, c.LogFormat)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return errors.NewValidationError("log_level", "must be one of debug, info, warn, error", c.LogLevel)
	}
	if c.Models.Forest.Estimators < 1 {
		return errors.NewValidationError("models.forest.estimators", "must be >= 1", c.Models.Forest.Estimators)
	}
	if c.Tuning.Folds < 2 {
		return errors.NewValidationError("tuning.folds", "must be >= 2", c.Tuning.Folds)
	}
	switch c.Tuning.Scoring {
	case "accuracy", "auc", "f1", "logloss", "brier":
	default:
		return errors.NewValidationError("tuning.scoring", "must be one of accuracy, auc, f1, logloss, brier", c.Tuning.Scoring)
	}
	if c.Explain.ImportanceRounds < 1 {
		return errors.NewValidationError("explain.importance_rounds", "must be >= 1", c.Explain.ImportanceRounds)
	}
	if c.Explain.ShapleyRounds < 1 {
		return errors.NewValidationError("explain.shapley_rounds", "must be >= 1", c.Explain.ShapleyRounds)
	}
	if c.Explain.GridSize < 2 {
		return errors.NewValidationError("explain.grid_size", "must be >= 2", c.Explain.GridSize)
	}
	return nil
}
