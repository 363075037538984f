package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig drops a YAML config file into a temp dir and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "glassbox.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// validConfig returns a configuration that passes Validate.
func validConfig() *Config {
	return &Config{
		Train:     "train.csv",
		Target:    "Death",
		Delimiter: ";",
		OutputDir: "out",
		Threshold: 0.5,
		LogLevel:  "info",
		LogFormat: "console",
		Models: ModelsConfig{
			Forest: ForestConfig{Estimators: 100},
		},
		Tuning:  TuningConfig{Folds: 5, Scoring: "auc"},
		Explain: ExplainConfig{ImportanceRounds: 10, ShapleyRounds: 25, GridSize: 20},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfgPath := writeConfig(t, "train: data/train.csv\n")

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "data/train.csv", cfg.Train)
	assert.Equal(t, cfgPath, cfg.File)

	assert.Equal(t, "Death", cfg.Target)
	assert.Equal(t, ";", cfg.Delimiter)
	assert.Equal(t, "out", cfg.OutputDir)
	assert.Equal(t, int64(1313), cfg.Seed)
	assert.InDelta(t, 0.5, cfg.Threshold, 1e-12)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)

	assert.Equal(t, 4, cfg.Models.Tree.MaxDepth)
	assert.Equal(t, 2, cfg.Models.Tree.MinSamplesSplit)
	assert.Equal(t, 100, cfg.Models.Forest.Estimators)
	assert.Equal(t, "sqrt", cfg.Models.Forest.MaxFeatures)
	assert.Equal(t, 1000, cfg.Models.Logistic.MaxIter)

	assert.Equal(t, 5, cfg.Tuning.Folds)
	assert.Equal(t, "auc", cfg.Tuning.Scoring)
	assert.Equal(t, []int{50, 100, 200}, cfg.Tuning.Estimators)

	assert.Equal(t, 10, cfg.Explain.ImportanceRounds)
	assert.Equal(t, 25, cfg.Explain.ShapleyRounds)
	assert.Equal(t, 20, cfg.Explain.GridSize)
}

func TestLoad_FileOverrides(t *testing.T) {
	cfgPath := writeConfig(t, `train: first.csv
validation: second.csv
target: Outcome
output_dir: results
seed: 7
threshold: 0.4
models:
  tree:
    max_depth: 3
  forest:
    estimators: 250
    max_features: "8"
tuning:
  folds: 3
  estimators: [10, 20]
explain:
  shapley_rounds: 50
`)

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "first.csv", cfg.Train)
	assert.Equal(t, "second.csv", cfg.Validation)
	assert.Equal(t, "Outcome", cfg.Target)
	assert.Equal(t, "results", cfg.OutputDir)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.InDelta(t, 0.4, cfg.Threshold, 1e-12)

	assert.Equal(t, 3, cfg.Models.Tree.MaxDepth)
	assert.Equal(t, 250, cfg.Models.Forest.Estimators)
	assert.Equal(t, 8, cfg.Models.Forest.MaxFeaturesValue())

	assert.Equal(t, 3, cfg.Tuning.Folds)
	assert.Equal(t, []int{10, 20}, cfg.Tuning.Estimators)
	assert.Equal(t, 50, cfg.Explain.ShapleyRounds)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10, cfg.Explain.ImportanceRounds)
	assert.Equal(t, "sqrt", cfg.Tuning.MaxFeatures[0])
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	cfgPath := writeConfig(t, "train: from_file.csv\noutput_dir: from_file\n")

	require.NoError(t, os.Setenv("GLASSBOX_OUTPUT_DIR", "from_env"))
	defer func() { _ = os.Unsetenv("GLASSBOX_OUTPUT_DIR") }()

	cfg, err := Load(cfgPath, nil)
	require.NoError(t, err)

	assert.Equal(t, "from_env", cfg.OutputDir, "env var should override config file")
	assert.Equal(t, "from_file.csv", cfg.Train)
}

func TestLoad_FlagPrecedence(t *testing.T) {
	cfgPath := writeConfig(t, "train: from_file.csv\noutput_dir: from_file\n")

	require.NoError(t, os.Setenv("GLASSBOX_OUTPUT_DIR", "from_env"))
	defer func() { _ = os.Unsetenv("GLASSBOX_OUTPUT_DIR") }()

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output-dir", "", "output directory")
	flags.Int64("seed", 0, "random seed")
	require.NoError(t, flags.Set("output-dir", "from_flag"))
	require.NoError(t, flags.Set("seed", "99"))

	cfg, err := Load(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "from_flag", cfg.OutputDir, "flag should override env var and config file")
	assert.Equal(t, int64(99), cfg.Seed)
}

func TestLoad_UnsetFlagFallsBack(t *testing.T) {
	cfgPath := writeConfig(t, "train: from_file.csv\noutput_dir: from_file\n")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("output-dir", "", "output directory")
	// The flag is registered but never set, so Changed stays false.

	cfg, err := Load(cfgPath, flags)
	require.NoError(t, err)

	assert.Equal(t, "from_file", cfg.OutputDir)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		cfgPath := writeConfig(t, "train: [unclosed\n")
		_, err := Load(cfgPath, nil)
		require.Error(t, err)
	})

	t.Run("no target configured", func(t *testing.T) {
		cfgPath := writeConfig(t, "target: \"\"\n")
		_, err := Load(cfgPath, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "target")
	})
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name      string
		mutate    func(*Config)
		errSubstr string
	}{
		{"missing target", func(c *Config) { c.Target = "" }, "target"},
		{"long delimiter", func(c *Config) { c.Delimiter = ";;" }, "single character"},
		{"empty delimiter", func(c *Config) { c.Delimiter = "" }, "single character"},
		{"threshold too low", func(c *Config) { c.Threshold = 0 }, "threshold"},
		{"threshold too high", func(c *Config) { c.Threshold = 1.2 }, "threshold"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"no trees", func(c *Config) { c.Models.Forest.Estimators = 0 }, "estimators"},
		{"one fold", func(c *Config) { c.Tuning.Folds = 1 }, "folds"},
		{"unknown scoring", func(c *Config) { c.Tuning.Scoring = "lift" }, "scoring"},
		{"no importance rounds", func(c *Config) { c.Explain.ImportanceRounds = 0 }, "importance_rounds"},
		{"no shapley rounds", func(c *Config) { c.Explain.ShapleyRounds = 0 }, "shapley_rounds"},
		{"tiny grid", func(c *Config) { c.Explain.GridSize = 1 }, "grid_size"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errSubstr)
		})
	}
}

func TestConfig_Delim(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, ';', cfg.Delim())

	cfg.Delimiter = ","
	assert.Equal(t, ',', cfg.Delim())

	cfg.Delimiter = ""
	assert.Equal(t, ';', cfg.Delim())
}

func TestForestConfig_MaxFeaturesValue(t *testing.T) {
	assert.Equal(t, "sqrt", ForestConfig{MaxFeatures: "sqrt"}.MaxFeaturesValue())
	assert.Equal(t, "log2", ForestConfig{MaxFeatures: "log2"}.MaxFeaturesValue())
	assert.Equal(t, 3, ForestConfig{MaxFeatures: "3"}.MaxFeaturesValue())
}

func TestTuningConfig_Grid(t *testing.T) {
	tuning := TuningConfig{
		Estimators:  []int{50, 100},
		MaxDepth:    []int{3, 5},
		MaxFeatures: []string{"sqrt", "4"},
	}

	grid := tuning.Grid()

	assert.Equal(t, []interface{}{50, 100}, grid["n_estimators"])
	assert.Equal(t, []interface{}{3, 5}, grid["max_depth"])
	assert.Equal(t, []interface{}{"sqrt", 4}, grid["max_features"])

	// Empty lists do not become grid axes.
	_, ok := grid["min_samples_split"]
	assert.False(t, ok)
}
