package config

import (
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// envPrefix is the prefix for configuration environment variables.
// GLASSBOX_OUTPUT_DIR sets the output_dir key and so on.
const envPrefix = "GLASSBOX_"

// defaults returns the built-in configuration as flattened koanf keys.
func defaults() map[string]interface{} {
	return map[string]interface{}{
		"target":     DefaultTarget,
		"delimiter":  DefaultDelimiter,
		"output_dir": DefaultOutputDir,
		"seed":       int64(DefaultSeed),
		"threshold":  DefaultThreshold,
		"log_level":  DefaultLogLevel,
		"log_format": DefaultLogFormat,

		"models.tree.max_depth":         4,
		"models.tree.min_samples_split": 2,
		"models.tree.min_samples_leaf":  1,

		"models.forest.estimators":        100,
		"models.forest.max_depth":         0,
		"models.forest.min_samples_split": 2,
		"models.forest.min_samples_leaf":  1,
		"models.forest.max_features":      "sqrt",
		"models.forest.workers":           0,

		"models.logistic.max_iter": 1000,
		"models.logistic.tol":      1e-4,
		"models.logistic.c":        1.0,

		"tuning.folds":             5,
		"tuning.scoring":           "auc",
		"tuning.estimators":        []int{50, 100, 200},
		"tuning.max_depth":         []int{3, 5, 10},
		"tuning.min_samples_split": []int{2, 10},
		"tuning.max_features":      []string{"sqrt"},
		"tuning.workers":           0,

		"explain.importance_rounds": 10,
		"explain.shapley_rounds":    25,
		"explain.grid_size":         20,
		"explain.workers":           0,
	}
}

// findConfigFile picks the config file to read.
// Priority: explicit path, then glassbox.yaml, then glassbox.yml.
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"glassbox.yaml", "glassbox.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load reads the configuration from defaults, the config file, GLASSBOX_
// environment variables and the given flag set, in that order of
// precedence (flags win). Flags are applied only when explicitly set.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load defaults")
	}

	used := findConfigFile(cfgFile)
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", used)
		}
	}

	// GLASSBOX_MAX_DEPTH would not nest; only top-level keys are reachable
	// through the environment. Nested sections come from the file.
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment variables")
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			// Kebab-case flag names map to snake_case config keys.
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, errors.Wrap(err, "failed to load flags")
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode config")
	}
	cfg.File = used

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
