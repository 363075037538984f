package log

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/YuminosukeSato/glassbox/pkg/errors"
)

// TestSlogProvider_JSONOutput tests that the default provider emits JSON records
func TestSlogProvider_JSONOutput(t *testing.T) {
	buf := &bytes.Buffer{}
	provider := NewSlogProvider(LevelDebug, buf)

	logger := provider.GetLoggerWithName("metrics.auc")
	logger.Info("metric computed", SamplesKey, 100)

	out := buf.String()
	if !strings.Contains(out, `"ml.component":"metrics.auc"`) {
		t.Errorf("Expected component attribute in output: %s", out)
	}
	if !strings.Contains(out, "metric computed") {
		t.Errorf("Expected message in output: %s", out)
	}
	if !strings.Contains(out, `"data.samples":100`) {
		t.Errorf("Expected samples attribute in output: %s", out)
	}
}

// TestSlogProvider_ErrorField tests that a leading error is rewrapped for the handler
func TestSlogProvider_ErrorField(t *testing.T) {
	buf := &bytes.Buffer{}
	provider := NewSlogProvider(LevelDebug, buf)

	logger := provider.GetLogger()
	logger.Error("fit failed", errors.New("singular split"), OperationKey, OperationFit)

	out := buf.String()
	if !strings.Contains(out, "singular split") {
		t.Errorf("Expected error text in output: %s", out)
	}
	if !strings.Contains(out, `"ml.operation":"fit"`) {
		t.Errorf("Expected operation attribute in output: %s", out)
	}
}

// TestSlogProvider_Level tests level filtering through SetLevel
func TestSlogProvider_Level(t *testing.T) {
	buf := &bytes.Buffer{}
	provider := NewSlogProvider(LevelWarn, buf)

	logger := provider.GetLogger()
	logger.Info("hidden")
	logger.Warn("visible")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("Info message should be filtered at Warn level")
	}
	if !strings.Contains(buf.String(), "visible") {
		t.Error("Warn message should pass at Warn level")
	}

	provider.SetLevel(LevelDebug)
	logger.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Error("Debug message should pass after lowering the level")
	}

	if !logger.Enabled(context.Background(), LevelError) {
		t.Error("Error level should always be enabled")
	}
}

// TestZerologProvider_Output tests the zerolog-backed provider
func TestZerologProvider_Output(t *testing.T) {
	buf := &bytes.Buffer{}
	provider := NewZerologProvider(zerolog.New(buf))

	logger := provider.GetLoggerWithName("dataset.loader")
	logger.Info("file loaded", "rows", 573)

	out := buf.String()
	if !strings.Contains(out, `"rows":573`) {
		t.Errorf("Expected structured field in output: %s", out)
	}
	if !strings.Contains(out, "dataset.loader") {
		t.Errorf("Expected component name in output: %s", out)
	}
	if !strings.Contains(out, "file loaded") {
		t.Errorf("Expected message in output: %s", out)
	}
}

// TestZerologProvider_RouteWarnings tests that library warnings reach zerolog
func TestZerologProvider_RouteWarnings(t *testing.T) {
	buf := &bytes.Buffer{}
	provider := NewZerologProvider(zerolog.New(buf))
	provider.RouteWarnings()
	defer errors.SetZerologWarnFunc(nil)

	errors.Warn(errors.NewUndefinedMetricWarning("precision", "no predicted positives", 0))

	out := buf.String()
	if !strings.Contains(out, "UndefinedMetricWarning") {
		t.Errorf("Expected warning type in output: %s", out)
	}
	if !strings.Contains(out, "precision") {
		t.Errorf("Expected metric name in output: %s", out)
	}
}

// TestGlobalProvider tests the swappable global provider
func TestGlobalProvider(t *testing.T) {
	testProvider, buf := NewTestLoggerProvider(LevelDebug)
	SetProvider(testProvider)
	defer SetProvider(nil)

	GetLoggerWithName("risk.scorecard").Info("calibrated")

	if !strings.Contains(buf.String(), "risk.scorecard") {
		t.Errorf("Expected component from global provider: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "calibrated") {
		t.Errorf("Expected message from global provider: %s", buf.String())
	}
}
