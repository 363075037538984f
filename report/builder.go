// Package report assembles dataset summaries, performance comparisons,
// plots and attribution tables into one self-contained HTML document.
package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/glassbox/core/model"
	"github.com/YuminosukeSato/glassbox/dataset"
	"github.com/YuminosukeSato/glassbox/explain"
	"github.com/YuminosukeSato/glassbox/pkg/errors"
	"github.com/YuminosukeSato/glassbox/pkg/log"
)

// FileName is the document written by WriteFile.
const FileName = "report.html"

// Builder collects report sections and renders them in insertion order.
type Builder struct {
	title     string
	runID     string
	generated time.Time
	logger    log.Logger

	versions     []versionRow
	datasets     []datasetSection
	performance  []performanceRow
	coefficients []coefficientSection
	plots        []plotSection
	breakdowns   []breakdownSection
	shapleys     []shapleySection
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithRunID overrides the generated run identifier.
func WithRunID(id string) BuilderOption {
	return func(b *Builder) { b.runID = id }
}

// WithGeneratedAt overrides the report timestamp.
func WithGeneratedAt(t time.Time) BuilderOption {
	return func(b *Builder) { b.generated = t }
}

// NewBuilder creates a report builder with a fresh run ID.
func NewBuilder(title string, opts ...BuilderOption) *Builder {
	b := &Builder{
		title:     title,
		runID:     uuid.NewString(),
		generated: time.Now().UTC(),
		logger:    log.GetLoggerWithName("report"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RunID returns the report's run identifier.
func (b *Builder) RunID() string {
	return b.runID
}

// AddVersion records a component version for the report footer.
func (b *Builder) AddVersion(component, version string) {
	b.versions = append(b.versions, versionRow{Component: component, Version: version})
}

// AddDataset adds a dataset summary table.
func (b *Builder) AddDataset(name string, s *dataset.Summary) {
	if s == nil {
		return
	}
	sec := datasetSection{Name: name, NRows: s.NRows}
	for _, cs := range s.Columns {
		row := datasetRow{
			Name:    cs.Name,
			Kind:    cs.Kind.String(),
			Count:   cs.Count,
			Missing: cs.Missing,
			Mean:    fmt.Sprintf("%.2f", cs.Mean),
		}
		if cs.Kind == dataset.Numeric {
			row.Std = fmt.Sprintf("%.2f", cs.Std)
			row.Min = fmt.Sprintf("%g", cs.Min)
			row.Median = fmt.Sprintf("%g", cs.Median)
			row.Max = fmt.Sprintf("%g", cs.Max)
			row.Levels = "-"
		} else {
			row.Std, row.Min, row.Median, row.Max = "-", "-", "-", "-"
			parts := make([]string, 0, len(cs.LevelCounts))
			for _, lc := range cs.LevelCounts {
				parts = append(parts, fmt.Sprintf("%s:%d", lc.Level, lc.Count))
			}
			row.Levels = strings.Join(parts, " ")
		}
		sec.Rows = append(sec.Rows, row)
	}
	b.datasets = append(b.datasets, sec)
}

// AddPerformance appends one model to the performance comparison table.
func (b *Builder) AddPerformance(perf *explain.Performance) {
	if perf == nil {
		return
	}
	b.performance = append(b.performance, performanceRow{
		Label:     perf.Label,
		Threshold: fmt.Sprintf("%.2f", perf.Threshold),
		Accuracy:  fmt.Sprintf("%.3f", perf.Accuracy),
		Precision: fmt.Sprintf("%.3f", perf.Precision),
		Recall:    fmt.Sprintf("%.3f", perf.Recall),
		F1:        fmt.Sprintf("%.3f", perf.F1),
		AUC:       fmt.Sprintf("%.3f", perf.AUC),
		LogLoss:   fmt.Sprintf("%.3f", perf.LogLoss),
		Brier:     fmt.Sprintf("%.3f", perf.Brier),
		AP:        fmt.Sprintf("%.3f", perf.AveragePrecision),
	})
}

// AddCoefficients renders a linear model's weight table, one row per
// feature name.
func (b *Builder) AddCoefficients(label string, m model.LinearModel, features []string) error {
	weights := m.Weights()
	if len(weights) != len(features) {
		return errors.NewDimensionError("Report.AddCoefficients", len(features), len(weights), 1)
	}
	sec := coefficientSection{
		Label:     label,
		Intercept: fmt.Sprintf("%+.4f", m.Intercept()),
	}
	for i, name := range features {
		sec.Rows = append(sec.Rows, coefficientRow{
			Feature: name,
			Weight:  fmt.Sprintf("%+.4f", weights[i]),
		})
	}
	b.coefficients = append(b.coefficients, sec)
	return nil
}

// AddPlot embeds an image given as raw bytes. The MIME type is derived
// from the filename extension (.png or .svg).
func (b *Builder) AddPlot(title, filename string, data []byte) error {
	mime, err := mimeForPlot(filename)
	if err != nil {
		return err
	}
	uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	b.plots = append(b.plots, plotSection{
		Title: title,
		// The data URI is built from bytes we encoded ourselves.
		URI: template.URL(uri),
	})
	return nil
}

// AddPlotFile embeds an image file produced by the explain plotters.
func (b *Builder) AddPlotFile(title, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "failed to read plot %s", path)
	}
	return b.AddPlot(title, filepath.Base(path), data)
}

func mimeForPlot(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return "image/png", nil
	case ".svg":
		return "image/svg+xml", nil
	default:
		return "", errors.NewValueError("Report.AddPlot",
			fmt.Sprintf("unsupported plot format %q", filepath.Ext(filename)))
	}
}

// AddBreakDown adds a break-down attribution table.
func (b *Builder) AddBreakDown(r *explain.BreakDownResult) {
	if r == nil {
		return
	}
	sec := breakdownSection{
		Label:      r.Label,
		Intercept:  fmt.Sprintf("%.4f", r.Intercept),
		Prediction: fmt.Sprintf("%.4f", r.Prediction),
	}
	for _, c := range r.Contributions {
		sec.Rows = append(sec.Rows, breakdownRow{
			Feature:      c.Feature,
			Value:        fmt.Sprintf("%.4g", c.Value),
			Contribution: fmt.Sprintf("%+.4f", c.Contribution),
			Cumulative:   fmt.Sprintf("%.4f", c.Cumulative),
		})
	}
	b.breakdowns = append(b.breakdowns, sec)
}

// AddShapley adds a sampled Shapley attribution table.
func (b *Builder) AddShapley(r *explain.ShapleyResult) {
	if r == nil {
		return
	}
	sec := shapleySection{
		Label:      r.Label,
		Intercept:  fmt.Sprintf("%.4f", r.Intercept),
		Prediction: fmt.Sprintf("%.4f", r.Prediction),
		Rounds:     r.Rounds,
	}
	for _, c := range r.Contributions {
		sec.Rows = append(sec.Rows, shapleyRow{
			Feature: c.Feature,
			Value:   fmt.Sprintf("%.4g", c.Value),
			Mean:    fmt.Sprintf("%+.4f", c.Mean),
			Std:     fmt.Sprintf("%.4f", c.Std),
		})
	}
	b.shapleys = append(b.shapleys, sec)
}

// Render writes the assembled HTML document to w.
func (b *Builder) Render(w io.Writer) error {
	data := reportData{
		Title:        b.title,
		RunID:        b.runID,
		GeneratedAt:  b.generated.Format(time.RFC3339),
		GoVersion:    runtime.Version(),
		Versions:     b.versions,
		Datasets:     b.datasets,
		Performance:  b.performance,
		Coefficients: b.coefficients,
		Plots:        b.plots,
		BreakDowns:   b.breakdowns,
		Shapleys:     b.shapleys,
	}

	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return errors.Wrap(err, "failed to render report")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteFile renders the report into outputDir and returns the written
// path.
func (b *Builder) WriteFile(outputDir string) (string, error) {
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return "", errors.Wrapf(err, "failed to create output directory %s", outputDir)
	}

	var buf bytes.Buffer
	if err := b.Render(&buf); err != nil {
		return "", err
	}

	path := filepath.Join(outputDir, FileName)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return "", errors.Wrapf(err, "failed to write %s", path)
	}

	b.logger.Info("report written",
		"path", path,
		"run_id", b.runID,
		"sections", len(b.datasets)+len(b.performance)+len(b.plots)+len(b.breakdowns)+len(b.shapleys),
	)
	return path, nil
}
