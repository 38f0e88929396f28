// Package scoring defines the automated accuracy report produced for every
// translation candidate: six named sub-metrics, a weighted overall score and
// a confidence annotation.
package scoring

import (
	"fmt"
	"time"
)

// Metric identifies one of the six scored quality dimensions.
type Metric string

const (
	MetricTermAccuracy Metric = "term_accuracy"
	MetricSemantic     Metric = "semantic_similarity"
	MetricCompleteness Metric = "completeness"
	MetricConsistency  Metric = "consistency"
	MetricFluency      Metric = "fluency"
	MetricClinical     Metric = "clinical_correctness"
)

// Metrics lists all scored dimensions in weight order.
var Metrics = []Metric{
	MetricTermAccuracy,
	MetricSemantic,
	MetricCompleteness,
	MetricConsistency,
	MetricFluency,
	MetricClinical,
}

// Severity grades a detected issue.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Issue is a single structured finding attached to a report.
type Issue struct {
	Metric      Metric   `json:"metric"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Fragment    string   `json:"fragment,omitempty"`
}

// Report is the automated accuracy assessment of one candidate.
// Created once per candidate and never mutated afterwards.
type Report struct {
	CandidateID string             `json:"candidate_id"`
	Scores      map[Metric]float64 `json:"scores"`
	Overall     float64            `json:"overall_score"`
	Confidence  float64            `json:"confidence"`
	Issues      []Issue            `json:"issues,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Weights maps each metric to its share of the overall score.
type Weights map[Metric]float64

// Validate checks that every metric carries a weight and that the weights
// sum to 1. A misweighted table is a startup-fatal misconfiguration.
func (w Weights) Validate() error {
	sum := 0.0
	for _, m := range Metrics {
		wt, ok := w[m]
		if !ok {
			return fmt.Errorf("missing weight for metric %q", m)
		}
		if wt < 0 {
			return fmt.Errorf("negative weight for metric %q", m)
		}
		sum += wt
	}
	if sum < 1.0-1e-9 || sum > 1.0+1e-9 {
		return fmt.Errorf("metric weights sum to %.6f, want 1.0", sum)
	}
	return nil
}

// Overall computes the weighted sum of the sub-scores under w.
func (w Weights) Overall(scores map[Metric]float64) float64 {
	total := 0.0
	for m, wt := range w {
		total += wt * scores[m]
	}
	return clamp(total, 0, 100)
}

// Spread returns the gap between the highest and lowest sub-score.
// A wide spread means the metrics disagree and the report deserves
// lower confidence.
func Spread(scores map[Metric]float64) float64 {
	first := true
	var lo, hi float64
	for _, s := range scores {
		if first {
			lo, hi = s, s
			first = false
			continue
		}
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return hi - lo
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
