package service

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/medtrans/qagate/internal/config"
	"github.com/medtrans/qagate/internal/domain/candidate"
	"github.com/medtrans/qagate/internal/domain/scoring"
	"github.com/medtrans/qagate/internal/port/terminology"
	"github.com/medtrans/qagate/internal/resilience"
)

// Scorer computes the automated accuracy report for a candidate. Score is a
// total function: malformed input and external failures degrade the report's
// confidence instead of producing an error.
type Scorer struct {
	terms   terminology.Lookup
	weights scoring.Weights
	breaker *resilience.Breaker
	timeout time.Duration
	now     func() time.Time
}

// NewScorer creates a Scorer. The breaker guards terminology calls.
func NewScorer(terms terminology.Lookup, cfg config.Scoring, breaker *resilience.Breaker) *Scorer {
	return &Scorer{
		terms:   terms,
		weights: cfg.Weights,
		breaker: breaker,
		timeout: cfg.TermTimeout,
		now:     time.Now,
	}
}

// Score produces the accuracy report for a candidate. reference is an
// optional validated translation to compare against; pass "" when none
// exists.
func (s *Scorer) Score(ctx context.Context, cand *candidate.Candidate, reference string) *scoring.Report {
	report := &scoring.Report{
		CandidateID: cand.ID,
		Scores:      make(map[scoring.Metric]float64, len(scoring.Metrics)),
		CreatedAt:   s.now(),
	}

	if strings.TrimSpace(cand.SourceText) == "" || strings.TrimSpace(cand.TranslatedText) == "" {
		for _, m := range scoring.Metrics {
			report.Scores[m] = 0
		}
		report.Confidence = 0.1
		report.Issues = append(report.Issues, scoring.Issue{
			Metric:      scoring.MetricCompleteness,
			Severity:    scoring.SeverityCritical,
			Description: "empty source or translated text, report is a placeholder",
		})
		return report
	}

	src := cand.SourceText
	tgt := cand.TranslatedText

	termScore, termsAnalyzed, expected := s.scoreTerms(ctx, cand, report)
	report.Scores[scoring.MetricTermAccuracy] = termScore
	report.Scores[scoring.MetricSemantic] = s.scoreSemantic(src, tgt, reference, report)
	report.Scores[scoring.MetricCompleteness] = scoreCompleteness(src, tgt, report)
	report.Scores[scoring.MetricConsistency] = scoreConsistency(src, tgt, expected, report)
	report.Scores[scoring.MetricFluency] = scoreFluency(tgt, report)
	report.Scores[scoring.MetricClinical] = scoreClinical(src, tgt, report)

	report.Overall = s.weights.Overall(report.Scores)

	confidence := 1.0
	if termsAnalyzed < 3 {
		confidence *= 0.7
	}
	if scoring.Spread(report.Scores) > 30 {
		confidence *= 0.8
	}
	if len(strings.Fields(src)) < 10 {
		confidence *= 0.9
	}
	report.Confidence = confidence

	slog.Debug("candidate scored",
		"candidate_id", cand.ID,
		"overall", report.Overall,
		"confidence", report.Confidence,
		"issues", len(report.Issues),
	)
	return report
}

// scoreTerms checks domain terms against the terminology service. It returns
// the score, the number of terms actually analyzed, and the map of source
// terms to their expected translations for the consistency check.
func (s *Scorer) scoreTerms(ctx context.Context, cand *candidate.Candidate, report *scoring.Report) (float64, int, map[string]string) {
	tctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var terms []string
	err := s.breaker.Execute(func() error {
		var xerr error
		terms, xerr = s.terms.ExtractTerms(tctx, cand.SourceText, cand.SourceLang)
		return xerr
	})
	if err != nil {
		report.Issues = append(report.Issues, scoring.Issue{
			Metric:      scoring.MetricTermAccuracy,
			Severity:    scoring.SeverityInfo,
			Description: "terminology service unavailable, term accuracy not assessed",
		})
		return 100, 0, nil
	}
	if len(terms) == 0 {
		return 100, 0, nil
	}

	expected := make(map[string]string, len(terms))
	lowerTarget := strings.ToLower(cand.TranslatedText)
	analyzed, correct := 0, 0
	var missing []string
	for _, term := range terms {
		var translation string
		err := s.breaker.Execute(func() error {
			var xerr error
			translation, xerr = s.terms.LookupTerm(tctx, term, cand.SourceLang, cand.TargetLang)
			return xerr
		})
		if err != nil || translation == "" {
			continue
		}
		analyzed++
		expected[term] = translation
		if strings.Contains(lowerTarget, strings.ToLower(translation)) {
			correct++
		} else {
			missing = append(missing, term)
		}
	}
	if analyzed == 0 {
		return 100, 0, expected
	}
	if len(missing) > 0 {
		report.Issues = append(report.Issues, scoring.Issue{
			Metric:      scoring.MetricTermAccuracy,
			Severity:    scoring.SeverityWarning,
			Description: fmt.Sprintf("expected terminology not found in translation: %s", strings.Join(missing, ", ")),
		})
	}
	return float64(correct) / float64(analyzed) * 100, analyzed, expected
}

// scoreSemantic compares against the reference when one exists, otherwise
// falls back to a heuristic over numeric tokens and critical patterns.
func (s *Scorer) scoreSemantic(src, tgt, reference string, report *scoring.Report) float64 {
	if reference != "" {
		return tokenOverlap(tgt, reference) * 100
	}

	score := 100.0
	missingNums := missingNumbers(src, tgt)
	for range missingNums {
		score -= 15
	}
	if len(missingNums) > 0 {
		report.Issues = append(report.Issues, scoring.Issue{
			Metric:      scoring.MetricSemantic,
			Severity:    scoring.SeverityWarning,
			Description: fmt.Sprintf("numeric tokens missing or altered in translation: %s", strings.Join(missingNums, ", ")),
		})
	}
	for _, pc := range criticalPatterns {
		if pc.present(src) && !pc.present(tgt) {
			score -= 10
		}
	}
	return clampScore(score)
}

// scoreCompleteness compares word counts and checks that critical patterns
// present in the source survive translation.
func scoreCompleteness(src, tgt string, report *scoring.Report) float64 {
	srcWords := len(strings.Fields(src))
	tgtWords := len(strings.Fields(tgt))
	ratio := float64(tgtWords) / float64(srcWords)

	score := 100.0
	switch {
	case ratio < 0.5:
		score = ratio / 0.5 * 100
	case ratio > 2.0:
		score = 2.0 / ratio * 100
	}

	for _, pc := range criticalPatterns {
		if pc.present(src) && !pc.present(tgt) {
			score -= 15
			report.Issues = append(report.Issues, scoring.Issue{
				Metric:      scoring.MetricCompleteness,
				Severity:    scoring.SeverityWarning,
				Description: fmt.Sprintf("%s content present in source but absent in translation", pc.name),
			})
		}
	}
	return clampScore(score)
}

// scoreConsistency checks that repeated source terms were translated
// uniformly, using the expected translations resolved by the terminology
// lookup.
func scoreConsistency(src, tgt string, expected map[string]string, report *scoring.Report) float64 {
	if len(expected) == 0 {
		return 100
	}
	lowerSrc := strings.ToLower(src)
	lowerTgt := strings.ToLower(tgt)

	score := 100.0
	for term, translation := range expected {
		srcCount := strings.Count(lowerSrc, strings.ToLower(term))
		if srcCount < 2 {
			continue
		}
		tgtCount := strings.Count(lowerTgt, strings.ToLower(translation))
		if tgtCount > 0 && tgtCount < srcCount {
			score -= 20
			report.Issues = append(report.Issues, scoring.Issue{
				Metric:      scoring.MetricConsistency,
				Severity:    scoring.SeverityWarning,
				Description: fmt.Sprintf("term %q repeated %d times in source but translated %d times", term, srcCount, tgtCount),
			})
		}
	}
	return clampScore(score)
}

var doubledSpaceRe = regexp.MustCompile(`[ \t]{2,}`)

// scoreFluency applies structural heuristics to the translated text.
func scoreFluency(tgt string, report *scoring.Report) float64 {
	score := 100.0

	for _, pair := range [][2]string{{"(", ")"}, {"[", "]"}, {"{", "}"}} {
		if strings.Count(tgt, pair[0]) != strings.Count(tgt, pair[1]) {
			score -= 10
			report.Issues = append(report.Issues, scoring.Issue{
				Metric:      scoring.MetricFluency,
				Severity:    scoring.SeverityInfo,
				Description: fmt.Sprintf("unmatched %s%s brackets", pair[0], pair[1]),
			})
		}
	}

	doubled := len(doubledSpaceRe.FindAllString(tgt, -1))
	if doubled > 4 {
		doubled = 4
	}
	score -= float64(doubled) * 5

	if outlierSentence(tgt) {
		score -= 10
		report.Issues = append(report.Issues, scoring.Issue{
			Metric:      scoring.MetricFluency,
			Severity:    scoring.SeverityInfo,
			Description: "sentence length outlier detected",
		})
	}
	return clampScore(score)
}

// outlierSentence reports whether any sentence is more than three times the
// average sentence length.
func outlierSentence(text string) bool {
	sentences := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == ';'
	})
	if len(sentences) < 2 {
		return false
	}
	total := 0
	counts := make([]int, 0, len(sentences))
	for _, s := range sentences {
		n := len(strings.Fields(s))
		if n == 0 {
			continue
		}
		counts = append(counts, n)
		total += n
	}
	if len(counts) < 2 {
		return false
	}
	avg := float64(total) / float64(len(counts))
	for _, n := range counts {
		if float64(n) > avg*3 {
			return true
		}
	}
	return false
}

// clinicalCheck detects one class of dangerous mistranslation.
type clinicalCheck struct {
	name    string
	penalty float64
	detect  func(src, tgt string) (bool, string)
}

var clinicalChecks = []clinicalCheck{
	{
		name:    "negation reversal",
		penalty: 40,
		detect: func(src, tgt string) (bool, string) {
			srcNeg := hasNegation(src)
			tgtNeg := hasNegation(tgt)
			if srcNeg != tgtNeg {
				return true, "negation present on one side only, meaning may be reversed"
			}
			return false, ""
		},
	},
	{
		name:    "dosage unit swap",
		penalty: 35,
		detect: func(src, tgt string) (bool, string) {
			srcDoses := extractDoses(src)
			tgtDoses := extractDoses(tgt)
			for amount, srcUnit := range srcDoses {
				tgtUnit, ok := tgtDoses[amount]
				if ok && tgtUnit != srcUnit {
					return true, fmt.Sprintf("dose %s changed unit from %s to %s", amount, srcUnit, tgtUnit)
				}
			}
			return false, ""
		},
	},
	{
		name:    "dropped frequency",
		penalty: 20,
		detect: func(src, tgt string) (bool, string) {
			if containsAny(src, frequencyKeywords) && !containsAny(tgt, frequencyKeywords) {
				return true, "dosing frequency present in source but absent in translation"
			}
			return false, ""
		},
	},
	{
		name:    "missing warning",
		penalty: 15,
		detect: func(src, tgt string) (bool, string) {
			if containsAny(src, warningKeywords) && !containsAny(tgt, warningKeywords) {
				return true, "warning language present in source but absent in translation"
			}
			return false, ""
		},
	},
}

// scoreClinical runs the dangerous-mistranslation detectors. Each detection
// subtracts its fixed penalty and records a critical issue.
func scoreClinical(src, tgt string, report *scoring.Report) float64 {
	score := 100.0
	for _, check := range clinicalChecks {
		hit, detail := check.detect(src, tgt)
		if !hit {
			continue
		}
		score -= check.penalty
		report.Issues = append(report.Issues, scoring.Issue{
			Metric:      scoring.MetricClinical,
			Severity:    scoring.SeverityCritical,
			Description: fmt.Sprintf("dangerous mistranslation (%s): %s", check.name, detail),
		})
	}
	return clampScore(score)
}

// --- pattern tables ---

var (
	numberRe   = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
	doseRe     = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(mcg|µg|mg|kg|g|ml|l|iu|ui|units?|unidades?)\b`)
	durationRe = regexp.MustCompile(`(?i)\d+\s*(day|days|week|weeks|month|months|hour|hours|year|years|d[ií]a|d[ií]as|semana|semanas|mes|meses|hora|horas|a[ñn]o|a[ñn]os)\b`)

	frequencyKeywords = []string{
		"daily", "twice", "once", "every", "hourly", "weekly", "times a day", "times per day",
		"diario", "diaria", "diariamente", "veces", "vez", "cada",
	}
	warningKeywords = []string{
		"warning", "caution", "do not", "don't", "avoid", "danger",
		"advertencia", "precaución", "no debe", "evite", "evitar", "peligro",
	}
	instructionKeywords = []string{
		"take", "apply", "swallow", "inject", "inhale", "dissolve",
		"tomar", "tome", "aplicar", "aplique", "tragar", "inyectar", "inhalar", "disolver",
	}
	negationKeywords = []string{
		"do not", "don't", "not ", "never", "no ",
		"nunca", "jamás",
	}
)

// patternClass is one category of critical content that must survive
// translation.
type patternClass struct {
	name    string
	present func(text string) bool
}

var criticalPatterns = []patternClass{
	{"dosage", func(t string) bool { return doseRe.MatchString(t) }},
	{"duration", func(t string) bool { return durationRe.MatchString(t) }},
	{"warning", func(t string) bool { return containsAny(t, warningKeywords) }},
	{"instruction", func(t string) bool { return containsAny(t, instructionKeywords) }},
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func hasNegation(text string) bool {
	lower := " " + strings.ToLower(text) + " "
	for _, k := range negationKeywords {
		if strings.Contains(lower, " "+k) {
			return true
		}
	}
	return false
}

// extractDoses maps dose amounts to their normalized units.
func extractDoses(text string) map[string]string {
	out := make(map[string]string)
	for _, m := range doseRe.FindAllStringSubmatch(text, -1) {
		out[normalizeNumber(m[1])] = normalizeUnit(m[2])
	}
	return out
}

func normalizeNumber(s string) string {
	return strings.ReplaceAll(s, ",", ".")
}

func normalizeUnit(s string) string {
	switch strings.ToLower(s) {
	case "µg", "mcg":
		return "mcg"
	case "ui", "iu":
		return "iu"
	case "unit", "units", "unidade", "unidades":
		return "unit"
	default:
		return strings.ToLower(s)
	}
}

// missingNumbers returns numeric tokens present in src but not in tgt.
func missingNumbers(src, tgt string) []string {
	tgtNums := make(map[string]bool)
	for _, n := range numberRe.FindAllString(tgt, -1) {
		tgtNums[normalizeNumber(n)] = true
	}
	var missing []string
	seen := make(map[string]bool)
	for _, n := range numberRe.FindAllString(src, -1) {
		norm := normalizeNumber(n)
		if !tgtNums[norm] && !seen[norm] {
			missing = append(missing, n)
			seen[norm] = true
		}
	}
	return missing
}

// tokenOverlap is the Jaccard similarity of lowercase token sets.
func tokenOverlap(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}
	inter := 0
	for tok := range setA {
		if setB[tok] {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		set[strings.Trim(tok, ".,;:!?()[]{}\"'")] = true
	}
	delete(set, "")
	return set
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
