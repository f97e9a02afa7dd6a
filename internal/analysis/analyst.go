// Package analysis computes classical test theory statistics for scored
// items: p-values, point-biserial correlations, upper-lower discrimination,
// and distractor effectiveness. Reports are derived and recomputable; this
// package never mutates calibration state.
package analysis

import (
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/aprep/backend/internal/models"
)

const (
	defaultMinPValue         = 0.20
	defaultMaxPValue         = 0.80
	defaultMinDiscrimination = 0.30

	// Upper/lower groups are the top and bottom 27% by ability, but never
	// fewer than 3 students each.
	upperLowerFraction = 0.27
	minGroupSize       = 3

	// Below this response count the upper-lower index is not reported.
	minResponsesForIndex = 10
)

type Analyst struct {
	minPValue         float64
	maxPValue         float64
	minDiscrimination float64

	mu      sync.Mutex
	history []models.AnalysisRecord
}

func NewAnalyst() *Analyst {
	a := &Analyst{
		minPValue:         getEnvFloat("ANALYSIS_MIN_P_VALUE", defaultMinPValue),
		maxPValue:         getEnvFloat("ANALYSIS_MAX_P_VALUE", defaultMaxPValue),
		minDiscrimination: getEnvFloat("ANALYSIS_MIN_DISCRIMINATION", defaultMinDiscrimination),
	}
	log.Printf("analysis: analyst ready (p_range=%.2f-%.2f, min_disc=%.2f)",
		a.minPValue, a.maxPValue, a.minDiscrimination)
	return a
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// AnalyzeItem computes the full statistics report for one item. An empty
// response set is the one hard error: there is no sensible degraded answer
// for zero data. Missing ability data degrades individual statistics to nil
// instead of failing the analysis.
func (a *Analyst) AnalyzeItem(itemID string, responses []models.AnalysisResponse, correctAnswer string, distractors []string) (*models.ItemStatistics, error) {
	if len(responses) == 0 {
		return nil, fmt.Errorf("no responses provided for analysis of item %s", itemID)
	}

	nResponses := len(responses)
	nCorrect := 0
	for _, r := range responses {
		if r.Answer == correctAnswer {
			nCorrect++
		}
	}
	pValue := float64(nCorrect) / float64(nResponses)

	pointBiserial := calculatePointBiserial(responses, correctAnswer)
	discriminationIndex := calculateDiscriminationIndex(responses, correctAnswer)

	var distractorStats []models.DistractorStats
	if len(distractors) > 0 {
		distractorStats = analyzeDistractors(responses, distractors)
	}

	var issues, recommendations []string

	// Boundary values are acceptable: only strictly outside the range flags.
	if pValue < a.minPValue {
		issues = append(issues, fmt.Sprintf("P-value too low (%.2f): item may be too difficult", pValue))
		recommendations = append(recommendations, "Consider revising item to reduce difficulty")
	} else if pValue > a.maxPValue {
		issues = append(issues, fmt.Sprintf("P-value too high (%.2f): item may be too easy", pValue))
		recommendations = append(recommendations, "Consider revising item to increase difficulty")
	}

	if pointBiserial != nil && *pointBiserial < a.minDiscrimination {
		issues = append(issues, fmt.Sprintf(
			"Low discrimination (%.2f): item does not differentiate well between high/low performers",
			*pointBiserial))
		recommendations = append(recommendations, "Review item for ambiguity or review distractors")
	}

	if pointBiserial != nil && *pointBiserial < 0 {
		issues = append(issues, fmt.Sprintf(
			"Negative discrimination (%.2f): low performers answer correctly more often than high performers",
			*pointBiserial))
		recommendations = append(recommendations, "CRITICAL: review item - may have wrong answer key")
	}

	problematicDistractors := 0
	for _, d := range distractorStats {
		if d.IsProblematic {
			problematicDistractors++
		}
	}
	if problematicDistractors > 0 {
		issues = append(issues, fmt.Sprintf("%d problematic distractor(s) found", problematicDistractors))
		recommendations = append(recommendations, "Review flagged distractors")
	}

	stats := &models.ItemStatistics{
		ItemID:              itemID,
		NResponses:          nResponses,
		NCorrect:            nCorrect,
		PValue:              pValue,
		PointBiserial:       pointBiserial,
		DiscriminationIndex: discriminationIndex,
		DistractorStats:     distractorStats,
		IsProblematic:       len(issues) > 0,
		Issues:              issues,
		Recommendations:     recommendations,
		AnalyzedAt:          time.Now().UTC(),
	}

	a.mu.Lock()
	a.history = append(a.history, models.AnalysisRecord{
		ItemID:        itemID,
		AnalyzedAt:    stats.AnalyzedAt,
		PValue:        pValue,
		PointBiserial: pointBiserial,
		IsProblematic: stats.IsProblematic,
	})
	a.mu.Unlock()

	log.Printf("analysis: item %s: p=%.2f disc=%s problematic=%v",
		itemID, pValue, formatOptional(pointBiserial), stats.IsProblematic)

	return stats, nil
}

// AnalyzeBatch runs AnalyzeItem over a set of items. A failing item is
// recorded and skipped; the batch never aborts.
func (a *Analyst) AnalyzeBatch(items []models.BatchItem) *models.BatchAnalysis {
	batch := &models.BatchAnalysis{
		TotalItems: len(items),
		Results:    make([]models.ItemResult, 0, len(items)),
	}

	var pValues []float64
	var discriminations []float64

	for _, item := range items {
		stats, err := a.AnalyzeItem(item.ItemID, item.Responses, item.CorrectAnswer, item.Distractors)
		if err != nil {
			log.Printf("WARN: analysis: item %s failed: %v, continuing batch", item.ItemID, err)
			batch.FailedItems++
			batch.Results = append(batch.Results, models.ItemResult{ItemID: item.ItemID, Error: err.Error()})
			continue
		}

		batch.AnalyzedItems++
		if stats.IsProblematic {
			batch.ProblematicItems++
		}
		pValues = append(pValues, stats.PValue)
		if stats.PointBiserial != nil {
			discriminations = append(discriminations, *stats.PointBiserial)
		}
		batch.Results = append(batch.Results, models.ItemResult{ItemID: item.ItemID, Stats: stats})
	}

	batch.AcceptableItems = batch.AnalyzedItems - batch.ProblematicItems
	if len(pValues) > 0 {
		batch.AvgPValue = stat.Mean(pValues, nil)
	}
	if len(discriminations) > 0 {
		avg := stat.Mean(discriminations, nil)
		batch.AvgDiscrimination = &avg
	}
	return batch
}

// ProblematicItems returns the history records flagged as problematic.
func (a *Analyst) ProblematicItems() []models.AnalysisRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []models.AnalysisRecord
	for _, h := range a.history {
		if h.IsProblematic {
			out = append(out, h)
		}
	}
	return out
}

// Statistics summarizes every analysis this analyst has performed.
func (a *Analyst) Statistics() *models.AnalystStatistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := &models.AnalystStatistics{
		TotalAnalyses:     len(a.history),
		MinPValue:         a.minPValue,
		MaxPValue:         a.maxPValue,
		MinDiscrimination: a.minDiscrimination,
	}
	if len(a.history) == 0 {
		return out
	}

	var pValues, discriminations []float64
	for _, h := range a.history {
		if h.IsProblematic {
			out.ProblematicCount++
		}
		pValues = append(pValues, h.PValue)
		if h.PointBiserial != nil {
			discriminations = append(discriminations, *h.PointBiserial)
		}
	}

	out.ProblematicRate = float64(out.ProblematicCount) / float64(len(a.history))
	out.AvgPValue = stat.Mean(pValues, nil)
	if len(discriminations) > 0 {
		avg := stat.Mean(discriminations, nil)
		out.AvgDiscrimination = &avg
	}
	return out
}

// abilityValues extracts one ability value per response, using the latent
// ability estimate when every response has one, then falling back to the
// total-score proxy. Returns nil when neither is complete.
func abilityValues(responses []models.AnalysisResponse) []float64 {
	abilities := make([]float64, len(responses))
	complete := true
	for i, r := range responses {
		if r.Ability == nil {
			complete = false
			break
		}
		abilities[i] = *r.Ability
	}
	if complete {
		return abilities
	}

	for i, r := range responses {
		if r.TotalScore == nil {
			return nil
		}
		abilities[i] = *r.TotalScore
	}
	return abilities
}

// calculatePointBiserial computes the correlation between the binary
// correct/incorrect indicator and the continuous ability (or total-score)
// value:
//
//	r_pb = ((mean_correct - mean_incorrect) / sd) * sqrt(p*q)
//
// Returns nil without ability data, and nil when all responses share one
// outcome or all abilities are identical (correlation undefined).
func calculatePointBiserial(responses []models.AnalysisResponse, correctAnswer string) *float64 {
	abilities := abilityValues(responses)
	if abilities == nil {
		return nil
	}

	var correct, incorrect []float64
	for i, r := range responses {
		if r.Answer == correctAnswer {
			correct = append(correct, abilities[i])
		} else {
			incorrect = append(incorrect, abilities[i])
		}
	}
	if len(correct) == 0 || len(incorrect) == 0 {
		return nil
	}

	sd := stat.StdDev(abilities, nil)
	if sd == 0 {
		return nil
	}

	p := float64(len(correct)) / float64(len(responses))
	q := 1.0 - p

	rpb := ((stat.Mean(correct, nil) - stat.Mean(incorrect, nil)) / sd) * math.Sqrt(p*q)
	return &rpb
}

// calculateDiscriminationIndex computes the upper-lower discrimination
// index: proportion correct among the top ability group minus the bottom
// group. Needs at least 10 responses and ability data; otherwise nil.
func calculateDiscriminationIndex(responses []models.AnalysisResponse, correctAnswer string) *float64 {
	if len(responses) < minResponsesForIndex {
		return nil
	}
	abilities := abilityValues(responses)
	if abilities == nil {
		return nil
	}

	order := make([]int, len(responses))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return abilities[order[i]] > abilities[order[j]]
	})

	groupSize := int(float64(len(responses)) * upperLowerFraction)
	if groupSize < minGroupSize {
		groupSize = minGroupSize
	}

	correctIn := func(indices []int) float64 {
		n := 0
		for _, idx := range indices {
			if responses[idx].Answer == correctAnswer {
				n++
			}
		}
		return float64(n) / float64(len(indices))
	}

	pUpper := correctIn(order[:groupSize])
	pLower := correctIn(order[len(order)-groupSize:])

	index := pUpper - pLower
	return &index
}

func formatOptional(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
