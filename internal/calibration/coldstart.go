package calibration

import (
	"regexp"
	"sort"
	"time"

	"github.com/aprep/backend/internal/models"
)

// Matches inline TeX expressions ($...$) in a worked solution.
var mathExprPattern = regexp.MustCompile(`\$.*?\$`)

// estimateComplexity scores a variant's surface features on a 0-1 scale.
// Each inline math expression in the solution adds 0.05 (capped at +0.3) and
// a stimulus over 200 characters adds 0.1, on top of a 0.5 baseline.
func estimateComplexity(v models.Variant) float64 {
	complexity := 0.5

	if v.Solution != "" {
		exprs := len(mathExprPattern.FindAllString(v.Solution, -1))
		bump := float64(exprs) * 0.05
		if bump > 0.3 {
			bump = 0.3
		}
		complexity += bump
	}

	if len(v.Stimulus) > 200 {
		complexity += 0.1
	}

	return clip(complexity, 0.0, 1.0)
}

// complexityToDifficulty maps a 0-1 complexity score linearly onto the
// b ∈ [-2, +2] range.
func complexityToDifficulty(complexity float64) float64 {
	return (complexity - 0.5) * 4.0
}

// defaultParameters is the terminal cold-start fallback: moderate difficulty,
// unit discrimination. Used whenever no better estimate can be produced.
func defaultParameters(itemID string) *models.IRTParameters {
	return &models.IRTParameters{
		ItemID:           itemID,
		A:                1.0,
		B:                0.0,
		NResponses:       0,
		LastUpdated:      time.Now().UTC(),
		EstimationMethod: models.EstimationDefault,
	}
}

// median returns the midpoint-interpolated median of values. Callers must
// pass a non-empty slice.
func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2.0
}
