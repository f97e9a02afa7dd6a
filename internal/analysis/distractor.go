package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aprep/backend/internal/models"
)

// Distractor flag thresholds.
const (
	deadDistractorRate    = 0.05
	tooAttractiveRate     = 0.50
	highPerformerBiserial = 0.10
)

// analyzeDistractors computes selection statistics for each wrong option.
// A well-functioning distractor attracts some share of lower-ability
// students, so its point-biserial is expected to be negative.
func analyzeDistractors(responses []models.AnalysisResponse, distractors []string) []models.DistractorStats {
	nResponses := len(responses)

	// Distractor analysis tolerates incomplete ability data: missing values
	// fall back to the total-score proxy, then to zero.
	abilities := make([]float64, nResponses)
	for i, r := range responses {
		switch {
		case r.Ability != nil:
			abilities[i] = *r.Ability
		case r.TotalScore != nil:
			abilities[i] = *r.TotalScore
		}
	}
	abilitiesVary := varies(abilities)

	out := make([]models.DistractorStats, 0, len(distractors))
	for _, distractor := range distractors {
		selectionCount := 0
		for _, r := range responses {
			if r.Answer == distractor {
				selectionCount++
			}
		}
		selectionRate := float64(selectionCount) / float64(nResponses)

		var pointBiserial *float64
		if selectionCount > 0 && selectionCount < nResponses && abilitiesVary {
			pointBiserial = distractorPointBiserial(responses, abilities, distractor, selectionCount)
		}

		stats := models.DistractorStats{
			DistractorID:   distractor,
			SelectionCount: selectionCount,
			SelectionRate:  selectionRate,
			PointBiserial:  pointBiserial,
		}

		switch {
		case selectionRate < deadDistractorRate:
			stats.IsProblematic = true
			stats.IssueType = models.IssueDeadDistractor
		case selectionRate > tooAttractiveRate:
			// More popular than the key can possibly be.
			stats.IsProblematic = true
			stats.IssueType = models.IssueTooAttractive
		case pointBiserial != nil && *pointBiserial > highPerformerBiserial:
			// Inverted signal: suggests a keying error or ambiguous wording.
			stats.IsProblematic = true
			stats.IssueType = models.IssueAttractsHighAbility
		}

		out = append(out, stats)
	}
	return out
}

func distractorPointBiserial(responses []models.AnalysisResponse, abilities []float64, distractor string, selectionCount int) *float64 {
	var selected, notSelected []float64
	for i, r := range responses {
		if r.Answer == distractor {
			selected = append(selected, abilities[i])
		} else {
			notSelected = append(notSelected, abilities[i])
		}
	}

	sd := stat.StdDev(abilities, nil)
	if sd == 0 {
		return nil
	}

	p := float64(selectionCount) / float64(len(responses))
	q := 1.0 - p

	rpb := ((stat.Mean(selected, nil) - stat.Mean(notSelected, nil)) / sd) * math.Sqrt(p*q)
	return &rpb
}

func varies(values []float64) bool {
	for _, v := range values[1:] {
		if v != values[0] {
			return true
		}
	}
	return false
}
