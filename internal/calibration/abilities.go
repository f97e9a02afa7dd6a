package calibration

import (
	"github.com/aprep/backend/internal/models"
)

// EstimateAbilities derives a per-student ability scalar from raw responses:
// proportion correct, clipped to [0.05, 0.95] to avoid infinite logits, then
// mapped to the logit scale. This is a coarse proxy for use when true
// abilities are unknown, not a joint IRT ability estimate.
//
// Students with zero responses are absent from the returned map.
func EstimateAbilities(responses []models.ResponseData) map[string]float64 {
	totals := make(map[string]int)
	corrects := make(map[string]int)

	for _, r := range responses {
		totals[r.StudentID]++
		if r.Correct {
			corrects[r.StudentID]++
		}
	}

	abilities := make(map[string]float64, len(totals))
	for studentID, total := range totals {
		propCorrect := float64(corrects[studentID]) / float64(total)
		propCorrect = clip(propCorrect, 0.05, 0.95)
		abilities[studentID] = logit(propCorrect)
	}
	return abilities
}
