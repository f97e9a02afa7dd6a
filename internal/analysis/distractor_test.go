package analysis

import (
	"math"
	"strconv"
	"testing"

	"github.com/aprep/backend/internal/models"
)

// choiceResponses builds a response set from per-option counts, assigning the
// given ability to every selector of that option.
func choiceResponses(counts map[string]int, abilities map[string]float64) []models.AnalysisResponse {
	var out []models.AnalysisResponse
	i := 0
	for answer, n := range counts {
		for j := 0; j < n; j++ {
			out = append(out, models.AnalysisResponse{
				StudentID: "s" + strconv.Itoa(i),
				Answer:    answer,
				Ability:   fptr(abilities[answer]),
			})
			i++
		}
	}
	return out
}

func findDistractor(t *testing.T, stats []models.DistractorStats, id string) models.DistractorStats {
	t.Helper()
	for _, d := range stats {
		if d.DistractorID == id {
			return d
		}
	}
	t.Fatalf("distractor %s missing from stats", id)
	return models.DistractorStats{}
}

func TestAnalyzeDistractorsDead(t *testing.T) {
	// Nobody picks C. Selection rate 0.00 < 0.05 flags it dead.
	responses := choiceResponses(
		map[string]int{"A": 30, "B": 20},
		map[string]float64{"A": 1.0, "B": -1.0},
	)

	stats := analyzeDistractors(responses, []string{"B", "C"})

	c := findDistractor(t, stats, "C")
	if c.SelectionCount != 0 || c.SelectionRate != 0.0 {
		t.Errorf("C stats = (%d, %f), want (0, 0.0)", c.SelectionCount, c.SelectionRate)
	}
	if !c.IsProblematic || c.IssueType != models.IssueDeadDistractor {
		t.Errorf("C flag = (%v, %q), want dead distractor", c.IsProblematic, c.IssueType)
	}
	if c.PointBiserial != nil {
		t.Errorf("C PointBiserial = %v, want nil for an unselected option", *c.PointBiserial)
	}

	// B pulls 40% of lower-ability students: working as intended.
	b := findDistractor(t, stats, "B")
	if b.IsProblematic {
		t.Errorf("B flagged (%q) despite healthy selection rate %.2f", b.IssueType, b.SelectionRate)
	}
	if b.PointBiserial == nil || *b.PointBiserial >= 0 {
		t.Errorf("B PointBiserial = %v, want negative for a lower-ability draw", b.PointBiserial)
	}
}

func TestAnalyzeDistractorsTooAttractive(t *testing.T) {
	// B outdraws the key 60/40.
	responses := choiceResponses(
		map[string]int{"A": 20, "B": 30},
		map[string]float64{"A": 1.0, "B": -0.5},
	)

	stats := analyzeDistractors(responses, []string{"B"})

	b := findDistractor(t, stats, "B")
	if math.Abs(b.SelectionRate-0.6) > 1e-9 {
		t.Errorf("B SelectionRate = %f, want 0.6", b.SelectionRate)
	}
	if !b.IsProblematic || b.IssueType != models.IssueTooAttractive {
		t.Errorf("B flag = (%v, %q), want too attractive", b.IsProblematic, b.IssueType)
	}
}

func TestAnalyzeDistractorsAttractsHighPerformers(t *testing.T) {
	// 30% of students pick B, and they are the strong ones. A positive
	// point-biserial above 0.10 signals a keying or wording problem.
	responses := choiceResponses(
		map[string]int{"A": 14, "B": 6},
		map[string]float64{"A": 0.0, "B": 2.0},
	)

	stats := analyzeDistractors(responses, []string{"B"})

	b := findDistractor(t, stats, "B")
	if b.PointBiserial == nil || *b.PointBiserial <= 0.10 {
		t.Fatalf("B PointBiserial = %v, want > 0.10", b.PointBiserial)
	}
	if !b.IsProblematic || b.IssueType != models.IssueAttractsHighAbility {
		t.Errorf("B flag = (%v, %q), want attracts high performers", b.IsProblematic, b.IssueType)
	}
}

func TestAnalyzeDistractorsFlagPrecedence(t *testing.T) {
	// A distractor can be both over-selected and high-performer biased; the
	// selection-rate flags win.
	responses := choiceResponses(
		map[string]int{"A": 10, "B": 40},
		map[string]float64{"A": -1.0, "B": 1.0},
	)

	stats := analyzeDistractors(responses, []string{"B"})

	b := findDistractor(t, stats, "B")
	if b.IssueType != models.IssueTooAttractive {
		t.Errorf("IssueType = %q, want %q to take precedence", b.IssueType, models.IssueTooAttractive)
	}
}

func TestAnalyzeDistractorsConstantAbilities(t *testing.T) {
	// Identical abilities leave the correlation undefined; the rate-based
	// flags still apply.
	responses := choiceResponses(
		map[string]int{"A": 10, "B": 10},
		map[string]float64{"A": 1.0, "B": 1.0},
	)

	stats := analyzeDistractors(responses, []string{"B"})

	b := findDistractor(t, stats, "B")
	if b.PointBiserial != nil {
		t.Errorf("PointBiserial = %v, want nil when abilities do not vary", *b.PointBiserial)
	}
	if math.Abs(b.SelectionRate-0.5) > 1e-9 {
		t.Errorf("SelectionRate = %f, want 0.5", b.SelectionRate)
	}
}

func TestAnalyzeItemWithDistractors(t *testing.T) {
	a := NewAnalyst()

	responses := choiceResponses(
		map[string]int{"A": 30, "B": 15, "C": 5, "D": 0},
		map[string]float64{"A": 1.0, "B": -1.0, "C": -0.5},
	)

	stats, err := a.AnalyzeItem("item-1", responses, "A", []string{"B", "C", "D"})
	if err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}

	if len(stats.DistractorStats) != 3 {
		t.Fatalf("got %d distractor reports, want 3", len(stats.DistractorStats))
	}
	d := findDistractor(t, stats.DistractorStats, "D")
	if !d.IsProblematic || d.IssueType != models.IssueDeadDistractor {
		t.Errorf("D flag = (%v, %q), want dead distractor", d.IsProblematic, d.IssueType)
	}
	// The dead distractor rolls up into the item-level report.
	if !stats.IsProblematic {
		t.Error("item with a dead distractor should be flagged")
	}
	found := false
	for _, issue := range stats.Issues {
		if issue == "1 problematic distractor(s) found" {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %v, want a distractor summary entry", stats.Issues)
	}
}
