package analysis

import (
	"math"
	"strconv"
	"testing"

	"github.com/aprep/backend/internal/models"
)

func fptr(v float64) *float64 { return &v }

func aresp(answer string, ability float64) models.AnalysisResponse {
	return models.AnalysisResponse{
		StudentID: "s",
		Answer:    answer,
		Ability:   fptr(ability),
	}
}

// responsesWith builds nCorrect correct responses at abilityCorrect and the
// remainder wrong at abilityWrong.
func responsesWith(n, nCorrect int, abilityCorrect, abilityWrong float64) []models.AnalysisResponse {
	out := make([]models.AnalysisResponse, 0, n)
	for i := 0; i < n; i++ {
		r := aresp("B", abilityWrong)
		if i < nCorrect {
			r = aresp("A", abilityCorrect)
		}
		r.StudentID = "s" + strconv.Itoa(i)
		out = append(out, r)
	}
	return out
}

func TestAnalyzeItemEmptyResponses(t *testing.T) {
	a := NewAnalyst()

	if _, err := a.AnalyzeItem("item-1", nil, "A", nil); err == nil {
		t.Error("AnalyzeItem with no responses should fail")
	}
}

func TestAnalyzeItemHealthyItem(t *testing.T) {
	a := NewAnalyst()

	// 8 of 10 correct: p = 0.80 sits exactly on the boundary, which is
	// acceptable. Strong ability separation keeps discrimination healthy.
	stats, err := a.AnalyzeItem("item-1", responsesWith(10, 8, 1.0, -1.0), "A", nil)
	if err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}

	if stats.NResponses != 10 || stats.NCorrect != 8 {
		t.Errorf("counts = (%d, %d), want (10, 8)", stats.NResponses, stats.NCorrect)
	}
	if math.Abs(stats.PValue-0.8) > 1e-9 {
		t.Errorf("PValue = %f, want 0.80", stats.PValue)
	}
	if stats.PointBiserial == nil || *stats.PointBiserial < 0.3 {
		t.Errorf("PointBiserial = %v, want >= 0.3 for separated abilities", stats.PointBiserial)
	}
	if stats.DiscriminationIndex == nil || *stats.DiscriminationIndex <= 0 {
		t.Errorf("DiscriminationIndex = %v, want positive", stats.DiscriminationIndex)
	}
	if stats.IsProblematic {
		t.Errorf("boundary p-value flagged as problematic: %v", stats.Issues)
	}
}

func TestAnalyzeItemPointBiserialHandComputed(t *testing.T) {
	a := NewAnalyst()

	responses := []models.AnalysisResponse{
		aresp("A", 2.0), aresp("A", 1.0), aresp("B", -1.0), aresp("B", -2.0),
	}

	stats, err := a.AnalyzeItem("item-1", responses, "A", nil)
	if err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}

	// mean_correct=1.5, mean_incorrect=-1.5, sample sd=1.8257, sqrt(pq)=0.5
	// → r_pb = 0.8216
	if stats.PointBiserial == nil {
		t.Fatal("PointBiserial is nil")
	}
	if math.Abs(*stats.PointBiserial-0.8216) > 0.001 {
		t.Errorf("PointBiserial = %f, want ~0.8216", *stats.PointBiserial)
	}
}

func TestAnalyzeItemAllCorrect(t *testing.T) {
	a := NewAnalyst()

	stats, err := a.AnalyzeItem("item-1", responsesWith(20, 20, 1.0, 0.0), "A", nil)
	if err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}

	if stats.PValue != 1.0 {
		t.Errorf("PValue = %f, want 1.0", stats.PValue)
	}
	// One-sided outcomes leave the correlation undefined.
	if stats.PointBiserial != nil {
		t.Errorf("PointBiserial = %v, want nil when every response is correct", *stats.PointBiserial)
	}
	// The upper-lower index is still defined and trivially zero.
	if stats.DiscriminationIndex == nil || *stats.DiscriminationIndex != 0.0 {
		t.Errorf("DiscriminationIndex = %v, want 0.0", stats.DiscriminationIndex)
	}
	if !stats.IsProblematic {
		t.Error("p=1.0 should be flagged as too easy")
	}
}

func TestAnalyzeItemFlagsStrictBoundaries(t *testing.T) {
	a := NewAnalyst()

	tests := []struct {
		name     string
		nCorrect int
		flagged  bool
	}{
		{"p=0.80 boundary ok", 8, false},
		{"p=0.90 too easy", 9, true},
		{"p=0.20 boundary ok", 2, false},
		{"p=0.10 too hard", 1, true},
	}

	for _, tt := range tests {
		stats, err := a.AnalyzeItem("item-1", responsesWith(10, tt.nCorrect, 1.0, -1.0), "A", nil)
		if err != nil {
			t.Fatalf("%s: AnalyzeItem: %v", tt.name, err)
		}

		// Ability separation keeps discrimination healthy in every case, so
		// the p-value check is the only flag in play.
		if stats.IsProblematic != tt.flagged {
			t.Errorf("%s: IsProblematic = %v, want %v (issues: %v)",
				tt.name, stats.IsProblematic, tt.flagged, stats.Issues)
		}
	}
}

func TestAnalyzeItemNegativeDiscrimination(t *testing.T) {
	a := NewAnalyst()

	// Low-ability students answer correctly, high-ability ones do not.
	responses := append(
		responsesWith(4, 4, -2.0, 0.0),
		responsesWith(6, 0, 0.0, 2.0)...,
	)

	stats, err := a.AnalyzeItem("item-1", responses, "A", nil)
	if err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}

	if stats.PointBiserial == nil || *stats.PointBiserial >= 0 {
		t.Fatalf("PointBiserial = %v, want negative", stats.PointBiserial)
	}
	if !stats.IsProblematic {
		t.Error("negative discrimination must flag the item")
	}
	// Both the low-discrimination and the negative-discrimination issues fire.
	if len(stats.Issues) < 2 {
		t.Errorf("issues = %v, want low and negative discrimination flags", stats.Issues)
	}
	critical := false
	for _, rec := range stats.Recommendations {
		if len(rec) >= 8 && rec[:8] == "CRITICAL" {
			critical = true
		}
	}
	if !critical {
		t.Errorf("recommendations = %v, want a CRITICAL wrong-key warning", stats.Recommendations)
	}
}

func TestAnalyzeItemIndexNeedsTenResponses(t *testing.T) {
	a := NewAnalyst()

	stats, err := a.AnalyzeItem("item-1", responsesWith(9, 5, 1.0, -1.0), "A", nil)
	if err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}
	if stats.DiscriminationIndex != nil {
		t.Errorf("DiscriminationIndex = %v, want nil below 10 responses", *stats.DiscriminationIndex)
	}
	// The point-biserial has no such floor.
	if stats.PointBiserial == nil {
		t.Error("PointBiserial should still be computed below 10 responses")
	}
}

func TestAnalyzeItemWithoutAbilityData(t *testing.T) {
	a := NewAnalyst()

	responses := make([]models.AnalysisResponse, 12)
	for i := range responses {
		answer := "A"
		if i%2 == 0 {
			answer = "B"
		}
		responses[i] = models.AnalysisResponse{StudentID: "s" + strconv.Itoa(i), Answer: answer}
	}

	stats, err := a.AnalyzeItem("item-1", responses, "A", nil)
	if err != nil {
		t.Fatalf("analysis without abilities should still report the p-value: %v", err)
	}
	if stats.PointBiserial != nil {
		t.Errorf("PointBiserial = %v, want nil without ability data", *stats.PointBiserial)
	}
	if stats.DiscriminationIndex != nil {
		t.Errorf("DiscriminationIndex = %v, want nil without ability data", *stats.DiscriminationIndex)
	}
	if math.Abs(stats.PValue-0.5) > 1e-9 {
		t.Errorf("PValue = %f, want 0.5", stats.PValue)
	}
}

func TestAnalyzeItemTotalScoreFallback(t *testing.T) {
	a := NewAnalyst()

	// No latent abilities, but every response carries a total score.
	responses := []models.AnalysisResponse{
		{StudentID: "s1", Answer: "A", TotalScore: fptr(95.0)},
		{StudentID: "s2", Answer: "A", TotalScore: fptr(80.0)},
		{StudentID: "s3", Answer: "B", TotalScore: fptr(40.0)},
		{StudentID: "s4", Answer: "B", TotalScore: fptr(30.0)},
	}

	stats, err := a.AnalyzeItem("item-1", responses, "A", nil)
	if err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}
	if stats.PointBiserial == nil || *stats.PointBiserial <= 0 {
		t.Errorf("PointBiserial = %v, want positive from total-score proxy", stats.PointBiserial)
	}
}

func TestAnalyzeBatchSkipsFailures(t *testing.T) {
	a := NewAnalyst()

	items := []models.BatchItem{
		{ItemID: "good", Responses: responsesWith(10, 6, 1.0, -1.0), CorrectAnswer: "A"},
		{ItemID: "empty", CorrectAnswer: "A"},
		{ItemID: "easy", Responses: responsesWith(10, 10, 1.0, 0.0), CorrectAnswer: "A"},
	}

	batch := a.AnalyzeBatch(items)

	if batch.TotalItems != 3 {
		t.Errorf("TotalItems = %d, want 3", batch.TotalItems)
	}
	if batch.AnalyzedItems != 2 {
		t.Errorf("AnalyzedItems = %d, want 2", batch.AnalyzedItems)
	}
	if batch.FailedItems != 1 {
		t.Errorf("FailedItems = %d, want 1", batch.FailedItems)
	}
	if batch.ProblematicItems != 1 {
		t.Errorf("ProblematicItems = %d, want 1 (the all-correct item)", batch.ProblematicItems)
	}
	if batch.AcceptableItems != 1 {
		t.Errorf("AcceptableItems = %d, want 1", batch.AcceptableItems)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("Results has %d entries, want one per item", len(batch.Results))
	}
	if batch.Results[1].Error == "" {
		t.Error("failed item should carry its error in the results")
	}
	// Averages cover analyzed items only: (0.6 + 1.0) / 2.
	if math.Abs(batch.AvgPValue-0.8) > 1e-9 {
		t.Errorf("AvgPValue = %f, want 0.8", batch.AvgPValue)
	}
}

func TestProblematicItemsAndStatistics(t *testing.T) {
	a := NewAnalyst()

	if _, err := a.AnalyzeItem("fine", responsesWith(10, 6, 1.0, -1.0), "A", nil); err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}
	if _, err := a.AnalyzeItem("too-easy", responsesWith(10, 10, 1.0, 0.0), "A", nil); err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}

	problematic := a.ProblematicItems()
	if len(problematic) != 1 || problematic[0].ItemID != "too-easy" {
		t.Errorf("ProblematicItems = %v, want only too-easy", problematic)
	}

	stats := a.Statistics()
	if stats.TotalAnalyses != 2 {
		t.Errorf("TotalAnalyses = %d, want 2", stats.TotalAnalyses)
	}
	if stats.ProblematicCount != 1 {
		t.Errorf("ProblematicCount = %d, want 1", stats.ProblematicCount)
	}
	if math.Abs(stats.ProblematicRate-0.5) > 1e-9 {
		t.Errorf("ProblematicRate = %f, want 0.5", stats.ProblematicRate)
	}
	if math.Abs(stats.AvgPValue-0.8) > 1e-9 {
		t.Errorf("AvgPValue = %f, want 0.8", stats.AvgPValue)
	}
}

func TestAnalystEnvThresholds(t *testing.T) {
	t.Setenv("ANALYSIS_MIN_P_VALUE", "0.30")
	t.Setenv("ANALYSIS_MAX_P_VALUE", "0.70")

	a := NewAnalyst()

	// p = 0.75 passes the defaults but not the tightened ceiling.
	stats, err := a.AnalyzeItem("item-1", responsesWith(20, 15, 1.0, -1.0), "A", nil)
	if err != nil {
		t.Fatalf("AnalyzeItem: %v", err)
	}
	if !stats.IsProblematic {
		t.Error("p=0.75 should be flagged with ANALYSIS_MAX_P_VALUE=0.70")
	}
}
