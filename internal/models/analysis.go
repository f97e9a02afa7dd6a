package models

import "time"

// Distractor issue types.
const (
	IssueDeadDistractor      = "dead_distractor"
	IssueTooAttractive       = "too_attractive"
	IssueAttractsHighAbility = "attracts_high_performers"
)

// AnalysisResponse is one graded answer used for classical item analysis.
// Ability is the student's latent ability estimate if known; TotalScore is a
// total-test-score proxy used when no ability estimate exists.
type AnalysisResponse struct {
	StudentID  string   `json:"student_id"`
	Answer     string   `json:"answer"`
	Ability    *float64 `json:"ability,omitempty"`
	TotalScore *float64 `json:"total_score,omitempty"`
}

// DistractorStats holds selection statistics for a single wrong option.
type DistractorStats struct {
	DistractorID   string   `json:"distractor_id"`
	SelectionCount int      `json:"selection_count"`
	SelectionRate  float64  `json:"selection_rate"`
	PointBiserial  *float64 `json:"point_biserial,omitempty"`
	IsProblematic  bool     `json:"is_problematic"`
	IssueType      string   `json:"issue_type,omitempty"`
}

// ItemStatistics is a derived, recomputable analysis report for one item.
// Never the source of truth: always regenerable from the response log.
type ItemStatistics struct {
	ItemID string `json:"item_id"`

	NResponses int     `json:"n_responses"`
	NCorrect   int     `json:"n_correct"`
	PValue     float64 `json:"p_value"`

	PointBiserial       *float64 `json:"point_biserial,omitempty"`
	DiscriminationIndex *float64 `json:"discrimination_index,omitempty"`

	DistractorStats []DistractorStats `json:"distractor_stats,omitempty"`

	IsProblematic   bool     `json:"is_problematic"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at"`
}

// BatchItem bundles everything needed to analyze one item in a batch run.
type BatchItem struct {
	ItemID        string             `json:"item_id"`
	Responses     []AnalysisResponse `json:"responses"`
	CorrectAnswer string             `json:"correct_answer"`
	Distractors   []string           `json:"distractors,omitempty"`
}

// ItemResult is the per-item outcome of a batch analysis. A failed item
// carries its error and a nil Stats; the batch continues past it.
type ItemResult struct {
	ItemID string          `json:"item_id"`
	Stats  *ItemStatistics `json:"stats,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// BatchAnalysis aggregates a batch analysis run.
type BatchAnalysis struct {
	TotalItems        int          `json:"total_items"`
	AnalyzedItems     int          `json:"analyzed_items"`
	FailedItems       int          `json:"failed_items"`
	ProblematicItems  int          `json:"problematic_items"`
	AcceptableItems   int          `json:"acceptable_items"`
	AvgPValue         float64      `json:"avg_p_value"`
	AvgDiscrimination *float64     `json:"avg_discrimination,omitempty"`
	Results           []ItemResult `json:"results"`
}

// AnalysisRecord is a compact history entry kept per analysis run.
type AnalysisRecord struct {
	ItemID        string    `json:"item_id"`
	AnalyzedAt    time.Time `json:"analyzed_at"`
	PValue        float64   `json:"p_value"`
	PointBiserial *float64  `json:"point_biserial,omitempty"`
	IsProblematic bool      `json:"is_problematic"`
}

// AnalystStatistics summarizes all analyses performed by an analyst instance.
type AnalystStatistics struct {
	TotalAnalyses     int      `json:"total_analyses"`
	ProblematicCount  int      `json:"problematic_count"`
	ProblematicRate   float64  `json:"problematic_rate"`
	AvgPValue         float64  `json:"avg_p_value"`
	AvgDiscrimination *float64 `json:"avg_discrimination,omitempty"`
	MinPValue         float64  `json:"min_p_value"`
	MaxPValue         float64  `json:"max_p_value"`
	MinDiscrimination float64  `json:"min_discrimination"`
}
