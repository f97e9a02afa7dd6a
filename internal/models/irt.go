package models

import "time"

// EstimationMethod records how an item's parameters were produced. Downstream
// consumers treat it as a confidence signal: "default" and "heuristic"
// estimates are weaker than "mle_2pl".
type EstimationMethod string

const (
	EstimationAnchorBased   EstimationMethod = "anchor_based"
	EstimationTemplateBased EstimationMethod = "template_based"
	EstimationHeuristic     EstimationMethod = "heuristic"
	EstimationMLE2PL        EstimationMethod = "mle_2pl"
	EstimationDefault       EstimationMethod = "default"
)

// Domain bounds for 2PL parameters. Discrimination must stay positive or the
// response curve inverts/flattens; difficulty must stay finite.
const (
	MinDiscrimination = 0.1
	MaxDiscrimination = 3.0
	MinDifficulty     = -4.0
	MaxDifficulty     = 4.0
)

// CalibrationState classifies an item's calibration lifecycle.
type CalibrationState string

const (
	StateUncalibrated CalibrationState = "uncalibrated"
	StateCalibrating  CalibrationState = "calibrating"
	StateCalibrated   CalibrationState = "calibrated"
)

// IRTParameters holds the 2PL model parameters for a single scored item.
type IRTParameters struct {
	ItemID string `json:"item_id"`

	// a = discrimination, b = difficulty (ability level for 50% success).
	A float64 `json:"a"`
	B float64 `json:"b"`

	// Standard errors, informational only.
	SEa *float64 `json:"se_a,omitempty"`
	SEb *float64 `json:"se_b,omitempty"`

	NResponses  int       `json:"n_responses"`
	LastUpdated time.Time `json:"last_updated"`

	EstimationMethod EstimationMethod `json:"estimation_method"`

	// Provenance used by cold-start fallbacks and topic-filtered serving.
	TemplateID      *string  `json:"template_id,omitempty"`
	TopicID         *string  `json:"topic_id,omitempty"`
	ComplexityScore *float64 `json:"complexity_score,omitempty"`
}

// State derives the lifecycle classification. Online updates move an item to
// "calibrating" but only a successful MLE refit makes it "calibrated".
func (p IRTParameters) State() CalibrationState {
	if p.EstimationMethod == EstimationMLE2PL {
		return StateCalibrated
	}
	if p.NResponses > 0 {
		return StateCalibrating
	}
	return StateUncalibrated
}

// AnchorItem is a validated, topic-scoped reference item whose calibrated
// parameters seed estimates for new items in the same topic. Immutable once
// promoted.
type AnchorItem struct {
	ID       int64  `json:"id"`
	ItemID   string `json:"item_id"`
	TopicID  string `json:"topic_id"`
	CourseID string `json:"course_id"`

	Params IRTParameters `json:"irt_params"`

	IsValidated     bool      `json:"is_validated"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at"`
}

// ResponseData is one observed right/wrong event, the unit of evidence
// consumed by calibration. Append-only.
type ResponseData struct {
	StudentID           string    `json:"student_id"`
	ItemID              string    `json:"item_id"`
	Correct             bool      `json:"correct"`
	ResponseTimeSeconds *float64  `json:"response_time_seconds,omitempty"`
	Timestamp           time.Time `json:"timestamp"`
}

// Variant carries the surface features of a question variant used for
// cold-start difficulty estimation.
type Variant struct {
	ID         string  `json:"id"`
	TemplateID *string `json:"template_id,omitempty"`
	Stimulus   string  `json:"stimulus"`
	Solution   string  `json:"solution"`
}

// VariantContext supplies lookup keys sourced from the template/variant
// subsystem.
type VariantContext struct {
	TopicID  string `json:"topic_id"`
	CourseID string `json:"course_id"`
}

// CalibrationStatistics summarizes the calibrated item pool.
type CalibrationStatistics struct {
	TotalItems         int     `json:"total_items"`
	CalibratedItems    int     `json:"calibrated_items"`
	DifficultyMean     float64 `json:"difficulty_mean"`
	DifficultyStd      float64 `json:"difficulty_std"`
	DifficultyRange    Range   `json:"difficulty_range"`
	DiscriminationMean float64 `json:"discrimination_mean"`
	DiscriminationStd  float64 `json:"discrimination_std"`
	TotalAnchors       int     `json:"total_anchors"`
}

type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RecalibrationReport summarizes a batch refit pass over the response log.
// ItemsFailed counts items whose fit did not converge and whose previous
// parameters were retained; they are not refits.
type RecalibrationReport struct {
	ItemsConsidered int   `json:"items_considered"`
	ItemsRefit      int   `json:"items_refit"`
	ItemsFailed     int   `json:"items_failed"`
	ItemsSkipped    int   `json:"items_skipped"`
	PersistErrors   int   `json:"persist_errors"`
	DurationMS      int64 `json:"duration_ms"`
}
