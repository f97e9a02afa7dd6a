package models

// ── API Request/Response Types ────────────────────────────

type ErrorResponse struct {
	Error string `json:"error"`
}

type InitialEstimateRequest struct {
	Variant Variant         `json:"variant"`
	Context *VariantContext `json:"context,omitempty"`
}

type CalibrateRequest struct {
	Responses []ResponseData `json:"responses"`

	// Optional externally supplied ability map; estimated from the
	// responses themselves when absent.
	StudentAbilities map[string]float64 `json:"student_abilities,omitempty"`
}

type OnlineUpdateRequest struct {
	Response       ResponseData `json:"response"`
	StudentAbility float64      `json:"student_ability"`
	LearningRate   *float64     `json:"learning_rate,omitempty"`
}

type AddAnchorRequest struct {
	ItemID          string         `json:"item_id"`
	TopicID         string         `json:"topic_id"`
	CourseID        string         `json:"course_id"`
	Params          *IRTParameters `json:"irt_params,omitempty"`
	Validated       bool           `json:"validated"`
	ConfidenceScore float64        `json:"confidence_score"`
}

type AnalyzeItemRequest struct {
	Responses     []AnalysisResponse `json:"responses"`
	CorrectAnswer string             `json:"correct_answer"`
	Distractors   []string           `json:"distractors,omitempty"`
}

type BatchAnalyzeRequest struct {
	Items []BatchItem `json:"items"`
}
