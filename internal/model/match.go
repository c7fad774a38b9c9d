package model

import "time"

// MatchType distinguishes object-level matches from matches refined by line items.
type MatchType string

const (
	MatchObjectOnly     MatchType = "object_only"
	MatchObjectAndItems MatchType = "object_and_items"
)

// MatchRecord is a persisted match between an opportunity and a company.
// Score is the final confidence after quality adjustments and (when performed)
// LLM validation; it never exceeds the raw similarity that triggered validation.
type MatchRecord struct {
	OpportunityID  string    `json:"opportunity_id"`
	CompanyID      string    `json:"company_id"`
	Score          float64   `json:"score"`
	MatchType      MatchType `json:"match_type"`
	Justification  string    `json:"justification"`
	ValidatedByLLM bool      `json:"validated_by_llm"`
	ValidatorModel string    `json:"validator_model,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RunResult summarizes a matching run over a batch of opportunities.
type RunResult struct {
	Processed          []string  `json:"processed"`
	Skipped            []string  `json:"skipped"`
	Failed             []string  `json:"failed"`
	MatchesSaved       int       `json:"matches_saved"`
	MatchesPhase1Only  int       `json:"matches_phase1_only"`
	MatchesPhase2      int       `json:"matches_phase2"`
	QualityRejected    int       `json:"quality_rejected"`
	LLMValidations     int       `json:"llm_validations"`
	LLMApproved        int       `json:"llm_approved"`
	LLMRejected        int       `json:"llm_rejected"`
	AverageScore       float64   `json:"average_score"`
	CacheHits          int       `json:"cache_hits"`
	CacheMisses        int       `json:"cache_misses"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}
