package model

// ValidationStatus tracks a candidate match through LLM review.
type ValidationStatus string

const (
	ValidationPending    ValidationStatus = "pending"
	ValidationSkipped    ValidationStatus = "skipped"
	ValidationValidating ValidationStatus = "validating"
	ValidationApproved   ValidationStatus = "approved"
	ValidationRejected   ValidationStatus = "rejected"
)

// ValidationDecision is the structured outcome of one validation attempt.
// Backend names the implementation that ultimately produced the decision;
// LLMUsed is false when the chain degraded to the heuristic fallback.
type ValidationDecision struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
	Backend    string  `json:"backend"`
	ModelName  string  `json:"model_name,omitempty"`
	LLMUsed    bool    `json:"llm_used"`
}
