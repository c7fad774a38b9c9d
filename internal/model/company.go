package model

// CompanyProfile is a business self-description, the match target.
// Embedding is a derived attribute resolved through the embedding cache; it is
// empty until the pipeline's precompute pass fills it in.
type CompanyProfile struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Products    []string `json:"products,omitempty"`
	Embedding   []float32 `json:"-"`
}
