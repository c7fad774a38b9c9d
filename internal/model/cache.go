package model

import "time"

// EmbeddingCacheEntry is one durable cache row. (TextHash, ModelName) is unique;
// the stored vector is immutable once written, only the access bookkeeping moves.
type EmbeddingCacheEntry struct {
	TextHash    string    `json:"text_hash"`
	TextPreview string    `json:"text_preview"`
	Vector      []float32 `json:"vector"`
	ModelName   string    `json:"model_name"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	AccessCount int64     `json:"access_count"`
}

// CacheStats reports durable-cache occupancy, per model.
type CacheStats struct {
	TotalEntries  int64            `json:"total_entries"`
	TotalAccesses int64            `json:"total_accesses"`
	ByModel       map[string]int64 `json:"by_model"`
}

// ResourceType tags the kind of resource a processed-record refers to.
type ResourceType string

const (
	ResourceOpportunity ResourceType = "opportunity"
	ResourceDocument    ResourceType = "document"
)

// ProcessedResource records that a resource with a given content fingerprint has
// already been run through the pipeline. Rows are never mutated; a changed
// fingerprint is a new unit of work.
type ProcessedResource struct {
	ResourceType ResourceType   `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Fingerprint  string         `json:"content_fingerprint"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ProcessedAt  time.Time      `json:"processed_at"`
}
