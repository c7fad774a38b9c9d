// Package model defines the entities shared across the matching pipeline.
package model

import "time"

// LineItem is a single purchasable item inside an opportunity.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity,omitempty"`
	Unit        string  `json:"unit,omitempty"`
}

// Opportunity is a procurement notice to be matched against companies.
// ExternalID is the identifier assigned by the publishing portal.
type Opportunity struct {
	ID                string     `json:"id"`
	ExternalID        string     `json:"external_id"`
	ObjectDescription string     `json:"object_description"`
	LineItems         []LineItem `json:"line_items,omitempty"`
	PublishedAt       *time.Time `json:"published_at,omitempty"`
}

// HasItems reports whether the opportunity carries line items eligible for
// phase-2 refinement.
func (o Opportunity) HasItems() bool {
	for _, it := range o.LineItems {
		if it.Description != "" {
			return true
		}
	}
	return false
}
