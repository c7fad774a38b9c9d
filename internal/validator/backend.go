// Package validator routes high-scoring candidate matches through a chain of
// LLM backends for approval, degrading to a conservative heuristic when every
// backend fails.
package validator

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/licitatech/match-cli/internal/model"
)

// Backend is a single LLM that can answer a validation prompt. Complete
// returns the raw completion text; parsing happens in the chain so every
// backend shares the same fallback-ordered parse attempts.
type Backend interface {
	Name() string
	ModelName() string
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ErrMalformedResponse marks a backend reply that could not be parsed into a
// decision. It is treated the same as an unreachable backend.
var ErrMalformedResponse = eris.New("validator: malformed response")

const (
	maxProductsInPrompt = 10
	maxItemsInPrompt    = 10
)

// Prompt is the structured validation request sent to a backend.
type Prompt struct {
	Company         model.CompanyProfile
	Opportunity     model.Opportunity
	SimilarityScore float64
}

const systemPrompt = `Voce avalia se uma empresa e capaz de atender uma licitacao publica.
Responda APENAS com JSON no formato:
{"is_valid": true|false, "confidence": 0.0-1.0, "reasoning": "justificativa curta"}`

// UserMessage renders the prompt body. Product and item lists are truncated
// so local models with small contexts still get the score and both texts.
func (p Prompt) UserMessage() string {
	var b strings.Builder
	fmt.Fprintf(&b, "EMPRESA: %s\n", p.Company.Name)
	fmt.Fprintf(&b, "DESCRICAO: %s\n", p.Company.Description)

	if len(p.Company.Products) > 0 {
		products := p.Company.Products
		if len(products) > maxProductsInPrompt {
			products = products[:maxProductsInPrompt]
		}
		fmt.Fprintf(&b, "PRODUTOS: %s\n", strings.Join(products, "; "))
	}

	fmt.Fprintf(&b, "\nLICITACAO: %s\n", p.Opportunity.ObjectDescription)
	if len(p.Opportunity.LineItems) > 0 {
		items := p.Opportunity.LineItems
		if len(items) > maxItemsInPrompt {
			items = items[:maxItemsInPrompt]
		}
		b.WriteString("ITENS:\n")
		for _, item := range items {
			fmt.Fprintf(&b, "- %s\n", item.Description)
		}
	}

	fmt.Fprintf(&b, "\nSIMILARIDADE CALCULADA: %.2f\n", p.SimilarityScore)
	b.WriteString("\nA empresa consegue atender esta licitacao?")
	return b.String()
}
