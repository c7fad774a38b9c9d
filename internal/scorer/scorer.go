package scorer

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/licitatech/match-cli/internal/model"
	"github.com/licitatech/match-cli/internal/textnorm"
)

// ErrDimensionMismatch is returned when two vectors of different lengths are
// compared.
var ErrDimensionMismatch = eris.New("scorer: vector dimension mismatch")

// Scorer applies the two-phase scoring policy. It is stateless and safe for
// concurrent use.
type Scorer struct {
	cfg   Config
	terms []string
}

// New creates a Scorer. Vocabulary terms are normalized once up front.
func New(cfg Config, vocab Vocabulary) *Scorer {
	terms := make([]string, 0, len(vocab.TechnicalTerms))
	for _, t := range vocab.TechnicalTerms {
		if n := textnorm.Normalize(t); n != "" {
			terms = append(terms, n)
		}
	}
	return &Scorer{cfg: cfg, terms: terms}
}

// Cosine returns the cosine similarity of two vectors. Zero vectors score 0.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, eris.Wrapf(ErrDimensionMismatch, "got %d and %d", len(a), len(b))
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

// KeywordBoost returns the co-occurrence boost for two texts: a fixed bonus
// per vocabulary term present in both, capped.
func (s *Scorer) KeywordBoost(oppText, companyText string) float64 {
	opp := textnorm.Normalize(oppText)
	company := textnorm.Normalize(companyText)

	boost := 0.0
	for _, term := range s.terms {
		if strings.Contains(opp, term) && strings.Contains(company, term) {
			boost += s.cfg.KeywordBoostPerTerm
		}
	}
	if boost > s.cfg.KeywordBoostCap {
		boost = s.cfg.KeywordBoostCap
	}
	return boost
}

// Phase1Result reports an object-level scoring pass with its gate inputs, so
// rejections can be explained.
type Phase1Result struct {
	RawSimilarity       float64
	KeywordBoost        float64
	AdjustedScore       float64
	Threshold           float64
	OpportunityCategory textnorm.Category
	CompanyCategory     textnorm.Category
	AvgSpecificity      float64
	BlacklistCount      int
	Accepted            bool
}

// Phase1 scores a company against the opportunity's object description and
// applies the quality gate. Acceptance requires the adjusted score to clear
// the category threshold, the average specificity to clear the minimum, and
// the blacklist count to stay within bound.
func (s *Scorer) Phase1(oppText string, oppVec []float32, companyText string, companyVec []float32) (Phase1Result, error) {
	raw, err := Cosine(oppVec, companyVec)
	if err != nil {
		return Phase1Result{}, err
	}

	r := Phase1Result{
		RawSimilarity:       raw,
		KeywordBoost:        s.KeywordBoost(oppText, companyText),
		OpportunityCategory: textnorm.DetectCategory(oppText),
		CompanyCategory:     textnorm.DetectCategory(companyText),
		AvgSpecificity:      (textnorm.SpecificityScore(oppText) + textnorm.SpecificityScore(companyText)) / 2,
		BlacklistCount:      textnorm.CountBlacklisted(oppText) + textnorm.CountBlacklisted(companyText),
	}
	r.Threshold = s.cfg.ThresholdsFor(r.OpportunityCategory).Phase1

	score := raw + r.KeywordBoost

	if r.AvgSpecificity < s.cfg.MinSpecificity {
		score *= s.cfg.LowSpecificityPenalty
	}
	if r.OpportunityCategory == r.CompanyCategory && r.OpportunityCategory != textnorm.CategoryGeneric {
		score *= s.cfg.SameCategoryBonus
	} else {
		score *= s.cfg.CategoryMismatch
	}
	switch {
	case r.BlacklistCount > s.cfg.MaxBlacklistTerms:
		score *= s.cfg.BlacklistPenalty
	case r.BlacklistCount == 0:
		score *= s.cfg.CleanTextBonus
	}

	r.AdjustedScore = clamp01(score)
	r.Accepted = r.AdjustedScore >= r.Threshold &&
		r.AvgSpecificity >= s.cfg.MinSpecificity &&
		r.BlacklistCount <= s.cfg.MaxBlacklistTerms
	return r, nil
}

// Phase2Result reports the line-item refinement of a phase-1 candidate.
type Phase2Result struct {
	FinalScore      float64
	MatchType       model.MatchType
	ItemScores      []float64
	QualifyingItems int
}

// Phase2 refines a phase-1 candidate against the opportunity's line items.
// itemTexts and itemVecs run in parallel; items whose boosted similarity
// clears the phase-2 category threshold qualify. With at least one qualifying
// item the final score is the mean of the phase-1 score and the mean of the
// qualifying item scores. With no items at all, or none qualifying, the
// phase-1 score stands and the match stays object-level.
func (s *Scorer) Phase2(p1 Phase1Result, itemTexts []string, itemVecs [][]float32, companyText string, companyVec []float32) (Phase2Result, error) {
	out := Phase2Result{
		FinalScore: p1.AdjustedScore,
		MatchType:  model.MatchObjectOnly,
	}
	if len(itemTexts) == 0 {
		return out, nil
	}
	if len(itemTexts) != len(itemVecs) {
		return Phase2Result{}, eris.Errorf("scorer: %d item texts but %d vectors", len(itemTexts), len(itemVecs))
	}

	threshold := s.cfg.ThresholdsFor(p1.OpportunityCategory).Phase2

	var qualifyingSum float64
	for i, text := range itemTexts {
		raw, err := Cosine(itemVecs[i], companyVec)
		if err != nil {
			return Phase2Result{}, err
		}
		score := clamp01(raw + s.KeywordBoost(text, companyText))
		out.ItemScores = append(out.ItemScores, score)
		if score >= threshold {
			out.QualifyingItems++
			qualifyingSum += score
		}
	}

	if out.QualifyingItems > 0 {
		itemMean := qualifyingSum / float64(out.QualifyingItems)
		out.FinalScore = clamp01((p1.AdjustedScore + itemMean) / 2)
		out.MatchType = model.MatchObjectAndItems
	}
	return out, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
