// Package scorer computes two-phase similarity scores between opportunities
// and company profiles, with quality heuristics gating acceptance.
package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/licitatech/match-cli/internal/textnorm"
)

// CategoryThresholds overrides the phase thresholds for one detected category.
type CategoryThresholds struct {
	Phase1 float64 `yaml:"phase1"`
	Phase2 float64 `yaml:"phase2"`
}

// Config holds the scoring policy. The constants are tuned values, not
// load-bearing behavior; all of them can be overridden through configuration.
type Config struct {
	// ThresholdPhase1 is the object-level acceptance threshold.
	ThresholdPhase1 float64
	// ThresholdPhase2 is the line-item acceptance threshold.
	ThresholdPhase2 float64
	// CategoryThresholds maps a detected category to stricter thresholds.
	CategoryThresholds map[textnorm.Category]CategoryThresholds

	// MinSpecificity is the floor on average specificity for acceptance.
	MinSpecificity float64
	// MaxBlacklistTerms is the most blacklisted-term hits tolerated across
	// both texts before the severe penalty applies.
	MaxBlacklistTerms int

	// Quality gate multipliers.
	LowSpecificityPenalty float64
	SameCategoryBonus     float64
	CategoryMismatch      float64
	BlacklistPenalty      float64
	CleanTextBonus        float64

	// Keyword co-occurrence boost.
	KeywordBoostPerTerm float64
	KeywordBoostCap     float64
}

// DefaultConfig returns the high-precision policy: 0.78/0.82 base thresholds
// with healthcare held stricter.
func DefaultConfig() Config {
	return Config{
		ThresholdPhase1: 0.78,
		ThresholdPhase2: 0.82,
		CategoryThresholds: map[textnorm.Category]CategoryThresholds{
			textnorm.CategoryHealthcare: {Phase1: 0.80, Phase2: 0.85},
		},
		MinSpecificity:        0.35,
		MaxBlacklistTerms:     2,
		LowSpecificityPenalty: 0.8,
		SameCategoryBonus:     1.15,
		CategoryMismatch:      0.9,
		BlacklistPenalty:      0.75,
		CleanTextBonus:        1.05,
		KeywordBoostPerTerm:   0.02,
		KeywordBoostCap:       0.1,
	}
}

// ThresholdsFor returns the phase thresholds for a detected category.
func (c Config) ThresholdsFor(cat textnorm.Category) CategoryThresholds {
	if t, ok := c.CategoryThresholds[cat]; ok {
		return t
	}
	return CategoryThresholds{Phase1: c.ThresholdPhase1, Phase2: c.ThresholdPhase2}
}

// Vocabulary is the domain term list used for the keyword co-occurrence boost.
// Terms are matched against the normalized (lower-case, accent-free) form.
type Vocabulary struct {
	TechnicalTerms []string `yaml:"technical_terms"`
}

// DefaultVocabulary returns the shipped Brazilian Portuguese term list.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		TechnicalTerms: []string{
			"medicamentos", "material hospitalar", "equipamentos medicos",
			"insumos laboratoriais", "software", "licenca de uso",
			"servidor", "rede de dados", "notebook", "impressora",
			"manutencao predial", "obra civil", "pavimentacao", "reforma",
			"material eletrico", "material hidraulico", "mobiliario",
			"generos alimenticios", "limpeza e conservacao", "vigilancia",
			"transporte escolar", "locacao de veiculos", "combustivel",
			"uniformes", "material de expediente", "ar condicionado",
		},
	}
}

// LoadVocabulary reads a YAML vocabulary override. Terms in the file replace
// the defaults entirely.
func LoadVocabulary(path string) (Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Vocabulary{}, eris.Wrapf(err, "scorer: read vocabulary %s", path)
	}
	var v Vocabulary
	if err := yaml.Unmarshal(data, &v); err != nil {
		return Vocabulary{}, eris.Wrapf(err, "scorer: parse vocabulary %s", path)
	}
	if len(v.TechnicalTerms) == 0 {
		return Vocabulary{}, eris.Errorf("scorer: vocabulary %s has no technical_terms", path)
	}
	return v, nil
}
