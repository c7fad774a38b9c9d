package textnorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases", "AQUISIÇÃO DE SOFTWARE", "aquisicao de software"},
		{"strips diacritics", "serviços médicos", "servicos medicos"},
		{"collapses whitespace", "obra  civil\t\treforma", "obra civil reforma"},
		{"removes control chars", "texto\x01com\x02lixo", "textocomlixo"},
		{"trims trailing space", "pavimentacao  ", "pavimentacao"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeForEmbedding(t *testing.T) {
	t.Run("preserves case and accents", func(t *testing.T) {
		assert.Equal(t, "Aquisição de Medicamentos", NormalizeForEmbedding("  Aquisição de Medicamentos  "))
	})

	t.Run("strips null bytes", func(t *testing.T) {
		assert.Equal(t, "texto limpo", NormalizeForEmbedding("texto\x00 limpo"))
	})

	t.Run("truncates long input", func(t *testing.T) {
		long := strings.Repeat("á", maxEmbeddingRunes+500)
		got := NormalizeForEmbedding(long)
		assert.Len(t, []rune(got), maxEmbeddingRunes)
	})
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		text string
		want Category
	}{
		{"Aquisição de medicamentos e material hospitalar", CategoryHealthcare},
		{"Distribuidora de material hospitalar e medicamentos genéricos", CategoryHealthcare},
		{"Desenvolvimento de software de gestão", CategoryTechnology},
		{"Reforma e pavimentação de vias urbanas", CategoryConstruction},
		{"Serviços de limpeza e conservação predial", CategoryServices},
		{"Fornecimento de suprimentos", CategoryMaterials},
		{"Consultoria estratégica", CategoryGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectCategory(tt.text))
		})
	}
}

func TestSpecificityScore(t *testing.T) {
	t.Run("neutral medium text stays at base", func(t *testing.T) {
		score := SpecificityScore("Distribuidora de material hospitalar e medicamentos genéricos")
		assert.InDelta(t, 0.5, score, 1e-9)
	})

	t.Run("short text penalized", func(t *testing.T) {
		score := SpecificityScore("Aquisição de medicamentos e material hospitalar")
		assert.InDelta(t, 0.3, score, 1e-9)
	})

	t.Run("blacklisted terms penalized with cap", func(t *testing.T) {
		generic := "Aquisição de diversos materiais conforme necessidade"
		assert.Equal(t, 2, CountBlacklisted(generic))
		assert.Less(t, SpecificityScore(generic), 0.5)

		// Four terms only lose the capped 0.3, not 0.4.
		veryGeneric := "Fornecimento de itens diversos, variados, múltiplos e demais materiais em geral para atender necessidades"
		assert.GreaterOrEqual(t, SpecificityScore(veryGeneric), 0.0)
	})

	t.Run("whitelist and patterns rewarded", func(t *testing.T) {
		specific := "Empresa com técnico especializado, certificado em manutenção, 5 anos de experiência comprovada"
		assert.Greater(t, SpecificityScore(specific), 0.5)
	})

	t.Run("clamped to unit interval", func(t *testing.T) {
		for _, text := range []string{
			"geral",
			strings.Repeat("técnico especializado certificado em redes, registro no CREA, norma NBR 5410, 10 anos de experiência. ", 3),
		} {
			score := SpecificityScore(text)
			assert.GreaterOrEqual(t, score, 0.0)
			assert.LessOrEqual(t, score, 1.0)
		}
	})
}
