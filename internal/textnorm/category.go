package textnorm

import "strings"

// Category is a detected business segment. CategoryGeneric means no segment
// vocabulary matched.
type Category string

const (
	CategoryTechnology   Category = "tecnologia_ti"
	CategoryConstruction Category = "construcao_engenharia"
	CategoryHealthcare   Category = "saude_medicamentos"
	CategoryServices     Category = "servicos_gerais"
	CategoryMaterials    Category = "fornecimento_materiais"
	CategoryGeneric      Category = "generic"
)

// categoryKeywords maps each segment to its detection vocabulary. Keywords are
// matched against the normalized (accent-free, lower-case) text, so entries are
// written accent-free as well.
var categoryKeywords = map[Category][]string{
	CategoryTechnology:   {"software", "sistema", "desenvolvimento", "tecnologia", "informatica", "programacao"},
	CategoryConstruction: {"construcao", "obra", "engenharia", "reforma", "infraestrutura", "pavimentacao"},
	CategoryHealthcare:   {"medicamento", "saude", "hospitalar", "medico", "farmacia", "equipamento medico"},
	CategoryServices:     {"limpeza", "vigilancia", "seguranca", "manutencao", "conservacao"},
	CategoryMaterials:    {"fornecimento", "aquisicao", "material", "equipamento", "suprimento"},
}

// categoryOrder fixes iteration order so detection is deterministic when a text
// mentions keywords from more than one segment.
var categoryOrder = []Category{
	CategoryTechnology,
	CategoryConstruction,
	CategoryHealthcare,
	CategoryServices,
	CategoryMaterials,
}

// DetectCategory returns the first segment with at least one keyword hit in the
// text, or CategoryGeneric.
func DetectCategory(text string) Category {
	lower := Normalize(text)
	for _, cat := range categoryOrder {
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				return cat
			}
		}
	}
	return CategoryGeneric
}
