package textnorm

import (
	"regexp"
	"strings"
)

// GenericBlacklist lists terms that flag an overly generic text. Matched
// against the normalized form.
var GenericBlacklist = []string{
	"diversos", "varios", "geral", "multiplos", "conforme necessidade",
	"entre outros", "demais", "variados", "eventuais", "outras atividades",
}

// SpecificWhitelist lists terms that indicate a concrete, qualified text.
var SpecificWhitelist = []string{
	"cnpj", "especializado", "certificado", "tecnico", "qualificado",
	"experiencia comprovada", "atestado", "registro profissional",
}

// specificityPatterns match structural markers of a specific requirement:
// years of experience, certifications, professional registrations, standards
// references, capacity minimums.
var specificityPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d+\s*(anos?|meses?)\s*(de\s*)?(experiencia|atuacao)`),
	regexp.MustCompile(`certificad[oa]\s+(em|para|de)`),
	regexp.MustCompile(`registro\s+(no|na|do|da)\s+\w+`),
	regexp.MustCompile(`norma\s+(nbr|iso|abnt)`),
	regexp.MustCompile(`capacidade\s+(minima|de)\s+\d+`),
}

const (
	specificityBase     = 0.5
	blacklistPenalty    = 0.1
	blacklistPenaltyCap = 0.3
	whitelistBonus      = 0.15
	patternBonus        = 0.2
	shortTextPenalty    = 0.2
	longTextBonus       = 0.1
	shortTextLen        = 50
	longTextLen         = 200
)

// CountBlacklisted returns how many blacklisted generic terms occur in the text.
func CountBlacklisted(text string) int {
	lower := Normalize(text)
	n := 0
	for _, term := range GenericBlacklist {
		if strings.Contains(lower, term) {
			n++
		}
	}
	return n
}

// SpecificityScore rates how specific a text is, in [0,1]. Generic filler terms
// pull the score down (capped), whitelisted qualifiers and structural patterns
// push it up, and very short texts are treated as suspect.
func SpecificityScore(text string) float64 {
	lower := Normalize(text)
	score := specificityBase

	penalty := float64(CountBlacklisted(text)) * blacklistPenalty
	if penalty > blacklistPenaltyCap {
		penalty = blacklistPenaltyCap
	}
	score -= penalty

	for _, term := range SpecificWhitelist {
		if strings.Contains(lower, term) {
			score += whitelistBonus
		}
	}

	for _, re := range specificityPatterns {
		if re.MatchString(lower) {
			score += patternBonus
		}
	}

	switch n := len([]rune(text)); {
	case n < shortTextLen:
		score -= shortTextPenalty
	case n > longTextLen:
		score += longTextBonus
	}

	return clamp01(score)
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
