package validator

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// rawDecision is the wire shape backends must produce.
type rawDecision struct {
	IsValid    bool    `json:"is_valid"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseDecision turns a completion into a decision using ordered attempts:
// first the whole reply as strict JSON, then the first balanced JSON object
// embedded in surrounding prose. Each attempt's failure advances to the next;
// exhausting them is a malformed response.
func parseDecision(reply string) (rawDecision, error) {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return rawDecision{}, eris.Wrap(ErrMalformedResponse, "empty reply")
	}

	attempts := []func(string) (rawDecision, error){
		parseStrict,
		parseEmbedded,
	}
	var lastErr error
	for _, attempt := range attempts {
		d, err := attempt(reply)
		if err == nil {
			return d, nil
		}
		lastErr = err
	}
	return rawDecision{}, eris.Wrap(ErrMalformedResponse, lastErr.Error())
}

func parseStrict(reply string) (rawDecision, error) {
	var d rawDecision
	if err := json.Unmarshal([]byte(reply), &d); err != nil {
		return rawDecision{}, err
	}
	return validateDecision(d)
}

// parseEmbedded extracts the first balanced top-level JSON object. Models
// often wrap the JSON in markdown fences or explanation text.
func parseEmbedded(reply string) (rawDecision, error) {
	start := strings.IndexByte(reply, '{')
	if start < 0 {
		return rawDecision{}, eris.New("no JSON object in reply")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(reply); i++ {
		c := reply[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return parseStrict(reply[start : i+1])
			}
		}
	}
	return rawDecision{}, eris.New("unbalanced JSON object in reply")
}

func validateDecision(d rawDecision) (rawDecision, error) {
	if d.Confidence < 0 || d.Confidence > 1 {
		return rawDecision{}, eris.Errorf("confidence %.3f out of range", d.Confidence)
	}
	return d, nil
}
