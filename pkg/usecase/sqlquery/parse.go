package sqlquery

import (
	"encoding/json"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// parseCandidates decodes the JSON contract of the column mapping prompt.
// Models occasionally wrap the object in markdown fences or return a bare
// empty list; both are tolerated, anything else is malformed.
func parseCandidates(reply string) ([]string, error) {
	text := stripFences(reply)

	if strings.HasPrefix(text, "[") {
		var list []string
		if err := json.Unmarshal([]byte(text), &list); err != nil {
			return nil, goerr.Wrap(err, "candidate reply is neither object nor list")
		}
		return list, nil
	}

	// Tolerate prose around the object by slicing to the outermost braces.
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, goerr.New("no JSON object in candidate reply")
	}

	var parsed candidateReply
	if err := json.Unmarshal([]byte(text[start:end+1]), &parsed); err != nil {
		return nil, goerr.Wrap(err, "failed to decode candidate reply")
	}

	return parsed.Candidates, nil
}

// ParseCandidatesForTest is a test helper that exposes parseCandidates
func ParseCandidatesForTest(reply string) ([]string, error) {
	return parseCandidates(reply)
}

// stripFences removes markdown code fences and surrounding whitespace.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	for _, fence := range []string{"```json", "```sql", "```"} {
		text = strings.ReplaceAll(text, fence, "")
	}
	return strings.TrimSpace(text)
}
