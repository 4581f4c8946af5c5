package retrieve

import (
	"strings"

	"github.com/m-mizutani/duet/pkg/model"
)

// judgment is the decoded reply of one round's judgment prompt.
type judgment struct {
	Status    model.JudgmentStatus
	Content   string // final answer, set for SOLVED
	Clues     string
	NextQuery string
}

// ParseJudgmentForTest is a test helper that exposes parseJudgment
func ParseJudgmentForTest(reply string) *judgment {
	return parseJudgment(reply)
}

// parseJudgment decodes the STATUS/CONTENT/CLUES/NEXT_QUERY wire format.
// A reply that matches none of the three cases yields JudgmentMalformed; the
// controller treats that with give-up semantics, so a broken model reply can
// never wedge a search.
func parseJudgment(reply string) *judgment {
	text := strings.TrimSpace(reply)

	switch {
	case strings.Contains(text, "STATUS: SOLVED"):
		content := text
		if _, after, ok := strings.Cut(text, "CONTENT:"); ok {
			content = after
		}
		return &judgment{
			Status:  model.JudgmentSolved,
			Content: strings.TrimSpace(content),
		}

	case strings.Contains(text, "STATUS: SEARCH_MORE"):
		j := &judgment{Status: model.JudgmentSearchMore}

		var clueLines []string
		inClues := false
		for _, line := range strings.Split(text, "\n") {
			switch {
			case strings.Contains(line, "CLUES:"):
				_, after, _ := strings.Cut(line, "CLUES:")
				clueLines = append(clueLines, strings.TrimSpace(after))
				inClues = true
			case strings.Contains(line, "NEXT_QUERY:"):
				_, after, _ := strings.Cut(line, "NEXT_QUERY:")
				j.NextQuery = strings.TrimSpace(after)
				inClues = false
			case inClues:
				// Clues may wrap onto following lines.
				clueLines = append(clueLines, strings.TrimSpace(line))
			}
		}
		j.Clues = strings.TrimSpace(strings.Join(clueLines, " "))
		return j

	case strings.Contains(text, "STATUS: GIVE_UP"):
		j := &judgment{Status: model.JudgmentGiveUp}
		if _, after, ok := strings.Cut(text, "CLUES:"); ok {
			j.Clues = strings.TrimSpace(after)
		}
		return j

	default:
		j := &judgment{Status: model.JudgmentMalformed}
		if _, after, ok := strings.Cut(text, "CLUES:"); ok {
			j.Clues = strings.TrimSpace(after)
		}
		return j
	}
}
