package research

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// NoEvidenceAnswer is returned when synthesis runs with an empty
// evidence set. No completion call is made in that case.
const NoEvidenceAnswer = "I could not find any relevant information for this question in the available documents or on the web. Try rephrasing the question or uploading documents that cover it."

var citationPattern = regexp.MustCompile(`\[Source:\s*([^\]]+)\]`)

// Synthesizer streams the final answer from the full evidence set.
// Unlike planning and judging, a completion failure here is fatal.
type Synthesizer struct {
	stream StreamResponder
}

func NewSynthesizer(stream StreamResponder) Synthesizer {
	return Synthesizer{stream: stream}
}

// Synthesize streams the answer, calling onToken with each delta and the
// cumulative text so far. It returns the answer plus the cited source
// ids, filtered to sources that actually exist in the evidence set.
func (s Synthesizer) Synthesize(
	ctx context.Context,
	query string,
	history []Turn,
	evidence *EvidenceSet,
	onToken func(delta, partial string) error,
) (answer string, sources []string, documentsUsed int, err error) {
	if evidence == nil || evidence.Empty() {
		return NoEvidenceAnswer, nil, 0, nil
	}
	if s.stream == nil {
		return "", nil, 0, fmt.Errorf("synthesis responder unavailable")
	}

	items := evidence.All()
	if len(items) > maxPromptEvidenceItems {
		items = items[:maxPromptEvidenceItems]
	}
	prompt := buildSynthesisPrompt(query, history, items)

	var partial strings.Builder
	answer, err = s.stream.RespondStream(ctx, prompt, func(delta string) error {
		partial.WriteString(delta)
		if onToken == nil {
			return nil
		}
		return onToken(delta, partial.String())
	})
	if err != nil {
		return "", nil, 0, fmt.Errorf("synthesize answer: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", nil, 0, fmt.Errorf("synthesis produced no content")
	}

	return answer, citedSources(answer, evidence), len(items), nil
}

// citedSources extracts the [Source: ...] citations in first-mention
// order, dropping anything the evidence set never contained.
func citedSources(answer string, evidence *EvidenceSet) []string {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, match := range matches {
		sourceID := strings.TrimSpace(match[1])
		if sourceID == "" {
			continue
		}
		if _, ok := seen[sourceID]; ok {
			continue
		}
		seen[sourceID] = struct{}{}
		if !evidence.HasSource(sourceID) {
			continue
		}
		out = append(out, sourceID)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
