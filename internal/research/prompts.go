package research

import (
	"fmt"
	"strings"
)

const (
	maxPromptEvidenceItems = 12
	maxPromptEvidenceRunes = 500
	maxPromptHistoryTurns  = 6
)

func buildRoutePrompt(query string, history []Turn) string {
	var b strings.Builder
	b.WriteString("You are a research query analyst. Respond with strict JSON only.\n")
	b.WriteString("Schema: {\"local_search\":boolean,\"web_search\":boolean}\n")
	b.WriteString("Decide which evidence backends can answer the question:\n")
	b.WriteString("- local_search: the user's uploaded document corpus. Prefer it for questions about their own files, reports, or domain material.\n")
	b.WriteString("- web_search: the live web. Prefer it for current events, public facts, or anything unlikely to be in uploaded documents.\n")
	b.WriteString("- Set both true when the question spans private material and public context.\n")
	writeHistory(&b, history)
	b.WriteString("\nQuestion:\n")
	b.WriteString(query)
	return b.String()
}

func buildSubQuestionPrompt(query string, route Route) string {
	var b strings.Builder
	b.WriteString("You are a research planner. Respond with strict JSON only.\n")
	b.WriteString("Schema: {\"sub_questions\":string[]}\n")
	b.WriteString("Break the research question into 1 to 4 focused sub-questions that together cover it.\n")
	b.WriteString("Each sub-question must be self-contained and answerable by a search.\n")
	if route == RouteWeb {
		b.WriteString("Phrase sub-questions as effective web search queries.\n")
	}
	b.WriteString("\nQuestion:\n")
	b.WriteString(query)
	return b.String()
}

func buildJudgePrompt(question string, evidence []EvidenceItem) string {
	var b strings.Builder
	b.WriteString("You are a relevance judge. Respond with strict JSON only.\n")
	b.WriteString("Schema: {\"relevance_score\":number,\"missing_aspects\":string[]}\n")
	b.WriteString("Score how well the evidence answers the question on a 0-10 scale:\n")
	b.WriteString("- 0-3: barely related or off-topic\n")
	b.WriteString("- 4-6: partially relevant, major gaps remain\n")
	b.WriteString("- 7-8: relevant and mostly sufficient\n")
	b.WriteString("- 9-10: directly and completely answers the question\n")
	b.WriteString("List concrete missing aspects when the score is below 7.\n")
	b.WriteString("\nQuestion:\n")
	b.WriteString(question)
	b.WriteString("\n\nEvidence:\n")
	writeEvidence(&b, evidence)
	return b.String()
}

func buildSynthesisPrompt(query string, history []Turn, evidence []EvidenceItem) string {
	var b strings.Builder
	b.WriteString("You are a research assistant writing the final answer.\n")
	b.WriteString("Use only the evidence below for factual claims.\n")
	b.WriteString("Cite the evidence you use inline as [Source: <source>] where <source> is the exact source name shown.\n")
	b.WriteString("Never invent sources or cite anything not in the evidence list.\n")
	b.WriteString("If the evidence does not answer part of the question, say so explicitly.\n")
	writeHistory(&b, history)
	b.WriteString("\nQuestion:\n")
	b.WriteString(query)
	b.WriteString("\n\nEvidence:\n")
	writeEvidence(&b, evidence)
	b.WriteString("\nWrite a clear, well-structured answer with inline [Source: ...] citations.")
	return b.String()
}

func writeHistory(b *strings.Builder, history []Turn) {
	if len(history) == 0 {
		return
	}
	if len(history) > maxPromptHistoryTurns {
		history = history[len(history)-maxPromptHistoryTurns:]
	}
	b.WriteString("\nConversation so far:\n")
	for _, turn := range history {
		content := strings.TrimSpace(turn.Content)
		if content == "" {
			continue
		}
		b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, trimToRunes(content, 400)))
	}
}

func writeEvidence(b *strings.Builder, evidence []EvidenceItem) {
	if len(evidence) == 0 {
		b.WriteString("(no evidence retrieved)\n")
		return
	}
	if len(evidence) > maxPromptEvidenceItems {
		evidence = evidence[:maxPromptEvidenceItems]
	}
	for i, item := range evidence {
		b.WriteString(fmt.Sprintf("\n[%d] source: %s (%s)\n", i+1, item.SourceID, item.Origin))
		if title := strings.TrimSpace(item.Title); title != "" && title != item.SourceID {
			b.WriteString("title: ")
			b.WriteString(trimToRunes(title, 160))
			b.WriteString("\n")
		}
		b.WriteString(trimToRunes(strings.TrimSpace(item.Text), maxPromptEvidenceRunes))
		b.WriteString("\n")
	}
}
