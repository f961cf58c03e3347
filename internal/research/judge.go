package research

import (
	"context"
	"log"
)

// Judge scores how well gathered evidence answers a sub-question.
// Failures degrade to an insufficient verdict so a run is never aborted
// by the judge.
type Judge struct {
	responder PromptResponder
}

func NewJudge(responder PromptResponder) Judge {
	return Judge{responder: responder}
}

type relevanceDecision struct {
	RelevanceScore float64  `json:"relevance_score"`
	MissingAspects []string `json:"missing_aspects"`
}

func (j Judge) Assess(ctx context.Context, question string, evidence []EvidenceItem, threshold float64) Judgment {
	// No evidence means no call: the verdict is already known.
	if len(evidence) == 0 {
		return Judgment{Score: 0, Sufficient: false}
	}
	if j.responder == nil {
		return Judgment{Score: 0, Sufficient: false, Degraded: true}
	}

	raw, err := j.responder.Respond(ctx, buildJudgePrompt(question, evidence))
	if err != nil {
		log.Printf("relevance check degraded: question=%q err=%v", trimToRunes(question, 80), err)
		return Judgment{Score: 0, Sufficient: false, Degraded: true}
	}

	var decision relevanceDecision
	if err := decodeStrictJSON(raw, &decision); err != nil {
		log.Printf("relevance check unparseable: question=%q err=%v", trimToRunes(question, 80), err)
		return Judgment{Score: 0, Sufficient: false, Degraded: true}
	}

	score := clampScore(decision.RelevanceScore)
	return Judgment{
		Score:          score,
		Sufficient:     score >= threshold,
		MissingAspects: dedupeQuestions(decision.MissingAspects),
	}
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 10 {
		return 10
	}
	return score
}
