package research

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
)

const maxSubQuestions = 4

// Planner runs query analysis and research planning. Both calls degrade
// locally: a failed classification falls back to searching everything,
// a failed plan falls back to the raw query.
type Planner struct {
	classify PromptResponder
	plan     PromptResponder
}

func NewPlanner(classify, plan PromptResponder) Planner {
	return Planner{classify: classify, plan: plan}
}

type routeDecision struct {
	LocalSearch bool `json:"local_search"`
	WebSearch   bool `json:"web_search"`
}

type subQuestionDecision struct {
	SubQuestions []string `json:"sub_questions"`
}

// ClassifyRoute decides which backends to consult. It never fails.
func (p Planner) ClassifyRoute(ctx context.Context, query string, history []Turn) (Route, bool) {
	if p.classify == nil {
		return RouteBoth, true
	}

	raw, err := p.classify.Respond(ctx, buildRoutePrompt(query, history))
	if err != nil {
		log.Printf("route classification degraded: err=%v", err)
		return RouteBoth, true
	}

	var decision routeDecision
	if err := decodeStrictJSON(raw, &decision); err != nil {
		log.Printf("route classification unparseable: err=%v", err)
		return RouteBoth, true
	}

	switch {
	case decision.LocalSearch && decision.WebSearch:
		return RouteBoth, false
	case decision.LocalSearch:
		return RouteRAG, false
	case decision.WebSearch:
		return RouteWeb, false
	default:
		// The model opted out of both; search everything rather than
		// nothing.
		return RouteBoth, true
	}
}

// SubQuestions decomposes the query. It never fails: worst case the
// query itself is the single sub-question.
func (p Planner) SubQuestions(ctx context.Context, query string, route Route) ([]string, bool) {
	fallback := []string{strings.TrimSpace(query)}
	if p.plan == nil {
		return fallback, true
	}

	raw, err := p.plan.Respond(ctx, buildSubQuestionPrompt(query, route))
	if err != nil {
		log.Printf("research planning degraded: err=%v", err)
		return fallback, true
	}

	var decision subQuestionDecision
	if err := decodeStrictJSON(raw, &decision); err != nil {
		log.Printf("research planning unparseable: err=%v", err)
		return fallback, true
	}

	questions := dedupeQuestions(decision.SubQuestions)
	if len(questions) == 0 {
		return fallback, true
	}
	if len(questions) > maxSubQuestions {
		questions = questions[:maxSubQuestions]
	}
	return questions, false
}

func decodeStrictJSON(raw string, target any) error {
	block := extractJSONBlock(raw)
	if block == "" {
		return errors.New("response did not include json")
	}
	decoder := json.NewDecoder(strings.NewReader(block))
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func extractJSONBlock(raw string) string {
	value := strings.TrimSpace(raw)
	if strings.HasPrefix(value, "{") && strings.HasSuffix(value, "}") {
		return value
	}
	start := strings.Index(value, "{")
	end := strings.LastIndex(value, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return strings.TrimSpace(value[start : end+1])
}

func dedupeQuestions(questions []string) []string {
	if len(questions) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(questions))
	out := make([]string, 0, len(questions))
	for _, question := range questions {
		normalized := strings.Join(strings.Fields(strings.TrimSpace(question)), " ")
		if normalized == "" {
			continue
		}
		key := strings.ToLower(normalized)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, normalized)
	}
	return out
}
