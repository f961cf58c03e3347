package research

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type scriptedResponder struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (s *scriptedResponder) Respond(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("scripted responder exhausted")
	}
	response := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return response, nil
}

func (s *scriptedResponder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestClassifyRouteParsesDecision(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     Route
		degraded bool
	}{
		{name: "rag only", response: `{"local_search": true, "web_search": false}`, want: RouteRAG},
		{name: "web only", response: `{"local_search": false, "web_search": true}`, want: RouteWeb},
		{name: "both", response: `{"local_search": true, "web_search": true}`, want: RouteBoth},
		{name: "neither falls back to both", response: `{"local_search": false, "web_search": false}`, want: RouteBoth, degraded: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			planner := NewPlanner(&scriptedResponder{responses: []string{tc.response}}, nil)
			route, degraded := planner.ClassifyRoute(context.Background(), "what is in the handbook", nil)
			if route != tc.want {
				t.Fatalf("expected route %q, got %q", tc.want, route)
			}
			if degraded != tc.degraded {
				t.Fatalf("expected degraded=%t, got %t", tc.degraded, degraded)
			}
		})
	}
}

func TestClassifyRouteDegradesOnFailure(t *testing.T) {
	planner := NewPlanner(&scriptedResponder{err: errors.New("model down")}, nil)
	route, degraded := planner.ClassifyRoute(context.Background(), "anything", nil)
	if route != RouteBoth || !degraded {
		t.Fatalf("expected degraded RouteBoth, got route=%q degraded=%t", route, degraded)
	}

	planner = NewPlanner(&scriptedResponder{responses: []string{"not json at all"}}, nil)
	route, degraded = planner.ClassifyRoute(context.Background(), "anything", nil)
	if route != RouteBoth || !degraded {
		t.Fatalf("expected degraded RouteBoth on parse failure, got route=%q degraded=%t", route, degraded)
	}
}

func TestSubQuestionsDedupesAndCaps(t *testing.T) {
	response := `{"sub_questions": ["What is X?", "what is  x?", "How does Y work?", "What about Z?", "Why Q?", "And W?"]}`
	planner := NewPlanner(nil, &scriptedResponder{responses: []string{response}})

	questions, degraded := planner.SubQuestions(context.Background(), "explain X", RouteBoth)
	if degraded {
		t.Fatal("expected clean plan")
	}
	if len(questions) != 4 {
		t.Fatalf("expected cap of 4 sub-questions, got %d: %v", len(questions), questions)
	}
	if questions[0] != "What is X?" {
		t.Fatalf("expected first question preserved, got %q", questions[0])
	}
	for _, q := range questions {
		if strings.EqualFold(q, "what is  x?") {
			t.Fatalf("duplicate survived dedupe: %v", questions)
		}
	}
}

func TestSubQuestionsFallsBackToQuery(t *testing.T) {
	planner := NewPlanner(nil, &scriptedResponder{err: errors.New("model down")})
	questions, degraded := planner.SubQuestions(context.Background(), "  the raw query  ", RouteRAG)
	if !degraded {
		t.Fatal("expected degraded plan")
	}
	if len(questions) != 1 || questions[0] != "the raw query" {
		t.Fatalf("expected trimmed query fallback, got %v", questions)
	}

	planner = NewPlanner(nil, &scriptedResponder{responses: []string{`{"sub_questions": []}`}})
	questions, degraded = planner.SubQuestions(context.Background(), "the raw query", RouteRAG)
	if !degraded || len(questions) != 1 {
		t.Fatalf("expected fallback on empty plan, got degraded=%t questions=%v", degraded, questions)
	}
}

func TestExtractJSONBlockFromFencedResponse(t *testing.T) {
	raw := "Here is the plan:\n```json\n{\"sub_questions\": [\"a\"]}\n```\nDone."
	block := extractJSONBlock(raw)
	if block != `{"sub_questions": ["a"]}` {
		t.Fatalf("unexpected block: %q", block)
	}

	if extractJSONBlock("no braces here") != "" {
		t.Fatal("expected empty block when no json present")
	}
}

func TestDecodeStrictJSONRejectsUnknownFields(t *testing.T) {
	var decision routeDecision
	err := decodeStrictJSON(`{"local_search": true, "surprise": 1}`, &decision)
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}
}
