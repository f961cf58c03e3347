package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	routeRAGJSON  = `{"local_search": true, "web_search": false}`
	routeWebJSON  = `{"local_search": false, "web_search": true}`
	routeBothJSON = `{"local_search": true, "web_search": true}`

	singleQuestionJSON = `{"sub_questions": ["what does the handbook say"]}`

	sufficientJSON   = `{"relevance_score": 9, "missing_aspects": []}`
	insufficientJSON = `{"relevance_score": 3, "missing_aspects": ["pricing details"]}`
)

type stubRetriever struct {
	mu        sync.Mutex
	calls     int
	questions []string
	unique    bool
	source    string
	err       error
}

func (r *stubRetriever) Retrieve(_ context.Context, subQuestion string, _ int) ([]EvidenceItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.questions = append(r.questions, subQuestion)
	if r.err != nil {
		return nil, r.err
	}
	if r.source == "" {
		return nil, nil
	}
	id := r.source
	if r.unique {
		id = fmt.Sprintf("%s-%d", r.source, r.calls)
	}
	return []EvidenceItem{{
		SourceID: id,
		Title:    id,
		Text:     "passage answering " + subQuestion,
		Score:    0.8,
		Origin:   OriginCorpus,
	}}, nil
}

func (r *stubRetriever) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *stubRetriever) askedQuestions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.questions...)
}

func newTestController(classify, plan, judge PromptResponder, corpus, web Retriever, stream StreamResponder) Controller {
	return NewController(
		NewPlanner(classify, plan),
		NewJudge(judge),
		NewSynthesizer(stream),
		corpus,
		web,
		Config{IterationBudget: 3, TopK: 5, SufficiencyThreshold: 7, EventBuffer: 256},
	)
}

func TestRunStopsAfterOneIterationWhenSufficient(t *testing.T) {
	corpus := &stubRetriever{source: "handbook.txt"}
	web := &stubRetriever{source: "https://example.com/page"}
	controller := newTestController(
		&scriptedResponder{responses: []string{routeRAGJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		corpus, web,
		streamTokens("All covered. ", "[Source: handbook.txt]"),
	)

	result, err := controller.Run(context.Background(), Request{Query: "what does the handbook say"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
	if result.RelevanceScore != 9 {
		t.Fatalf("expected aggregate score 9, got %v", result.RelevanceScore)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "handbook.txt" {
		t.Fatalf("unexpected sources: %v", result.Sources)
	}
	if web.callCount() != 0 {
		t.Fatalf("rag route should not touch the web retriever, got %d calls", web.callCount())
	}
}

func TestRunHonorsSourceHintWithoutClassifying(t *testing.T) {
	classify := &scriptedResponder{responses: []string{routeWebJSON}}
	corpus := &stubRetriever{source: "notes.txt"}
	web := &stubRetriever{source: "https://example.com"}
	controller := newTestController(
		classify,
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		corpus, web,
		streamTokens("Answer [Source: notes.txt]"),
	)

	result, err := controller.Run(context.Background(), Request{Query: "q", SourceHint: RouteRAG})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if classify.callCount() != 0 {
		t.Fatalf("source hint should skip classification, got %d calls", classify.callCount())
	}
	if web.callCount() != 0 {
		t.Fatalf("expected web retriever untouched, got %d calls", web.callCount())
	}
	if result.Iterations != 1 {
		t.Fatalf("expected 1 iteration, got %d", result.Iterations)
	}
}

func TestRunRefinesUntilBudgetExhausted(t *testing.T) {
	judge := &scriptedResponder{responses: []string{
		insufficientJSON,
		`{"relevance_score": 3, "missing_aspects": ["availability windows"]}`,
	}}
	corpus := &stubRetriever{source: "doc.txt", unique: true}
	controller := newTestController(
		&scriptedResponder{responses: []string{routeRAGJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		judge,
		corpus, &stubRetriever{},
		streamTokens("Best effort [Source: doc.txt-1]"),
	)

	result, err := controller.Run(context.Background(), Request{Query: "q", IterationBudget: 3})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Iterations != 3 {
		t.Fatalf("expected run to exhaust budget of 3, got %d iterations", result.Iterations)
	}
}

func TestRunRefinementFoldsMissingAspectIntoFollowUp(t *testing.T) {
	judge := &scriptedResponder{responses: []string{insufficientJSON, sufficientJSON}}
	corpus := &stubRetriever{source: "doc.txt", unique: true}
	controller := newTestController(
		&scriptedResponder{responses: []string{routeRAGJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		judge,
		corpus, &stubRetriever{},
		streamTokens("Found it [Source: doc.txt-1]"),
	)

	result, err := controller.Run(context.Background(), Request{Query: "compare vendor plans"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Iterations != 2 {
		t.Fatalf("expected a second iteration after refinement, got %d", result.Iterations)
	}

	asked := corpus.askedQuestions()
	want := "compare vendor plans pricing details"
	found := false
	for _, question := range asked {
		if question == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected follow-up %q among retrieved questions, got %v", want, asked)
	}
}

func TestRefineStepComposesAndCapsFollowUps(t *testing.T) {
	var controller Controller
	req := Request{Query: "compare plans"}

	evidence := NewEvidenceSet()
	evidence.EnsureQuestion("seed question")
	evidence.EnsureQuestion("Compare Plans pricing details")

	added := controller.refineStep(req, evidence, []string{"pricing details", "availability windows", "support tiers"})
	if added != 2 {
		t.Fatalf("expected 2 new follow-ups after dedupe and cap, got %d", added)
	}

	questions := evidence.Questions()
	if len(questions) != 4 {
		t.Fatalf("expected 4 questions, got %v", questions)
	}
	if questions[2] != "compare plans availability windows" || questions[3] != "compare plans support tiers" {
		t.Fatalf("unexpected follow-up composition: %v", questions[2:])
	}
}

func TestRunStagnationForcesSynthesis(t *testing.T) {
	// The retriever returns the same source every time, so the second
	// iteration finds nothing new and the run must synthesize instead of
	// burning the remaining budget.
	corpus := &stubRetriever{source: "same.txt"}
	controller := newTestController(
		&scriptedResponder{responses: []string{routeRAGJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{insufficientJSON}},
		corpus, &stubRetriever{},
		streamTokens("Partial answer [Source: same.txt]"),
	)

	result, err := controller.Run(context.Background(), Request{Query: "q", IterationBudget: 5})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Iterations != 2 {
		t.Fatalf("expected stagnation after iteration 2, got %d", result.Iterations)
	}
}

func TestRunEmptyEvidenceShortCircuitsSynthesis(t *testing.T) {
	synthCalled := false
	controller := newTestController(
		&scriptedResponder{responses: []string{routeBothJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		&stubRetriever{}, &stubRetriever{},
		streamFunc(func(context.Context, string, func(string) error) (string, error) {
			synthCalled = true
			return "should not run", nil
		}),
	)

	result, err := controller.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if synthCalled {
		t.Fatal("expected no completion call with empty evidence")
	}
	if result.Answer != NoEvidenceAnswer {
		t.Fatalf("expected the no-evidence answer, got %q", result.Answer)
	}
	if result.RelevanceScore != 0 || len(result.Sources) != 0 {
		t.Fatalf("unexpected result for empty evidence: %+v", result)
	}
}

func TestRunFailsWhenAllBackendsUnavailable(t *testing.T) {
	controller := newTestController(
		&scriptedResponder{responses: []string{routeBothJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		&stubRetriever{err: errors.New("corpus down")},
		&stubRetriever{err: errors.New("web down")},
		streamTokens("unreachable"),
	)

	_, err := controller.Run(context.Background(), Request{Query: "q"})
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Fatalf("expected ErrRetrievalUnavailable, got %v", err)
	}
}

func TestRunDegradesWhenOneBackendFails(t *testing.T) {
	web := &stubRetriever{source: "https://example.com/report"}
	controller := newTestController(
		&scriptedResponder{responses: []string{routeBothJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		&stubRetriever{err: errors.New("corpus down")},
		web,
		streamTokens("Per [Source: https://example.com/report]"),
	)

	result, err := controller.Run(context.Background(), Request{Query: "q"})
	if err != nil {
		t.Fatalf("expected run to survive a single backend failure: %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0] != "https://example.com/report" {
		t.Fatalf("unexpected sources: %v", result.Sources)
	}
}

func TestRunRequiredRouteFailureIsFatal(t *testing.T) {
	controller := newTestController(
		&scriptedResponder{responses: []string{routeRAGJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		&stubRetriever{err: errors.New("corpus down")},
		&stubRetriever{source: "https://example.com"},
		streamTokens("unreachable"),
	)

	_, err := controller.Run(context.Background(), Request{Query: "q"})
	if !errors.Is(err, ErrRetrievalUnavailable) {
		t.Fatalf("expected fatal failure on required route, got %v", err)
	}
}

func TestRunRejectsEmptyQuery(t *testing.T) {
	controller := newTestController(nil, nil, nil, &stubRetriever{}, &stubRetriever{}, nil)
	if _, err := controller.Run(context.Background(), Request{Query: "   "}); err == nil {
		t.Fatal("expected error for blank query")
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	controller := newTestController(
		&scriptedResponder{responses: []string{routeRAGJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		&stubRetriever{source: "doc.txt"}, &stubRetriever{},
		streamTokens("unreachable"),
	)

	_, err := controller.Run(ctx, Request{Query: "q"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStreamEmitsProtocolWithSingleTerminal(t *testing.T) {
	controller := newTestController(
		&scriptedResponder{responses: []string{routeRAGJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		&stubRetriever{source: "guide.txt"}, &stubRetriever{},
		streamTokens("Hello ", "world ", "[Source: guide.txt]"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []Event
	for event := range controller.Stream(ctx, Request{Query: "q"}) {
		events = append(events, event)
	}
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	if events[0].Type != EventNodeStart || events[0].Node != NodeQueryAnalysis {
		t.Fatalf("expected query_analysis start first, got %+v", events[0])
	}

	terminals := 0
	var lastPartial string
	for _, event := range events {
		if event.terminal() {
			terminals++
		}
		if event.Type == EventToken {
			if !strings.HasPrefix(event.Partial, lastPartial) {
				t.Fatalf("partials must be cumulative: %q then %q", lastPartial, event.Partial)
			}
			lastPartial = event.Partial
		}
	}
	if terminals != 1 {
		t.Fatalf("expected exactly one terminal event, got %d", terminals)
	}

	final := events[len(events)-1]
	if final.Type != EventSynthesisComplete {
		t.Fatalf("expected synthesis_complete last, got %+v", final)
	}
	if final.Content != "Hello world [Source: guide.txt]" {
		t.Fatalf("unexpected final content: %q", final.Content)
	}
	if len(final.Sources) != 1 || final.Sources[0] != "guide.txt" {
		t.Fatalf("unexpected final sources: %v", final.Sources)
	}
	if final.Iterations != 1 {
		t.Fatalf("expected 1 iteration on terminal event, got %d", final.Iterations)
	}
}

func TestStreamReportsErrorTerminal(t *testing.T) {
	controller := newTestController(
		&scriptedResponder{responses: []string{routeRAGJSON}},
		&scriptedResponder{responses: []string{singleQuestionJSON}},
		&scriptedResponder{responses: []string{sufficientJSON}},
		&stubRetriever{err: errors.New("corpus down")}, &stubRetriever{},
		streamTokens("unreachable"),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var final Event
	for event := range controller.Stream(ctx, Request{Query: "q"}) {
		final = event
	}
	if final.Type != EventError || final.Error == "" {
		t.Fatalf("expected error terminal event, got %+v", final)
	}
}
