package research

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultIterationBudget      = 3
	defaultTopK                 = 5
	defaultSufficiencyThreshold = 7.0
	defaultEventBuffer          = 128
	maxRefinementQuestions      = 2
	retrievalConcurrency        = 4
)

type state string

const (
	statePlanning     state = "planning"
	stateRetrieving   state = "retrieving"
	stateJudging      state = "judging"
	stateRefining     state = "refining"
	stateSynthesizing state = "synthesizing"
)

type Config struct {
	IterationBudget      int
	TopK                 int
	SufficiencyThreshold float64
	EventBuffer          int
}

// Controller drives one research run through planning, retrieval,
// judging, refinement, and synthesis. Every run gets fresh state; a
// Controller itself is safe to share.
type Controller struct {
	planner     Planner
	judge       Judge
	synthesizer Synthesizer
	corpus      Retriever
	web         Retriever
	cfg         Config
}

func NewController(planner Planner, judge Judge, synthesizer Synthesizer, corpusRetriever, webRetriever Retriever, cfg Config) Controller {
	if cfg.IterationBudget < 1 {
		cfg.IterationBudget = defaultIterationBudget
	}
	if cfg.TopK < 1 {
		cfg.TopK = defaultTopK
	}
	if cfg.SufficiencyThreshold <= 0 || cfg.SufficiencyThreshold > 10 {
		cfg.SufficiencyThreshold = defaultSufficiencyThreshold
	}
	if cfg.EventBuffer < 1 {
		cfg.EventBuffer = defaultEventBuffer
	}
	return Controller{
		planner:     planner,
		judge:       judge,
		synthesizer: synthesizer,
		corpus:      corpusRetriever,
		web:         webRetriever,
		cfg:         cfg,
	}
}

// Run executes a research request synchronously.
func (c Controller) Run(ctx context.Context, req Request) (Result, error) {
	return c.run(ctx, req, nil)
}

// Stream executes a research request and returns its event channel. The
// channel carries exactly one terminal event and is closed when the run
// finishes.
func (c Controller) Stream(ctx context.Context, req Request) <-chan Event {
	em := newEmitter(c.cfg.EventBuffer)
	go func() {
		defer em.close()
		_, _ = c.run(ctx, req, em)
	}()
	return em.ch
}

func (c Controller) run(ctx context.Context, req Request, em *emitter) (Result, error) {
	req = c.applyDefaults(req)
	if req.Query == "" {
		err := errors.New("query is required")
		em.emitTerminal(ctx, Event{Type: EventError, Error: err.Error()})
		return Result{}, err
	}

	startedAt := time.Now()
	evidence := NewEvidenceSet()
	current := statePlanning

	var (
		plan           Plan
		iterations     int
		lastNewSources int
		aggregateScore float64
		missingAspects []string
	)

	for {
		if err := ctx.Err(); err != nil {
			em.emitTerminal(ctx, Event{Type: EventError, Error: "research cancelled"})
			log.Printf("research run cancelled: state=%s iterations=%d elapsed_ms=%d", current, iterations, time.Since(startedAt).Milliseconds())
			return Result{}, err
		}

		switch current {
		case statePlanning:
			plan = c.planStep(ctx, req, em)
			for _, question := range plan.SubQuestions {
				evidence.EnsureQuestion(question)
			}
			current = stateRetrieving

		case stateRetrieving:
			iterations++
			newSources, err := c.retrieveStep(ctx, plan.Route, req.TopK, evidence, em, iterations)
			if err != nil {
				em.emitTerminal(ctx, Event{Type: EventError, Error: err.Error()})
				log.Printf("research run failed: iterations=%d err=%v elapsed_ms=%d", iterations, err, time.Since(startedAt).Milliseconds())
				return Result{}, err
			}
			lastNewSources = newSources
			current = stateJudging

		case stateJudging:
			var allSufficient bool
			aggregateScore, allSufficient, missingAspects = c.judgeStep(ctx, req, evidence, em, iterations)

			switch {
			case allSufficient:
				current = stateSynthesizing
			case iterations >= req.IterationBudget:
				current = stateSynthesizing
			case lastNewSources == 0:
				// Stagnation: another pass would retrieve nothing new.
				log.Printf("research stagnated: iterations=%d sources=%d", iterations, evidence.SourceCount())
				current = stateSynthesizing
			default:
				current = stateRefining
			}

		case stateRefining:
			if c.refineStep(req, evidence, missingAspects) == 0 {
				current = stateSynthesizing
			} else {
				current = stateRetrieving
			}

		case stateSynthesizing:
			result, err := c.synthesizeStep(ctx, req, evidence, em, iterations, aggregateScore)
			if err != nil {
				em.emitTerminal(ctx, Event{Type: EventError, Error: err.Error()})
				log.Printf("research synthesis failed: iterations=%d err=%v elapsed_ms=%d", iterations, err, time.Since(startedAt).Milliseconds())
				return Result{}, err
			}
			em.emitTerminal(ctx, Event{
				Type:           EventSynthesisComplete,
				Content:        result.Answer,
				Sources:        result.Sources,
				DocumentsUsed:  result.DocumentsUsed,
				RelevanceScore: result.RelevanceScore,
				Iterations:     result.Iterations,
			})
			log.Printf("research run completed: iterations=%d sources=%d cited=%d score=%.1f elapsed_ms=%d",
				result.Iterations, evidence.SourceCount(), len(result.Sources), result.RelevanceScore, time.Since(startedAt).Milliseconds())
			return result, nil
		}
	}
}

func (c Controller) applyDefaults(req Request) Request {
	if req.IterationBudget < 1 {
		req.IterationBudget = c.cfg.IterationBudget
	}
	if req.TopK < 1 {
		req.TopK = c.cfg.TopK
	}
	if req.SufficiencyThreshold <= 0 || req.SufficiencyThreshold > 10 {
		req.SufficiencyThreshold = c.cfg.SufficiencyThreshold
	}
	return req.withDefaults()
}

func (c Controller) planStep(ctx context.Context, req Request, em *emitter) Plan {
	em.emit(Event{Type: EventNodeStart, Node: NodeQueryAnalysis})
	route := req.SourceHint
	degraded := false
	if route == RouteAuto {
		route, degraded = c.planner.ClassifyRoute(ctx, req.Query, req.History)
	}
	em.emit(Event{Type: EventNodeComplete, Node: NodeQueryAnalysis})

	em.emit(Event{Type: EventNodeStart, Node: NodeResearchPlanning})
	questions, planDegraded := c.planner.SubQuestions(ctx, req.Query, route)
	em.emit(Event{Type: EventNodeComplete, Node: NodeResearchPlanning})

	return Plan{Route: route, SubQuestions: questions, Degraded: degraded || planDegraded}
}

// retrieveStep fans retrieval across sub-questions for each backend on
// the route. A backend is unavailable only when every sub-question fails
// with a backend error; the run fails only when the whole route is
// unavailable.
func (c Controller) retrieveStep(ctx context.Context, route Route, topK int, evidence *EvidenceSet, em *emitter, iteration int) (int, error) {
	newSources := 0
	ragUnavailable := false
	webUnavailable := false

	if route.includesRAG() {
		added, unavailable, err := c.retrieveRoute(ctx, c.corpus, NodeRAGRetrieval, topK, evidence, em, iteration)
		if err != nil {
			return newSources, err
		}
		newSources += added
		ragUnavailable = unavailable
	}
	if route.includesWeb() {
		added, unavailable, err := c.retrieveRoute(ctx, c.web, NodeWebScraping, topK, evidence, em, iteration)
		if err != nil {
			return newSources, err
		}
		newSources += added
		webUnavailable = unavailable
	}

	switch route {
	case RouteRAG:
		if ragUnavailable {
			return newSources, fmt.Errorf("%w: document retrieval failed for every sub-question", ErrRetrievalUnavailable)
		}
	case RouteWeb:
		if webUnavailable {
			return newSources, fmt.Errorf("%w: web retrieval failed for every sub-question", ErrRetrievalUnavailable)
		}
	case RouteBoth:
		if ragUnavailable && webUnavailable {
			return newSources, fmt.Errorf("%w: all retrieval backends failed", ErrRetrievalUnavailable)
		}
		if ragUnavailable || webUnavailable {
			log.Printf("retrieval degraded to single backend: iteration=%d rag_unavailable=%t web_unavailable=%t", iteration, ragUnavailable, webUnavailable)
		}
	}
	return newSources, nil
}

func (c Controller) retrieveRoute(ctx context.Context, retriever Retriever, node string, topK int, evidence *EvidenceSet, em *emitter, iteration int) (newSources int, unavailable bool, err error) {
	questions := evidence.Questions()
	if len(questions) == 0 {
		return 0, false, nil
	}

	em.emit(Event{Type: EventNodeStart, Node: node, Iteration: iteration})
	defer em.emit(Event{Type: EventNodeComplete, Node: node, Iteration: iteration})

	type outcome struct {
		question string
		items    []EvidenceItem
		err      error
	}

	var mu sync.Mutex
	outcomes := make([]outcome, 0, len(questions))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(retrievalConcurrency)
	for _, question := range questions {
		group.Go(func() error {
			items, retrieveErr := retriever.Retrieve(groupCtx, question, topK)
			mu.Lock()
			outcomes = append(outcomes, outcome{question: question, items: items, err: retrieveErr})
			mu.Unlock()
			if errors.Is(retrieveErr, context.Canceled) || errors.Is(retrieveErr, context.DeadlineExceeded) {
				return retrieveErr
			}
			return nil
		})
	}
	if waitErr := group.Wait(); waitErr != nil {
		return 0, false, waitErr
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	failures := 0
	for _, out := range outcomes {
		if out.err != nil {
			failures++
			log.Printf("retrieval error: node=%s question=%q err=%v", node, trimToRunes(out.question, 80), out.err)
			continue
		}
		newSources += evidence.Merge(out.question, out.items)
	}

	return newSources, failures == len(outcomes), nil
}

func (c Controller) judgeStep(ctx context.Context, req Request, evidence *EvidenceSet, em *emitter, iteration int) (minScore float64, allSufficient bool, missingAspects []string) {
	em.emit(Event{Type: EventNodeStart, Node: NodeRelevanceCheck, Iteration: iteration})
	defer em.emit(Event{Type: EventNodeComplete, Node: NodeRelevanceCheck, Iteration: iteration})

	minScore = 10
	allSufficient = true
	for _, question := range evidence.Questions() {
		judgment := c.judge.Assess(ctx, question, evidence.ItemsFor(question), req.SufficiencyThreshold)
		if judgment.Score < minScore {
			minScore = judgment.Score
		}
		if !judgment.Sufficient {
			allSufficient = false
			missingAspects = append(missingAspects, judgment.MissingAspects...)
		}
	}
	return minScore, allSufficient, dedupeQuestions(missingAspects)
}

// refineStep turns missing aspects into follow-up sub-questions and
// reports how many were actually new.
func (c Controller) refineStep(req Request, evidence *EvidenceSet, missingAspects []string) int {
	existing := make(map[string]struct{})
	for _, question := range evidence.Questions() {
		existing[strings.ToLower(question)] = struct{}{}
	}

	added := 0
	for _, aspect := range missingAspects {
		if added >= maxRefinementQuestions {
			break
		}
		followUp := strings.TrimSpace(fmt.Sprintf("%s %s", req.Query, aspect))
		if _, ok := existing[strings.ToLower(followUp)]; ok {
			continue
		}
		existing[strings.ToLower(followUp)] = struct{}{}
		evidence.EnsureQuestion(followUp)
		added++
	}
	return added
}

func (c Controller) synthesizeStep(ctx context.Context, req Request, evidence *EvidenceSet, em *emitter, iterations int, aggregateScore float64) (Result, error) {
	em.emit(Event{Type: EventNodeStart, Node: NodeSynthesis})

	answer, sources, documentsUsed, err := c.synthesizer.Synthesize(ctx, req.Query, req.History, evidence, func(delta, partial string) error {
		em.emit(Event{Type: EventToken, Token: delta, Partial: partial})
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	em.emit(Event{Type: EventNodeComplete, Node: NodeSynthesis})
	return Result{
		Answer:         answer,
		Sources:        sources,
		DocumentsUsed:  documentsUsed,
		RelevanceScore: aggregateScore,
		Iterations:     iterations,
	}, nil
}
