package research

import "context"

const (
	EventNodeStart         = "node_start"
	EventNodeComplete      = "node_complete"
	EventToken             = "token"
	EventSynthesisComplete = "synthesis_complete"
	EventError             = "error"
)

// Workflow node labels carried on node_start / node_complete events.
const (
	NodeQueryAnalysis    = "query_analysis"
	NodeResearchPlanning = "research_planning"
	NodeRAGRetrieval     = "rag_retrieval"
	NodeWebScraping      = "web_scraping"
	NodeRelevanceCheck   = "relevance_check"
	NodeSynthesis        = "synthesis"
)

type Event struct {
	Type           string   `json:"type"`
	Node           string   `json:"node,omitempty"`
	Iteration      int      `json:"iteration,omitempty"`
	Token          string   `json:"token,omitempty"`
	Partial        string   `json:"partial_response,omitempty"`
	Content        string   `json:"content,omitempty"`
	Sources        []string `json:"sources,omitempty"`
	DocumentsUsed  int      `json:"documents_used,omitempty"`
	RelevanceScore float64  `json:"relevance_score,omitempty"`
	Iterations     int      `json:"iterations,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func (e Event) terminal() bool {
	return e.Type == EventSynthesisComplete || e.Type == EventError
}

// emitter fans run events into a bounded channel. Progress and token
// events are dropped when the subscriber lags; the terminal event always
// waits for the subscriber or cancellation. The controller never blocks
// on a slow consumer mid-run.
type emitter struct {
	ch      chan Event
	dropped int
}

func newEmitter(buffer int) *emitter {
	if buffer < 1 {
		buffer = defaultEventBuffer
	}
	return &emitter{ch: make(chan Event, buffer)}
}

func (e *emitter) emit(event Event) {
	if e == nil {
		return
	}
	select {
	case e.ch <- event:
	default:
		e.dropped++
	}
}

func (e *emitter) emitTerminal(ctx context.Context, event Event) {
	if e == nil {
		return
	}
	// Buffered capacity first so a cancelled context still gets its
	// error event when the subscriber is draining.
	select {
	case e.ch <- event:
		return
	default:
	}
	select {
	case e.ch <- event:
	case <-ctx.Done():
	}
}

func (e *emitter) close() {
	if e == nil {
		return
	}
	close(e.ch)
}
