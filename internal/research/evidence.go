package research

import (
	"sort"
	"strings"
)

// EvidenceSet accumulates retrieved passages per sub-question. It only
// grows: merging dedupes by source id and keeps the higher score, and
// sub-questions keep their insertion order.
type EvidenceSet struct {
	order      []string
	byQuestion map[string][]EvidenceItem
	seen       map[string]struct{}
}

func NewEvidenceSet() *EvidenceSet {
	return &EvidenceSet{
		byQuestion: make(map[string][]EvidenceItem),
		seen:       make(map[string]struct{}),
	}
}

func (s *EvidenceSet) EnsureQuestion(question string) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return
	}
	if _, ok := s.byQuestion[trimmed]; ok {
		return
	}
	s.byQuestion[trimmed] = nil
	s.order = append(s.order, trimmed)
}

func (s *EvidenceSet) Questions() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Merge folds new items into a sub-question and reports how many source
// ids were new to the whole set. The per-question slice stays sorted by
// descending score, source id breaking ties.
func (s *EvidenceSet) Merge(question string, items []EvidenceItem) (newSources int) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" || len(items) == 0 {
		return 0
	}
	s.EnsureQuestion(trimmed)

	existing := s.byQuestion[trimmed]
	bySource := make(map[string]int, len(existing))
	for i, item := range existing {
		bySource[item.SourceID] = i
	}

	for _, item := range items {
		item.SourceID = strings.TrimSpace(item.SourceID)
		if item.SourceID == "" || strings.TrimSpace(item.Text) == "" {
			continue
		}
		if _, known := s.seen[item.SourceID]; !known {
			s.seen[item.SourceID] = struct{}{}
			newSources++
		}
		if idx, ok := bySource[item.SourceID]; ok {
			if item.Score > existing[idx].Score {
				existing[idx] = item
			}
			continue
		}
		bySource[item.SourceID] = len(existing)
		existing = append(existing, item)
	}

	sort.SliceStable(existing, func(i, j int) bool {
		if existing[i].Score == existing[j].Score {
			return existing[i].SourceID < existing[j].SourceID
		}
		return existing[i].Score > existing[j].Score
	})
	s.byQuestion[trimmed] = existing
	return newSources
}

func (s *EvidenceSet) ItemsFor(question string) []EvidenceItem {
	items := s.byQuestion[strings.TrimSpace(question)]
	out := make([]EvidenceItem, len(items))
	copy(out, items)
	return out
}

// All returns every item across sub-questions, unique by source id,
// sorted by descending score.
func (s *EvidenceSet) All() []EvidenceItem {
	picked := make(map[string]EvidenceItem)
	for _, question := range s.order {
		for _, item := range s.byQuestion[question] {
			if best, ok := picked[item.SourceID]; !ok || item.Score > best.Score {
				picked[item.SourceID] = item
			}
		}
	}

	out := make([]EvidenceItem, 0, len(picked))
	for _, item := range picked {
		out = append(out, item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].SourceID < out[j].SourceID
		}
		return out[i].Score > out[j].Score
	})
	return out
}

func (s *EvidenceSet) HasSource(sourceID string) bool {
	_, ok := s.seen[strings.TrimSpace(sourceID)]
	return ok
}

func (s *EvidenceSet) SourceCount() int {
	return len(s.seen)
}

func (s *EvidenceSet) Empty() bool {
	return len(s.seen) == 0
}
