package research

import "testing"

func TestMergeDedupesBySourceKeepingHigherScore(t *testing.T) {
	set := NewEvidenceSet()

	added := set.Merge("question one", []EvidenceItem{
		{SourceID: "a.txt", Text: "first", Score: 0.4, Origin: OriginCorpus},
		{SourceID: "b.txt", Text: "second", Score: 0.9, Origin: OriginCorpus},
	})
	if added != 2 {
		t.Fatalf("expected 2 new sources, got %d", added)
	}

	added = set.Merge("question one", []EvidenceItem{
		{SourceID: "a.txt", Text: "better passage", Score: 0.8, Origin: OriginCorpus},
	})
	if added != 0 {
		t.Fatalf("expected repeat source to add nothing, got %d", added)
	}

	items := set.ItemsFor("question one")
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].SourceID != "b.txt" {
		t.Fatalf("expected b.txt ranked first, got %q", items[0].SourceID)
	}
	if items[1].Score != 0.8 || items[1].Text != "better passage" {
		t.Fatalf("expected merged item to keep higher-scored passage, got %+v", items[1])
	}
}

func TestMergeCountsSourcesGloballyAcrossQuestions(t *testing.T) {
	set := NewEvidenceSet()
	set.Merge("q1", []EvidenceItem{{SourceID: "shared.txt", Text: "x", Score: 0.5}})

	added := set.Merge("q2", []EvidenceItem{{SourceID: "shared.txt", Text: "x", Score: 0.6}})
	if added != 0 {
		t.Fatalf("source already seen under q1 should not count as new, got %d", added)
	}
	if set.SourceCount() != 1 {
		t.Fatalf("expected 1 unique source, got %d", set.SourceCount())
	}
}

func TestMergeSkipsBlankItems(t *testing.T) {
	set := NewEvidenceSet()
	added := set.Merge("q", []EvidenceItem{
		{SourceID: "", Text: "orphan"},
		{SourceID: "empty.txt", Text: "   "},
	})
	if added != 0 || !set.Empty() {
		t.Fatalf("expected nothing merged, got added=%d empty=%t", added, set.Empty())
	}
}

func TestQuestionsKeepInsertionOrder(t *testing.T) {
	set := NewEvidenceSet()
	set.EnsureQuestion("first")
	set.EnsureQuestion("second")
	set.EnsureQuestion("first")

	questions := set.Questions()
	if len(questions) != 2 || questions[0] != "first" || questions[1] != "second" {
		t.Fatalf("unexpected question order: %v", questions)
	}
}

func TestAllReturnsUniqueSourcesByDescendingScore(t *testing.T) {
	set := NewEvidenceSet()
	set.Merge("q1", []EvidenceItem{
		{SourceID: "low.txt", Text: "x", Score: 0.2},
		{SourceID: "shared.txt", Text: "x", Score: 0.5},
	})
	set.Merge("q2", []EvidenceItem{
		{SourceID: "shared.txt", Text: "x", Score: 0.9},
		{SourceID: "high.txt", Text: "x", Score: 0.7},
	})

	all := set.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 unique items, got %d", len(all))
	}
	if all[0].SourceID != "shared.txt" || all[0].Score != 0.9 {
		t.Fatalf("expected shared.txt at 0.9 first, got %+v", all[0])
	}
	if all[1].SourceID != "high.txt" || all[2].SourceID != "low.txt" {
		t.Fatalf("unexpected ordering: %+v", all)
	}
}

func TestHasSourceTrimsLookup(t *testing.T) {
	set := NewEvidenceSet()
	set.Merge("q", []EvidenceItem{{SourceID: "doc.txt", Text: "x", Score: 0.5}})

	if !set.HasSource(" doc.txt ") {
		t.Fatal("expected trimmed lookup to match")
	}
	if set.HasSource("other.txt") {
		t.Fatal("unexpected match for unknown source")
	}
}
