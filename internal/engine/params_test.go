package engine

import "testing"

func TestNewSearchParamsNilNodeReturnsSharedNoSearch(t *testing.T) {
	a := NewSearchParams(nil, false, 0, nil)
	b := NewSearchParams(nil, false, 0, nil)
	if a != NoSearch || b != NoSearch {
		t.Fatalf("expected both calls to return the shared NoSearch singleton")
	}
}

func TestNewSearchParamsIdenticalRequestsHaveDistinctIdentity(t *testing.T) {
	// NoSearch is reached only through a nil node; two SearchParams built
	// by separate calls from the same non-empty node must never compare
	// equal by pointer, even when structurally identical.
	node := newStartposNode()
	a := NewSearchParams(node, true, 1000, nil)
	b := NewSearchParams(node, true, 1000, nil)
	if a == b {
		t.Fatalf("two distinct construction calls must yield distinct identities")
	}
	if !sameRequest(a, b) {
		t.Fatalf("structurally identical params should be sameRequest")
	}
}

func TestNewSearchParamsValidatesAndCopiesSearchMoves(t *testing.T) {
	node := &fakeNode{
		fen:   startposFEN,
		legal: map[string]bool{"e2e4": true, "d2d4": true},
	}
	input := []string{"e2e4", "a2a3", "d2d4"}
	p := NewSearchParams(node, true, 5000, input)

	if len(p.searchmoves) != 2 || p.searchmoves[0] != "e2e4" || p.searchmoves[1] != "d2d4" {
		t.Fatalf("expected only legal moves retained, got %v", p.searchmoves)
	}

	// Mutating the caller's slice must not affect the stored value.
	input[0] = "mutated"
	if p.searchmoves[0] != "e2e4" {
		t.Fatalf("stored searchmoves must not alias the caller's slice, got %v", p.searchmoves)
	}
}

func TestSearchParamsEmpty(t *testing.T) {
	if !NoSearch.Empty() {
		t.Fatalf("NoSearch must report Empty")
	}
	p := NewSearchParams(newStartposNode(), false, 0, nil)
	if p.Empty() {
		t.Fatalf("a params built from a real node must not report Empty")
	}
}

func TestSameRequestDetectsDifferences(t *testing.T) {
	n1 := newStartposNode()
	n2 := newStartposNode()

	base := NewSearchParams(n1, true, 1000, []string{"e2e4"})
	n1.legal = nil

	sameNode := NewSearchParams(n1, true, 1000, []string{"e2e4"})
	if !sameRequest(base, sameNode) {
		t.Fatalf("expected identical requests to be sameRequest")
	}

	diffNode := NewSearchParams(n2, true, 1000, []string{"e2e4"})
	if sameRequest(base, diffNode) {
		t.Fatalf("different node identity must not be sameRequest")
	}

	diffLimit := NewSearchParams(n1, true, 2000, []string{"e2e4"})
	if sameRequest(base, diffLimit) {
		t.Fatalf("different limit must not be sameRequest")
	}

	diffMoves := NewSearchParams(n1, true, 1000, []string{"d2d4"})
	if sameRequest(base, diffMoves) {
		t.Fatalf("different searchmoves must not be sameRequest")
	}
}
