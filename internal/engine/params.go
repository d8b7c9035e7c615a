// Package engine drives a UCI engine subprocess: it owns the search
// lifecycle state machine, the outbound command protocol, and the
// inbound line classification described by the hub-facing Driver type.
package engine

import "sync/atomic"

// Node is the chess-model collaborator the driver depends on. Its
// representation, legality rules, and FEN derivation live outside this
// package (the hub's chess model); the driver only ever asks it for the
// facts it needs to build a `position`/`go` command.
type Node interface {
	// Destroyed reports whether the hub's game tree has discarded this
	// node. The driver must tolerate destruction at any point.
	Destroyed() bool

	// Terminal reports whether the position has no legal continuation
	// (checkmate, stalemate, or another forced-end condition).
	Terminal() bool

	// RootFEN is the FEN of the position this node's history starts
	// from (the game's starting position, not the current one).
	RootFEN() string

	// MovesFromRoot returns the move list from the root position to
	// this node, UCI long-algebraic, encoded in the castling convention
	// the chess960 flag selects.
	MovesFromRoot(chess960 bool) []string

	// ValidateSearchMoves returns a fresh slice containing only the
	// entries of moves that this node accepts as legal. The input slice
	// is never retained or mutated.
	ValidateSearchMoves(moves []string) []string
}

// SearchParams is an immutable description of a requested search.
// Equality between two SearchParams is by identity (pointer equality),
// never structural equality: two otherwise-identical requests remain
// distinguishable, which is the property the state machine's
// desired-vs-completed check depends on.
type SearchParams struct {
	serial      uint64
	node        Node
	hasLimit    bool
	limit       int
	searchmoves []string
}

// NoSearch is the canonical empty SearchParams value: empty node, empty
// limit, empty searchmoves. It is constructed once and shared; every
// caller asking for an empty search gets this exact pointer back, never
// a fresh allocation, so identity comparisons against it are meaningful.
var NoSearch = &SearchParams{}

var serialCounter uint64

// NewSearchParams builds a SearchParams for a requested search. A nil
// node yields NoSearch. Otherwise searchmoves is validated against node
// (only legal moves survive) and the result is copied so later mutation
// of the caller's slice cannot affect the stored value.
func NewSearchParams(node Node, hasLimit bool, limit int, searchmoves []string) *SearchParams {
	if node == nil {
		return NoSearch
	}
	validated := node.ValidateSearchMoves(searchmoves)
	frozen := make([]string, len(validated))
	copy(frozen, validated)
	return &SearchParams{
		serial:      atomic.AddUint64(&serialCounter, 1),
		node:        node,
		hasLimit:    hasLimit,
		limit:       limit,
		searchmoves: frozen,
	}
}

// Empty reports whether this is the empty/no-search value. It does not
// imply identity with NoSearch; only NoSearch itself satisfies both
// Empty() and pointer-equality with NoSearch.
func (p *SearchParams) Empty() bool {
	return p == nil || p.node == nil
}

// Node returns the underlying position node, or nil for an empty value.
func (p *SearchParams) Node() Node {
	if p == nil {
		return nil
	}
	return p.node
}

// sameRequest reports structural equality: same node identity, same
// limit, same searchmoves. Used only to decide whether a freshly
// requested search actually differs from what is currently running;
// never as a substitute for the identity check the state machine uses
// for desired-vs-completed.
func sameRequest(a, b *SearchParams) bool {
	if a.Empty() && b.Empty() {
		return true
	}
	if a.Empty() != b.Empty() {
		return false
	}
	if a.node != b.node {
		return false
	}
	if a.hasLimit != b.hasLimit || a.limit != b.limit {
		return false
	}
	if len(a.searchmoves) != len(b.searchmoves) {
		return false
	}
	for i := range a.searchmoves {
		if a.searchmoves[i] != b.searchmoves[i] {
			return false
		}
	}
	return true
}
