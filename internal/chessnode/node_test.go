package chessnode

import (
	"testing"

	"github.com/notnil/chess"
)

func TestNewRootFENIsStartpos(t *testing.T) {
	n := New()
	want := chess.NewGame().Position().String()
	if got := n.RootFEN(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestMovesFromRootEncodesUCI(t *testing.T) {
	n := New()
	if err := n.Push(mustDecode(t, chess.NewGame().Position(), "e2e4")); err != nil {
		t.Fatalf("push: %v", err)
	}

	moves := n.MovesFromRoot(false)
	if len(moves) != 1 || moves[0] != "e2e4" {
		t.Fatalf("got %v, want [e2e4]", moves)
	}
}

func TestMovesFromRootChess960RewritesCastle(t *testing.T) {
	fen := "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1"
	n, err := NewFromFEN(fen)
	if err != nil {
		t.Fatalf("NewFromFEN: %v", err)
	}
	pos := n.game.Position()
	if err := n.Push(mustDecode(t, pos, "e1g1")); err != nil {
		t.Fatalf("push castle: %v", err)
	}

	classical := n.MovesFromRoot(false)
	if len(classical) != 1 || classical[0] != "e1g1" {
		t.Fatalf("classical encoding = %v, want [e1g1]", classical)
	}

	chess960 := n.MovesFromRoot(true)
	if len(chess960) != 1 || chess960[0] != "e1h1" {
		t.Fatalf("chess960 encoding = %v, want [e1h1]", chess960)
	}
}

func TestValidateSearchMovesFiltersIllegalAndDuplicates(t *testing.T) {
	n := New()
	got := n.ValidateSearchMoves([]string{"e2e4", "e2e4", "e7e5", "a1a1"})
	if len(got) != 1 || got[0] != "e2e4" {
		t.Fatalf("got %v, want [e2e4]", got)
	}
}

func TestDestroyMarksDestroyed(t *testing.T) {
	n := New()
	if n.Destroyed() {
		t.Fatalf("fresh node must not be destroyed")
	}
	n.Destroy()
	if !n.Destroyed() {
		t.Fatalf("expected destroyed after Destroy()")
	}
}

func TestTerminalReportsCheckmate(t *testing.T) {
	// Fool's mate.
	n := New()
	for _, uci := range []string{"f2f3", "e7e5", "g2g4", "d8h4"} {
		pos := n.game.Position()
		if err := n.Push(mustDecode(t, pos, uci)); err != nil {
			t.Fatalf("push %s: %v", uci, err)
		}
	}
	if !n.Terminal() {
		t.Fatalf("expected checkmated position to be terminal")
	}
}

func mustDecode(t *testing.T, pos *chess.Position, uci string) *chess.Move {
	t.Helper()
	m, err := chess.UCINotation{}.Decode(pos, uci)
	if err != nil {
		t.Fatalf("decode %s: %v", uci, err)
	}
	return m
}
