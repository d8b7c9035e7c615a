// Package chessnode adapts github.com/notnil/chess games to the
// engine.Node interface, the same library the hub's PGN analyzer uses
// to walk a parsed game (see internal/hub/analyze.go).
package chessnode

import (
	"fmt"
	"sync"

	"github.com/notnil/chess"
)

// standardRookSquare is where the rook UCI_Chess960 castling notation
// points the king at, keyed by which side castles. notnil/chess does
// not track arbitrary Chess960 starting files, so this assumes the
// conventional a/h-file rooks; non-standard starting arrangements are
// out of scope.
var standardRookSquare = map[chess.MoveTag]map[chess.Color]string{
	chess.KingSideCastle:  {chess.White: "h1", chess.Black: "h8"},
	chess.QueenSideCastle: {chess.White: "a1", chess.Black: "a8"},
}

// GameNode wraps a *chess.Game as a node in the position tree the
// driver searches against. A GameNode corresponds to one position
// reached by playing the game's recorded moves from its starting FEN;
// Destroy marks it stale once the hub has moved past it.
type GameNode struct {
	mu        sync.Mutex
	game      *chess.Game
	destroyed bool
}

// New builds a GameNode at the standard starting position.
func New() *GameNode {
	return &GameNode{game: chess.NewGame()}
}

// NewFromFEN builds a GameNode rooted at an arbitrary FEN.
func NewFromFEN(fen string) (*GameNode, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("chessnode: invalid fen %q: %w", fen, err)
	}
	return &GameNode{game: chess.NewGame(opt)}, nil
}

// Push plays an already decoded move (for example one decoded with
// chess.UCINotation or chess.AlgebraicNotation) onto the node, mutating
// it in place. The hub is
// responsible for allocating a fresh node per distinct position when
// SearchParams identity matters; Push is for advancing a node the hub
// already owns exclusively (e.g. after the opponent's reply lands).
func (n *GameNode) Push(move *chess.Move) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.game.Move(move)
}

// Destroy marks the node stale. Destroyed nodes are never searched;
// SetSearchDesired treats them the same as an empty request.
func (n *GameNode) Destroy() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.destroyed = true
}

func (n *GameNode) Destroyed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.destroyed
}

// Terminal reports whether the game has a decided or drawn outcome at
// this position -- checkmate, stalemate, or one of the draws notnil/chess
// applies automatically (fivefold repetition, seventy-five-move rule,
// insufficient material). Claimable draws (threefold repetition,
// fifty-move rule) do not make a position terminal.
func (n *GameNode) Terminal() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.game.Outcome() != chess.NoOutcome
}

// RootFEN returns the FEN of the position this node's game started
// from, not its current position -- the engine is given the root plus
// a `moves` list, per UCI convention.
func (n *GameNode) RootFEN() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	positions := n.game.Positions()
	return positions[0].String()
}

// MovesFromRoot encodes every move played since the root in UCI
// notation. When chess960 is true, castling moves are re-encoded as
// king-takes-rook (e1h1 rather than e1g1), the convention engines
// expect once UCI_Chess960 has been set.
func (n *GameNode) MovesFromRoot(chess960 bool) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	positions := n.game.Positions()
	moves := n.game.Moves()
	out := make([]string, 0, len(moves))
	for i, m := range moves {
		out = append(out, encodeUCIMove(positions[i], m, chess960))
	}
	return out
}

// ValidateSearchMoves filters the given UCI move strings down to the
// subset that are legal in the node's current position, preserving
// the caller's order and dropping duplicates/unknowns silently --
// malformed searchmoves from the hub are not an error, just ignored.
func (n *GameNode) ValidateSearchMoves(moves []string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()

	pos := n.game.Position()
	legal := make(map[string]bool, len(pos.ValidMoves()))
	for _, m := range pos.ValidMoves() {
		legal[chess.UCINotation{}.Encode(pos, m)] = true
	}

	seen := make(map[string]bool, len(moves))
	out := make([]string, 0, len(moves))
	for _, mv := range moves {
		if legal[mv] && !seen[mv] {
			out = append(out, mv)
			seen[mv] = true
		}
	}
	return out
}

func encodeUCIMove(pos *chess.Position, m *chess.Move, chess960 bool) string {
	uci := chess.UCINotation{}.Encode(pos, m)
	if !chess960 {
		return uci
	}
	for tag, bySide := range standardRookSquare {
		if m.HasTag(tag) {
			if rookSq, ok := bySide[pos.Turn()]; ok {
				return uci[:2] + rookSq
			}
		}
	}
	return uci
}
