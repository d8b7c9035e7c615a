// Drives a single engine.Driver synchronously for batch PGN analysis,
// adapting the one-shot EvalFEN shape the worker pool needs onto the
// driver's asynchronous bestmove/info callbacks.
package hub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ucihub/internal/chessnode"
	"ucihub/internal/config"
	"ucihub/internal/engine"
	"ucihub/internal/models"
)

// Evaluator owns one engine.Driver, mirroring the teacher's UCIEngine: one
// subprocess per worker, used for exactly one position at a time. It
// tracks a single in-flight evaluation; EvalFEN calls on one Evaluator
// must not overlap, as nothing here locks them against each other.
type Evaluator struct {
	driver *engine.Driver
	bh     *batchHub
}

// NewEvaluator spawns the engine subprocess at path and returns an
// Evaluator ready to accept EvalFEN calls once the handshake completes.
func NewEvaluator(path string, args []string, cfg config.EngineConfig) (*Evaluator, error) {
	bh := &batchHub{}
	d, err := engine.NewDriver(path, args, engine.Config{
		UseMovetime:        cfg.UseMovetime,
		SearchmovesButtons: cfg.SearchmovesButtons,
		LogPositions:       cfg.LogPositions,
		LogInfoLines:       cfg.LogInfoLines,
	}, bh)
	if err != nil {
		return nil, err
	}
	return &Evaluator{driver: d, bh: bh}, nil
}

func (ev *Evaluator) NewGame() {
	ev.driver.SendUCINewGame()
}

func (ev *Evaluator) Close() {
	ev.driver.Shutdown()
}

// EvalFEN evaluates one position with a limited search whose limit is
// cfg.Engine.Depth when cfg.Engine.DepthOrTime is set and
// cfg.Engine.MoveTime otherwise. The limit is handed to the driver as is,
// so it is sent as `go movetime` when the engine config's UseMovetime is
// set and as `go nodes` otherwise. The context controls cancellation: on
// cancel, a stop is sent and EvalFEN returns whatever score was
// accumulated so far.
func (ev *Evaluator) EvalFEN(ctx context.Context, fen string, cfg *config.Config) (models.UCIScore, error) {
	node, err := chessnode.NewFromFEN(fen)
	if err != nil {
		return models.UCIScore{}, fmt.Errorf("engine_eval: %w", err)
	}

	done := ev.bh.beginWait()
	defer ev.bh.endWait()

	// internal/engine's SetSearchDesired has no separate depth mode, only
	// the single limit argument it sends as "go movetime" or "go nodes";
	// a configured depth is passed through as that same limit rather than
	// plumbed as a "go depth" search (see DESIGN.md's internal/hub note on
	// this).
	limit := cfg.Engine.MoveTime
	if cfg.Engine.DepthOrTime {
		limit = cfg.Engine.Depth
		if limit <= 0 {
			limit = 12
		}
	}
	ev.driver.SetSearchDesired(node, true, limit, nil)

	select {
	case <-ctx.Done():
		ev.driver.SetSearchDesired(nil, false, 0, nil)
		select {
		case res := <-done:
			return res.score, res.err
		case <-time.After(500 * time.Millisecond):
			ev.bh.mu.Lock()
			partial := models.UCIScore{CP: ev.bh.lastCP, Mate: ev.bh.lastMate}
			ev.bh.mu.Unlock()
			return partial, ctx.Err()
		}
	case res := <-done:
		return res.score, res.err
	}
}

type evalResult struct {
	score models.UCIScore
	err   error
}

// batchHub implements engine.Hub for a single in-flight EvalFEN call: it
// tracks the latest info score (like the teacher's lastScoreCP/lastScoreMate
// locals) and resolves on the matching bestmove.
type batchHub struct {
	mu      sync.Mutex
	waiting chan evalResult

	lastCP   *int
	lastMate *int
}

func (bh *batchHub) beginWait() chan evalResult {
	bh.mu.Lock()
	defer bh.mu.Unlock()
	ch := make(chan evalResult, 1)
	bh.waiting = ch
	bh.lastCP = nil
	bh.lastMate = nil
	return ch
}

func (bh *batchHub) endWait() {
	bh.mu.Lock()
	defer bh.mu.Unlock()
	bh.waiting = nil
}

func (bh *batchHub) ReceiveBestMove(line string, node engine.Node) {
	bh.mu.Lock()
	defer bh.mu.Unlock()
	if bh.waiting == nil {
		return
	}
	best := bestMoveFromLine(line)
	bh.waiting <- evalResult{score: models.UCIScore{CP: bh.lastCP, Mate: bh.lastMate, Best: best}}
}

func (bh *batchHub) InfoHandler() engine.InfoHandler { return bh }

func (bh *batchHub) Receive(d *engine.Driver, node engine.Node, line string) {
	cp, mate := parseScore(line)
	if cp == nil && mate == nil {
		return
	}
	bh.mu.Lock()
	defer bh.mu.Unlock()
	bh.lastCP, bh.lastMate = cp, mate
}

func (bh *batchHub) ErrReceive(line string)  {}
func (bh *batchHub) ReceiveMisc(line string) {}
func (bh *batchHub) AckEngineStart(path string) {}
func (bh *batchHub) AckSetOption(name, value string) {}

func (bh *batchHub) AlertSendFailure(err error) {
	bh.mu.Lock()
	defer bh.mu.Unlock()
	if bh.waiting != nil {
		bh.waiting <- evalResult{err: errors.New("engine_eval: " + err.Error())}
	}
}

func bestMoveFromLine(line string) string {
	var tag, best string
	n, _ := fmt.Sscanf(line, "%s %s", &tag, &best)
	if n < 2 {
		return ""
	}
	return best
}

func parseScore(line string) (cp *int, mate *int) {
	var depth int
	var scoreKind string
	var value int
	if _, err := fmt.Sscanf(extractScoreFragment(line), "score %s %d", &scoreKind, &value); err != nil {
		return nil, nil
	}
	_ = depth
	switch scoreKind {
	case "cp":
		return &value, nil
	case "mate":
		return nil, &value
	default:
		return nil, nil
	}
}

func extractScoreFragment(line string) string {
	const marker = " score "
	idx := indexOf(line, marker)
	if idx == -1 {
		return ""
	}
	return line[idx+1:]
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
