package engine

import (
	"io"
	"log"
	"sync"
	"time"
)

// fakeNode is a minimal Node used across the engine package's tests.
type fakeNode struct {
	fen       string
	moves     []string
	destroyed bool
	terminal  bool
	legal     map[string]bool
}

func (n *fakeNode) Destroyed() bool { return n.destroyed }
func (n *fakeNode) Terminal() bool  { return n.terminal }
func (n *fakeNode) RootFEN() string { return n.fen }
func (n *fakeNode) MovesFromRoot(chess960 bool) []string {
	return n.moves
}
func (n *fakeNode) ValidateSearchMoves(moves []string) []string {
	if n.legal == nil {
		out := make([]string, len(moves))
		copy(out, moves)
		return out
	}
	var out []string
	for _, m := range moves {
		if n.legal[m] {
			out = append(out, m)
		}
	}
	return out
}

func newStartposNode() *fakeNode {
	return &fakeNode{fen: startposFEN}
}

type bestmoveCall struct {
	line string
	node Node
}

// fakeHub is a test double for the Hub interface.
type fakeHub struct {
	mu sync.Mutex

	bestmoves []bestmoveCall
	misc      []string
	errLines  []string
	acked     map[string]string
	ackOrder  []string
	started   []string
	alerts    int

	infoHandler InfoHandler
	cycles      [][2]int
}

func (h *fakeHub) ReceiveBestMove(line string, node Node) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bestmoves = append(h.bestmoves, bestmoveCall{line, node})
}

func (h *fakeHub) InfoHandler() InfoHandler { return h.infoHandler }

func (h *fakeHub) ErrReceive(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errLines = append(h.errLines, line)
}

func (h *fakeHub) ReceiveMisc(line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.misc = append(h.misc, line)
}

func (h *fakeHub) AckEngineStart(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.started = append(h.started, path)
}

func (h *fakeHub) AckSetOption(name, value string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.acked == nil {
		h.acked = map[string]string{}
	}
	h.acked[name] = value
	h.ackOrder = append(h.ackOrder, name+"="+value)
}

func (h *fakeHub) AlertSendFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts++
}

func (h *fakeHub) IncrementCycle(cycle, subcycle int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cycles = append(h.cycles, [2]int{cycle, subcycle})
}

// newTestDriver builds a Driver with the handshake already satisfied and
// no real subprocess: outbound commands are captured into *sent instead
// of written to a pipe.
func newTestDriver(hub Hub, cfg Config) (d *Driver, sent *[]string) {
	return newRawTestDriver(hub, cfg, true)
}

// newRawTestDriver is newTestDriver with control over whether the
// uciok/readyok handshake has completed yet.
func newRawTestDriver(hub Hub, cfg Config, handshakeDone bool) (d *Driver, sent *[]string) {
	d = &Driver{
		cfg:    cfg,
		hub:    hub,
		logger: log.New(io.Discard, "", 0),
		nowFn:  time.Now,
	}
	d.options = newOptionRegistry(hubAcker{hub})
	d.st = driverState{
		running:         NoSearch,
		desired:         NoSearch,
		receivedUCIOk:   handshakeDone,
		receivedReadyOk: handshakeDone,
	}
	var lines []string
	d.outbound = func(line string) error {
		lines = append(lines, line)
		return nil
	}
	return d, &lines
}
