package engine

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const startposFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// quitGrace is how long Shutdown waits for the engine to exit on its own
// after `quit` before it is forcibly killed.
const quitGrace = 2 * time.Second

// wellKnownOptionNames is acked (with an empty value) to the host right
// after a fresh launch, so UI checkboxes/menus bound to these options
// reset to their unset state.
var wellKnownOptionNames = []string{
	"Hash",
	"Threads",
	"MultiPV",
	"Ponder",
	"UCI_Chess960",
	"Move Overhead",
	"Skill Level",
	"Contempt",
}

// InfoHandler receives info lines for the search currently running, along
// with the node they're attributed to. The driver is passed through so a
// handler can react (e.g. call MaybeSetOption) without a second wiring
// path back into the driver that spawned it.
type InfoHandler interface {
	Receive(d *Driver, node Node, line string)
}

// CycleSink is the capability an info handler can implement to keep its
// own cycle/subcycle counters in lockstep with the driver's, per the
// design note that these should be atomic integers owned by the info
// handler and advanced through a dedicated method rather than mutated
// as free-floating fields.
type CycleSink interface {
	IncrementCycle(cycle, subcycle int)
}

// Hub is the set of callbacks the driver invokes on its host application.
// It combines the hub callback interface and the host-process control
// channel described in the design: bestmove/info/error/misc delivery,
// plus engine-start and setoption acknowledgements.
type Hub interface {
	ReceiveBestMove(line string, node Node)
	InfoHandler() InfoHandler
	ErrReceive(line string)
	ReceiveMisc(line string)
	AckEngineStart(path string)
	AckSetOption(name, value string)
	AlertSendFailure(err error)
}

// Config holds the configuration reads the driver consults: whether a
// positive limit means milliseconds (movetime) or nodes, whether
// searchmoves restriction is honored, and whether positions/info lines
// get logged.
type Config struct {
	UseMovetime        bool
	SearchmovesButtons bool
	LogPositions       bool
	LogInfoLines       bool
}

// driverState is the mutable state owned by exactly one Driver: the
// {running, desired, completed} triple and the flags/counters the state
// machine and option discipline depend on.
type driverState struct {
	running   *SearchParams
	desired   *SearchParams
	completed *SearchParams

	receivedUCIOk     bool
	receivedReadyOk   bool
	quitRequested     bool
	variantLeelaish   bool
	warnedSendFailure bool
	everSentOK        bool

	lastSend           time.Time
	unresolvedStopTime time.Time
	suppressCycleInfo  *uint64

	cycle    uint64
	subcycle uint64
}

// Driver is the facade the hub interacts with: it composes the
// transport, the option registry, and the search state machine behind a
// small set of entry points. All methods are safe to call from any
// goroutine; a single mutex serializes them with the line-delivery
// goroutines that read the subprocess's stdout/stderr, reproducing the
// single conceptual event loop the design calls for without requiring a
// literal single thread.
type Driver struct {
	mu sync.Mutex

	path string
	args []string
	cfg  Config
	hub  Hub

	st        driverState
	options   *OptionRegistry
	transport *transport

	logger *log.Logger
	nowFn  func() time.Time

	// outbound overrides the transport's writeLine for tests that need
	// to observe the exact sequence of emitted commands without a real
	// subprocess. Production code leaves it nil.
	outbound func(line string) error
}

// NewDriver spawns the engine subprocess at path and begins the UCI
// handshake. The working directory is set to the executable's parent.
func NewDriver(path string, args []string, cfg Config, hub Hub) (*Driver, error) {
	d := &Driver{
		path:   path,
		args:   args,
		cfg:    cfg,
		hub:    hub,
		logger: log.Default(),
		nowFn:  time.Now,
	}
	d.options = newOptionRegistry(hubAcker{hub})

	if err := d.setup(); err != nil {
		return nil, err
	}
	return d, nil
}

type hubAcker struct{ hub Hub }

func (a hubAcker) ackSetOption(name, value string) {
	if a.hub != nil {
		a.hub.AckSetOption(name, value)
	}
}

func (d *Driver) setup() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.st = driverState{running: NoSearch, desired: NoSearch}
	d.options.reset()

	tp, err := newTransport(d.path, d.args, d.onOutLine, d.onErrLine, d.onExit)
	if err != nil {
		if d.hub != nil {
			d.hub.AckEngineStart(d.path)
		}
		return err
	}
	d.transport = tp

	if d.hub != nil {
		d.hub.AckEngineStart(d.path)
		for _, name := range wellKnownOptionNames {
			d.hub.AckSetOption(strings.ToLower(name), "")
		}
	}

	d.sendLocked("uci", false)
	d.sendLocked("isready", false)
	return nil
}

func (d *Driver) onOutLine(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st.quitRequested {
		return
	}
	switch classify(line) {
	case lineBestMove:
		d.handleBestMoveLocked(line)
	case lineInfo:
		d.handleInfoLineLocked(line)
	case lineOption:
		if mentionsChess960Option(line) {
			d.sendLocked("setoption name UCI_Chess960 value true", false)
		}
		d.forwardMiscLocked(line)
	case lineUCIOk:
		d.st.receivedUCIOk = true
		d.forwardMiscLocked(line)
	case lineReadyOk:
		d.st.receivedReadyOk = true
		d.forwardMiscLocked(line)
	default:
		d.forwardMiscLocked(line)
	}
}

func (d *Driver) forwardMiscLocked(line string) {
	if d.hub != nil {
		d.hub.ReceiveMisc(line)
	}
}

func (d *Driver) onErrLine(line string) {
	d.mu.Lock()
	quit := d.st.quitRequested
	d.mu.Unlock()
	if quit {
		return
	}
	if d.hub != nil {
		d.hub.ErrReceive(safeString(line))
	}
}

func (d *Driver) onExit(error) {
	d.mu.Lock()
	d.transport = nil
	d.mu.Unlock()
}

// --- search state machine (spec §4.3) ---

func (d *Driver) handleBestMoveLocked(line string) {
	if d.st.running.Empty() {
		d.logf("bestmove with no active search, discarding: %s", line)
		return
	}

	d.st.completed = d.st.running
	d.st.running = NoSearch
	d.st.unresolvedStopTime = time.Time{}

	switch {
	case d.st.desired.Empty():
		// 4 -> 1
		d.st.desired = NoSearch
		d.drainOptionsLocked()
		d.logf("ignore halted: %s", line)

	case d.st.desired == d.st.completed:
		// 2 -> 1: the only transition that surfaces a result.
		node := d.st.completed.Node()
		d.drainOptionsLocked()
		if d.hub != nil {
			d.hub.ReceiveBestMove(line, node)
		}

	default:
		// 3 -> 2: stale bestmove for a search we've since moved on from.
		d.drainOptionsLocked()
		d.logf("ignore old: %s", line)
		d.sendDesiredLocked()
	}
}

func (d *Driver) drainOptionsLocked() {
	d.options.drain(func(line string, force bool) {
		d.sendLocked(line, force)
	})
}

// sendDesiredLocked implements the send_desired algorithm of spec §4.3.
// Precondition: running is empty; violating it is a programmer error.
func (d *Driver) sendDesiredLocked() {
	if !d.st.running.Empty() {
		panic("engine: sendDesired invoked while a search is running")
	}

	node := d.st.desired.Node()
	if node == nil || node.Destroyed() || node.Terminal() {
		d.st.running = NoSearch
		d.st.desired = NoSearch
		return
	}

	posCmd := "position " + d.buildSetupClause(node)
	if moves := node.MovesFromRoot(d.options.in960Mode()); len(moves) > 0 {
		posCmd += " moves " + strings.Join(moves, " ")
	}
	if d.cfg.LogPositions {
		d.logf("position: %s", posCmd)
	}
	d.sendLocked(posCmd, false)

	goCmd := d.buildGoCommand(d.st.desired)
	d.sendLocked(goCmd, false)

	d.st.running = d.st.desired
	d.st.suppressCycleInfo = nil
	d.st.cycle++
	d.st.subcycle++
	if sink, ok := d.hub.(CycleSink); ok {
		sink.IncrementCycle(int(d.st.cycle), int(d.st.subcycle))
	}
}

func (d *Driver) buildSetupClause(node Node) string {
	fen := node.RootFEN()
	if !d.options.in960Mode() && fen == startposFEN {
		return "startpos"
	}
	return "fen " + fen
}

func (d *Driver) buildGoCommand(p *SearchParams) string {
	var cmd string
	switch {
	case !p.hasLimit:
		cmd = "go infinite"
	case d.cfg.UseMovetime:
		cmd = fmt.Sprintf("go movetime %d", p.limit)
	default:
		cmd = fmt.Sprintf("go nodes %d", p.limit)
	}
	if d.cfg.SearchmovesButtons && len(p.searchmoves) > 0 {
		cmd += " searchmoves " + strings.Join(p.searchmoves, " ")
	}
	return cmd
}

// handleInfoLineLocked implements the info line filter of spec §4.4.
func (d *Driver) handleInfoLineLocked(line string) {
	if mentionsVerboseMoveStats(line) {
		d.st.variantLeelaish = true
	}

	if d.cfg.LogInfoLines {
		d.logf("info: %s", line)
	}

	if d.st.running.Empty() {
		return
	}
	if node := d.st.running.Node(); node != nil && node.Destroyed() {
		return
	}
	if !d.st.variantLeelaish && d.st.desired != d.st.running {
		return
	}
	if d.st.suppressCycleInfo != nil && *d.st.suppressCycleInfo == d.st.cycle {
		return
	}

	if d.hub == nil {
		return
	}
	ih := d.hub.InfoHandler()
	if ih == nil {
		return
	}
	ih.Receive(d, d.st.running.Node(), line)
}

// --- outbound send discipline (spec §4.5) ---

func (d *Driver) sendLocked(line string, force bool) {
	line = strings.TrimRight(line, " \t\r\n")

	if strings.HasPrefix(strings.ToLower(line), "setoption") {
		if !d.st.running.Empty() && !force {
			d.options.queue(line)
			return
		}
		if name, value, ok := parseSetOptionFragment(line); ok {
			d.options.record(name, value)
		}
	}

	write := d.outbound
	if write == nil {
		if d.transport == nil {
			return
		}
		write = d.transport.writeLine
	}

	if err := write(line); err != nil {
		d.logf("write failed: %v", err)
		if d.st.everSentOK && !d.st.warnedSendFailure {
			if d.hub != nil {
				d.hub.AlertSendFailure(err)
			}
			d.st.warnedSendFailure = true
		}
		return
	}
	d.st.everSentOK = true
	d.st.lastSend = d.now()
}

// --- entry points the hub calls (spec §4.7) ---

// SetSearchDesired requests that node (with the given limit and
// searchmoves restriction) become the running search. A nil node
// requests halting the engine to idle. No-op before both handshakes
// have arrived; the hub is expected to retry.
func (d *Driver) SetSearchDesired(node Node, hasLimit bool, limit int, searchmoves []string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.st.quitRequested {
		return
	}
	if !d.st.receivedUCIOk || !d.st.receivedReadyOk {
		d.logf("set_search_desired before handshake complete; ignoring")
		return
	}

	newParams := NewSearchParams(node, hasLimit, limit, searchmoves)

	if d.st.running.Empty() {
		// State 1 (Inactive).
		if newParams.Empty() {
			return
		}
		d.st.desired = newParams
		d.sendDesiredLocked() // 1 -> 2
		return
	}

	if d.st.desired != d.st.running {
		// Already Changing (3) or Ending (4): a stop is already
		// outstanding. Replace desired; never send a second stop.
		d.st.desired = newParams
		return
	}

	// State 2 (Running): desired == running.
	if sameRequest(newParams, d.st.running) {
		return
	}

	d.st.desired = newParams // 2 -> 3 or 2 -> 4
	d.sendLocked("stop", false)
	if d.st.unresolvedStopTime.IsZero() {
		d.st.unresolvedStopTime = d.now()
	}
}

// SetOption sends "setoption name <name> value <value>", deferred to the
// next search boundary if a search is currently running.
func (d *Driver) SetOption(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendLocked(fmt.Sprintf("setoption name %s value %s", name, value), false)
}

// PressButton sends "setoption name <name>" for parameterless,
// button-style engine actions (e.g. "Clear Hash").
func (d *Driver) PressButton(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendLocked(fmt.Sprintf("setoption name %s", name), false)
}

// MaybeSetOption consults the suppression list for the current engine
// variant before delegating to SetOption. If the option is suppressed,
// no command is sent, the previously recorded value is re-acked so the
// host's UI snaps back, and a human-readable reason is returned.
func (d *Driver) MaybeSetOption(name, value string) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if reason, suppressed := suppressedForVariant(name, d.st.variantLeelaish); suppressed {
		if d.hub != nil {
			d.hub.AckSetOption(strings.ToLower(name), d.options.valueFor(name))
		}
		return reason
	}
	d.sendLocked(fmt.Sprintf("setoption name %s value %s", name, value), false)
	return ""
}

// SendUCINewGame sends "ucinewgame", but only once both uciok and
// readyok have been observed; it is the caller's responsibility to halt
// any running search first.
func (d *Driver) SendUCINewGame() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.st.receivedUCIOk || !d.st.receivedReadyOk {
		return
	}
	d.sendLocked("ucinewgame", false)
}

// SuppressCurrentCycleInfo is the "forget all analysis" affordance: info
// lines produced by the search currently running (the present cycle)
// will be dropped from here on, without stopping the search itself.
func (d *Driver) SuppressCurrentCycleInfo() {
	d.mu.Lock()
	defer d.mu.Unlock()
	cycle := d.st.cycle
	d.st.suppressCycleInfo = &cycle
}

// UnresolvedStopTime reports when the currently outstanding `stop` (if
// any) was sent. It is observable state only, the core never reads it;
// an external watchdog may use it to detect a hung engine.
func (d *Driver) UnresolvedStopTime() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.st.unresolvedStopTime.IsZero() {
		return time.Time{}, false
	}
	return d.st.unresolvedStopTime, true
}

// In960Mode reports whether the engine has been told UCI_Chess960=true.
func (d *Driver) In960Mode() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.options.in960Mode()
}

// Shutdown sends `quit`, ignores all further inbound lines, and kills
// the subprocess after a grace period if it hasn't exited. A Driver is
// single-use: Shutdown must not be called twice.
func (d *Driver) Shutdown() {
	d.mu.Lock()
	if d.st.quitRequested {
		d.mu.Unlock()
		return
	}
	d.st.quitRequested = true
	d.sendLocked("quit", true)
	tp := d.transport
	d.mu.Unlock()

	if tp != nil {
		tp.killAfter(quitGrace)
	}
}

func (d *Driver) now() time.Time {
	if d.nowFn != nil {
		return d.nowFn()
	}
	return time.Now()
}

func (d *Driver) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}
