package engine

import "strings"

// lineKind categorizes a line emitted by the engine on stdout.
type lineKind int

const (
	lineMisc lineKind = iota
	lineBestMove
	lineInfo
	lineOption
	lineUCIOk
	lineReadyOk
)

// classify inspects a stdout line's leading token and returns its kind.
func classify(line string) lineKind {
	switch firstToken(line) {
	case "bestmove":
		return lineBestMove
	case "info":
		return lineInfo
	case "option":
		return lineOption
	case "uciok":
		return lineUCIOk
	case "readyok":
		return lineReadyOk
	default:
		return lineMisc
	}
}

func firstToken(line string) string {
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}

// mentionsChess960Option reports whether an "option ..." line is
// announcing the UCI_Chess960 option, matched case-insensitively as the
// protocol requires.
func mentionsChess960Option(line string) bool {
	return strings.Contains(strings.ToLower(line), "uci_chess960")
}

// mentionsVerboseMoveStats reports whether an info line carries the
// VerboseMoveStats token that marks a "leelaish" (neural-network) engine.
func mentionsVerboseMoveStats(line string) bool {
	return strings.Contains(line, "VerboseMoveStats")
}

// parseSetOptionFragment extracts name/value from a raw "setoption name
// <N> value <V>" command line. Matching on the "name"/"value" keywords
// is case-insensitive; the extracted value preserves its original case.
// Button-style options (no "value" marker, e.g. "Clear Hash") are not
// recordable: both markers must be present, in order, for ok to be
// true, matching the outbound send discipline's recording rule.
func parseSetOptionFragment(line string) (name, value string, ok bool) {
	lower := strings.ToLower(line)
	nameIdx := strings.Index(lower, "name")
	if nameIdx < 0 {
		return "", "", false
	}
	nameStart := nameIdx + len("name")

	valueIdx := strings.Index(lower[nameStart:], "value")
	if valueIdx < 0 {
		return "", "", false
	}
	valueStart := nameStart + valueIdx

	name = strings.TrimSpace(line[nameStart:valueStart])
	value = strings.TrimSpace(line[valueStart+len("value"):])
	if name == "" {
		return "", "", false
	}
	return name, value, true
}
