package engine

import "strings"

// variantOptionRule names an option that behaves differently (or not at
// all) depending on whether the engine is a "leelaish" neural-network
// engine or a classical alpha-beta one.
type variantOptionRule struct {
	name     string
	leelaish bool // true: rule applies when the engine IS leelaish
	reason   string
}

// optionSuppressionRules is the static allow/deny list MaybeSetOption
// consults. It is intentionally small and explicit rather than derived
// from engine capability probing, matching the "static" wording of the
// design.
var optionSuppressionRules = []variantOptionRule{
	{name: "multipv", leelaish: true, reason: "MultiPV is not meaningful for this engine's search and is ignored"},
	{name: "skill level", leelaish: true, reason: "Skill Level has no effect on neural-network engines"},
	{name: "contempt", leelaish: true, reason: "Contempt is not supported by this engine"},
	{name: "weightsfile", leelaish: false, reason: "WeightsFile only applies to neural-network engines"},
	{name: "backend", leelaish: false, reason: "Backend only applies to neural-network engines"},
	{name: "nncachesize", leelaish: false, reason: "NNCacheSize only applies to neural-network engines"},
}

// suppressedForVariant reports whether name should be suppressed for the
// current variant, and if so, a human-readable reason.
func suppressedForVariant(name string, leelaish bool) (reason string, suppressed bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	for _, rule := range optionSuppressionRules {
		if rule.name == key && rule.leelaish == leelaish {
			return rule.reason, true
		}
	}
	return "", false
}

// safeString strips control characters (other than tab) from a line
// before it is handed to the hub's error sink, so a misbehaving engine
// cannot smuggle terminal escape sequences or embedded nulls upstream.
func safeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\t' || (r >= 0x20 && r != 0x7f) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
