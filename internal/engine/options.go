package engine

import "strings"

// optionAcker receives notifications whenever a setoption value is
// recorded or re-asserted, mirroring the host-process control channel's
// ack_setoption(key, val) call described in the design.
type optionAcker interface {
	ackSetOption(name, value string)
}

// OptionRegistry tracks the last value sent for each engine option and
// queues setoption lines that arrive while a search is running, per the
// engines-forbid-option-changes-mid-search rule. Options changed while
// idle take effect immediately; options changed mid-search wait for the
// next search boundary.
type OptionRegistry struct {
	sent    map[string]string
	pending []string
	acker   optionAcker
}

func newOptionRegistry(acker optionAcker) *OptionRegistry {
	return &OptionRegistry{
		sent:  make(map[string]string),
		acker: acker,
	}
}

// reset clears recorded option values. Called on a fresh engine launch,
// which has not been told anything yet.
func (r *OptionRegistry) reset() {
	r.sent = make(map[string]string)
}

// record stores lowercased name -> value and notifies the host.
func (r *OptionRegistry) record(name, value string) {
	key := strings.ToLower(name)
	r.sent[key] = value
	if r.acker != nil {
		r.acker.ackSetOption(key, value)
	}
}

// valueFor returns the last-sent value for a lowercased option name, or
// the empty string if nothing has been sent yet for that key.
func (r *OptionRegistry) valueFor(name string) string {
	return r.sent[strings.ToLower(name)]
}

// queue appends a raw setoption command line to the pending list.
func (r *OptionRegistry) queue(rawLine string) {
	r.pending = append(r.pending, rawLine)
}

// drain sends each queued line (forced) in original order, then clears
// the queue. send is expected to route through the same outbound send
// discipline as any other command, with force=true.
func (r *OptionRegistry) drain(send func(line string, force bool)) {
	pending := r.pending
	r.pending = nil
	for _, line := range pending {
		send(line, true)
	}
}

// in960Mode reports whether UCI_Chess960 has been recorded as "true".
func (r *OptionRegistry) in960Mode() bool {
	return r.valueFor("uci_chess960") == "true"
}
