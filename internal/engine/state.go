package engine

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/pocketsync/internal/metrics"
)

// State is the phase of one sync profile run.
type State string

const (
	Idle                 State = "idle"
	Fetching             State = "fetching"
	Deduping             State = "deduping"
	AwaitingConfirmation State = "awaiting_confirmation"
	Uploading            State = "uploading"
	Completed            State = "completed"
	Cancelled            State = "cancelled"
	Empty                State = "empty"
	Failed               State = "failed"
)

// transitions lists the legal successors of each state. Idle goes straight
// to AwaitingConfirmation when resuming a ledger. AwaitingConfirmation goes
// to Completed on a dry run. Cancelled is also reached from the cancellation
// checkpoints before fetching and before dedup.
var transitions = map[State][]State{
	Idle:                 {Fetching, AwaitingConfirmation, Cancelled, Failed},
	Fetching:             {Deduping, Empty, Cancelled, Failed},
	Deduping:             {AwaitingConfirmation, Empty, Cancelled, Failed},
	AwaitingConfirmation: {Uploading, Completed, Cancelled, Failed},
	Uploading:            {Completed, Failed},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// run tracks the state of one profile run.
type run struct {
	profile string
	state   State
	log     zerolog.Logger
	metrics *metrics.Recorder
}

func newRun(profile string, log zerolog.Logger, m *metrics.Recorder) *run {
	return &run{profile: profile, state: Idle, log: log, metrics: m}
}

// to moves the run into next. An illegal transition is a programming error
// and is returned as such.
func (r *run) to(next State) error {
	if !canTransition(r.state, next) {
		return fmt.Errorf("run %s: illegal transition %s -> %s", r.profile, r.state, next)
	}
	r.log.Debug().
		Str("profile", r.profile).
		Str("from", string(r.state)).
		Str("to", string(next)).
		Msg("Sync state changed")
	r.state = next
	if next.Terminal() {
		r.metrics.RecordRun(r.profile, string(next))
	}
	return nil
}

// fail moves a non-terminal run into Failed.
func (r *run) fail() {
	if !r.state.Terminal() {
		_ = r.to(Failed)
	}
}
