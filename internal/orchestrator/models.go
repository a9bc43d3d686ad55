package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dtelabs/escrow-api/internal/chain"
)

// ErrActionInFlight is returned when an action is started while another one
// is still between Idle and a terminal state.
var ErrActionInFlight = errors.New("an action is already in flight")

// StageRevertedError reports a submitted transaction that confirmed but was
// marked reverted by the ledger.
type StageRevertedError struct {
	Stage string
}

func (e *StageRevertedError) Error() string {
	return fmt.Sprintf("stage %q reverted on ledger", e.Stage)
}

// PreconditionUnmetError reports a datum that should have been present after
// confirmation but was not, e.g. an expected emitted event. It indicates a
// protocol mismatch rather than an economic failure, so it is surfaced
// distinctly from a revert.
type PreconditionUnmetError struct {
	Stage   string
	Missing string
}

func (e *PreconditionUnmetError) Error() string {
	return fmt.Sprintf("stage %q confirmed but %s is missing", e.Stage, e.Missing)
}

// ActionState tracks one in-flight action through its lifecycle.
type ActionState int

const (
	StateIdle ActionState = iota
	StateSubmitting
	StateConfirming
	StateSucceeded
	StateFailed
)

var actionStateNames = map[ActionState]string{
	StateIdle:       "idle",
	StateSubmitting: "submitting",
	StateConfirming: "confirming",
	StateSucceeded:  "succeeded",
	StateFailed:     "failed",
}

func (s ActionState) String() string {
	if name, ok := actionStateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Stage is one submit-and-confirm pair within an action. Request is built
// lazily because later stages depend on data extracted from earlier
// receipts. OnReceipt, when set, pulls such data out of the confirmed
// receipt and may fail the action with a PreconditionUnmetError.
type Stage struct {
	Description string
	Request     func() chain.StageRequest
	OnReceipt   func(receipt *chain.Receipt) error
}

// Progress is emitted before each stage's submission and again before its
// confirmation wait, so a caller can render "N/M: doing X".
type Progress struct {
	Stage       int
	Total       int
	Description string
	Confirming  bool
}

// ProgressFunc receives progress notifications for an in-flight action.
type ProgressFunc func(Progress)
