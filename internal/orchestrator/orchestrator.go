// Package orchestrator drives the multi-stage ledger transaction pipelines
// behind each user action. Stages run strictly in sequence, the record store
// is only touched after the final stage's receipt confirms, and every
// failure maps to one of the error types in models.go.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dtelabs/escrow-api/internal/chain"
	"github.com/dtelabs/escrow-api/internal/syncer"
)

// Orchestrator executes named ordered stage sequences against the ledger
// and pushes exactly one record update on full success.
type Orchestrator struct {
	provider chain.Provider
	sync     *syncer.Synchronizer
	logger   zerolog.Logger

	watchInterval time.Duration

	mu       sync.Mutex
	state    ActionState
	progress ProgressFunc
}

// New creates an orchestrator over the given transaction provider and
// synchronizer.
func New(provider chain.Provider, sync *syncer.Synchronizer) *Orchestrator {
	return &Orchestrator{
		provider:      provider,
		sync:          sync,
		logger:        log.With().Str("component", "orchestrator").Logger(),
		watchInterval: 500 * time.Millisecond,
	}
}

// OnProgress registers the callback receiving per-stage notifications.
func (o *Orchestrator) OnProgress(fn ProgressFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress = fn
}

// State returns the current action state.
func (o *Orchestrator) State() ActionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// run drives one action's stage sequence. commit applies the single record
// update once every stage has confirmed; nothing is written to the store
// before that point, so a failure at any stage leaves the record exactly as
// it was.
func (o *Orchestrator) run(ctx context.Context, action string, stages []Stage, commit func(ctx context.Context) error) error {
	if err := o.begin(); err != nil {
		return err
	}

	logger := o.logger.With().Str("action", action).Logger()
	logger.Info().Int("stages", len(stages)).Msg("starting action")

	total := len(stages)
	for i, stage := range stages {
		o.setState(StateSubmitting)
		o.notify(Progress{Stage: i + 1, Total: total, Description: stage.Description})

		handle, err := o.provider.Submit(ctx, stage.Request())
		if err != nil {
			var declined *chain.UserDeclinedError
			if errors.As(err, &declined) {
				// Nothing was signed; the action simply never happened.
				o.setState(StateIdle)
				logger.Warn().Str("stage", stage.Description).Msg("signature declined, returning to idle")
				return err
			}
			o.setState(StateFailed)
			logger.Error().Err(err).Str("stage", stage.Description).Msg("submission failed")
			return err
		}

		o.setState(StateConfirming)
		o.notify(Progress{Stage: i + 1, Total: total, Description: stage.Description, Confirming: true})

		receipt, err := o.provider.AwaitConfirmation(ctx, handle)
		if err != nil {
			o.setState(StateFailed)
			logger.Error().Err(err).Str("stage", stage.Description).Msg("confirmation failed")
			return err
		}
		if receipt.Reverted {
			o.setState(StateFailed)
			logger.Error().Str("stage", stage.Description).Str("tx_hash", receipt.TxHash.Hex()).Msg("stage reverted")
			return &StageRevertedError{Stage: stage.Description}
		}

		if stage.OnReceipt != nil {
			if err := stage.OnReceipt(receipt); err != nil {
				o.setState(StateFailed)
				logger.Error().Err(err).Str("stage", stage.Description).Msg("receipt precondition unmet")
				return err
			}
		}

		logger.Info().
			Int("stage", i+1).
			Int("total", total).
			Str("description", stage.Description).
			Str("tx_hash", receipt.TxHash.Hex()).
			Msg("stage confirmed")
	}

	if err := commit(ctx); err != nil {
		o.setState(StateFailed)
		logger.Error().Err(err).Msg("record update failed after confirmed stages")
		return err
	}

	o.setState(StateSucceeded)
	logger.Info().Msg("action succeeded")
	return nil
}

// begin moves the orchestrator out of a resting state into Submitting, or
// fails if an action is mid-flight.
func (o *Orchestrator) begin() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateSubmitting || o.state == StateConfirming {
		return ErrActionInFlight
	}
	o.state = StateSubmitting
	return nil
}

func (o *Orchestrator) setState(state ActionState) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) notify(p Progress) {
	o.mu.Lock()
	fn := o.progress
	o.mu.Unlock()

	if fn != nil {
		fn(p)
	}
}
