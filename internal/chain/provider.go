// Package chain defines the contract against the external ledger: submit a
// transaction, wait for its confirmation receipt, read a public field. The
// orchestrator treats everything behind this interface as opaque.
package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// StageRequest describes one transaction submission: a contract method and
// its arguments.
type StageRequest struct {
	Method string
	Args   map[string]string
}

// TxHandle identifies a submitted transaction.
type TxHandle struct {
	Hash common.Hash
}

// Event is one log entry emitted by a confirmed transaction.
type Event struct {
	Name       string
	Attributes map[string]string
}

// Receipt is the confirmed outcome of a submitted transaction.
type Receipt struct {
	TxHash   common.Hash
	Reverted bool
	Events   []Event
}

// EventAttribute looks up an attribute on the first event with the given
// name.
func (r *Receipt) EventAttribute(event, attribute string) (string, bool) {
	for _, e := range r.Events {
		if e.Name != event {
			continue
		}
		value, ok := e.Attributes[attribute]
		return value, ok
	}
	return "", false
}

// UserDeclinedError reports that the signer rejected a submission. The
// transaction never reached the ledger.
type UserDeclinedError struct {
	Method string
}

func (e *UserDeclinedError) Error() string {
	return fmt.Sprintf("signature declined for %s", e.Method)
}

// Provider is the external transaction surface the orchestrator drives.
type Provider interface {
	// Submit signs and broadcasts a transaction, or fails with
	// *UserDeclinedError when the signer rejects it.
	Submit(ctx context.Context, req StageRequest) (TxHandle, error)
	// AwaitConfirmation blocks until the transaction's receipt is available.
	AwaitConfirmation(ctx context.Context, handle TxHandle) (*Receipt, error)
	// ReadField reads a public contract field, e.g. the delivery oracle's
	// confirmation flag.
	ReadField(ctx context.Context, field string) (string, error)
}
