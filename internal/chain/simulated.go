package chain

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Escrow contract methods understood by the simulated ledger.
const (
	MethodCreateTrade    = "createTrade"
	MethodApprove        = "approve"
	MethodDeposit        = "deposit"
	MethodSubmitShipment = "submitShipment"
	MethodConfirmReceipt = "confirmReceipt"
	MethodWithdraw       = "withdraw"
)

var errNotMined = errors.New("transaction not yet mined")

type escrowTrade struct {
	seller      string
	buyer       string
	amount      float64
	addressHash string
	deposited   bool
	shipped     bool
	delivered   bool
	confirmed   bool
	withdrawn   bool
}

type pendingTx struct {
	minedAt time.Time
	receipt *Receipt
}

// SimLedger is an in-process simulation of the escrow and token contracts.
// Submissions incur a short random latency before their receipt becomes
// available, the way the real network makes callers wait for inclusion.
type SimLedger struct {
	minLatency int // in milliseconds
	maxLatency int
	logger     zerolog.Logger

	mu          sync.Mutex
	nextTradeID int64
	trades      map[int64]*escrowTrade
	allowances  map[string]float64
	pending     map[common.Hash]*pendingTx
	declineNext bool
	revertNext  map[string]bool
}

// NewSimLedger creates a simulated ledger with fresh contract state.
func NewSimLedger() *SimLedger {
	return &SimLedger{
		minLatency:  5,
		maxLatency:  30,
		logger:      log.With().Str("component", "sim_ledger").Logger(),
		nextTradeID: 1000,
		trades:      make(map[int64]*escrowTrade),
		allowances:  make(map[string]float64),
		pending:     make(map[common.Hash]*pendingTx),
		revertNext:  make(map[string]bool),
	}
}

// DeclineNextSignature makes the next Submit fail as if the signer rejected
// the prompt.
func (l *SimLedger) DeclineNextSignature() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.declineNext = true
}

// RevertNext makes the next submission of the given method confirm with a
// reverted receipt.
func (l *SimLedger) RevertNext(method string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revertNext[method] = true
}

// MarkDelivered is the delivery oracle callback: it flips the trade's
// delivered flag, which clients observe through ReadField.
func (l *SimLedger) MarkDelivered(tradeID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if trade, ok := l.trades[tradeID]; ok {
		trade.delivered = true
	}
}

// Submit signs and broadcasts a transaction. The receipt is computed here
// but only becomes observable once the simulated inclusion latency elapses.
func (l *SimLedger) Submit(ctx context.Context, req StageRequest) (TxHandle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.declineNext {
		l.declineNext = false
		l.logger.Warn().Str("method", req.Method).Msg("signature declined")
		return TxHandle{}, &UserDeclinedError{Method: req.Method}
	}

	hash := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s-%d-%d", req.Method, time.Now().UnixNano(), rand.Int63())))
	receipt := l.execute(req, hash)

	latency := rand.Intn(l.maxLatency-l.minLatency+1) + l.minLatency
	l.pending[hash] = &pendingTx{
		minedAt: time.Now().Add(time.Duration(latency) * time.Millisecond),
		receipt: receipt,
	}

	l.logger.Info().
		Str("method", req.Method).
		Str("tx_hash", hash.Hex()).
		Bool("reverted", receipt.Reverted).
		Int("latency_ms", latency).
		Msg("transaction submitted")

	return TxHandle{Hash: hash}, nil
}

// AwaitConfirmation polls for the receipt with exponential backoff until the
// transaction is mined or ctx expires.
func (l *SimLedger) AwaitConfirmation(ctx context.Context, handle TxHandle) (*Receipt, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond

	return backoff.Retry(ctx, func() (*Receipt, error) {
		l.mu.Lock()
		defer l.mu.Unlock()

		tx, ok := l.pending[handle.Hash]
		if !ok {
			return nil, backoff.Permanent(fmt.Errorf("unknown transaction %s", handle.Hash.Hex()))
		}
		if time.Now().Before(tx.minedAt) {
			return nil, errNotMined
		}
		return tx.receipt, nil
	}, backoff.WithBackOff(b))
}

// ReadField serves public contract reads. The only field the clients poll is
// "delivered:<trade_id>".
func (l *SimLedger) ReadField(ctx context.Context, field string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var tradeID int64
	if _, err := fmt.Sscanf(field, "delivered:%d", &tradeID); err != nil {
		return "", fmt.Errorf("unknown field %q", field)
	}

	trade, ok := l.trades[tradeID]
	if !ok {
		return "", fmt.Errorf("no trade %d on ledger", tradeID)
	}
	return strconv.FormatBool(trade.delivered), nil
}

// execute applies the method to contract state and builds the receipt.
// Called with l.mu held.
func (l *SimLedger) execute(req StageRequest, hash common.Hash) *Receipt {
	receipt := &Receipt{TxHash: hash}

	if l.revertNext[req.Method] {
		delete(l.revertNext, req.Method)
		receipt.Reverted = true
		return receipt
	}

	switch req.Method {
	case MethodCreateTrade:
		amount, err := strconv.ParseFloat(req.Args["amount"], 64)
		if err != nil || amount <= 0 {
			receipt.Reverted = true
			return receipt
		}
		tradeID := l.nextTradeID
		l.nextTradeID++
		l.trades[tradeID] = &escrowTrade{
			seller:      req.Args["seller"],
			amount:      amount,
			addressHash: req.Args["delivery_address_hash"],
		}
		receipt.Events = append(receipt.Events, Event{
			Name: "TradeCreated",
			Attributes: map[string]string{
				"trade_id": strconv.FormatInt(tradeID, 10),
				"seller":   req.Args["seller"],
			},
		})

	case MethodApprove:
		amount, err := strconv.ParseFloat(req.Args["amount"], 64)
		if err != nil || amount <= 0 {
			receipt.Reverted = true
			return receipt
		}
		l.allowances[req.Args["owner"]] = amount
		receipt.Events = append(receipt.Events, Event{
			Name:       "Approval",
			Attributes: map[string]string{"owner": req.Args["owner"], "amount": req.Args["amount"]},
		})

	case MethodDeposit:
		trade := l.tradeFor(req, receipt)
		if trade == nil {
			return receipt
		}
		buyer := req.Args["buyer"]
		if trade.deposited || l.allowances[buyer] < trade.amount {
			receipt.Reverted = true
			return receipt
		}
		l.allowances[buyer] -= trade.amount
		trade.buyer = buyer
		trade.deposited = true
		receipt.Events = append(receipt.Events, Event{
			Name:       "Deposited",
			Attributes: map[string]string{"buyer": buyer},
		})

	case MethodSubmitShipment:
		trade := l.tradeFor(req, receipt)
		if trade == nil {
			return receipt
		}
		if !trade.deposited || trade.shipped {
			receipt.Reverted = true
			return receipt
		}
		trade.shipped = true

	case MethodConfirmReceipt:
		trade := l.tradeFor(req, receipt)
		if trade == nil {
			return receipt
		}
		if !trade.delivered || trade.confirmed {
			receipt.Reverted = true
			return receipt
		}
		trade.confirmed = true

	case MethodWithdraw:
		trade := l.tradeFor(req, receipt)
		if trade == nil {
			return receipt
		}
		if !trade.confirmed || trade.withdrawn {
			receipt.Reverted = true
			return receipt
		}
		trade.withdrawn = true

	default:
		receipt.Reverted = true
	}

	return receipt
}

func (l *SimLedger) tradeFor(req StageRequest, receipt *Receipt) *escrowTrade {
	tradeID, err := strconv.ParseInt(req.Args["trade_id"], 10, 64)
	if err != nil {
		receipt.Reverted = true
		return nil
	}
	trade, ok := l.trades[tradeID]
	if !ok {
		receipt.Reverted = true
		return nil
	}
	return trade
}
