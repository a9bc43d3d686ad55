package orchestrator

import (
	"context"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/dtelabs/escrow-api/internal/chain"
	"github.com/dtelabs/escrow-api/internal/types"
)

// HashDeliveryAddress computes the keccak-256 commitment stored on the
// ledger in place of the plaintext address.
func HashDeliveryAddress(address string) string {
	return crypto.Keccak256Hash([]byte(address)).Hex()
}

// InitiatePurchase runs the buyer's deposit pipeline: create the trade on
// the ledger, approve the escrow allowance, deposit the amount. The ledger
// mints the authoritative trade ID during the first stage; the store
// record's placeholder ID is rewritten to it in the single update applied
// after the final stage confirms.
func (o *Orchestrator) InitiatePurchase(ctx context.Context, trade types.TradeRecord, buyer, deliveryAddress string) error {
	addressHash := HashDeliveryAddress(deliveryAddress)
	amount := strconv.FormatFloat(trade.Amount, 'f', -1, 64)

	var ledgerID int64

	stages := []Stage{
		{
			Description: "create trade on ledger",
			Request: func() chain.StageRequest {
				return chain.StageRequest{
					Method: chain.MethodCreateTrade,
					Args: map[string]string{
						"seller":                trade.Seller,
						"amount":                amount,
						"delivery_address_hash": addressHash,
					},
				}
			},
			OnReceipt: func(receipt *chain.Receipt) error {
				raw, ok := receipt.EventAttribute("TradeCreated", "trade_id")
				if !ok {
					return &PreconditionUnmetError{Stage: "create trade on ledger", Missing: "TradeCreated event"}
				}
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil {
					return &PreconditionUnmetError{Stage: "create trade on ledger", Missing: "parseable trade_id attribute"}
				}
				ledgerID = id
				return nil
			},
		},
		{
			Description: "approve escrow allowance",
			Request: func() chain.StageRequest {
				return chain.StageRequest{
					Method: chain.MethodApprove,
					Args:   map[string]string{"owner": buyer, "amount": amount},
				}
			},
		},
		{
			Description: "deposit into escrow",
			Request: func() chain.StageRequest {
				return chain.StageRequest{
					Method: chain.MethodDeposit,
					Args: map[string]string{
						"trade_id": strconv.FormatInt(ledgerID, 10),
						"buyer":    buyer,
					},
				}
			},
		},
	}

	return o.run(ctx, "initiate_purchase", stages, func(ctx context.Context) error {
		status := types.StatusDeposited
		_, err := o.sync.Update(ctx, types.TradeUpdate{
			TradeID:             trade.TradeID,
			NewTradeID:          &ledgerID,
			Status:              &status,
			Buyer:               &buyer,
			DeliveryAddress:     &deliveryAddress,
			DeliveryAddressHash: &addressHash,
		})
		return err
	})
}

// SubmitTracking runs the seller's fulfillment action: record the shipment
// on the ledger, mark the trade Shipping with its tracking number, then
// watch the delivery oracle in the background so the record moves to
// Delivered without any further seller action.
func (o *Orchestrator) SubmitTracking(ctx context.Context, trade types.TradeRecord, trackingNumber string) error {
	stages := []Stage{
		{
			Description: "submit shipment tracking",
			Request: func() chain.StageRequest {
				return chain.StageRequest{
					Method: chain.MethodSubmitShipment,
					Args: map[string]string{
						"trade_id":        strconv.FormatInt(trade.TradeID, 10),
						"tracking_number": trackingNumber,
					},
				}
			},
		},
	}

	err := o.run(ctx, "submit_tracking", stages, func(ctx context.Context) error {
		status := types.StatusShipping
		_, err := o.sync.Update(ctx, types.TradeUpdate{
			TradeID:        trade.TradeID,
			Status:         &status,
			TrackingNumber: &trackingNumber,
		})
		return err
	})
	if err != nil {
		return err
	}

	go o.WatchDelivery(ctx, trade.TradeID)
	return nil
}

// WatchDelivery polls the delivery oracle's field for the trade until it
// reports delivered, then advances the record to Delivered. Returns when
// the transition has been applied or ctx is cancelled.
func (o *Orchestrator) WatchDelivery(ctx context.Context, tradeID int64) {
	logger := o.logger.With().Int64("trade_id", tradeID).Str("watcher", "delivery").Logger()
	logger.Info().Msg("watching delivery oracle")

	ticker := time.NewTicker(o.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("delivery watcher cancelled")
			return
		case <-ticker.C:
			value, err := o.provider.ReadField(ctx, "delivered:"+strconv.FormatInt(tradeID, 10))
			if err != nil {
				logger.Debug().Err(err).Msg("oracle read failed, retrying next tick")
				continue
			}
			if value != "true" {
				continue
			}

			status := types.StatusDelivered
			if _, err := o.sync.Update(ctx, types.TradeUpdate{TradeID: tradeID, Status: &status}); err != nil {
				logger.Error().Err(err).Msg("failed to reflect delivery, retrying next tick")
				continue
			}
			logger.Info().Msg("delivery confirmed by oracle")
			return
		}
	}
}

// ConfirmDelivery runs the buyer's receipt confirmation and completes the
// trade.
func (o *Orchestrator) ConfirmDelivery(ctx context.Context, trade types.TradeRecord) error {
	stages := []Stage{
		{
			Description: "confirm receipt",
			Request: func() chain.StageRequest {
				return chain.StageRequest{
					Method: chain.MethodConfirmReceipt,
					Args:   map[string]string{"trade_id": strconv.FormatInt(trade.TradeID, 10)},
				}
			},
		},
	}

	return o.run(ctx, "confirm_delivery", stages, func(ctx context.Context) error {
		status := types.StatusCompleted
		_, err := o.sync.Update(ctx, types.TradeUpdate{TradeID: trade.TradeID, Status: &status})
		return err
	})
}

// Withdraw runs the seller's final settlement withdrawal.
func (o *Orchestrator) Withdraw(ctx context.Context, trade types.TradeRecord) error {
	stages := []Stage{
		{
			Description: "withdraw escrowed amount",
			Request: func() chain.StageRequest {
				return chain.StageRequest{
					Method: chain.MethodWithdraw,
					Args:   map[string]string{"trade_id": strconv.FormatInt(trade.TradeID, 10)},
				}
			},
		},
	}

	return o.run(ctx, "withdraw", stages, func(ctx context.Context) error {
		status := types.StatusWithdrawn
		_, err := o.sync.Update(ctx, types.TradeUpdate{TradeID: trade.TradeID, Status: &status})
		return err
	})
}
