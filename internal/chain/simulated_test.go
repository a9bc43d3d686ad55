package chain

import (
	"context"
	"strconv"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func submitAndConfirm(t *testing.T, ledger *SimLedger, req StageRequest) *Receipt {
	t.Helper()

	handle, err := ledger.Submit(context.Background(), req)
	require.NoError(t, err)

	receipt, err := ledger.AwaitConfirmation(context.Background(), handle)
	require.NoError(t, err)
	return receipt
}

func createTrade(t *testing.T, ledger *SimLedger, seller string, amount float64) int64 {
	t.Helper()

	receipt := submitAndConfirm(t, ledger, StageRequest{
		Method: MethodCreateTrade,
		Args: map[string]string{
			"seller":                seller,
			"amount":                strconv.FormatFloat(amount, 'f', -1, 64),
			"delivery_address_hash": "0xhash",
		},
	})
	require.False(t, receipt.Reverted)

	raw, ok := receipt.EventAttribute("TradeCreated", "trade_id")
	require.True(t, ok, "creation must emit the trade ID")
	tradeID, err := strconv.ParseInt(raw, 10, 64)
	require.NoError(t, err)
	return tradeID
}

func depositFor(t *testing.T, ledger *SimLedger, tradeID int64, buyer string, amount float64) *Receipt {
	t.Helper()

	approval := submitAndConfirm(t, ledger, StageRequest{
		Method: MethodApprove,
		Args: map[string]string{
			"owner":  buyer,
			"amount": strconv.FormatFloat(amount, 'f', -1, 64),
		},
	})
	require.False(t, approval.Reverted)

	return submitAndConfirm(t, ledger, StageRequest{
		Method: MethodDeposit,
		Args: map[string]string{
			"trade_id": strconv.FormatInt(tradeID, 10),
			"buyer":    buyer,
		},
	})
}

func TestCreateTradeMintsSequentialIDs(t *testing.T) {
	ledger := NewSimLedger()

	first := createTrade(t, ledger, "0xSeller", 250000)
	second := createTrade(t, ledger, "0xSeller", 100)

	assert.GreaterOrEqual(t, first, int64(1000))
	assert.Equal(t, first+1, second)
}

func TestDepositRequiresAllowance(t *testing.T) {
	ledger := NewSimLedger()
	tradeID := createTrade(t, ledger, "0xSeller", 250000)

	// Without an approval the escrow cannot pull the funds.
	receipt := submitAndConfirm(t, ledger, StageRequest{
		Method: MethodDeposit,
		Args: map[string]string{
			"trade_id": strconv.FormatInt(tradeID, 10),
			"buyer":    "0xBuyer",
		},
	})
	assert.True(t, receipt.Reverted)

	receipt = depositFor(t, ledger, tradeID, "0xBuyer", 250000)
	assert.False(t, receipt.Reverted)

	// A second deposit against the same trade reverts.
	receipt = depositFor(t, ledger, tradeID, "0xBuyer", 250000)
	assert.True(t, receipt.Reverted)
}

func TestFullEscrowSequence(t *testing.T) {
	ledger := NewSimLedger()
	tradeID := createTrade(t, ledger, "0xSeller", 250000)
	tradeArg := map[string]string{"trade_id": strconv.FormatInt(tradeID, 10)}

	require.False(t, depositFor(t, ledger, tradeID, "0xBuyer", 250000).Reverted)

	receipt := submitAndConfirm(t, ledger, StageRequest{Method: MethodSubmitShipment, Args: tradeArg})
	assert.False(t, receipt.Reverted)

	// Receipt confirmation is gated on the delivery oracle.
	receipt = submitAndConfirm(t, ledger, StageRequest{Method: MethodConfirmReceipt, Args: tradeArg})
	assert.True(t, receipt.Reverted)

	ledger.MarkDelivered(tradeID)

	delivered, err := ledger.ReadField(context.Background(), "delivered:"+strconv.FormatInt(tradeID, 10))
	require.NoError(t, err)
	assert.Equal(t, "true", delivered)

	receipt = submitAndConfirm(t, ledger, StageRequest{Method: MethodConfirmReceipt, Args: tradeArg})
	assert.False(t, receipt.Reverted)

	receipt = submitAndConfirm(t, ledger, StageRequest{Method: MethodWithdraw, Args: tradeArg})
	assert.False(t, receipt.Reverted)

	// Withdrawal is one-shot.
	receipt = submitAndConfirm(t, ledger, StageRequest{Method: MethodWithdraw, Args: tradeArg})
	assert.True(t, receipt.Reverted)
}

func TestWithdrawBeforeConfirmationReverts(t *testing.T) {
	ledger := NewSimLedger()
	tradeID := createTrade(t, ledger, "0xSeller", 100)
	tradeArg := map[string]string{"trade_id": strconv.FormatInt(tradeID, 10)}

	require.False(t, depositFor(t, ledger, tradeID, "0xBuyer", 100).Reverted)

	receipt := submitAndConfirm(t, ledger, StageRequest{Method: MethodWithdraw, Args: tradeArg})
	assert.True(t, receipt.Reverted)
}

func TestDeclineNextSignature(t *testing.T) {
	ledger := NewSimLedger()
	ledger.DeclineNextSignature()

	_, err := ledger.Submit(context.Background(), StageRequest{Method: MethodCreateTrade})
	var declined *UserDeclinedError
	require.ErrorAs(t, err, &declined)
	assert.Equal(t, MethodCreateTrade, declined.Method)

	// The decline is one-shot: the retry goes through.
	createTrade(t, ledger, "0xSeller", 100)
}

func TestRevertNextForcesRevert(t *testing.T) {
	ledger := NewSimLedger()
	tradeID := createTrade(t, ledger, "0xSeller", 100)

	ledger.RevertNext(MethodDeposit)
	receipt := depositFor(t, ledger, tradeID, "0xBuyer", 100)
	assert.True(t, receipt.Reverted)
	assert.Empty(t, receipt.Events)

	// Only the flagged submission reverts.
	receipt = depositFor(t, ledger, tradeID, "0xBuyer", 100)
	assert.False(t, receipt.Reverted)
}

func TestAwaitConfirmationUnknownTx(t *testing.T) {
	ledger := NewSimLedger()

	_, err := ledger.AwaitConfirmation(context.Background(), TxHandle{
		Hash: common.HexToHash("0xdeadbeef"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transaction")
}

func TestReadFieldUnknownTrade(t *testing.T) {
	ledger := NewSimLedger()

	_, err := ledger.ReadField(context.Background(), "delivered:9999")
	assert.Error(t, err)

	_, err = ledger.ReadField(context.Background(), "balance:1")
	assert.Error(t, err)
}

func TestUnknownMethodReverts(t *testing.T) {
	ledger := NewSimLedger()

	receipt := submitAndConfirm(t, ledger, StageRequest{Method: "selfDestruct"})
	assert.True(t, receipt.Reverted)
}
