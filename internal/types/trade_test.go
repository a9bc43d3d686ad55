package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var allStatuses = []TradeStatus{
	StatusCreated,
	StatusDeposited,
	StatusShipping,
	StatusDelivered,
	StatusCompleted,
	StatusWithdrawn,
}

func TestStatusAdvancesOnlyForward(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			legal := from.CanAdvanceTo(to)
			if to == from+1 {
				assert.True(t, legal, "%s -> %s should be legal", from, to)
			} else {
				assert.False(t, legal, "%s -> %s should be illegal", from, to)
			}
		}
	}

	// The lifecycle has a hard end.
	assert.False(t, StatusWithdrawn.CanAdvanceTo(StatusWithdrawn+1))
}

func TestStatusNames(t *testing.T) {
	for _, s := range allStatuses {
		assert.True(t, s.Valid())
		assert.NotContains(t, s.String(), "UNKNOWN")
	}

	assert.False(t, TradeStatus(42).Valid())
	assert.Contains(t, TradeStatus(42).String(), "UNKNOWN")
}

func TestUpdateMergesOnlySetFields(t *testing.T) {
	rec := TradeRecord{
		TradeID:     1714000000000,
		Status:      StatusCreated,
		Amount:      250000,
		Seller:      "0xSeller",
		ProductName: "Vintage Camera",
	}

	newID := int64(1001)
	status := StatusDeposited
	buyer := "0xBuyer"
	address := "12 Teheran-ro, Seoul"
	hash := "0xabc"

	TradeUpdate{
		TradeID:             rec.TradeID,
		NewTradeID:          &newID,
		Status:              &status,
		Buyer:               &buyer,
		DeliveryAddress:     &address,
		DeliveryAddressHash: &hash,
	}.ApplyTo(&rec)

	assert.Equal(t, newID, rec.TradeID)
	assert.Equal(t, StatusDeposited, rec.Status)
	assert.Equal(t, buyer, rec.Buyer)
	assert.Equal(t, address, rec.DeliveryAddress)
	assert.Equal(t, hash, rec.DeliveryAddressHash)

	// Fields absent from the update are untouched.
	assert.Equal(t, float64(250000), rec.Amount)
	assert.Equal(t, "0xSeller", rec.Seller)
	assert.Equal(t, "Vintage Camera", rec.ProductName)
	assert.Empty(t, rec.TrackingNumber)
}

func TestEmptyUpdateChangesNothing(t *testing.T) {
	rec := TradeRecord{TradeID: 7, Status: StatusShipping, TrackingNumber: "6896724158888"}
	TradeUpdate{TradeID: 7}.ApplyTo(&rec)

	assert.Equal(t, int64(7), rec.TradeID)
	assert.Equal(t, StatusShipping, rec.Status)
	assert.Equal(t, "6896724158888", rec.TrackingNumber)
}
