package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtelabs/escrow-api/internal/types"
)

var (
	allStatuses = []types.TradeStatus{
		types.StatusCreated,
		types.StatusDeposited,
		types.StatusShipping,
		types.StatusDelivered,
		types.StatusCompleted,
		types.StatusWithdrawn,
	}
	bothRoles = []types.Role{types.RoleBuyer, types.RoleSeller}
)

func TestScreenTableIsTotal(t *testing.T) {
	for _, status := range allStatuses {
		for _, role := range bothRoles {
			screen, message := ScreenFor(status, role)
			assert.NotEqual(t, "unknown", screen.String(),
				"(%s, %s) has no screen", status, role)
			assert.NotEmpty(t, message, "(%s, %s) has no message", status, role)
		}
	}
}

func TestShippingScreenSharedButMessagesDiffer(t *testing.T) {
	buyerScreen, buyerMsg := ScreenFor(types.StatusShipping, types.RoleBuyer)
	sellerScreen, sellerMsg := ScreenFor(types.StatusShipping, types.RoleSeller)

	assert.Equal(t, ScreenShippingInProgress, buyerScreen)
	assert.Equal(t, ScreenShippingInProgress, sellerScreen)
	assert.NotEqual(t, buyerMsg, sellerMsg)
}

func TestEmptyCollectionViews(t *testing.T) {
	sellerView := Project(types.RoleSeller, "0xSeller", nil)
	assert.Equal(t, ScreenSellerRegistration, sellerView.Screen)
	assert.Nil(t, sellerView.Active)

	buyerView := Project(types.RoleBuyer, "0xBuyer", nil)
	assert.Equal(t, ScreenBuyerListing, buyerView.Screen)
	assert.Empty(t, buyerView.Listings)
}

func TestRegistrationVisibleToBothParties(t *testing.T) {
	records := []types.TradeRecord{{
		TradeID:     1,
		Status:      types.StatusCreated,
		Amount:      250000,
		Seller:      "0xSeller",
		ProductName: "Vintage Camera",
	}}

	sellerView := Project(types.RoleSeller, "0xSeller", records)
	require.Equal(t, ScreenSellerDashboard, sellerView.Screen)
	require.Len(t, sellerView.Dashboard, 1)
	assert.Equal(t, "Vintage Camera", sellerView.Dashboard[0].ProductName)
	assert.Equal(t, float64(250000), sellerView.Dashboard[0].Amount)

	buyerView := Project(types.RoleBuyer, "0xBuyer", records)
	require.Equal(t, ScreenBuyerListing, buyerView.Screen)
	require.Len(t, buyerView.Listings, 1)
	assert.Equal(t, "Vintage Camera", buyerView.Listings[0].ProductName)
}

func TestActiveRecordSelection(t *testing.T) {
	records := []types.TradeRecord{
		{TradeID: 1, Status: types.StatusCreated, Seller: "0xSeller"},
		{TradeID: 2, Status: types.StatusWithdrawn, Seller: "0xSeller", Buyer: "0xBuyer"},
		{TradeID: 3, Status: types.StatusDeposited, Seller: "0xSeller", Buyer: "0xBuyer"},
		{TradeID: 4, Status: types.StatusShipping, Seller: "0xSeller", Buyer: "0xBuyer"},
	}

	view := Project(types.RoleSeller, "0xSeller", records)
	require.NotNil(t, view.Active)
	assert.Equal(t, int64(3), view.Active.TradeID, "first mid-lifecycle record wins")
	assert.Equal(t, ScreenSellerFulfillmentEntry, view.Screen)
	assert.Len(t, view.History, 1)
}

func TestBuyerRelevanceFilter(t *testing.T) {
	records := []types.TradeRecord{
		{TradeID: 1, Status: types.StatusShipping, Seller: "0xSeller", Buyer: "0xSomeoneElse"},
	}

	// Another buyer's in-flight trade is invisible to this viewer.
	view := Project(types.RoleBuyer, "0xBuyer", records)
	assert.Nil(t, view.Active)
	assert.Equal(t, ScreenBuyerListing, view.Screen)

	// The participating buyer sees it.
	view = Project(types.RoleBuyer, "0xSomeoneElse", records)
	require.NotNil(t, view.Active)
	assert.Equal(t, ScreenShippingInProgress, view.Screen)
}

func TestProjectionPerStatus(t *testing.T) {
	cases := []struct {
		status types.TradeStatus
		buyer  Screen
		seller Screen
	}{
		{types.StatusDeposited, ScreenBuyerAwaitingFulfillment, ScreenSellerFulfillmentEntry},
		{types.StatusShipping, ScreenShippingInProgress, ScreenShippingInProgress},
		{types.StatusDelivered, ScreenBuyerConfirmReceipt, ScreenSellerAwaitingConfirmation},
		{types.StatusCompleted, ScreenBuyerAwaitingSettlement, ScreenSellerWithdraw},
	}

	for _, tc := range cases {
		records := []types.TradeRecord{{
			TradeID: 1, Status: tc.status, Seller: "0xSeller", Buyer: "0xBuyer",
		}}

		buyerView := Project(types.RoleBuyer, "0xBuyer", records)
		assert.Equal(t, tc.buyer, buyerView.Screen, "buyer at %s", tc.status)

		sellerView := Project(types.RoleSeller, "0xSeller", records)
		assert.Equal(t, tc.seller, sellerView.Screen, "seller at %s", tc.status)
	}
}

func TestWithdrawnTradeMovesToHistory(t *testing.T) {
	records := []types.TradeRecord{{
		TradeID: 1, Status: types.StatusWithdrawn, Seller: "0xSeller", Buyer: "0xBuyer",
	}}

	view := Project(types.RoleBuyer, "0xBuyer", records)
	assert.Nil(t, view.Active)
	assert.Equal(t, ScreenBuyerListing, view.Screen)
	require.Len(t, view.History, 1)

	_, ok := LegalAction(view)
	assert.False(t, ok, "closed trades offer no actions")
}
