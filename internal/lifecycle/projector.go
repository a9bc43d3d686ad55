// Package lifecycle maps a viewer's role and the shared trade collection to
// the single screen that viewer should see, and to the one action that
// screen may legally offer. Everything here is pure and side-effect free; it
// is safe to call on every poll tick.
package lifecycle

import (
	"github.com/dtelabs/escrow-api/internal/types"
)

// Screen identifies which view a viewer is shown.
type Screen int

const (
	// Screens shown when no trade is mid-lifecycle.
	ScreenSellerRegistration Screen = iota
	ScreenSellerDashboard
	ScreenBuyerListing

	// Screens bound to the active trade, keyed by (status, role).
	ScreenSellerAwaitingDeposit
	ScreenBuyerDepositEntry
	ScreenSellerFulfillmentEntry
	ScreenBuyerAwaitingFulfillment
	ScreenShippingInProgress
	ScreenBuyerConfirmReceipt
	ScreenSellerAwaitingConfirmation
	ScreenSellerWithdraw
	ScreenBuyerAwaitingSettlement
	ScreenBuyerCompletedHistory
	ScreenSellerTradeClosed
)

var screenNames = map[Screen]string{
	ScreenSellerRegistration:         "seller_registration",
	ScreenSellerDashboard:            "seller_dashboard",
	ScreenBuyerListing:               "buyer_listing",
	ScreenSellerAwaitingDeposit:      "seller_awaiting_deposit",
	ScreenBuyerDepositEntry:          "buyer_deposit_entry",
	ScreenSellerFulfillmentEntry:     "seller_fulfillment_entry",
	ScreenBuyerAwaitingFulfillment:   "buyer_awaiting_fulfillment",
	ScreenShippingInProgress:         "shipping_in_progress",
	ScreenBuyerConfirmReceipt:        "buyer_confirm_receipt",
	ScreenSellerAwaitingConfirmation: "seller_awaiting_confirmation",
	ScreenSellerWithdraw:             "seller_withdraw",
	ScreenBuyerAwaitingSettlement:    "buyer_awaiting_settlement",
	ScreenBuyerCompletedHistory:      "buyer_completed_history",
	ScreenSellerTradeClosed:          "seller_trade_closed",
}

func (s Screen) String() string {
	if name, ok := screenNames[s]; ok {
		return name
	}
	return "unknown"
}

// ViewModel is what the display layer receives: which screen to render and
// the data backing it.
type ViewModel struct {
	Role    types.Role
	Screen  Screen
	Message string

	// Active is the one record currently mid-lifecycle for this viewer.
	Active *types.TradeRecord
	// Dashboard holds a seller's own not-yet-purchased registrations.
	Dashboard []types.TradeRecord
	// Listings holds the open inventory a buyer can deposit against.
	Listings []types.TradeRecord
	// History holds the viewer's fully closed trades.
	History []types.TradeRecord
}

type screenSpec struct {
	screen  Screen
	message string
}

// screenTable maps every (status, role) pair to a screen. The table must be
// total: a pair missing here is a contract violation, and the projector
// tests enumerate all of them.
var screenTable = map[types.TradeStatus]map[types.Role]screenSpec{
	types.StatusCreated: {
		types.RoleBuyer:  {ScreenBuyerDepositEntry, "Review the trade and deposit the amount into escrow."},
		types.RoleSeller: {ScreenSellerAwaitingDeposit, "Waiting for the buyer to deposit into escrow."},
	},
	types.StatusDeposited: {
		types.RoleBuyer:  {ScreenBuyerAwaitingFulfillment, "The seller is preparing the shipment and will enter a tracking number."},
		types.RoleSeller: {ScreenSellerFulfillmentEntry, "Deposit confirmed. Ship the product and submit the tracking number."},
	},
	types.StatusShipping: {
		types.RoleBuyer:  {ScreenShippingInProgress, "Your product is on its way. Delivery is being tracked."},
		types.RoleSeller: {ScreenShippingInProgress, "Tracking number confirmed. Settlement follows automatically on delivery."},
	},
	types.StatusDelivered: {
		types.RoleBuyer:  {ScreenBuyerConfirmReceipt, "Delivered. Confirm receipt to complete the trade."},
		types.RoleSeller: {ScreenSellerAwaitingConfirmation, "Waiting for the buyer to confirm receipt."},
	},
	types.StatusCompleted: {
		types.RoleBuyer:  {ScreenBuyerAwaitingSettlement, "The seller is withdrawing the escrowed amount."},
		types.RoleSeller: {ScreenSellerWithdraw, "Receipt confirmed. Withdraw the escrowed amount."},
	},
	types.StatusWithdrawn: {
		types.RoleBuyer:  {ScreenBuyerCompletedHistory, "Trade complete. The purchase settled safely."},
		types.RoleSeller: {ScreenSellerTradeClosed, "Trade complete. The amount settled to your wallet."},
	},
}

// ScreenFor resolves the screen for an active record's status as seen by
// role.
func ScreenFor(status types.TradeStatus, role types.Role) (Screen, string) {
	spec := screenTable[status][role]
	return spec.screen, spec.message
}

// Project computes the view for one viewer from the full collection. The
// active record is the first one relevant to the viewer whose status is
// neither Created nor Withdrawn; without one the viewer falls back to the
// registration, dashboard or listing screen.
func Project(role types.Role, identity string, records []types.TradeRecord) ViewModel {
	view := ViewModel{Role: role}

	for i := range records {
		rec := records[i]
		if !relevantTo(role, identity, rec) {
			continue
		}
		if rec.Status == types.StatusWithdrawn {
			view.History = append(view.History, rec)
			continue
		}
		if rec.Status != types.StatusCreated && view.Active == nil {
			active := rec
			view.Active = &active
		}
	}

	if view.Active != nil {
		view.Screen, view.Message = ScreenFor(view.Active.Status, role)
		return view
	}

	switch role {
	case types.RoleSeller:
		for _, rec := range records {
			if rec.Seller == identity && rec.Status == types.StatusCreated {
				view.Dashboard = append(view.Dashboard, rec)
			}
		}
		if len(view.Dashboard) > 0 {
			view.Screen = ScreenSellerDashboard
			view.Message = "Your open registrations."
		} else {
			view.Screen = ScreenSellerRegistration
			view.Message = "Register a product to start a trade."
		}
	default:
		// A buyer browses the whole collection's open inventory.
		for _, rec := range records {
			if rec.Status == types.StatusCreated {
				view.Listings = append(view.Listings, rec)
			}
		}
		view.Screen = ScreenBuyerListing
		view.Message = "Available products."
	}

	return view
}

func relevantTo(role types.Role, identity string, rec types.TradeRecord) bool {
	if role == types.RoleSeller {
		return rec.Seller == identity
	}
	return rec.Buyer == identity || rec.Buyer == ""
}
