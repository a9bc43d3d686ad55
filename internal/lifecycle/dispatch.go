package lifecycle

import (
	"github.com/dtelabs/escrow-api/internal/types"
)

// ActionKind is one of the four legal record-bound actions.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionDeposit
	ActionSubmitTracking
	ActionConfirmDelivery
	ActionWithdraw
)

var actionNames = map[ActionKind]string{
	ActionNone:            "none",
	ActionDeposit:         "deposit",
	ActionSubmitTracking:  "submit_tracking",
	ActionConfirmDelivery: "confirm_delivery",
	ActionWithdraw:        "withdraw",
}

func (k ActionKind) String() string {
	if name, ok := actionNames[k]; ok {
		return name
	}
	return "unknown"
}

// Action is the one callable operation a view may offer, bound to a record.
type Action struct {
	Kind  ActionKind
	Trade types.TradeRecord
}

// ActionFor is the role-gating table: only one role can ever move a trade
// out of a given status, so every (status, role) pair yields at most one
// action kind.
func ActionFor(status types.TradeStatus, role types.Role) (ActionKind, bool) {
	switch {
	case status == types.StatusCreated && role == types.RoleBuyer:
		return ActionDeposit, true
	case status == types.StatusDeposited && role == types.RoleSeller:
		return ActionSubmitTracking, true
	case status == types.StatusDelivered && role == types.RoleBuyer:
		return ActionConfirmDelivery, true
	case status == types.StatusCompleted && role == types.RoleSeller:
		return ActionWithdraw, true
	}
	return ActionNone, false
}

// LegalAction derives the single action a projected view may surface, or
// none when the view is purely informational. Role gating is enforced here
// by construction: an action whose precondition does not hold is never
// offered in the first place.
func LegalAction(view ViewModel) (Action, bool) {
	if view.Active != nil {
		kind, ok := ActionFor(view.Active.Status, view.Role)
		if !ok {
			return Action{}, false
		}
		return Action{Kind: kind, Trade: *view.Active}, true
	}

	// A buyer browsing the listing may deposit against the first open record.
	if view.Screen == ScreenBuyerListing && len(view.Listings) > 0 {
		return Action{Kind: ActionDeposit, Trade: view.Listings[0]}, true
	}

	return Action{}, false
}
