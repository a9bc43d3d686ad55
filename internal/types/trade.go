package types

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// TradeStatus is the lifecycle position of a trade record. Statuses only ever
// advance; there is no transition that skips a stage or moves backward.
type TradeStatus int

const (
	StatusCreated TradeStatus = iota
	StatusDeposited
	StatusShipping
	StatusDelivered
	StatusCompleted
	StatusWithdrawn
)

var statusNames = map[TradeStatus]string{
	StatusCreated:   "CREATED",
	StatusDeposited: "DEPOSITED",
	StatusShipping:  "SHIPPING",
	StatusDelivered: "DELIVERED",
	StatusCompleted: "COMPLETED",
	StatusWithdrawn: "WITHDRAWN",
}

func (s TradeStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(s))
}

// Valid reports whether s is one of the defined lifecycle statuses.
func (s TradeStatus) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// CanAdvanceTo reports whether moving from s to next is a legal single-step
// transition. The lifecycle is a straight line, so the only legal move is to
// the immediate successor.
func (s TradeStatus) CanAdvanceTo(next TradeStatus) bool {
	return next.Valid() && next == s+1
}

// Role identifies which side of a trade a viewer is on.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
)

// TradeRecord is the canonical unit of shared state. One record per escrow
// trade; both viewers converge on it through the record store.
type TradeRecord struct {
	gorm.Model          `json:"-"`
	TradeID             int64       `gorm:"uniqueIndex" json:"id"`
	Status              TradeStatus `json:"status"`
	Amount              float64     `json:"amount"`
	Seller              string      `json:"seller"`
	Buyer               string      `json:"buyer"`
	ProductName         string      `json:"product_name"`
	ProductImageURL     string      `json:"product_image_url"`
	DeliveryAddress     string      `json:"delivery_address"`
	DeliveryAddressHash string      `json:"delivery_address_hash"`
	TrackingNumber      string      `json:"tracking_number"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// NewTrade is the CREATE payload. The store mints the trade ID; amount,
// seller and product metadata are immutable after creation.
type NewTrade struct {
	Seller          string  `json:"seller" binding:"required"`
	Amount          float64 `json:"amount" binding:"required,gt=0"`
	ProductName     string  `json:"product_name" binding:"required"`
	ProductImageURL string  `json:"product_image_url"`
}

// TradeUpdate is the UPDATE payload: a partial record keyed by trade ID.
// Only non-nil fields are merged onto the stored record. NewTradeID carries
// the one-shot identity rewrite performed when the ledger mints the
// authoritative trade ID during the purchase pipeline.
type TradeUpdate struct {
	TradeID             int64        `json:"id" binding:"required"`
	NewTradeID          *int64       `json:"new_id,omitempty"`
	Status              *TradeStatus `json:"status,omitempty"`
	Buyer               *string      `json:"buyer,omitempty"`
	DeliveryAddress     *string      `json:"delivery_address,omitempty"`
	DeliveryAddressHash *string      `json:"delivery_address_hash,omitempty"`
	TrackingNumber      *string      `json:"tracking_number,omitempty"`
}

// ApplyTo merges the update's set fields onto rec. Fields absent from the
// update are left untouched, which is what keeps immutable fields immutable.
func (u TradeUpdate) ApplyTo(rec *TradeRecord) {
	if u.NewTradeID != nil {
		rec.TradeID = *u.NewTradeID
	}
	if u.Status != nil {
		rec.Status = *u.Status
	}
	if u.Buyer != nil {
		rec.Buyer = *u.Buyer
	}
	if u.DeliveryAddress != nil {
		rec.DeliveryAddress = *u.DeliveryAddress
	}
	if u.DeliveryAddressHash != nil {
		rec.DeliveryAddressHash = *u.DeliveryAddressHash
	}
	if u.TrackingNumber != nil {
		rec.TrackingNumber = *u.TrackingNumber
	}
	rec.UpdatedAt = time.Now()
}
