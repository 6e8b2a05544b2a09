package ledger

import (
	"errors"
	"time"
)

// TxnType enumerates supported stock movement directions.
type TxnType string

const (
	// TxnTypeInward represents stock entering the warehouse.
	TxnTypeInward TxnType = "IN"
	// TxnTypeOutward represents stock leaving the warehouse.
	TxnTypeOutward TxnType = "OUT"
)

// Reason enumerates why a ledger entry was posted.
type Reason string

const (
	// ReasonReturnReceived marks stock re-entering from an approved return.
	ReasonReturnReceived Reason = "return_received"
	// ReasonProduction marks stock produced by a completed batch.
	ReasonProduction Reason = "production"
	// ReasonOrderAllocation marks stock allocated to an outbound order.
	ReasonOrderAllocation Reason = "order_allocation"
	// ReasonAdjustment marks a manual stock correction.
	ReasonAdjustment Reason = "adjustment"
)

// Entry is one append-only ledger row. Qty is always positive; TxnType
// encodes the sign. Entries are never mutated or deleted after creation,
// so the balance of a SKU is always the signed sum of its entries.
type Entry struct {
	ID          int64     `json:"id"`
	SKUID       int64     `json:"sku_id"`
	TxnType     TxnType   `json:"txn_type"`
	Qty         int       `json:"qty"`
	Reason      Reason    `json:"reason"`
	ReferenceID string    `json:"reference_id"`
	PostedAt    time.Time `json:"posted_at"`
	CreatedByID int64     `json:"created_by_id"`
}

// Balance is the derived stock position of a SKU.
type Balance struct {
	SKUID int64 `json:"sku_id"`
	Qty   int   `json:"qty"`
}

// PostInput describes a manual ledger posting request.
type PostInput struct {
	SKUID       int64
	TxnType     TxnType
	Qty         int
	Reason      Reason
	ReferenceID string
	ActorID     int64
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	SKUID  int64
	Reason Reason
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// ErrInvalidQuantity indicates qty must be a positive integer.
var ErrInvalidQuantity = errors.New("ledger: quantity must be positive")

// ErrInvalidTxnType indicates an unknown movement direction.
var ErrInvalidTxnType = errors.New("ledger: txn type must be IN or OUT")

// ErrInvalidReason indicates an unknown posting reason.
var ErrInvalidReason = errors.New("ledger: unknown posting reason")

// Signed returns the quantity with direction applied.
func (e Entry) Signed() int {
	if e.TxnType == TxnTypeOutward {
		return -e.Qty
	}
	return e.Qty
}

// ValidReason reports whether r is one of the known posting reasons.
func ValidReason(r Reason) bool {
	switch r {
	case ReasonReturnReceived, ReasonProduction, ReasonOrderAllocation, ReasonAdjustment:
		return true
	}
	return false
}
