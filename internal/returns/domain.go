package returns

import (
	"errors"
	"fmt"
	"time"
)

// ReturnStatus enumerates the return line lifecycle.
type ReturnStatus string

const (
	StatusRequested       ReturnStatus = "requested"
	StatusPickupScheduled ReturnStatus = "pickup_scheduled"
	StatusInTransit       ReturnStatus = "in_transit"
	StatusReceived        ReturnStatus = "received"
	StatusComplete        ReturnStatus = "complete"
	StatusCancelled       ReturnStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s ReturnStatus) Terminal() bool {
	return s == StatusComplete || s == StatusCancelled
}

// ReasonCategory enumerates why the customer is returning the item.
type ReasonCategory string

const (
	ReasonSizeIssue        ReasonCategory = "size_issue"
	ReasonQualityDefect    ReasonCategory = "quality_defect"
	ReasonWrongProduct     ReasonCategory = "wrong_product"
	ReasonColorMismatch    ReasonCategory = "color_mismatch"
	ReasonDamagedInTransit ReasonCategory = "damaged_in_transit"
	ReasonChangedMind      ReasonCategory = "changed_mind"
	ReasonOther            ReasonCategory = "other"
)

// ValidReasonCategory reports whether c is a known category.
func ValidReasonCategory(c ReasonCategory) bool {
	switch c {
	case ReasonSizeIssue, ReasonQualityDefect, ReasonWrongProduct,
		ReasonColorMismatch, ReasonDamagedInTransit, ReasonChangedMind, ReasonOther:
		return true
	}
	return false
}

// Resolution is what the customer asked for, chosen at request time.
type Resolution string

const (
	ResolutionRefund   Resolution = "refund"
	ResolutionExchange Resolution = "exchange"
	ResolutionRejected Resolution = "rejected"
)

// Condition is the physically observed state of the received item.
type Condition string

const (
	ConditionGood      Condition = "good"
	ConditionDamaged   Condition = "damaged"
	ConditionDefective Condition = "defective"
	ConditionWrongItem Condition = "wrong_item"
	ConditionUsed      Condition = "used"
)

// ValidCondition reports whether c is a known received condition.
func ValidCondition(c Condition) bool {
	switch c {
	case ConditionGood, ConditionDamaged, ConditionDefective, ConditionWrongItem, ConditionUsed:
		return true
	}
	return false
}

// QCResult is the quality-check verdict, recorded exactly once per line.
type QCResult string

const (
	QCApproved   QCResult = "approved"
	QCWrittenOff QCResult = "written_off"
)

// PickupType distinguishes who arranges the return shipment.
type PickupType string

const (
	PickupArrangedByUs    PickupType = "arranged_by_us"
	PickupCustomerShipped PickupType = "customer_shipped"
)

// ReturnLine is the unit of lifecycle tracking: one SKU position of one
// order under return. Mutated only through the state machine transitions;
// immutable once complete or cancelled except for Notes.
type ReturnLine struct {
	ID                int64        `json:"id"`
	OrderID           int64        `json:"order_id"`
	OrderLineID       int64        `json:"order_line_id"`
	SKUID             int64        `json:"sku_id"`
	ReturnBatchNumber string       `json:"return_batch_number,omitempty"`
	ReturnAWBNumber   string       `json:"return_awb_number,omitempty"`
	ReturnCourier     string       `json:"return_courier,omitempty"`
	ReturnQty         int          `json:"return_qty"`
	// UnitPrice is copied from the order line at request time and is the
	// refund basis of record; it never changes afterwards.
	UnitPrice      float64        `json:"unit_price"`
	ReasonCategory ReasonCategory `json:"reason_category"`
	ReasonDetail   string         `json:"reason_detail,omitempty"`
	Resolution     Resolution     `json:"resolution"`
	Condition      Condition      `json:"condition,omitempty"`
	QCResult       QCResult       `json:"qc_result,omitempty"`
	ReturnStatus   ReturnStatus   `json:"return_status"`
	PickupType     PickupType     `json:"pickup_type"`

	RefundGrossAmount *float64 `json:"refund_gross_amount,omitempty"`
	DiscountClawback  *float64 `json:"discount_clawback,omitempty"`
	Deductions        *float64 `json:"deductions,omitempty"`
	NetRefundAmount   *float64 `json:"net_refund_amount,omitempty"`
	RefundMethod      string   `json:"refund_method,omitempty"`

	ExchangeOrderID     *int64 `json:"exchange_order_id,omitempty"`
	ExchangeOrderNumber string `json:"exchange_order_number,omitempty"`
	ExchangeSKUID       *int64 `json:"exchange_sku_id,omitempty"`

	Notes string `json:"notes,omitempty"`

	RequestedAt time.Time  `json:"requested_at"`
	ReceivedAt  *time.Time `json:"received_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RefundRecord is the single money event of a refunded line. At most one
// non-voided record exists per line, enforced by a unique index.
type RefundRecord struct {
	ID           int64     `json:"id"`
	ReturnLineID int64     `json:"return_line_id"`
	GrossAmount  float64   `json:"gross_amount"`
	Clawback     float64   `json:"clawback"`
	ShippingFee  float64   `json:"shipping_fee"`
	RestockFee   float64   `json:"restock_fee"`
	OtherFees    float64   `json:"other_fees"`
	NetAmount    float64   `json:"net_amount"`
	Method       string    `json:"method"`
	Notes        string    `json:"notes,omitempty"`
	PostedAt     time.Time `json:"posted_at"`
	PostedByID   int64     `json:"posted_by_id"`
}

// LineEligibility is the derived, never persisted answer to "can this order
// line be selected for a new return request".
type LineEligibility struct {
	OrderLineID   int64  `json:"order_line_id"`
	Eligible      bool   `json:"eligible"`
	Reason        string `json:"reason,omitempty"`
	Warning       string `json:"warning,omitempty"`
	DaysRemaining *int   `json:"days_remaining,omitempty"`
	RemainingQty  int    `json:"remaining_qty"`
}

// Sentinel errors of the returns core.
var (
	// ErrQCAlreadyRecorded indicates a second QC decision on the same line.
	ErrQCAlreadyRecorded = errors.New("returns: qc decision already recorded")
	// ErrRefundAlreadyPosted indicates a second refund on the same line.
	ErrRefundAlreadyPosted = errors.New("returns: refund already posted")
	// ErrNonPositiveRefund indicates the computed net refund is <= 0.
	ErrNonPositiveRefund = errors.New("returns: net refund must be positive")
)

// TransitionError reports a rejected state transition with enough detail for
// an operator-facing explanation: which operation, the line's current status
// and what the operation required instead.
type TransitionError struct {
	LineID   int64
	Op       string
	Current  ReturnStatus
	Required string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("returns: %s rejected for line %d: current status %q, requires %s",
		e.Op, e.LineID, e.Current, e.Required)
}

// ValidationError aggregates per-line failures of an initiate request. The
// whole request is rejected; no line is created.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "returns: invalid request: " + joinProblems(e.Problems)
}

func joinProblems(problems []string) string {
	out := ""
	for i, p := range problems {
		if i > 0 {
			out += "; "
		}
		out += p
	}
	return out
}
