package returns

import (
	"github.com/stitchworks-erp/stitchworks-erp/internal/orders"
)

// InitiateReturnLineReq selects one order line and quantity for return.
type InitiateReturnLineReq struct {
	OrderLineID int64 `json:"order_line_id" validate:"required,gt=0"`
	Qty         int   `json:"qty" validate:"required,gt=0"`
}

// InitiateReturnRequest creates one return line per selected order line,
// atomically: either every line passes validation or none is created.
type InitiateReturnRequest struct {
	OrderID        int64                   `json:"order_id" validate:"required,gt=0"`
	Lines          []InitiateReturnLineReq `json:"lines" validate:"required,min=1,dive"`
	ReasonCategory ReasonCategory          `json:"reason_category" validate:"required"`
	ReasonDetail   string                  `json:"reason_detail,omitempty"`
	Resolution     Resolution              `json:"resolution" validate:"required,oneof=refund exchange"`
	PickupType     PickupType              `json:"pickup_type" validate:"required,oneof=arranged_by_us customer_shipped"`
	Notes          string                  `json:"notes,omitempty"`
	ExchangeSKUID  *int64                  `json:"exchange_sku_id,omitempty"`
}

// SchedulePickupRequest assigns a courier and AWB to a requested line.
type SchedulePickupRequest struct {
	Courier   string `json:"courier" validate:"required,max=80"`
	AWBNumber string `json:"awb_number" validate:"required,max=80"`
}

// PickupBatchRequest schedules pickup for several lines sharing one AWB.
type PickupBatchRequest struct {
	LineIDs   []int64 `json:"line_ids" validate:"required,min=1"`
	Courier   string  `json:"courier" validate:"required,max=80"`
	AWBNumber string  `json:"awb_number" validate:"required,max=80"`
}

// ReceiveRequest records the physically observed condition.
type ReceiveRequest struct {
	Condition Condition `json:"condition" validate:"required"`
}

// RecordQCRequest records the quality-check verdict.
type RecordQCRequest struct {
	Decision       QCResult `json:"decision" validate:"required,oneof=approved written_off"`
	Comments       string   `json:"comments,omitempty"`
	WriteOffReason string   `json:"write_off_reason,omitempty"`
}

// ProcessRefundRequest posts the refund for an approved refund line. Every
// component may override the configured suggestion.
type ProcessRefundRequest struct {
	GrossAmount    float64 `json:"gross_amount" validate:"required,gt=0"`
	Clawback       float64 `json:"clawback" validate:"gte=0"`
	ShippingFee    float64 `json:"shipping_fee" validate:"gte=0"`
	RestockFee     float64 `json:"restock_fee" validate:"gte=0"`
	OtherFees      float64 `json:"other_fees" validate:"gte=0"`
	DeductionNotes string  `json:"deduction_notes,omitempty"`
	Method         string  `json:"method" validate:"required,max=40"`
}

// UpdateNotesRequest replaces the free-text notes, permitted at any status.
type UpdateNotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// OrderForReturn is the searchOrderForReturn response: the order plus the
// derived per-line eligibility.
type OrderForReturn struct {
	Order       *orders.Order     `json:"order"`
	Eligibility []LineEligibility `json:"eligibility"`
}

// QueueItem pairs a line with its derived next action.
type QueueItem struct {
	Line         ReturnLine   `json:"line"`
	ActionNeeded ActionNeeded `json:"action_needed"`
	ManualReview bool         `json:"manual_review,omitempty"`
}

// BatchResult reports the outcome of one member of a batched transition.
type BatchResult struct {
	LineID int64  `json:"line_id"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

// RefundPreview is the suggested fee breakdown before the operator submits.
type RefundPreview struct {
	Gross       float64       `json:"gross"`
	Clawback    float64       `json:"clawback"`
	ShippingFee float64       `json:"shipping_fee"`
	RestockFee  float64       `json:"restock_fee"`
	Restocking  RestockingFee `json:"restocking_policy"`
	Net         float64       `json:"net"`
}

// Summary aggregates return activity for the reporting endpoint.
type Summary struct {
	TotalLines       int            `json:"total_lines"`
	ByStatus         map[string]int `json:"by_status"`
	ByReason         map[string]int `json:"by_reason"`
	ByQC             map[string]int `json:"by_qc"`
	RefundCount      int            `json:"refund_count"`
	RefundGrossTotal float64        `json:"refund_gross_total"`
	RefundNetTotal   float64        `json:"refund_net_total"`
}
