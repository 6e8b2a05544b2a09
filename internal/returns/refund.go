package returns

import "github.com/shopspring/decimal"

// RefundBreakdown carries the components of a refund before posting. The
// operator may override every field; Net is always recomputed here so the
// arithmetic is identical regardless of caller.
type RefundBreakdown struct {
	Gross       float64 `json:"gross"`
	Clawback    float64 `json:"clawback"`
	ShippingFee float64 `json:"shipping_fee"`
	RestockFee  float64 `json:"restock_fee"`
	OtherFees   float64 `json:"other_fees"`
}

// TotalDeductions is shipping + restocking + other.
func (b RefundBreakdown) TotalDeductions() float64 {
	total := decimal.NewFromFloat(b.ShippingFee).
		Add(decimal.NewFromFloat(b.RestockFee)).
		Add(decimal.NewFromFloat(b.OtherFees))
	f, _ := total.Float64()
	return f
}

// Net computes gross - clawback - total deductions. Decimal arithmetic keeps
// the identity exact for assertable money values.
func (b RefundBreakdown) Net() float64 {
	net := decimal.NewFromFloat(b.Gross).
		Sub(decimal.NewFromFloat(b.Clawback)).
		Sub(decimal.NewFromFloat(b.ShippingFee)).
		Sub(decimal.NewFromFloat(b.RestockFee)).
		Sub(decimal.NewFromFloat(b.OtherFees))
	f, _ := net.Float64()
	return f
}

// Positive reports whether the computed net refund is > 0. A refund that
// would be zero or negative is rejected, never clamped.
func (b RefundBreakdown) Positive() bool {
	return decimal.NewFromFloat(b.Net()).IsPositive()
}

// SuggestedFees returns the default shipping and restocking fee for a gross
// amount under the current return configuration. The operator can override
// both before submission.
func SuggestedFees(cfg Config, gross float64) (shippingFee, restockFee float64) {
	shippingFee = cfg.ShippingFee
	switch cfg.Restocking.Type {
	case FeeFlat:
		restockFee = cfg.Restocking.Value
	case FeePercent:
		fee := decimal.NewFromFloat(gross).
			Mul(decimal.NewFromFloat(cfg.Restocking.Value)).
			Div(decimal.NewFromInt(100))
		restockFee, _ = fee.Round(2).Float64()
	}
	return shippingFee, restockFee
}
