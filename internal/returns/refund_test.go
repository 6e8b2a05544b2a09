package returns

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRefundBreakdownNet(t *testing.T) {
	b := RefundBreakdown{Gross: 1500, Clawback: 150, ShippingFee: 100, RestockFee: 50, OtherFees: 25}
	require.Equal(t, 175.0, b.TotalDeductions())
	require.Equal(t, 1175.0, b.Net())
	require.True(t, b.Positive())
}

func TestRefundBreakdownExactDecimals(t *testing.T) {
	// 0.1 + 0.2 style inputs must not drift through float arithmetic.
	b := RefundBreakdown{Gross: 0.3, Clawback: 0.1, ShippingFee: 0.2}
	require.Equal(t, 0.0, b.Net())
	require.False(t, b.Positive())
}

func TestRefundBreakdownRejectsNonPositive(t *testing.T) {
	zero := RefundBreakdown{Gross: 100, Clawback: 50, ShippingFee: 50}
	require.False(t, zero.Positive())

	negative := RefundBreakdown{Gross: 100, Clawback: 80, ShippingFee: 30}
	require.False(t, negative.Positive())
	require.Equal(t, -10.0, negative.Net())
}

func TestSuggestedFeesFlat(t *testing.T) {
	cfg := Config{ShippingFee: 80, Restocking: RestockingFee{Type: FeeFlat, Value: 120}}
	shipping, restock := SuggestedFees(cfg, 999)
	require.Equal(t, 80.0, shipping)
	require.Equal(t, 120.0, restock)
}

func TestSuggestedFeesPercent(t *testing.T) {
	cfg := Config{ShippingFee: 0, Restocking: RestockingFee{Type: FeePercent, Value: 10}}
	_, restock := SuggestedFees(cfg, 1234.56)
	require.Equal(t, 123.46, restock)
}

func TestSuggestedFeesNone(t *testing.T) {
	cfg := Config{ShippingFee: 50, Restocking: RestockingFee{Type: FeeNone}}
	shipping, restock := SuggestedFees(cfg, 1000)
	require.Equal(t, 50.0, shipping)
	require.Equal(t, 0.0, restock)
}
