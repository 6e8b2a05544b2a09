package orders

import "time"

// OrderStatus mirrors the storefront order lifecycle. Only the states the
// returns core cares about are modelled here.
type OrderStatus string

const (
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	// OrderStatusExchange marks orders created to fulfil an exchange.
	OrderStatusExchange OrderStatus = "EXCHANGE"
)

// Order is a storefront order as seen by the returns core.
type Order struct {
	ID          int64       `json:"id"`
	OrderNumber string      `json:"order_number"`
	CustomerID  int64       `json:"customer_id"`
	Status      OrderStatus `json:"status"`
	OrderDate   time.Time   `json:"order_date"`
	ShippedAt   *time.Time  `json:"shipped_at,omitempty"`
	Lines       []OrderLine `json:"lines,omitempty"`
}

// OrderLine is one SKU position on an order. UnitPrice here is the refund
// basis snapshotted into return lines at request time.
type OrderLine struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"order_id"`
	SKUID     int64   `json:"sku_id"`
	SKUCode   string  `json:"sku_code"`
	Qty       int     `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

// CreateExchangeInput describes the replacement order created for an
// exchange resolution.
type CreateExchangeInput struct {
	CustomerID    int64
	SourceOrderID int64
	SourceLineID  int64
	ExchangeSKUID int64
	Qty           int
	CreatedByID   int64
}

// ExchangeOrder is the created replacement order reference.
type ExchangeOrder struct {
	ID          int64  `json:"id"`
	OrderNumber string `json:"order_number"`
}
