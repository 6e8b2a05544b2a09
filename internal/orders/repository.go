package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
)

// Repository reads storefront orders and creates exchange orders.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByNumber loads an order with its lines by order number.
func (r *Repository) GetByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	if r == nil {
		return nil, errors.New("orders repository not initialised")
	}
	order := &Order{}
	var shippedAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_number, customer_id, status, order_date, shipped_at
		FROM orders WHERE order_number = $1`, orderNumber,
	).Scan(&order.ID, &order.OrderNumber, &order.CustomerID, &order.Status, &order.OrderDate, &shippedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("orders: get by number: %w", err)
	}
	order.ShippedAt = shippedAt

	lines, err := r.linesForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

// GetByID loads an order with its lines by id.
func (r *Repository) GetByID(ctx context.Context, id int64) (*Order, error) {
	if r == nil {
		return nil, errors.New("orders repository not initialised")
	}
	order := &Order{}
	var shippedAt *time.Time
	err := r.pool.QueryRow(ctx, `
		SELECT id, order_number, customer_id, status, order_date, shipped_at
		FROM orders WHERE id = $1`, id,
	).Scan(&order.ID, &order.OrderNumber, &order.CustomerID, &order.Status, &order.OrderDate, &shippedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("orders: get by id: %w", err)
	}
	order.ShippedAt = shippedAt

	lines, err := r.linesForOrder(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return order, nil
}

// GetLine loads a single order line.
func (r *Repository) GetLine(ctx context.Context, lineID int64) (*OrderLine, error) {
	if r == nil {
		return nil, errors.New("orders repository not initialised")
	}
	line := &OrderLine{}
	err := r.pool.QueryRow(ctx, `
		SELECT ol.id, ol.order_id, ol.sku_id, s.code, ol.qty, ol.unit_price
		FROM order_lines ol JOIN skus s ON s.id = ol.sku_id
		WHERE ol.id = $1`, lineID,
	).Scan(&line.ID, &line.OrderID, &line.SKUID, &line.SKUCode, &line.Qty, &line.UnitPrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("orders: get line: %w", err)
	}
	return line, nil
}

// SKUExists reports whether the SKU id is known.
func (r *Repository) SKUExists(ctx context.Context, skuID int64) (bool, error) {
	if r == nil {
		return false, errors.New("orders repository not initialised")
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM skus WHERE id = $1)`, skuID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("orders: sku exists: %w", err)
	}
	return exists, nil
}

// CreateExchange inserts a replacement order with one line at zero price and
// returns its reference. Runs inside its own transaction.
func (r *Repository) CreateExchange(ctx context.Context, input CreateExchangeInput) (ExchangeOrder, error) {
	if r == nil {
		return ExchangeOrder{}, errors.New("orders repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return ExchangeOrder{}, err
	}
	defer tx.Rollback(ctx)

	number, err := generateExchangeNumber(ctx, tx)
	if err != nil {
		return ExchangeOrder{}, err
	}

	var orderID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO orders (order_number, customer_id, status, order_date, source_return_line_id, created_by_id)
		VALUES ($1, $2, $3, NOW(), $4, $5)
		RETURNING id`,
		number, input.CustomerID, string(OrderStatusExchange), input.SourceLineID, input.CreatedByID,
	).Scan(&orderID)
	if err != nil {
		return ExchangeOrder{}, fmt.Errorf("orders: insert exchange order: %w", err)
	}

	// The replacement unit ships free; the money already moved on the
	// original order.
	_, err = tx.Exec(ctx, `
		INSERT INTO order_lines (order_id, sku_id, qty, unit_price)
		VALUES ($1, $2, $3, 0)`,
		orderID, input.ExchangeSKUID, input.Qty)
	if err != nil {
		return ExchangeOrder{}, fmt.Errorf("orders: insert exchange line: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ExchangeOrder{}, err
	}
	return ExchangeOrder{ID: orderID, OrderNumber: number}, nil
}

func (r *Repository) linesForOrder(ctx context.Context, orderID int64) ([]OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ol.id, ol.order_id, ol.sku_id, s.code, ol.qty, ol.unit_price
		FROM order_lines ol JOIN skus s ON s.id = ol.sku_id
		WHERE ol.order_id = $1
		ORDER BY ol.id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("orders: lines: %w", err)
	}
	defer rows.Close()

	var lines []OrderLine
	for rows.Next() {
		var line OrderLine
		if err := rows.Scan(&line.ID, &line.OrderID, &line.SKUID, &line.SKUCode, &line.Qty, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func generateExchangeNumber(ctx context.Context, tx pgx.Tx) (string, error) {
	now := time.Now().UTC()
	prefix := fmt.Sprintf("EXC-%s", now.Format("200601"))
	var count int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE order_number LIKE $1`, prefix+"-%").Scan(&count)
	if err != nil {
		return "", fmt.Errorf("orders: generate exchange number: %w", err)
	}
	return fmt.Sprintf("%s-%04d", prefix, count+1), nil
}
