package returns

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stitchworks-erp/stitchworks-erp/internal/ledger"
	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
)

// Repository persists return lines and refunds in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the state machine.
// Each transition reads current state, validates its precondition and writes
// the new state plus any ledger/refund row inside one transaction.
type TxRepository interface {
	GetLineForUpdate(ctx context.Context, id int64) (ReturnLine, error)
	InsertLine(ctx context.Context, line ReturnLine) (int64, error)
	UpdateLine(ctx context.Context, line ReturnLine) error
	ReturnedQty(ctx context.Context, orderLineID int64) (int, error)
	InsertRefund(ctx context.Context, rec RefundRecord) (int64, error)
	InsertLedgerEntry(ctx context.Context, e ledger.Entry) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("returns repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const lineColumns = `
	id, order_id, order_line_id, sku_id,
	return_batch_number, return_awb_number, return_courier,
	return_qty, unit_price,
	reason_category, reason_detail, resolution, condition, qc_result,
	return_status, pickup_type,
	refund_gross_amount, discount_clawback, deductions, net_refund_amount, refund_method,
	exchange_order_id, exchange_order_number, exchange_sku_id,
	notes, requested_at, received_at, completed_at`

func scanLine(row pgx.Row) (ReturnLine, error) {
	var line ReturnLine
	var batch, awb, courier, reasonDetail, refundMethod, exchangeNumber, notes *string
	var condition, qcResult *string
	err := row.Scan(
		&line.ID, &line.OrderID, &line.OrderLineID, &line.SKUID,
		&batch, &awb, &courier,
		&line.ReturnQty, &line.UnitPrice,
		&line.ReasonCategory, &reasonDetail, &line.Resolution, &condition, &qcResult,
		&line.ReturnStatus, &line.PickupType,
		&line.RefundGrossAmount, &line.DiscountClawback, &line.Deductions, &line.NetRefundAmount, &refundMethod,
		&line.ExchangeOrderID, &exchangeNumber, &line.ExchangeSKUID,
		&notes, &line.RequestedAt, &line.ReceivedAt, &line.CompletedAt,
	)
	if err != nil {
		return ReturnLine{}, err
	}
	if batch != nil {
		line.ReturnBatchNumber = *batch
	}
	if awb != nil {
		line.ReturnAWBNumber = *awb
	}
	if courier != nil {
		line.ReturnCourier = *courier
	}
	if reasonDetail != nil {
		line.ReasonDetail = *reasonDetail
	}
	if condition != nil {
		line.Condition = Condition(*condition)
	}
	if qcResult != nil {
		line.QCResult = QCResult(*qcResult)
	}
	if refundMethod != nil {
		line.RefundMethod = *refundMethod
	}
	if exchangeNumber != nil {
		line.ExchangeOrderNumber = *exchangeNumber
	}
	if notes != nil {
		line.Notes = *notes
	}
	return line, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// GetLine loads one return line.
func (r *Repository) GetLine(ctx context.Context, id int64) (ReturnLine, error) {
	if r == nil {
		return ReturnLine{}, errors.New("returns repository not initialised")
	}
	line, err := scanLine(r.pool.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM return_lines WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReturnLine{}, shared.ErrNotFound
		}
		return ReturnLine{}, fmt.Errorf("returns: get line: %w", err)
	}
	return line, nil
}

// ListOpen returns all lines not yet terminal, oldest first.
func (r *Repository) ListOpen(ctx context.Context) ([]ReturnLine, error) {
	return r.listWhere(ctx, `return_status NOT IN ('complete','cancelled') ORDER BY requested_at, id`)
}

// ListByOrder returns all lines of one order.
func (r *Repository) ListByOrder(ctx context.Context, orderID int64) ([]ReturnLine, error) {
	return r.listWhere(ctx, `order_id = $1 ORDER BY id`, orderID)
}

func (r *Repository) listWhere(ctx context.Context, where string, args ...any) ([]ReturnLine, error) {
	if r == nil {
		return nil, errors.New("returns repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT `+lineColumns+` FROM return_lines WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("returns: list lines: %w", err)
	}
	defer rows.Close()

	var lines []ReturnLine
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// ReturnedQtyByOrderLine sums returnQty of non-cancelled return lines per
// order line. Used by the read-side eligibility computation.
func (r *Repository) ReturnedQtyByOrderLine(ctx context.Context, orderLineIDs []int64) (map[int64]int, error) {
	if r == nil {
		return nil, errors.New("returns repository not initialised")
	}
	result := make(map[int64]int, len(orderLineIDs))
	if len(orderLineIDs) == 0 {
		return result, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT order_line_id, COALESCE(SUM(return_qty), 0)
		FROM return_lines
		WHERE order_line_id = ANY($1) AND return_status <> 'cancelled'
		GROUP BY order_line_id`, orderLineIDs)
	if err != nil {
		return nil, fmt.Errorf("returns: returned qty: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var qty int
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, err
		}
		result[id] = qty
	}
	return result, rows.Err()
}

// GetRefund loads the refund record of a line.
func (r *Repository) GetRefund(ctx context.Context, lineID int64) (RefundRecord, error) {
	if r == nil {
		return RefundRecord{}, errors.New("returns repository not initialised")
	}
	var rec RefundRecord
	var notes *string
	err := r.pool.QueryRow(ctx, `
		SELECT id, return_line_id, gross_amount, clawback, shipping_fee, restock_fee, other_fees,
		       net_amount, method, notes, posted_at, posted_by_id
		FROM refund_records WHERE return_line_id = $1`, lineID,
	).Scan(&rec.ID, &rec.ReturnLineID, &rec.GrossAmount, &rec.Clawback, &rec.ShippingFee,
		&rec.RestockFee, &rec.OtherFees, &rec.NetAmount, &rec.Method, &notes, &rec.PostedAt, &rec.PostedByID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RefundRecord{}, shared.ErrNotFound
		}
		return RefundRecord{}, fmt.Errorf("returns: get refund: %w", err)
	}
	if notes != nil {
		rec.Notes = *notes
	}
	return rec, nil
}

// ListStaleRequested returns ids of lines still in requested status whose
// request predates the cutoff.
func (r *Repository) ListStaleRequested(ctx context.Context, before time.Time) ([]int64, error) {
	if r == nil {
		return nil, errors.New("returns repository not initialised")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM return_lines
		WHERE return_status = 'requested' AND requested_at < $1
		ORDER BY id`, before)
	if err != nil {
		return nil, fmt.Errorf("returns: stale requested: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Summary aggregates return activity between from and to.
func (r *Repository) Summary(ctx context.Context, from, to time.Time) (Summary, error) {
	if r == nil {
		return Summary{}, errors.New("returns repository not initialised")
	}
	summary := Summary{
		ByStatus: map[string]int{},
		ByReason: map[string]int{},
		ByQC:     map[string]int{},
	}

	rows, err := r.pool.Query(ctx, `
		SELECT return_status, reason_category, COALESCE(qc_result, ''), COUNT(*)
		FROM return_lines
		WHERE requested_at >= $1 AND requested_at <= $2
		GROUP BY return_status, reason_category, qc_result`, from, to)
	if err != nil {
		return Summary{}, fmt.Errorf("returns: summary: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status, reason, qc string
		var count int
		if err := rows.Scan(&status, &reason, &qc, &count); err != nil {
			return Summary{}, err
		}
		summary.ByStatus[status] += count
		summary.ByReason[reason] += count
		if qc != "" {
			summary.ByQC[qc] += count
		}
		summary.TotalLines += count
	}
	if err := rows.Err(); err != nil {
		return Summary{}, err
	}

	err = r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(gross_amount), 0), COALESCE(SUM(net_amount), 0), COUNT(*)
		FROM refund_records
		WHERE posted_at >= $1 AND posted_at <= $2`, from, to,
	).Scan(&summary.RefundGrossTotal, &summary.RefundNetTotal, &summary.RefundCount)
	if err != nil {
		return Summary{}, fmt.Errorf("returns: refund totals: %w", err)
	}
	return summary, nil
}

func (t *txRepository) GetLineForUpdate(ctx context.Context, id int64) (ReturnLine, error) {
	line, err := scanLine(t.tx.QueryRow(ctx,
		`SELECT `+lineColumns+` FROM return_lines WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ReturnLine{}, shared.ErrNotFound
		}
		return ReturnLine{}, fmt.Errorf("returns: get line for update: %w", err)
	}
	return line, nil
}

func (t *txRepository) InsertLine(ctx context.Context, line ReturnLine) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO return_lines (
			order_id, order_line_id, sku_id, return_batch_number,
			return_qty, unit_price, reason_category, reason_detail, resolution,
			return_status, pickup_type, exchange_sku_id, notes, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`,
		line.OrderID, line.OrderLineID, line.SKUID, nullable(line.ReturnBatchNumber),
		line.ReturnQty, line.UnitPrice, string(line.ReasonCategory), nullable(line.ReasonDetail),
		string(line.Resolution), string(line.ReturnStatus), string(line.PickupType),
		line.ExchangeSKUID, nullable(line.Notes), line.RequestedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("returns: insert line: %w", err)
	}
	return id, nil
}

func (t *txRepository) UpdateLine(ctx context.Context, line ReturnLine) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE return_lines SET
			return_awb_number = $2, return_courier = $3,
			condition = $4, qc_result = $5, return_status = $6,
			refund_gross_amount = $7, discount_clawback = $8, deductions = $9,
			net_refund_amount = $10, refund_method = $11,
			exchange_order_id = $12, exchange_order_number = $13,
			notes = $14, received_at = $15, completed_at = $16
		WHERE id = $1`,
		line.ID, nullable(line.ReturnAWBNumber), nullable(line.ReturnCourier),
		nullable(string(line.Condition)), nullable(string(line.QCResult)), string(line.ReturnStatus),
		line.RefundGrossAmount, line.DiscountClawback, line.Deductions,
		line.NetRefundAmount, nullable(line.RefundMethod),
		line.ExchangeOrderID, nullable(line.ExchangeOrderNumber),
		nullable(line.Notes), line.ReceivedAt, line.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("returns: update line: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (t *txRepository) ReturnedQty(ctx context.Context, orderLineID int64) (int, error) {
	var qty int
	err := t.tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(return_qty), 0)
		FROM return_lines
		WHERE order_line_id = $1 AND return_status <> 'cancelled'`, orderLineID,
	).Scan(&qty)
	if err != nil {
		return 0, fmt.Errorf("returns: returned qty: %w", err)
	}
	return qty, nil
}

func (t *txRepository) InsertRefund(ctx context.Context, rec RefundRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO refund_records (
			return_line_id, gross_amount, clawback, shipping_fee, restock_fee,
			other_fees, net_amount, method, notes, posted_at, posted_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		rec.ReturnLineID, rec.GrossAmount, rec.Clawback, rec.ShippingFee, rec.RestockFee,
		rec.OtherFees, rec.NetAmount, rec.Method, nullable(rec.Notes), rec.PostedAt, rec.PostedByID,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrRefundAlreadyPosted
		}
		return 0, fmt.Errorf("returns: insert refund: %w", err)
	}
	return id, nil
}

// InsertLedgerEntry appends an inventory ledger row inside the same
// transaction as the state change that caused it.
func (t *txRepository) InsertLedgerEntry(ctx context.Context, e ledger.Entry) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO inventory_ledger (sku_id, txn_type, qty, reason, reference_id, posted_at, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.SKUID, string(e.TxnType), e.Qty, string(e.Reason), e.ReferenceID, e.PostedAt, e.CreatedByID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("returns: insert ledger entry: %w", err)
	}
	return id, nil
}
