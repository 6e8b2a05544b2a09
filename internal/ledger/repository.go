package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists ledger entries in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one ledger entry and returns its id. There is no update or
// delete path; corrections are compensating entries.
func (r *Repository) Insert(ctx context.Context, e Entry) (int64, error) {
	if r == nil {
		return 0, errors.New("ledger repository not initialised")
	}
	var id int64
	err := r.pool.QueryRow(ctx, `
		INSERT INTO inventory_ledger (sku_id, txn_type, qty, reason, reference_id, posted_at, created_by_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		e.SKUID, string(e.TxnType), e.Qty, string(e.Reason), e.ReferenceID, e.PostedAt, e.CreatedByID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ledger: insert entry: %w", err)
	}
	return id, nil
}

// List returns entries matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	clauses := []string{"1=1"}
	args := []any{}
	idx := 1
	if filter.SKUID != 0 {
		clauses = append(clauses, fmt.Sprintf("sku_id = $%d", idx))
		args = append(args, filter.SKUID)
		idx++
	}
	if filter.Reason != "" {
		clauses = append(clauses, fmt.Sprintf("reason = $%d", idx))
		args = append(args, string(filter.Reason))
		idx++
	}
	if !filter.From.IsZero() {
		clauses = append(clauses, fmt.Sprintf("posted_at >= $%d", idx))
		args = append(args, filter.From)
		idx++
	}
	if !filter.To.IsZero() {
		clauses = append(clauses, fmt.Sprintf("posted_at <= $%d", idx))
		args = append(args, filter.To)
		idx++
	}
	query := fmt.Sprintf(`
		SELECT id, sku_id, txn_type, qty, reason, reference_id, posted_at, created_by_id
		FROM inventory_ledger
		WHERE %s
		ORDER BY posted_at DESC, id DESC
		LIMIT $%d OFFSET $%d`, strings.Join(clauses, " AND "), idx, idx+1)
	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var txnType, reason string
		var postedAt time.Time
		if err := rows.Scan(&e.ID, &e.SKUID, &txnType, &e.Qty, &reason, &e.ReferenceID, &postedAt, &e.CreatedByID); err != nil {
			return nil, err
		}
		e.TxnType = TxnType(txnType)
		e.Reason = Reason(reason)
		e.PostedAt = postedAt
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Balances derives current stock per SKU as the signed sum of entries.
func (r *Repository) Balances(ctx context.Context, skuIDs []int64) ([]Balance, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	if len(skuIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT sku_id,
		       COALESCE(SUM(CASE txn_type WHEN 'IN' THEN qty ELSE -qty END), 0) AS balance
		FROM inventory_ledger
		WHERE sku_id = ANY($1)
		GROUP BY sku_id
		ORDER BY sku_id`, skuIDs)
	if err != nil {
		return nil, fmt.Errorf("ledger: balances: %w", err)
	}
	defer rows.Close()

	balances := make([]Balance, 0, len(skuIDs))
	seen := make(map[int64]bool, len(skuIDs))
	for rows.Next() {
		var b Balance
		if err := rows.Scan(&b.SKUID, &b.Qty); err != nil {
			return nil, err
		}
		balances = append(balances, b)
		seen[b.SKUID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// SKUs with no movement yet still get a zero row in the response.
	for _, id := range skuIDs {
		if !seen[id] {
			balances = append(balances, Balance{SKUID: id})
		}
	}
	return balances, nil
}
