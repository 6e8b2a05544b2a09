package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entry) (int64, error)
	List(ctx context.Context, filter EntryFilter) ([]Entry, error)
	Balances(ctx context.Context, skuIDs []int64) ([]Balance, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger postings and reads.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	balances    singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, audit: audit, idempotency: idem}
}

// Post appends one entry. The idempotency key is derived from reason and
// reference so the same business event can never be posted twice.
func (s *Service) Post(ctx context.Context, input PostInput) (Entry, error) {
	if input.SKUID == 0 {
		return Entry{}, errors.New("ledger: sku required")
	}
	if input.Qty <= 0 {
		return Entry{}, ErrInvalidQuantity
	}
	if input.TxnType != TxnTypeInward && input.TxnType != TxnTypeOutward {
		return Entry{}, ErrInvalidTxnType
	}
	if !ValidReason(input.Reason) {
		return Entry{}, ErrInvalidReason
	}

	insertedKey := false
	key := ""
	if input.ReferenceID != "" && s.idempotency != nil {
		key = fmt.Sprintf("%s:%s:%d", input.Reason, input.ReferenceID, input.SKUID)
		if err := s.idempotency.CheckAndInsert(ctx, key, "ledger"); err != nil {
			return Entry{}, err
		}
		insertedKey = true
	}

	entry := Entry{
		SKUID:       input.SKUID,
		TxnType:     input.TxnType,
		Qty:         input.Qty,
		Reason:      input.Reason,
		ReferenceID: input.ReferenceID,
		PostedAt:    time.Now().UTC(),
		CreatedByID: input.ActorID,
	}
	id, err := s.repo.Insert(ctx, entry)
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return Entry{}, err
	}
	entry.ID = id

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   fmt.Sprintf("ledger:%s", input.TxnType),
			Entity:   "inventory_ledger",
			EntityID: strconv.FormatInt(id, 10),
			Meta: map[string]any{
				"sku_id":       input.SKUID,
				"qty":          input.Qty,
				"reason":       input.Reason,
				"reference_id": input.ReferenceID,
			},
		})
	}
	return entry, nil
}

// Entries lists ledger entries.
func (s *Service) Entries(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	return s.repo.List(ctx, filter)
}

// SKUBalances returns the derived balance for each requested SKU. Concurrent
// requests for the same SKU set share one repository read.
func (s *Service) SKUBalances(ctx context.Context, skuIDs []int64) ([]Balance, error) {
	if len(skuIDs) == 0 {
		return nil, errors.New("ledger: at least one sku required")
	}
	sorted := append([]int64(nil), skuIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}
	key := strings.Join(parts, ",")

	result, err, _ := s.balances.Do(key, func() (any, error) {
		return s.repo.Balances(ctx, sorted)
	})
	if err != nil {
		return nil, err
	}
	return result.([]Balance), nil
}
