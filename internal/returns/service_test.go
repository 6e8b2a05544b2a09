package returns

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stitchworks-erp/stitchworks-erp/internal/ledger"
	"github.com/stitchworks-erp/stitchworks-erp/internal/orders"
	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
)

type memoryRepo struct {
	mu           sync.Mutex
	lines        map[int64]ReturnLine
	refunds      map[int64]RefundRecord
	ledger       []ledger.Entry
	nextLineID   int64
	nextRefundID int64
	nextLedgerID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{lines: map[int64]ReturnLine{}, refunds: map[int64]RefundRecord{}}
}

// WithTx snapshots state and restores it when the callback fails, so the
// all-or-nothing behaviour of the real transaction holds in tests too.
func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	savedLines := make(map[int64]ReturnLine, len(r.lines))
	for id, line := range r.lines {
		savedLines[id] = line
	}
	savedRefunds := make(map[int64]RefundRecord, len(r.refunds))
	for id, rec := range r.refunds {
		savedRefunds[id] = rec
	}
	savedLedger := append([]ledger.Entry(nil), r.ledger...)
	r.mu.Unlock()

	if err := fn(ctx, r); err != nil {
		r.mu.Lock()
		r.lines = savedLines
		r.refunds = savedRefunds
		r.ledger = savedLedger
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memoryRepo) GetLine(ctx context.Context, id int64) (ReturnLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line, ok := r.lines[id]
	if !ok {
		return ReturnLine{}, shared.ErrNotFound
	}
	return line, nil
}

func (r *memoryRepo) GetLineForUpdate(ctx context.Context, id int64) (ReturnLine, error) {
	return r.GetLine(ctx, id)
}

func (r *memoryRepo) ListOpen(ctx context.Context) ([]ReturnLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ReturnLine
	for id := int64(1); id <= r.nextLineID; id++ {
		if line, ok := r.lines[id]; ok && !line.ReturnStatus.Terminal() {
			out = append(out, line)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListByOrder(ctx context.Context, orderID int64) ([]ReturnLine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ReturnLine
	for id := int64(1); id <= r.nextLineID; id++ {
		if line, ok := r.lines[id]; ok && line.OrderID == orderID {
			out = append(out, line)
		}
	}
	return out, nil
}

func (r *memoryRepo) ReturnedQtyByOrderLine(ctx context.Context, orderLineIDs []int64) (map[int64]int, error) {
	result := make(map[int64]int, len(orderLineIDs))
	for _, id := range orderLineIDs {
		qty, err := r.ReturnedQty(ctx, id)
		if err != nil {
			return nil, err
		}
		if qty > 0 {
			result[id] = qty
		}
	}
	return result, nil
}

func (r *memoryRepo) ReturnedQty(ctx context.Context, orderLineID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	qty := 0
	for _, line := range r.lines {
		if line.OrderLineID == orderLineID && line.ReturnStatus != StatusCancelled {
			qty += line.ReturnQty
		}
	}
	return qty, nil
}

func (r *memoryRepo) GetRefund(ctx context.Context, lineID int64) (RefundRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.refunds[lineID]
	if !ok {
		return RefundRecord{}, shared.ErrNotFound
	}
	return rec, nil
}

func (r *memoryRepo) ListStaleRequested(ctx context.Context, before time.Time) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id := int64(1); id <= r.nextLineID; id++ {
		if line, ok := r.lines[id]; ok && line.ReturnStatus == StatusRequested && line.RequestedAt.Before(before) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memoryRepo) Summary(ctx context.Context, from, to time.Time) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	summary := Summary{ByStatus: map[string]int{}, ByReason: map[string]int{}, ByQC: map[string]int{}}
	for _, line := range r.lines {
		if line.RequestedAt.Before(from) || line.RequestedAt.After(to) {
			continue
		}
		summary.TotalLines++
		summary.ByStatus[string(line.ReturnStatus)]++
		summary.ByReason[string(line.ReasonCategory)]++
		if line.QCResult != "" {
			summary.ByQC[string(line.QCResult)]++
		}
	}
	for _, rec := range r.refunds {
		summary.RefundCount++
		summary.RefundGrossTotal += rec.GrossAmount
		summary.RefundNetTotal += rec.NetAmount
	}
	return summary, nil
}

func (r *memoryRepo) InsertLine(ctx context.Context, line ReturnLine) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLineID++
	line.ID = r.nextLineID
	r.lines[line.ID] = line
	return line.ID, nil
}

func (r *memoryRepo) UpdateLine(ctx context.Context, line ReturnLine) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lines[line.ID]; !ok {
		return shared.ErrNotFound
	}
	r.lines[line.ID] = line
	return nil
}

func (r *memoryRepo) InsertRefund(ctx context.Context, rec RefundRecord) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.refunds[rec.ReturnLineID]; exists {
		return 0, ErrRefundAlreadyPosted
	}
	r.nextRefundID++
	rec.ID = r.nextRefundID
	r.refunds[rec.ReturnLineID] = rec
	return rec.ID, nil
}

func (r *memoryRepo) InsertLedgerEntry(ctx context.Context, e ledger.Entry) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextLedgerID++
	e.ID = r.nextLedgerID
	r.ledger = append(r.ledger, e)
	return e.ID, nil
}

func (r *memoryRepo) ledgerEntries() []ledger.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ledger.Entry(nil), r.ledger...)
}

type fakeOrders struct {
	byID      map[int64]*orders.Order
	byNumber  map[string]*orders.Order
	exchanges []orders.CreateExchangeInput
}

func newFakeOrders(list ...*orders.Order) *fakeOrders {
	f := &fakeOrders{byID: map[int64]*orders.Order{}, byNumber: map[string]*orders.Order{}}
	for _, o := range list {
		f.byID[o.ID] = o
		f.byNumber[o.OrderNumber] = o
	}
	return f
}

func (f *fakeOrders) Lookup(ctx context.Context, orderNumber string) (*orders.Order, error) {
	o, ok := f.byNumber[orderNumber]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) Get(ctx context.Context, id int64) (*orders.Order, error) {
	o, ok := f.byID[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrders) CreateExchangeOrder(ctx context.Context, input orders.CreateExchangeInput) (orders.ExchangeOrder, error) {
	f.exchanges = append(f.exchanges, input)
	n := len(f.exchanges)
	return orders.ExchangeOrder{ID: int64(900 + n), OrderNumber: fmt.Sprintf("EXC-202608-%04d", n)}, nil
}

type staticConfig struct{ cfg Config }

func (s staticConfig) Get(ctx context.Context) (Config, error) { return s.cfg, nil }

var testNow = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func shippedDaysAgo(days int) *time.Time {
	t := testNow.AddDate(0, 0, -days)
	return &t
}

func testOrder() *orders.Order {
	return &orders.Order{
		ID:          100,
		OrderNumber: "ORD-202608-0042",
		CustomerID:  7,
		Status:      orders.OrderStatusDelivered,
		OrderDate:   testNow.AddDate(0, 0, -12),
		ShippedAt:   shippedDaysAgo(10),
		Lines: []orders.OrderLine{
			{ID: 1001, OrderID: 100, SKUID: 501, SKUCode: "TSHIRT-BLK-M", Qty: 3, UnitPrice: 499},
			{ID: 1002, OrderID: 100, SKUID: 502, SKUCode: "JEANS-IND-32", Qty: 1, UnitPrice: 1299},
		},
	}
}

func newTestService(t *testing.T, cfg Config, orderList ...*orders.Order) (*Service, *memoryRepo, *fakeOrders) {
	t.Helper()
	if cfg.WindowDays == 0 {
		cfg.WindowDays = 30
	}
	repo := newMemoryRepo()
	orderPort := newFakeOrders(orderList...)
	svc := NewService(repo, orderPort, staticConfig{cfg: cfg}, nil)
	svc.now = func() time.Time { return testNow }
	return svc, repo, orderPort
}

func initiateOne(t *testing.T, svc *Service, orderLineID int64, qty int, resolution Resolution, exchangeSKU *int64) ReturnLine {
	t.Helper()
	lines, err := svc.InitiateReturn(context.Background(), InitiateReturnRequest{
		OrderID:        100,
		Lines:          []InitiateReturnLineReq{{OrderLineID: orderLineID, Qty: qty}},
		ReasonCategory: ReasonSizeIssue,
		Resolution:     resolution,
		PickupType:     PickupArrangedByUs,
		ExchangeSKUID:  exchangeSKU,
	}, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	return lines[0]
}

func TestSearchOrderEligibility(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30, GraceDays: 3}, testOrder())
	ctx := context.Background()

	result, err := svc.SearchOrderForReturn(ctx, "ORD-202608-0042")
	require.NoError(t, err)
	require.Len(t, result.Eligibility, 2)
	for _, e := range result.Eligibility {
		require.True(t, e.Eligible)
		require.Empty(t, e.Warning)
		require.NotNil(t, e.DaysRemaining)
		require.Equal(t, 20, *e.DaysRemaining)
	}
	require.Equal(t, 3, result.Eligibility[0].RemainingQty)

	_, err = svc.SearchOrderForReturn(ctx, "ORD-000000-0000")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestSearchOrderIneligibleCases(t *testing.T) {
	notShipped := testOrder()
	notShipped.ID = 101
	notShipped.OrderNumber = "ORD-202608-0050"
	notShipped.Status = orders.OrderStatusConfirmed
	notShipped.ShippedAt = nil

	cancelled := testOrder()
	cancelled.ID = 102
	cancelled.OrderNumber = "ORD-202608-0051"
	cancelled.Status = orders.OrderStatusCancelled

	expired := testOrder()
	expired.ID = 103
	expired.OrderNumber = "ORD-202605-0007"
	expired.ShippedAt = shippedDaysAgo(45)

	svc, _, _ := newTestService(t, Config{WindowDays: 30}, notShipped, cancelled, expired)
	ctx := context.Background()

	for _, tc := range []struct {
		orderNumber string
		wantReason  string
	}{
		{"ORD-202608-0050", "order has not shipped"},
		{"ORD-202608-0051", "order is cancelled"},
		{"ORD-202605-0007", "return window of 30 days closed"},
	} {
		result, err := svc.SearchOrderForReturn(ctx, tc.orderNumber)
		require.NoError(t, err)
		for _, e := range result.Eligibility {
			require.False(t, e.Eligible, tc.orderNumber)
			require.Contains(t, e.Reason, tc.wantReason)
		}
	}
}

func TestSearchOrderGraceWarning(t *testing.T) {
	order := testOrder()
	order.ShippedAt = shippedDaysAgo(28)
	svc, _, _ := newTestService(t, Config{WindowDays: 30, GraceDays: 3}, order)

	result, err := svc.SearchOrderForReturn(context.Background(), order.OrderNumber)
	require.NoError(t, err)
	for _, e := range result.Eligibility {
		require.True(t, e.Eligible)
		require.Contains(t, e.Warning, "closes in 2 days")
	}
}

func TestRefundLifecycle(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 2, ResolutionRefund, nil)
	require.Equal(t, StatusRequested, line.ReturnStatus)
	require.Equal(t, 499.0, line.UnitPrice)

	line, err := svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD123456"}, 1)
	require.NoError(t, err)
	require.Equal(t, StatusPickupScheduled, line.ReturnStatus)
	require.Equal(t, "BD123456", line.ReturnAWBNumber)

	line, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusInTransit, line.ReturnStatus)

	line, err = svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionGood}, 1)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, line.ReturnStatus)
	require.NotNil(t, line.ReceivedAt)

	item, err := svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCApproved}, 1)
	require.NoError(t, err)
	require.Equal(t, ActionProcessRefund, item.ActionNeeded)

	entries := repo.ledgerEntries()
	require.Len(t, entries, 1)
	require.Equal(t, int64(501), entries[0].SKUID)
	require.Equal(t, ledger.TxnTypeInward, entries[0].TxnType)
	require.Equal(t, 2, entries[0].Qty)
	require.Equal(t, ledger.ReasonReturnReceived, entries[0].Reason)

	record, err := svc.ProcessRefund(ctx, line.ID, ProcessRefundRequest{
		GrossAmount: 998, Clawback: 98, ShippingFee: 100, Method: "bank_transfer",
	}, 1)
	require.NoError(t, err)
	require.Equal(t, 800.0, record.NetAmount)

	item, err = svc.GetLine(ctx, line.ID)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, item.Line.ReturnStatus)
	require.Equal(t, ActionNone, item.ActionNeeded)
	require.NotNil(t, item.Line.NetRefundAmount)
	require.Equal(t, 800.0, *item.Line.NetRefundAmount)
	require.NotNil(t, item.Line.CompletedAt)

	stored, err := svc.Refund(ctx, line.ID)
	require.NoError(t, err)
	require.Equal(t, record.ID, stored.ID)

	// The line is terminal now; a second refund is a transition conflict.
	_, err = svc.ProcessRefund(ctx, line.ID, ProcessRefundRequest{GrossAmount: 998, Method: "bank_transfer"}, 1)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusComplete, transitionErr.Current)
}

func TestExchangeLifecycle(t *testing.T) {
	svc, repo, orderPort := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()
	exchangeSKU := int64(503)

	line := initiateOne(t, svc, 1002, 1, ResolutionExchange, &exchangeSKU)

	_, err := svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "Delhivery", AWBNumber: "DL777"}, 1)
	require.NoError(t, err)
	_, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionGood}, 1)
	require.NoError(t, err)

	item, err := svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCApproved}, 1)
	require.NoError(t, err)
	require.Equal(t, ActionCreateExchange, item.ActionNeeded)
	require.Len(t, repo.ledgerEntries(), 1)

	updated, err := svc.CreateExchange(ctx, line.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, updated.ReturnStatus)
	require.NotNil(t, updated.ExchangeOrderID)
	require.NotEmpty(t, updated.ExchangeOrderNumber)

	require.Len(t, orderPort.exchanges, 1)
	require.Equal(t, exchangeSKU, orderPort.exchanges[0].ExchangeSKUID)
	require.Equal(t, 1, orderPort.exchanges[0].Qty)
	require.Equal(t, int64(100), orderPort.exchanges[0].SourceOrderID)

	// No refund record for an exchange resolution.
	_, err = svc.Refund(ctx, line.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestWriteOffLifecycle(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	_, err := svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD9"}, 1)
	require.NoError(t, err)
	_, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionDamaged}, 1)
	require.NoError(t, err)

	_, err = svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCWrittenOff}, 1)
	require.Error(t, err, "write-off requires a reason")

	item, err := svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCWrittenOff, WriteOffReason: "seam torn beyond repair"}, 1)
	require.NoError(t, err)
	require.Equal(t, ActionComplete, item.ActionNeeded)
	require.False(t, item.ManualReview)

	// Written-off stock never re-enters inventory.
	require.Empty(t, repo.ledgerEntries())

	updated, err := svc.Complete(ctx, line.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusComplete, updated.ReturnStatus)
	require.Nil(t, updated.NetRefundAmount)
}

func TestWrittenOffExchangeFlagsManualReview(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()
	exchangeSKU := int64(503)

	line := initiateOne(t, svc, 1002, 1, ResolutionExchange, &exchangeSKU)
	_, err := svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD10"}, 1)
	require.NoError(t, err)
	_, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionDefective}, 1)
	require.NoError(t, err)

	item, err := svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCWrittenOff, WriteOffReason: "fabric defect"}, 1)
	require.NoError(t, err)
	require.True(t, item.ManualReview)
	require.Equal(t, ActionComplete, item.ActionNeeded)

	// Exchange on a written-off line is not automated.
	_, err = svc.CreateExchange(ctx, line.ID, 1)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
}

func TestInitiateIsAtomic(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	_, err := svc.InitiateReturn(ctx, InitiateReturnRequest{
		OrderID: 100,
		Lines: []InitiateReturnLineReq{
			{OrderLineID: 1001, Qty: 2},
			{OrderLineID: 1002, Qty: 5}, // ordered qty is 1
		},
		ReasonCategory: ReasonSizeIssue,
		Resolution:     ResolutionRefund,
		PickupType:     PickupArrangedByUs,
	}, 1)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Len(t, validationErr.Problems, 1)
	require.Contains(t, validationErr.Problems[0], "order line 1002")

	// Nothing was created, including the valid first line.
	require.Empty(t, repo.lines)
}

func TestInitiateEnforcesRemainingQty(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	initiateOne(t, svc, 1001, 2, ResolutionRefund, nil)

	// 2 of 3 already under return; only 1 remains.
	_, err := svc.InitiateReturn(ctx, InitiateReturnRequest{
		OrderID:        100,
		Lines:          []InitiateReturnLineReq{{OrderLineID: 1001, Qty: 2}},
		ReasonCategory: ReasonSizeIssue,
		Resolution:     ResolutionRefund,
		PickupType:     PickupArrangedByUs,
	}, 1)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
}

func TestInitiateValidation(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	_, err := svc.InitiateReturn(ctx, InitiateReturnRequest{
		OrderID:        100,
		Lines:          []InitiateReturnLineReq{{OrderLineID: 1001, Qty: 1}},
		ReasonCategory: "mystery",
		Resolution:     ResolutionRefund,
		PickupType:     PickupArrangedByUs,
	}, 1)
	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)

	_, err = svc.InitiateReturn(ctx, InitiateReturnRequest{
		OrderID:        100,
		Lines:          []InitiateReturnLineReq{{OrderLineID: 1001, Qty: 1}},
		ReasonCategory: ReasonSizeIssue,
		Resolution:     ResolutionExchange,
		PickupType:     PickupArrangedByUs,
	}, 1)
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, validationErr.Problems[0], "exchange_sku_id")

	_, err = svc.InitiateReturn(ctx, InitiateReturnRequest{
		OrderID:        100,
		Lines:          []InitiateReturnLineReq{{OrderLineID: 9999, Qty: 1}},
		ReasonCategory: ReasonSizeIssue,
		Resolution:     ResolutionRefund,
		PickupType:     PickupArrangedByUs,
	}, 1)
	require.ErrorAs(t, err, &validationErr)
}

func TestInitiateBatchSharesNumber(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	lines, err := svc.InitiateReturn(ctx, InitiateReturnRequest{
		OrderID: 100,
		Lines: []InitiateReturnLineReq{
			{OrderLineID: 1001, Qty: 1},
			{OrderLineID: 1002, Qty: 1},
		},
		ReasonCategory: ReasonWrongProduct,
		Resolution:     ResolutionRefund,
		PickupType:     PickupCustomerShipped,
	}, 1)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.NotEmpty(t, lines[0].ReturnBatchNumber)
	require.Equal(t, lines[0].ReturnBatchNumber, lines[1].ReturnBatchNumber)
}

func TestCustomerShippedSkipsPickup(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	lines, err := svc.InitiateReturn(ctx, InitiateReturnRequest{
		OrderID:        100,
		Lines:          []InitiateReturnLineReq{{OrderLineID: 1001, Qty: 1}},
		ReasonCategory: ReasonChangedMind,
		Resolution:     ResolutionRefund,
		PickupType:     PickupCustomerShipped,
	}, 1)
	require.NoError(t, err)
	line := lines[0]

	item, err := svc.GetLine(ctx, line.ID)
	require.NoError(t, err)
	require.Equal(t, ActionReceive, item.ActionNeeded)

	// Scheduling a pickup we do not arrange is a conflict.
	_, err = svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD1"}, 1)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)

	updated, err := svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionGood}, 1)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, updated.ReturnStatus)
}

func TestTransitionConflicts(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()
	var transitionErr *TransitionError

	line := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)

	_, err := svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionGood}, 1)
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusRequested, transitionErr.Current)

	_, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.ErrorAs(t, err, &transitionErr)

	_, err = svc.ProcessRefund(ctx, line.ID, ProcessRefundRequest{GrossAmount: 499, Method: "bank_transfer"}, 1)
	require.ErrorAs(t, err, &transitionErr)

	_, err = svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD2"}, 1)
	require.NoError(t, err)

	// Pickup cannot be scheduled twice.
	_, err = svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD3"}, 1)
	require.ErrorAs(t, err, &transitionErr)
}

func TestQCRecordedOnce(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	_, err := svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD4"}, 1)
	require.NoError(t, err)
	_, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionGood}, 1)
	require.NoError(t, err)

	_, err = svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCApproved}, 1)
	require.NoError(t, err)
	require.Len(t, repo.ledgerEntries(), 1)

	_, err = svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCApproved}, 1)
	require.ErrorIs(t, err, ErrQCAlreadyRecorded)

	// The conflict must not post a second inward entry.
	require.Len(t, repo.ledgerEntries(), 1)
}

func TestQCDamagedApprovalPostsNothing(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	_, err := svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD5"}, 1)
	require.NoError(t, err)
	_, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionDamaged}, 1)
	require.NoError(t, err)

	// Approved for refund but not sellable; no stock re-entry.
	_, err = svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCApproved}, 1)
	require.NoError(t, err)
	require.Empty(t, repo.ledgerEntries())
}

func TestRefundRejectsNonPositiveNet(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	_, err := svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD6"}, 1)
	require.NoError(t, err)
	_, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionGood}, 1)
	require.NoError(t, err)
	_, err = svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCApproved}, 1)
	require.NoError(t, err)

	_, err = svc.ProcessRefund(ctx, line.ID, ProcessRefundRequest{
		GrossAmount: 499, Clawback: 400, ShippingFee: 99, Method: "bank_transfer",
	}, 1)
	require.ErrorIs(t, err, ErrNonPositiveRefund)

	// Rejection leaves the line open and unrefunded.
	item, err := svc.GetLine(ctx, line.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, item.Line.ReturnStatus)
	require.Empty(t, repo.refunds)
}

func TestCancelFromNonTerminal(t *testing.T) {
	svc, repo, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 2, ResolutionRefund, nil)
	updated, err := svc.Cancel(ctx, line.ID, "customer changed their mind", 1)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.ReturnStatus)
	require.Contains(t, updated.Notes, "customer changed their mind")
	require.Empty(t, repo.ledgerEntries())

	// Cancelled lines release their quantity for a new request.
	initiateOne(t, svc, 1001, 3, ResolutionRefund, nil)
}

func TestCancelRejectsTerminal(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	_, err := svc.Cancel(ctx, line.ID, "", 1)
	require.NoError(t, err)

	_, err = svc.Cancel(ctx, line.ID, "", 1)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	require.Equal(t, StatusCancelled, transitionErr.Current)
}

func TestUpdateNotesOnTerminalLine(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	_, err := svc.Cancel(ctx, line.ID, "", 1)
	require.NoError(t, err)

	updated, err := svc.UpdateNotes(ctx, line.ID, "customer kept the item", 1)
	require.NoError(t, err)
	require.Equal(t, "customer kept the item", updated.Notes)
	require.Equal(t, StatusCancelled, updated.ReturnStatus)
}

func TestPickupBatch(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	first := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	second := initiateOne(t, svc, 1002, 1, ResolutionRefund, nil)
	_, err := svc.Cancel(ctx, second.ID, "", 1)
	require.NoError(t, err)

	results := svc.SchedulePickupBatch(ctx, PickupBatchRequest{
		LineIDs: []int64{first.ID, second.ID, 9999},
		Courier: "BlueDart", AWBNumber: "BD-BATCH-1",
	}, 1)
	require.Len(t, results, 3)
	require.True(t, results[0].OK)
	require.False(t, results[1].OK)
	require.False(t, results[2].OK)

	item, err := svc.GetLine(ctx, first.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPickupScheduled, item.Line.ReturnStatus)
}

func TestQueueDerivesActions(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	first := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	second := initiateOne(t, svc, 1002, 1, ResolutionRefund, nil)
	_, err := svc.Cancel(ctx, second.ID, "", 1)
	require.NoError(t, err)

	items, err := svc.Queue(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, first.ID, items[0].Line.ID)
	require.Equal(t, ActionSchedulePickup, items[0].ActionNeeded)

	byOrder, err := svc.Queue(ctx, 100)
	require.NoError(t, err)
	require.Len(t, byOrder, 2)
}

func TestRefundPreviewDefaultsToLineBasis(t *testing.T) {
	cfg := Config{WindowDays: 30, ShippingFee: 100, Restocking: RestockingFee{Type: FeePercent, Value: 10}}
	svc, _, _ := newTestService(t, cfg, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 2, ResolutionRefund, nil)

	preview, err := svc.RefundPreview(ctx, line.ID, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 998.0, preview.Gross)
	require.Equal(t, 100.0, preview.ShippingFee)
	require.Equal(t, 99.8, preview.RestockFee)
	require.Equal(t, 798.2, preview.Net)

	override, err := svc.RefundPreview(ctx, line.ID, 500, 50)
	require.NoError(t, err)
	require.Equal(t, 500.0, override.Gross)
	require.Equal(t, 50.0, override.RestockFee)
	require.Equal(t, 300.0, override.Net)
}

func TestAutoCancelStale(t *testing.T) {
	cfg := Config{WindowDays: 60, AutoCancelAfterDays: 14}
	svc, repo, _ := newTestService(t, cfg, testOrder())
	ctx := context.Background()

	stale := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	repo.mu.Lock()
	line := repo.lines[stale.ID]
	line.RequestedAt = testNow.AddDate(0, 0, -20)
	repo.lines[stale.ID] = line
	repo.mu.Unlock()

	fresh := initiateOne(t, svc, 1002, 1, ResolutionRefund, nil)

	results, err := svc.AutoCancelStale(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, stale.ID, results[0].LineID)
	require.True(t, results[0].OK)

	item, err := svc.GetLine(ctx, stale.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, item.Line.ReturnStatus)
	require.Contains(t, item.Line.Notes, "no pickup activity for 14 days")

	item, err = svc.GetLine(ctx, fresh.ID)
	require.NoError(t, err)
	require.Equal(t, StatusRequested, item.Line.ReturnStatus)
}

func TestAutoCancelDisabled(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	results, err := svc.AutoCancelStale(context.Background())
	require.NoError(t, err)
	require.Nil(t, results)
}

func TestReportSummary(t *testing.T) {
	svc, _, _ := newTestService(t, Config{WindowDays: 30}, testOrder())
	ctx := context.Background()

	line := initiateOne(t, svc, 1001, 1, ResolutionRefund, nil)
	_, err := svc.SchedulePickup(ctx, line.ID, SchedulePickupRequest{Courier: "BlueDart", AWBNumber: "BD7"}, 1)
	require.NoError(t, err)
	_, err = svc.MarkInTransit(ctx, line.ID, 1)
	require.NoError(t, err)
	_, err = svc.Receive(ctx, line.ID, ReceiveRequest{Condition: ConditionGood}, 1)
	require.NoError(t, err)
	_, err = svc.RecordQC(ctx, line.ID, RecordQCRequest{Decision: QCApproved}, 1)
	require.NoError(t, err)
	_, err = svc.ProcessRefund(ctx, line.ID, ProcessRefundRequest{GrossAmount: 499, ShippingFee: 99, Method: "bank_transfer"}, 1)
	require.NoError(t, err)

	summary, err := svc.Report(ctx, testNow.AddDate(0, 0, -1), testNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalLines)
	require.Equal(t, 1, summary.ByStatus["complete"])
	require.Equal(t, 1, summary.RefundCount)
	require.Equal(t, 400.0, summary.RefundNetTotal)

	_, err = svc.Report(ctx, testNow, testNow.AddDate(0, 0, -1))
	require.Error(t, err)
}
