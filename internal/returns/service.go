package returns

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/stitchworks-erp/stitchworks-erp/internal/ledger"
	"github.com/stitchworks-erp/stitchworks-erp/internal/orders"
	"github.com/stitchworks-erp/stitchworks-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetLine(ctx context.Context, id int64) (ReturnLine, error)
	ListOpen(ctx context.Context) ([]ReturnLine, error)
	ListByOrder(ctx context.Context, orderID int64) ([]ReturnLine, error)
	ReturnedQtyByOrderLine(ctx context.Context, orderLineIDs []int64) (map[int64]int, error)
	GetRefund(ctx context.Context, lineID int64) (RefundRecord, error)
	ListStaleRequested(ctx context.Context, before time.Time) ([]int64, error)
	Summary(ctx context.Context, from, to time.Time) (Summary, error)
}

// OrderPort is the order lookup / exchange-creation collaborator.
type OrderPort interface {
	Lookup(ctx context.Context, orderNumber string) (*orders.Order, error)
	Get(ctx context.Context, id int64) (*orders.Order, error)
	CreateExchangeOrder(ctx context.Context, input orders.CreateExchangeInput) (orders.ExchangeOrder, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service drives the return line state machine. Every transition validates
// its precondition against current state inside one transaction; concurrent
// attempts on the same line are resolved by the loser failing that check.
type Service struct {
	repo   RepositoryPort
	orders OrderPort
	config ConfigProvider
	audit  AuditPort
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, orderPort OrderPort, config ConfigProvider, audit AuditPort) *Service {
	return &Service{repo: repo, orders: orderPort, config: config, audit: audit, now: time.Now}
}

// SearchOrderForReturn looks up an order and computes per-line eligibility.
// Read-only; no side effect.
func (s *Service) SearchOrderForReturn(ctx context.Context, orderNumber string) (*OrderForReturn, error) {
	order, err := s.orders.Lookup(ctx, orderNumber)
	if err != nil {
		return nil, err
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load return config: %w", err)
	}

	lineIDs := make([]int64, 0, len(order.Lines))
	for _, line := range order.Lines {
		lineIDs = append(lineIDs, line.ID)
	}
	returned, err := s.repo.ReturnedQtyByOrderLine(ctx, lineIDs)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	eligibility := make([]LineEligibility, 0, len(order.Lines))
	for _, line := range order.Lines {
		eligibility = append(eligibility, evaluateLine(order, line, returned[line.ID], cfg, now))
	}
	return &OrderForReturn{Order: order, Eligibility: eligibility}, nil
}

// evaluateLine derives eligibility for one order line. Never persisted.
func evaluateLine(order *orders.Order, line orders.OrderLine, returnedQty int, cfg Config, now time.Time) LineEligibility {
	result := LineEligibility{OrderLineID: line.ID, RemainingQty: line.Qty - returnedQty}
	if result.RemainingQty < 0 {
		result.RemainingQty = 0
	}

	if order.Status == orders.OrderStatusCancelled {
		result.Reason = "order is cancelled"
		return result
	}
	if result.RemainingQty == 0 {
		result.Reason = "line already fully returned"
		return result
	}
	if order.ShippedAt == nil {
		result.Reason = "order has not shipped"
		return result
	}

	windowEnd := order.ShippedAt.AddDate(0, 0, cfg.WindowDays)
	if now.After(windowEnd) {
		result.Reason = fmt.Sprintf("return window of %d days closed on %s", cfg.WindowDays, windowEnd.Format("2006-01-02"))
		return result
	}

	days := int(windowEnd.Sub(now).Hours() / 24)
	result.Eligible = true
	result.DaysRemaining = &days
	if cfg.GraceDays > 0 && days <= cfg.GraceDays {
		result.Warning = fmt.Sprintf("return window closes in %d days", days)
	}
	return result
}

// InitiateReturn creates one return line per selected order line, all in
// requested status. Eligibility and quantity are re-validated server side
// inside the transaction; any failing line rejects the whole request.
func (s *Service) InitiateReturn(ctx context.Context, req InitiateReturnRequest, actorID int64) ([]ReturnLine, error) {
	if len(req.Lines) == 0 {
		return nil, &ValidationError{Problems: []string{"at least one line must be selected"}}
	}
	if !ValidReasonCategory(req.ReasonCategory) {
		return nil, &ValidationError{Problems: []string{fmt.Sprintf("unknown reason category %q", req.ReasonCategory)}}
	}
	if req.Resolution == ResolutionExchange && (req.ExchangeSKUID == nil || *req.ExchangeSKUID <= 0) {
		return nil, &ValidationError{Problems: []string{"exchange resolution requires exchange_sku_id"}}
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load return config: %w", err)
	}

	orderLines := make(map[int64]orders.OrderLine, len(order.Lines))
	for _, line := range order.Lines {
		orderLines[line.ID] = line
	}

	batchNumber := ""
	if len(req.Lines) > 1 {
		batchNumber = uuid.NewString()
	}

	now := s.now().UTC()
	var created []ReturnLine
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var problems []string
		var toInsert []ReturnLine
		for _, sel := range req.Lines {
			orderLine, ok := orderLines[sel.OrderLineID]
			if !ok {
				problems = append(problems, fmt.Sprintf("order line %d does not belong to order %d", sel.OrderLineID, req.OrderID))
				continue
			}
			returnedQty, err := tx.ReturnedQty(ctx, sel.OrderLineID)
			if err != nil {
				return err
			}
			elig := evaluateLine(order, orderLine, returnedQty, cfg, now)
			if !elig.Eligible {
				problems = append(problems, fmt.Sprintf("order line %d: %s", sel.OrderLineID, elig.Reason))
				continue
			}
			if sel.Qty < 1 || sel.Qty > elig.RemainingQty {
				problems = append(problems, fmt.Sprintf("order line %d: qty %d outside returnable range 1..%d", sel.OrderLineID, sel.Qty, elig.RemainingQty))
				continue
			}
			toInsert = append(toInsert, ReturnLine{
				OrderID:           order.ID,
				OrderLineID:       orderLine.ID,
				SKUID:             orderLine.SKUID,
				ReturnBatchNumber: batchNumber,
				ReturnQty:         sel.Qty,
				UnitPrice:         orderLine.UnitPrice,
				ReasonCategory:    req.ReasonCategory,
				ReasonDetail:      req.ReasonDetail,
				Resolution:        req.Resolution,
				ReturnStatus:      StatusRequested,
				PickupType:        req.PickupType,
				ExchangeSKUID:     req.ExchangeSKUID,
				Notes:             req.Notes,
				RequestedAt:       now,
			})
		}
		if len(problems) > 0 {
			return &ValidationError{Problems: problems}
		}
		for _, line := range toInsert {
			id, err := tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = id
			created = append(created, line)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, line := range created {
		s.recordAudit(ctx, actorID, "returns:initiate", line.ID, map[string]any{
			"order_id":   line.OrderID,
			"return_qty": line.ReturnQty,
			"resolution": line.Resolution,
		})
	}
	return created, nil
}

// Queue lists open lines with their derived next action, optionally filtered
// to one order.
func (s *Service) Queue(ctx context.Context, orderID int64) ([]QueueItem, error) {
	var lines []ReturnLine
	var err error
	if orderID != 0 {
		lines, err = s.repo.ListByOrder(ctx, orderID)
	} else {
		lines, err = s.repo.ListOpen(ctx)
	}
	if err != nil {
		return nil, err
	}
	items := make([]QueueItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, QueueItem{
			Line:         line,
			ActionNeeded: ComputeActionNeeded(line),
			ManualReview: NeedsManualReview(line),
		})
	}
	return items, nil
}

// GetLine loads one line with its derived action.
func (s *Service) GetLine(ctx context.Context, id int64) (QueueItem, error) {
	line, err := s.repo.GetLine(ctx, id)
	if err != nil {
		return QueueItem{}, err
	}
	return QueueItem{Line: line, ActionNeeded: ComputeActionNeeded(line), ManualReview: NeedsManualReview(line)}, nil
}

// transition runs one precondition-checked mutation of a line inside a
// transaction. required is matched against the derived action.
func (s *Service) transition(ctx context.Context, lineID int64, op string, required ActionNeeded, mutate func(*ReturnLine, TxRepository) error) (ReturnLine, error) {
	var updated ReturnLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if actual := ComputeActionNeeded(line); actual != required {
			return &TransitionError{
				LineID:   lineID,
				Op:       op,
				Current:  line.ReturnStatus,
				Required: fmt.Sprintf("action %q (line currently needs %q)", required, actual),
			}
		}
		if err := mutate(&line, tx); err != nil {
			return err
		}
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return nil
	})
	if err != nil {
		return ReturnLine{}, err
	}
	return updated, nil
}

// SchedulePickup assigns courier and AWB and advances to pickup_scheduled.
func (s *Service) SchedulePickup(ctx context.Context, lineID int64, req SchedulePickupRequest, actorID int64) (ReturnLine, error) {
	if req.Courier == "" || req.AWBNumber == "" {
		return ReturnLine{}, &ValidationError{Problems: []string{"courier and awb_number are required"}}
	}
	line, err := s.transition(ctx, lineID, "schedule_pickup", ActionSchedulePickup, func(line *ReturnLine, _ TxRepository) error {
		line.ReturnCourier = req.Courier
		line.ReturnAWBNumber = req.AWBNumber
		line.ReturnStatus = StatusPickupScheduled
		return nil
	})
	if err != nil {
		return ReturnLine{}, err
	}
	s.recordAudit(ctx, actorID, "returns:schedule_pickup", line.ID, map[string]any{
		"courier": req.Courier,
		"awb":     req.AWBNumber,
	})
	return line, nil
}

// SchedulePickupBatch applies SchedulePickup to every member line and
// reports per-line outcomes; one failure never aborts the batch.
func (s *Service) SchedulePickupBatch(ctx context.Context, req PickupBatchRequest, actorID int64) []BatchResult {
	results := make([]BatchResult, 0, len(req.LineIDs))
	for _, id := range req.LineIDs {
		_, err := s.SchedulePickup(ctx, id, SchedulePickupRequest{Courier: req.Courier, AWBNumber: req.AWBNumber}, actorID)
		result := BatchResult{LineID: id, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// MarkInTransit records the courier picked the parcel up.
func (s *Service) MarkInTransit(ctx context.Context, lineID int64, actorID int64) (ReturnLine, error) {
	var updated ReturnLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if line.ReturnStatus != StatusPickupScheduled {
			return &TransitionError{LineID: lineID, Op: "mark_in_transit", Current: line.ReturnStatus, Required: fmt.Sprintf("status %q", StatusPickupScheduled)}
		}
		line.ReturnStatus = StatusInTransit
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return nil
	})
	if err != nil {
		return ReturnLine{}, err
	}
	s.recordAudit(ctx, actorID, "returns:mark_in_transit", updated.ID, nil)
	return updated, nil
}

// Receive records the observed condition and advances to received. Inventory
// is deliberately not posted here; that happens at QC approval so damaged
// stock is never inwarded by accident.
func (s *Service) Receive(ctx context.Context, lineID int64, req ReceiveRequest, actorID int64) (ReturnLine, error) {
	if !ValidCondition(req.Condition) {
		return ReturnLine{}, &ValidationError{Problems: []string{fmt.Sprintf("unknown condition %q", req.Condition)}}
	}
	line, err := s.transition(ctx, lineID, "receive", ActionReceive, func(line *ReturnLine, _ TxRepository) error {
		now := s.now().UTC()
		line.Condition = req.Condition
		line.ReceivedAt = &now
		line.ReturnStatus = StatusReceived
		return nil
	})
	if err != nil {
		return ReturnLine{}, err
	}
	s.recordAudit(ctx, actorID, "returns:receive", line.ID, map[string]any{"condition": req.Condition})
	return line, nil
}

// RecordQC stores the quality verdict exactly once. Approval of a sellable
// unit posts the single inward ledger entry for this return; a second call
// fails with a conflict and never posts twice.
func (s *Service) RecordQC(ctx context.Context, lineID int64, req RecordQCRequest, actorID int64) (QueueItem, error) {
	if req.Decision != QCApproved && req.Decision != QCWrittenOff {
		return QueueItem{}, &ValidationError{Problems: []string{fmt.Sprintf("unknown qc decision %q", req.Decision)}}
	}
	if req.Decision == QCWrittenOff && req.WriteOffReason == "" {
		return QueueItem{}, &ValidationError{Problems: []string{"write_off_reason is required for a write-off"}}
	}

	var updated ReturnLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if line.ReturnStatus != StatusReceived {
			return &TransitionError{LineID: lineID, Op: "record_qc", Current: line.ReturnStatus, Required: fmt.Sprintf("status %q", StatusReceived)}
		}
		if line.QCResult != "" {
			return ErrQCAlreadyRecorded
		}

		line.QCResult = req.Decision
		if req.Comments != "" {
			line.Notes = appendNote(line.Notes, "qc: "+req.Comments)
		}
		if req.Decision == QCWrittenOff {
			line.Notes = appendNote(line.Notes, "write-off: "+req.WriteOffReason)
		}

		if req.Decision == QCApproved && line.Condition == ConditionGood {
			// Single point of stock re-entry for returns.
			_, err := tx.InsertLedgerEntry(ctx, ledger.Entry{
				SKUID:       line.SKUID,
				TxnType:     ledger.TxnTypeInward,
				Qty:         line.ReturnQty,
				Reason:      ledger.ReasonReturnReceived,
				ReferenceID: strconv.FormatInt(line.ID, 10),
				PostedAt:    s.now().UTC(),
				CreatedByID: actorID,
			})
			if err != nil {
				return err
			}
		}

		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return nil
	})
	if err != nil {
		return QueueItem{}, err
	}
	s.recordAudit(ctx, actorID, "returns:record_qc", updated.ID, map[string]any{
		"decision":  req.Decision,
		"condition": updated.Condition,
	})
	return QueueItem{Line: updated, ActionNeeded: ComputeActionNeeded(updated), ManualReview: NeedsManualReview(updated)}, nil
}

// ProcessRefund computes the net refund, posts the single RefundRecord and
// completes the line. A non-positive net is rejected, never clamped.
func (s *Service) ProcessRefund(ctx context.Context, lineID int64, req ProcessRefundRequest, actorID int64) (RefundRecord, error) {
	breakdown := RefundBreakdown{
		Gross:       req.GrossAmount,
		Clawback:    req.Clawback,
		ShippingFee: req.ShippingFee,
		RestockFee:  req.RestockFee,
		OtherFees:   req.OtherFees,
	}
	if !breakdown.Positive() {
		return RefundRecord{}, fmt.Errorf("%w: gross %.2f - clawback %.2f - deductions %.2f = %.2f",
			ErrNonPositiveRefund, breakdown.Gross, breakdown.Clawback, breakdown.TotalDeductions(), breakdown.Net())
	}

	var record RefundRecord
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if actual := ComputeActionNeeded(line); actual != ActionProcessRefund {
			return &TransitionError{LineID: lineID, Op: "process_refund", Current: line.ReturnStatus, Required: fmt.Sprintf("action %q (line currently needs %q)", ActionProcessRefund, actual)}
		}

		now := s.now().UTC()
		record = RefundRecord{
			ReturnLineID: line.ID,
			GrossAmount:  breakdown.Gross,
			Clawback:     breakdown.Clawback,
			ShippingFee:  breakdown.ShippingFee,
			RestockFee:   breakdown.RestockFee,
			OtherFees:    breakdown.OtherFees,
			NetAmount:    breakdown.Net(),
			Method:       req.Method,
			Notes:        req.DeductionNotes,
			PostedAt:     now,
			PostedByID:   actorID,
		}
		id, err := tx.InsertRefund(ctx, record)
		if err != nil {
			return err
		}
		record.ID = id

		gross, clawback, deductions, net := breakdown.Gross, breakdown.Clawback, breakdown.TotalDeductions(), breakdown.Net()
		line.RefundGrossAmount = &gross
		line.DiscountClawback = &clawback
		line.Deductions = &deductions
		line.NetRefundAmount = &net
		line.RefundMethod = req.Method
		line.ReturnStatus = StatusComplete
		line.CompletedAt = &now
		return tx.UpdateLine(ctx, line)
	})
	if err != nil {
		return RefundRecord{}, err
	}
	s.recordAudit(ctx, actorID, "returns:process_refund", lineID, map[string]any{
		"gross": record.GrossAmount,
		"net":   record.NetAmount,
	})
	return record, nil
}

// RefundPreview suggests the fee breakdown for a line under current policy.
// Zero gross defaults to the line's snapshotted refund basis.
func (s *Service) RefundPreview(ctx context.Context, lineID int64, gross, clawback float64) (RefundPreview, error) {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return RefundPreview{}, err
	}
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return RefundPreview{}, fmt.Errorf("load return config: %w", err)
	}
	if gross <= 0 {
		gross = line.UnitPrice * float64(line.ReturnQty)
	}
	shippingFee, restockFee := SuggestedFees(cfg, gross)
	breakdown := RefundBreakdown{Gross: gross, Clawback: clawback, ShippingFee: shippingFee, RestockFee: restockFee}
	return RefundPreview{
		Gross:       gross,
		Clawback:    clawback,
		ShippingFee: shippingFee,
		RestockFee:  restockFee,
		Restocking:  cfg.Restocking,
		Net:         breakdown.Net(),
	}, nil
}

// CreateExchange creates the replacement order and completes the line.
func (s *Service) CreateExchange(ctx context.Context, lineID int64, actorID int64) (ReturnLine, error) {
	var updated ReturnLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if actual := ComputeActionNeeded(line); actual != ActionCreateExchange {
			return &TransitionError{LineID: lineID, Op: "create_exchange", Current: line.ReturnStatus, Required: fmt.Sprintf("action %q (line currently needs %q)", ActionCreateExchange, actual)}
		}
		if line.ExchangeSKUID == nil {
			return &ValidationError{Problems: []string{"line has no exchange sku recorded"}}
		}

		order, err := s.orders.Get(ctx, line.OrderID)
		if err != nil {
			return err
		}
		exchange, err := s.orders.CreateExchangeOrder(ctx, orders.CreateExchangeInput{
			CustomerID:    order.CustomerID,
			SourceOrderID: line.OrderID,
			SourceLineID:  line.ID,
			ExchangeSKUID: *line.ExchangeSKUID,
			Qty:           line.ReturnQty,
			CreatedByID:   actorID,
		})
		if err != nil {
			return err
		}

		now := s.now().UTC()
		line.ExchangeOrderID = &exchange.ID
		line.ExchangeOrderNumber = exchange.OrderNumber
		line.ReturnStatus = StatusComplete
		line.CompletedAt = &now
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return nil
	})
	if err != nil {
		return ReturnLine{}, err
	}
	s.recordAudit(ctx, actorID, "returns:create_exchange", updated.ID, map[string]any{
		"exchange_order": updated.ExchangeOrderNumber,
	})
	return updated, nil
}

// Complete is the direct terminal transition for write-off lines that need
// no money or exchange step.
func (s *Service) Complete(ctx context.Context, lineID int64, actorID int64) (ReturnLine, error) {
	line, err := s.transition(ctx, lineID, "complete", ActionComplete, func(line *ReturnLine, _ TxRepository) error {
		now := s.now().UTC()
		line.ReturnStatus = StatusComplete
		line.CompletedAt = &now
		return nil
	})
	if err != nil {
		return ReturnLine{}, err
	}
	s.recordAudit(ctx, actorID, "returns:complete", line.ID, nil)
	return line, nil
}

// Cancel ends a line from any non-terminal state. Postings already made are
// never reversed; by transition ordering a cancellable line has none.
func (s *Service) Cancel(ctx context.Context, lineID int64, reason string, actorID int64) (ReturnLine, error) {
	var updated ReturnLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		if line.ReturnStatus.Terminal() {
			return &TransitionError{LineID: lineID, Op: "cancel", Current: line.ReturnStatus, Required: "a non-terminal status"}
		}
		line.ReturnStatus = StatusCancelled
		if reason != "" {
			line.Notes = appendNote(line.Notes, "cancelled: "+reason)
		}
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return nil
	})
	if err != nil {
		return ReturnLine{}, err
	}
	s.recordAudit(ctx, actorID, "returns:cancel", updated.ID, map[string]any{"reason": reason})
	return updated, nil
}

// UpdateNotes replaces the notes text. The only mutation permitted after a
// line reaches a terminal status, kept for audit annotation.
func (s *Service) UpdateNotes(ctx context.Context, lineID int64, notes string, actorID int64) (ReturnLine, error) {
	var updated ReturnLine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		line, err := tx.GetLineForUpdate(ctx, lineID)
		if err != nil {
			return err
		}
		line.Notes = notes
		if err := tx.UpdateLine(ctx, line); err != nil {
			return err
		}
		updated = line
		return nil
	})
	if err != nil {
		return ReturnLine{}, err
	}
	s.recordAudit(ctx, actorID, "returns:update_notes", updated.ID, nil)
	return updated, nil
}

// Refund loads the posted refund record of a line.
func (s *Service) Refund(ctx context.Context, lineID int64) (RefundRecord, error) {
	return s.repo.GetRefund(ctx, lineID)
}

// Report aggregates return activity for the date range.
func (s *Service) Report(ctx context.Context, from, to time.Time) (Summary, error) {
	if to.Before(from) {
		return Summary{}, errors.New("returns: report range end before start")
	}
	return s.repo.Summary(ctx, from, to)
}

// AutoCancelStale cancels requested lines older than the configured cutoff.
// A thin loop over the single-line transition with per-line outcomes; used
// by the nightly worker.
func (s *Service) AutoCancelStale(ctx context.Context) ([]BatchResult, error) {
	cfg, err := s.config.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load return config: %w", err)
	}
	if cfg.AutoCancelAfterDays <= 0 {
		return nil, nil
	}
	cutoff := s.now().UTC().AddDate(0, 0, -cfg.AutoCancelAfterDays)
	ids, err := s.repo.ListStaleRequested(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	results := make([]BatchResult, 0, len(ids))
	for _, id := range ids {
		_, err := s.Cancel(ctx, id, fmt.Sprintf("no pickup activity for %d days", cfg.AutoCancelAfterDays), 0)
		result := BatchResult{LineID: id, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, lineID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "return_line",
		EntityID: strconv.FormatInt(lineID, 10),
		Meta:     meta,
	})
}

func appendNote(existing, note string) string {
	if existing == "" {
		return note
	}
	return existing + "\n" + note
}
