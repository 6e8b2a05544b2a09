package returns

// ActionNeeded is the next operator action derived from current line state.
// It is never stored; the projection below is the authoritative contract for
// the action queue, so UI and automation cannot disagree with the line.
type ActionNeeded string

const (
	ActionSchedulePickup ActionNeeded = "schedule_pickup"
	ActionReceive        ActionNeeded = "receive"
	ActionAwaitingQC     ActionNeeded = "awaiting_qc"
	ActionProcessRefund  ActionNeeded = "process_refund"
	ActionCreateExchange ActionNeeded = "create_exchange"
	ActionComplete       ActionNeeded = "complete"
	ActionNone           ActionNeeded = "none"
)

// ComputeActionNeeded derives the next required action for a line. Pure
// function of (status, pickup type, qc result, resolution); terminal lines
// always map to ActionNone.
func ComputeActionNeeded(line ReturnLine) ActionNeeded {
	switch line.ReturnStatus {
	case StatusRequested:
		if line.PickupType == PickupCustomerShipped {
			// Customer ships it themselves; there is no pickup step.
			return ActionReceive
		}
		return ActionSchedulePickup
	case StatusPickupScheduled, StatusInTransit:
		return ActionReceive
	case StatusReceived:
		switch line.QCResult {
		case "":
			return ActionAwaitingQC
		case QCWrittenOff:
			// Write-off ends the line; an exchange request on a written-off
			// item is surfaced for manual review, not automated.
			return ActionComplete
		case QCApproved:
			if line.Resolution == ResolutionExchange {
				return ActionCreateExchange
			}
			return ActionProcessRefund
		}
		return ActionAwaitingQC
	case StatusComplete, StatusCancelled:
		return ActionNone
	}
	return ActionNone
}

// NeedsManualReview reports whether the line combines a written-off item
// with an exchange request, which has no automated resolution.
func NeedsManualReview(line ReturnLine) bool {
	return line.QCResult == QCWrittenOff && line.Resolution == ResolutionExchange
}
