package enums

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregatePayment    OutboxAggregateType = "payment"
	AggregateCommission OutboxAggregateType = "commission"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregatePayment || a == AggregateCommission
}

// OutboxEventType names a domain event written to outbox_events.
type OutboxEventType string

const (
	EventPaymentInitiated          OutboxEventType = "payment_initiated"
	EventPaymentStatusChanged      OutboxEventType = "payment_status_changed"
	EventCommissionPayoutRequested OutboxEventType = "commission_payout_requested"
)

// eventAggregates fixes which entity each event is keyed by.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventPaymentInitiated:          AggregatePayment,
	EventPaymentStatusChanged:      AggregatePayment,
	EventCommissionPayoutRequested: AggregateCommission,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate is empty for an unknown event type.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}
