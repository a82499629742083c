package enums

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateReservation OutboxAggregateType = "reservation"
	AggregatePayment     OutboxAggregateType = "payment"
)

func (a OutboxAggregateType) IsValid() bool {
	return oneOf([]OutboxAggregateType{AggregateReservation, AggregatePayment}, a)
}

// OutboxEventType doubles as the AMQP routing key, so names are dotted.
type OutboxEventType string

const (
	EventReservationCreated    OutboxEventType = "reservation.created"
	EventReservationUpdated    OutboxEventType = "reservation.updated"
	EventReservationDeleted    OutboxEventType = "reservation.deleted"
	EventReservationReconciled OutboxEventType = "reservation.payment_reconciled"
	EventPaymentRecorded       OutboxEventType = "payment.recorded"
)

var eventTypes = []OutboxEventType{
	EventReservationCreated,
	EventReservationUpdated,
	EventReservationDeleted,
	EventReservationReconciled,
	EventPaymentRecorded,
}

func (e OutboxEventType) IsValid() bool { return oneOf(eventTypes, e) }
