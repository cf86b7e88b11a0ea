package observability

// Metric name prefixes
const (
	MetricPrefix = "blocklotto"
)

// Metric names
const (
	// Lottery metrics
	TicketsSoldTotal       = MetricPrefix + ".tickets.sold_total"
	PhaseTransitionsTotal  = MetricPrefix + ".lottery.phase_transitions_total"
	DrawsTotal             = MetricPrefix + ".draws_total"
	SettlementsTotal       = MetricPrefix + ".settlements_total"
	PrizeAmountTotal       = MetricPrefix + ".settlements.amount_total"
	OperationErrorsTotal   = MetricPrefix + ".operations.errors_total"
	DriveIterationDuration = MetricPrefix + ".drive.iteration_duration"

	// Oracle metrics
	OracleTipHeight = MetricPrefix + ".oracle.tip_height"

	// NATS metrics
	NATSMessagesPublishedTotal = MetricPrefix + ".nats.messages_published_total"
)

// Label keys
const (
	LabelEventType = "event_type"
	LabelOperation = "operation"
	LabelErrorKind = "error_kind"
	LabelFromPhase = "from_phase"
	LabelToPhase   = "to_phase"
	LabelOutcome   = "outcome"
	LabelMethod    = "method"
)

// Settlement outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)
