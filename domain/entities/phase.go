package entities

// Phase represents where a lottery is in its lifecycle
type Phase string

const (
	PhaseOpen              Phase = "open"
	PhaseLocked            Phase = "locked"
	PhaseDrawn             Phase = "drawn"
	PhaseSettlementPending Phase = "settlement_pending"
	PhaseSettled           Phase = "settled"
	PhaseVoid              Phase = "void"
)

// IsValid returns true if the phase is a known phase
func (p Phase) IsValid() bool {
	switch p {
	case PhaseOpen, PhaseLocked, PhaseDrawn, PhaseSettlementPending, PhaseSettled, PhaseVoid:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition can leave this phase
func (p Phase) IsTerminal() bool {
	return p == PhaseSettled || p == PhaseVoid
}

// HasDraw returns true if a lottery in this phase always has a Draw record
func (p Phase) HasDraw() bool {
	return p == PhaseDrawn || p == PhaseSettlementPending || p == PhaseSettled
}

// AwaitsSettlement returns true if the prize is drawn but not yet disbursed
func (p Phase) AwaitsSettlement() bool {
	return p == PhaseDrawn || p == PhaseSettlementPending
}

// DisplayName returns the human readable phase name used in error payloads
func (p Phase) DisplayName() string {
	switch p {
	case PhaseOpen:
		return "Open"
	case PhaseLocked:
		return "Locked"
	case PhaseDrawn:
		return "Drawn"
	case PhaseSettlementPending:
		return "SettlementPending"
	case PhaseSettled:
		return "Settled"
	case PhaseVoid:
		return "Void"
	default:
		return string(p)
	}
}

// VoidReason records why a lottery ended without a winner
type VoidReason string

const (
	VoidReasonNoTickets   VoidReason = "no_tickets"
	VoidReasonOracleStall VoidReason = "oracle_stall"
)
