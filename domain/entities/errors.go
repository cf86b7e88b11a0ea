package entities

import (
	"errors"
	"fmt"
)

// ErrorKind is the structured reason code reported to callers
type ErrorKind string

const (
	KindInvalidPhase           ErrorKind = "InvalidPhase"
	KindLotteryNotOpen         ErrorKind = "LotteryNotOpen"
	KindLotteryNotFound        ErrorKind = "LotteryNotFound"
	KindInvalidTicketCount     ErrorKind = "InvalidTicketCount"
	KindPaymentMismatch        ErrorKind = "PaymentMismatch"
	KindLotteryAtDrawHeight    ErrorKind = "LotteryAtDrawHeight"
	KindAlreadyDrawn           ErrorKind = "AlreadyDrawn"
	KindNoTicketsSold          ErrorKind = "NoTicketsSold"
	KindHashNotFinal           ErrorKind = "HashNotFinal"
	KindNotYetAvailable        ErrorKind = "NotYetAvailable"
	KindUnknownHeight          ErrorKind = "UnknownHeight"
	KindAlreadySettled         ErrorKind = "AlreadySettled"
	KindTransferFailed         ErrorKind = "TransferFailed"
	KindNotWinner              ErrorKind = "NotWinner"
	KindStallTimeoutNotReached ErrorKind = "StallTimeoutNotReached"
)

// Sentinel errors, one per kind. Match with errors.Is.
var (
	ErrInvalidPhase           = errors.New("operation not valid in the current phase")
	ErrLotteryNotOpen         = errors.New("lottery is not open")
	ErrLotteryNotFound        = errors.New("lottery not found")
	ErrInvalidTicketCount     = errors.New("invalid ticket count")
	ErrPaymentMismatch        = errors.New("payment does not match ticket count times ticket price")
	ErrLotteryAtDrawHeight    = errors.New("lottery has reached its draw block height")
	ErrAlreadyDrawn           = errors.New("lottery already drawn")
	ErrNoTicketsSold          = errors.New("no tickets sold")
	ErrHashNotFinal           = errors.New("draw block hash is not final")
	ErrNotYetAvailable        = errors.New("block hash not yet available")
	ErrUnknownHeight          = errors.New("block height predates tracked range")
	ErrAlreadySettled         = errors.New("lottery already settled")
	ErrTransferFailed         = errors.New("prize transfer failed")
	ErrNotWinner              = errors.New("claimant is not the winner")
	ErrStallTimeoutNotReached = errors.New("stall timeout not reached")
)

var sentinels = map[ErrorKind]error{
	KindInvalidPhase:           ErrInvalidPhase,
	KindLotteryNotOpen:         ErrLotteryNotOpen,
	KindLotteryNotFound:        ErrLotteryNotFound,
	KindInvalidTicketCount:     ErrInvalidTicketCount,
	KindPaymentMismatch:        ErrPaymentMismatch,
	KindLotteryAtDrawHeight:    ErrLotteryAtDrawHeight,
	KindAlreadyDrawn:           ErrAlreadyDrawn,
	KindNoTicketsSold:          ErrNoTicketsSold,
	KindHashNotFinal:           ErrHashNotFinal,
	KindNotYetAvailable:        ErrNotYetAvailable,
	KindUnknownHeight:          ErrUnknownHeight,
	KindAlreadySettled:         ErrAlreadySettled,
	KindTransferFailed:         ErrTransferFailed,
	KindNotWinner:              ErrNotWinner,
	KindStallTimeoutNotReached: ErrStallTimeoutNotReached,
}

// Sentinel returns the sentinel error for the kind
func (k ErrorKind) Sentinel() error {
	return sentinels[k]
}

// LotteryError carries a reason code together with the phase the lottery was
// actually in when the operation was rejected.
type LotteryError struct {
	Kind      ErrorKind
	Phase     Phase
	LotteryID int64
	Detail    string
	Err       error
}

// NewLotteryError creates a lottery error for the given lottery
func NewLotteryError(kind ErrorKind, lottery *Lottery, format string, args ...any) *LotteryError {
	e := &LotteryError{
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
	if lottery != nil {
		e.Phase = lottery.Phase
		e.LotteryID = lottery.ID
	}
	return e
}

// WrapLotteryError wraps a cause (usually an oracle or transfer error) in a lottery error
func WrapLotteryError(kind ErrorKind, lottery *Lottery, err error) *LotteryError {
	e := NewLotteryError(kind, lottery, "%v", err)
	e.Err = err
	return e
}

func (e *LotteryError) Error() string {
	base := e.Kind.Sentinel()
	msg := string(e.Kind)
	if base != nil {
		msg = base.Error()
	}
	if e.Phase != "" {
		msg = fmt.Sprintf("lottery %d (%s): %s", e.LotteryID, e.Phase.DisplayName(), msg)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// Is reports whether the target sentinel matches this error's kind.
// LotteryNotOpen is a specialisation of InvalidPhase and matches both.
func (e *LotteryError) Is(target error) bool {
	if target == e.Kind.Sentinel() {
		return true
	}
	return e.Kind == KindLotteryNotOpen && target == ErrInvalidPhase
}

func (e *LotteryError) Unwrap() error {
	return e.Err
}

// AsLotteryError extracts a LotteryError from an error chain
func AsLotteryError(err error) (*LotteryError, bool) {
	var le *LotteryError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// KindOf returns the reason code of err, or "" if err carries none
func KindOf(err error) ErrorKind {
	if le, ok := AsLotteryError(err); ok {
		return le.Kind
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return ""
}
