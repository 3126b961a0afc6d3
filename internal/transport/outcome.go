package transport

import (
	"errors"
	"time"
)

// Outcome is the result of one delivery attempt to one recipient.
type Outcome int

const (
	OutcomeSent Outcome = iota
	OutcomeBlocked
	OutcomeInvalidRecipient
	OutcomeRateLimited
	OutcomeTransient
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSent:
		return "sent"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeInvalidRecipient:
		return "invalid_recipient"
	case OutcomeRateLimited:
		return "rate_limited"
	default:
		return "transient"
	}
}

// Classify maps a SendText error to an Outcome. For OutcomeRateLimited the
// returned duration is the delay requested by the platform.
func Classify(err error) (Outcome, time.Duration) {
	if err == nil {
		return OutcomeSent, 0
	}
	if d, ok := RetryAfterOf(err); ok {
		return OutcomeRateLimited, d
	}
	switch {
	case errors.Is(err, ErrRecipientBlocked):
		return OutcomeBlocked, 0
	case errors.Is(err, ErrRecipientInvalid):
		return OutcomeInvalidRecipient, 0
	default:
		return OutcomeTransient, 0
	}
}
