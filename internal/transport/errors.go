package transport

import (
	"errors"
	"fmt"
	"time"
)

// Delivery errors. Adapters wrap platform errors with these sentinels so callers
// can decide without knowing the platform SDK:
//
//	errors.Is(err, transport.ErrRecipientBlocked)
var (
	// ErrRecipientBlocked means the recipient can never be reached again
	// (blocked the bot, deactivated, kicked, write forbidden).
	ErrRecipientBlocked = errors.New("recipient unreachable: blocked")
	// ErrRecipientInvalid means the recipient id no longer resolves.
	ErrRecipientInvalid = errors.New("recipient unreachable: invalid id")
	// ErrNotModified is returned by EditText when the new content equals the old one.
	ErrNotModified = errors.New("message not modified")
	// ErrPartialDelivery means a multi-part message failed after some parts
	// were delivered. It is never retryable.
	ErrPartialDelivery = errors.New("message partially delivered")
)

// Blocked wraps err as ErrRecipientBlocked while keeping the original in the chain.
func Blocked(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRecipientBlocked, err)
}

// Invalid wraps err as ErrRecipientInvalid while keeping the original in the chain.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrRecipientInvalid, err)
}

// NotModified wraps err as ErrNotModified.
func NotModified(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNotModified, err)
}

// RateLimited marks err as a remote throttling signal carrying the exact delay
// requested by the platform.
func RateLimited(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	if after < 0 {
		after = 0
	}
	return retryAfterError{err: err, after: after}
}

// RetryAfterError is implemented by errors that carry an explicit retry delay.
type RetryAfterError interface {
	error
	RetryAfter() time.Duration
}

// RetryAfterOf extracts the retry delay from err, if any.
func RetryAfterOf(err error) (time.Duration, bool) {
	var ra RetryAfterError
	if errors.As(err, &ra) {
		return ra.RetryAfter(), true
	}
	return 0, false
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string             { return fmt.Sprintf("retry-after(%s): %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error             { return e.err }
func (e retryAfterError) RetryAfter() time.Duration { return e.after }

// Partial reports that sent of total parts were delivered before err. The
// result matches only ErrPartialDelivery: any retry delay or recipient state
// carried by err is dropped so the caller cannot resend delivered parts.
func Partial(err error, sent, total int) error {
	if err == nil {
		return nil
	}
	return partialError{cause: err, sent: sent, total: total}
}

type partialError struct {
	cause       error
	sent, total int
}

func (e partialError) Error() string {
	return fmt.Sprintf("%v after %d/%d parts: %v", ErrPartialDelivery, e.sent, e.total, e.cause)
}
func (e partialError) Unwrap() error { return ErrPartialDelivery }
