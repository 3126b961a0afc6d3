package adapter

import (
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "igrelay/internal/transport"
)

var blockedMarkers = []string{
	"bot was blocked",
	"blocked by the user",
	"user is deactivated",
	"bot was kicked",
	"chat_write_forbidden",
	"have no rights to send",
	"forbidden",
}

var invalidMarkers = []string{
	"peer_id_invalid",
	"chat not found",
	"user not found",
}

// mapError normalizes a telebot error onto the transport sentinels.
// Unrecognized errors are returned unchanged and count as transient.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return kit.RateLimited(err, time.Duration(flood.RetryAfter)*time.Second)
	}
	var floodPtr *tele.FloodError
	if errors.As(err, &floodPtr) && floodPtr != nil {
		return kit.RateLimited(err, time.Duration(floodPtr.RetryAfter)*time.Second)
	}

	if errors.Is(err, tele.ErrBlockedByUser) {
		return kit.Blocked(err)
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return kit.Invalid(err)
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "message is not modified") {
		return kit.NotModified(err)
	}
	for _, m := range invalidMarkers {
		if strings.Contains(msg, m) {
			return kit.Invalid(err)
		}
	}

	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		return kit.Blocked(err)
	}
	for _, m := range blockedMarkers {
		if strings.Contains(msg, m) {
			return kit.Blocked(err)
		}
	}
	return err
}
