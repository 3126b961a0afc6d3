package broadcast

import (
	"context"
	"errors"
	"time"

	kit "igrelay/internal/transport"
)

// ErrInProgress is returned when a broadcast is requested while another one runs.
var ErrInProgress = errors.New("broadcast already in progress")

// Recipients is the registry surface the engine needs.
type Recipients interface {
	All() []int64
	Remove(ctx context.Context, id int64) bool
}

// Sender is the delivery surface the engine needs; transport.Adapter satisfies it.
type Sender interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
}

type Config struct {
	// Pace is the fixed delay after every delivery attempt.
	Pace time.Duration
	// ProgressEvery is how many recipients pass between progress reports.
	ProgressEvery int
	// ParseMode is the Telegram parse mode of the body; empty sends plain text.
	ParseMode string
}

const (
	DefaultPace          = 100 * time.Millisecond
	DefaultProgressEvery = 10
)

// Progress is a live view of a running broadcast.
type Progress struct {
	JobID   string
	Sent    int
	Failed  int
	Blocked int
	Done    int
	Total   int
}

// Result summarizes a finished broadcast. Sent+Failed+Blocked == Total.
type Result struct {
	JobID    string
	Sent     int
	Failed   int
	Blocked  int
	Total    int
	Canceled bool
	Took     time.Duration
}

// SuccessRate is Sent/Total, 0 for an empty broadcast.
func (r Result) SuccessRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Sent) / float64(r.Total)
}

// Reporter receives progress for one broadcast. Errors are logged by the
// engine and never stop delivery.
type Reporter interface {
	NoRecipients(ctx context.Context) error
	Started(ctx context.Context, p Progress) error
	Update(ctx context.Context, p Progress) error
	Done(ctx context.Context, r Result) error
}

// NopReporter discards all progress.
type NopReporter struct{}

func (NopReporter) NoRecipients(context.Context) error      { return nil }
func (NopReporter) Started(context.Context, Progress) error { return nil }
func (NopReporter) Update(context.Context, Progress) error  { return nil }
func (NopReporter) Done(context.Context, Result) error      { return nil }
