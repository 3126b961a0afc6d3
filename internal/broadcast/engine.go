package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"igrelay/internal/eventbus"
	"igrelay/internal/metrics"
	kit "igrelay/internal/transport"
	logx "igrelay/pkg/logx"
)

// ReportTimeout bounds reporter calls made after the broadcast context is done.
const ReportTimeout = 10 * time.Second

// Engine delivers one message to every registry member, one recipient at a time.
type Engine struct {
	recipients Recipients
	sender     Sender

	cfgMu sync.RWMutex
	cfg   Config

	clock clockwork.Clock
	log   logx.Logger
	bus   eventbus.Bus

	running atomic.Bool
}

type Option func(*Engine)

func WithClock(c clockwork.Clock) Option { return func(e *Engine) { e.clock = c } }
func WithLogger(l logx.Logger) Option    { return func(e *Engine) { e.log = l } }
func WithBus(b eventbus.Bus) Option      { return func(e *Engine) { e.bus = b } }

func normalizeConfig(cfg Config) Config {
	if cfg.Pace < 0 {
		cfg.Pace = 0
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = DefaultProgressEvery
	}
	return cfg
}

func New(recipients Recipients, sender Sender, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		recipients: recipients,
		sender:     sender,
		cfg:        normalizeConfig(cfg),
		clock:      clockwork.NewRealClock(),
		log:        logx.Nop(),
		bus:        eventbus.Nop(),
	}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.With(logx.Comp("broadcast"))
	return e
}

// SetConfig replaces pacing and progress cadence. A running broadcast keeps
// the values it started with.
func (e *Engine) SetConfig(cfg Config) {
	e.cfgMu.Lock()
	e.cfg = normalizeConfig(cfg)
	e.cfgMu.Unlock()
}

func (e *Engine) config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// Running reports whether a broadcast is in flight.
func (e *Engine) Running() bool { return e.running.Load() }

// Broadcast sends body to a snapshot of the registry.
//
// Blocked and invalid recipients are removed from the registry. A rate-limited
// delivery waits the requested delay and is retried once. If ctx is canceled
// the remaining recipients count as failed and Result.Canceled is set.
func (e *Engine) Broadcast(ctx context.Context, body string, rep Reporter) (Result, error) {
	if !e.running.CompareAndSwap(false, true) {
		return Result{}, ErrInProgress
	}
	defer e.running.Store(false)
	if rep == nil {
		rep = NopReporter{}
	}

	cfg := e.config()
	jobID := uuid.NewString()
	log := e.log.With(logx.Job(jobID))
	snapshot := e.recipients.All()
	total := len(snapshot)

	if total == 0 {
		log.Info("broadcast skipped: no recipients")
		metrics.BroadcastsTotal.WithLabelValues("empty").Inc()
		e.report(ctx, log, "no_recipients", func(c context.Context) error { return rep.NoRecipients(c) })
		return Result{JobID: jobID}, nil
	}

	metrics.BroadcastInProgress.Set(1)
	defer metrics.BroadcastInProgress.Set(0)
	start := e.clock.Now()
	e.bus.Publish(eventbus.Event{Type: eventbus.BroadcastStarted, Data: Progress{JobID: jobID, Total: total}})
	log.Info("broadcast started", logx.Int("total", total))

	p := Progress{JobID: jobID, Total: total}
	e.report(ctx, log, "started", func(c context.Context) error { return rep.Started(c, p) })

	canceled := false
	for i, id := range snapshot {
		if ctx.Err() != nil {
			canceled = true
			p.Failed += total - i
			p.Done = total
			break
		}

		switch e.deliver(ctx, log, id, body, cfg.ParseMode) {
		case kit.OutcomeSent:
			p.Sent++
		case kit.OutcomeBlocked:
			p.Blocked++
		default:
			p.Failed++
		}
		p.Done = i + 1

		if p.Done%cfg.ProgressEvery == 0 || p.Done == total {
			snap := p
			e.report(ctx, log, "update", func(c context.Context) error { return rep.Update(c, snap) })
		}
		if cfg.Pace > 0 {
			_ = e.sleep(ctx, cfg.Pace)
		}
	}

	res := Result{
		JobID:    jobID,
		Sent:     p.Sent,
		Failed:   p.Failed,
		Blocked:  p.Blocked,
		Total:    total,
		Canceled: canceled,
		Took:     e.clock.Since(start),
	}

	label := "completed"
	if canceled {
		label = "canceled"
	}
	metrics.BroadcastsTotal.WithLabelValues(label).Inc()
	metrics.BroadcastDuration.Observe(res.Took.Seconds())
	e.bus.Publish(eventbus.Event{Type: eventbus.BroadcastFinished, Data: res})
	log.Info("broadcast finished",
		logx.Int("sent", res.Sent),
		logx.Int("failed", res.Failed),
		logx.Int("blocked", res.Blocked),
		logx.Int("total", res.Total),
		logx.Bool("canceled", res.Canceled),
		logx.Duration("took", res.Took),
	)

	e.report(ctx, log, "done", func(c context.Context) error { return rep.Done(c, res) })
	return res, nil
}

// deliver makes at most two attempts and applies pruning. The returned outcome
// is what the recipient is counted as.
func (e *Engine) deliver(ctx context.Context, log logx.Logger, id int64, body, parseMode string) kit.Outcome {
	to := kit.ChatTarget{ChatID: id}
	opts := &kit.SendOptions{ParseMode: parseMode}
	_, err := e.sender.SendText(ctx, to, body, opts)
	outcome, after := kit.Classify(err)

	switch outcome {
	case kit.OutcomeSent:
	case kit.OutcomeRateLimited:
		log.Warn("rate limited; waiting before retry", logx.Recipient(id), logx.Duration("retry_after", after))
		metrics.DeliveriesTotal.WithLabelValues(outcome.String()).Inc()
		if err := e.sleep(ctx, after); err != nil {
			outcome = kit.OutcomeTransient
			break
		}
		if _, err := e.sender.SendText(ctx, to, body, opts); err != nil {
			log.Warn("retry after rate limit failed", logx.Recipient(id), logx.Err(err))
			outcome = kit.OutcomeTransient
		} else {
			outcome = kit.OutcomeSent
		}
	case kit.OutcomeBlocked, kit.OutcomeInvalidRecipient:
		if e.recipients.Remove(ctx, id) {
			e.bus.Publish(eventbus.Event{Type: eventbus.RecipientPruned, Data: id})
		}
		log.Info("recipient pruned", logx.Recipient(id), logx.String("outcome", outcome.String()), logx.Err(err))
	default:
		log.Error("delivery failed", logx.Recipient(id), logx.Err(err))
	}

	metrics.DeliveriesTotal.WithLabelValues(outcome.String()).Inc()
	return outcome
}

func (e *Engine) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := e.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

func (e *Engine) report(ctx context.Context, log logx.Logger, stage string, fn func(context.Context) error) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), ReportTimeout)
	defer cancel()
	if err := fn(c); err != nil {
		log.Warn("progress report failed", logx.String("stage", stage), logx.Err(err))
	}
}
