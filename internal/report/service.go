// Package report sends a periodic stats message to the admin on a cron schedule.
package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "igrelay/pkg/logx"
)

const DefaultSpec = "0 9 * * *"

type Config struct {
	Enabled  bool
	Spec     string
	Timezone string
}

// SendFunc delivers one report.
type SendFunc func(ctx context.Context) error

type Service struct {
	mu     sync.Mutex
	cfg    Config
	send   SendFunc
	log    logx.Logger
	parser cron.Parser
	c      *cron.Cron
	ctx    context.Context
}

func New(cfg Config, send SendFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:    cfg,
		send:   send,
		log:    log.With(logx.Comp("report")),
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Validate checks the schedule and timezone without starting anything.
func (s *Service) Validate(cfg Config) error {
	if _, err := s.parser.Parse(specOrDefault(cfg.Spec)); err != nil {
		return fmt.Errorf("report.spec: %w", err)
	}
	if _, err := loadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}
	return nil
}

// Start schedules the report when enabled. Jobs run on ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	loc, err := loadLocation(s.cfg.Timezone)
	if err != nil {
		return err
	}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log}), cron.Recover(cronLogger{s.log})),
	)
	spec := specOrDefault(s.cfg.Spec)
	if _, err := c.AddFunc(spec, func() { s.run(s.ctx) }); err != nil {
		return fmt.Errorf("report.spec: %w", err)
	}
	c.Start()
	s.c = c
	s.log.Info("report scheduled", logx.String("spec", spec), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.c == nil {
		return
	}
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
	s.c = nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(ctx)
}

// Reconfigure reschedules with cfg.
func (s *Service) Reconfigure(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg == s.cfg && (s.c != nil) == cfg.Enabled {
		return nil
	}
	s.stopLocked(ctx)
	s.cfg = cfg
	if s.ctx == nil {
		return nil
	}
	return s.startLocked()
}

// Next returns the next scheduled run, zero when not scheduled.
func (s *Service) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return time.Time{}
	}
	entries := s.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Service) run(ctx context.Context) {
	if ctx == nil || ctx.Err() != nil {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.send(cctx); err != nil {
		s.log.Warn("report send failed", logx.Err(err))
		return
	}
	s.log.Debug("report sent")
}

func specOrDefault(spec string) string {
	if s := strings.TrimSpace(spec); s != "" {
		return s
	}
	return DefaultSpec
}

func loadLocation(tz string) (*time.Location, error) {
	if tz = strings.TrimSpace(tz); tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// cronLogger routes cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}
