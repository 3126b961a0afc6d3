package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	logx "igrelay/pkg/logx"
)

// Supervisor owns the bot's long-lived goroutines (polling, command workers,
// config watchers). Every task is named, panics are turned into errors, and
// the live set can be listed for /sysinfo.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log         logx.Logger
	clock       clockwork.Clock
	cancelOnErr bool

	mu       sync.Mutex
	tasks    map[string]*Task
	counters Counters
	err      error

	wg       sync.WaitGroup
	doneOnce sync.Once
	done     chan struct{}
}

// Task describes a running goroutine.
type Task struct {
	Name     string
	Since    time.Time
	Restarts int
}

// Counters are operational totals since the supervisor was created.
type Counters struct {
	Active   int
	Started  uint64
	Restarts uint64
	Panics   uint64
}

type Option func(*Supervisor)

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError makes the first task error cancel every other task.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func WithClock(c clockwork.Clock) Option {
	return func(s *Supervisor) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewSupervisor(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    logx.Nop(),
		clock:  clockwork.NewRealClock(),
		tasks:  make(map[string]*Task),
		done:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the shared context without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first recorded task error.
func (s *Supervisor) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Supervisor) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters
	c.Active = len(s.tasks)
	return c
}

// Tasks lists the running tasks ordered by name.
func (s *Supervisor) Tasks() []Task {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	s.mu.Unlock()
	slices.SortFunc(out, func(a, b Task) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Go runs fn once. A non-nil error other than context.Canceled, or a panic,
// becomes the supervisor error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	key := s.track(name)
	go func() {
		defer s.untrack(key)
		if err := s.call(name, fn); err != nil && !errors.Is(err, context.Canceled) {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
	}()
}

// Go0 is Go for functions that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// Restart is the policy for GoRestart. Zero backoffs fall back to 250ms and 30s.
type Restart struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// Limit caps restarts after the first run; 0 restarts forever.
	Limit int
	// OnCleanExit restarts fn when it returns nil.
	OnCleanExit bool
	// Fatal records the first failure as the supervisor error.
	Fatal bool
}

// stableRun resets the backoff once a run has lasted this long.
const stableRun = 30 * time.Second

func (p Restart) normalized() Restart {
	if p.MinBackoff <= 0 {
		p.MinBackoff = 250 * time.Millisecond
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = 30 * time.Second
	}
	p.MaxBackoff = max(p.MaxBackoff, p.MinBackoff)
	return p
}

// GoRestart runs fn under name and restarts it with jittered exponential
// backoff until the context ends or the policy gives up.
func (s *Supervisor) GoRestart(name string, p Restart, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	p = p.normalized()
	key := s.track(name)
	go func() {
		defer s.untrack(key)
		backoff := p.MinBackoff
		for restarts := 0; s.ctx.Err() == nil; restarts++ {
			began := s.clock.Now()
			err := s.call(name, fn)
			if s.ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			if err == nil {
				if !p.OnCleanExit {
					return
				}
				err = errors.New("exited")
			}
			err = fmt.Errorf("%s: %w", name, err)
			if p.Fatal {
				s.setErr(err)
			}
			if p.Limit > 0 && restarts >= p.Limit {
				s.log.Error("task gave up", logx.String("task", name), logx.Int("restarts", restarts), logx.Err(err))
				return
			}
			if s.clock.Since(began) >= stableRun {
				backoff = p.MinBackoff
			}
			wait := jitter(backoff)
			s.log.Warn("task restarting", logx.String("task", name), logx.Duration("backoff", wait), logx.Err(err))
			select {
			case <-s.ctx.Done():
				return
			case <-s.clock.After(wait):
			}
			backoff = min(backoff*2, p.MaxBackoff)
			s.restarted(key)
		}
	}()
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	if j := int64(d) / 5; j > 0 {
		return d + time.Duration(rand.Int64N(j+1))
	}
	return d
}

func (s *Supervisor) call(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.counters.Panics++
			s.mu.Unlock()
			s.log.Error("task panicked", logx.String("task", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

// track registers name. A duplicate name gets a numeric suffix so Tasks
// still lists every goroutine.
func (s *Supervisor) track(name string) string {
	s.wg.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	key := name
	for i := 2; s.tasks[key] != nil; i++ {
		key = name + "#" + strconv.Itoa(i)
	}
	s.counters.Started++
	s.tasks[key] = &Task{Name: key, Since: s.clock.Now()}
	s.log.Debug("task started", logx.String("task", key))
	return key
}

func (s *Supervisor) untrack(name string) {
	s.mu.Lock()
	delete(s.tasks, name)
	s.mu.Unlock()
	s.log.Debug("task stopped", logx.String("task", name))
	s.wg.Done()
}

func (s *Supervisor) restarted(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters.Restarts++
	if t, ok := s.tasks[name]; ok {
		t.Restarts++
		t.Since = s.clock.Now()
	}
}

// Stop cancels the context and waits for every task.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.cancel()
	return s.Wait(ctx)
}

// Wait blocks until every task has returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.doneOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}

func (s *Supervisor) fail(err error) {
	s.setErr(err)
	if s.cancelOnErr {
		s.cancel()
	}
}

func (s *Supervisor) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
