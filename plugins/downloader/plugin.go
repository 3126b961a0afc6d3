// Package downloader handles /start and relays Instagram links sent in
// private chats to the extraction API.
package downloader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	dl "igrelay/internal/downloader"
	"igrelay/internal/eventbus"
	kit "igrelay/internal/transport"
	"igrelay/internal/transport/telegram/router"
	logx "igrelay/pkg/logx"
)

const Name = "downloader"

// Fetcher resolves a link into media URLs.
type Fetcher interface {
	Fetch(ctx context.Context, link string) (*dl.Media, error)
}

// Enroller adds a user to the broadcast audience.
type Enroller interface {
	Add(ctx context.Context, id int64) bool
}

type Deps struct {
	Fetcher  Fetcher
	Registry Enroller
	Bus      eventbus.Bus
	Log      logx.Logger

	// UserInterval and UserBurst bound extraction requests per user.
	UserInterval time.Duration
	UserBurst    int
}

type Plugin struct {
	deps Deps
	log  logx.Logger

	limMu    sync.Mutex
	limiters map[int64]*userLimiter
}

type userLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

const limiterIdle = 10 * time.Minute

func New(deps Deps) *Plugin {
	if deps.UserInterval <= 0 {
		deps.UserInterval = 3 * time.Second
	}
	if deps.UserBurst <= 0 {
		deps.UserBurst = 2
	}
	if deps.Bus == nil {
		deps.Bus = eventbus.Nop()
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Plugin{
		deps:     deps,
		log:      log.With(logx.String("plugin", Name)),
		limiters: map[int64]*userLimiter{},
	}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Commands() []router.Command {
	return []router.Command{{
		Name:        "start",
		Description: "start the bot",
		Access:      router.AccessEveryone,
		Handle:      p.handleStart,
	}}
}

// TextHandler is installed as the router fallback for private text.
func (p *Plugin) TextHandler() router.HandlerFunc { return p.handleText }

func (p *Plugin) enroll(ctx context.Context, req *router.Request, via string) {
	if !p.deps.Registry.Add(ctx, req.FromID) {
		return
	}
	req.Logger.Info("user enrolled", logx.String("via", via))
	p.deps.Bus.Publish(eventbus.Event{Type: eventbus.RecipientEnrolled, Data: req.FromID})
}

func (p *Plugin) handleStart(ctx context.Context, req *router.Request) error {
	p.enroll(ctx, req, "start")
	_, err := req.Reply(ctx, WelcomeText(), htmlOpts())
	return err
}

func (p *Plugin) handleText(ctx context.Context, req *router.Request) error {
	p.enroll(ctx, req, "message")
	text := req.Text
	if strings.HasPrefix(text, "/") {
		return nil
	}
	if !dl.ValidURL(text) {
		_, err := req.Reply(ctx, InvalidURLText(), htmlOpts())
		return err
	}
	if !p.allow(req.FromID) {
		_, err := req.Reply(ctx, "⏳ Slow down a little, then send the link again.", nil)
		return err
	}

	status, err := req.Reply(ctx, "🔄 Processing your request...", nil)
	if err != nil {
		return err
	}
	edit := func(text string, opt *kit.SendOptions) error {
		err := req.Adapter.EditText(ctx, status, text, opt)
		if errors.Is(err, kit.ErrNotModified) {
			return nil
		}
		return err
	}

	media, err := p.deps.Fetcher.Fetch(ctx, text)
	switch {
	case err == nil:
		req.Logger.Info("links relayed", logx.Int("links", len(media.URLs)))
		return edit(LinksText(media), htmlOpts())
	case errors.Is(err, dl.ErrNoMedia):
		return edit("❌ No video found in the provided URL.", nil)
	case errors.Is(err, dl.ErrNoResult), errors.Is(err, dl.ErrInvalidURL):
		return edit("❌ Failed to fetch video information. Please check the URL and try again.", nil)
	default:
		req.Logger.Error("extraction failed", logx.Err(err))
		if editErr := edit("❌ An error occurred while processing your request. Please try again later.", nil); editErr != nil {
			return errors.Join(err, editErr)
		}
		return nil
	}
}

// allow applies the per-user token bucket and drops limiters idle for a while.
func (p *Plugin) allow(id int64) bool {
	now := time.Now()
	p.limMu.Lock()
	defer p.limMu.Unlock()
	for uid, l := range p.limiters {
		if now.Sub(l.lastSeen) > limiterIdle {
			delete(p.limiters, uid)
		}
	}
	l, ok := p.limiters[id]
	if !ok {
		l = &userLimiter{lim: rate.NewLimiter(rate.Every(p.deps.UserInterval), p.deps.UserBurst)}
		p.limiters[id] = l
	}
	l.lastSeen = now
	return l.lim.AllowN(now, 1)
}
