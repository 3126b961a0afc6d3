// Package system exposes liveness and runtime commands.
package system

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	rtsup "igrelay/internal/runtime/supervisor"
	kit "igrelay/internal/transport"
	"igrelay/internal/transport/telegram/router"
	"igrelay/pkg/tgui"
)

const Name = "system"

// Deps are read-only views of the running app. Nil fields are skipped.
type Deps struct {
	StartedAt time.Time
	Now       func() time.Time

	Recipients   func() int
	Broadcasting func() bool
	Breaker      func() string
	Workers      func() rtsup.Counters
	Tasks        func() []rtsup.Task
	NextReport   func() time.Time
}

type Plugin struct {
	deps Deps
}

func New(deps Deps) *Plugin {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = deps.Now()
	}
	return &Plugin{deps: deps}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "ping",
			Description: "health check",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				_, err := req.Reply(ctx, "pong", nil)
				return err
			},
		},
		{
			Name:        "uptime",
			Aliases:     []string{"up"},
			Description: "show process uptime",
			Access:      router.AccessEveryone,
			Handle: func(ctx context.Context, req *router.Request) error {
				_, err := req.Reply(ctx, "uptime: "+durRel(p.deps.Now().Sub(p.deps.StartedAt)), nil)
				return err
			},
		},
		{
			Name:        "sysinfo",
			Description: "runtime and component status",
			Access:      router.AccessAdminOnly,
			Handle: func(ctx context.Context, req *router.Request) error {
				_, err := req.Reply(ctx, p.SysinfoText(), &kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true})
				return err
			},
		},
	}
}

// SysinfoText renders runtime and component state as HTML.
func (p *Plugin) SysinfoText() string {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	mod := ""
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		mod = bi.Main.Path + " " + bi.Main.Version
	}
	now := p.deps.Now()

	lines := []tgui.H{
		tgui.Concat(tgui.Raw("🧠 "), tgui.B("sysinfo")),
		row("go", runtime.Version()),
		row("module", mod),
		row("uptime", durRel(now.Sub(p.deps.StartedAt))),
		row("goroutines", fmt.Sprint(runtime.NumGoroutine())),
		row("mem_alloc", humanize.IBytes(m.Alloc)),
		row("mem_sys", humanize.IBytes(m.Sys)),
	}
	if p.deps.Workers != nil {
		c := p.deps.Workers()
		lines = append(lines, row("workers", fmt.Sprintf("%d active, %d started, %d restarts, %d panics", c.Active, c.Started, c.Restarts, c.Panics)))
	}
	if p.deps.Tasks != nil {
		if tasks := p.deps.Tasks(); len(tasks) > 0 {
			names := make([]string, 0, len(tasks))
			for _, t := range tasks {
				if t.Restarts > 0 {
					names = append(names, fmt.Sprintf("%s (restarted %d)", t.Name, t.Restarts))
					continue
				}
				names = append(names, t.Name)
			}
			lines = append(lines, row("tasks", strings.Join(names, ", ")))
		}
	}
	if p.deps.Recipients != nil {
		lines = append(lines, row("recipients", humanize.Comma(int64(p.deps.Recipients()))))
	}
	if p.deps.Broadcasting != nil {
		state := "idle"
		if p.deps.Broadcasting() {
			state = "running"
		}
		lines = append(lines, row("broadcast", state))
	}
	if p.deps.Breaker != nil {
		lines = append(lines, row("extractor", p.deps.Breaker()))
	}
	if p.deps.NextReport != nil {
		next := "disabled"
		if t := p.deps.NextReport(); !t.IsZero() {
			next = t.Format("2006-01-02 15:04 MST") + " (" + humanize.RelTime(t, now, "ago", "from now") + ")"
		}
		lines = append(lines, row("next report", next))
	}
	return tgui.Lines(lines...).String()
}

func row(k, v string) tgui.H {
	return tgui.Concat(tgui.Raw("- "), tgui.Esc(k), tgui.Raw(": "), tgui.Code(v))
}

func durRel(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	h := int(d.Hours())
	if h >= 48 {
		return fmt.Sprintf("%dd%dh", h/24, h%24)
	}
	return fmt.Sprintf("%dh%dm", h, int(d.Minutes())%60)
}
