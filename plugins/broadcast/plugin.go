// Package broadcast exposes the admin commands that drive the broadcast
// engine: /broadcast, /stats and /test_broadcast.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	engine "igrelay/internal/broadcast"
	"igrelay/internal/storage"
	kit "igrelay/internal/transport"
	"igrelay/internal/transport/telegram/router"
	logx "igrelay/pkg/logx"
	"igrelay/pkg/tgui"
)

const Name = "broadcast"

// Broadcaster is the engine surface the plugin drives.
type Broadcaster interface {
	Broadcast(ctx context.Context, body string, rep engine.Reporter) (engine.Result, error)
}

// Stats is the registry surface shown by /stats.
type Stats interface {
	Count() int
	Location() string
}

type Auditor interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

type Deps struct {
	Engine   Broadcaster
	Registry Stats
	Audit    Auditor
	Log      logx.Logger
	Now      func() time.Time
}

type Plugin struct {
	deps Deps
	log  logx.Logger
}

func New(deps Deps) *Plugin {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	log := deps.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Plugin{deps: deps, log: log.With(logx.String("plugin", Name))}
}

func (p *Plugin) Name() string { return Name }

func (p *Plugin) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "broadcast",
			Description: "send a message to every user",
			Usage:       "/broadcast <your message>",
			Access:      router.AccessAdminOnly,
			Timeout:     -1,
			Handle:      p.handleBroadcast,
		},
		{
			Name:        "stats",
			Description: "show bot statistics",
			Access:      router.AccessAdminOnly,
			Handle:      p.handleStats,
		},
		{
			Name:        "test_broadcast",
			Description: "send a test message to yourself",
			Access:      router.AccessAdminOnly,
			Handle:      p.handleTest,
		},
	}
}

func html() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true}
}

func (p *Plugin) handleBroadcast(ctx context.Context, req *router.Request) error {
	body := req.Payload
	if strings.TrimSpace(body) == "" {
		_, err := req.Reply(ctx, UsageText(), html())
		return err
	}

	rep := engine.NewStatusReporter(req.Adapter, req.Chat, req.MessageID)
	res, err := p.deps.Engine.Broadcast(ctx, body, rep)
	if errors.Is(err, engine.ErrInProgress) {
		_, sendErr := req.Reply(ctx, "⏳ A broadcast is already in progress. Please wait until it finishes.", nil)
		return sendErr
	}
	if err != nil {
		return err
	}
	if res.Total > 0 {
		p.audit(req, res)
	}
	return nil
}

func (p *Plugin) audit(req *router.Request, res engine.Result) {
	if p.deps.Audit == nil {
		return
	}
	meta, _ := json.Marshal(map[string]any{
		"job_id":   res.JobID,
		"blocked":  res.Blocked,
		"total":    res.Total,
		"canceled": res.Canceled,
	})
	entry := storage.AuditEntry{
		At:            p.deps.Now(),
		ActorID:       req.FromID,
		ActorUsername: req.FromUsername,
		ChatID:        req.Chat.ChatID,
		Plugin:        Name,
		Action:        "broadcast",
		OK:            res.Sent,
		Fail:          res.Failed + res.Blocked,
		TookMS:        res.Took.Milliseconds(),
		MetaJSON:      string(meta),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.deps.Audit.AppendAudit(ctx, entry); err != nil {
		p.log.Warn("audit append failed", logx.String("job_id", res.JobID), logx.Err(err))
	}
}

func (p *Plugin) handleStats(ctx context.Context, req *router.Request) error {
	_, err := req.Reply(ctx, StatsText(p.deps.Registry), html())
	return err
}

func (p *Plugin) handleTest(ctx context.Context, req *router.Request) error {
	_, err := req.Adapter.SendText(ctx, kit.ChatTarget{ChatID: req.FromID}, TestText(), html())
	if err != nil {
		req.Logger.Error("test broadcast failed", logx.Err(err))
		_, sendErr := req.Reply(ctx, "❌ Failed to send test broadcast.", nil)
		return sendErr
	}
	_, err = req.Reply(ctx, "✅ Test broadcast sent successfully!", nil)
	return err
}

func UsageText() string {
	return tgui.Lines(
		tgui.Concat(tgui.Raw("📢 "), tgui.B("Broadcast Command Usage:")),
		"",
		tgui.Code("/broadcast <your message>"),
		"",
		tgui.B("Example:"),
		tgui.Code("/broadcast Hello everyone! The bot has been updated with new features."),
		"",
		tgui.B("Other commands:"),
		tgui.Concat(tgui.Raw("• "), tgui.Code("/stats"), tgui.Raw(" - View bot statistics")),
		tgui.Concat(tgui.Raw("• "), tgui.Code("/test_broadcast"), tgui.Raw(" - Send test message to yourself")),
	).String()
}

// StatsText renders the registry size and where it is stored.
func StatsText(s Stats) string {
	return tgui.Lines(
		tgui.Concat(tgui.Raw("📊 "), tgui.B("Bot Statistics")),
		"",
		tgui.Concat(tgui.Raw("👥 Total users: "), tgui.Esc(humanize.Comma(int64(s.Count())))),
		tgui.Concat(tgui.Raw("📅 Database file: "), tgui.Code(s.Location())),
	).String()
}

func TestText() string {
	return tgui.Lines(
		tgui.Concat(tgui.Raw("🧪 "), tgui.B("Test Broadcast Message")),
		"",
		"This is a test message to verify the broadcast system is working correctly.",
		"",
		"✅ If you receive this message, the broadcast system is functioning properly!",
	).String()
}
