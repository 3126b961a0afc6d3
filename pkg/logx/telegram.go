package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "igrelay/internal/transport"
	"igrelay/pkg/tgui"
)

// telegramSink forwards log lines to the operator chat. Writes never block:
// lines are dropped when the queue is full or the limiter says no.
type telegramSink struct {
	sender kit.Adapter
	queue  chan telegramLine

	mu       sync.Mutex
	to       kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type telegramLine struct {
	to   kit.ChatTarget
	text string
}

func newTelegramSink(sender kit.Adapter, threadID int) *telegramSink {
	return &telegramSink{
		sender:   sender,
		queue:    make(chan telegramLine, 256),
		to:       kit.ChatTarget{ThreadID: threadID},
		minLevel: zerolog.WarnLevel,
	}
}

func (t *telegramSink) setTarget(chatID int64, threadID int) {
	t.mu.Lock()
	t.to.ChatID = chatID
	if threadID != 0 {
		t.to.ThreadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) hasTarget() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.to.ChatID != 0
}

func (t *telegramSink) configure(minLevel zerolog.Level, lim *rate.Limiter, threadID int) {
	t.mu.Lock()
	t.minLevel = minLevel
	t.limiter = lim
	if threadID != 0 {
		t.to.ThreadID = threadID
	}
	t.mu.Unlock()
}

func (t *telegramSink) start() {
	t.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		t.cancel = cancel
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case l := <-t.queue:
					_, _ = t.sender.SendText(ctx, l.to, l.text, &kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true})
				}
			}
		}()
	})
}

func (t *telegramSink) stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		t.wg.Wait()
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, lim, minLevel := t.to, t.limiter, t.minLevel
	t.mu.Unlock()

	if to.ChatID == 0 || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	select {
	case t.queue <- telegramLine{to: to, text: formatTelegramLine(p)}:
	default:
	}
	return len(p), nil
}

var levelIcons = map[string]string{
	"debug": "🐛",
	"info":  "ℹ️",
	"warn":  "⚠️",
	"error": "🔥",
	"fatal": "💀",
	"panic": "💀",
}

// formatTelegramLine renders one JSON log line as HTML: level and message in
// bold, then the fields sorted by key. Tokens are masked.
func formatTelegramLine(p []byte) string {
	raw := strings.TrimSpace(Redact(string(p)))
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return tgui.Esc(tgui.Trunc(raw, 3500, "...")).String()
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)
	head := tgui.B(msg)
	if icon, ok := levelIcons[lvl]; ok {
		head = tgui.Concat(tgui.Raw(icon+" "), head)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	lines := []tgui.H{head}
	for _, k := range keys {
		v := tgui.Trunc(fmt.Sprint(m[k]), 400, "...")
		lines = append(lines, tgui.Concat(tgui.Esc(k), tgui.Raw(": "), tgui.Code(v)))
	}
	out := tgui.Lines(lines...).String()
	if len(out) > 3900 {
		return tgui.Lines(head, tgui.I("fields truncated")).String()
	}
	return out
}
