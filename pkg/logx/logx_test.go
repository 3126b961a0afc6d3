package logx

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	kit "igrelay/internal/transport"
)

const token = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw"

type chatSink struct {
	mu    sync.Mutex
	to    []kit.ChatTarget
	texts []string
	opts  []kit.SendOptions
}

func (c *chatSink) Start(context.Context, chan<- kit.Update) error { return nil }
func (c *chatSink) Stop(context.Context) error                    { return nil }
func (c *chatSink) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (c *chatSink) SendText(_ context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.to = append(c.to, to)
	c.texts = append(c.texts, text)
	if opt != nil {
		c.opts = append(c.opts, *opt)
	}
	return kit.MessageRef{}, nil
}

func (c *chatSink) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

func TestWellKnownFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(Comp("broadcast"), Job("j1"))
	log.Info("delivered", Recipient(42), Chat(7), From(9), Err(nil))

	out := buf.String()
	for _, want := range []string{`"comp":"broadcast"`, `"job":"j1"`, `"recipient":42`, `"chat_id":7`, `"from_id":9`, `"message":"delivered"`} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, `"err"`)
	assert.Contains(t, out, `"caller":"logx_test.go:`)
}

func TestLevelsAndNop(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warning")
	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.True(t, Logger{}.IsZero())
	assert.False(t, Nop().IsZero())
	Logger{}.Error("no panic")

	assert.Equal(t, zerolog.TraceLevel, parseLevel("TRACE", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud", zerolog.InfoLevel))
}

func TestTokensAreRedacted(t *testing.T) {
	var buf bytes.Buffer
	err := errors.New(`Post "https://api.telegram.org/bot` + token + `/sendMessage": dial tcp: i/o timeout`)
	NewWriter(&buf, "debug").Error("send failed", Err(err))

	assert.NotContains(t, buf.String(), token)
	assert.Contains(t, buf.String(), "/bot<redacted>/sendMessage")
	assert.Equal(t, "id 42 stays", Redact("id 42 stays"))
}

func TestTelegramSinkFiltersAndFormats(t *testing.T) {
	chat := &chatSink{}
	svc, log := New(Config{Level: "debug", Telegram: TelegramConfig{Enabled: true, MinLevel: "warn", RatePerSec: 100}}, chat)
	defer svc.Close()

	log.Error("before target")
	svc.SetTelegramTarget(-100, 3)

	log.Info("too quiet")
	log.With(Comp("router")).Warn("unauthorized <command>", From(9), Err(errors.New("bot"+token)))

	require.Eventually(t, func() bool { return len(chat.sent()) == 1 }, time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	require.Len(t, chat.sent(), 1)

	text := chat.sent()[0]
	assert.Contains(t, text, "⚠️ <b>unauthorized &lt;command&gt;</b>")
	assert.Contains(t, text, "comp: <code>router</code>")
	assert.Contains(t, text, "from_id: <code>9</code>")
	assert.NotContains(t, text, token)
	assert.Equal(t, kit.ChatTarget{ChatID: -100, ThreadID: 3}, chat.to[0])
	assert.Equal(t, "HTML", chat.opts[0].ParseMode)
}

func TestTelegramSinkDropsOverRate(t *testing.T) {
	chat := &chatSink{}
	sink := newTelegramSink(chat, 0)
	sink.setTarget(1, 0)
	sink.configure(zerolog.WarnLevel, rate.NewLimiter(rate.Limit(1), 1), 0)

	line := []byte(`{"level":"error","message":"x"}`)
	for range 5 {
		_, _ = sink.WriteLevel(zerolog.ErrorLevel, line)
	}
	assert.Len(t, sink.queue, 1)
}

func TestFormatTelegramLineFallsBackForPlainText(t *testing.T) {
	assert.Equal(t, "a &lt;b&gt;", formatTelegramLine([]byte("a <b>\n")))

	long := `{"level":"info","message":"m","blob":"` + strings.Repeat("x", 5000) + `"}`
	assert.Contains(t, formatTelegramLine([]byte(long)), "blob: <code>"+strings.Repeat("x", 400)+"...</code>")
}

func TestApplySwitchesToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	svc, log := New(Config{Level: "info"}, nil)
	defer svc.Close()

	log.Info("console only")
	svc.Apply(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.Info("to file", Job("j2"))
	require.NoError(t, svc.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"message":"to file"`)
	assert.Contains(t, string(raw), `"job":"j2"`)
	assert.NotContains(t, string(raw), "console only")
}
