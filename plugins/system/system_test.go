package system

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rtsup "igrelay/internal/runtime/supervisor"
	kit "igrelay/internal/transport"
	"igrelay/internal/transport/telegram/router"
)

type replies struct{ texts []string }

func (r *replies) Start(context.Context, chan<- kit.Update) error { return nil }
func (r *replies) Stop(context.Context) error                    { return nil }
func (r *replies) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.texts = append(r.texts, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(r.texts)}, nil
}
func (r *replies) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error { return nil }

func run(t *testing.T, p *Plugin, name string) string {
	t.Helper()
	ad := &replies{}
	for _, c := range p.Commands() {
		if c.Name == name {
			require.NoError(t, c.Handle(context.Background(), &router.Request{Chat: kit.ChatTarget{ChatID: 9}, Adapter: ad}))
			require.Len(t, ad.texts, 1)
			return ad.texts[0]
		}
	}
	t.Fatalf("no command %s", name)
	return ""
}

func TestPingAndUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(3*time.Hour + 5*time.Minute)
	p := New(Deps{StartedAt: start, Now: func() time.Time { return now }})

	assert.Equal(t, "pong", run(t, p, "ping"))
	assert.Equal(t, "uptime: 3h5m", run(t, p, "uptime"))
}

func TestSysinfoShowsAppState(t *testing.T) {
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	tasks := []rtsup.Task{{Name: "command.worker.0"}, {Name: "telebot.poll", Restarts: 2}}
	p := New(Deps{
		StartedAt:    now.Add(-72 * time.Hour),
		Now:          func() time.Time { return now },
		Recipients:   func() int { return 12345 },
		Broadcasting: func() bool { return true },
		Breaker:      func() string { return "closed" },
		Workers:      func() rtsup.Counters { return rtsup.Counters{Active: 4, Started: 9, Restarts: 2} },
		Tasks:        func() []rtsup.Task { return tasks },
		NextReport:   func() time.Time { return time.Time{} },
	})

	out := run(t, p, "sysinfo")
	assert.Contains(t, out, "<code>12,345</code>")
	assert.Contains(t, out, "broadcast: <code>running</code>")
	assert.Contains(t, out, "extractor: <code>closed</code>")
	assert.Contains(t, out, "4 active, 9 started, 2 restarts, 0 panics")
	assert.Contains(t, out, "tasks: <code>command.worker.0, telebot.poll (restarted 2)</code>")
	assert.Contains(t, out, "uptime: <code>3d0h</code>")
	assert.Contains(t, out, "next report: <code>disabled</code>")

	for _, c := range p.Commands() {
		if c.Name == "sysinfo" {
			assert.Equal(t, router.AccessAdminOnly, c.Access)
		}
	}
}

func TestDurRel(t *testing.T) {
	assert.Equal(t, "42s", durRel(42*time.Second))
	assert.Equal(t, "2m5s", durRel(125*time.Second))
	assert.Equal(t, "1h1m", durRel(-61*time.Minute))
}
