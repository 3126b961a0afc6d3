package config

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "igrelay/pkg/logx"
)

func noEnv(string) (string, bool) { return "", false }

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestParseJSONStrict(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram":{"token":"t","admin_user_id":7},"broadcast":{"pace":"50ms","progress_every":5}}`)
	m := NewConfigManager(p)
	m.SetEnvLookup(noEnv)

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Telegram.AdminUserID)
	assert.Equal(t, 5, cfg.Broadcast.ProgressEvery)
	assert.Same(t, cfg, m.Get())

	bad := writeFile(t, "config.json", `{"telegram":{"token":"t","admin_user_id":7,"owners":[1]}}`)
	_, err = NewConfigManager(bad).Parse()
	assert.ErrorContains(t, err, "unknown field")

	trailing := writeFile(t, "config.json", `{"telegram":{"token":"t"}}{}`)
	_, err = NewConfigManager(trailing).Parse()
	assert.ErrorContains(t, err, "trailing data")
}

func TestParseYAML(t *testing.T) {
	p := writeFile(t, "config.yaml", "telegram:\n  token: abc\n  admin_user_id: 42\nstorage:\n  driver: sqlite\n  path: ./x.db\n")
	m := NewConfigManager(p)
	m.SetEnvLookup(noEnv)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.Telegram.Token)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
}

func TestMissingFileFallsBackToEnv(t *testing.T) {
	m := NewConfigManager(filepath.Join(t.TempDir(), "absent.json"))
	m.SetEnvLookup(envMap(map[string]string{EnvBotToken: " tok ", EnvAdminUserID: "99"}))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.Telegram.Token)
	assert.Equal(t, int64(99), cfg.Telegram.AdminUserID)
}

func TestEnvOverridesFile(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram":{"token":"file","admin_user_id":1}}`)
	m := NewConfigManager(p)
	m.SetEnvLookup(envMap(map[string]string{EnvBotToken: "env"}))
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "env", cfg.Telegram.Token)
	assert.Equal(t, int64(1), cfg.Telegram.AdminUserID)

	m.SetEnvLookup(envMap(map[string]string{EnvAdminUserID: "abc"}))
	_, err = m.Parse()
	assert.ErrorContains(t, err, EnvAdminUserID)
}

func TestLoadDotEnv(t *testing.T) {
	p := writeFile(t, ".env", "IGRELAY_TEST_KEY=from-file\n")
	t.Setenv("IGRELAY_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("IGRELAY_TEST_KEY"))

	require.NoError(t, LoadDotEnv(p, filepath.Join(t.TempDir(), "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("IGRELAY_TEST_KEY"))
}

func TestValidate(t *testing.T) {
	ok := &Config{Telegram: TelegramConfig{Token: "t", AdminUserID: 1}}
	require.NoError(t, Validate(ok))

	err := Validate(&Config{
		Telegram:   TelegramConfig{GroupLog: "abc", PollTimeout: "soon"},
		Storage:    StorageConfig{Driver: "redis"},
		Broadcast:  BroadcastConfig{ProgressEvery: -1, ParseMode: "html5"},
		Downloader: DownloaderConfig{Timeout: "-1s"},
		Report:     ReportConfig{Timezone: "Mars/Olympus"},
	})
	require.Error(t, err)
	for _, want := range []string{
		"telegram.token", "telegram.admin_user_id", "telegram.group_log",
		"telegram.poll_timeout", "storage.driver", "broadcast.progress_every", "broadcast.parse_mode",
		"downloader.timeout", "report.timezone",
	} {
		assert.ErrorContains(t, err, want)
	}
}

func TestDurationOr(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, DurationOr("", 100*time.Millisecond))
	assert.Equal(t, 2*time.Second, DurationOr("2s", time.Second))
	assert.Equal(t, time.Second, DurationOr("nope", time.Second))
}

func TestSummarizeConfigChange(t *testing.T) {
	a := &Config{Telegram: TelegramConfig{Token: "a", AdminUserID: 1}}
	b := *a
	b.Telegram.Token = "b"
	b.Broadcast.Pace = "1s"

	changed, attrs := SummarizeConfigChange(a, &b)
	assert.Equal(t, []string{"telegram", "broadcast"}, changed)
	assert.NotEmpty(t, attrs)
	var buf bytes.Buffer
	logx.NewWriter(&buf, "debug").Info("reload", attrs...)
	assert.Contains(t, buf.String(), `"telegram.token_changed":true`)
	assert.NotContains(t, buf.String(), `"b"`)
	assert.Equal(t, []string{"telegram"}, RestartRequired(a, &b))

	changed, _ = SummarizeConfigChange(a, a)
	assert.Empty(t, changed)
}

func TestWatchPublishesValidChanges(t *testing.T) {
	p := writeFile(t, "config.json", `{"telegram":{"token":"t","admin_user_id":1}}`)
	m := NewConfigManager(p)
	m.SetEnvLookup(noEnv)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { _ = m.Watch(ctx); close(done) }()

	// give the watcher a moment to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(p, []byte(`{"telegram":{"token":"t","admin_user_id":1},"broadcast":{"progress_every":3}}`), 0o600))

	select {
	case cfg := <-ch:
		assert.Equal(t, 3, cfg.Broadcast.ProgressEvery)
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}

	cancel()
	<-done
}
