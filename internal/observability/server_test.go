package observability

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igrelay/internal/metrics"
	logx "igrelay/pkg/logx"
)

func get(t *testing.T, url, bearer string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestServesMetricsAndPprof(t *testing.T) {
	s := New(Config{}, logx.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	t.Cleanup(func() { s.Stop(context.Background()) })

	require.NoError(t, s.Reconfigure(ctx, Config{Enabled: true, Addr: "127.0.0.1:0", Metrics: true}))
	addr := s.Addr()
	require.NotEmpty(t, addr)

	metrics.RegistrySize.Set(3)
	code, body := get(t, "http://"+addr+"/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "igrelay_registry_recipients 3")

	code, _ = get(t, "http://"+addr+"/debug/pprof/", "")
	assert.Equal(t, http.StatusOK, code)

	require.NoError(t, s.Reconfigure(ctx, Config{Enabled: false}))
	assert.Empty(t, s.Addr())
}

func TestTokenRequired(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0", Token: "secret"}, logx.Nop())
	require.NoError(t, s.Start(context.Background()))
	t.Cleanup(func() { s.Stop(context.Background()) })

	code, _ := get(t, "http://"+s.Addr()+"/healthz", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, body := get(t, "http://"+s.Addr()+"/healthz", "secret")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body)

	code, _ = get(t, "http://"+s.Addr()+"/metrics", "secret")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRefusesPublicBindWithoutToken(t *testing.T) {
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, logx.Nop())
	assert.Error(t, s.Start(context.Background()))
	assert.Empty(t, s.Addr())
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "/x/", normalizePrefix("x"))
	assert.Equal(t, DefaultPrefix, normalizePrefix(""))
	assert.True(t, isLoopbackAddr("localhost:1"))
	assert.True(t, isLoopbackAddr("[::1]:1"))
	assert.False(t, isLoopbackAddr("10.0.0.1:1"))
}
