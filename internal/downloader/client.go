// Package downloader resolves Instagram links into direct media URLs through
// a third-party extraction API.
package downloader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"igrelay/internal/metrics"
	logx "igrelay/pkg/logx"
)

var (
	// ErrNoResult means the API answered but reported no usable result.
	ErrNoResult = errors.New("extraction api returned no result")
	// ErrNoMedia means the result carried no recognizable media URL.
	ErrNoMedia = errors.New("no media url in extraction result")
	// ErrInvalidURL means the input is not an Instagram post, reel or IGTV link.
	ErrInvalidURL = errors.New("not an instagram media url")
	// ErrUnavailable means the circuit breaker is refusing requests.
	ErrUnavailable = errors.New("extraction api temporarily unavailable")
)

const (
	DefaultAPIURL  = "https://api.nekorinn.my.id/downloader/instagram"
	DefaultTimeout = 30 * time.Second

	maxBodyBytes = 4 << 20
)

type Config struct {
	APIURL  string
	Timeout time.Duration
}

// Client calls the extraction API. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	apiURL     string
	cb         *gobreaker.CircuitBreaker
	log        logx.Logger
}

func New(cfg Config, httpClient *http.Client, log logx.Logger) *Client {
	if strings.TrimSpace(cfg.APIURL) == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.Comp("downloader"))

	c := &Client{httpClient: httpClient, apiURL: cfg.APIURL, log: log}
	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "extraction-api",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		// Caller mistakes and empty results say nothing about API health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoResult) || errors.Is(err, ErrNoMedia) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", logx.String("breaker", name), logx.String("from", from.String()), logx.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	return c
}

// Fetch resolves link into media URLs.
func (c *Client) Fetch(ctx context.Context, link string) (*Media, error) {
	link = strings.TrimSpace(link)
	if !ValidURL(link) {
		return nil, ErrInvalidURL
	}

	start := time.Now()
	out, err := c.cb.Execute(func() (any, error) {
		return c.fetch(ctx, link)
	})
	metrics.DownloaderRequestDuration.Observe(time.Since(start).Seconds())

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		metrics.DownloaderRequestsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		metrics.DownloaderRequestsTotal.WithLabelValues(statusLabel(err)).Inc()
		return nil, err
	}
	metrics.DownloaderRequestsTotal.WithLabelValues("ok").Inc()
	return out.(*Media), nil
}

// State reports the circuit breaker state.
func (c *Client) State() gobreaker.State { return c.cb.State() }

func (c *Client) fetch(ctx context.Context, link string) (*Media, error) {
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("could not parse api url: %w", err)
	}
	q := u.Query()
	q.Set("url", link)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.log.Error("extraction api request failed", logx.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("extraction api status %d", resp.StatusCode)
	}

	var body struct {
		Status json.RawMessage            `json:"status"`
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(b, &body); err != nil {
		return nil, fmt.Errorf("could not decode response: %w", err)
	}
	if !truthy(body.Status) || len(body.Result) == 0 {
		return nil, ErrNoResult
	}

	m, err := normalize(body.Result, link)
	if err != nil {
		c.log.Error("no media urls in api response", logx.Any("fields", keys(body.Result)))
		return nil, err
	}
	return m, nil
}

// truthy accepts true, non-zero numbers and non-empty strings, the shapes
// the API has used for its status flag.
func truthy(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	switch s {
	case "", "null", "false", "0", `""`, `"false"`:
		return false
	}
	return true
}

func keys(m map[string]json.RawMessage) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func statusLabel(err error) string {
	switch {
	case errors.Is(err, ErrNoResult):
		return "no_result"
	case errors.Is(err, ErrNoMedia):
		return "no_media"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}
