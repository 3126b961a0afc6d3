package downloader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dl "igrelay/internal/downloader"
	kit "igrelay/internal/transport"
	"igrelay/internal/transport/telegram/router"
	logx "igrelay/pkg/logx"
)

type chatLog struct {
	mu    sync.Mutex
	sends []string
	edits []string
}

func (c *chatLog) Start(context.Context, chan<- kit.Update) error { return nil }
func (c *chatLog) Stop(context.Context) error                    { return nil }
func (c *chatLog) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: 100 + len(c.sends)}, nil
}
func (c *chatLog) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.edits = append(c.edits, text)
	return nil
}

type fakeRegistry struct{ ids map[int64]bool }

func (r *fakeRegistry) Add(_ context.Context, id int64) bool {
	if r.ids[id] {
		return false
	}
	r.ids[id] = true
	return true
}

type fakeFetcher struct {
	media *dl.Media
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(context.Context, string) (*dl.Media, error) {
	f.calls++
	return f.media, f.err
}

func newReq(ad kit.Adapter, from int64, text string) *router.Request {
	return &router.Request{
		Chat:      kit.ChatTarget{ChatID: from},
		MessageID: 1,
		FromID:    from,
		Private:   true,
		Text:      text,
		Adapter:   ad,
		Logger:    logx.Nop(),
	}
}

func TestStartEnrollsAndWelcomes(t *testing.T) {
	reg := &fakeRegistry{ids: map[int64]bool{}}
	ad := &chatLog{}
	p := New(Deps{Fetcher: &fakeFetcher{}, Registry: reg})

	require.NoError(t, p.Commands()[0].Handle(context.Background(), newReq(ad, 7, "/start")))
	assert.True(t, reg.ids[7])
	require.Len(t, ad.sends, 1)
	assert.Contains(t, ad.sends[0], "Instagram Video Downloader Bot")
}

func TestTextEnrollsAndSkipsCommands(t *testing.T) {
	reg := &fakeRegistry{ids: map[int64]bool{}}
	ad := &chatLog{}
	f := &fakeFetcher{}
	p := New(Deps{Fetcher: f, Registry: reg})

	require.NoError(t, p.TextHandler()(context.Background(), newReq(ad, 9, "/unknown")))
	assert.True(t, reg.ids[9])
	assert.Empty(t, ad.sends)
	assert.Zero(t, f.calls)
}

func TestInvalidURLGetsExamples(t *testing.T) {
	ad := &chatLog{}
	f := &fakeFetcher{}
	p := New(Deps{Fetcher: f, Registry: &fakeRegistry{ids: map[int64]bool{}}})

	require.NoError(t, p.TextHandler()(context.Background(), newReq(ad, 9, "hello")))
	require.Len(t, ad.sends, 1)
	assert.Contains(t, ad.sends[0], "Please send a valid Instagram URL")
	assert.Zero(t, f.calls)
}

func TestLinksRelayed(t *testing.T) {
	ad := &chatLog{}
	f := &fakeFetcher{media: &dl.Media{
		URLs:        []string{"https://cdn.test/a.mp4?x=1&y=2", "https://cdn.test/b.mp4"},
		Metadata:    dl.Metadata{Username: "alice", Likes: 1234567, Caption: strings.Repeat("c", 120)},
		OriginalURL: "https://www.instagram.com/reel/ABC/",
	}}
	p := New(Deps{Fetcher: f, Registry: &fakeRegistry{ids: map[int64]bool{}}})

	require.NoError(t, p.TextHandler()(context.Background(), newReq(ad, 9, "https://www.instagram.com/reel/ABC/")))
	assert.Equal(t, []string{"🔄 Processing your request..."}, ad.sends)
	require.Len(t, ad.edits, 1)
	out := ad.edits[0]
	assert.Contains(t, out, "@alice")
	assert.Contains(t, out, "1,234,567")
	assert.NotContains(t, out, "Comments")
	assert.Contains(t, out, strings.Repeat("c", 100)+"...")
	assert.Contains(t, out, `<a href="https://cdn.test/a.mp4?x=1&amp;y=2">Download Video 1</a>`)
	assert.Contains(t, out, "Download Video 2")
}

func TestFetchFailuresEditStatus(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{dl.ErrNoMedia, "No video found"},
		{dl.ErrNoResult, "Failed to fetch video information"},
		{errors.New("boom"), "An error occurred"},
	}
	for _, tc := range cases {
		ad := &chatLog{}
		p := New(Deps{Fetcher: &fakeFetcher{err: tc.err}, Registry: &fakeRegistry{ids: map[int64]bool{}}})
		require.NoError(t, p.TextHandler()(context.Background(), newReq(ad, 9, "https://instagram.com/p/X")))
		require.Len(t, ad.edits, 1)
		assert.Contains(t, ad.edits[0], tc.want)
	}
}

func TestPerUserLimiter(t *testing.T) {
	ad := &chatLog{}
	f := &fakeFetcher{media: &dl.Media{URLs: []string{"u"}}}
	p := New(Deps{Fetcher: f, Registry: &fakeRegistry{ids: map[int64]bool{}}, UserInterval: time.Hour, UserBurst: 2})

	for range 3 {
		require.NoError(t, p.TextHandler()(context.Background(), newReq(ad, 9, "https://instagram.com/p/X")))
	}
	assert.Equal(t, 2, f.calls)
	assert.Contains(t, ad.sends[len(ad.sends)-1], "Slow down")

	require.NoError(t, p.TextHandler()(context.Background(), newReq(ad, 10, "https://instagram.com/p/X")))
	assert.Equal(t, 3, f.calls)
}
