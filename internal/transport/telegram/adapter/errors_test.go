package adapter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	kit "igrelay/internal/transport"
)

func TestMapErrorBlocked(t *testing.T) {
	for _, err := range []error{
		tele.ErrBlockedByUser,
		errors.New("telegram: Forbidden: user is deactivated (403)"),
		errors.New("telegram: Forbidden: bot was kicked from the group chat (403)"),
		errors.New("telegram: Bad Request: CHAT_WRITE_FORBIDDEN (400)"),
	} {
		got := mapError(err)
		assert.ErrorIs(t, got, kit.ErrRecipientBlocked, err.Error())
		assert.ErrorIs(t, got, err)
	}
}

func TestMapErrorInvalid(t *testing.T) {
	for _, err := range []error{
		tele.ErrChatNotFound,
		errors.New("telegram: Bad Request: PEER_ID_INVALID (400)"),
		errors.New("telegram: Bad Request: user not found (400)"),
	} {
		assert.ErrorIs(t, mapError(err), kit.ErrRecipientInvalid, err.Error())
	}
}

func TestMapErrorNotModified(t *testing.T) {
	err := errors.New("telegram: Bad Request: message is not modified: specified new message content is identical (400)")
	assert.ErrorIs(t, mapError(err), kit.ErrNotModified)
}

func TestMapErrorTransientPassthrough(t *testing.T) {
	err := errors.New("dial tcp: i/o timeout")
	got := mapError(err)
	assert.Same(t, err, got)
	assert.Nil(t, mapError(nil))
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	line := strings.Repeat("a", 30)
	s := strings.Repeat(line+"\n", 10)
	chunks := splitText(s, 100, "")
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c)), 100)
		assert.False(t, strings.HasSuffix(c, "\n"))
	}
	assert.Equal(t, strings.TrimRight(s, "\n"), strings.Join(chunks, "\n"))
}

func TestSplitTextShortIsUntouched(t *testing.T) {
	assert.Equal(t, []string{"hello"}, splitText("hello", 100, "HTML"))
}

func TestRateLimitedCarriesDelay(t *testing.T) {
	d, ok := kit.RetryAfterOf(kit.RateLimited(errors.New("flood"), 2*time.Second))
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}
