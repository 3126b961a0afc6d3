package logx

import (
	"io"
	"regexp"
)

// Bot API URLs embed the token ("/bot123456:AA.../sendMessage") and telebot
// transport errors quote the URL.
var botTokenRe = regexp.MustCompile(`\d{5,}:[A-Za-z0-9_-]{30,}`)

// Redact masks Telegram bot tokens in s.
func Redact(s string) string {
	return botTokenRe.ReplaceAllString(s, "<redacted>")
}

type redactWriter struct{ w io.Writer }

func (r redactWriter) Write(p []byte) (int, error) {
	if !botTokenRe.Match(p) {
		return r.w.Write(p)
	}
	if _, err := r.w.Write(botTokenRe.ReplaceAll(p, []byte("<redacted>"))); err != nil {
		return 0, err
	}
	return len(p), nil
}
