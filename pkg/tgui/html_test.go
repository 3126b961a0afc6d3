package tgui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscapeHelpers(t *testing.T) {
	assert.Equal(t, H("<b>a &lt;b&gt;</b>"), B("a <b>"))
	assert.Equal(t, H("<code>x&amp;y</code>"), Code("x&y"))
	assert.Equal(t, H(`<a href="https://x.test/?a=1&amp;b=2">go &#34;now&#34;</a>`), Link(`go "now"`, "https://x.test/?a=1&b=2"))
}

func TestLinesAndConcat(t *testing.T) {
	got := Lines(B("title"), "", Concat(Esc("a"), Raw(" "), I("b")))
	assert.Equal(t, H("<b>title</b>\n\na <i>b</i>"), got)
}

func TestTrunc(t *testing.T) {
	assert.Equal(t, "short", Trunc("short", 10, "..."))
	assert.Equal(t, "abc...", Trunc("abcdef", 3, "..."))
	assert.Equal(t, "ünï...", Trunc("ünïcode", 3, "..."))
	assert.Equal(t, "", Trunc("abc", 0, "..."))

	long := strings.Repeat("x", 150)
	assert.Equal(t, strings.Repeat("x", 100)+"...", Trunc(long, 100, "..."))
}
