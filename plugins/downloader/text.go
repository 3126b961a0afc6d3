package downloader

import (
	"strconv"

	"github.com/dustin/go-humanize"

	dl "igrelay/internal/downloader"
	kit "igrelay/internal/transport"
	"igrelay/pkg/tgui"
)

const (
	captionMax = 100
	signature  = "Bot by @medusaXD"
)

func htmlOpts() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true}
}

func bullet(s string) tgui.H { return tgui.Concat(tgui.Raw("• "), tgui.Esc(s)) }

func WelcomeText() string {
	return tgui.Lines(
		tgui.Concat(tgui.Raw("🎬 "), tgui.B("Instagram Video Downloader Bot")),
		"",
		tgui.Esc("Send me an Instagram video URL (Reel, Post, or IGTV) and I'll download it for you!"),
		"",
		tgui.B("Supported formats:"),
		bullet("Instagram Reels"),
		bullet("Instagram Posts with videos"),
		bullet("IGTV videos"),
		"",
		tgui.B("How to use:"),
		"1. Copy an Instagram video URL",
		"2. Send it to me",
		"3. Wait for the download to complete",
		"",
		tgui.Esc(signature),
	).String()
}

func InvalidURLText() string {
	return tgui.Lines(
		"❌ Please send a valid Instagram URL.",
		"",
		tgui.B("Examples:"),
		bullet("https://www.instagram.com/reel/ABC123/"),
		bullet("https://www.instagram.com/p/ABC123/"),
		bullet("https://www.instagram.com/tv/ABC123/"),
	).String()
}

// LinksText renders the extraction result: metadata, the original link and
// one numbered download link per media URL.
func LinksText(m *dl.Media) string {
	lines := []tgui.H{tgui.Concat(tgui.Raw("✅ "), tgui.B("Instagram Video Download Links")), ""}

	md := m.Metadata
	if md != (dl.Metadata{}) {
		if md.Username != "" {
			lines = append(lines, tgui.Concat(tgui.Raw("👤 "), tgui.B("User:"), tgui.Raw(" @"), tgui.Esc(md.Username)))
		}
		if md.Likes > 0 {
			lines = append(lines, tgui.Concat(tgui.Raw("❤️ "), tgui.B("Likes:"), tgui.Raw(" "), tgui.Esc(humanize.Comma(md.Likes))))
		}
		if md.Comments > 0 {
			lines = append(lines, tgui.Concat(tgui.Raw("💬 "), tgui.B("Comments:"), tgui.Raw(" "), tgui.Esc(humanize.Comma(md.Comments))))
		}
		if md.Caption != "" {
			lines = append(lines, tgui.Concat(tgui.Raw("📝 "), tgui.B("Caption:"), tgui.Raw(" "), tgui.Esc(tgui.Trunc(md.Caption, captionMax, "..."))))
		}
		lines = append(lines, "")
	}

	lines = append(lines,
		tgui.Concat(tgui.Raw("🔗 "), tgui.B("Original URL:")),
		tgui.Esc(m.OriginalURL),
		"",
		tgui.Concat(tgui.Raw("📥 "), tgui.B("Download Links:")),
	)
	for i, u := range m.URLs {
		n := strconv.Itoa(i + 1)
		lines = append(lines, tgui.Concat(tgui.B(n+"."), tgui.Raw(" "), tgui.Link("Download Video "+n, u)))
	}
	lines = append(lines,
		"",
		tgui.Concat(tgui.Raw("💡 "), tgui.B("How to download:")),
		bullet("Tap any download link above"),
		bullet("Video will open in your browser"),
		bullet("Long press and save to your device"),
		"",
		tgui.Esc(signature),
	)
	return tgui.Lines(lines...).String()
}
