package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	kit "igrelay/internal/transport"
	"igrelay/pkg/tgui"
)

// StatusMessenger is the adapter surface a StatusReporter needs.
type StatusMessenger interface {
	SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error)
	EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error
}

// StatusReporter keeps one status message in the admin chat up to date.
// The first report sends it; later reports edit it in place.
type StatusReporter struct {
	out     StatusMessenger
	to      kit.ChatTarget
	replyTo int

	mu  sync.Mutex
	ref *kit.MessageRef
}

// NewStatusReporter reports into chat to, threading the first message under replyTo (0 = none).
func NewStatusReporter(out StatusMessenger, to kit.ChatTarget, replyTo int) *StatusReporter {
	return &StatusReporter{out: out, to: to, replyTo: replyTo}
}

func (r *StatusReporter) opts() *kit.SendOptions {
	return &kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true, ReplyTo: r.replyTo}
}

func (r *StatusReporter) NoRecipients(ctx context.Context) error {
	_, err := r.out.SendText(ctx, r.to, "❌ No users found in database.", r.opts())
	return err
}

func (r *StatusReporter) Started(ctx context.Context, p Progress) error {
	return r.render(ctx, RenderProgress(p))
}

func (r *StatusReporter) Update(ctx context.Context, p Progress) error {
	return r.render(ctx, RenderProgress(p))
}

// Done edits the status message into the summary and falls back to a fresh
// message when the edit fails.
func (r *StatusReporter) Done(ctx context.Context, res Result) error {
	text := RenderSummary(res)
	err := r.render(ctx, text)
	if err == nil {
		return nil
	}
	if _, sendErr := r.out.SendText(ctx, r.to, text, r.opts()); sendErr != nil {
		return errors.Join(err, sendErr)
	}
	return nil
}

func (r *StatusReporter) render(ctx context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ref == nil {
		ref, err := r.out.SendText(ctx, r.to, text, r.opts())
		if err != nil {
			return err
		}
		r.ref = &ref
		return nil
	}
	err := r.out.EditText(ctx, *r.ref, text, &kit.SendOptions{ParseMode: tgui.ParseMode, DisablePreview: true})
	if errors.Is(err, kit.ErrNotModified) {
		return nil
	}
	return err
}

// RenderProgress renders the live status text.
func RenderProgress(p Progress) string {
	return tgui.Lines(
		tgui.B(fmt.Sprintf("📢 Broadcasting message to %s users...", humanize.Comma(int64(p.Total)))),
		"",
		tgui.Esc(fmt.Sprintf("✅ Sent: %d", p.Sent)),
		tgui.Esc(fmt.Sprintf("❌ Failed: %d", p.Failed)),
		tgui.Esc(fmt.Sprintf("🚫 Blocked: %d", p.Blocked)),
		tgui.Esc(fmt.Sprintf("📊 Progress: %d/%d", p.Done, p.Total)),
	).String()
}

// RenderSummary renders the final report.
func RenderSummary(res Result) string {
	title := "📢 Broadcast Complete!"
	if res.Canceled {
		title = "⚠️ Broadcast Interrupted"
	}
	return tgui.Lines(
		tgui.B(title),
		"",
		tgui.Esc(fmt.Sprintf("✅ Successfully sent: %d", res.Sent)),
		tgui.Esc(fmt.Sprintf("❌ Failed to send: %d", res.Failed)),
		tgui.Esc(fmt.Sprintf("🚫 Blocked users: %d", res.Blocked)),
		tgui.Esc(fmt.Sprintf("📊 Total users: %d", res.Total)),
		"",
		tgui.Esc(fmt.Sprintf("📈 Success rate: %.1f%%", res.SuccessRate()*100)),
	).String()
}
