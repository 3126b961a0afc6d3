package broadcast

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "igrelay/internal/transport"
)

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []string
	edits   []string
	editErr error
	sendErr error
}

func (f *fakeMessenger) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return kit.MessageRef{}, f.sendErr
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeMessenger) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, text)
	return nil
}

func TestStatusReporterSendsOnceThenEdits(t *testing.T) {
	m := &fakeMessenger{}
	r := NewStatusReporter(m, kit.ChatTarget{ChatID: 99}, 5)
	ctx := context.Background()

	require.NoError(t, r.Started(ctx, Progress{Total: 3}))
	require.NoError(t, r.Update(ctx, Progress{Sent: 3, Done: 3, Total: 3}))
	require.NoError(t, r.Done(ctx, Result{Sent: 3, Total: 3}))

	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0], "Progress: 0/3")
	require.Len(t, m.edits, 2)
	assert.Contains(t, m.edits[0], "Progress: 3/3")
	assert.Contains(t, m.edits[1], "Success rate: 100.0%")
}

func TestStatusReporterNotModifiedIsSuccess(t *testing.T) {
	m := &fakeMessenger{}
	r := NewStatusReporter(m, kit.ChatTarget{ChatID: 1}, 0)
	ctx := context.Background()
	require.NoError(t, r.Started(ctx, Progress{Total: 1}))

	m.editErr = kit.NotModified(errors.New("Bad Request: message is not modified"))
	assert.NoError(t, r.Update(ctx, Progress{Total: 1}))
}

func TestStatusReporterDoneFallsBackToSend(t *testing.T) {
	m := &fakeMessenger{}
	r := NewStatusReporter(m, kit.ChatTarget{ChatID: 1}, 0)
	ctx := context.Background()
	require.NoError(t, r.Started(ctx, Progress{Total: 2}))

	m.editErr = errors.New("message to edit not found")
	require.NoError(t, r.Done(ctx, Result{Sent: 1, Blocked: 1, Total: 2}))

	require.Len(t, m.sent, 2)
	assert.Contains(t, m.sent[1], "Broadcast Complete!")
	assert.Contains(t, m.sent[1], "Success rate: 50.0%")
}

func TestStatusReporterNoRecipients(t *testing.T) {
	m := &fakeMessenger{}
	require.NoError(t, NewStatusReporter(m, kit.ChatTarget{ChatID: 1}, 0).NoRecipients(context.Background()))
	require.Len(t, m.sent, 1)
	assert.Contains(t, m.sent[0], "No users found")
}

func TestRenderSummaryMarksCancellation(t *testing.T) {
	s := RenderSummary(Result{Sent: 1, Failed: 3, Total: 4, Canceled: true})
	assert.True(t, strings.HasPrefix(s, "<b>⚠️ Broadcast Interrupted</b>"))
	assert.Contains(t, s, "Success rate: 25.0%")
}

func TestRenderProgressFormatsLargeTotals(t *testing.T) {
	s := RenderProgress(Progress{Total: 12345, Done: 10, Sent: 10})
	assert.Contains(t, s, "12,345 users")
	assert.Contains(t, s, "Progress: 10/12345")
}
