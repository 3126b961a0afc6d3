package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"igrelay/internal/metrics"
	rtsup "igrelay/internal/runtime/supervisor"
	kit "igrelay/internal/transport"
	logx "igrelay/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

// DeniedText is sent to non-admins invoking an admin-only command.
const DeniedText = "❌ You don't have permission to use this command."

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access

	// Timeout overrides the manager default. A negative value disables the
	// deadline, which long-running commands such as broadcasts rely on.
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update       kit.Update
	Chat         kit.ChatTarget
	MessageID    int
	FromID       int64
	FromUsername string
	Private      bool

	Command string
	Args    []string
	// Payload is the raw text after the command word, inner whitespace and
	// newlines preserved.
	Payload string
	Text    string
	ReqID   string
	IsAdmin bool

	Adapter kit.Adapter
	Logger  logx.Logger
}

// Reply sends text to the request chat as a reply to the triggering message.
func (r *Request) Reply(ctx context.Context, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	o := kit.SendOptions{}
	if opt != nil {
		o = *opt
	}
	if o.ReplyTo == 0 {
		o.ReplyTo = r.MessageID
	}
	return r.Adapter.SendText(ctx, r.Chat, text, &o)
}

type CommandManager struct {
	mu       sync.RWMutex
	cmds     map[string]*Command // name and aliases -> command
	ordered  []Command
	text     HandlerFunc
	admin    int64
	username string
	timeout  time.Duration
	drain    time.Duration

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, adminID int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		cmds:    map[string]*Command{},
		admin:   adminID,
		timeout: 60 * time.Second,
		drain:   DefaultDrainTimeout,
		log:     log,
		adapter: adapter,
		jobs:    make(chan func(), 256),
	}
}

// DefaultDrainTimeout is how long DispatchLoop waits for running handlers
// after its context is done.
const DefaultDrainTimeout = 3 * time.Second

// SetDrainTimeout sets how long DispatchLoop waits for running handlers on
// shutdown. Handlers that report after cancellation need it to cover their
// own deadline.
func (m *CommandManager) SetDrainTimeout(d time.Duration) {
	if d <= 0 {
		d = DefaultDrainTimeout
	}
	m.mu.Lock()
	m.drain = d
	m.mu.Unlock()
}

// SetAdmin updates the id used for AccessAdminOnly checks. Safe during hot reload.
func (m *CommandManager) SetAdmin(id int64) {
	m.mu.Lock()
	m.admin = id
	m.mu.Unlock()
}

func (m *CommandManager) Admin() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admin
}

// SetDefaultTimeout sets the handler deadline for commands without their own.
func (m *CommandManager) SetDefaultTimeout(d time.Duration) {
	m.mu.Lock()
	m.timeout = d
	m.mu.Unlock()
}

// SetBotUsername makes "/cmd@other_bot" addressed to other bots ignored.
func (m *CommandManager) SetBotUsername(name string) {
	m.mu.Lock()
	m.username = strings.TrimPrefix(strings.TrimSpace(name), "@")
	m.mu.Unlock()
}

// SetTextHandler installs the handler for private, non-command text and for
// unknown commands sent in private chats.
func (m *CommandManager) SetTextHandler(h HandlerFunc) {
	m.mu.Lock()
	m.text = h
	m.mu.Unlock()
}

func (m *CommandManager) SetRegistry(cmds []Command) {
	cmds = append(cmds, Command{
		Name:        "help",
		Description: "show available commands",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Reply(ctx, m.helpText(req.IsAdmin), &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
			return err
		},
	})

	table := map[string]*Command{}
	ordered := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		cc := c
		table[name] = &cc
		for _, a := range c.Aliases {
			if sa := sanitizeTelegramCommand(a); sa != "" {
				if _, exists := table[sa]; !exists {
					table[sa] = &cc
				}
			}
		}
		ordered = append(ordered, cc)
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Name < ordered[j].Name })

	m.mu.Lock()
	m.cmds = table
	m.ordered = ordered
	m.mu.Unlock()

	if sup := m.Supervisor(); sup != nil {
		m.pushMenu(sup)
	}
}

// Supervisor returns the dispatcher supervisor (nil if not running).
func (m *CommandManager) Supervisor() *rtsup.Supervisor {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if !m.running {
		return nil
	}
	return m.sup
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

func (m *CommandManager) pushMenu(sup *rtsup.Supervisor) {
	up, ok := m.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	m.mu.RLock()
	menu := buildTelegramMenuCommands(m.ordered)
	m.mu.RUnlock()
	sup.Go("telegram.menu.update", func(ctx context.Context) error {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := up.UpdateMenuCommands(cctx, menu); err != nil {
			m.log.Warn("menu update failed", logx.Err(err))
		}
		return nil
	})
}

// tryEnqueue is a panic-safe enqueue (the jobs channel may be closed on shutdown).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)

	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(m.log.With(logx.Comp("telegram.router"))),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))
	m.pushMenu(sup)

	for i := range workers {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), rtsup.Restart{MinBackoff: 200 * time.Millisecond, MaxBackoff: 5 * time.Second, Fatal: true}, func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		})
	}

	defer func() {
		m.setSupervisor(nil, false)
		sup.Cancel()
		m.mu.RLock()
		drain := m.drain
		m.mu.RUnlock()
		wctx, cancel := context.WithTimeout(context.Background(), drain)
		_ = sup.Wait(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeUpdate(ctx, up)
		}
	}
}

func (m *CommandManager) routeUpdate(root context.Context, up kit.Update) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)

	word, payload, isCmd := splitCommand(text)
	if isCmd {
		name, target, _ := strings.Cut(word, "@")
		m.mu.RLock()
		username := m.username
		cmd := m.cmds[strings.ToLower(name)]
		m.mu.RUnlock()
		if target != "" && username != "" && !strings.EqualFold(target, username) {
			return
		}
		if cmd != nil {
			m.enqueue(root, up, *cmd, payload)
			return
		}
	}
	if !msg.IsPrivate {
		return
	}
	m.mu.RLock()
	h := m.text
	m.mu.RUnlock()
	if h != nil {
		m.enqueue(root, up, Command{Name: "text", Access: AccessEveryone, Handle: h}, "")
	}
}

// splitCommand splits "/cmd rest of text" into ("cmd", "rest of text", true).
func splitCommand(text string) (word, payload string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	body := text[1:]
	i := strings.IndexAny(body, " \t\n")
	if i < 0 {
		return body, "", body != ""
	}
	return body[:i], strings.TrimSpace(body[i+1:]), i > 0
}

func (m *CommandManager) enqueue(root context.Context, up kit.Update, cmd Command, payload string) {
	msg := up.Message
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	admin := m.admin
	timeout := m.timeout
	m.mu.RUnlock()

	isAdmin := admin != 0 && msg.FromID == admin
	if cmd.Access == AccessAdminOnly && !isAdmin {
		m.log.Warn("unauthorized command", logx.String("cmd", cmd.Name), logx.From(msg.FromID))
		metrics.CommandsTotal.WithLabelValues(cmd.Name, "denied").Inc()
		_, _ = m.adapter.SendText(root, chat, DeniedText, &kit.SendOptions{ReplyTo: msg.ID})
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Update:       up,
		Chat:         chat,
		MessageID:    msg.ID,
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		Private:      msg.IsPrivate,
		Command:      cmd.Name,
		Args:         strings.Fields(payload),
		Payload:      payload,
		Text:         strings.TrimSpace(msg.Text),
		ReqID:        rid,
		IsAdmin:      isAdmin,
		Adapter:      m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Chat(msg.ChatID),
			logx.From(msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	d := cmd.Timeout
	if d == 0 {
		d = timeout
	}
	final := Chain(cmd.Handle,
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(d),
	)
	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		_, _ = m.adapter.SendText(root, chat, "⏳ Busy, please try again in a moment.", &kit.SendOptions{ReplyTo: msg.ID})
	}
}
