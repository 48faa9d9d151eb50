// Package bot is the Telegram front end: command routing, the scheduling
// calendar flow and photo intake. All state lives in the services; the bot
// only translates updates into service calls and renders the replies.
package bot

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"postbot/internal/services/jobs"
	"postbot/internal/services/session"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

// Uploader pushes raw image bytes to the public image host.
type Uploader interface {
	Upload(ctx context.Context, data []byte, filename string) (string, error)
}

// Publisher publishes a post immediately (the no-session path).
type Publisher interface {
	Publish(ctx context.Context, imageURL, caption string) (string, error)
}

type Config struct {
	// Owners restricts the bot to the listed user ids. Empty means open.
	Owners []int64
	// Workers sizes the handler pool. Defaults to 2.
	Workers int
	// HandlerTimeout bounds a single handler. Defaults to 3 minutes, which
	// covers the download-upload-publish chain.
	HandlerTimeout time.Duration
}

type Deps struct {
	Adapter   kit.Adapter
	Sessions  *session.Service
	Jobs      *jobs.Service
	Store     *storage.Store
	Uploader  Uploader
	Publisher Publisher
}

type handlerFunc func(ctx context.Context, req *request) error

type request struct {
	Chat    kit.ChatTarget
	FromID  int64
	Msg     *kit.Message
	Cb      *kit.Callback
	Payload string
	Log     logx.Logger
}

type Bot struct {
	cfg  Config
	deps Deps
	log  logx.Logger
	now  func() time.Time

	commands  map[string]handlerFunc
	callbacks map[string]map[string]handlerFunc

	jobs chan func()
	wg   sync.WaitGroup
}

func New(cfg Config, deps Deps, log logx.Logger) *Bot {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 3 * time.Minute
	}
	b := &Bot{
		cfg:  cfg,
		deps: deps,
		log:  log,
		now:  time.Now,
		jobs: make(chan func(), 64),
	}
	b.commands = map[string]handlerFunc{
		"start":     b.cmdStart,
		"help":      b.cmdHelp,
		"schedule":  b.cmdSchedule,
		"scheduled": b.cmdScheduled,
		"status":    b.cmdStatus,
	}
	b.callbacks = map[string]map[string]handlerFunc{
		areaCalendar: {
			"day":    b.cbCalendarDay,
			"nav":    b.cbCalendarNav,
			"today":  b.cbCalendarToday,
			"cancel": b.cbFlowCancel,
			"ignore": func(ctx context.Context, req *request) error { return nil },
		},
		areaTime: {
			"hour":    b.cbTimeHour,
			"minute":  b.cbTimeMinute,
			"back":    b.cbTimeBack,
			"confirm": b.cbTimeConfirm,
			"cancel":  b.cbFlowCancel,
		},
		areaJobs: {
			"refresh": b.cbJobsRefresh,
			"cancel":  b.cbJobCancel,
		},
	}
	return b
}

// WithClock replaces the time source. Test hook.
func (b *Bot) WithClock(now func() time.Time) *Bot {
	b.now = now
	return b
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	for i := 0; i < b.cfg.Workers; i++ {
		idx := i
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-b.jobs:
					if !ok {
						return
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								b.log.Error("panic in handler",
									logx.Int("worker", idx),
									logx.Any("panic", r),
									logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}()
	}
	b.log.Info("dispatcher started", logx.Int("workers", b.cfg.Workers))

	defer func() {
		b.wg.Wait()
		b.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			b.route(ctx, up)
		}
	}
}

func (b *Bot) route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			b.routeMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			b.routeCallback(ctx, up.Callback)
		}
	}
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.cfg.Owners) == 0 {
		return true
	}
	for _, o := range b.cfg.Owners {
		if o == userID {
			return true
		}
	}
	return false
}

func (b *Bot) routeMessage(ctx context.Context, msg *kit.Message) {
	if !b.allowed(msg.FromID) {
		return
	}
	req := &request{
		Chat:   kit.ChatTarget{ChatID: msg.ChatID},
		FromID: msg.FromID,
		Msg:    msg,
		Log: b.log.With(
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID)),
	}

	if msg.PhotoFileID != "" || msg.DocumentFileID != "" {
		b.enqueue(ctx, req, "photo", b.handleMedia)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		b.enqueue(ctx, req, "fallback", b.cmdUnknown)
		return
	}
	word := strings.TrimPrefix(strings.Fields(text)[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	h, ok := b.commands[word]
	if !ok {
		h = b.cmdUnknown
	}
	b.enqueue(ctx, req, "/"+word, h)
}

func (b *Bot) routeCallback(ctx context.Context, cb *kit.Callback) {
	if !b.allowed(cb.FromID) {
		_ = b.deps.Adapter.AnswerCallback(ctx, cb.ID, "forbidden")
		return
	}
	area, action, payload := tgui.Split(cb.Data)
	actions, ok := b.callbacks[area]
	if !ok {
		return
	}
	h, ok := actions[action]
	if !ok {
		return
	}
	req := &request{
		Chat:    kit.ChatTarget{ChatID: cb.ChatID},
		FromID:  cb.FromID,
		Cb:      cb,
		Payload: payload,
		Log: b.log.With(
			logx.Int64("chat_id", cb.ChatID),
			logx.Int64("from_id", cb.FromID),
			logx.String("cb", area+":"+action)),
	}
	b.enqueue(ctx, req, "cb:"+area+":"+action, func(ctx context.Context, req *request) error {
		err := h(ctx, req)
		// Best-effort; stops the client's loading spinner.
		_ = b.deps.Adapter.AnswerCallback(ctx, cb.ID, "")
		return err
	})
}

func (b *Bot) enqueue(parent context.Context, req *request, name string, h handlerFunc) {
	job := func() {
		ctx, cancel := context.WithTimeout(parent, b.cfg.HandlerTimeout)
		defer cancel()
		start := time.Now()
		err := h(ctx, req)
		if err != nil {
			req.Log.Warn("handler failed",
				logx.String("handler", name),
				logx.Duration("dur", time.Since(start)),
				logx.Err(err))
			return
		}
		req.Log.Debug("handler ok",
			logx.String("handler", name),
			logx.Duration("dur", time.Since(start)))
	}
	select {
	case b.jobs <- job:
	default:
		req.Log.Warn("handler queue full", logx.String("handler", name))
		_, _ = b.deps.Adapter.SendText(parent, req.Chat, "Busy, try again in a moment.", nil)
	}
}

func (b *Bot) reply(ctx context.Context, req *request, text tgui.H, markup any) error {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup}
	_, err := b.deps.Adapter.SendText(ctx, req.Chat, text.String(), opt)
	return err
}

func (b *Bot) edit(ctx context.Context, req *request, text tgui.H, markup any) error {
	if req.Cb == nil {
		return b.reply(ctx, req, text, markup)
	}
	ref := kit.MessageRef{ChatID: req.Cb.ChatID, MessageID: req.Cb.MessageID}
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup}
	return b.deps.Adapter.EditText(ctx, ref, text.String(), opt)
}
