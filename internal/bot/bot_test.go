package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/services/jobs"
	"postbot/internal/services/session"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

type sentMessage struct {
	ChatID int64
	Text   string
	Markup *tele.ReplyMarkup
}

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []sentMessage
	edits   []sentMessage
	answers []string
	files   map[string][]byte
	nextID  int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{files: map[string][]byte{}}
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	msg := sentMessage{ChatID: to.ChatID, Text: text}
	if opt != nil {
		msg.Markup, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	a.sent = append(a.sent, msg)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: a.nextID}, nil
}

func (a *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	msg := sentMessage{ChatID: ref.ChatID, Text: text}
	if opt != nil {
		msg.Markup, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	a.edits = append(a.edits, msg)
	return nil
}

func (a *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.answers = append(a.answers, text)
	return nil
}

func (a *fakeAdapter) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[fileID]
	if !ok {
		return nil, "", errors.New("unknown file")
	}
	return data, "photos/file_1.jpg", nil
}

func (a *fakeAdapter) lastSent() (sentMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return sentMessage{}, false
	}
	return a.sent[len(a.sent)-1], true
}

func (a *fakeAdapter) lastEdit() (sentMessage, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.edits) == 0 {
		return sentMessage{}, false
	}
	return a.edits[len(a.edits)-1], true
}

type fakeUploader struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (u *fakeUploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return "", u.err
	}
	url := fmt.Sprintf("https://images.example/%s", filename)
	u.urls = append(u.urls, url)
	return url, nil
}

type fakePublisher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakePublisher) Publish(ctx context.Context, imageURL, caption string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.calls++
	return fmt.Sprintf("IG%d", p.calls), nil
}

type fixture struct {
	bot      *Bot
	adapter  *fakeAdapter
	uploader *fakeUploader
	pub      *fakePublisher
	sessions *session.Service
	jobs     *jobs.Service
	updates  chan kit.Update
	now      time.Time
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	clock := func() time.Time { return now }

	reg := jobs.New(st, logx.Nop()).WithClock(clock)
	sess := session.New(st, reg, logx.Nop()).WithClock(clock)
	adapter := newFakeAdapter()
	up := &fakeUploader{}
	pub := &fakePublisher{}

	b := New(cfg, Deps{
		Adapter:   adapter,
		Sessions:  sess,
		Jobs:      reg,
		Store:     st,
		Uploader:  up,
		Publisher: pub,
	}, logx.Nop()).WithClock(clock)

	updates := make(chan kit.Update)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &fixture{
		bot: b, adapter: adapter, uploader: up, pub: pub,
		sessions: sess, jobs: reg, updates: updates, now: now,
	}
}

func (f *fixture) message(text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 10, ChatID: 500, FromID: 42, Text: text,
	}}
}

func (f *fixture) callback(data string) kit.Update {
	return kit.Update{Kind: kit.UpdateCallback, Callback: &kit.Callback{
		ID: "cb1", FromID: 42, ChatID: 500, MessageID: 11, Data: data,
	}}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (f *fixture) sendAndWaitSent(t *testing.T, up kit.Update, substr string) sentMessage {
	t.Helper()
	f.updates <- up
	var got sentMessage
	waitFor(t, fmt.Sprintf("send containing %q", substr), func() bool {
		msg, ok := f.adapter.lastSent()
		if ok && strings.Contains(msg.Text, substr) {
			got = msg
			return true
		}
		return false
	})
	return got
}

func (f *fixture) sendAndWaitEdit(t *testing.T, up kit.Update, substr string) sentMessage {
	t.Helper()
	f.updates <- up
	var got sentMessage
	waitFor(t, fmt.Sprintf("edit containing %q", substr), func() bool {
		msg, ok := f.adapter.lastEdit()
		if ok && strings.Contains(msg.Text, substr) {
			got = msg
			return true
		}
		return false
	})
	return got
}

func TestScheduleFlowEndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	msg := f.sendAndWaitSent(t, f.message("/schedule"), "Pick the publication date")
	if msg.Markup == nil || len(msg.Markup.InlineKeyboard) == 0 {
		t.Fatal("calendar markup missing")
	}

	tomorrow := f.now.AddDate(0, 0, 1)
	f.sendAndWaitEdit(t, f.callback("cal:day:"+tomorrow.Format("2006-01-02")), "pick the hour")

	f.sendAndWaitEdit(t, f.callback("time:hour:9"), "Pick the minutes")
	f.sendAndWaitEdit(t, f.callback("time:minute:0"), "Confirm")

	sess, err := f.sessions.Get(ctx, 42)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if !session.Complete(sess) {
		t.Fatalf("session incomplete after minute pick: %+v", sess)
	}

	f.sendAndWaitEdit(t, f.callback("time:confirm"), "send the photo")

	f.adapter.mu.Lock()
	f.adapter.files["ph1"] = []byte("jpeg bytes")
	f.adapter.mu.Unlock()
	photo := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 20, ChatID: 500, FromID: 42, PhotoFileID: "ph1", Caption: "hello world",
	}}
	f.updates <- photo
	waitFor(t, "scheduled confirmation", func() bool {
		msg, ok := f.adapter.lastEdit()
		return ok && strings.Contains(msg.Text, "Post scheduled")
	})

	list, err := f.jobs.ListByUser(ctx, 42, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("jobs = %d, want 1", len(list))
	}
	job := list[0]
	want := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), 9, 0, 0, 0, f.now.Location())
	if !job.ScheduledAt.Equal(want) {
		t.Fatalf("ScheduledAt = %v, want %v", job.ScheduledAt, want)
	}
	if job.Caption != "hello world" {
		t.Fatalf("Caption = %q", job.Caption)
	}
	if job.Status != jobs.StatusScheduled {
		t.Fatalf("Status = %s", job.Status)
	}

	// The draft is gone; the publisher was never involved.
	if _, err := f.sessions.Get(ctx, 42); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("session survived finalize: %v", err)
	}
	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	if f.pub.calls != 0 {
		t.Fatalf("publisher called %d times during scheduling", f.pub.calls)
	}
}

func TestPhotoWithoutDraftPublishesImmediately(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	f.adapter.mu.Lock()
	f.adapter.files["ph2"] = []byte("jpeg bytes")
	f.adapter.mu.Unlock()
	photo := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 30, ChatID: 500, FromID: 42, PhotoFileID: "ph2", Caption: "now",
	}}
	f.updates <- photo
	waitFor(t, "published confirmation", func() bool {
		msg, ok := f.adapter.lastEdit()
		return ok && strings.Contains(msg.Text, "Published!") && strings.Contains(msg.Text, "IG1")
	})
}

func TestDocumentMustBeImage(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})

	doc := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 40, ChatID: 500, FromID: 42,
		DocumentFileID: "d1", DocumentMime: "application/pdf", DocumentSize: 1024,
	}}
	f.sendAndWaitSent(t, doc, "send an image")

	big := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 41, ChatID: 500, FromID: 42,
		DocumentFileID: "d2", DocumentMime: "image/png", DocumentSize: maxDocumentSize + 1,
	}}
	f.sendAndWaitSent(t, big, "too large")
}

func TestOwnerRestriction(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{Owners: []int64{1}})

	stranger := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 50, ChatID: 500, FromID: 42, Text: "/start",
	}}
	f.updates <- stranger

	owner := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ID: 51, ChatID: 501, FromID: 1, Text: "/start",
	}}
	f.updates <- owner

	waitFor(t, "owner reply", func() bool {
		msg, ok := f.adapter.lastSent()
		return ok && msg.ChatID == 501
	})
	f.adapter.mu.Lock()
	defer f.adapter.mu.Unlock()
	for _, m := range f.adapter.sent {
		if m.ChatID == 500 {
			t.Fatalf("stranger got a reply: %q", m.Text)
		}
	}
}

func TestScheduledListAndCancel(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	ctx := context.Background()

	job, err := f.jobs.Create(ctx, jobs.Draft{
		UserID:      42,
		ImageURL:    "https://images.example/a.jpg",
		ScheduledAt: f.now.Add(2 * time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}

	msg := f.sendAndWaitSent(t, f.message("/scheduled"), "Your scheduled posts")
	if msg.Markup == nil {
		t.Fatal("list markup missing")
	}
	var cancelData string
	for _, row := range msg.Markup.InlineKeyboard {
		for _, btn := range row {
			if strings.Contains(btn.Text, "Cancel") {
				cancelData = btn.Data
			}
		}
	}
	if !strings.Contains(cancelData, job.ID) {
		t.Fatalf("cancel button data %q lacks job id", cancelData)
	}

	f.sendAndWaitEdit(t, f.callback(cancelData), "🚫")

	got, err := f.jobs.Get(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != jobs.StatusCancelled {
		t.Fatalf("Status = %s, want cancelled", got.Status)
	}
}

func TestUnknownCommandHint(t *testing.T) {
	t.Parallel()
	f := newFixture(t, Config{})
	f.sendAndWaitSent(t, f.message("/frobnicate"), "/help")
}
