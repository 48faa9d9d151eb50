package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v4"

	"postbot/internal/services/session"
	"postbot/internal/storage"
	"postbot/pkg/tgui"
)

// Callback areas. Kept short; callback data is limited to 64 bytes and job
// cancel buttons carry a uuid payload.
const (
	areaCalendar = "cal"
	areaTime     = "time"
	areaJobs     = "jobs"
)

const dayLayout = "2006-01-02"
const monthLayout = "2006-01"

var minuteOptions = []int{0, 15, 30, 45}

// stepState is the opaque blob the session keeps between the hour and minute
// picks.
type stepState struct {
	Hour *int `json:"hour,omitempty"`
}

// calendarMarkup renders one month. Past days render disabled; today and the
// selected day are decorated.
func (b *Bot) calendarMarkup(year int, month time.Month, selected *time.Time) *tele.ReplyMarkup {
	now := b.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	first := time.Date(year, month, 1, 0, 0, 0, 0, now.Location())
	prev := first.AddDate(0, -1, 0)
	next := first.AddDate(0, 1, 0)

	kb := tgui.NewInline()
	kb.Row(
		tgui.Btn("◀️", tgui.Data(areaCalendar, "nav", prev.Format(monthLayout))),
		tgui.Btn(fmt.Sprintf("%s %d", month, year), tgui.Data(areaCalendar, "ignore", "")),
		tgui.Btn("▶️", tgui.Data(areaCalendar, "nav", next.Format(monthLayout))),
	)
	kb.Row(
		tgui.Btn("Mo", tgui.Data(areaCalendar, "ignore", "")),
		tgui.Btn("Tu", tgui.Data(areaCalendar, "ignore", "")),
		tgui.Btn("We", tgui.Data(areaCalendar, "ignore", "")),
		tgui.Btn("Th", tgui.Data(areaCalendar, "ignore", "")),
		tgui.Btn("Fr", tgui.Data(areaCalendar, "ignore", "")),
		tgui.Btn("Sa", tgui.Data(areaCalendar, "ignore", "")),
		tgui.Btn("Su", tgui.Data(areaCalendar, "ignore", "")),
	)

	// Monday-first offset of the month's first day.
	offset := (int(first.Weekday()) + 6) % 7
	daysInMonth := next.AddDate(0, 0, -1).Day()

	blank := tgui.Btn(" ", tgui.Data(areaCalendar, "ignore", ""))
	row := make([]tele.Btn, 0, 7)
	for i := 0; i < offset; i++ {
		row = append(row, blank)
	}
	for d := 1; d <= daysInMonth; d++ {
		day := time.Date(year, month, d, 0, 0, 0, 0, now.Location())
		text := strconv.Itoa(d)
		data := tgui.Data(areaCalendar, "day", day.Format(dayLayout))
		switch {
		case selected != nil && day.Equal(*selected):
			text = "[" + text + "]"
		case day.Equal(today):
			text = "(" + text + ")"
		case day.Before(today):
			text += "❌"
			data = tgui.Data(areaCalendar, "ignore", "")
		}
		row = append(row, tgui.Btn(text, data))
		if len(row) == 7 {
			kb.Row(row...)
			// Row keeps the slice it was handed; start a fresh one.
			row = make([]tele.Btn, 0, 7)
		}
	}
	if len(row) > 0 {
		for len(row) < 7 {
			row = append(row, blank)
		}
		kb.Row(row...)
	}

	kb.Row(
		tgui.Btn("Cancel", tgui.Data(areaCalendar, "cancel", "")),
		tgui.Btn("Today", tgui.Data(areaCalendar, "today", "")),
	)
	return kb.Markup()
}

// timeMarkup renders the hour grid and minute options with the current picks
// bracketed.
func (b *Bot) timeMarkup(selHour, selMinute *int) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for start := 0; start < 24; start += 6 {
		row := make([]tele.Btn, 0, 6)
		for h := start; h < start+6; h++ {
			text := fmt.Sprintf("%02d", h)
			if selHour != nil && *selHour == h {
				text = "[" + text + "]"
			}
			row = append(row, tgui.Btn(text, tgui.Data(areaTime, "hour", strconv.Itoa(h))))
		}
		kb.Row(row...)
	}
	mins := make([]tele.Btn, 0, len(minuteOptions))
	for _, m := range minuteOptions {
		text := fmt.Sprintf("%02d", m)
		if selMinute != nil && *selMinute == m {
			text = "[" + text + "]"
		}
		mins = append(mins, tgui.Btn(text, tgui.Data(areaTime, "minute", strconv.Itoa(m))))
	}
	kb.Row(mins...)
	kb.Row(
		tgui.Btn("🔙 Back", tgui.Data(areaTime, "back", "")),
		tgui.Btn("Confirm", tgui.Data(areaTime, "confirm", "")),
		tgui.Btn("Cancel", tgui.Data(areaTime, "cancel", "")),
	)
	return kb.Markup()
}

func (b *Bot) sessionExpired(ctx context.Context, req *request) error {
	return b.edit(ctx, req, tgui.Esc("Session expired. Start again with /schedule."), nil)
}

func (b *Bot) cbCalendarDay(ctx context.Context, req *request) error {
	day, err := time.ParseInLocation(dayLayout, req.Payload, b.now().Location())
	if err != nil {
		return fmt.Errorf("bad day payload %q: %w", req.Payload, err)
	}
	switch err := b.deps.Sessions.RecordDate(ctx, req.FromID, day); {
	case errors.Is(err, storage.ErrNotFound):
		return b.sessionExpired(ctx, req)
	case errors.Is(err, session.ErrPastDate):
		return b.deps.Adapter.AnswerCallback(ctx, req.Cb.ID, "That date is in the past")
	case err != nil:
		return fmt.Errorf("record date: %w", err)
	}

	text := tgui.JoinH("\n",
		tgui.JoinH(" ", tgui.Esc("📅 Date selected:"), tgui.B(day.Format("02.01.2006"))),
		tgui.Raw(""),
		tgui.Esc("Now pick the hour:"),
	)
	return b.edit(ctx, req, text, b.timeMarkup(nil, nil))
}

func (b *Bot) cbCalendarNav(ctx context.Context, req *request) error {
	first, err := time.ParseInLocation(monthLayout, req.Payload, b.now().Location())
	if err != nil {
		return fmt.Errorf("bad month payload %q: %w", req.Payload, err)
	}
	var selected *time.Time
	if sess, err := b.deps.Sessions.Get(ctx, req.FromID); err == nil && sess.Date != nil {
		selected = sess.Date
	}
	return b.editCalendar(ctx, req, first.Year(), first.Month(), selected)
}

func (b *Bot) cbCalendarToday(ctx context.Context, req *request) error {
	now := b.now()
	return b.editCalendar(ctx, req, now.Year(), now.Month(), nil)
}

func (b *Bot) editCalendar(ctx context.Context, req *request, year int, month time.Month, selected *time.Time) error {
	text := tgui.JoinH("\n",
		tgui.B("Schedule a Post"),
		tgui.Raw(""),
		tgui.Esc("Pick the publication date:"),
		tgui.Raw(""),
		tgui.I("Only today and future dates can be selected."),
	)
	return b.edit(ctx, req, text, b.calendarMarkup(year, month, selected))
}

func (b *Bot) cbFlowCancel(ctx context.Context, req *request) error {
	if err := b.deps.Sessions.Cancel(ctx, req.FromID); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	return b.edit(ctx, req, tgui.Esc("❌ Scheduling cancelled."), nil)
}

func (b *Bot) cbTimeHour(ctx context.Context, req *request) error {
	hour, err := strconv.Atoi(req.Payload)
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("bad hour payload %q", req.Payload)
	}
	sess, err := b.deps.Sessions.Get(ctx, req.FromID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && sess.Date == nil) {
		return b.sessionExpired(ctx, req)
	}
	if err != nil {
		return err
	}

	// The hour alone is not a committed pick yet; park it in the step blob
	// until the minutes arrive.
	extra, err := json.Marshal(stepState{Hour: &hour})
	if err != nil {
		return err
	}
	if err := b.deps.Sessions.SaveExtra(ctx, req.FromID, extra); err != nil {
		return fmt.Errorf("save step state: %w", err)
	}

	text := tgui.JoinH("\n",
		tgui.JoinH(" ", tgui.Esc("📅 Date:"), tgui.B(sess.Date.Format("02.01.2006"))),
		tgui.JoinH(" ", tgui.Esc("🕐 Hour:"), tgui.B(fmt.Sprintf("%02d", hour))),
		tgui.Raw(""),
		tgui.Esc("Pick the minutes:"),
	)
	return b.edit(ctx, req, text, b.timeMarkup(&hour, sess.Minute))
}

func (b *Bot) cbTimeMinute(ctx context.Context, req *request) error {
	minute, err := strconv.Atoi(req.Payload)
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("bad minute payload %q", req.Payload)
	}
	sess, err := b.deps.Sessions.Get(ctx, req.FromID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && sess.Date == nil) {
		return b.sessionExpired(ctx, req)
	}
	if err != nil {
		return err
	}

	hour := sess.Hour
	var state stepState
	if len(sess.Extra) > 0 {
		if json.Unmarshal(sess.Extra, &state) == nil && state.Hour != nil {
			hour = state.Hour
		}
	}
	if hour == nil {
		return b.deps.Adapter.AnswerCallback(ctx, req.Cb.ID, "Pick the hour first")
	}

	switch err := b.deps.Sessions.RecordTime(ctx, req.FromID, *hour, minute); {
	case errors.Is(err, session.ErrPastTime):
		return b.deps.Adapter.AnswerCallback(ctx, req.Cb.ID, "That time is already past")
	case errors.Is(err, session.ErrInvalidStep):
		return b.sessionExpired(ctx, req)
	case err != nil:
		return fmt.Errorf("record time: %w", err)
	}

	text := tgui.JoinH("\n",
		tgui.JoinH(" ", tgui.Esc("📅 Date:"), tgui.B(sess.Date.Format("02.01.2006"))),
		tgui.JoinH(" ", tgui.Esc("🕐 Time:"), tgui.B(fmt.Sprintf("%02d:%02d", *hour, minute))),
		tgui.Raw(""),
		tgui.JoinH(" ", tgui.Esc("Press"), tgui.B("Confirm"), tgui.Esc("to continue")),
	)
	return b.edit(ctx, req, text, b.timeMarkup(hour, &minute))
}

func (b *Bot) cbTimeBack(ctx context.Context, req *request) error {
	sess, err := b.deps.Sessions.Get(ctx, req.FromID)
	if errors.Is(err, storage.ErrNotFound) {
		return b.sessionExpired(ctx, req)
	}
	if err != nil {
		return err
	}
	now := b.now()
	year, month := now.Year(), now.Month()
	if sess.Date != nil {
		year, month = sess.Date.Year(), sess.Date.Month()
	}
	return b.editCalendar(ctx, req, year, month, sess.Date)
}

func (b *Bot) cbTimeConfirm(ctx context.Context, req *request) error {
	sess, err := b.deps.Sessions.Get(ctx, req.FromID)
	if errors.Is(err, storage.ErrNotFound) {
		return b.sessionExpired(ctx, req)
	}
	if err != nil {
		return err
	}
	if !session.Complete(sess) {
		return b.deps.Adapter.AnswerCallback(ctx, req.Cb.ID, "Pick the hour and minutes first")
	}

	at := session.ScheduledAt(sess, b.now().Location())
	text := tgui.JoinH("\n",
		tgui.JoinH(" ", tgui.Esc("🕐 Scheduled for:"), tgui.B(at.Format(timeLayout))),
		tgui.Raw(""),
		tgui.B("Almost done!"),
		tgui.Raw(""),
		tgui.Esc("Now send the photo you want to publish at that time. The caption goes with it."),
	)
	return b.edit(ctx, req, text, nil)
}
