package bot

import (
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

func newMarkupBot(now time.Time) *Bot {
	b := New(Config{}, Deps{}, logx.Nop())
	return b.WithClock(func() time.Time { return now })
}

func findButton(markup *tele.ReplyMarkup, text string) (tele.InlineButton, bool) {
	for _, row := range markup.InlineKeyboard {
		for _, btn := range row {
			if btn.Text == text {
				return btn, true
			}
		}
	}
	return tele.InlineButton{}, false
}

func TestCalendarMarksTodayAndDisablesPast(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	b := newMarkupBot(now)
	markup := b.calendarMarkup(2026, time.September, nil)

	past, ok := findButton(markup, "13❌")
	if !ok {
		t.Fatal("past day not rendered disabled")
	}
	if area, action, _ := tgui.Split(past.Data); area != areaCalendar || action != "ignore" {
		t.Fatalf("past day data = %q, want ignore", past.Data)
	}

	today, ok := findButton(markup, "(14)")
	if !ok {
		t.Fatal("today not decorated")
	}
	if _, _, payload := tgui.Split(today.Data); payload != "2026-09-14" {
		t.Fatalf("today payload = %q", today.Data)
	}

	future, ok := findButton(markup, "15")
	if !ok {
		t.Fatal("future day missing")
	}
	if area, action, payload := tgui.Split(future.Data); area != areaCalendar || action != "day" || payload != "2026-09-15" {
		t.Fatalf("future day data = %q", future.Data)
	}
}

func TestCalendarWeeksAreSevenWide(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	b := newMarkupBot(now)

	// Header, weekday and control rows bracket the week rows.
	markup := b.calendarMarkup(2026, time.September, nil)
	rows := markup.InlineKeyboard
	if len(rows) < 5 {
		t.Fatalf("only %d rows", len(rows))
	}
	for i := 1; i < len(rows)-1; i++ {
		if len(rows[i]) != 7 {
			t.Fatalf("row %d has %d buttons, want 7", i, len(rows[i]))
		}
	}
	seen := map[string]bool{}
	for _, row := range rows[2 : len(rows)-1] {
		for _, btn := range row {
			seen[strings.Trim(btn.Text, "[]()❌")] = true
		}
	}
	for _, d := range []string{"1", "15", "30"} {
		if !seen[d] {
			t.Fatalf("day %s missing from grid", d)
		}
	}
}

func TestCalendarNavigationCrossesYears(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.Local)
	b := newMarkupBot(now)
	markup := b.calendarMarkup(2026, time.January, nil)

	prev, ok := findButton(markup, "◀️")
	if !ok {
		t.Fatal("prev button missing")
	}
	if _, _, payload := tgui.Split(prev.Data); payload != "2025-12" {
		t.Fatalf("prev payload = %q, want 2025-12", prev.Data)
	}
	next, ok := findButton(markup, "▶️")
	if !ok {
		t.Fatal("next button missing")
	}
	if _, _, payload := tgui.Split(next.Data); payload != "2026-02" {
		t.Fatalf("next payload = %q, want 2026-02", next.Data)
	}
}

func TestCalendarSelectedDayBracketed(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local)
	b := newMarkupBot(now)
	sel := time.Date(2026, 9, 20, 0, 0, 0, 0, time.Local)
	markup := b.calendarMarkup(2026, time.September, &sel)

	if _, ok := findButton(markup, "[20]"); !ok {
		t.Fatal("selected day not bracketed")
	}
}

func TestTimeMarkupShape(t *testing.T) {
	t.Parallel()
	b := newMarkupBot(time.Date(2026, 9, 14, 12, 0, 0, 0, time.Local))

	hour := 9
	markup := b.timeMarkup(&hour, nil)
	rows := markup.InlineKeyboard
	// 4 hour rows, minute row, control row.
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}
	for i := 0; i < 4; i++ {
		if len(rows[i]) != 6 {
			t.Fatalf("hour row %d has %d buttons", i, len(rows[i]))
		}
	}
	if _, ok := findButton(markup, "[09]"); !ok {
		t.Fatal("selected hour not bracketed")
	}
	for _, m := range []string{"00", "15", "30", "45"} {
		btn, ok := findButton(markup, m)
		if !ok {
			t.Fatalf("minute %s missing", m)
		}
		if area, action, _ := tgui.Split(btn.Data); area != areaTime || action != "minute" {
			t.Fatalf("minute data = %q", btn.Data)
		}
	}
	if _, ok := findButton(markup, "Confirm"); !ok {
		t.Fatal("confirm button missing")
	}
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	t.Parallel()
	// Job cancel buttons carry a uuid, the longest payload we produce.
	data := tgui.Data(areaJobs, "cancel", "123e4567-e89b-12d3-a456-426614174000")
	if err := tgui.Check(data); err != nil {
		t.Fatalf("Check(%q) = %v", data, err)
	}
}
