package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"postbot/internal/services/jobs"
	"postbot/internal/storage"
	"postbot/pkg/tgui"
)

const timeLayout = "02.01.2006 15:04"

func (b *Bot) cmdStart(ctx context.Context, req *request) error {
	text := tgui.JoinH("\n",
		tgui.B("Instagram Publishing Bot"),
		tgui.Raw(""),
		tgui.Esc("Send me a photo with a caption and I will publish it, or schedule it for later."),
		tgui.Raw(""),
		tgui.B("How it works"),
		tgui.Esc("1. /schedule to pick a date and time (optional)"),
		tgui.Esc("2. Send the photo with its caption"),
		tgui.Esc("3. The image goes to the public image host"),
		tgui.Esc("4. The post is published now or at the scheduled time"),
		tgui.Raw(""),
		tgui.B("Commands"),
		tgui.Esc("/schedule - schedule a post"),
		tgui.Esc("/scheduled - your scheduled posts"),
		tgui.Esc("/status - service status"),
		tgui.Esc("/help - full guide"),
	)
	return b.reply(ctx, req, text, nil)
}

func (b *Bot) cmdHelp(ctx context.Context, req *request) error {
	text := tgui.JoinH("\n",
		tgui.B("Guide"),
		tgui.Raw(""),
		tgui.B("Publish now"),
		tgui.Esc("Send a photo (compressed, or as an image document up to 20 MB) with an optional caption. It is published right away."),
		tgui.Raw(""),
		tgui.B("Schedule a post"),
		tgui.Esc("/schedule opens a calendar. Pick a day, the hour, the minutes, confirm, then send the photo. The post is published automatically at that time."),
		tgui.Raw(""),
		tgui.B("Manage scheduled posts"),
		tgui.Esc("/scheduled lists your posts with their status. Pending posts can be cancelled from the list."),
	)
	return b.reply(ctx, req, text, nil)
}

func (b *Bot) cmdSchedule(ctx context.Context, req *request) error {
	// A fresh /schedule discards any half-finished draft; say so when one
	// exists, so the overwrite is never silent.
	var note tgui.H
	if prev, err := b.deps.Sessions.Get(ctx, req.FromID); err == nil && prev.Date != nil {
		note = tgui.I("Your previous unfinished draft was discarded.")
	}
	if _, err := b.deps.Sessions.StartOrReplace(ctx, req.FromID); err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	now := b.now()
	text := tgui.JoinH("\n",
		tgui.B("Schedule a Post"),
		tgui.Raw(""),
		tgui.Esc("Pick the publication date:"),
		note,
		tgui.Raw(""),
		tgui.I("Only today and future dates can be selected."),
	)
	return b.reply(ctx, req, text, b.calendarMarkup(now.Year(), now.Month(), nil))
}

func (b *Bot) cmdScheduled(ctx context.Context, req *request) error {
	text, markup, err := b.renderJobList(ctx, req.FromID)
	if err != nil {
		return err
	}
	return b.reply(ctx, req, text, markup)
}

func (b *Bot) renderJobList(ctx context.Context, userID int64) (tgui.H, any, error) {
	list, err := b.deps.Jobs.ListByUser(ctx, userID, "")
	if err != nil {
		return "", nil, fmt.Errorf("list jobs: %w", err)
	}
	if len(list) == 0 {
		return tgui.Esc("You have no scheduled posts."), nil, nil
	}

	parts := []tgui.H{tgui.B("Your scheduled posts"), tgui.Raw("")}
	kb := tgui.NewInline()
	for _, j := range list {
		line := tgui.JoinH(" ",
			tgui.Raw(statusEmoji(j.Status)),
			tgui.Esc(j.ScheduledAt.Format(timeLayout)))
		parts = append(parts, line)
		switch {
		case j.Status == jobs.StatusPublished && j.PlatformMediaID != "":
			parts = append(parts, tgui.JoinH(" ", tgui.Esc("   media id:"), tgui.Code(j.PlatformMediaID)))
		case j.Status == jobs.StatusFailed && j.ErrorMessage != "":
			parts = append(parts, tgui.Esc("   error: "+truncate(j.ErrorMessage, 50)))
		}
		if j.Status == jobs.StatusScheduled {
			kb.Row(tgui.Btn(
				"🚫 Cancel "+j.ScheduledAt.Format("02.01 15:04"),
				tgui.Data(areaJobs, "cancel", j.ID)))
		}
	}
	kb.Row(tgui.Btn("🔄 Refresh", tgui.Data(areaJobs, "refresh", "")))
	return tgui.JoinH("\n", parts...), kb.Markup(), nil
}

func statusEmoji(st jobs.Status) string {
	switch st {
	case jobs.StatusScheduled:
		return "⏰"
	case jobs.StatusClaimed:
		return "⏳"
	case jobs.StatusPublished:
		return "✅"
	case jobs.StatusFailed:
		return "❌"
	case jobs.StatusCancelled:
		return "🚫"
	default:
		return "❓"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}

func (b *Bot) cmdStatus(ctx context.Context, req *request) error {
	sessions, byStatus, err := b.deps.Store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	parts := []tgui.H{
		tgui.B("Status"),
		tgui.Raw(""),
		tgui.Esc(fmt.Sprintf("Active drafts: %d", sessions)),
	}
	order := []jobs.Status{
		jobs.StatusScheduled, jobs.StatusClaimed,
		jobs.StatusPublished, jobs.StatusFailed, jobs.StatusCancelled,
	}
	for _, st := range order {
		if n := byStatus[st]; n > 0 {
			parts = append(parts, tgui.Esc(fmt.Sprintf("%s %s: %d", statusEmoji(st), st, n)))
		}
	}
	return b.reply(ctx, req, tgui.JoinH("\n", parts...), nil)
}

func (b *Bot) cmdUnknown(ctx context.Context, req *request) error {
	return b.reply(ctx, req, tgui.Esc("Send me a photo, or see /help for what I can do."), nil)
}

// cbJobsRefresh re-renders the scheduled list in place.
func (b *Bot) cbJobsRefresh(ctx context.Context, req *request) error {
	text, markup, err := b.renderJobList(ctx, req.FromID)
	if err != nil {
		return err
	}
	return b.edit(ctx, req, text, markup)
}

func (b *Bot) cbJobCancel(ctx context.Context, req *request) error {
	id := strings.TrimSpace(req.Payload)
	if id == "" {
		return nil
	}
	err := b.deps.Jobs.Cancel(ctx, id, req.FromID)
	switch {
	case errors.Is(err, jobs.ErrNotOwner):
		return b.edit(ctx, req, tgui.Esc("That post is not yours."), nil)
	case errors.Is(err, jobs.ErrInvalidTransition):
		// Already claimed or finished; just refresh the list.
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return fmt.Errorf("cancel job: %w", err)
	}
	return b.cbJobsRefresh(ctx, req)
}
