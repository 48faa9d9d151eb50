package bot

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"postbot/internal/services/session"
	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
	"postbot/pkg/tgui"
)

// maxDocumentSize is the largest image document the bot accepts.
const maxDocumentSize = 20 << 20

// handleMedia runs the photo pipeline: download from Telegram, upload to the
// image host, then either attach to the active scheduling draft or publish
// immediately.
func (b *Bot) handleMedia(ctx context.Context, req *request) error {
	msg := req.Msg

	fileID := msg.PhotoFileID
	if fileID == "" {
		if !strings.HasPrefix(msg.DocumentMime, "image/") {
			return b.reply(ctx, req, tgui.Esc("⚠️ Please send an image (JPG, PNG)."), nil)
		}
		if msg.DocumentSize > maxDocumentSize {
			return b.reply(ctx, req, tgui.Esc("⚠️ File too large (max 20 MB)."), nil)
		}
		fileID = msg.DocumentFileID
	}

	status, err := b.deps.Adapter.SendText(ctx, req.Chat, "📥 Downloading the photo...", nil)
	if err != nil {
		return fmt.Errorf("send status: %w", err)
	}
	setStatus := func(text tgui.H, markup any) {
		opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup}
		if err := b.deps.Adapter.EditText(ctx, status, text.String(), opt); err != nil {
			req.Log.Warn("status edit failed", logx.Err(err))
		}
	}

	data, filePath, err := b.deps.Adapter.DownloadFile(ctx, fileID)
	if err != nil {
		setStatus(tgui.Esc("❌ Could not download the photo from Telegram."), nil)
		return fmt.Errorf("download %s: %w", fileID, err)
	}

	ext := path.Ext(filePath)
	if ext == "" {
		ext = ".jpg"
	}
	filename := fmt.Sprintf("photo_%d%s", msg.ID, ext)

	setStatus(tgui.Esc("⬆️ Uploading to the image host..."), nil)
	imageURL, err := b.deps.Uploader.Upload(ctx, data, filename)
	if err != nil {
		setStatus(tgui.Esc("❌ Upload to the image host failed. Try again later."), nil)
		return fmt.Errorf("upload %s: %w", filename, err)
	}
	req.Log.Info("image uploaded", logx.String("url", imageURL))

	// An active, fully picked draft means this photo is the scheduled one.
	if sess, serr := b.deps.Sessions.Get(ctx, req.FromID); serr == nil && session.Complete(sess) {
		job, ferr := b.deps.Sessions.AttachPayloadAndFinalize(
			ctx, req.FromID, imageURL, msg.Caption, msg.ChatID, msg.ID)
		if errors.Is(ferr, session.ErrPastTime) {
			setStatus(tgui.Esc("❌ The picked time has already passed. Start again with /schedule."), nil)
			return nil
		}
		if ferr != nil {
			setStatus(tgui.Esc("❌ Could not schedule the post. Send the photo again to retry."), nil)
			return fmt.Errorf("finalize: %w", ferr)
		}

		setStatus(tgui.JoinH("\n",
			tgui.B("🎉 Post scheduled!"),
			tgui.Raw(""),
			tgui.JoinH(" ", tgui.Esc("🔗 Image:"), tgui.Link("link", imageURL)),
			tgui.JoinH(" ", tgui.Esc("🕐 Publication:"), tgui.B(job.ScheduledAt.Format(timeLayout))),
			tgui.JoinH(" ", tgui.Esc("📝 Caption:"), captionOrNone(msg.Caption)),
			tgui.Raw(""),
			tgui.I("It will be published automatically at the scheduled time."),
		), nil)
		return nil
	}

	// No draft: publish right away.
	setStatus(tgui.Esc("✅ Uploaded!\n\n📸 Publishing to Instagram..."), nil)
	mediaID, err := b.deps.Publisher.Publish(ctx, imageURL, msg.Caption)
	if err != nil {
		setStatus(tgui.JoinH("\n",
			tgui.Esc("⚠️ The image is on the host but publishing failed:"),
			tgui.Raw(""),
			tgui.JoinH(" ", tgui.Esc("🔗 URL:"), tgui.Link("link", imageURL)),
			tgui.JoinH(" ", tgui.Esc("❌ Error:"), tgui.Esc(truncate(err.Error(), 200))),
		), nil)
		return fmt.Errorf("publish: %w", err)
	}

	setStatus(tgui.JoinH("\n",
		tgui.B("🎉 Published!"),
		tgui.Raw(""),
		tgui.JoinH(" ", tgui.Esc("🔗 Image:"), tgui.Link("link", imageURL)),
		tgui.JoinH(" ", tgui.Esc("📸 Media ID:"), tgui.Code(mediaID)),
	), nil)
	return nil
}

func captionOrNone(caption string) tgui.H {
	if strings.TrimSpace(caption) == "" {
		return tgui.I("(none)")
	}
	return tgui.Esc(caption)
}
