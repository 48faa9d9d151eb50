package publisher

import (
	"context"
	"fmt"

	"postbot/internal/services/jobs"
	logx "postbot/pkg/logx"
)

// RunPass executes one publishing pass: claim everything due, publish the
// claims sequentially, resolve each job with its outcome and notify the
// originating chat. Passes never overlap. Returns the number of jobs
// published and failed.
func (s *Service) RunPass(ctx context.Context) (published, failed int) {
	s.passMu.Lock()
	defer s.passMu.Unlock()

	claimed, err := s.reg.ClaimDue(ctx, s.now())
	if err != nil {
		s.log.Warn("claim pass failed", logx.Err(err))
		return 0, 0
	}
	if len(claimed) == 0 {
		return 0, 0
	}
	s.log.Debug("claimed due jobs", logx.Int("count", len(claimed)))

	for _, job := range claimed {
		if ctx.Err() != nil {
			// Shutting down mid-pass. The remaining claims are picked up
			// by stale-claim recovery on the next start.
			s.log.Warn("pass interrupted", logx.Int("remaining", len(claimed)-published-failed))
			return published, failed
		}

		mediaID, perr := s.pub.Publish(ctx, job.ImageURL, job.Caption)
		var out jobs.Outcome
		if perr != nil {
			out = jobs.Failure(perr.Error())
			failed++
			s.log.Warn("publish failed",
				logx.String("job", job.ID), logx.Int64("user_id", job.UserID), logx.Err(perr))
		} else {
			out = jobs.Success(mediaID)
			published++
			s.log.Info("job published",
				logx.String("job", job.ID), logx.String("media_id", mediaID))
		}

		if rerr := s.reg.Resolve(ctx, job.ID, out); rerr != nil {
			s.log.Error("resolve failed",
				logx.String("job", job.ID), logx.Err(rerr))
			continue
		}
		s.notify(ctx, job, out)
	}
	return published, failed
}

func (s *Service) notify(ctx context.Context, job jobs.Job, out jobs.Outcome) {
	if s.msg == nil || job.OriginChatID == 0 {
		return
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	var text string
	if out.ErrorDetail != "" {
		text = fmt.Sprintf("❌ Publishing your post scheduled for %s failed: %s",
			job.ScheduledAt.Format("02.01.2006 15:04"), out.ErrorDetail)
	} else {
		text = fmt.Sprintf("✅ Your post scheduled for %s is published.",
			job.ScheduledAt.Format("02.01.2006 15:04"))
	}
	if err := s.msg.SendText(ctx, job.OriginChatID, text); err != nil {
		s.log.Warn("outcome notification failed",
			logx.String("job", job.ID), logx.Int64("chat_id", job.OriginChatID), logx.Err(err))
	}
}
