// Package app wires config, storage, services and the Telegram front end
// into one process lifecycle.
package app

import (
	"context"
	"sync"
	"time"

	"postbot/internal/bot"
	"postbot/internal/config"
	"postbot/internal/publisher/instagram"
	"postbot/internal/services/jobs"
	"postbot/internal/services/publisher"
	"postbot/internal/services/session"
	"postbot/internal/services/sweeper"
	"postbot/internal/storage"
	kit "postbot/internal/transport"
	"postbot/internal/transport/telegram"
	"postbot/internal/uploader/steem"
	logx "postbot/pkg/logx"
)

type App struct {
	cfg      *config.Config
	log      logx.Logger
	closeLog func() error

	store   *storage.Store
	adapter kit.Adapter
	bot     *bot.Bot
	loop    *publisher.Service
	sweep   *sweeper.Service

	updates chan kit.Update

	runCancel context.CancelFunc
	runWG     sync.WaitGroup
}

// chatMessenger adapts the transport to the publishing loop's notifier port.
type chatMessenger struct {
	ad kit.Adapter
}

func (m chatMessenger) SendText(ctx context.Context, chatID int64, text string) error {
	_, err := m.ad.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, nil)
	return err
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logx.New(logx.Config{
		Level: cfg.Logging.Level,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}
	appLog := log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	uploader, err := steem.New(steem.Config{
		Username:   cfg.Uploader.Steem.Username,
		PostingWIF: cfg.Uploader.Steem.PostingWIF,
		Endpoint:   cfg.Uploader.Steem.Endpoint,
	}, log.With(logx.String("comp", "steem")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ig, err := instagram.New(instagram.Config{
		AccessToken: cfg.Publisher.Instagram.AccessToken,
		AccountID:   cfg.Publisher.Instagram.AccountID,
		APIVersion:  cfg.Publisher.Instagram.APIVersion,
		BaseURL:     cfg.Publisher.Instagram.BaseURL,
	}, log.With(logx.String("comp", "instagram")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	jobSvc := jobs.New(store, log.With(logx.String("comp", "jobs")))
	sessSvc := session.New(store, jobSvc, log.With(logx.String("comp", "session")))

	interval, err := config.ParseDurationField("scheduler.interval", cfg.Scheduler.Interval)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	staleAfter, err := config.ParseDurationField("scheduler.stale_claim_after", cfg.Scheduler.StaleClaimAfter)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	loop := publisher.New(publisher.Config{
		Interval:         interval,
		StaleClaimAfter:  staleAfter,
		NotifyRatePerSec: cfg.Scheduler.NotifyRatePerSec,
	}, jobSvc, ig, chatMessenger{ad: ad}, log.With(logx.String("comp", "publisher")))

	sweepInterval, err := config.ParseDurationField("retention.sweep_interval", cfg.Retention.SweepInterval)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sessionWindow, err := config.ParseDurationField("retention.session_window", cfg.Retention.SessionWindow)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	jobWindow, err := config.ParseDurationField("retention.job_window", cfg.Retention.JobWindow)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sweep := sweeper.New(sweeper.Config{
		Interval:      sweepInterval,
		SessionWindow: sessionWindow,
		JobWindow:     jobWindow,
	}, store, log.With(logx.String("comp", "sweeper")))

	handlerTimeout, err := config.ParseDurationField("bot.handler_timeout", cfg.Bot.HandlerTimeout)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	b := bot.New(bot.Config{
		Owners:         cfg.Bot.OwnerUserIDs,
		Workers:        cfg.Bot.Workers,
		HandlerTimeout: handlerTimeout,
	}, bot.Deps{
		Adapter:   ad,
		Sessions:  sessSvc,
		Jobs:      jobSvc,
		Store:     store,
		Uploader:  uploader,
		Publisher: ig,
	}, log.With(logx.String("comp", "bot")))

	return &App{
		cfg:      cfg,
		log:      appLog,
		closeLog: closeLog,
		store:    store,
		adapter:  ad,
		bot:      b,
		loop:     loop,
		sweep:    sweep,
		updates:  make(chan kit.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}
	if err := a.loop.Start(runCtx); err != nil {
		cancel()
		return err
	}
	if err := a.sweep.Start(runCtx); err != nil {
		cancel()
		return err
	}

	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		if err := a.bot.Run(runCtx, a.updates); err != nil && runCtx.Err() == nil {
			a.log.Error("bot stopped", logx.Err(err))
		}
	}()

	a.log.Info("started",
		logx.Int("owners", len(a.cfg.Bot.OwnerUserIDs)),
		logx.String("storage", a.cfg.Storage.Path),
	)
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.runCancel != nil {
		a.runCancel()
	}
	_ = a.adapter.Stop(ctx)
	a.loop.Stop(ctx)
	a.sweep.Stop(ctx)
	a.runWG.Wait()

	err := a.store.Close()
	if a.closeLog != nil {
		_ = a.closeLog()
	}
	a.log.Info("stopped")
	return err
}
