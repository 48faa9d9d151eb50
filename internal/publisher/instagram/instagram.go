// Package instagram publishes image posts through the Instagram Graph API.
//
// Publishing is two-phase: create a media container, wait for Instagram to
// finish processing it, then publish the container. The caller only sees the
// final media id or an error.
package instagram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logx "postbot/pkg/logx"
)

// maxCaptionLen is the Graph API caption limit; longer captions are truncated.
const maxCaptionLen = 2200

type Config struct {
	AccessToken string
	AccountID   string
	// APIVersion defaults to v23.0.
	APIVersion string
	// BaseURL defaults to https://graph.facebook.com. Tests point it at a
	// local server.
	BaseURL string
	// PollInterval and PollAttempts bound the container processing wait.
	// Defaults: 2s, 15 attempts.
	PollInterval time.Duration
	PollAttempts int

	HTTPClient *http.Client
}

type Publisher struct {
	cfg  Config
	base string
	hc   *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Publisher, error) {
	if cfg.AccessToken == "" {
		return nil, errors.New("instagram: access token not configured")
	}
	if cfg.AccountID == "" {
		return nil, errors.New("instagram: account id not configured")
	}
	ver := cfg.APIVersion
	if ver == "" {
		ver = "v23.0"
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://graph.facebook.com"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 15
	}
	return &Publisher{
		cfg:  cfg,
		base: strings.TrimRight(base, "/") + "/" + ver,
		hc:   hc,
		log:  log,
	}, nil
}

// Publish runs the full workflow and returns the published media id.
func (p *Publisher) Publish(ctx context.Context, imageURL, caption string) (string, error) {
	containerID, err := p.createContainer(ctx, imageURL, caption)
	if err != nil {
		return "", fmt.Errorf("create container: %w", err)
	}
	p.log.Debug("container created", logx.String("container", containerID))

	if err := p.waitProcessed(ctx, containerID); err != nil {
		return "", fmt.Errorf("container %s: %w", containerID, err)
	}

	mediaID, err := p.publishContainer(ctx, containerID)
	if err != nil {
		return "", fmt.Errorf("publish container %s: %w", containerID, err)
	}
	p.log.Info("media published", logx.String("media_id", mediaID))
	return mediaID, nil
}

func (p *Publisher) createContainer(ctx context.Context, imageURL, caption string) (string, error) {
	form := url.Values{
		"image_url":    {imageURL},
		"access_token": {p.cfg.AccessToken},
	}
	if caption != "" {
		if len(caption) > maxCaptionLen {
			caption = caption[:maxCaptionLen]
		}
		form.Set("caption", caption)
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := p.postForm(ctx, p.base+"/"+p.cfg.AccountID+"/media", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("response carries no container id")
	}
	return out.ID, nil
}

// waitProcessed polls the container until Instagram reports it finished.
// Processing normally takes 5 to 30 seconds.
func (p *Publisher) waitProcessed(ctx context.Context, containerID string) error {
	for attempt := 0; attempt < p.cfg.PollAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.cfg.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		status, err := p.containerStatus(ctx, containerID)
		if err != nil {
			return err
		}
		switch status {
		case "FINISHED":
			return nil
		case "ERROR", "EXPIRED":
			return fmt.Errorf("processing ended with status %s", status)
		}
		// IN_PROGRESS (or PUBLISHED, which publishContainer will reject)
	}
	return errors.New("processing did not finish in time")
}

func (p *Publisher) containerStatus(ctx context.Context, containerID string) (string, error) {
	u := fmt.Sprintf("%s/%s?fields=status_code&access_token=%s",
		p.base, containerID, url.QueryEscape(p.cfg.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	var out struct {
		StatusCode string `json:"status_code"`
	}
	if err := p.do(req, &out); err != nil {
		return "", err
	}
	return out.StatusCode, nil
}

func (p *Publisher) publishContainer(ctx context.Context, containerID string) (string, error) {
	form := url.Values{
		"creation_id":  {containerID},
		"access_token": {p.cfg.AccessToken},
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := p.postForm(ctx, p.base+"/"+p.cfg.AccountID+"/media_publish", form, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("response carries no media id")
	}
	return out.ID, nil
}

func (p *Publisher) postForm(ctx context.Context, u string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return p.do(req, out)
}

func (p *Publisher) do(req *http.Request, out any) error {
	resp, err := p.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return graphError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// graphError surfaces the message the Graph API wraps its failures in.
func graphError(status int, body []byte) error {
	var e struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return fmt.Errorf("graph api error %d (%s, code %d): %s",
			status, e.Error.Type, e.Error.Code, e.Error.Message)
	}
	return fmt.Errorf("graph api http %d", status)
}
