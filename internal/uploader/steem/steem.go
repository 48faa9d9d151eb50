// Package steem uploads images to the Steem image host. The host
// authenticates uploads by a compact secp256k1 signature over a fixed
// challenge prefix plus the image bytes, made with the account's posting key.
package steem

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/mr-tron/base58"

	logx "postbot/pkg/logx"
)

const signingChallenge = "ImageSigningChallenge"

// wifVersion is the mainnet private key prefix shared by Bitcoin-derived
// chains, Steem included.
const wifVersion = 0x80

type Config struct {
	Username string
	// PostingWIF is the account's posting private key in WIF encoding.
	PostingWIF string
	// Endpoint defaults to https://steemitimages.com.
	Endpoint string

	HTTPClient *http.Client
}

type Uploader struct {
	username string
	key      *secp256k1.PrivateKey
	endpoint string
	hc       *http.Client
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) (*Uploader, error) {
	if cfg.Username == "" {
		return nil, errors.New("steem: username not configured")
	}
	key, err := decodeWIF(cfg.PostingWIF)
	if err != nil {
		return nil, fmt.Errorf("steem: posting key: %w", err)
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://steemitimages.com"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Uploader{
		username: cfg.Username,
		key:      key,
		endpoint: strings.TrimRight(endpoint, "/"),
		hc:       hc,
		log:      log,
	}, nil
}

// Upload pushes the image bytes to the host and returns the public URL.
func (u *Uploader) Upload(ctx context.Context, data []byte, filename string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("steem: empty image")
	}
	if filename == "" {
		filename = "image.jpg"
	}

	sig := u.sign(data)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/%s/%s", u.endpoint, u.username, sig)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := u.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("steem: upload: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("steem: upload http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out struct {
		URL   string `json:"url"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("steem: decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("steem: upload rejected: %s", out.Error)
	}
	if out.URL == "" {
		return "", errors.New("steem: response carries no url")
	}
	u.log.Info("image uploaded", logx.String("url", out.URL), logx.Int("bytes", len(data)))
	return out.URL, nil
}

// sign produces the hex compact signature over the host's signing challenge.
func (u *Uploader) sign(data []byte) string {
	h := sha256.New()
	h.Write([]byte(signingChallenge))
	h.Write(data)
	digest := h.Sum(nil)
	return hex.EncodeToString(ecdsa.SignCompact(u.key, digest, true))
}

// decodeWIF decodes a base58check private key: version byte, 32 key bytes,
// an optional compressed-pubkey marker and a 4-byte double-sha256 checksum.
func decodeWIF(wif string) (*secp256k1.PrivateKey, error) {
	if wif == "" {
		return nil, errors.New("not configured")
	}
	raw, err := base58.Decode(wif)
	if err != nil {
		return nil, fmt.Errorf("base58: %w", err)
	}
	if len(raw) != 37 && len(raw) != 38 {
		return nil, fmt.Errorf("unexpected length %d", len(raw))
	}

	payload, check := raw[:len(raw)-4], raw[len(raw)-4:]
	first := sha256.Sum256(payload)
	second := sha256.Sum256(first[:])
	if !bytes.Equal(check, second[:4]) {
		return nil, errors.New("checksum mismatch")
	}
	if payload[0] != wifVersion {
		return nil, fmt.Errorf("unexpected version byte %#x", payload[0])
	}

	keyBytes := payload[1:]
	if len(keyBytes) == 33 {
		if keyBytes[32] != 0x01 {
			return nil, errors.New("malformed compression marker")
		}
		keyBytes = keyBytes[:32]
	}
	return secp256k1.PrivKeyFromBytes(keyBytes), nil
}
