// Package qbittorrent talks to a qBittorrent instance over WebAPI v2 and
// exposes it as a ports.TransferClient.
package qbittorrent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentstream/seedwarden/internal/domain"
)

var (
	ErrUnauthorized     = errors.New("qbittorrent: login rejected")
	ErrUnexpectedStatus = errors.New("qbittorrent: unexpected status")
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	// UploadLimits caps upload speed (bytes/s, 0 unlimited) per priority
	// tier. Tiers without an entry keep their current limit.
	UploadLimits map[domain.PriorityTier]int64
	Retry        RetryConfig
}

// Client is safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	limits   map[domain.PriorityTier]int64
	retry    RetryConfig
	http     *http.Client
	logger   *slog.Logger

	loginMu  sync.Mutex
	loggedIn bool
}

type torrentInfo struct {
	Hash       string  `json:"hash"`
	Name       string  `json:"name"`
	State      string  `json:"state"`
	Progress   float64 `json:"progress"`
	Ratio      float64 `json:"ratio"`
	Uploaded   int64   `json:"uploaded"`
	Downloaded int64   `json:"downloaded"`
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if _, err := url.ParseRequestURI(base); err != nil || base == "" {
		return nil, fmt.Errorf("qbittorrent: invalid url %q", cfg.URL)
	}
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryConfig()
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("qbittorrent: cookie jar: %w", err)
	}
	return &Client{
		baseURL:  base,
		username: cfg.Username,
		password: cfg.Password,
		limits:   cfg.UploadLimits,
		retry:    retry,
		http: &http.Client{
			Timeout:   timeout,
			Jar:       jar,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}, nil
}

// ListTransfers fetches every torrent. Transient network failures are
// retried with backoff.
func (c *Client) ListTransfers(ctx context.Context) ([]domain.TransferSnapshot, error) {
	var body []byte
	err := retryWithBackoff(ctx, c.retry, func() error {
		var err error
		body, _, err = c.call(ctx, http.MethodGet, "/api/v2/torrents/info", nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	var infos []torrentInfo
	if err := json.Unmarshal(body, &infos); err != nil {
		return nil, fmt.Errorf("qbittorrent: decode torrents: %w", err)
	}
	out := make([]domain.TransferSnapshot, 0, len(infos))
	for _, info := range infos {
		out = append(out, info.snapshot())
	}
	return out, nil
}

func (info torrentInfo) snapshot() domain.TransferSnapshot {
	id := domain.TransferID(strings.ToLower(info.Hash))
	if parsed, err := domain.ParseTransferID(info.Hash); err == nil {
		id = parsed
	}
	ratio := info.Ratio
	if math.IsInf(ratio, 0) || math.IsNaN(ratio) || ratio < 0 {
		ratio = 0
	}
	return domain.TransferSnapshot{
		ID:         id,
		Name:       info.Name,
		State:      domain.ParseTransferState(info.State),
		RawState:   info.State,
		Progress:   info.Progress,
		Ratio:      ratio,
		Uploaded:   info.Uploaded,
		Downloaded: info.Downloaded,
	}
}

func (c *Client) Reannounce(ctx context.Context, id domain.TransferID) error {
	return c.command(ctx, "/api/v2/torrents/reannounce", hashes(id))
}

// Pause uses the v4 endpoint and falls back to the v5 name when the server
// does not know it.
func (c *Client) Pause(ctx context.Context, id domain.TransferID) error {
	return c.commandWithFallback(ctx, "/api/v2/torrents/pause", "/api/v2/torrents/stop", hashes(id))
}

func (c *Client) Resume(ctx context.Context, id domain.TransferID) error {
	return c.commandWithFallback(ctx, "/api/v2/torrents/resume", "/api/v2/torrents/start", hashes(id))
}

// SetPriority moves the torrent in the queue and applies the tier's upload
// limit. A 409 from the queue endpoints means queueing is disabled and is
// not an error.
func (c *Client) SetPriority(ctx context.Context, id domain.TransferID, tier domain.PriorityTier) error {
	var path string
	switch tier {
	case domain.PriorityHigh:
		path = "/api/v2/torrents/topPrio"
	case domain.PriorityLow:
		path = "/api/v2/torrents/bottomPrio"
	case domain.PriorityNormal:
	default:
		return fmt.Errorf("qbittorrent: unknown priority tier %q", tier)
	}

	if path != "" {
		_, status, err := c.call(ctx, http.MethodPost, path, hashes(id))
		if err != nil && status != http.StatusConflict {
			return err
		}
		if status == http.StatusConflict {
			c.logger.Debug("qbt: queueing disabled, priority move skipped",
				slog.String("id", string(id)),
				slog.String("tier", string(tier)))
		}
	}

	limit, ok := c.limits[tier]
	if !ok {
		return nil
	}
	form := hashes(id)
	form.Set("limit", strconv.FormatInt(limit, 10))
	return c.command(ctx, "/api/v2/torrents/setUploadLimit", form)
}

func hashes(id domain.TransferID) url.Values {
	return url.Values{"hashes": {string(id)}}
}

func (c *Client) command(ctx context.Context, path string, form url.Values) error {
	_, _, err := c.call(ctx, http.MethodPost, path, form)
	return err
}

func (c *Client) commandWithFallback(ctx context.Context, path, fallback string, form url.Values) error {
	_, status, err := c.call(ctx, http.MethodPost, path, form)
	if status == http.StatusNotFound {
		return c.command(ctx, fallback, form)
	}
	return err
}

// call performs one request, logging in first if needed and once more when
// the session expired (403).
func (c *Client) call(ctx context.Context, method, path string, form url.Values) ([]byte, int, error) {
	if err := c.ensureLogin(ctx, false); err != nil {
		return nil, 0, err
	}
	body, status, err := c.send(ctx, method, path, form)
	if err == nil && status == http.StatusForbidden {
		if err := c.ensureLogin(ctx, true); err != nil {
			return nil, 0, err
		}
		body, status, err = c.send(ctx, method, path, form)
	}
	if err != nil {
		return nil, status, err
	}
	if status < 200 || status >= 300 {
		return body, status, fmt.Errorf("%w: %s %s returned %d: %s",
			ErrUnexpectedStatus, method, path, status, strings.TrimSpace(string(body)))
	}
	return body, status, nil
}

func (c *Client) send(ctx context.Context, method, path string, form url.Values) ([]byte, int, error) {
	var (
		req *http.Request
		err error
	)
	endpoint := c.baseURL + path
	if method == http.MethodGet {
		if len(form) > 0 {
			endpoint += "?" + form.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint, nil)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	// qBittorrent rejects cross-origin requests without a matching Referer.
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("qbittorrent: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	limit := int64(maxErrorBody)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		limit = 64 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("qbittorrent: read %s: %w", path, err)
	}
	return body, resp.StatusCode, nil
}

func (c *Client) ensureLogin(ctx context.Context, force bool) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()
	if c.loggedIn && !force {
		return nil
	}
	// Servers with auth bypass for the local network need no session.
	if c.username == "" && c.password == "" {
		c.loggedIn = true
		return nil
	}

	form := url.Values{"username": {c.username}, "password": {c.password}}
	body, status, err := c.send(ctx, http.MethodPost, "/api/v2/auth/login", form)
	if err != nil {
		c.loggedIn = false
		return err
	}
	if status != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		c.loggedIn = false
		return fmt.Errorf("%w: status %d", ErrUnauthorized, status)
	}
	c.loggedIn = true
	c.logger.Debug("qbt: logged in", slog.String("url", c.baseURL))
	return nil
}
