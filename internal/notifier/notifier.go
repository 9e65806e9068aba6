package notifier

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"torrentstream/seedwarden/internal/domain"
)

// Notifier posts persistent-stall alerts to an ntfy-compatible webhook: the
// body is plain text, title and tags travel as headers.
type Notifier struct {
	url    string
	token  string
	client *http.Client
	logger *slog.Logger
}

func New(url, token string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Enabled reports whether a webhook URL is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// NotifyStall sends one alert. Without a configured URL it is a no-op.
func (n *Notifier) NotifyStall(ctx context.Context, alert domain.StallAlert) error {
	if !n.Enabled() {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(alertMessage(alert)))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", "Stalled transfer: "+alert.Name)
	req.Header.Set("Tags", "warning,stall")
	req.Header.Set("Priority", "high")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: POST %s: %w", n.url, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
	}()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("notifier: POST %s returned %d", n.url, resp.StatusCode)
	}
	n.logger.Debug("notifier: stall alert sent",
		slog.String("id", string(alert.TransferID)),
		slog.Int("status", resp.StatusCode))
	return nil
}

func alertMessage(alert domain.StallAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s has been stalled for %d consecutive checks.\n", alert.Name, alert.StallCount)
	fmt.Fprintf(&b, "State: %s, progress: %s%%\n", alert.State, strconv.FormatFloat(alert.Progress*100, 'f', 1, 64))
	fmt.Fprintf(&b, "Hash: %s\n", alert.TransferID)
	b.WriteString("Reannounce and restart did not help; check trackers, peers and disk.")
	return b.String()
}
