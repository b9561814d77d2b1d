package clist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/time/rate"

	"github.com/paul-wild/FAU-Clist-Bot/internal/timeutil"
	"github.com/paul-wild/FAU-Clist-Bot/pkg/logx"
)

const maxBodyBytes = 4 << 20

type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	cfg = cfg.withDefaults()
	burst := max(1, cfg.RequestsPerMinute/5)
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), burst),
		log:        log.With(logx.String("comp", "clist")),
	}
}

// FetchContests lists contests starting strictly inside
// (windowStart, windowStart+windowLength), ordered by start. windowLength <= 0
// uses the configured window. An empty list is a valid result. Without
// resource ids nothing is sent, since the query would match every judge.
func (c *Client) FetchContests(ctx context.Context, windowStart time.Time, windowLength time.Duration) ([]Contest, error) {
	if len(c.cfg.ResourceIDs) == 0 {
		return nil, &ProviderError{Op: "request", Err: fmt.Errorf("%w: no resource ids configured", errInvalidRequest)}
	}
	if windowLength <= 0 {
		windowLength = c.cfg.Window
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	u, err := c.buildURL(windowStart, windowLength)
	if err != nil {
		return nil, &ProviderError{Op: "request", Err: fmt.Errorf("%w: %v", errInvalidRequest, err)}
	}

	var (
		out     []Contest
		lastErr error
	)
	err = retry.Do(
		func() error {
			contests, err := c.fetchOnce(ctx, u)
			if err != nil {
				lastErr = err
				var pe *ProviderError
				if errors.As(err, &pe) && !pe.Temporary() {
					return retry.Unrecoverable(err)
				}
				return err
			}
			out = contests
			return nil
		},
		retry.Attempts(uint(c.cfg.Retries+1)),
		retry.Delay(c.cfg.RetryDelay),
		retry.MaxDelay(4*c.cfg.RetryDelay),
		retry.MaxJitter(c.cfg.RetryDelay/2),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("retrying contest fetch", logx.Int("attempt", int(n)+1), logx.Err(err))
		}),
	)
	if err != nil {
		if lastErr == nil {
			lastErr = &ProviderError{Op: "request", Err: err}
		}
		return nil, lastErr
	}
	return out, nil
}

func (c *Client) buildURL(windowStart time.Time, windowLength time.Duration) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	ids := make([]string, 0, len(c.cfg.ResourceIDs))
	for _, id := range c.cfg.ResourceIDs {
		ids = append(ids, strconv.Itoa(id))
	}

	q := base.Query()
	q.Set("username", c.cfg.Username)
	q.Set("api_key", c.cfg.APIKey)
	q.Set("resource__id__in", strings.Join(ids, ","))
	q.Set("start__gt", timeutil.FormatProviderTime(windowStart))
	q.Set("start__lt", timeutil.FormatProviderTime(windowStart.Add(windowLength)))
	q.Set("order_by", "start")
	base.RawQuery = q.Encode()
	return base.String(), nil
}

func (c *Client) fetchOnce(ctx context.Context, u string) ([]Contest, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		// Wait fails at once when the deadline is shorter than the delay, so
		// a retry would fail the same way.
		return nil, &ProviderError{Op: "ratelimit", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, &ProviderError{Op: "request", Err: fmt.Errorf("%w: %v", errInvalidRequest, err)}
	}
	req.Header.Set("Accept", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Op: "request", Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &ProviderError{Op: "request", Err: fmt.Errorf("read body: %w", err)}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Op: "status", Status: resp.StatusCode, Err: errors.New(truncate(body, 200))}
	}

	contests, err := decodeContests(body)
	if err != nil {
		return nil, err
	}
	c.log.Debug("fetched contests",
		logx.Int("count", len(contests)), logx.Duration("took", time.Since(started)))
	return contests, nil
}

func truncate(b []byte, maxLen int) string {
	s := strings.TrimSpace(string(b))
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
