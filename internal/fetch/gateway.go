// Package fetch implements the concurrency-bounded, retrying fetch gateway
// every network access in a run goes through.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/dropradar/catalog-crawler/internal/captcha"
	"github.com/dropradar/catalog-crawler/internal/catalog"
	"github.com/dropradar/catalog-crawler/internal/metrics"
)

// Config controls gateway behavior.
type Config struct {
	// MaxPermits bounds how many requests may be in flight at once,
	// independent of pipeline worker count.
	MaxPermits int64
	// MaxRetries is the transient-failure budget per Fetch call. Blocked
	// attempts do not consume it.
	MaxRetries int
	// RetryDelay is the base delay between transient retries; it doubles
	// per attempt up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	// RequestsPerSecond enables request pacing when > 0.
	RequestsPerSecond float64
	Burst             int
	// StartupRetryDelay spaces the indefinite retries of FetchRequired.
	StartupRetryDelay time.Duration
}

// Gateway serializes access to the shared page client behind a permit pool,
// the CAPTCHA gate, and a retry loop.
type Gateway struct {
	cfg     Config
	client  catalog.PageClient
	permits *semaphore.Weighted
	limiter *rate.Limiter
	coord   *captcha.Coordinator
	stats   *catalog.RunStats
	logger  *zap.Logger
}

// New builds a Gateway.
func New(cfg Config, client catalog.PageClient, coord *captcha.Coordinator, stats *catalog.RunStats, logger *zap.Logger) *Gateway {
	if cfg.MaxPermits <= 0 {
		cfg.MaxPermits = 200
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = time.Minute
	}
	if cfg.StartupRetryDelay <= 0 {
		cfg.StartupRetryDelay = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if stats == nil {
		stats = catalog.NewRunStats()
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &Gateway{
		cfg:     cfg,
		client:  client,
		permits: semaphore.NewWeighted(cfg.MaxPermits),
		limiter: limiter,
		coord:   coord,
		stats:   stats,
		logger:  logger,
	}
}

// Fetch retrieves url. It returns the body on HTTP 200, catalog.ErrNotFound
// on 404 (terminal, never retried), and catalog.ErrExhausted once the
// transient-retry budget runs out. A block signal (403) hands control to
// the CAPTCHA coordinator and retries the same attempt afterwards.
func (g *Gateway) Fetch(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < g.cfg.MaxRetries; {
		if err := g.coord.Gate().Wait(ctx); err != nil {
			return nil, err
		}

		status, body, err := g.do(ctx, url)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("fetch %s: %w", url, ctx.Err())
			}
			lastErr = err
			metrics.ObserveFetch(metrics.OutcomeError)
		case status == http.StatusOK:
			g.stats.RequestsSucceeded.Add(1)
			metrics.ObserveFetch(metrics.OutcomeSuccess)
			return body, nil
		case status == http.StatusNotFound:
			metrics.ObserveFetch(metrics.OutcomeNotFound)
			return nil, fmt.Errorf("fetch %s: %w", url, catalog.ErrNotFound)
		case status == http.StatusForbidden:
			metrics.ObserveFetch(metrics.OutcomeBlocked)
			if err := g.coord.OnChallenge(ctx); err != nil {
				return nil, fmt.Errorf("fetch %s: %w", url, err)
			}
			// Blocked attempts do not consume the retry budget.
			continue
		default:
			lastErr = fmt.Errorf("status %d", status)
			metrics.ObserveFetch(metrics.OutcomeError)
		}

		attempt++
		if attempt >= g.cfg.MaxRetries {
			break
		}
		if err := g.sleep(ctx, g.backoff(attempt)); err != nil {
			return nil, err
		}
	}

	g.stats.RequestsFailed.Add(1)
	g.logger.Warn("skipping url after exhausting retries",
		zap.String("url", url),
		zap.Int("retries", g.cfg.MaxRetries),
		zap.NamedError("last_error", lastErr),
	)
	return nil, fmt.Errorf("fetch %s after %d retries (%v): %w", url, g.cfg.MaxRetries, lastErr, catalog.ErrExhausted)
}

// FetchRequired retries indefinitely with a fixed delay. It is reserved for
// fetches the run cannot proceed without (root sitemap, navigation trees);
// only context cancellation stops it.
func (g *Gateway) FetchRequired(ctx context.Context, url string) ([]byte, error) {
	for {
		body, err := g.Fetch(ctx, url)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		g.logger.Warn("required fetch failed, retrying",
			zap.String("url", url),
			zap.Duration("delay", g.cfg.StartupRetryDelay),
			zap.Error(err),
		)
		if err := g.sleep(ctx, g.cfg.StartupRetryDelay); err != nil {
			return nil, err
		}
	}
}

func (g *Gateway) do(ctx context.Context, url string) (int, []byte, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return 0, nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if err := g.permits.Acquire(ctx, 1); err != nil {
		return 0, nil, fmt.Errorf("acquire fetch permit: %w", err)
	}
	defer g.permits.Release(1)

	g.stats.RequestsAttempted.Add(1)
	metrics.IncInFlight()
	defer metrics.DecInFlight()

	status, body, err := g.client.Get(ctx, url)
	if err != nil {
		return 0, nil, fmt.Errorf("get %s: %w", url, err)
	}
	return status, body, nil
}

func (g *Gateway) backoff(attempt int) time.Duration {
	delay := g.cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= g.cfg.MaxRetryDelay {
			return g.cfg.MaxRetryDelay
		}
	}
	return delay
}

func (g *Gateway) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("retry wait: %w", ctx.Err())
	}
}
