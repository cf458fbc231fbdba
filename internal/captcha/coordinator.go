package captcha

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dropradar/catalog-crawler/internal/catalog"
	"github.com/dropradar/catalog-crawler/internal/metrics"
)

// Probe reports whether the challenge is still present. Injectable so the
// coordinator state machine can be exercised without a browser.
type Probe func(ctx context.Context) (bool, error)

// Config controls the coordinator.
type Config struct {
	// PollInterval bounds how often the probe runs while waiting for a
	// human to solve the challenge.
	PollInterval time.Duration
	// SolveTimeout fails the resolution after this long. Zero means wait
	// indefinitely, which matches the historical behavior of this pipeline.
	SolveTimeout time.Duration
	// TitleMarker, when the default probe is used, is the substring of the
	// page title that indicates the challenge is still up.
	TitleMarker string
}

// Coordinator owns the fetch gate and drives single-flight challenge
// remediation: the first fetcher to observe a block closes the gate,
// surfaces the challenge, and polls until it clears; everyone else simply
// parks on the gate.
type Coordinator struct {
	cfg    Config
	gate   *Gate
	flight sync.Mutex
	page   catalog.PageClient
	probe  Probe
	stats  *catalog.RunStats
	logger *zap.Logger
}

// New builds a Coordinator. If probe is nil a title-based probe against
// page is installed.
func New(cfg Config, page catalog.PageClient, probe Probe, stats *catalog.RunStats, logger *zap.Logger) *Coordinator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.TitleMarker == "" {
		cfg.TitleMarker = "Access to this page has been denied"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		cfg:    cfg,
		gate:   NewGate(),
		page:   page,
		probe:  probe,
		stats:  stats,
		logger: logger,
	}
	if c.probe == nil {
		c.probe = c.titleProbe
	}
	return c
}

// Gate returns the shared fetch gate.
func (c *Coordinator) Gate() *Gate {
	return c.gate
}

// OnChallenge is called by a fetcher that observed a block signal. Exactly
// one caller drives remediation; the rest wait for the gate to reopen and
// return so the fetch can be retried.
func (c *Coordinator) OnChallenge(ctx context.Context) error {
	if !c.flight.TryLock() {
		return c.gate.Wait(ctx)
	}
	defer c.flight.Unlock()

	c.gate.Close()
	defer c.gate.Open()

	if c.stats != nil {
		c.stats.ChallengesTriggered.Add(1)
	}
	metrics.IncChallenge()
	c.logger.Warn("challenge detected, fetching paused until it is solved in the browser")

	c.surface(ctx)
	if err := c.awaitResolution(ctx); err != nil {
		return err
	}
	c.logger.Info("challenge cleared, resuming fetches")
	return nil
}

func (c *Coordinator) surface(ctx context.Context) {
	if c.page == nil {
		return
	}
	if err := c.page.BringToFront(ctx); err != nil {
		c.logger.Warn("bring browser to front failed", zap.Error(err))
	}
	if err := c.page.Reload(ctx); err != nil {
		c.logger.Warn("page reload failed", zap.Error(err))
	}
}

func (c *Coordinator) awaitResolution(ctx context.Context) error {
	var deadline <-chan time.Time
	if c.cfg.SolveTimeout > 0 {
		timer := time.NewTimer(c.cfg.SolveTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		present, err := c.probe(ctx)
		if err != nil {
			c.logger.Debug("challenge probe failed", zap.Error(err))
		} else if !present {
			return nil
		}

		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("challenge unsolved after %s", c.cfg.SolveTimeout)
		case <-ctx.Done():
			return fmt.Errorf("challenge wait: %w", ctx.Err())
		}
	}
}

func (c *Coordinator) titleProbe(ctx context.Context) (bool, error) {
	title, err := c.page.Title(ctx)
	if err != nil {
		return true, fmt.Errorf("read page title: %w", err)
	}
	return strings.Contains(title, c.cfg.TitleMarker), nil
}
