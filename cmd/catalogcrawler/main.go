// Package main wires together the catalog crawler binary.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/dropradar/catalog-crawler/internal/api"
	"github.com/dropradar/catalog-crawler/internal/app"
	"github.com/dropradar/catalog-crawler/internal/blob"
	"github.com/dropradar/catalog-crawler/internal/browser"
	"github.com/dropradar/catalog-crawler/internal/captcha"
	"github.com/dropradar/catalog-crawler/internal/catalog"
	"github.com/dropradar/catalog-crawler/internal/config"
	"github.com/dropradar/catalog-crawler/internal/fetch"
	"github.com/dropradar/catalog-crawler/internal/logging"
	"github.com/dropradar/catalog-crawler/internal/metrics"
	"github.com/dropradar/catalog-crawler/internal/publisher"
	pubsubpublisher "github.com/dropradar/catalog-crawler/internal/publisher/pubsub"
	"github.com/dropradar/catalog-crawler/internal/site"
	"github.com/dropradar/catalog-crawler/internal/store"
	"github.com/dropradar/catalog-crawler/internal/store/archive"
	"github.com/dropradar/catalog-crawler/internal/store/postgres"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("crawl failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()

	strategy, err := site.Lookup(cfg.Site.Name)
	if err != nil {
		return err
	}
	meta := strategy.Metadata()

	page, closePage, err := newPage(ctx, cfg, meta)
	if err != nil {
		return fmt.Errorf("start page client: %w", err)
	}
	defer closePage()

	st, err := newStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	pub, err := newPublisher(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect pubsub: %w", err)
	}

	if cfg.Ops.Enabled {
		opsServer := api.NewServer(logger)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Ops.Port)
			if err := opsServer.Serve(ctx, addr); err != nil {
				logger.Warn("ops server stopped", zap.Error(err))
			}
		}()
	}

	titleMarker := cfg.Captcha.TitleMarker
	if titleMarker == "" {
		titleMarker = meta.ChallengeTitle
	}

	_, err = app.Run(ctx, app.Options{
		Strategy: strategy,
		Page:     page,
		Store:    st,
		Stats:    catalog.NewRunStats(),
		Logger:   logger,
		GatewayConfig: fetch.Config{
			MaxPermits:        int64(cfg.Crawler.MaxPermits),
			MaxRetries:        cfg.Crawler.MaxRetries,
			RetryDelay:        time.Duration(cfg.Crawler.RetryDelaySeconds) * time.Second,
			MaxRetryDelay:     time.Duration(cfg.Crawler.MaxRetryDelaySec) * time.Second,
			RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
			Burst:             cfg.Crawler.Burst,
		},
		CaptchaConfig: captcha.Config{
			PollInterval: time.Duration(cfg.Captcha.PollIntervalSeconds) * time.Second,
			SolveTimeout: time.Duration(cfg.Captcha.SolveTimeoutSeconds) * time.Second,
			TitleMarker:  titleMarker,
		},
		Workers:        cfg.Crawler.Workers,
		ResultBuffer:   cfg.Crawler.ResultBuffer,
		SitemapFetches: cfg.Crawler.SitemapFetches,
		Publisher:      pub,
		Topic:          cfg.PubSub.TopicName,
	})
	return err
}

func newPage(ctx context.Context, cfg config.Config, meta site.Metadata) (catalog.PageClient, func(), error) {
	timeout := time.Duration(cfg.Browser.RequestTimeoutSec) * time.Second
	switch cfg.Browser.Client {
	case config.BrowserColly:
		page := browser.NewColly(browser.CollyConfig{
			UserAgent: cfg.Browser.UserAgent,
			Timeout:   timeout,
		})
		return page, func() {}, nil
	default:
		page, err := browser.New(ctx, browser.Config{
			Headless:       cfg.Browser.Headless,
			WarmupURL:      meta.WarmupURL,
			UserAgent:      cfg.Browser.UserAgent,
			RequestTimeout: timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return page, page.Close, nil
	}
}

func newStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, error) {
	switch cfg.Output.Mode {
	case config.OutputPostgres:
		st, err := postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, err
		}
		if err := st.Init(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		var sink blob.Store
		if cfg.Output.GCSBucket != "" {
			client, err := gcstorage.NewClient(ctx)
			if err != nil {
				return nil, fmt.Errorf("gcs client: %w", err)
			}
			sink, err = blob.NewGCS(client, cfg.Output.GCSBucket)
			if err != nil {
				return nil, err
			}
		}
		return archive.Open(archive.Config{
			Dir:    cfg.Output.Dir,
			Object: cfg.Output.Object,
		}, sink, logger)
	}
}

func newPublisher(ctx context.Context, cfg config.Config) (publisher.Publisher, error) {
	if !cfg.PubSub.Enabled {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, err
	}
	return pubsubpublisher.New(client), nil
}
