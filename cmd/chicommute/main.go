package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"chicommute/internal/api"
	"chicommute/internal/auth"
	"chicommute/internal/catalog"
	"chicommute/internal/config"
	"chicommute/internal/cta"
	"chicommute/internal/db"
	"chicommute/internal/feed"
	"chicommute/internal/metra"
	"chicommute/internal/metrics"
	"chicommute/internal/publisher"
	"chicommute/internal/schedule"
	"chicommute/internal/suggest"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	// Load configuration from .env and environment
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	// Root context with cancellation on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mcol := metrics.NewCollector(cfg.FeedPollInterval)
	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		metricsSrv = mcol.Serve(cfg.MetricsAddr)
	}

	cat, err := catalog.Default()
	if err != nil {
		log.Fatalf("catalog error: %v", err)
	}

	// Schedules: Postgres when configured, otherwise process memory
	var store schedule.Store
	if cfg.DatabaseURL != "" {
		if redacted, err := db.Redact(cfg.DatabaseURL); err == nil {
			log.Printf("Using database %s", redacted)
		}
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db open error: %v", err)
		}
		defer sqlDB.Close()
		if err := db.Ping(ctx, sqlDB); err != nil {
			log.Fatalf("db ping error: %v", err)
		}
		if err := db.Migrate(ctx, sqlDB); err != nil {
			log.Fatalf("db migrate error: %v", err)
		}
		store = db.NewScheduleStore(sqlDB)
	} else {
		log.Printf("DATABASE_URL not set; schedules are kept in memory")
		store = schedule.NewMemoryStore()
	}

	// Sessions: Redis when configured, otherwise process memory
	var tokens auth.TokenStore
	if cfg.RedisAddr != "" {
		rdb, err := auth.DialRedis(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalf("redis error: %v", err)
		}
		defer rdb.Close()
		tokens = auth.NewRedisStore(rdb)
	} else {
		tokens = auth.NewMemoryStore()
	}
	sessions := auth.NewSessions(tokens, cfg.SessionTTL, mcol)
	book := schedule.NewBook(store, mcol)
	unfollow := book.Follow(sessions)
	defer unfollow()

	// Initialize NATS publisher
	var snapPub feed.SnapshotPublisher
	if cfg.NATSURL != "" {
		pub, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubjectPrefix, cfg.LogNATSSubjects, wrapPublisherMetrics(mcol))
		if err != nil {
			log.Fatalf("nats error: %v", err)
		}
		defer pub.Close()
		snapPub = pub
	}

	policy, err := feed.ParseErrorPolicy(cfg.FeedOnError)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	metraClient := metra.NewClient(cfg.MetraBaseURL, cfg.MetraAPIKey, cfg.MetraAPISecret, 0)
	poller := feed.NewPoller(metraClient, snapPub, cfg.FeedPollInterval, policy, mcol)
	poller.Start(ctx)

	ctaClient := cta.NewClient(cta.Options{
		BusBaseURL:   cfg.CTABusBaseURL,
		TrainBaseURL: cfg.CTATrainBaseURL,
		BusAPIKey:    cfg.CTABusAPIKey,
		TrainAPIKey:  cfg.CTATrainAPIKey,
		CacheTTL:     cfg.CTACacheTTL,
		Location:     cfg.Location,
	}, mcol)

	var remote suggest.Remote
	if cfg.LLMEndpoint != "" {
		remote = suggest.NewRemoteClient(cfg.LLMEndpoint, cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMTimeout)
	} else {
		log.Printf("LLM_ENDPOINT not set; suggestions use the offline generator")
	}
	suggestions := suggest.NewService(suggest.Generator{Location: cfg.Location}, remote, mcol)

	srv := &api.Server{
		Catalog:       cat,
		Feed:          poller,
		FilterOptions: feed.FilterOptions{NarrowByDestination: cfg.FeedNarrowByDestination},
		CTA:           ctaClient,
		Sessions:      sessions,
		Schedules:     book,
		Suggestions:   suggestions,
		Metrics:       mcol,
	}
	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("http listening on %s", cfg.HTTPAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("http server error: %v", err)
			cancel()
		}
	}()

	// Block until context cancelled
	<-ctx.Done()

	// Allow graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	poller.Stop()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	log.Println("shutdown complete")
}

// wrapPublisherMetrics adapts our Collector to the PublisherMetrics interface.
func wrapPublisherMetrics(c *metrics.Collector) publisher.PublisherMetrics {
	if c == nil {
		return nil
	}
	return &pubMetrics{c: c}
}

type pubMetrics struct{ c *metrics.Collector }

func (p *pubMetrics) NATSPublishedInc()              { p.c.NATSPublished.Inc() }
func (p *pubMetrics) NATSPublishErrInc()             { p.c.NATSPublishErrs.Inc() }
func (p *pubMetrics) PublishObserve(d time.Duration) { p.c.PublishDuration.Observe(d.Seconds()) }
func (p *pubMetrics) NATSSetConnected(b bool) {
	if b {
		p.c.NATSConnected.Set(1)
	} else {
		p.c.NATSConnected.Set(0)
	}
}
