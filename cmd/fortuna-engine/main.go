// Command fortuna-engine runs the signal-detection scan pipeline: it wires
// the registry, source cache, ledger, router/sinks, scheduler, and HTTP
// admin surface, then runs until signaled to stop. Wiring style follows the
// teacher's cmd/edge-detector/main.go -- explicit dependency construction,
// a signal channel for graceful shutdown -- adapted to zerolog logging.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fortuna/edge-engine/internal/config"
	"github.com/fortuna/edge-engine/internal/detector"
	"github.com/fortuna/edge-engine/internal/domain"
	"github.com/fortuna/edge-engine/internal/health"
	"github.com/fortuna/edge-engine/internal/ledger"
	"github.com/fortuna/edge-engine/internal/metrics"
	"github.com/fortuna/edge-engine/internal/obslog"
	"github.com/fortuna/edge-engine/internal/registry"
	"github.com/fortuna/edge-engine/internal/router"
	"github.com/fortuna/edge-engine/internal/scan"
	"github.com/fortuna/edge-engine/internal/scheduler"
	"github.com/fortuna/edge-engine/internal/server"
	"github.com/fortuna/edge-engine/internal/sink"
	"github.com/fortuna/edge-engine/internal/source"
	"github.com/fortuna/edge-engine/internal/sourcecache"
	"github.com/fortuna/edge-engine/internal/wsbroadcast"
)

const primarySourceName = "primary-exchange"

func main() {
	cfg := config.Load()
	log := obslog.New(cfg.LogLevel, os.Stdout)
	log.Info().Msg("fortuna-engine starting")

	reg := registry.New(log)

	m := metrics.New("fortuna")
	detector.Metrics = m

	marketSource, err := source.NewPostgresMarketSource(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize primary market source")
	}
	reg.RegisterSource(registry.SourceDescriptor{
		Name:     primarySourceName,
		Category: domain.CategoryOther,
		CacheTTL: 30 * time.Second,
		Fetch:    marketSource.Fetch,
	})

	sc := sourcecache.New(reg, cfg.FetchCeiling, log)
	sc.Metrics = m
	led := ledger.New(cfg.LedgerDir, log)
	led.Metrics = m

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL, Password: cfg.RedisPassword})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Msg("redis unreachable at startup, stream sink will fail until it recovers")
	}

	hub := wsbroadcast.NewHub(log)
	go hub.Run(ctx)

	auditSink, err := sink.NewPostgresSink(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize postgres audit sink")
	}

	sinks := map[domain.Channel]router.Sink{
		domain.ChannelSports:        sink.NewRedisStreamSink(redisClient),
		domain.ChannelEconomics:     sink.NewRedisStreamSink(redisClient),
		domain.ChannelPolitics:      sink.NewRedisStreamSink(redisClient),
		domain.ChannelCrypto:        sink.NewRedisStreamSink(redisClient),
		domain.ChannelHealth:        sink.NewRedisStreamSink(redisClient),
		domain.ChannelMentions:      sink.NewRedisStreamSink(redisClient),
		domain.ChannelWeather:       sink.NewRedisStreamSink(redisClient),
		domain.ChannelEntertainment: sink.NewRedisStreamSink(redisClient),
		domain.ChannelDigest:        sink.NewFileSink(cfg.LedgerDir + "/digest.jsonl"),
	}
	for channel, s := range sinks {
		limited := sink.NewRateLimited(s, redisClient, cfg.SinkRateLimitPerMinute, time.Minute)
		sinks[channel] = multiSink{
			primary:   limited,
			broadcast: sink.NewWSBroadcastSink(hub),
			audit:     auditSink,
		}
	}
	r := router.New(sinks, log)
	r.Metrics = m
	r.Store = router.NewRedisSeenStore(redisClient, "", cfg.DedupTTL)

	pipeline := &scan.Pipeline{
		Registry:      reg,
		SourceCache:   sc,
		Ledger:        led,
		Router:        r,
		PrimarySource: primarySourceName,
		ScanDeadline:  cfg.ScanDeadline,
		Log:           log,
		Metrics:       m,
	}

	reporter := health.New()

	runScan := func(ctx context.Context) {
		r.ClearSeenMarkets()
		result := pipeline.Run(ctx)
		log.Info().
			Str("state", string(result.State)).
			Int("markets", result.MarketCount).
			Int("detected", result.DetectedCount).
			Int("emitted", result.EmittedCount).
			Dur("duration", result.Duration).
			Msg("scan complete")

		reporter.RecordScan(health.ScanSummary{
			State:         string(result.State),
			MarketCount:   result.MarketCount,
			DetectedCount: result.DetectedCount,
			GatedCount:    len(result.Drops),
			EmittedCount:  result.EmittedCount,
			Duration:      result.Duration,
		})
		if result.State == scan.StateAborted {
			reporter.RecordError(fmt.Sprintf("scan aborted at phase %s", result.AbortedAtPhase))
		}
	}

	sched := scheduler.New(log)
	if err := sched.AddScan(ctx, cfg.ScanIntervalCron, runScan); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule scan")
	}
	sched.Start()

	srv := server.New(log, reg, led, hub, reporter, func() { runScan(ctx) })
	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		serverErrors <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		log.Error().Err(err).Msg("http server error")
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	}

	sched.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("graceful http shutdown failed")
		_ = httpServer.Close()
	}

	_ = redisClient.Close()
	_ = auditSink.Close()
	log.Info().Msg("fortuna-engine shutdown complete")
}

// multiSink fans one opportunity out to the channel's primary destination,
// the websocket broadcast hub, and the Postgres audit trail. Only the
// primary sink's error is propagated to the router -- broadcast and audit
// are best-effort side channels whose returned errors are discarded here
// without logging. The websocket hub logs messages it drops on a full
// buffer; a failed Postgres audit insert is not logged anywhere.
type multiSink struct {
	primary   router.Sink
	broadcast router.Sink
	audit     router.Sink
}

func (m multiSink) Deliver(ctx context.Context, channel domain.Channel, o domain.Opportunity) error {
	_ = m.broadcast.Deliver(ctx, channel, o)
	_ = m.audit.Deliver(ctx, channel, o)
	return m.primary.Deliver(ctx, channel, o)
}

// DeliverBatch implements router.BatchCapable: the primary sink (a
// RateLimited wrapping the channel's RedisStreamSink) receives the group as
// one payload, while broadcast and audit -- which have no use for the
// batching presentation optimization -- still get every opportunity
// individually. On the digest channel the RateLimited wraps a FileSink,
// which is not BatchCapable, so members are delivered one by one.
func (m multiSink) DeliverBatch(ctx context.Context, channel domain.Channel, group router.Group) error {
	for _, o := range group.Opportunities {
		_ = m.broadcast.Deliver(ctx, channel, o)
		_ = m.audit.Deliver(ctx, channel, o)
	}
	if batch, ok := m.primary.(router.BatchCapable); ok {
		return batch.DeliverBatch(ctx, channel, group)
	}
	for _, o := range group.Opportunities {
		if err := m.primary.Deliver(ctx, channel, o); err != nil {
			return err
		}
	}
	return nil
}
