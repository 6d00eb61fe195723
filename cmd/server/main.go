package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Skufu/vitalwatch/internal/alert"
	"github.com/Skufu/vitalwatch/internal/anomaly"
	"github.com/Skufu/vitalwatch/internal/assistant"
	"github.com/Skufu/vitalwatch/internal/backend"
	"github.com/Skufu/vitalwatch/internal/config"
	"github.com/Skufu/vitalwatch/internal/dashboard"
	"github.com/Skufu/vitalwatch/internal/gemini"
	"github.com/Skufu/vitalwatch/internal/httpapi"
	"github.com/Skufu/vitalwatch/internal/logger"
	"github.com/Skufu/vitalwatch/internal/realtime"
	"github.com/Skufu/vitalwatch/internal/recommend"
	"github.com/Skufu/vitalwatch/internal/store"
	"github.com/Skufu/vitalwatch/internal/vitals"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	gin.SetMode(cfg.GinMode)

	zlog := logger.New(cfg.Log.FilePath, cfg.Log.Level, cfg.IsProduction())
	defer zlog.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("startup failed", zap.Error(err))
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("server error", zap.Error(err))
		}
	}()

	zlog.Info("server listening",
		zap.String("port", cfg.Port),
		zap.Bool("synthetic_feed", cfg.SyntheticFeed()),
		zap.Bool("db", cfg.Database.Enabled),
	)
	waitForShutdown(server, zlog)
	a.Close()
}

// app owns every long-lived component so shutdown can release them in
// reverse order of construction.
type app struct {
	router     *gin.Engine
	aggregator *dashboard.Aggregator
	ecg        *vitals.Source[vitals.Sample]
	eeg        *vitals.Source[vitals.EEGSample]
	cancel     context.CancelFunc
	closers    []func()
	log        *zap.Logger
}

func newApp(parent context.Context, cfg *config.Config, zlog *zap.Logger) (*app, error) {
	ctx, cancel := context.WithCancel(parent)
	a := &app{cancel: cancel, log: zlog}

	st, db, err := a.openStore(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	svc := store.NewService(st, zlog)

	var client *backend.Client
	if !cfg.SyntheticFeed() {
		client = backend.New(cfg.Backend.URL, cfg.Backend.Timeout)
	}
	synth := vitals.NewSynthetic(time.Now().UnixNano(), time.Now)

	var gen *gemini.Client
	if cfg.Gemini.APIKey != "" {
		gen = gemini.New(cfg.Gemini.APIKey, cfg.Gemini.Timeout,
			gemini.WithModel(cfg.Gemini.Model),
			gemini.WithBaseURL(cfg.Gemini.BaseURL),
		)
	} else {
		zlog.Warn("GEMINI_API_KEY not set, anomaly analysis uses reference data")
	}

	hub := realtime.NewHub(zlog)
	go hub.Run(ctx)
	var pub realtime.Publisher
	if bridge := a.redisBridge(ctx, cfg, hub); bridge != nil {
		pub = bridge
	}
	fanout := realtime.NewFanout(ctx, hub, pub, zlog)

	a.ecg, a.eeg = newSources(cfg, client, synth, zlog)
	a.ecg.Subscribe(func(samples []vitals.Sample, err error) {
		if err == nil {
			fanout.Send(realtime.TypeECG, samples)
		}
	})
	a.eeg.Subscribe(func(samples []vitals.EEGSample, err error) {
		if err == nil {
			fanout.Send(realtime.TypeEEG, samples)
		}
	})
	if err := a.ecg.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("start ecg source: %w", err)
	}
	if err := a.eeg.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("start eeg source: %w", err)
	}

	var generator anomaly.Generator
	if gen != nil {
		generator = gen
	}
	analyzer := anomaly.NewAnalyzer(generator, anomaly.WithWriter(svc), anomaly.WithLogger(zlog))
	engine := recommend.NewEngine(recommend.WithDelay(cfg.Pipeline.RecommendDelay), recommend.WithLogger(zlog))

	a.aggregator = dashboard.New(a.ecg, a.eeg, analyzer, engine, dashboard.WithLogger(zlog))
	a.aggregator.Subscribe(func(s dashboard.Snapshot) {
		fanout.Send(realtime.TypeSnapshot, s)
	})
	a.aggregator.StartAutoRefresh(cfg.Pipeline.RefreshInterval)

	assistantOpts := []assistant.Option{
		assistant.WithPredictionStore(svc),
		assistant.WithCacheTTL(cfg.HTTP.ChatCacheTTL),
		assistant.WithLogger(zlog),
	}
	if client != nil {
		assistantOpts = append(assistantOpts, assistant.WithBackend(client))
	}
	if gen != nil {
		assistantOpts = append(assistantOpts, assistant.WithGenerator(gen))
	}

	var sender alert.Sender = alert.NewLogSender(zlog)
	if cfg.SMTP.Host != "" {
		sender = alert.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.Sender)
	}

	deps := httpapi.Deps{
		Dashboard:    a.aggregator,
		Store:        svc,
		Assistant:    assistant.New(assistantOpts...),
		Alerts:       alert.NewDispatcher(sender, cfg.Alert.EmergencyContact, cfg.Alert.PatientName, alert.WithLogger(zlog)),
		Notifier:     fanout,
		Synthetic:    synth,
		WebSocket:    hub.ServeWS,
		Log:          zlog,
		CORSOrigin:   cfg.HTTP.CORSOrigin,
		StaticRoot:   cfg.StaticRoot,
		SOSPerMinute: cfg.Alert.SOSPerMinute,
		ChatPerSec:   cfg.HTTP.ChatPerSec,
	}
	if db != nil {
		deps.DB = db
	}
	if client != nil {
		deps.Scanner = client
	}
	if deps.StaticRoot == "" {
		deps.StaticRoot = httpapi.DetectStaticRoot()
	}
	a.router = httpapi.NewRouter(deps)

	return a, nil
}

// openStore returns Postgres when enabled, otherwise a seeded in-memory store.
// The second value is non-nil only for Postgres and backs /readyz.
func (a *app) openStore(ctx context.Context, cfg *config.Config) (store.Store, httpapi.HealthChecker, error) {
	if !cfg.Database.Enabled {
		mem := store.NewMemoryStore()
		mem.SeedDefaults()
		return mem, nil, nil
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	a.closers = append(a.closers, pool.Close)
	return store.NewPostgresStore(pool), pool, nil
}

// redisBridge connects the cross-instance channel when REDIS_URL is set. A
// failed connection only disables fan-out.
func (a *app) redisBridge(ctx context.Context, cfg *config.Config, hub *realtime.Hub) *realtime.RedisBridge {
	if cfg.Redis.URL == "" {
		return nil
	}

	rdb, err := realtime.ConnectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		a.log.Warn("redis unavailable, broadcasting locally only", zap.Error(err))
		return nil
	}
	a.closers = append(a.closers, func() { closeRedis(rdb, a.log) })

	bridge := realtime.NewRedisBridge(rdb, cfg.Redis.Channel, a.log)
	go bridge.Relay(ctx, hub)
	return bridge
}

func closeRedis(rdb *redis.Client, log *zap.Logger) {
	if err := rdb.Close(); err != nil {
		log.Warn("close redis", zap.Error(err))
	}
}

func newSources(cfg *config.Config, client *backend.Client, synth *vitals.Synthetic, zlog *zap.Logger) (*vitals.Source[vitals.Sample], *vitals.Source[vitals.EEGSample]) {
	ecgFetcher, eegFetcher := synth.ECGFetcher(), synth.EEGFetcher()
	if client != nil {
		ecgFetcher, eegFetcher = client.ECGFetcher(), client.EEGFetcher()
	}

	ecg := vitals.NewSource(vitals.StreamECG, ecgFetcher, vitals.NewBuffer[vitals.Sample](cfg.Pipeline.BufferCapacity),
		vitals.WithInterval[vitals.Sample](cfg.Pipeline.PollInterval),
		vitals.WithLogger[vitals.Sample](zlog),
	)
	eeg := vitals.NewSource(vitals.StreamEEG, eegFetcher, vitals.NewBuffer[vitals.EEGSample](cfg.Pipeline.BufferCapacity),
		vitals.WithInterval[vitals.EEGSample](cfg.Pipeline.PollInterval),
		vitals.WithLogger[vitals.EEGSample](zlog),
	)
	return ecg, eeg
}

func (a *app) Close() {
	if a.aggregator != nil {
		a.aggregator.Close()
	}
	if a.ecg != nil {
		a.ecg.Stop()
	}
	if a.eeg != nil {
		a.eeg.Stop()
	}
	a.cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func waitForShutdown(server *http.Server, zlog *zap.Logger) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	zlog.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
