package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"

	"sudooom.im.sync/internal/config"
	"sudooom.im.sync/internal/engine"
	"sudooom.im.sync/internal/expiry"
	"sudooom.im.sync/internal/handler"
	"sudooom.im.sync/internal/health"
	"sudooom.im.sync/internal/metrics"
	imNats "sudooom.im.sync/internal/nats"
	imRedis "sudooom.im.sync/internal/redis"
	"sudooom.im.sync/internal/repository"
	"sudooom.im.sync/internal/router"
	"sudooom.im.sync/internal/task"
	"sudooom.im.sync/pkg/proto"
	"sudooom.im.sync/pkg/snowflake"
)

func main() {
	configPath := "configs/config.yaml"
	if p := os.Getenv("IMSYNC_CONFIG"); p != "" {
		configPath = p
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// 初始化日志
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.App.LogLevel),
	}))
	slog.SetDefault(logger)

	// 创建上下文
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 本地消息ID
	node, err := snowflake.NewNode(cfg.App.NodeID)
	if err != nil {
		logger.Error("Failed to create snowflake node", "error", err)
		os.Exit(1)
	}

	// 连接 NATS
	natsClient, err := imNats.NewClient(cfg.NATS, cfg.App.Name)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	logger.Info("Connected to NATS", "url", cfg.NATS.URL)

	// 连接 Redis
	redisClient := imRedis.NewClient(cfg.Redis)
	defer redisClient.Close()
	presenceStore := imRedis.NewPresenceStore(redisClient)
	logger.Info("Connected to Redis", "addr", cfg.Redis.Addr())

	// 连接数据库
	db, err := connectDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL", "host", cfg.Database.Host)

	// 定时器
	scheduler := task.NewScheduler(cfg.Sync.TimerWorkers, clock.WallClock)
	if err := scheduler.Start(); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer func() {
		st := scheduler.Stats()
		scheduler.Stop()
		logger.Info("Timer scheduler stopped", "executed", st.Executed, "failed", st.Failed, "pending", st.Pending)
	}()

	// 推送订阅与上行意图，订阅器在事件循环创建后才开始投递
	var loop *engine.Loop
	subscriber := imNats.NewEventSubscriber(natsClient.Conn(), imNats.DispatcherFunc(func(ev *proto.PushEvent) {
		loop.Dispatch(ev)
	}), imNats.SubscriberConfig{
		UserID:     cfg.App.LocalUserID,
		BufferSize: cfg.NATS.EventBuffer,
	})
	publisher := imNats.NewIntentPublisher(natsClient.Conn(), cfg.App.LocalUserID, subscriber)

	// 同步引擎
	m := metrics.New()
	m.WatchBuffer(subscriber.GetBufferUsage)
	eng := engine.New(engineOptions(cfg), engine.Deps{
		Transport: publisher,
		History:   repository.NewHistoryRepository(db),
		Presence:  presenceStore,
		Timers:    scheduler,
		Clock:     clock.WallClock,
		IDs:       node,
		Metrics:   m,
	})
	loop, err = engine.NewLoop(eng, engine.LoopConfig{
		Buffer:              cfg.Sync.IntakeBuffer,
		MaintenanceInterval: cfg.Sync.MaintenanceInterval,
		ExpiryCron:          cfg.Sync.ExpiryCron,
	})
	if err != nil {
		logger.Error("Failed to create sync loop", "error", err)
		os.Exit(1)
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil {
			logger.Error("Sync loop failed", "error", err)
		}
	}()

	// 启动订阅者
	if err := subscriber.Start(ctx); err != nil {
		logger.Error("Failed to start subscriber", "error", err)
		os.Exit(1)
	}

	// 初始数据
	if err := loop.Do(ctx, func(e *engine.Engine) { e.LoadChannels() }); err != nil {
		logger.Error("Failed to load channels", "error", err)
	}
	if err := presenceStore.SetOnline(ctx, cfg.App.LocalUserID); err != nil {
		logger.Warn("Failed to publish own presence", "error", err)
	}

	// 启动 HTTP 服务
	healthChecker := health.NewChecker(natsClient, presenceStore, db, loop)
	server := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: router.SetupRouter(handler.NewSyncHandler(loop, clock.WallClock), router.Options{
			Mode:    gin.ReleaseMode,
			Health:  healthChecker,
			Ready:   healthChecker.ReadyHandler(),
			Metrics: m.Handler(),
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		logger.Info("HTTP server started", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	logger.Info("Sync service started", "name", cfg.App.Name, "userId", cfg.App.LocalUserID)

	// 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := presenceStore.SetOffline(shutdownCtx, cfg.App.LocalUserID); err != nil {
		logger.Warn("Failed to clear own presence", "error", err)
	}
	subscriber.Stop()
	cancel()
	<-loopDone
	logger.Info("Sync service stopped")
}

// engineOptions 配置转换为引擎参数
func engineOptions(cfg *config.Config) engine.Options {
	return engine.Options{
		LocalUserID:      cfg.App.LocalUserID,
		LocalUserName:    cfg.App.LocalUserName,
		TypingTimeout:    cfg.Sync.TypingTimeout,
		Trash:            expiry.Policy{Window: cfg.Sync.TrashWindow, SoonDays: cfg.Sync.ExpiringSoonDays},
		PendingTTL:       cfg.Sync.PendingTTL,
		PageSize:         cfg.Sync.PageSize,
		MaxNotifications: cfg.Sync.MaxNotifications,
		SendAttempts:     cfg.Sync.SendAttempts,
		SendRetryDelay:   cfg.Sync.SendRetryDelay,
		RequestTimeout:   cfg.NATS.RequestTimeout,
	}
}

// parseLevel 解析日志级别
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// connectDatabase 连接 PostgreSQL
func connectDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 10 * time.Minute

	return pgxpool.NewWithConfig(ctx, poolConfig)
}
