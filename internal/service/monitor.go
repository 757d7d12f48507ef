package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"teddy-monitor/internal/config"
	"teddy-monitor/internal/detector"
	"teddy-monitor/internal/driver"
	"teddy-monitor/internal/feed"
	"teddy-monitor/internal/notifier"
	"teddy-monitor/internal/repository"
	"teddy-monitor/internal/store"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// MonitorService 体温监护服务（整合各层）
// 同时运行前台扇入驱动（目录快照调和 + 实时订阅）和后台轮询驱动（定时全量采样）
type MonitorService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	mqttFeed    *feed.MQTTFeed
	logger      *zap.Logger

	// 各层组件
	babyRepo         *repository.BabyRepository
	historyRepo      *repository.HistoryRepository
	dedupRepo        *repository.DedupRepository
	notificationRepo *repository.NotificationRepository
	foreground       *driver.Foreground
	background       *driver.Background

	metricsServer *http.Server
}

// NewMonitorService 创建监护服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	// 1. 连接数据库（监护对象目录）
	db, err := sql.Open("postgres", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis（历史/去重状态/通知日志）
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	kv := store.NewRedisKVStore(redisClient)

	// 3. 连接 MQTT（传感器实时数据）
	mqttFeed, err := feed.NewMQTTFeed(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mqtt feed: %w", err)
	}

	// 4. 创建 Repository 层
	babyRepo := repository.NewBabyRepository(db, logger)
	historyRepo := repository.NewHistoryRepository(kv, cfg.Monitor.HistoryKeyPrefix, cfg.Monitor.HistoryMaxEntries, logger)
	dedupRepo := repository.NewDedupRepository(kv, cfg.Monitor.PrevBandsKey, logger)
	notificationRepo := repository.NewNotificationRepository(kv, cfg.Monitor.NotificationsKey, logger)

	// 5. 创建投递端和报警发射器
	var sink notifier.Sink
	if cfg.Notify.WebhookURL != "" {
		sink = notifier.NewWebhookSink(cfg.Notify.WebhookURL, time.Duration(cfg.Notify.TimeoutSec)*time.Second, logger)
	} else {
		logger.Warn("No notification webhook configured, alerts will only be logged")
		sink = notifier.NopSink{}
	}
	emitter := detector.NewEmitter(notificationRepo, sink, logger)

	// 6. 创建检测器和两个驱动
	det := detector.NewDetector(dedupRepo, historyRepo, emitter, "foreground", logger)
	foreground := driver.NewForeground(mqttFeed, det, logger)

	pollInterval := time.Duration(cfg.Monitor.PollIntervalSec) * time.Second
	background := driver.NewBackground(
		babyRepo,
		cfg.Monitor.OwnerID,
		mqttFeed,
		historyRepo,
		dedupRepo,
		emitter,
		kv,
		cfg.Monitor.PollLockKey,
		pollInterval, // 锁 TTL 对齐轮询间隔，进程崩溃后锁自动过期
		time.Duration(cfg.Monitor.ReadTimeoutSec)*time.Second,
		logger,
	)

	return &MonitorService{
		config:           cfg,
		db:               db,
		redisClient:      redisClient,
		mqttFeed:         mqttFeed,
		logger:           logger,
		babyRepo:         babyRepo,
		historyRepo:      historyRepo,
		dedupRepo:        dedupRepo,
		notificationRepo: notificationRepo,
		foreground:       foreground,
		background:       background,
	}, nil
}

// Start 启动服务（阻塞直到 ctx 取消）
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting monitor service",
		zap.String("owner_id", s.config.Monitor.OwnerID),
		zap.Int("poll_interval_sec", s.config.Monitor.PollIntervalSec),
	)

	s.startMetricsServer()

	// 启动即做一次目录调和，不等第一个 tick
	s.refreshDirectory(ctx)

	directoryTicker := time.NewTicker(time.Duration(s.config.Monitor.DirectoryIntervalSec) * time.Second)
	defer directoryTicker.Stop()

	pollTicker := time.NewTicker(time.Duration(s.config.Monitor.PollIntervalSec) * time.Second)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.foreground.Close()
			return nil
		case <-directoryTicker.C:
			s.refreshDirectory(ctx)
		case <-pollTicker.C:
			outcome, err := s.background.Run(ctx)
			if err != nil {
				s.logger.Error("Background poll failed",
					zap.String("outcome", string(outcome)),
					zap.Error(err),
				)
				continue
			}
			s.logger.Debug("Background poll completed",
				zap.String("outcome", string(outcome)),
			)
		}
	}
}

// refreshDirectory 拉取目录快照并调和前台订阅
func (s *MonitorService) refreshDirectory(ctx context.Context) {
	babies, err := s.babyRepo.ListBabies(ctx, s.config.Monitor.OwnerID)
	if err != nil {
		// 目录暂时不可用时保持现有订阅不动，下一个 tick 重试
		s.logger.Error("Failed to load baby directory", zap.Error(err))
		return
	}

	s.foreground.Apply(ctx, babies)

	activeIDs := make(map[string]struct{}, len(babies))
	for _, baby := range babies {
		activeIDs[baby.ID] = struct{}{}
	}
	if err := s.dedupRepo.Prune(ctx, activeIDs); err != nil {
		s.logger.Warn("Failed to prune dedup state", zap.Error(err))
	}
}

func (s *MonitorService) startMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	s.metricsServer = &http.Server{
		Addr:    s.config.Monitor.MetricsAddr,
		Handler: mux,
	}

	go func() {
		s.logger.Info("Metrics server listening",
			zap.String("addr", s.config.Monitor.MetricsAddr),
		)
		if err := s.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Metrics server error", zap.Error(err))
		}
	}()
}

// Stop 停止服务并释放连接
func (s *MonitorService) Stop() error {
	s.logger.Info("Stopping monitor service")

	if s.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shut down metrics server", zap.Error(err))
		}
	}

	s.mqttFeed.Close()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
	}
	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis", zap.Error(err))
	}

	return nil
}

// buildDSN 构建数据库连接字符串
func buildDSN(cfg *config.Config) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.SSLMode,
	)
}
