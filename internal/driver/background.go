package driver

import (
	"context"
	"fmt"
	"time"

	"teddy-monitor/internal/classifier"
	"teddy-monitor/internal/detector"
	"teddy-monitor/internal/feed"
	"teddy-monitor/internal/metrics"
	"teddy-monitor/internal/models"
	"teddy-monitor/internal/repository"
	"teddy-monitor/internal/store"

	"go.uber.org/zap"
)

// Outcome 单次后台轮询的结果，外部调度器据此调整退避策略
type Outcome string

const (
	OutcomeNewData Outcome = "new_data" // 至少发出一条报警或写入一条历史
	OutcomeNoData  Outcome = "no_data"  // 正常完成但没有新数据
	OutcomeFailed  Outcome = "failed"   // 未处理的 I/O 错误，持久状态未被改写
)

// Directory 监护对象目录（repository.BabyRepository 实现）
type Directory interface {
	ListBabies(ctx context.Context, ownerID string) ([]models.Baby, error)
}

// DedupStore 去重状态的整体加载 + 增量回存（repository.DedupRepository 实现）
type DedupStore interface {
	LoadSnapshot(ctx context.Context) (map[string]classifier.Band, error)
	ApplyChanges(ctx context.Context, changes, baseline map[string]classifier.Band) error
}

// Background 后台轮询驱动
// 由外部调度器按粗粒度间隔调用，每次调用都可能在全新进程里执行：
// 去重状态必须在调用开始时显式加载、结束时把本轮观测到的键增量回存，
// 绝不依赖内存残留
type Background struct {
	directory   Directory
	ownerID     string
	feed        feed.Feed
	history     detector.HistorySink
	dedup       DedupStore
	emitter     detector.AlertEmitter
	kv          store.KVStore
	lockKey     string
	lockTTL     time.Duration
	readTimeout time.Duration
	logger      *zap.Logger
}

// NewBackground 创建后台轮询驱动
func NewBackground(
	directory Directory,
	ownerID string,
	f feed.Feed,
	history detector.HistorySink,
	dedup DedupStore,
	emitter detector.AlertEmitter,
	kv store.KVStore,
	lockKey string,
	lockTTL time.Duration,
	readTimeout time.Duration,
	logger *zap.Logger,
) *Background {
	return &Background{
		directory:   directory,
		ownerID:     ownerID,
		feed:        f,
		history:     history,
		dedup:       dedup,
		emitter:     emitter,
		kv:          kv,
		lockKey:     lockKey,
		lockTTL:     lockTTL,
		readTimeout: readTimeout,
		logger:      logger,
	}
}

// Run 执行一次轮询
// 调度器保证同一时刻最多一次调用在途；Redis NX 锁是该保证失效时的兜底
func (d *Background) Run(ctx context.Context) (Outcome, error) {
	acquired, err := d.kv.SetNX(ctx, d.lockKey, "1", d.lockTTL)
	if err != nil {
		return d.done(OutcomeFailed, fmt.Errorf("failed to acquire poll lock: %w", err))
	}
	if !acquired {
		d.logger.Warn("Previous poll invocation still holds the lock, skipping")
		return d.done(OutcomeNoData, nil)
	}
	defer func() {
		if err := d.kv.Del(context.Background(), d.lockKey); err != nil {
			d.logger.Error("Failed to release poll lock", zap.Error(err))
		}
	}()

	babies, err := d.directory.ListBabies(ctx, d.ownerID)
	if err != nil {
		return d.done(OutcomeFailed, fmt.Errorf("failed to list babies: %w", err))
	}

	// 加载失败时直接返回 failed，不改写任何持久状态（fail-closed）
	baseline, err := d.dedup.LoadSnapshot(ctx)
	if err != nil {
		return d.done(OutcomeFailed, fmt.Errorf("failed to load dedup state: %w", err))
	}
	// 工作副本给快照，基线留作回存时的并发写校验
	working := make(map[string]classifier.Band, len(baseline))
	for babyID, band := range baseline {
		working[babyID] = band
	}
	snapshot := repository.NewDedupSnapshot(working)
	det := detector.NewDetector(snapshot, d.history, d.emitter, "background", d.logger)

	alerts := 0
	histories := 0
	for _, baby := range babies {
		if !baby.HasDevice() {
			continue
		}

		readCtx, cancel := context.WithTimeout(ctx, d.readTimeout)
		value, err := d.feed.ReadOnce(readCtx, baby.DeviceID)
		cancel()
		if err != nil {
			// 单个设备读取失败只跳过该对象，本轮继续
			metrics.FeedErrorsTotal.WithLabelValues("background").Inc()
			d.logger.Warn("Failed to read device, skipping",
				zap.String("baby_id", baby.ID),
				zap.String("device_id", baby.DeviceID),
				zap.Error(err),
			)
			continue
		}
		if value == nil {
			// 设备没有当前值，不产生观测
			continue
		}

		outcome := det.Observe(ctx, baby, models.Reading{
			BabyID:     baby.ID,
			Value:      value,
			ObservedAt: time.Now(),
		})
		if outcome.Alerted {
			alerts++
		}
		if outcome.HistorySaved {
			histories++
		}
	}

	// 只提交本轮观测过的键：轮询窗口内前台写入的其他键不受影响
	if err := d.dedup.ApplyChanges(ctx, snapshot.Changes(), baseline); err != nil {
		return d.done(OutcomeFailed, fmt.Errorf("failed to save dedup state: %w", err))
	}

	d.logger.Info("Background poll finished",
		zap.Int("babies", len(babies)),
		zap.Int("alerts", alerts),
		zap.Int("history_entries", histories),
	)

	if alerts > 0 || histories > 0 {
		return d.done(OutcomeNewData, nil)
	}
	return d.done(OutcomeNoData, nil)
}

func (d *Background) done(outcome Outcome, err error) (Outcome, error) {
	metrics.PollRunsTotal.WithLabelValues(string(outcome)).Inc()
	return outcome, err
}
