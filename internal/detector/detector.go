package detector

import (
	"context"
	"sync"
	"time"

	"teddy-monitor/internal/classifier"
	"teddy-monitor/internal/metrics"
	"teddy-monitor/internal/models"

	"go.uber.org/zap"
)

// BandStore 去重状态访问接口
// 前台驱动用 Redis 仓库，后台驱动用一次调用内的内存快照
type BandStore interface {
	GetBand(ctx context.Context, babyID string) (classifier.Band, bool, error)
	SetBand(ctx context.Context, babyID string, band classifier.Band) error
}

// HistorySink 历史写入接口
type HistorySink interface {
	Append(ctx context.Context, entry models.HistoryEntry) error
}

// Detector 分级变化检测器（两种驱动共用的业务单元）
// 处理一次 (对象, 读数) 观测：分级 → 取上次分级 → 写历史 → 必要时报警 → 记录分级
type Detector struct {
	bands   BandStore
	history HistorySink
	emitter AlertEmitter
	driver  string // 指标标签：foreground / background
	logger  *zap.Logger

	// 同一对象的观测串行化（步骤 2-5 不可交错，否则变化会被重复计数或丢失）
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDetector 创建检测器
func NewDetector(bands BandStore, history HistorySink, emitter AlertEmitter, driver string, logger *zap.Logger) *Detector {
	return &Detector{
		bands:   bands,
		history: history,
		emitter: emitter,
		driver:  driver,
		logger:  logger,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (d *Detector) lock(babyID string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.locks[babyID]
	if !ok {
		l = &sync.Mutex{}
		d.locks[babyID] = l
	}
	return l
}

// Observe 处理一次观测，返回分级结果和是否报警
//
// 报警条件：分级发生变化，且新旧分级都是确定值。
// 首次观测（无去重记录）只建立基线；传感器短暂掉线（Undetermined）进出都不报警。
// 历史写入失败不阻断报警和状态更新（宁可少一条历史，不可错过或重复一次报警）
func (d *Detector) Observe(ctx context.Context, baby models.Baby, reading models.Reading) models.TransitionOutcome {
	l := d.lock(baby.ID)
	l.Lock()
	defer l.Unlock()

	start := time.Now()
	defer func() {
		metrics.ObserveDuration.Observe(time.Since(start).Seconds())
	}()
	metrics.ObservationsTotal.WithLabelValues(d.driver).Inc()

	band := classifier.Classify(reading.Value)

	prevBand, found, err := d.bands.GetBand(ctx, baby.ID)
	if err != nil {
		// 读不到上次分级时按首次观测处理：可能漏掉一次变化，但不会重复报警
		d.logger.Warn("Failed to load previous band, treating as first observation",
			zap.String("baby_id", baby.ID),
			zap.Error(err),
		)
		found = false
	}
	if !found {
		prevBand = classifier.BandUndetermined
	}

	outcome := models.TransitionOutcome{
		Band:     band,
		PrevBand: prevBand,
	}

	if band != classifier.BandUndetermined {
		entry := models.HistoryEntry{
			BabyID:     baby.ID,
			Value:      *reading.Value,
			Band:       band,
			ObservedAt: reading.ObservedAt.UnixMilli(),
		}
		if err := d.history.Append(ctx, entry); err != nil {
			d.logger.Error("Failed to append history entry",
				zap.String("baby_id", baby.ID),
				zap.Error(err),
			)
		} else {
			outcome.HistorySaved = true
		}
	}

	if band != prevBand &&
		prevBand != classifier.BandUndetermined &&
		band != classifier.BandUndetermined {
		if _, err := d.emitter.Emit(ctx, baby, band, *reading.Value); err != nil {
			d.logger.Error("Failed to emit alert",
				zap.String("baby_id", baby.ID),
				zap.String("band", band.String()),
				zap.Error(err),
			)
		} else {
			outcome.Alerted = true
		}
	}

	// 无论是否报警都记录当前分级，作为下次观测的比较基线
	if err := d.bands.SetBand(ctx, baby.ID, band); err != nil {
		d.logger.Error("Failed to store current band",
			zap.String("baby_id", baby.ID),
			zap.String("band", band.String()),
			zap.Error(err),
		)
	}

	return outcome
}
