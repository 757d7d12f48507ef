package driver

import (
	"context"
	"sync"
	"time"

	"teddy-monitor/internal/feed"
	"teddy-monitor/internal/metrics"
	"teddy-monitor/internal/models"

	"go.uber.org/zap"
)

// Observer 观测入口（由 detector.Detector 实现，测试中可替换）
type Observer interface {
	Observe(ctx context.Context, baby models.Baby, reading models.Reading) models.TransitionOutcome
}

// subscription 单个对象的订阅状态机：存在即 Subscribed(deviceID)，不存在即 Unsubscribed
type subscription struct {
	mu          sync.Mutex
	baby        models.Baby
	deviceID    string
	unsubscribe feed.Unsubscribe
	closed      bool
}

// Foreground 前台扇入驱动
// 维护 {baby_id → 订阅} 注册表，在每次目录快照变化时做一次整体调和：
// 期望订阅集合（目录里绑定了设备的对象）对齐实际订阅集合（存活的句柄）
type Foreground struct {
	feed     feed.Feed
	observer Observer
	logger   *zap.Logger

	mu   sync.Mutex
	subs map[string]*subscription
}

// NewForeground 创建前台驱动
func NewForeground(f feed.Feed, observer Observer, logger *zap.Logger) *Foreground {
	return &Foreground{
		feed:     f,
		observer: observer,
		logger:   logger,
		subs:     make(map[string]*subscription),
	}
}

// Apply 用一份目录快照调和订阅集合
// 对象消失或设备解绑 → 关闭订阅；设备改绑 → 先关旧再开新；新对象 → 开订阅。
// 订阅失败只记日志，下一次快照刷新时重试
func (d *Foreground) Apply(ctx context.Context, babies []models.Baby) {
	d.mu.Lock()
	defer d.mu.Unlock()

	desired := make(map[string]models.Baby, len(babies))
	for _, baby := range babies {
		desired[baby.ID] = baby
	}

	// 第一遍：关闭不再需要的订阅（对象删除、设备解绑、设备改绑）
	for babyID, sub := range d.subs {
		baby, ok := desired[babyID]
		if ok && baby.HasDevice() && baby.DeviceID == sub.deviceID {
			// 订阅仍然有效，刷新对象属性（改名等）供回调使用
			sub.mu.Lock()
			sub.baby = baby
			sub.mu.Unlock()
			continue
		}
		d.closeSubscription(babyID, sub)
	}

	// 第二遍：为绑定了设备但尚未订阅的对象开订阅
	for babyID, baby := range desired {
		if !baby.HasDevice() {
			continue
		}
		if _, ok := d.subs[babyID]; ok {
			continue
		}
		d.openSubscription(ctx, baby)
	}

	metrics.SubscriptionsActive.Set(float64(len(d.subs)))
}

// Close 关闭全部订阅（服务停机）
func (d *Foreground) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for babyID, sub := range d.subs {
		d.closeSubscription(babyID, sub)
	}
	metrics.SubscriptionsActive.Set(0)
}

// openSubscription 调用方需持有 d.mu
func (d *Foreground) openSubscription(ctx context.Context, baby models.Baby) {
	sub := &subscription{
		baby:     baby,
		deviceID: baby.DeviceID,
	}

	handler := func(value *float64) {
		// 持锁投递：closeSubscription 等待在途回调结束，返回后不再有观测落地；
		// closed 检查挡住取消订阅后迟到的回调，防止已删除对象的状态被复活
		sub.mu.Lock()
		defer sub.mu.Unlock()
		if sub.closed {
			return
		}

		reading := models.Reading{
			BabyID:     sub.baby.ID,
			Value:      value,
			ObservedAt: time.Now(),
		}
		d.observer.Observe(ctx, sub.baby, reading)
	}

	unsubscribe, err := d.feed.Subscribe(baby.DeviceID, handler)
	if err != nil {
		metrics.FeedErrorsTotal.WithLabelValues("foreground").Inc()
		d.logger.Error("Failed to subscribe to device feed",
			zap.String("baby_id", baby.ID),
			zap.String("device_id", baby.DeviceID),
			zap.Error(err),
		)
		return
	}

	sub.unsubscribe = unsubscribe
	d.subs[baby.ID] = sub

	d.logger.Info("Subscribed to device feed",
		zap.String("baby_id", baby.ID),
		zap.String("device_id", baby.DeviceID),
	)
}

// closeSubscription 调用方需持有 d.mu
func (d *Foreground) closeSubscription(babyID string, sub *subscription) {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()

	if err := sub.unsubscribe(); err != nil {
		d.logger.Warn("Failed to unsubscribe from device feed",
			zap.String("baby_id", babyID),
			zap.String("device_id", sub.deviceID),
			zap.Error(err),
		)
	}
	delete(d.subs, babyID)

	d.logger.Info("Unsubscribed from device feed",
		zap.String("baby_id", babyID),
		zap.String("device_id", sub.deviceID),
	)
}
