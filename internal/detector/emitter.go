package detector

import (
	"context"
	"fmt"
	"time"

	"teddy-monitor/internal/classifier"
	"teddy-monitor/internal/metrics"
	"teddy-monitor/internal/models"
	"teddy-monitor/internal/notifier"
	"teddy-monitor/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AlertEmitter 报警发射器接口（单元测试中可替换）
type AlertEmitter interface {
	Emit(ctx context.Context, baby models.Baby, band classifier.Band, value float64) (*models.Notification, error)
}

// Emitter 报警发射器
// 每次分级变化：先把通知记录写入日志仓库，再交给投递端推送。
// 两步相互独立，投递失败不重试也不回滚日志（宁可漏推一次，不可重复报警）
type Emitter struct {
	notifications *repository.NotificationRepository
	sink          notifier.Sink
	logger        *zap.Logger
}

// NewEmitter 创建报警发射器
func NewEmitter(notifications *repository.NotificationRepository, sink notifier.Sink, logger *zap.Logger) *Emitter {
	return &Emitter{
		notifications: notifications,
		sink:          sink,
		logger:        logger,
	}
}

// Emit 构建并发出一条分级变化报警
func (e *Emitter) Emit(ctx context.Context, baby models.Baby, band classifier.Band, value float64) (*models.Notification, error) {
	notification := models.Notification{
		ID:        uuid.New().String(),
		BabyID:    baby.ID,
		BabyName:  baby.Name,
		Band:      band,
		Value:     value,
		OwnerID:   baby.OwnerID,
		CreatedAt: time.Now(),
	}

	if err := e.notifications.Prepend(ctx, notification); err != nil {
		return nil, fmt.Errorf("failed to persist notification: %w", err)
	}

	title := fmt.Sprintf("%s - %s", baby.Name, band.String())
	body := fmt.Sprintf("Current temperature %.1f°C", value)
	if err := e.sink.Deliver(ctx, title, body); err != nil {
		// 投递失败只记日志：记录已持久化，重试会产生重复推送
		metrics.DeliveryErrorsTotal.Inc()
		e.logger.Error("Failed to deliver notification",
			zap.String("baby_id", baby.ID),
			zap.String("band", band.String()),
			zap.Error(err),
		)
	}

	metrics.AlertsTotal.WithLabelValues(band.String()).Inc()
	e.logger.Info("Emitted band transition alert",
		zap.String("baby_id", baby.ID),
		zap.String("baby_name", baby.Name),
		zap.String("band", band.String()),
		zap.Float64("value", value),
	)

	return &notification, nil
}
