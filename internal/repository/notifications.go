package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"teddy-monitor/internal/models"
	"teddy-monitor/internal/store"

	"go.uber.org/zap"
)

// NotificationRepository 通知日志仓库（最新在前）
// 日志本身不设上限，轮转交给外部运维；本服务只负责每次分级变化追加一条
type NotificationRepository struct {
	kv     store.KVStore
	key    string
	logger *zap.Logger

	mu sync.Mutex
}

// NewNotificationRepository 创建通知日志仓库
func NewNotificationRepository(kv store.KVStore, key string, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{
		kv:     kv,
		key:    key,
		logger: logger,
	}
}

// Prepend 将通知插入日志头部（展示端最新在前）
func (r *NotificationRepository) Prepend(ctx context.Context, notification models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.List(ctx)
	if err != nil {
		return err
	}

	updated := make([]models.Notification, 0, len(existing)+1)
	updated = append(updated, notification)
	updated = append(updated, existing...)

	jsonData, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("failed to marshal notifications: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, string(jsonData), 0); err != nil {
		return fmt.Errorf("failed to set notifications: %w", err)
	}
	return nil
}

// List 返回通知日志，最新在前
func (r *NotificationRepository) List(ctx context.Context) ([]models.Notification, error) {
	val, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if err == store.ErrCacheMiss {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get notifications: %w", err)
	}

	var notifications []models.Notification
	if err := json.Unmarshal([]byte(val), &notifications); err != nil {
		return nil, fmt.Errorf("failed to unmarshal notifications: %w", err)
	}
	return notifications, nil
}

// Clear 清空通知日志（幂等，用户在通知页手动触发）
func (r *NotificationRepository) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.kv.Del(ctx, r.key); err != nil {
		return fmt.Errorf("failed to clear notifications: %w", err)
	}
	return nil
}
