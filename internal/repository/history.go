package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"teddy-monitor/internal/models"
	"teddy-monitor/internal/store"

	"go.uber.org/zap"
)

// HistoryRepository 体温历史仓库
// 每个对象一条按时间升序的追加序列，长度达到上限后先进先出淘汰
type HistoryRepository struct {
	kv         store.KVStore
	keyPrefix  string
	maxEntries int
	logger     *zap.Logger

	// 同一对象的读改写串行化；不同对象互不阻塞
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewHistoryRepository 创建体温历史仓库
func NewHistoryRepository(kv store.KVStore, keyPrefix string, maxEntries int, logger *zap.Logger) *HistoryRepository {
	return &HistoryRepository{
		kv:         kv,
		keyPrefix:  keyPrefix,
		maxEntries: maxEntries,
		logger:     logger,
		locks:      make(map[string]*sync.Mutex),
	}
}

func (r *HistoryRepository) key(babyID string) string {
	return r.keyPrefix + babyID
}

func (r *HistoryRepository) lock(babyID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[babyID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[babyID] = l
	}
	return l
}

// Append 追加一条历史记录，超过上限时淘汰最旧的记录
func (r *HistoryRepository) Append(ctx context.Context, entry models.HistoryEntry) error {
	l := r.lock(entry.BabyID)
	l.Lock()
	defer l.Unlock()

	entries, err := r.load(ctx, entry.BabyID)
	if err != nil {
		return err
	}

	entries = append(entries, entry)
	if len(entries) > r.maxEntries {
		entries = entries[len(entries)-r.maxEntries:]
	}

	jsonData, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}
	if err := r.kv.Set(ctx, r.key(entry.BabyID), string(jsonData), 0); err != nil {
		return fmt.Errorf("failed to set history: %w", err)
	}

	return nil
}

// List 按 observed_at 升序返回历史记录
// since 非零时只返回该时刻之后的记录（用于展示端的时间窗口）
func (r *HistoryRepository) List(ctx context.Context, babyID string, since time.Time) ([]models.HistoryEntry, error) {
	entries, err := r.load(ctx, babyID)
	if err != nil {
		return nil, err
	}
	if since.IsZero() {
		return entries, nil
	}

	cutoff := since.UnixMilli()
	filtered := make([]models.HistoryEntry, 0, len(entries))
	for _, e := range entries {
		if e.ObservedAt >= cutoff {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Clear 删除对象的全部历史记录（幂等）
func (r *HistoryRepository) Clear(ctx context.Context, babyID string) error {
	l := r.lock(babyID)
	l.Lock()
	defer l.Unlock()

	if err := r.kv.Del(ctx, r.key(babyID)); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	r.logger.Info("Cleared temperature history",
		zap.String("baby_id", babyID),
	)
	return nil
}

func (r *HistoryRepository) load(ctx context.Context, babyID string) ([]models.HistoryEntry, error) {
	val, err := r.kv.Get(ctx, r.key(babyID))
	if err != nil {
		if err == store.ErrCacheMiss {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history: %w", err)
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal([]byte(val), &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal history: %w", err)
	}
	return entries, nil
}
