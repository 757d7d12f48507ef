package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"teddy-monitor/internal/classifier"
	"teddy-monitor/internal/store"

	"go.uber.org/zap"
)

// DedupRepository 分级去重状态仓库
// 整张 {baby_id → 上次分级} 映射作为单键 JSON 存储：后台任务可能在全新进程里
// 运行，必须能一次性加载、改写、回存；单键写入天然原子
type DedupRepository struct {
	kv     store.KVStore
	key    string
	logger *zap.Logger

	mu sync.Mutex // 串行化整键读改写
}

// NewDedupRepository 创建去重状态仓库
func NewDedupRepository(kv store.KVStore, key string, logger *zap.Logger) *DedupRepository {
	return &DedupRepository{
		kv:     kv,
		key:    key,
		logger: logger,
	}
}

// LoadSnapshot 加载完整去重状态快照，键不存在时返回空映射
func (r *DedupRepository) LoadSnapshot(ctx context.Context) (map[string]classifier.Band, error) {
	val, err := r.kv.Get(ctx, r.key)
	if err != nil {
		if err == store.ErrCacheMiss {
			return make(map[string]classifier.Band), nil
		}
		return nil, fmt.Errorf("failed to get dedup state: %w", err)
	}

	bands := make(map[string]classifier.Band)
	if err := json.Unmarshal([]byte(val), &bands); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dedup state: %w", err)
	}
	return bands, nil
}

// SaveSnapshot 整体回存去重状态
func (r *DedupRepository) SaveSnapshot(ctx context.Context, bands map[string]classifier.Band) error {
	jsonData, err := json.Marshal(bands)
	if err != nil {
		return fmt.Errorf("failed to marshal dedup state: %w", err)
	}
	if err := r.kv.Set(ctx, r.key, string(jsonData), 0); err != nil {
		return fmt.Errorf("failed to set dedup state: %w", err)
	}
	return nil
}

// GetBand 获取对象上次分级，第二个返回值表示是否存在记录
func (r *DedupRepository) GetBand(ctx context.Context, babyID string) (classifier.Band, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bands, err := r.LoadSnapshot(ctx)
	if err != nil {
		return classifier.BandUndetermined, false, err
	}
	band, ok := bands[babyID]
	return band, ok, nil
}

// SetBand 记录对象的当前分级（last-writer-wins）
func (r *DedupRepository) SetBand(ctx context.Context, babyID string, band classifier.Band) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bands, err := r.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	bands[babyID] = band
	return r.SaveSnapshot(ctx, bands)
}

// ApplyChanges 按基线校验逐键合并增量
// 后台轮询期间前台可能已为同一对象持久化了更新鲜的分级：持久值与加载基线
// 不一致的键放弃回写（实时观测优先），其余键在一次读改写内提交
func (r *DedupRepository) ApplyChanges(ctx context.Context, changes, baseline map[string]classifier.Band) error {
	if len(changes) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bands, err := r.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	skipped := 0
	for babyID, band := range changes {
		current, ok := bands[babyID]
		base, hadBase := baseline[babyID]
		if ok != hadBase || (ok && current != base) {
			skipped++
			continue
		}
		bands[babyID] = band
	}

	if err := r.SaveSnapshot(ctx, bands); err != nil {
		return err
	}
	if skipped > 0 {
		r.logger.Debug("Skipped dedup entries changed concurrently",
			zap.Int("count", skipped),
		)
	}
	return nil
}

// Prune 懒清理：删除不在现存对象集合里的陈旧条目
// 对象删除后残留的条目无害，只在目录快照刷新时顺带清理
func (r *DedupRepository) Prune(ctx context.Context, activeBabyIDs map[string]struct{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bands, err := r.LoadSnapshot(ctx)
	if err != nil {
		return err
	}

	pruned := 0
	for babyID := range bands {
		if _, ok := activeBabyIDs[babyID]; !ok {
			delete(bands, babyID)
			pruned++
		}
	}
	if pruned == 0 {
		return nil
	}

	if err := r.SaveSnapshot(ctx, bands); err != nil {
		return err
	}
	r.logger.Debug("Pruned stale dedup entries",
		zap.Int("count", pruned),
	)
	return nil
}
