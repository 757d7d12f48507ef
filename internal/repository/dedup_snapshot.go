package repository

import (
	"context"
	"sync"

	"teddy-monitor/internal/classifier"
)

// DedupSnapshot 内存中的去重状态快照
// 后台轮询的一次调用内使用：调用开始时从 DedupRepository 加载，结束时只把
// 本次写过的键作为增量提交回去，过程中不触碰持久层（进程间无内存连续性，
// 持久层是唯一事实来源）
type DedupSnapshot struct {
	mu    sync.Mutex
	bands map[string]classifier.Band
	dirty map[string]struct{}
}

// NewDedupSnapshot 基于已加载的映射创建快照
func NewDedupSnapshot(bands map[string]classifier.Band) *DedupSnapshot {
	if bands == nil {
		bands = make(map[string]classifier.Band)
	}
	return &DedupSnapshot{
		bands: bands,
		dirty: make(map[string]struct{}),
	}
}

// GetBand 获取对象上次分级
func (s *DedupSnapshot) GetBand(_ context.Context, babyID string) (classifier.Band, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	band, ok := s.bands[babyID]
	return band, ok, nil
}

// SetBand 更新对象分级（只改内存，并标记为待提交的增量）
func (s *DedupSnapshot) SetBand(_ context.Context, babyID string, band classifier.Band) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bands[babyID] = band
	s.dirty[babyID] = struct{}{}
	return nil
}

// Changes 返回本次调用内写过的条目副本（回存只提交这些增量）
func (s *DedupSnapshot) Changes() map[string]classifier.Band {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]classifier.Band, len(s.dirty))
	for babyID := range s.dirty {
		out[babyID] = s.bands[babyID]
	}
	return out
}
