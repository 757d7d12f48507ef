package repository

import (
	"context"
	"testing"
	"time"

	"teddy-monitor/internal/classifier"
	"teddy-monitor/internal/models"
	"teddy-monitor/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestKV(t *testing.T) store.KVStore {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	return store.NewRedisKVStore(redisClient)
}

func historyEntry(babyID string, value float64, observedAt time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		BabyID:     babyID,
		Value:      value,
		Band:       classifier.Classify(&value),
		ObservedAt: observedAt.UnixMilli(),
	}
}

func TestHistoryRepository_AppendAndList(t *testing.T) {
	kv := setupTestKV(t)
	repo := NewHistoryRepository(kv, "teddy:history:", 1000, zap.NewNop())
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, repo.Append(ctx, historyEntry("baby-1", 36.9, base)))
	require.NoError(t, repo.Append(ctx, historyEntry("baby-1", 37.8, base.Add(time.Minute))))
	require.NoError(t, repo.Append(ctx, historyEntry("baby-2", 38.0, base)))

	entries, err := repo.List(ctx, "baby-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// 按观测时间升序
	assert.Equal(t, 36.9, entries[0].Value)
	assert.Equal(t, 37.8, entries[1].Value)
	assert.Equal(t, classifier.BandNormal, entries[0].Band)
	assert.Equal(t, classifier.BandMildFever, entries[1].Band)

	// 不同对象互不影响
	other, err := repo.List(ctx, "baby-2", time.Time{})
	require.NoError(t, err)
	require.Len(t, other, 1)
}

func TestHistoryRepository_MaxEntriesEviction(t *testing.T) {
	kv := setupTestKV(t)
	repo := NewHistoryRepository(kv, "teddy:history:", 5, zap.NewNop())
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 8; i++ {
		value := 36.0 + float64(i)*0.1
		require.NoError(t, repo.Append(ctx, historyEntry("baby-1", value, base.Add(time.Duration(i)*time.Minute))))
	}

	entries, err := repo.List(ctx, "baby-1", time.Time{})
	require.NoError(t, err)
	require.Len(t, entries, 5)

	// 最旧的 3 条被先进先出淘汰，保留第 4-8 条
	assert.InDelta(t, 36.3, entries[0].Value, 1e-9)
	assert.InDelta(t, 36.7, entries[4].Value, 1e-9)
}

func TestHistoryRepository_ListSince(t *testing.T) {
	kv := setupTestKV(t)
	repo := NewHistoryRepository(kv, "teddy:history:", 1000, zap.NewNop())
	ctx := context.Background()

	base := time.Now()
	require.NoError(t, repo.Append(ctx, historyEntry("baby-1", 36.5, base.Add(-2*time.Hour))))
	require.NoError(t, repo.Append(ctx, historyEntry("baby-1", 36.8, base.Add(-30*time.Minute))))
	require.NoError(t, repo.Append(ctx, historyEntry("baby-1", 37.0, base)))

	entries, err := repo.List(ctx, "baby-1", base.Add(-time.Hour))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 36.8, entries[0].Value)
}

func TestHistoryRepository_ListUnknownBaby(t *testing.T) {
	kv := setupTestKV(t)
	repo := NewHistoryRepository(kv, "teddy:history:", 1000, zap.NewNop())

	entries, err := repo.List(context.Background(), "baby-unknown", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistoryRepository_ClearIdempotent(t *testing.T) {
	kv := setupTestKV(t)
	repo := NewHistoryRepository(kv, "teddy:history:", 1000, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, repo.Append(ctx, historyEntry("baby-1", 36.9, time.Now())))

	require.NoError(t, repo.Clear(ctx, "baby-1"))
	entries, err := repo.List(ctx, "baby-1", time.Time{})
	require.NoError(t, err)
	assert.Empty(t, entries)

	// 重复清空不报错
	require.NoError(t, repo.Clear(ctx, "baby-1"))
}
