package detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"teddy-monitor/internal/classifier"
	"teddy-monitor/internal/models"
	"teddy-monitor/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func floatPtr(v float64) *float64 {
	return &v
}

// fakeHistory 仅用于单元测试（内存历史，可模拟存储故障）
type fakeHistory struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	failing bool
}

func (f *fakeHistory) Append(ctx context.Context, entry models.HistoryEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("storage down")
	}
	f.entries = append(f.entries, entry)
	return nil
}

// fakeEmitter 记录报警调用
type fakeEmitter struct {
	mu      sync.Mutex
	emitted []models.Notification
}

func (f *fakeEmitter) Emit(ctx context.Context, baby models.Baby, band classifier.Band, value float64) (*models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	notification := models.Notification{
		ID:        uuid.New().String(),
		BabyID:    baby.ID,
		BabyName:  baby.Name,
		Band:      band,
		Value:     value,
		OwnerID:   baby.OwnerID,
		CreatedAt: time.Now(),
	}
	f.emitted = append(f.emitted, notification)
	return &notification, nil
}

func (f *fakeEmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.emitted)
}

func newTestDetector() (*Detector, *repository.DedupSnapshot, *fakeHistory, *fakeEmitter) {
	bands := repository.NewDedupSnapshot(nil)
	history := &fakeHistory{}
	emitter := &fakeEmitter{}
	det := NewDetector(bands, history, emitter, "foreground", zap.NewNop())
	return det, bands, history, emitter
}

func testBaby() models.Baby {
	return models.Baby{
		ID:       "baby-1",
		Name:     "Alya",
		OwnerID:  "owner-1",
		DeviceID: "device-1",
	}
}

func reading(value *float64) models.Reading {
	return models.Reading{
		BabyID:     "baby-1",
		Value:      value,
		ObservedAt: time.Now(),
	}
}

func TestDetector_FirstObservationNeverAlerts(t *testing.T) {
	det, bands, history, emitter := newTestDetector()
	ctx := context.Background()

	// 首次观测即高烧也不报警，只建立基线
	outcome := det.Observe(ctx, testBaby(), reading(floatPtr(40.2)))

	assert.False(t, outcome.Alerted)
	assert.Equal(t, classifier.BandHighFever, outcome.Band)
	assert.Equal(t, classifier.BandUndetermined, outcome.PrevBand)
	assert.Equal(t, 0, emitter.count())
	assert.Len(t, history.entries, 1)

	band, found, err := bands.GetBand(ctx, "baby-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, classifier.BandHighFever, band)
}

func TestDetector_StableBandNoRepeatAlerts(t *testing.T) {
	det, _, _, emitter := newTestDetector()
	ctx := context.Background()

	for _, v := range []float64{36.9, 36.8, 37.1, 37.5, 36.4} {
		outcome := det.Observe(ctx, testBaby(), reading(floatPtr(v)))
		assert.False(t, outcome.Alerted)
		assert.Equal(t, classifier.BandNormal, outcome.Band)
	}

	assert.Equal(t, 0, emitter.count())
}

func TestDetector_AlternatingBandsAlertPerTransition(t *testing.T) {
	det, _, _, emitter := newTestDetector()
	ctx := context.Background()

	// 基线 Normal，随后 Normal↔MildFever 交替 4 次变化 ⇒ 恰好 4 条报警
	det.Observe(ctx, testBaby(), reading(floatPtr(36.9)))

	values := []float64{37.8, 36.8, 37.9, 36.9}
	for _, v := range values {
		outcome := det.Observe(ctx, testBaby(), reading(floatPtr(v)))
		assert.True(t, outcome.Alerted, "value %.1f must alert", v)
	}

	assert.Equal(t, 4, emitter.count())
}

func TestDetector_UndeterminedTransitionsNeverAlert(t *testing.T) {
	det, _, history, emitter := newTestDetector()
	ctx := context.Background()

	det.Observe(ctx, testBaby(), reading(floatPtr(36.9)))

	// 传感器掉线：进入 Undetermined 不报警，也不写历史
	outcome := det.Observe(ctx, testBaby(), reading(nil))
	assert.False(t, outcome.Alerted)
	assert.Equal(t, classifier.BandUndetermined, outcome.Band)
	assert.False(t, outcome.HistorySaved)
	assert.Len(t, history.entries, 1)

	// 恢复读数：离开 Undetermined 同样不报警
	outcome = det.Observe(ctx, testBaby(), reading(floatPtr(36.8)))
	assert.False(t, outcome.Alerted)
	assert.Equal(t, classifier.BandNormal, outcome.Band)

	// 恢复后的真实分级变化正常报警
	outcome = det.Observe(ctx, testBaby(), reading(floatPtr(37.8)))
	assert.True(t, outcome.Alerted)
	assert.Equal(t, 1, emitter.count())
}

func TestDetector_HistoryFailureDoesNotBlockAlert(t *testing.T) {
	det, bands, history, emitter := newTestDetector()
	history.failing = true
	ctx := context.Background()

	det.Observe(ctx, testBaby(), reading(floatPtr(36.9)))
	outcome := det.Observe(ctx, testBaby(), reading(floatPtr(37.8)))

	// 历史写失败不影响报警和基线更新
	assert.False(t, outcome.HistorySaved)
	assert.True(t, outcome.Alerted)
	assert.Equal(t, 1, emitter.count())

	band, found, err := bands.GetBand(ctx, "baby-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, classifier.BandMildFever, band)
}

func TestDetector_IndependentSubjects(t *testing.T) {
	det, _, _, emitter := newTestDetector()
	ctx := context.Background()

	babyA := models.Baby{ID: "baby-a", Name: "A", OwnerID: "owner-1"}
	babyB := models.Baby{ID: "baby-b", Name: "B", OwnerID: "owner-1"}

	det.Observe(ctx, babyA, models.Reading{BabyID: babyA.ID, Value: floatPtr(36.9), ObservedAt: time.Now()})
	det.Observe(ctx, babyB, models.Reading{BabyID: babyB.ID, Value: floatPtr(37.8), ObservedAt: time.Now()})

	// A 升到 MildFever 报警，B 保持 MildFever 不报警
	outcomeA := det.Observe(ctx, babyA, models.Reading{BabyID: babyA.ID, Value: floatPtr(38.0), ObservedAt: time.Now()})
	outcomeB := det.Observe(ctx, babyB, models.Reading{BabyID: babyB.ID, Value: floatPtr(38.2), ObservedAt: time.Now()})

	assert.True(t, outcomeA.Alerted)
	assert.False(t, outcomeB.Alerted)
	assert.Equal(t, 1, emitter.count())
}
