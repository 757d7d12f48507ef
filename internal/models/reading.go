package models

import (
	"time"

	"teddy-monitor/internal/classifier"
)

// Reading 单次体温观测
// Value 为 nil 表示传感器未上报（分级为 Undetermined）
type Reading struct {
	BabyID     string
	Value      *float64
	ObservedAt time.Time
}

// HistoryEntry 持久化的体温历史记录（每对象一条追加序列，上限见配置）
type HistoryEntry struct {
	BabyID     string          `json:"baby_id"`
	Value      float64         `json:"value"`
	Band       classifier.Band `json:"band"`
	ObservedAt int64           `json:"observed_at"` // Unix 毫秒
}

// TransitionOutcome 一次观测的处理结果
type TransitionOutcome struct {
	Band         classifier.Band
	PrevBand     classifier.Band
	Alerted      bool
	HistorySaved bool
}
