package models

import (
	"time"

	"teddy-monitor/internal/classifier"
)

// Notification 分级变化报警记录（追加写入通知日志，最新在前）
type Notification struct {
	ID        string          `json:"notification_id"`
	BabyID    string          `json:"baby_id"`
	BabyName  string          `json:"baby_name"`
	Band      classifier.Band `json:"band"`
	Value     float64         `json:"value"`
	OwnerID   string          `json:"owner_id"`
	CreatedAt time.Time       `json:"created_at"`
}
