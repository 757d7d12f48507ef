package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Sink 通知投递端（推送网关）
type Sink interface {
	Deliver(ctx context.Context, title, body string) error
}

// pushMessage 推送网关请求体
type pushMessage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// WebhookSink 基于 HTTP webhook 的投递实现
// 投递是 fire-and-forget：失败只记日志，不重试（同一分级变化重试会造成重复报警）
type WebhookSink struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewWebhookSink 创建 webhook 投递端
func NewWebhookSink(webhookURL string, timeout time.Duration, logger *zap.Logger) *WebhookSink {
	client := resty.New().
		SetBaseURL(webhookURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &WebhookSink{
		httpClient: client,
		logger:     logger,
	}
}

// Deliver 投递一条通知
func (s *WebhookSink) Deliver(ctx context.Context, title, body string) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(pushMessage{Title: title, Body: body}).
		Post("")
	if err != nil {
		return fmt.Errorf("failed to deliver notification: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("notification gateway returned status %d", resp.StatusCode())
	}

	s.logger.Debug("Delivered notification",
		zap.String("title", title),
	)
	return nil
}

// NopSink 空投递端（未配置网关时使用，通知仍写入日志仓库）
type NopSink struct{}

func (NopSink) Deliver(ctx context.Context, title, body string) error { return nil }
