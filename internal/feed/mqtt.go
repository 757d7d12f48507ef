package feed

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"teddy-monitor/internal/config"
)

// MQTTFeed 基于 MQTT 的实时数据源
// 每个传感器把当前体温以 retained 消息发布到 <device_id>/temperature，
// 订阅即收到最新值，后续变化持续推送。
// 两条会话：live 会话承载常驻订阅，reader 会话专供一次性读取。
// paho 的路由表按 topic filter 每客户端一条，ReadOnce 的订阅/退订若复用
// live 会话会顶掉并删除同主题的常驻路由
type MQTTFeed struct {
	client     mqtt.Client
	readClient mqtt.Client
	logger     *zap.Logger
}

// NewMQTTFeed 连接 MQTT broker 并创建数据源
func NewMQTTFeed(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTFeed, error) {
	client, err := connect(cfg, cfg.ClientID)
	if err != nil {
		return nil, err
	}
	readClient, err := connect(cfg, cfg.ClientID+"-reader")
	if err != nil {
		client.Disconnect(250)
		return nil, err
	}

	return &MQTTFeed{
		client:     client,
		readClient: readClient,
		logger:     logger,
	}, nil
}

func connect(cfg *config.MQTTConfig, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(clientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return client, nil
}

func topicFor(deviceID string) string {
	return deviceID + "/temperature"
}

// Subscribe 订阅设备实时体温
func (f *MQTTFeed) Subscribe(deviceID string, handler ValueHandler) (Unsubscribe, error) {
	topic := topicFor(deviceID)

	callback := func(client mqtt.Client, msg mqtt.Message) {
		handler(f.parsePayload(deviceID, msg.Payload()))
	}
	if token := f.client.Subscribe(topic, 1, callback); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}

	unsubscribe := func() error {
		token := f.client.Unsubscribe(topic)
		token.Wait()
		if token.Error() != nil {
			return fmt.Errorf("failed to unsubscribe from topic %s: %w", topic, token.Error())
		}
		return nil
	}
	return unsubscribe, nil
}

// ReadOnce 同步读取设备当前体温（走 reader 会话，不触碰常驻订阅）
// 依赖 retained 消息：订阅后第一条消息即当前值；超时视为无数据
func (f *MQTTFeed) ReadOnce(ctx context.Context, deviceID string) (*float64, error) {
	topic := topicFor(deviceID)
	values := make(chan *float64, 1)

	callback := func(client mqtt.Client, msg mqtt.Message) {
		select {
		case values <- f.parsePayload(deviceID, msg.Payload()):
		default:
		}
	}
	if token := f.readClient.Subscribe(topic, 1, callback); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to subscribe to topic %s: %w", topic, token.Error())
	}
	defer func() {
		token := f.readClient.Unsubscribe(topic)
		token.Wait()
		if token.Error() != nil {
			f.logger.Warn("Failed to unsubscribe after read",
				zap.String("topic", topic),
				zap.Error(token.Error()),
			)
		}
	}()

	select {
	case value := <-values:
		return value, nil
	case <-ctx.Done():
		// 设备没有 retained 值，当作无数据
		return nil, nil
	}
}

// Close 断开 MQTT 连接
func (f *MQTTFeed) Close() {
	f.client.Disconnect(250) // 250ms等待时间
	f.readClient.Disconnect(250)
}

func (f *MQTTFeed) parsePayload(deviceID string, payload []byte) *float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		f.logger.Warn("Invalid temperature payload",
			zap.String("device_id", deviceID),
			zap.String("payload", string(payload)),
		)
		return nil
	}
	return &value
}
