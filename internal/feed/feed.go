package feed

import "context"

// ValueHandler 实时读数回调
// value 为 nil 表示该设备上报了无法解析的数据（分级为 Undetermined）
type ValueHandler func(value *float64)

// Unsubscribe 取消订阅；返回后不再有该设备的回调被触发
type Unsubscribe func() error

// Feed 传感器实时数据源
// 前台驱动按设备订阅推送，后台驱动每轮对每个设备做一次同步读取
type Feed interface {
	Subscribe(deviceID string, handler ValueHandler) (Unsubscribe, error)
	ReadOnce(ctx context.Context, deviceID string) (*float64, error)
}
