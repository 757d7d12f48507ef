package models

// Baby 被监护对象（婴儿）
// 由外部目录（babies 表）管理，本服务只读；DeviceID 为空表示未绑定设备
type Baby struct {
	ID       string `json:"baby_id"`
	Name     string `json:"baby_name"`
	OwnerID  string `json:"owner_id"`
	DeviceID string `json:"device_id,omitempty"`
}

// HasDevice 是否已绑定体温传感器
func (b Baby) HasDevice() bool {
	return b.DeviceID != ""
}
