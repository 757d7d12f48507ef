package classifier

import (
	"encoding/json"
	"math"
)

// Band 体温严重程度分级（有序枚举）
type Band int

const (
	// BandUndetermined 无读数或非法读数（传感器掉线、未配置设备）
	BandUndetermined Band = iota
	BandTooLow
	BandNormal
	BandMildFever
	BandModerateFever
	BandHighFever
	BandVeryHighFever
)

// 分级阈值（°C）
// 历史版本中 MildFever 下界出现过 37.8，产品确认以 37.6 为准
const (
	thresholdNormal   = 36.4
	thresholdMild     = 37.6
	thresholdModerate = 39.0
	thresholdHigh     = 40.0
	thresholdVeryHigh = 40.6
)

// Classify 将体温读数映射到严重程度分级
// 全函数：任意输入都有唯一分级，nil 和 NaN 返回 BandUndetermined
func Classify(temp *float64) Band {
	if temp == nil {
		return BandUndetermined
	}
	v := *temp
	if math.IsNaN(v) {
		return BandUndetermined
	}

	switch {
	case v > thresholdVeryHigh:
		return BandVeryHighFever
	case v >= thresholdHigh:
		return BandHighFever
	case v >= thresholdModerate:
		return BandModerateFever
	case v >= thresholdMild:
		return BandMildFever
	case v >= thresholdNormal:
		return BandNormal
	default:
		return BandTooLow
	}
}

// String 返回分级的展示标签（用于通知标题和日志）
func (b Band) String() string {
	switch b {
	case BandTooLow:
		return "Too Low"
	case BandNormal:
		return "Normal"
	case BandMildFever:
		return "Mild Fever"
	case BandModerateFever:
		return "Moderate Fever"
	case BandHighFever:
		return "High Fever"
	case BandVeryHighFever:
		return "Very High Fever"
	default:
		return "Undetermined"
	}
}

// ParseBand 从持久化标签还原分级，未知标签视为 Undetermined
func ParseBand(s string) Band {
	switch s {
	case "Too Low":
		return BandTooLow
	case "Normal":
		return BandNormal
	case "Mild Fever":
		return BandMildFever
	case "Moderate Fever":
		return BandModerateFever
	case "High Fever":
		return BandHighFever
	case "Very High Fever":
		return BandVeryHighFever
	default:
		return BandUndetermined
	}
}

// MarshalJSON 分级以标签形式持久化（枚举值重排不影响已存数据）
func (b Band) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.String())
}

// UnmarshalJSON 反序列化分级标签
func (b *Band) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*b = ParseBand(s)
	return nil
}
