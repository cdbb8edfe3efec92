package sample

import (
	"time"
)

// DefaultArity 参考部署中每个采样的通道数
const DefaultArity = 10

// Sample 一次多通道观测：到达时间 + 固定元数的通道读数
//
// 字段名即线上协议字段名（"Timestamp"、"Values"），不要加 json tag 改名。
type Sample struct {
	Timestamp time.Time
	Values    []float64
}

// Arity 返回通道数
func (s Sample) Arity() int {
	return len(s.Values)
}

// clone 返回不与原 Values 共享底层数组的副本
func (s Sample) clone() Sample {
	values := make([]float64, len(s.Values))
	copy(values, s.Values)
	return Sample{Timestamp: s.Timestamp, Values: values}
}
