package sample

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/sampleflow/internal/pool"
)

// EnvelopeType 区分历史回放与实时数据
type EnvelopeType string

const (
	EnvelopeHistory EnvelopeType = "history"
	EnvelopeData    EnvelopeType = "data"
)

// Envelope 下行消息：{"type": ..., "payload": ...}
type Envelope struct {
	Type    EnvelopeType `json:"type"`
	Payload any          `json:"payload"`
}

// 满窗口历史快照约数百 KB，超过 1 MiB 的缓冲区不回收
var encodeBuffers = pool.NewBufferPool(512, 1<<20)

// EncodeHistory 编码 history 消息，空历史编码为 []，不是 null
func EncodeHistory(samples []Sample) ([]byte, error) {
	if samples == nil {
		samples = []Sample{}
	}
	data, err := encode(Envelope{Type: EnvelopeHistory, Payload: samples})
	if err != nil {
		return nil, fmt.Errorf("encode history envelope: %w", err)
	}
	return data, nil
}

// EncodeData 编码单条实时 data 消息
func EncodeData(s Sample) ([]byte, error) {
	data, err := encode(Envelope{Type: EnvelopeData, Payload: s})
	if err != nil {
		return nil, fmt.Errorf("encode data envelope: %w", err)
	}
	return data, nil
}

// encode 在池化缓冲区中编码，返回独立的副本
func encode(env Envelope) ([]byte, error) {
	buf := encodeBuffers.Get()
	defer encodeBuffers.Put(buf)

	if err := json.NewEncoder(buf).Encode(env); err != nil {
		return nil, err
	}
	return bytes.Clone(bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})), nil
}
