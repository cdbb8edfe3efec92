package sample

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/BaSui01/sampleflow/types"
)

// Parser 将上游的一行记录解析为 Sample。
//
// 记录格式为恰好 arity 个整数组成的 JSON 数组，例如 [1,2,3,4,5,6,7,8,9,10]。
// 元数不符的记录会被拒绝，不做补齐或截断。
type Parser struct {
	arity int
}

// NewParser 创建解析器，arity 必须为正数
func NewParser(arity int) (*Parser, error) {
	if arity <= 0 {
		return nil, fmt.Errorf("arity must be positive, got %d", arity)
	}
	return &Parser{arity: arity}, nil
}

// Arity 返回配置的通道数
func (p *Parser) Arity() int {
	return p.arity
}

// Parse 解析一行记录，at 为到达时间（统一转换为 UTC）。
// 失败时返回 ErrMalformedRecord，Raw 字段保存原始行。
func (p *Parser) Parse(line []byte, at time.Time) (Sample, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return Sample{}, malformed(line, "empty record", nil)
	}

	var elems []json.RawMessage
	if err := json.Unmarshal(trimmed, &elems); err != nil {
		return Sample{}, malformed(line, "record is not a JSON array", err)
	}
	if len(elems) != p.arity {
		return Sample{}, malformed(line,
			fmt.Sprintf("expected %d values, got %d", p.arity, len(elems)), nil)
	}

	values := make([]float64, p.arity)
	for i, raw := range elems {
		// 只接受整数字面量：浮点、字符串、null 都视为非法
		n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
		if err != nil {
			return Sample{}, malformed(line, fmt.Sprintf("value %d is not an integer", i), err)
		}
		values[i] = float64(n)
	}

	return Sample{Timestamp: at.UTC(), Values: values}, nil
}

func malformed(line []byte, msg string, cause error) *types.Error {
	err := types.NewError(types.ErrMalformedRecord, msg).WithRaw(string(line))
	if cause != nil {
		err = err.WithCause(cause)
	}
	return err
}
