// Copyright (c) SampleFlow Authors.
// Licensed under the MIT License.

/*
Package sample 定义多通道采样的数据模型、上游记录解析、滑动窗口缓冲区
以及下行 WebSocket 消息的编码。

# 核心类型

  - Sample：到达时间（UTC）+ 固定元数的 float64 通道读数
  - Parser：把一行 JSON 整数数组解析为 Sample，元数不符直接拒绝
  - Buffer：按数量淘汰的环形缓冲区，单写多读，快照与后续写入互不影响
  - Envelope：history / data 两类下行消息

# 淘汰策略

Buffer 按数量淘汰（默认 3000 条，参考 100Hz 即 30 秒）。采样率变化时
窗口覆盖的时间跨度随之变化。
*/
package sample
