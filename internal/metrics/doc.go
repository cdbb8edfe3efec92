// 版权所有 2024 SampleFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集能力，覆盖 HTTP、
上游接入与订阅者扇出三个维度。

# 概述

Collector 通过 promauto.With(reg) 注册到调用方提供的 Registerer，
生产环境使用默认 Registry 并由 /metrics 暴露；测试使用独立 Registry。
所有记录方法对 nil 接收者安全。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 1xx..5xx。
  - 上游指标：接受的采样数、丢弃的畸形记录数、连接/断开次数、
    当前连接状态与缓冲区占用。
  - 扇出指标：单次广播耗时、按 delivered/pruned 分组的投递计数、
    当前订阅者数与订阅者生命周期事件。
*/
package metrics
