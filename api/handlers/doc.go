// Copyright (c) SampleFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 SampleFlow 状态类 HTTP 端点与统一的 JSON 响应辅助函数。

# 核心类型

  - HealthHandler    — /health、/healthz、/ready、/version
  - StatusSource     — 订阅者数、上游连接状态、缓冲区占用、接入统计
  - HealthCheck      — 可插拔就绪检查，内置 NewUpstreamHealthCheck
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter   — 捕获状态码与响应大小，透传 Hijack 以支持 WebSocket 升级

# 主要能力

  - WriteSuccess / WriteError / WriteJSON 辅助函数
  - ErrorCode 到 HTTP 状态码的映射（SUBSCRIBER_PROTOCOL 为 400，上游不可用为 503）
  - 就绪检查：上游断开期间 /ready 返回 503
*/
package handlers
