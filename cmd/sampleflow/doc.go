// Copyright (c) SampleFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 SampleFlow 服务端程序入口。

# 概述

cmd/sampleflow 从上游 TCP 生产者读取逐行 JSON 采样，保存在有界历史窗口中，
并通过 WebSocket 推送给浏览器订阅者：新订阅者先收到一次 history 快照，
之后每条新采样以 data 消息实时推送。

# 核心类型

  - Server      — 组装缓冲区、订阅者注册表、上游读取器与订阅端点，
    管理 HTTP、Metrics 双端口及优雅关闭
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、MetricsMiddleware、CORS、RateLimiter（基于 IP）；
    包装后的 ResponseWriter 保留 http.Hijacker，WebSocket 升级可穿过整条链
  - 配置热重载：FileWatcher 监听 --config 文件，运行期调整日志级别
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：SIGINT/SIGTERM → 停止上游读取 → 关闭全部订阅者 →
    关闭 HTTP 与 Metrics 服务器
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
