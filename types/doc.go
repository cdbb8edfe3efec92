// Copyright (c) SampleFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 SampleFlow 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包。当前只承载结构化错误体系，
供 sample、ingest、broadcast、gateway 与 api 统一使用。

# 错误分类

  - UPSTREAM_UNAVAILABLE — 上游连接失败或中断，ingest 按固定间隔重连
  - MALFORMED_RECORD     — 单条记录解析失败，丢弃该行并继续读取
  - SUBSCRIBER_DELIVERY  — 向订阅者发送失败，broadcast 将其剔除
  - SUBSCRIBER_PROTOCOL  — 非法升级请求，gateway 返回 400

上述错误均在发现它的组件内被恢复，不会导致进程退出。
*/
package types
