// 版权所有 2024 SampleFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP/HTTPS 服务器生命周期管理，支持非阻塞启动与
基于 context 的优雅关闭。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与异步错误通道，
    提供 Start/StartTLS/Run/Shutdown 等生命周期方法。
  - Config：监听地址、读写超时、空闲超时、最大请求头大小与
    优雅关闭超时。

# 主要能力

  - 非阻塞启动：Start/StartTLS 在后台 goroutine 中运行服务；
    监听端口可为 :0，实际地址通过 ListenAddr 获取。
  - TLS：StartTLS 使用 tlsutil 的加固配置，仅协商 HTTP/1.1，
    保证 WebSocket 升级可用。
  - 优雅关闭：Run 在 ctx 取消（通常来自 signal.NotifyContext）
    或服务异常时调用 Shutdown，在超时内排空请求。
  - 错误传播：Errors() 返回异步错误通道。
*/
package server
