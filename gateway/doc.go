// Copyright (c) SampleFlow Authors.
// Licensed under the MIT License.

/*
Package gateway 实现下行订阅端点（默认挂载于 /ws）。

非 WebSocket 请求返回 400 与 SUBSCRIBER_PROTOCOL 错误体。握手成功后：

 1. 在广播顺序锁内对缓冲区做快照，编码为 history 信封并发送；
 2. 发送成功后注册到 broadcast.Registry，此后接收 data 信封；
 3. 读取并丢弃客户端消息，直到对端关闭或出错；
 4. 注销并关闭连接。若广播已将其剔除，注销为空操作。

AllowedOrigins 接受完整 URL（http://localhost:3000），内部转换为
coder/websocket 的 host 匹配模式；"*" 关闭来源校验。
*/
package gateway
