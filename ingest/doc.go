// 版权所有 2024 SampleFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 ingest 从单一上游生产者读取换行分隔的 JSON 整数数组，
转换为采样后写入历史缓冲区并广播给订阅者。

# 连接模型

同一时刻只维持一条 TCP 连接。拨号失败、读到 EOF 或读错误都会结束当前
会话，在固定的 ReconnectDelay 之后重试，没有次数上限。超过 MaxLineBytes
的行按畸形记录丢弃，会话继续。
等待使用可注入的 clockz.Clock，测试可用假时钟驱动。

# 记录处理

HandleLine 对每条记录执行"解析、追加、广播"，到达时间取自时钟并统一为 UTC。
畸形记录只记录日志与指标，不会中断会话。每条被接受的采样对应一个
OpenTelemetry span（ingest.sample）。
*/
package ingest
