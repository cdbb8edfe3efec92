// 版权所有 2024 SampleFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 broadcast 维护下行订阅者集合，并将每条消息扇出给所有存活订阅者。

# 概述

Registry 采用"先收集、后剔除"的两阶段广播：发送阶段不持有集合锁，
单个订阅者的失败或超时只会使其在本轮结束时被移除，不影响其他订阅者，
也不会向调用方返回错误。

# 加入语义

Attach 在与 Publish 相同的顺序锁内完成"生成历史快照、发送、注册"，
因此新订阅者收到的历史与之后的实时数据之间既无缺口也无重复。

# 订阅者

Subscriber 是传输无关的接口，WSSubscriber 是基于 coder/websocket 的实现，
写操作串行化，关闭幂等。
*/
package broadcast
