// Package config 提供 SampleFlow 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → SAMPLEFLOW_* 环境变量 的顺序合并，
// Validate 汇总全部错误。FileWatcher 轮询配置文件，Reloader 在文件变更后
// 重新加载；运行期只有 log.level 会生效，其余变更记录为需要重启。
package config
