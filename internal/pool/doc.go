// Package pool 提供基于 sync.Pool 的泛型对象池，
// 目前用于复用下行消息编码时的字节缓冲区。
package pool
