// 配置文件变更监听器。
//
// 轮询文件的修改时间与大小，变更经防抖后回调。
package config

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// FileOp 文件变更类型
type FileOp int

const (
	// FileOpCreate 文件被创建
	FileOpCreate FileOp = iota
	// FileOpWrite 文件被修改
	FileOpWrite
	// FileOpRemove 文件被删除
	FileOpRemove
)

// String returns the string representation of FileOp
func (op FileOp) String() string {
	switch op {
	case FileOpCreate:
		return "CREATE"
	case FileOpWrite:
		return "WRITE"
	case FileOpRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent 一次文件变更
type FileEvent struct {
	Path      string    `json:"path"`
	Op        FileOp    `json:"op"`
	Timestamp time.Time `json:"timestamp"`
}

// FileWatcher 监听单个配置文件
type FileWatcher struct {
	mu        sync.RWMutex
	callbacks []func(FileEvent)

	path          string
	pollInterval  time.Duration
	debounceDelay time.Duration
	logger        *zap.Logger

	started     chan struct{}
	startedOnce sync.Once
}

// --- 文件监听器选项 ---

// WatcherOption configures the FileWatcher
type WatcherOption func(*FileWatcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay 设置防抖时间，连续变更只回调最后一次
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *FileWatcher) {
		if d >= 0 {
			w.debounceDelay = d
		}
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *FileWatcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// --- 文件监听器实现 ---

// NewFileWatcher 创建文件监听器，文件可以暂不存在
func NewFileWatcher(path string, opts ...WatcherOption) *FileWatcher {
	w := &FileWatcher{
		path:          path,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		logger:        zap.NewNop(),
		started:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"), zap.String("path", path))
	return w
}

// OnChange 注册变更回调
func (w *FileWatcher) OnChange(callback func(FileEvent)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

type fileState struct {
	exists  bool
	modTime time.Time
	size    int64
}

func (w *FileWatcher) stat() fileState {
	info, err := os.Stat(w.path)
	if err != nil {
		return fileState{}
	}
	return fileState{exists: true, modTime: info.ModTime(), size: info.Size()}
}

// Started 在 Run 记录初始文件状态后关闭，此后的变更都会被报告
func (w *FileWatcher) Started() <-chan struct{} {
	return w.started
}

// Run 阻塞轮询直到 ctx 取消
func (w *FileWatcher) Run(ctx context.Context) error {
	last := w.stat()
	w.startedOnce.Do(func() { close(w.started) })
	if !last.exists {
		w.logger.Warn("config file does not exist, will watch for creation")
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var (
		pending  *FileEvent
		debounce <-chan time.Time
	)

	w.logger.Info("config watcher started", zap.Duration("poll_interval", w.pollInterval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("config watcher stopped")
			return nil

		case <-ticker.C:
			cur := w.stat()
			op, changed := diffState(last, cur)
			last = cur
			if !changed {
				continue
			}
			pending = &FileEvent{Path: w.path, Op: op, Timestamp: time.Now()}
			debounce = time.After(w.debounceDelay)

		case <-debounce:
			debounce = nil
			if pending != nil {
				w.dispatch(*pending)
				pending = nil
			}
		}
	}
}

func diffState(prev, cur fileState) (FileOp, bool) {
	switch {
	case !prev.exists && cur.exists:
		return FileOpCreate, true
	case prev.exists && !cur.exists:
		return FileOpRemove, true
	case cur.exists && (!cur.modTime.Equal(prev.modTime) || cur.size != prev.size):
		return FileOpWrite, true
	default:
		return 0, false
	}
}

func (w *FileWatcher) dispatch(event FileEvent) {
	w.mu.RLock()
	callbacks := make([]func(FileEvent), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	w.logger.Debug("dispatching file event", zap.String("op", event.Op.String()))
	for _, cb := range callbacks {
		cb(event)
	}
}
