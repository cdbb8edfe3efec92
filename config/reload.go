// 配置热重载。
//
// 只有少数字段可以在运行期生效（目前是 log.level），其余变更仅记录并提示重启。
package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// hotReloadable 可在运行期生效的字段路径
var hotReloadable = map[string]bool{
	"log.level": true,
}

// IsHotReloadable 判断字段路径是否可热重载
func IsHotReloadable(path string) bool {
	return hotReloadable[path]
}

// Change 一项配置变更，Path 使用 yaml 键，如 upstream.port
type Change struct {
	Path     string `json:"path"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// ReloadFunc 重载成功后的回调
type ReloadFunc func(oldCfg, newCfg *Config, changes []Change)

// Reloader 从文件重新加载配置并通知订阅方
type Reloader struct {
	mu        sync.RWMutex
	current   *Config
	loader    *Loader
	callbacks []ReloadFunc
	logger    *zap.Logger
}

// NewReloader 创建重载器，initial 为当前生效的配置
func NewReloader(initial *Config, loader *Loader, logger *zap.Logger) *Reloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reloader{
		current: initial,
		loader:  loader,
		logger:  logger.With(zap.String("component", "config_reloader")),
	}
}

// Current 返回当前配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload 注册重载回调
func (r *Reloader) OnReload(fn ReloadFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, fn)
}

// HandleFileEvent 作为 FileWatcher 回调使用
func (r *Reloader) HandleFileEvent(event FileEvent) {
	if event.Op == FileOpRemove {
		r.logger.Warn("config file removed, keeping current config")
		return
	}
	if err := r.Reload(); err != nil {
		r.logger.Error("config reload failed, keeping current config", zap.Error(err))
	}
}

// Reload 重新加载并校验配置；失败时保留当前配置
func (r *Reloader) Reload() error {
	next, err := r.loader.Load()
	if err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	prev := r.current
	r.current = next
	callbacks := make([]ReloadFunc, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	changes := Diff(prev, next)
	for _, c := range changes {
		fields := []zap.Field{
			zap.String("path", c.Path),
			zap.Any("old", c.OldValue),
			zap.Any("new", c.NewValue),
		}
		if IsHotReloadable(c.Path) {
			r.logger.Info("config changed", fields...)
		} else {
			r.logger.Warn("config changed, restart required to apply", fields...)
		}
	}

	for _, cb := range callbacks {
		cb(prev, next, changes)
	}
	return nil
}

// Diff 比较两份配置的叶子字段
func Diff(oldCfg, newCfg *Config) []Change {
	var changes []Change
	compareStructs("", reflect.ValueOf(oldCfg).Elem(), reflect.ValueOf(newCfg).Elem(), &changes)
	return changes
}

func compareStructs(prefix string, oldVal, newVal reflect.Value, changes *[]Change) {
	t := oldVal.Type()
	for i := 0; i < t.NumField(); i++ {
		name := yamlName(t.Field(i))
		if name == "" {
			continue
		}
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}

		of, nf := oldVal.Field(i), newVal.Field(i)
		if of.Kind() == reflect.Struct {
			compareStructs(path, of, nf, changes)
			continue
		}
		if !reflect.DeepEqual(of.Interface(), nf.Interface()) {
			*changes = append(*changes, Change{
				Path:     path,
				OldValue: of.Interface(),
				NewValue: nf.Interface(),
			})
		}
	}
}

func yamlName(f reflect.StructField) string {
	tag := f.Tag.Get("yaml")
	if tag == "-" {
		return ""
	}
	if name, _, _ := strings.Cut(tag, ","); name != "" {
		return name
	}
	return strings.ToLower(f.Name)
}

// String 便于日志输出
func (c Change) String() string {
	return fmt.Sprintf("%s: %v -> %v", c.Path, c.OldValue, c.NewValue)
}
