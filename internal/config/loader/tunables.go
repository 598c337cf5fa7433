package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"premia/internal/logger"
)

// Tunables 是允许运行中热更新的决策参数。字段缺省时沿用上一份
// 快照的值，不会把阈值清零。
type Tunables struct {
	BaseThreshold  float64 `yaml:"base_threshold" json:"base_threshold,omitempty"`
	RaiseThreshold float64 `yaml:"raise_threshold" json:"raise_threshold,omitempty"`
	LowerThreshold float64 `yaml:"lower_threshold" json:"lower_threshold,omitempty"`
	MinStrength    float64 `yaml:"min_strength" json:"min_strength,omitempty"`
	MaxHoldSeconds int     `yaml:"max_hold_seconds" json:"max_hold_seconds,omitempty"`
}

type tunablesFile struct {
	Tunables Tunables `yaml:"tunables"`
}

// 热更新参数的结构约束：全部为有界数值，越界直接拒绝整份文件。
const tunablesManifest = `{
  "type": "object",
  "properties": {
    "base_threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "raise_threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "lower_threshold": {"type": "number", "minimum": 0, "maximum": 1},
    "min_strength": {"type": "number", "minimum": 0, "maximum": 10},
    "max_hold_seconds": {"type": "integer", "minimum": 60}
  }
}`

var tunablesSchema = jsonschema.MustCompileString("tunables.json", tunablesManifest)

// Snapshot 是一份带版本号的参数快照。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Values   Tunables
}

// ChangeListener 在参数热更新成功后触发。
type ChangeListener func(Snapshot)

// Registry 监听参数文件并维护当前快照。文件不存在时以零值快照
// 启动（调用方对 0 值有自己的缺省逻辑），之后出现即生效。
type Registry struct {
	path string

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
	watcher   *fsnotify.Watcher
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("tunables registry requires path")
	}
	r := &Registry{path: path}
	if err := r.reload(); err != nil {
		logger.Warnf("tunables: 初次加载失败，以零值启动: %v", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("tunables watcher failed: %w", err)
	}
	r.watcher = watcher
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("tunables watch %s failed: %w", dir, err)
	}
	go r.watch()
	return r, nil
}

func (r *Registry) Close() error {
	if r.watcher != nil {
		return r.watcher.Close()
	}
	return nil
}

// Snapshot 返回当前参数快照。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// OnChange 注册热更新回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) watch() {
	for {
		select {
		case evt, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != filepath.Clean(r.path) {
				continue
			}
			if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
				continue
			}
			if err := r.reload(); err != nil {
				logger.Errorf("tunables: 热更新失败，保留旧值: %v", err)
				continue
			}
			r.notify()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			logger.Warnf("tunables: watcher 错误: %v", err)
		}
	}
}

func (r *Registry) reload() error {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var file tunablesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return fmt.Errorf("tunables yaml 解析失败: %w", err)
	}

	// jsonschema 只认 JSON 文档，经 json 往返后校验。
	jsonRaw, err := json.Marshal(file.Tunables)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(jsonRaw, &doc); err != nil {
		return err
	}
	if err := tunablesSchema.Validate(doc); err != nil {
		return fmt.Errorf("tunables 结构校验失败: %w", err)
	}

	r.mu.Lock()
	merged := r.snapshot.Values
	applyNonZero(&merged, file.Tunables)
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Values:   merged,
	}
	version := r.snapshot.Version
	r.mu.Unlock()
	logger.Infof("tunables: 已加载 %s (version=%d)", r.path, version)
	return nil
}

func applyNonZero(dst *Tunables, src Tunables) {
	if src.BaseThreshold > 0 {
		dst.BaseThreshold = src.BaseThreshold
	}
	if src.RaiseThreshold > 0 {
		dst.RaiseThreshold = src.RaiseThreshold
	}
	if src.LowerThreshold > 0 {
		dst.LowerThreshold = src.LowerThreshold
	}
	if src.MinStrength > 0 {
		dst.MinStrength = src.MinStrength
	}
	if src.MaxHoldSeconds > 0 {
		dst.MaxHoldSeconds = src.MaxHoldSeconds
	}
}

func (r *Registry) notify() {
	r.mu.RLock()
	snap := r.snapshot
	listeners := make([]ChangeListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(snap)
	}
}
