// Package loader 负责风格参数覆盖文件的读取、schema 校验与热加载。
package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"alphasim/internal/config"
	"alphasim/internal/logger"
)

// personalitySchema 在解码前校验覆盖文件的结构，避免笔误静默生效。
const personalitySchema = `{
  "type": "object",
  "properties": {
    "personalities": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "prediction_threshold": {"type": "number", "exclusiveMinimum": 0},
          "position_sizing": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
          "max_position": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
          "stop_loss": {"type": "number", "minimum": 0},
          "take_profit": {"type": "number", "minimum": 0},
          "confidence_weight": {
            "type": "object",
            "properties": {
              "technical": {"type": "number", "minimum": 0, "maximum": 1},
              "model_a": {"type": "number", "minimum": 0, "maximum": 1},
              "model_b": {"type": "number", "minimum": 0, "maximum": 1}
            },
            "additionalProperties": false
          }
        },
        "additionalProperties": false
      }
    }
  },
  "required": ["personalities"]
}`

var compiledSchema = jsonschema.MustCompileString("personalities.schema.json", personalitySchema)

// Snapshot 是对外暴露的只读快照：内置表叠加文件覆盖后的完整风格集。
type Snapshot struct {
	Version       int64
	LoadedAt      time.Time
	Personalities map[config.Personality]config.PersonalityConfig
}

// Get 取单个风格的参数。
func (s Snapshot) Get(p config.Personality) (config.PersonalityConfig, bool) {
	cfg, ok := s.Personalities[p]
	return cfg, ok
}

// ChangeListener 在快照更新后收到通知。
type ChangeListener func(Snapshot)

// PersonalityLoader 加载风格覆盖文件并可选地监听变更。
// path 为空时只提供内置表。
type PersonalityLoader struct {
	path string

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func New(path string) *PersonalityLoader {
	return &PersonalityLoader{path: path}
}

// Load 做一次全量加载。内置风格始终存在；文件只允许覆盖已知风格的字段。
func (l *PersonalityLoader) Load() error {
	merged := config.BuiltinPersonalities()
	if l.path != "" {
		overrides, err := loadOverrides(l.path)
		if err != nil {
			return err
		}
		for name, raw := range overrides {
			p, err := config.ParsePersonality(name)
			if err != nil {
				return fmt.Errorf("personality file %s: %w", filepath.Base(l.path), err)
			}
			base := merged[p]
			applyOverride(&base, raw)
			merged[p] = base
		}
	}
	for p, cfg := range merged {
		if err := cfg.Validate(); err != nil {
			return err
		}
		merged[p] = cfg
	}
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:       l.snapshot.Version + 1,
		LoadedAt:      time.Now(),
		Personalities: merged,
	}
	l.mu.Unlock()
	return nil
}

// Snapshot 返回当前快照（深拷贝）。
func (l *PersonalityLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (l *PersonalityLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("personality listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

// Watch 监听覆盖文件变更并自动重载，ctx 结束时退出。
func (l *PersonalityLoader) Watch(ctx context.Context) error {
	if l.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(l.path)); err != nil {
		watcher.Close()
		return err
	}
	go func() {
		defer watcher.Close()
		var timer *time.Timer
		target := filepath.Clean(l.path)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				logger.Debugf("personality file event: %s %s", ev.Op, filepath.Base(ev.Name))
				// 编辑器保存往往触发多个事件，短暂去抖后统一处理。
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(200*time.Millisecond, func() {
					if err := l.Load(); err != nil {
						logger.Warnf("personality reload failed: %v", err)
						return
					}
					logger.Infof("personalities reloaded from %s", filepath.Base(l.path))
					l.notify()
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("personality watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (l *PersonalityLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("personality listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

// loadOverrides 读取 yaml、过 schema、再给出原始字段映射。
func loadOverrides(path string) (map[string]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading personality file failed: %w", err)
	}
	var yamlDoc any
	if err := yaml.Unmarshal(data, &yamlDoc); err != nil {
		return nil, fmt.Errorf("personality file not valid yaml: %w", err)
	}
	// jsonschema 校验要求 encoding/json 的类型系统，yaml 结果先走一遍 JSON。
	jsonBytes, err := json.Marshal(yamlDoc)
	if err != nil {
		return nil, fmt.Errorf("personality file not json-convertible: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, err
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("personality file schema check failed: %w", err)
	}
	root, _ := doc.(map[string]any)
	rawPersonalities, _ := root["personalities"].(map[string]any)
	out := make(map[string]map[string]any, len(rawPersonalities))
	for name, v := range rawPersonalities {
		fields, _ := v.(map[string]any)
		out[name] = fields
	}
	return out, nil
}

// applyOverride 只覆盖文件里出现的字段，其余保持内置值。
func applyOverride(base *config.PersonalityConfig, fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	var decoded config.PersonalityConfig
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "toml",
		WeaklyTypedInput: true,
		Result:           &decoded,
	})
	if err != nil {
		return
	}
	if err := decoder.Decode(fields); err != nil {
		return
	}
	if _, ok := fields["prediction_threshold"]; ok {
		base.PredictionThreshold = decoded.PredictionThreshold
	}
	if _, ok := fields["position_sizing"]; ok {
		base.PositionSizing = decoded.PositionSizing
	}
	if _, ok := fields["max_position"]; ok {
		base.MaxPosition = decoded.MaxPosition
	}
	if _, ok := fields["stop_loss"]; ok {
		base.StopLoss = decoded.StopLoss
	}
	if _, ok := fields["take_profit"]; ok {
		base.TakeProfit = decoded.TakeProfit
	}
	if raw, ok := fields["confidence_weight"].(map[string]any); ok {
		if _, ok := raw["technical"]; ok {
			base.Weights.Technical = decoded.Weights.Technical
		}
		if _, ok := raw["model_a"]; ok {
			base.Weights.ModelA = decoded.Weights.ModelA
		}
		if _, ok := raw["model_b"]; ok {
			base.Weights.ModelB = decoded.Weights.ModelB
		}
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{Version: src.Version, LoadedAt: src.LoadedAt}
	if src.Personalities != nil {
		dst.Personalities = make(map[config.Personality]config.PersonalityConfig, len(src.Personalities))
		for k, v := range src.Personalities {
			dst.Personalities[k] = v
		}
	}
	return dst
}
