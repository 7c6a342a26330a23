package playbook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"marlin/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Rule 描述剧本中的一条交易规则：触发条件 + 下单参数。
// params 由规则自带的 schema 校验，校验不过的规则在加载时被整条剔除。
type Rule struct {
	ID          string                 `yaml:"id"`
	Description string                 `yaml:"description"`
	Trigger     string                 `yaml:"trigger"`
	Direction   string                 `yaml:"direction"`
	Version     int                    `yaml:"version"`
	Params      map[string]interface{} `yaml:"params"`
	Schema      map[string]interface{} `yaml:"schema"`

	schemaCompiled *jsonschema.Schema
}

// FileConfig 映射剧本文件的 rules 段。
type FileConfig struct {
	Rules map[string]Rule `yaml:"rules"`
}

// Snapshot 是某一时刻的规则集合，重载后版本号递增。
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Rules    map[string]Rule
}

// ChangeListener 在 registry 重载时触发。
type ChangeListener func(Snapshot)

// Registry 管理剧本规则，监听文件变更并热重载。
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry 读取剧本文件并监听更新。
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("playbook registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read playbook failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("playbook reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot 返回当前规则集。
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Rule 返回指定 ID 的规则。
func (r *Registry) Rule(id string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.snapshot.Rules[strings.TrimSpace(id)]
	return rule, ok
}

// OnChange 注册重载回调。
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// RuleIDs 返回排序后的规则 ID，保证遍历顺序稳定。
func (r *Registry) RuleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.snapshot.Rules))
	for id := range r.snapshot.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) reload() error {
	cfg, err := readPlaybookFile(r.path)
	if err != nil {
		return err
	}
	rules := make(map[string]Rule)
	for name, rule := range cfg.Rules {
		norm, err := normalizeRule(name, rule)
		if err != nil {
			logger.Errorf("playbook rule %s dropped: %v", name, err)
			continue
		}
		rules[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Rules:    rules,
	}
	r.mu.Unlock()
	logger.Infof("playbook loaded %d rules from %s", len(rules), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("playbook listener")
			cb(snap)
		}(fn)
	}
}

func normalizeRule(name string, rule Rule) (Rule, error) {
	rule.ID = strings.TrimSpace(rule.ID)
	if rule.ID == "" {
		rule.ID = strings.TrimSpace(name)
	}
	if rule.Version <= 0 {
		rule.Version = 1
	}
	rule.Trigger = strings.ToLower(strings.TrimSpace(rule.Trigger))
	rule.Direction = strings.ToLower(strings.TrimSpace(rule.Direction))
	if !knownTrigger(rule.Trigger) {
		return Rule{}, fmt.Errorf("unknown trigger %q", rule.Trigger)
	}
	if rule.Direction != "long" && rule.Direction != "short" {
		return Rule{}, fmt.Errorf("unknown direction %q", rule.Direction)
	}
	if len(rule.Params) > 0 {
		// yaml 解出的整数要先过一遍 JSON 才能被 schema 校验识别
		params, err := toJSONValue(rule.Params)
		if err != nil {
			return Rule{}, fmt.Errorf("params not serializable: %w", err)
		}
		rule.Params = params
	}
	if len(rule.Schema) > 0 {
		compiled, err := compileSchema(rule.Schema)
		if err != nil {
			return Rule{}, fmt.Errorf("schema compile failed: %w", err)
		}
		rule.schemaCompiled = compiled
		if err := compiled.Validate(rule.Params); err != nil {
			return Rule{}, fmt.Errorf("params rejected by schema: %w", err)
		}
	}
	return rule, nil
}

func toJSONValue(params map[string]interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Rules:    make(map[string]Rule, len(src.Rules)),
	}
	for id, rule := range src.Rules {
		dst.Rules[id] = rule
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func compileSchema(data map[string]interface{}) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(string(raw))); err != nil {
		return nil, err
	}
	return compiler.Compile("schema.json")
}

func readPlaybookFile(path string) (FileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, fmt.Errorf("read playbook failed: %w", err)
	}
	var cfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return FileConfig{}, fmt.Errorf("parse playbook failed: %w", err)
	}
	return cfg, nil
}

// FloatParam 读取数值参数，yaml 解析出的整数同样接受。
func (r Rule) FloatParam(key string, fallback float64) float64 {
	v, ok := r.Params[key]
	if !ok {
		return fallback
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

func (r Rule) IsLong() bool {
	return r.Direction == "long"
}
