package permission

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"notary/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// policyDocSchema validates the decoded policy document before it replaces
// the active snapshot. A reload that fails validation keeps the previous
// snapshot in force.
const policyDocSchema = `{
  "type": "object",
  "required": ["policies"],
  "properties": {
    "policies": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "name": {"type": "string"},
          "enabled": {"type": "boolean"},
          "max_transaction_value": {"type": "string"},
          "daily_spending_limit": {"type": "string"},
          "time_windows": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["duration"],
              "properties": {
                "duration": {"type": "string"},
                "max_transactions": {"type": "integer", "minimum": 0},
                "max_value": {"type": "string"}
              }
            }
          },
          "allowed_destinations": {"type": "array", "items": {"type": "string"}},
          "blocked_destinations": {"type": "array", "items": {"type": "string"}},
          "allow_contract_interactions": {"type": "boolean"},
          "allowed_hours_utc": {"type": "array", "items": {"type": "integer", "minimum": 0, "maximum": 23}},
          "max_gas_price": {"type": "string"},
          "max_gas_limit": {"type": "integer", "minimum": 0}
        }
      }
    }
  }
}`

type policyFile struct {
	Policies map[string]Policy `yaml:"policies"`
}

// Snapshot is the immutable active policy set.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Policies map[string]Policy
}

// Enabled returns the enabled policies in name-keyed map order.
func (s Snapshot) Enabled() []Policy {
	out := make([]Policy, 0, len(s.Policies))
	for _, p := range s.Policies {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// ChangeListener fires after a successful reload.
type ChangeListener func(Snapshot)

// Registry loads the transaction policy file and hot-reloads it on change.
type Registry struct {
	path     string
	v        *viper.Viper
	compiled *jsonschema.Schema

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("permission registry requires path")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("policies.json", strings.NewReader(policyDocSchema)); err != nil {
		return nil, fmt.Errorf("permission schema: %w", err)
	}
	compiled, err := compiler.Compile("policies.json")
	if err != nil {
		return nil, fmt.Errorf("permission schema: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read policy config failed: %w", err)
	}
	r := &Registry{path: path, v: v, compiled: compiled}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("policy reload failed, previous snapshot stays active: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot returns the active policy set.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// OnChange registers a reload listener.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readPolicyFile(r.path, r.compiled)
	if err != nil {
		return err
	}
	policies := make(map[string]Policy, len(cfg.Policies))
	for name, p := range cfg.Policies {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			p.Name = strings.TrimSpace(name)
		}
		policies[p.Name] = p
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Policies: policies,
	}
	r.mu.Unlock()
	logger.Infof("Permission registry loaded %d policies from %s", len(policies), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("policy listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Policies: make(map[string]Policy, len(src.Policies)),
	}
	for name, p := range src.Policies {
		dst.Policies[name] = p
	}
	return dst
}

func safeRecover(tag string) {
	if rec := recover(); rec != nil {
		logger.Errorf("%s panic: %v", tag, rec)
	}
}

func readPolicyFile(path string, compiled *jsonschema.Schema) (policyFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return policyFile{}, fmt.Errorf("read policy config failed: %w", err)
	}
	// Generic decode first for schema validation, then a strict typed
	// decode that rejects unknown fields.
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return policyFile{}, fmt.Errorf("parse policy config failed: %w", err)
	}
	if err := compiled.Validate(normalizeYAML(doc)); err != nil {
		return policyFile{}, fmt.Errorf("policy config invalid: %w", err)
	}
	var cfg policyFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return policyFile{}, fmt.Errorf("parse policy config failed: %w", err)
	}
	return cfg, nil
}

// normalizeYAML rewrites yaml's map[any]any nodes into map[string]any so
// the jsonschema validator accepts them.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeYAML(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprintf("%v", k)] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeYAML(child)
		}
		return out
	default:
		return val
	}
}
