package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeusync/jackal/internal/core/ecs"
	"github.com/zeusync/jackal/internal/core/vfs"
)

var ErrInvalidConfig = errors.New("invalid config")

// Config is the engine startup configuration.
type Config struct {
	LogLevel   string     `json:"log_level" yaml:"log_level"`
	TickRate   int        `json:"tick_rate" yaml:"tick_rate"`
	Components Components `json:"components" yaml:"components"`
	Mounts     []Mount    `json:"mounts" yaml:"mounts"`
	Resources  Resources  `json:"resources" yaml:"resources"`
	Devtools   Devtools   `json:"devtools" yaml:"devtools"`
}

type Components struct {
	// Capacity caps the number of component kinds; at most 64.
	Capacity int `json:"capacity" yaml:"capacity"`
}

// Mount is one content root. Relative paths are taken from the directory of
// the config file.
type Mount struct {
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	Type       string `json:"type" yaml:"type"`
	Path       string `json:"path" yaml:"path"`
	Priority   int    `json:"priority" yaml:"priority"`
	MountPoint string `json:"mount_point,omitempty" yaml:"mount_point,omitempty"`
}

type Resources struct {
	HotReload    bool `json:"hot_reload" yaml:"hot_reload"`
	Shards       int  `json:"shards" yaml:"shards"`
	PreloadLimit int  `json:"preload_limit" yaml:"preload_limit"`
	// Defaults maps a resource kind to the logical path of its fallback.
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
}

type Devtools struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

func Default() *Config {
	return &Config{
		LogLevel:   "info",
		TickRate:   60,
		Components: Components{Capacity: ecs.MaxComponentTypes},
		Resources: Resources{
			Shards:       16,
			PreloadLimit: 8,
		},
		Devtools: Devtools{Addr: "127.0.0.1:7070"},
	}
}

// Decode reads YAML over the defaults and validates the result. Unknown keys
// are rejected so typos do not pass silently.
func Decode(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load decodes the file at path and anchors relative mount paths to its
// directory.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	base := filepath.Dir(path)
	for i := range cfg.Mounts {
		if !filepath.IsAbs(cfg.Mounts[i].Path) {
			cfg.Mounts[i].Path = filepath.Join(base, cfg.Mounts[i].Path)
		}
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error", "silent", "off":
	default:
		errs = append(errs, fmt.Errorf("log_level %q", c.LogLevel))
	}
	if c.TickRate <= 0 || c.TickRate > 1000 {
		errs = append(errs, fmt.Errorf("tick_rate %d out of range 1..1000", c.TickRate))
	}
	if c.Components.Capacity <= 0 || c.Components.Capacity > ecs.MaxComponentTypes {
		errs = append(errs, fmt.Errorf("components.capacity %d out of range 1..%d", c.Components.Capacity, ecs.MaxComponentTypes))
	}
	if c.Resources.Shards < 0 {
		errs = append(errs, fmt.Errorf("resources.shards %d is negative", c.Resources.Shards))
	}
	if c.Resources.PreloadLimit < 0 {
		errs = append(errs, fmt.Errorf("resources.preload_limit %d is negative", c.Resources.PreloadLimit))
	}
	if c.Devtools.Enabled && c.Devtools.Addr == "" {
		errs = append(errs, errors.New("devtools.addr is required when devtools are enabled"))
	}

	names := make(map[string]struct{}, len(c.Mounts))
	for i, m := range c.Mounts {
		if m.Path == "" {
			errs = append(errs, fmt.Errorf("mounts[%d]: path is required", i))
		}
		kind, err := vfs.ParseRootKind(m.Type)
		if err != nil {
			errs = append(errs, fmt.Errorf("mounts[%d]: %w", i, err))
		} else if kind == vfs.MemoryRoot {
			errs = append(errs, fmt.Errorf("mounts[%d]: memory roots cannot be configured", i))
		}
		name := m.EffectiveName()
		if _, dup := names[name]; dup {
			errs = append(errs, fmt.Errorf("mounts[%d]: duplicate name %q", i, name))
		}
		names[name] = struct{}{}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
}

// EffectiveName is the mount name the file system will use: the configured
// name, else the base name of the path without extension for archives.
func (m Mount) EffectiveName() string {
	if m.Name != "" {
		return m.Name
	}
	base := filepath.Base(m.Path)
	if kind, err := vfs.ParseRootKind(m.Type); err == nil && kind == vfs.ArchiveRoot {
		return base[:len(base)-len(filepath.Ext(base))]
	}
	return base
}

// TickInterval is the fixed simulation step.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickRate)
}
