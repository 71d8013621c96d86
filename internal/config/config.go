package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "mission-control.yml"

// Config models mission-control.yml.
type Config struct {
	Database struct {
		Path           string `yaml:"path"`
		BusyTimeoutMS  int    `yaml:"busy_timeout_ms"`
		MaxBusyRetries int    `yaml:"max_busy_retries"`
	} `yaml:"database"`
	Tasks struct {
		DefaultPriority int    `yaml:"default_priority"`
		MetadataPolicy  string `yaml:"metadata_policy"`
	} `yaml:"tasks"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Webhooks []Webhook `yaml:"webhooks"`
}

// Webhook posts audit events of the listed types to URL. Empty Events means all.
type Webhook struct {
	Name      string   `yaml:"name"`
	URL       string   `yaml:"url"`
	MissionID string   `yaml:"mission_id"`
	Events    []string `yaml:"events"`
	Secret    string   `yaml:"secret"`
	TimeoutMS int      `yaml:"timeout_ms"`
}

// Matches reports whether the hook subscribes to evtType in missionID.
func (w Webhook) Matches(evtType, missionID string) bool {
	if w.MissionID != "" && w.MissionID != missionID {
		return false
	}
	if len(w.Events) == 0 {
		return true
	}
	for _, e := range w.Events {
		if e == evtType || (strings.HasSuffix(e, ".*") && strings.HasPrefix(evtType, strings.TrimSuffix(e, "*"))) {
			return true
		}
	}
	return false
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Database.BusyTimeoutMS < 0 {
		return fmt.Errorf("database.busy_timeout_ms must be >= 0")
	}
	if c.Database.MaxBusyRetries < 0 {
		return fmt.Errorf("database.max_busy_retries must be >= 0")
	}
	if c.Tasks.DefaultPriority < 0 || c.Tasks.DefaultPriority > 4 {
		return fmt.Errorf("tasks.default_priority must be between 0 and 4")
	}
	switch c.Tasks.MetadataPolicy {
	case "lenient", "strict":
	default:
		return fmt.Errorf("tasks.metadata_policy must be 'lenient' or 'strict', got %q", c.Tasks.MetadataPolicy)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be 'text' or 'json'")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("server.base_path must start with '/'")
	}
	names := map[string]bool{}
	for i, w := range c.Webhooks {
		if w.Name == "" {
			return fmt.Errorf("webhooks[%d].name is required", i)
		}
		if names[w.Name] {
			return fmt.Errorf("webhook %s defined twice", w.Name)
		}
		names[w.Name] = true
		u, err := url.Parse(w.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("webhook %s: url must be an absolute http(s) url", w.Name)
		}
		if w.TimeoutMS < 0 {
			return fmt.Errorf("webhook %s: timeout_ms must be >= 0", w.Name)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; write one with mc config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns Default() if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Keys left out
// keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `database:
  # empty path means <workspace>/.mission-control/mission-control.db
  path: ""
  busy_timeout_ms: 5000
  max_busy_retries: 8

tasks:
  default_priority: 2
  # lenient: unreadable metadata reads back empty and flagged
  # strict: unreadable metadata fails the read
  metadata_policy: lenient

log:
  level: info
  format: text

server:
  addr: 127.0.0.1:7777
  base_path: /v0

webhooks: []
`
