// Package config loads tutorgraph settings from a YAML or JSON file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/tutorgraph/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Providers.
const (
	ProviderAnthropic = "anthropic"
	ProviderRules     = "rules"
	ProviderTavily    = "tavily"
	ProviderNone      = "none"

	CacheMemory = "memory"
	CacheRedis  = "redis"

	StoreFile = "file"

	CounterTiktoken = "tiktoken"
	CounterEstimate = "estimate"
)

// Config is the full set of settings.
type Config struct {
	Model   ModelConfig       `yaml:"model" json:"model"`
	History HistoryConfig     `yaml:"history" json:"history"`
	Search  SearchConfig      `yaml:"search" json:"search"`
	Engine  EngineConfig      `yaml:"engine" json:"engine"`
	Session SessionConfig     `yaml:"session" json:"session"`
	Prompts map[string]string `yaml:"prompts" json:"prompts"`
	Log     LogConfig         `yaml:"log" json:"log"`
	Server  ServerConfig      `yaml:"server" json:"server"`
	Tracing TracingConfig     `yaml:"tracing" json:"tracing"`
}

// ModelConfig selects the decision and content delegate.
type ModelConfig struct {
	Provider      string `yaml:"provider" json:"provider"`
	Name          string `yaml:"name" json:"name"`
	MaxTokens     int    `yaml:"max_tokens" json:"max_tokens"`
	MaxToolRounds int    `yaml:"max_tool_rounds" json:"max_tool_rounds"`
	APIKeyEnv     string `yaml:"api_key_env" json:"api_key_env"`
	BaseURL       string `yaml:"base_url" json:"base_url"`
}

// HistoryConfig tunes the trimmer applied before every decision.
type HistoryConfig struct {
	MaxTokens     int    `yaml:"max_tokens" json:"max_tokens"`
	IncludeSystem bool   `yaml:"include_system" json:"include_system"`
	Counter       string `yaml:"counter" json:"counter"`
	Encoding      string `yaml:"encoding" json:"encoding"`
}

// SearchConfig wires the lesson agent's search tool.
type SearchConfig struct {
	Provider   string      `yaml:"provider" json:"provider"`
	MaxResults int         `yaml:"max_results" json:"max_results"`
	APIKeyEnv  string      `yaml:"api_key_env" json:"api_key_env"`
	BaseURL    string      `yaml:"base_url" json:"base_url"`
	Cache      CacheConfig `yaml:"cache" json:"cache"`
}

// CacheConfig selects where search results are cached.
type CacheConfig struct {
	Backend string   `yaml:"backend" json:"backend"`
	Addr    string   `yaml:"addr" json:"addr"`
	TTL     Duration `yaml:"ttl" json:"ttl"`
	Size    int      `yaml:"size" json:"size"`
	Prefix  string   `yaml:"prefix" json:"prefix"`
}

// EngineConfig bounds runs.
type EngineConfig struct {
	MaxSteps int `yaml:"max_steps" json:"max_steps"`
}

// SessionConfig selects where resumable conversations are stored.
type SessionConfig struct {
	Backend          string   `yaml:"backend" json:"backend"`
	Dir              string   `yaml:"dir" json:"dir"`
	Addr             string   `yaml:"addr" json:"addr"`
	TTL              Duration `yaml:"ttl" json:"ttl"`
	Prefix           string   `yaml:"prefix" json:"prefix"`
	// LockTTL bounds how long a crashed process keeps a Redis session locked.
	LockTTL          Duration `yaml:"lock_ttl" json:"lock_ttl"`
	// EncryptionKeyEnv names a variable holding a hex AES-256 key. Empty stores plaintext.
	EncryptionKeyEnv string   `yaml:"encryption_key_env" json:"encryption_key_env"`
	// FallbackKeyEnvs name retired keys still accepted when loading.
	FallbackKeyEnvs  []string `yaml:"fallback_key_envs" json:"fallback_key_envs"`
	// Redact lists regular expressions masked in saved messages.
	Redact           []string `yaml:"redact" json:"redact"`
}

// LogConfig configures the application logger.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// ServerConfig configures the HTTP host.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// TracingConfig points span export at an OTLP gRPC collector. An empty endpoint disables it.
type TracingConfig struct {
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	Insecure bool   `yaml:"insecure" json:"insecure"`
}

// Default returns the settings used when no file is present.
func Default() Config {
	return Config{
		Model: ModelConfig{
			Provider:      ProviderAnthropic,
			Name:          "claude-sonnet-4-5-20250929",
			MaxTokens:     4096,
			MaxToolRounds: 3,
			APIKeyEnv:     "ANTHROPIC_API_KEY",
		},
		History: HistoryConfig{
			MaxTokens:     100000,
			IncludeSystem: true,
			Counter:       CounterTiktoken,
			Encoding:      "o200k_base",
		},
		Search: SearchConfig{
			Provider:   ProviderTavily,
			MaxResults: 5,
			APIKeyEnv:  "TAVILY_API_KEY",
			Cache: CacheConfig{
				Backend: CacheMemory,
				TTL:     Duration(10 * time.Minute),
				Size:    256,
				Prefix:  "tutorgraph:search:",
			},
		},
		Engine: EngineConfig{MaxSteps: 25},
		Session: SessionConfig{
			Backend: StoreFile,
			Dir:     filepath.Join(".tutorgraph", "sessions"),
			Prefix:  "tutorgraph:session:",
			LockTTL: Duration(2 * time.Minute),
		},
		Log:    LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{Addr: ":8080"},
	}
}

// Load reads a configuration file (YAML or JSON, by extension) over the defaults.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Validate checks enumerated fields and prompt keys.
func (c Config) Validate() error {
	var errs []error
	if !oneOf(c.Model.Provider, ProviderAnthropic, ProviderRules) {
		errs = append(errs, fmt.Errorf("model.provider %q must be %s or %s", c.Model.Provider, ProviderAnthropic, ProviderRules))
	}
	if !oneOf(c.Search.Provider, ProviderTavily, ProviderNone, "") {
		errs = append(errs, fmt.Errorf("search.provider %q must be %s or %s", c.Search.Provider, ProviderTavily, ProviderNone))
	}
	if !oneOf(c.Search.Cache.Backend, CacheMemory, CacheRedis, ProviderNone, "") {
		errs = append(errs, fmt.Errorf("search.cache.backend %q is not supported", c.Search.Cache.Backend))
	}
	if c.Search.Cache.Backend == CacheRedis && c.Search.Cache.Addr == "" {
		errs = append(errs, errors.New("search.cache.addr is required for the redis backend"))
	}
	if !oneOf(c.Session.Backend, StoreFile, CacheRedis, "") {
		errs = append(errs, fmt.Errorf("session.backend %q must be %s or %s", c.Session.Backend, StoreFile, CacheRedis))
	}
	if c.Session.Backend == CacheRedis && c.Session.Addr == "" {
		errs = append(errs, errors.New("session.addr is required for the redis backend"))
	}
	for _, p := range c.Session.Redact {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("session.redact %q: %w", p, err))
		}
	}
	if !oneOf(c.History.Counter, CounterTiktoken, CounterEstimate, "") {
		errs = append(errs, fmt.Errorf("history.counter %q must be %s or %s", c.History.Counter, CounterTiktoken, CounterEstimate))
	}
	if c.Engine.MaxSteps < 0 {
		errs = append(errs, errors.New("engine.max_steps must not be negative"))
	}
	for node := range c.Prompts {
		if !domain.NodeID(node).Valid() || domain.NodeID(node) == domain.Halt {
			errs = append(errs, fmt.Errorf("prompts: unknown node %q", node))
		}
	}
	return errors.Join(errs...)
}

// PromptOverrides converts the prompt section into node-keyed overrides.
func (c Config) PromptOverrides() map[domain.NodeID]string {
	out := make(map[domain.NodeID]string, len(c.Prompts))
	for node, prompt := range c.Prompts {
		out[domain.NodeID(node)] = prompt
	}
	return out
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Duration is a time.Duration written as a string ("10m") in YAML and JSON.
type Duration time.Duration

// Std returns the standard library duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	return d.parse(s)
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	return d.parse(node.Value)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
