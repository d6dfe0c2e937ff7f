package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Session  SessionConfig  `yaml:"session"`
	Tools    ToolsConfig    `yaml:"tools"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// ServerConfig holds HTTP gateway settings.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RequestsPerMin int    `yaml:"requests_per_min"`
	Burst          int    `yaml:"burst"`
}

// LLMConfig holds chat-completion provider settings.
type LLMConfig struct {
	Provider       ProviderConfig       `yaml:"provider"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ProviderConfig holds settings for the chat-completion provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Dialect     string        `yaml:"dialect"` // "tools" (tool_calls array) or "functions" (legacy function_call)
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// PoolConfig holds HTTP connection pool settings for the provider client.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// CircuitBreakerConfig holds circuit breaker settings for the provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// SessionConfig holds conversation retention settings.
type SessionConfig struct {
	MaxMessages  int           `yaml:"max_messages"`  // FIFO retention bound per session
	SystemPrompt string        `yaml:"system_prompt"` // synthesized fresh each turn, never persisted
	ReapInterval time.Duration `yaml:"reap_interval"` // cron period for stale session cleanup
	MaxAge       time.Duration `yaml:"max_age"`       // sessions idle longer than this are reaped
}

// ToolsConfig holds tool system settings.
type ToolsConfig struct {
	// Greeting prefixes that suppress tool advertisement for the turn.
	GreetingPrefixes []string `yaml:"greeting_prefixes"`

	RepoSearchEnabled bool          `yaml:"repo_search_enabled"`
	RepoSearchBaseURL string        `yaml:"repo_search_base_url"`
	RepoSearchTimeout time.Duration `yaml:"repo_search_timeout"`
	RepoSearchPerMin  int           `yaml:"repo_search_per_min"`
	RepoSearchLimit   int           `yaml:"repo_search_limit"`
}

// BridgeConfig holds WhatsApp bridge settings.
type BridgeConfig struct {
	Enabled        bool          `yaml:"enabled"`
	APIURL         string        `yaml:"api_url"`
	ContactTimeout time.Duration `yaml:"contact_timeout"`
	SendTimeout    time.Duration `yaml:"send_timeout"`
	StatusTimeout  time.Duration `yaml:"status_timeout"`
	StatusCacheTTL time.Duration `yaml:"status_cache_ttl"`
	ContactLimit   int           `yaml:"contact_limit"`

	// External bridge process supervision.
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
	WorkDir    string   `yaml:"work_dir"`
	StartGrace time.Duration `yaml:"start_grace"`

	// Inbound message ingestion.
	Listen       bool          `yaml:"listen"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":5000",
			RequestsPerMin: 100,
			Burst:          20,
		},
		LLM: LLMConfig{
			Provider: ProviderConfig{
				Name:        "openai",
				BaseURL:     "https://api.openai.com/v1",
				Model:       "gpt-4.1-nano",
				Dialect:     "tools",
				ConnTimeout: 10 * time.Second,
				RespTimeout: 60 * time.Second,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Session: SessionConfig{
			MaxMessages:  10,
			SystemPrompt: "Eres un asistente útil. Responde de forma concisa.",
			ReapInterval: 10 * time.Minute,
			MaxAge:       24 * time.Hour,
		},
		Tools: ToolsConfig{
			GreetingPrefixes:  []string{"hola", "hi", "hello"},
			RepoSearchEnabled: true,
			RepoSearchBaseURL: "https://api.github.com",
			RepoSearchTimeout: 10 * time.Second,
			RepoSearchPerMin:  30,
			RepoSearchLimit:   5,
		},
		Bridge: BridgeConfig{
			Enabled:        false,
			APIURL:         "http://localhost:8080",
			ContactTimeout: 5 * time.Second,
			SendTimeout:    10 * time.Second,
			StatusTimeout:  2 * time.Second,
			StatusCacheTTL: 5 * time.Second,
			ContactLimit:   5,
			StartGrace:     2 * time.Second,
			Listen:         false,
			PollInterval:   5 * time.Second,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file and applies env var overrides.
// A missing file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			return cfg, Validate(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps COURIER_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("COURIER_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("COURIER_LLM_BASE_URL"); v != "" {
		cfg.LLM.Provider.BaseURL = v
	}
	if v := os.Getenv("COURIER_LLM_API_KEY"); v != "" {
		cfg.LLM.Provider.APIKey = v
	}
	if v := os.Getenv("COURIER_LLM_MODEL"); v != "" {
		cfg.LLM.Provider.Model = v
	}
	if v := os.Getenv("COURIER_LLM_DIALECT"); v != "" {
		cfg.LLM.Provider.Dialect = v
	}
	if v := os.Getenv("COURIER_SESSION_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Session.MaxMessages = n
		}
	}
	if v := os.Getenv("COURIER_BRIDGE_ENABLED"); v == "true" {
		cfg.Bridge.Enabled = true
	}
	if v := os.Getenv("COURIER_BRIDGE_API_URL"); v != "" {
		cfg.Bridge.APIURL = v
	}
	if v := os.Getenv("COURIER_BRIDGE_COMMAND"); v != "" {
		cfg.Bridge.Command = v
	}
	if v := os.Getenv("COURIER_BRIDGE_WORK_DIR"); v != "" {
		cfg.Bridge.WorkDir = v
	}
	if v := os.Getenv("COURIER_BRIDGE_LISTEN"); v == "true" {
		cfg.Bridge.Listen = true
	}
	if v := os.Getenv("COURIER_BRIDGE_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Bridge.PollInterval = d
		}
	}
	if v := os.Getenv("COURIER_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("COURIER_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("COURIER_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("COURIER_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// Validate checks cross-field constraints.
func Validate(cfg *Config) error {
	if cfg.Session.MaxMessages <= 0 {
		return fmt.Errorf("session.max_messages must be > 0")
	}
	switch cfg.LLM.Provider.Dialect {
	case "tools", "functions":
	default:
		return fmt.Errorf("llm.provider.dialect must be %q or %q, got %q",
			"tools", "functions", cfg.LLM.Provider.Dialect)
	}
	if cfg.Bridge.Enabled && cfg.Bridge.APIURL == "" {
		return fmt.Errorf("bridge.api_url is required when bridge is enabled")
	}
	return nil
}
