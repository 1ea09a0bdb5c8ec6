// Package config provides configuration management for forge-server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the service configuration.
type Config struct {
	Service  ServiceConfig  `toml:"service"`
	API      APIConfig      `toml:"api"`
	MCP      MCPConfig      `toml:"mcp"`
	LLM      LLMConfig      `toml:"llm"`
	Orchestra OrchestraConfig `toml:"orchestra"`
	Postgres PostgresConfig `toml:"postgres"`
	Logging  LoggingConfig  `toml:"logging"`
	Security SecurityConfig `toml:"security"`
}

// ServiceConfig contains service-level settings.
type ServiceConfig struct {
	Host            string `toml:"host"`
	Port            int    `toml:"port"`
	DataDir         string `toml:"data_dir"`
	PIDFile         string `toml:"pid_file"`
	ShutdownTimeout int    `toml:"shutdown_timeout_seconds"`
	MaxRequestSize  int64  `toml:"max_request_size_bytes"`
	TemplateDir     string `toml:"template_dir"`
}

// APIConfig contains HTTP/SSE API settings.
type APIConfig struct {
	Enabled        bool     `toml:"enabled"`
	AuthToken      string   `toml:"auth_token"`
	AllowedOrigins []string `toml:"allowed_origins"`
	RequestTimeout int      `toml:"request_timeout_seconds"`
}

// MCPConfig controls the optional MCP tool surface mirroring the native
// tool-call loop (start_application, confirm_state, provide_feedback, ...).
type MCPConfig struct {
	Enabled bool `toml:"enabled"`
}

// LLMConfig contains LLM client settings.
type LLMConfig struct {
	Provider       string  `toml:"provider"` // "anthropic" | "genai"
	APIKey         string  `toml:"api_key"`
	PlanningModel  string  `toml:"planning_model"`
	ExecutionModel string  `toml:"execution_model"`
	ValidateModel  string  `toml:"validation_model"`
	MaxTokens      int     `toml:"max_tokens"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSecs    int     `toml:"timeout_seconds"`
	CacheMode      string  `toml:"cache_mode"` // off|record|replay|lru
	CacheDir       string  `toml:"cache_dir"`
	CacheMaxEntries int    `toml:"cache_max_entries"`
}

// OrchestraConfig contains beam-search actor settings.
type OrchestraConfig struct {
	BeamWidth            int `toml:"beam_width"`
	MaxDepth             int `toml:"max_depth"`
	MaxIterationsPerStage int `toml:"max_iterations_per_stage"`
}

// PostgresConfig contains the ephemeral Postgres service settings used by
// workspace.ExecWithPostgres.
type PostgresConfig struct {
	Image                string `toml:"image"`
	StartupTimeoutSeconds int   `toml:"startup_timeout_seconds"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level      string      `toml:"level"`
	Format     string      `toml:"format"`
	Output     StringSlice `toml:"output"`
	TimeFormat string      `toml:"time_format"`
	MaxSizeMB  int         `toml:"max_size_mb"`
	MaxBackups int         `toml:"max_backups"`
	MaxAgeDays int         `toml:"max_age_days"`
	Compress   bool        `toml:"compress"`
}

// StringSlice is a custom type that can unmarshal from either a string or []string.
type StringSlice []string

// UnmarshalTOML implements toml.Unmarshaler for flexible config parsing.
func (s *StringSlice) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case string:
		*s = []string{v}
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return fmt.Errorf("expected string in array, got %T", item)
			}
			result[i] = str
		}
		*s = result
	default:
		return fmt.Errorf("expected string or array, got %T", data)
	}
	return nil
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	TLSEnabled  bool   `toml:"tls_enabled"`
	TLSCertFile string `toml:"tls_cert_file"`
	TLSKeyFile  string `toml:"tls_key_file"`
	CORSEnabled bool   `toml:"cors_enabled"`
}

// DefaultConfig returns the default configuration with all values set.
// Environment variables FORGE_HOST and FORGE_PORT can override defaults.
func DefaultConfig() *Config {
	dataDir := DefaultDataDir()

	host := "127.0.0.1"
	if envHost := os.Getenv("FORGE_HOST"); envHost != "" {
		host = envHost
	}

	port := 8421
	if envPort := os.Getenv("FORGE_PORT"); envPort != "" {
		if p, err := strconv.Atoi(envPort); err == nil {
			port = p
		}
	}

	return &Config{
		Service: ServiceConfig{
			Host:            host,
			Port:            port,
			DataDir:         dataDir,
			PIDFile:         filepath.Join(dataDir, "forge-server.pid"),
			ShutdownTimeout: 30,
			MaxRequestSize:  32 * 1024 * 1024,
			TemplateDir:     filepath.Join(dataDir, "templates", "trpc_agent"),
		},
		API: APIConfig{
			Enabled:        true,
			AuthToken:      os.Getenv("FORGE_AUTH_TOKEN"),
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RequestTimeout: 600,
		},
		MCP: MCPConfig{
			Enabled: true,
		},
		LLM: LLMConfig{
			Provider:        "anthropic",
			APIKey:          os.Getenv("ANTHROPIC_API_KEY"),
			PlanningModel:   "claude-sonnet-4-20250514",
			ExecutionModel:  "claude-sonnet-4-20250514",
			ValidateModel:   "claude-sonnet-4-20250514",
			MaxTokens:       8192,
			Temperature:     0.2,
			TimeoutSecs:     120,
			CacheMode:       "off",
			CacheDir:        filepath.Join(dataDir, "llm-cache"),
			CacheMaxEntries: 500,
		},
		Orchestra: OrchestraConfig{
			BeamWidth:             2,
			MaxDepth:              24,
			MaxIterationsPerStage: 24,
		},
		Postgres: PostgresConfig{
			Image:                 "postgres:17-alpine",
			StartupTimeoutSeconds: 60,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     StringSlice{"file"},
			TimeFormat: "15:04:05.000",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Security: SecurityConfig{
			TLSEnabled:  false,
			CORSEnabled: true,
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "forge-server")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "forge-server")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "forge-server")
	default:
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "forge-server")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".forge-server")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Load loads configuration from a file, merging with defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// LoadFromString loads configuration from a TOML string, merging with defaults.
func LoadFromString(tomlStr string) (*Config, error) {
	cfg := DefaultConfig()

	expanded := os.ExpandEnv(tomlStr)

	if _, err := toml.Decode(expanded, cfg); err != nil {
		return nil, fmt.Errorf("parse config string: %w", err)
	}

	cfg.expandPaths()
	return cfg, nil
}

// expandPaths expands tilde in path fields.
func (c *Config) expandPaths() {
	home, _ := os.UserHomeDir()

	expandTilde := func(path string) string {
		if strings.HasPrefix(path, "~/") {
			return filepath.Join(home, path[2:])
		}
		return path
	}

	c.Service.DataDir = expandTilde(c.Service.DataDir)
	c.Service.PIDFile = expandTilde(c.Service.PIDFile)
	c.Service.TemplateDir = expandTilde(c.Service.TemplateDir)
	c.LLM.CacheDir = expandTilde(c.LLM.CacheDir)
	c.Security.TLSCertFile = expandTilde(c.Security.TLSCertFile)
	c.Security.TLSKeyFile = expandTilde(c.Security.TLSKeyFile)
}

// Save saves the configuration to a file in TOML format.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	return nil
}

// SnapshotDir returns the directory used by pkg/snapshot for checkpoint blobs.
func (c *Config) SnapshotDir() string {
	return filepath.Join(c.Service.DataDir, "snapshots")
}

// SessionDir returns the "sessions" directory under the data directory.
// Tool-processor sessions are held in memory and are not written there.
func (c *Config) SessionDir() string {
	return filepath.Join(c.Service.DataDir, "sessions")
}

// Address returns the host:port the server should bind to.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Service.Host, c.Service.Port)
}

// LogPath returns the path to the service log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Service.DataDir, "logs", "forge-server.log")
}

// PIDPath returns the path to the PID file.
func (c *Config) PIDPath() string {
	if c.Service.PIDFile != "" {
		return c.Service.PIDFile
	}
	return filepath.Join(c.Service.DataDir, "forge-server.pid")
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Service.Port)
	}

	if c.Service.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout_seconds must be at least 1")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0.0 and 1.0")
	}

	if c.Orchestra.BeamWidth < 0 {
		return fmt.Errorf("beam_width cannot be negative")
	}

	if c.Orchestra.MaxDepth < 0 {
		return fmt.Errorf("max_depth cannot be negative")
	}

	switch c.LLM.CacheMode {
	case "", "off", "record", "replay", "lru":
	default:
		return fmt.Errorf("invalid cache_mode: %s (want off|record|replay|lru)", c.LLM.CacheMode)
	}

	if c.Security.TLSEnabled {
		if c.Security.TLSCertFile == "" || c.Security.TLSKeyFile == "" {
			return fmt.Errorf("TLS enabled but cert/key files not specified")
		}
	}

	return nil
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c

	clone.API.AllowedOrigins = append([]string(nil), c.API.AllowedOrigins...)
	clone.Logging.Output = append(StringSlice(nil), c.Logging.Output...)

	return &clone
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Service.DataDir,
		filepath.Dir(c.Service.PIDFile),
		c.LLM.CacheDir,
		c.SnapshotDir(),
		c.SessionDir(),
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
