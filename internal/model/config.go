package model

import "time"

// Config holds the complete Verity configuration
type Config struct {
	Settings Settings     `yaml:"settings" mapstructure:"settings"`
	Client   ClientConfig `yaml:"client" mapstructure:"client"`
	Cache    CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Scan     ScanConfig   `yaml:"scan" mapstructure:"scan"`
	Server   ServerConfig `yaml:"server" mapstructure:"server"`
	LLM      LLMConfig    `yaml:"llm" mapstructure:"llm"`
}

// Settings are the user-facing options the scanner consumes read-only
type Settings struct {
	AutoVerify           bool   `yaml:"autoVerify" mapstructure:"autoVerify" json:"autoVerify"`
	DarkPatternDetection bool   `yaml:"darkPatternDetection" mapstructure:"darkPatternDetection" json:"darkPatternDetection"`
	DomainTrustScore     bool   `yaml:"domainTrustScore" mapstructure:"domainTrustScore" json:"domainTrustScore"`
	APIEndpoint          string `yaml:"apiEndpoint" mapstructure:"apiEndpoint" json:"apiEndpoint" validate:"required,http_url"`
	VerificationDelay    int    `yaml:"verificationDelay" mapstructure:"verificationDelay" json:"verificationDelay" validate:"gte=0"` // milliseconds
}

// Delay returns the auto-scan delay as a duration
func (s Settings) Delay() time.Duration {
	return time.Duration(s.VerificationDelay) * time.Millisecond
}

// ClientConfig controls the verification backend client
type ClientConfig struct {
	Attempts          int           `yaml:"attempts" mapstructure:"attempts" validate:"min=1,max=10"`
	AttemptTimeout    time.Duration `yaml:"attempt_timeout" mapstructure:"attempt_timeout" validate:"gt=0"`
	BackoffBase       time.Duration `yaml:"backoff_base" mapstructure:"backoff_base" validate:"gte=0"`
	Concurrency       int           `yaml:"concurrency" mapstructure:"concurrency" validate:"min=1,max=64"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" mapstructure:"burst" validate:"gte=0"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy" validate:"omitempty,url"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy" validate:"omitempty,url"`
}

// CacheConfig controls caching of authoritative backend answers
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl" validate:"gte=0"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl" validate:"gte=0"`
}

// ScanConfig controls page retrieval and unit selection
type ScanConfig struct {
	MinUnitLength int           `yaml:"min_unit_length" mapstructure:"min_unit_length" validate:"gte=0"`
	FetchTimeout  time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout" validate:"gt=0"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	RespectRobots bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	InsecureTLS   bool          `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	UserAgent     string        `yaml:"user_agent" mapstructure:"user_agent"`
}

// ServerConfig controls `verity serve`
type ServerConfig struct {
	Addr       string        `yaml:"addr" mapstructure:"addr" validate:"required"`
	SessionTTL time.Duration `yaml:"session_ttl" mapstructure:"session_ttl" validate:"gt=0"`

	// AllowOrigins lists CORS origins; empty allows any origin
	AllowOrigins []string `yaml:"allow_origins,omitempty" mapstructure:"allow_origins"`
}

// LLMConfig controls the optional scan digest
type LLMConfig struct {
	Provider  string `yaml:"provider" mapstructure:"provider" validate:"omitempty,oneof=openai"`
	Model     string `yaml:"model" mapstructure:"model"`
	APIKey    string `yaml:"-" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url,omitempty" mapstructure:"base_url" validate:"omitempty,url"`
	Timeout   int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// DefaultUserAgent identifies Verity to backends and sites
const DefaultUserAgent = "Verity/0.1 (+https://github.com/ppiankov/verity)"

// DefaultSettings returns the documented setting defaults
func DefaultSettings() Settings {
	return Settings{
		AutoVerify:           true,
		DarkPatternDetection: true,
		DomainTrustScore:     true,
		APIEndpoint:          "http://localhost:5000",
		VerificationDelay:    2000,
	}
}

// DefaultConfig returns the configuration used when nothing overrides it
func DefaultConfig() *Config {
	return &Config{
		Settings: DefaultSettings(),
		Client: ClientConfig{
			Attempts:          3,
			AttemptTimeout:    10 * time.Second,
			BackoffBase:       time.Second,
			Concurrency:       6,
			RequestsPerSecond: 10,
			Burst:             5,
			UserAgent:         DefaultUserAgent,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Scan: ScanConfig{
			MinUnitLength: 20,
			FetchTimeout:  30 * time.Second,
			MaxBodyBytes:  2_000_000,
			RespectRobots: true,
			UserAgent:     DefaultUserAgent,
		},
		Server: ServerConfig{
			Addr:       "127.0.0.1:8787",
			SessionTTL: 30 * time.Minute,
		},
		LLM: LLMConfig{
			Provider:  "",
			Timeout:   30,
			MaxTokens: 600,
		},
	}
}
