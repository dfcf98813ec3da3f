// Package config resolves Verity configuration from flags, VERITY_* environment
// variables, ~/.verity/config.yaml and built-in defaults, in that order.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/ppiankov/verity/internal/model"
)

// EnvPrefix is the prefix of environment overrides, e.g. VERITY_SETTINGS_APIENDPOINT
const EnvPrefix = "VERITY"

// Source supplies the settings a scan session starts from
type Source interface {
	Settings(ctx context.Context) (model.Settings, error)
}

// Static is a Source that always returns the same settings
type Static model.Settings

// Settings returns the wrapped value
func (s Static) Settings(ctx context.Context) (model.Settings, error) {
	if err := ctx.Err(); err != nil {
		return model.Settings{}, err
	}
	return model.Settings(s), nil
}

// ViperSource reads settings from a viper instance on every call, so edits
// to the underlying config are picked up by the next session
type ViperSource struct {
	v *viper.Viper
}

// NewViperSource wraps v
func NewViperSource(v *viper.Viper) *ViperSource {
	return &ViperSource{v: v}
}

// Settings loads and validates the settings group
func (s *ViperSource) Settings(ctx context.Context) (model.Settings, error) {
	if err := ctx.Err(); err != nil {
		return model.Settings{}, err
	}
	cfg, err := Load(s.v)
	if err != nil {
		return model.Settings{}, err
	}
	return cfg.Settings, nil
}

// SetDefaults registers every default with v so environment overrides resolve
func SetDefaults(v *viper.Viper) {
	d := model.DefaultConfig()

	v.SetDefault("settings.autoVerify", d.Settings.AutoVerify)
	v.SetDefault("settings.darkPatternDetection", d.Settings.DarkPatternDetection)
	v.SetDefault("settings.domainTrustScore", d.Settings.DomainTrustScore)
	v.SetDefault("settings.apiEndpoint", d.Settings.APIEndpoint)
	v.SetDefault("settings.verificationDelay", d.Settings.VerificationDelay)

	v.SetDefault("client.attempts", d.Client.Attempts)
	v.SetDefault("client.attempt_timeout", d.Client.AttemptTimeout)
	v.SetDefault("client.backoff_base", d.Client.BackoffBase)
	v.SetDefault("client.concurrency", d.Client.Concurrency)
	v.SetDefault("client.requests_per_second", d.Client.RequestsPerSecond)
	v.SetDefault("client.burst", d.Client.Burst)
	v.SetDefault("client.user_agent", d.Client.UserAgent)
	v.SetDefault("client.http_proxy", d.Client.HTTPProxy)
	v.SetDefault("client.https_proxy", d.Client.HTTPSProxy)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_ttl", d.Cache.MemoryTTL)
	v.SetDefault("cache.disk_ttl", d.Cache.DiskTTL)

	v.SetDefault("scan.min_unit_length", d.Scan.MinUnitLength)
	v.SetDefault("scan.fetch_timeout", d.Scan.FetchTimeout)
	v.SetDefault("scan.max_body_bytes", d.Scan.MaxBodyBytes)
	v.SetDefault("scan.respect_robots", d.Scan.RespectRobots)
	v.SetDefault("scan.insecure_tls", d.Scan.InsecureTLS)
	v.SetDefault("scan.user_agent", d.Scan.UserAgent)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.session_ttl", d.Server.SessionTTL)
	v.SetDefault("server.allow_origins", d.Server.AllowOrigins)

	v.SetDefault("llm.provider", d.LLM.Provider)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.max_tokens", d.LLM.MaxTokens)
}

// BindEnv enables VERITY_<GROUP>_<KEY> overrides on v
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// New returns a viper instance with defaults and environment binding; when
// cfgFile is empty it looks for ~/.verity/config.yaml
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return v, nil
		}
		v.AddConfigPath(dir)
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return v, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// Dir returns ~/.verity
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".verity"), nil
}

// Load decodes v into a Config over the defaults and validates it.
// The OpenAI key falls back to OPENAI_API_KEY.
func Load(v *viper.Viper) (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Cache.Enabled && cfg.Cache.Dir == "" {
		if dir, err := Dir(); err == nil {
			cfg.Cache.Dir = filepath.Join(dir, "cache")
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and reports every violation
func Validate(cfg *model.Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed %s (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
