package config

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/avasilakis/llm-gateway/internal/retry"
)

const (
	EnvDev     = "dev"
	EnvStaging = "staging"
	EnvProd    = "prod"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderMock      = "mock"
)

type ServerConfig struct {
	Address     string `mapstructure:"address"`
	Environment string `mapstructure:"environment"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	AddSource bool   `mapstructure:"add_source"`
}

type BreakerConfig struct {
	FailureThreshold int    `mapstructure:"failure_threshold"`
	Cooldown         string `mapstructure:"cooldown"`
}

type RetryConfig struct {
	MaxAttempts int     `mapstructure:"max_attempts"`
	BaseBackoff string  `mapstructure:"base_backoff"`
	Multiplier  float64 `mapstructure:"multiplier"`
}

type BackendConfig struct {
	Name      string  `mapstructure:"name"`
	Provider  string  `mapstructure:"provider"`
	Model     string  `mapstructure:"model"`
	APIKeyEnv string  `mapstructure:"api_key_env"`
	BaseURL   string  `mapstructure:"base_url"`
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

type WatcherConfig struct {
	Interval string `mapstructure:"interval"`
}

type Config struct {
	Server        ServerConfig    `mapstructure:"server"`
	Logging       LoggingConfig   `mapstructure:"logging"`
	Breaker       BreakerConfig   `mapstructure:"breaker"`
	Retry         RetryConfig     `mapstructure:"retry"`
	Watcher       WatcherConfig   `mapstructure:"watcher"`
	Backends      []BackendConfig `mapstructure:"backends"`
	FallbackChain []string        `mapstructure:"fallback_chain"`
}

func Load() (*Config, error) {
	viper.SetDefault("server.environment", EnvDev)
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("logging.level", LogLevelInfo)
	viper.SetDefault("breaker.failure_threshold", 5)
	viper.SetDefault("breaker.cooldown", "30s")
	viper.SetDefault("retry.max_attempts", 3)
	viper.SetDefault("retry.base_backoff", "500ms")
	viper.SetDefault("retry.multiplier", 2.0)
	viper.SetDefault("watcher.interval", "10s")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./config")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Error("failed to read config file", slog.String("error", err.Error()))
			return nil, err
		}
		slog.Warn("config file not found, using defaults and environment variables")
	} else {
		slog.Info("loaded config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("failed to unmarshal config", slog.String("error", err.Error()))
		return nil, err
	}

	// An empty chain falls back to declaration order.
	if len(cfg.FallbackChain) == 0 {
		for _, b := range cfg.Backends {
			cfg.FallbackChain = append(cfg.FallbackChain, b.Name)
		}
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	declared := make(map[string]bool, len(c.Backends))
	for _, b := range c.Backends {
		declared[b.Name] = true
	}

	return validation.ValidateStruct(c,
		validation.Field(&c.Server,
			validation.Required,
			validation.By(func(value interface{}) error {
				sc, ok := value.(ServerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a ServerConfig")
				}
				return validation.ValidateStruct(&sc,
					validation.Field(&sc.Environment,
						validation.Required,
						validation.In(EnvDev, EnvStaging, EnvProd),
					),
					validation.Field(&sc.Address,
						validation.Required,
						validation.By(validateHostPort),
					),
				)
			}),
		),
		validation.Field(&c.Logging,
			validation.By(func(value interface{}) error {
				lc, ok := value.(LoggingConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a LoggingConfig")
				}
				return validation.ValidateStruct(&lc,
					validation.Field(&lc.Level,
						validation.Required,
						validation.In(LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError),
					),
				)
			}),
		),
		validation.Field(&c.Breaker,
			validation.By(func(value interface{}) error {
				bc, ok := value.(BreakerConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a BreakerConfig")
				}
				return validation.ValidateStruct(&bc,
					validation.Field(&bc.FailureThreshold, validation.Required, validation.Min(1)),
					validation.Field(&bc.Cooldown, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Retry,
			validation.By(func(value interface{}) error {
				rc, ok := value.(RetryConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a RetryConfig")
				}
				return validation.ValidateStruct(&rc,
					validation.Field(&rc.MaxAttempts, validation.Required, validation.Min(1)),
					validation.Field(&rc.BaseBackoff, validation.Required, validation.By(validateDuration)),
					validation.Field(&rc.Multiplier, validation.Required, validation.Min(1.0)),
				)
			}),
		),
		validation.Field(&c.Watcher,
			validation.By(func(value interface{}) error {
				wc, ok := value.(WatcherConfig)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a WatcherConfig")
				}
				return validation.ValidateStruct(&wc,
					validation.Field(&wc.Interval, validation.Required, validation.By(validateDuration)),
				)
			}),
		),
		validation.Field(&c.Backends,
			validation.Each(validation.By(validateBackend)),
		),
		validation.Field(&c.FallbackChain,
			validation.Each(validation.By(func(value interface{}) error {
				name, ok := value.(string)
				if !ok {
					return validation.NewError("validation_invalid_type", "must be a string")
				}
				if !declared[name] {
					return validation.NewError("validation_unknown_backend",
						fmt.Sprintf("fallback chain references undeclared backend %q", name))
				}
				return nil
			})),
		),
	)
}

// BreakerCooldown returns the parsed breaker cooldown. Validate has
// already proven the string parses.
func (c *Config) BreakerCooldown() time.Duration {
	d, _ := time.ParseDuration(c.Breaker.Cooldown)
	return d
}

// WatcherInterval returns the parsed breaker-watcher interval.
func (c *Config) WatcherInterval() time.Duration {
	d, _ := time.ParseDuration(c.Watcher.Interval)
	return d
}

// RetryPolicy converts the retry section into the executor's policy.
func (c *Config) RetryPolicy() retry.Policy {
	base, _ := time.ParseDuration(c.Retry.BaseBackoff)
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseBackoff: base,
		Multiplier:  c.Retry.Multiplier,
	}
}

func validateBackend(value interface{}) error {
	bc, ok := value.(BackendConfig)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a BackendConfig")
	}
	return validation.ValidateStruct(&bc,
		validation.Field(&bc.Name, validation.Required),
		validation.Field(&bc.Provider,
			validation.Required,
			validation.In(ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderMock),
		),
		validation.Field(&bc.BaseURL, is.URL),
		validation.Field(&bc.RateLimit, validation.Min(0.0)),
		validation.Field(&bc.Burst, validation.Min(0)),
	)
}

func validateDuration(value interface{}) error {
	s, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}
	if _, err := time.ParseDuration(s); err != nil {
		return validation.NewError("validation_invalid_duration", "must be a parseable duration")
	}
	return nil
}

func validateHostPort(value interface{}) error {
	addr, ok := value.(string)
	if !ok {
		return validation.NewError("validation_invalid_type", "must be a string")
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return validation.NewError("validation_invalid_hostport", "must be in host:port format")
	}
	if port == "" {
		return validation.NewError("validation_invalid_port", "port cant be empty")
	}
	if host != "" {
		if err := is.Host.Validate(host); err != nil {
			return validation.NewError("validation_invalid_host", "invalid host")
		}
	}

	return nil
}
