// Package config loads tmengine settings from flags, a config file and
// TMENGINE_* environment variables through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/dasmlab/tmengine/pkg/translate"
)

// EnvPrefix prefixes environment overrides, e.g. TMENGINE_STORE_PATH.
const EnvPrefix = "TMENGINE"

// Config is the full server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Memory   MemoryConfig   `mapstructure:"memory"`
	Fallback FallbackConfig `mapstructure:"fallback"`
	Import   ImportConfig   `mapstructure:"import"`
}

type ServerConfig struct {
	GRPCPort int `mapstructure:"grpc_port"`
	HTTPPort int `mapstructure:"http_port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Path          string        `mapstructure:"path"`
	Timeout       time.Duration `mapstructure:"timeout"`
	BusyTimeoutMS int           `mapstructure:"busy_timeout_ms"`
}

type MemoryConfig struct {
	SerializeWrites bool `mapstructure:"serialize_writes"`
	Concurrency     int  `mapstructure:"concurrency"`
}

type FallbackConfig struct {
	Engine  string        `mapstructure:"engine"`
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
	Breaker BreakerConfig `mapstructure:"breaker"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

type ImportConfig struct {
	Workers int `mapstructure:"workers"`
}

// SetDefaults registers the default of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.grpc_port", 50051)
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.path", "tmengine.db")
	v.SetDefault("store.timeout", 10*time.Second)
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("memory.serialize_writes", false)
	v.SetDefault("memory.concurrency", 8)
	v.SetDefault("fallback.engine", string(translate.EngineLibreTranslate))
	v.SetDefault("fallback.url", "")
	v.SetDefault("fallback.api_key", "")
	v.SetDefault("fallback.model", "")
	v.SetDefault("fallback.timeout", 30*time.Second)
	v.SetDefault("fallback.breaker.max_failures", 5)
	v.SetDefault("fallback.breaker.open_timeout", 30*time.Second)
	v.SetDefault("import.workers", 4)
}

// InitViper prepares v: defaults, environment binding and, when cfgFile is
// empty, a search for .tmengine.yaml in the home and working directories.
// A missing config file is not an error.
func InitViper(v *viper.Viper, cfgFile string) error {
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(".tmengine")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", filepath.Base(cfgFile), err)
	}
	return nil
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var problems []string
	if c.Server.GRPCPort <= 0 || c.Server.GRPCPort > 65535 {
		problems = append(problems, fmt.Sprintf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.Server.HTTPPort < 0 || c.Server.HTTPPort > 65535 {
		problems = append(problems, fmt.Sprintf("server.http_port %d out of range", c.Server.HTTPPort))
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, fmt.Sprintf("log.level: %v", err))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		problems = append(problems, fmt.Sprintf("log.format %q is not text or json", c.Log.Format))
	}
	if c.Store.Path == "" {
		problems = append(problems, "store.path is empty")
	}
	if c.Store.Timeout <= 0 {
		problems = append(problems, "store.timeout must be positive")
	}
	if c.Memory.Concurrency <= 0 {
		problems = append(problems, "memory.concurrency must be positive")
	}
	engine, err := translate.ParseEngineType(c.Fallback.Engine)
	if err != nil {
		problems = append(problems, fmt.Sprintf("fallback.engine: %v", err))
	} else {
		c.Fallback.Engine = string(engine)
		if engine == translate.EngineOpenAI && c.Fallback.APIKey == "" {
			problems = append(problems, "fallback.api_key is required for the openai engine")
		}
	}
	if c.Import.Workers <= 0 {
		problems = append(problems, "import.workers must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// TranslatorConfig converts the fallback section for translate.NewTranslator.
func (c *Config) TranslatorConfig(logger *logrus.Logger) translate.Config {
	return translate.Config{
		Engine:  translate.EngineType(c.Fallback.Engine),
		BaseURL: c.Fallback.URL,
		APIKey:  c.Fallback.APIKey,
		Model:   c.Fallback.Model,
		Timeout: c.Fallback.Timeout,
		Breaker: translate.BreakerSettings{
			MaxFailures: c.Fallback.Breaker.MaxFailures,
			OpenTimeout: c.Fallback.Breaker.OpenTimeout,
		},
		Logger: logger,
	}
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	if level, err := logrus.ParseLevel(c.Log.Level); err == nil {
		logger.SetLevel(level)
	}
	if c.Log.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	}
	return logger
}
