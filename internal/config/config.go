// Package config reads knot's settings from defaults, an optional config file, KNOT_ environment
// variables and command line flags, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/HallyG/knot/internal/plaid"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix  = "KNOT"
	appDir     = "knot"
	configName = "config"

	KeyPlaidClientID        = "plaid_client_id"
	KeyPlaidSecret          = "plaid_secret"
	KeyPlaidEnvironment     = "plaid_environment"
	KeyPlaidBaseURL         = "plaid_base_url"
	KeyDataFile             = "data_file"
	KeyTimeout              = "timeout"
	KeyMaxConcurrentFetches = "max_concurrent_fetches"

	EnvironmentSandbox     = "sandbox"
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"

	defaultTimeout = 30 * time.Second
)

var ErrMissingCredentials = errors.New("plaid client id and secret are required (set KNOT_PLAID_CLIENT_ID and KNOT_PLAID_SECRET)")

type Config struct {
	PlaidClientID        string        `mapstructure:"plaid_client_id" json:"plaid_client_id"`
	PlaidSecret          string        `mapstructure:"plaid_secret" json:"-"`
	PlaidEnvironment     string        `mapstructure:"plaid_environment" json:"plaid_environment"`
	PlaidBaseURL         string        `mapstructure:"plaid_base_url" json:"plaid_base_url"` // Optional: overrides the environment's host
	DataFile             string        `mapstructure:"data_file" json:"data_file"`
	Timeout              time.Duration `mapstructure:"timeout" json:"timeout"`
	MaxConcurrentFetches int           `mapstructure:"max_concurrent_fetches" json:"max_concurrent_fetches"` // 0 means unlimited
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.PlaidEnvironment, validation.Required, validation.In(EnvironmentSandbox, EnvironmentDevelopment, EnvironmentProduction)),
		validation.Field(&c.PlaidBaseURL, is.URL),
		validation.Field(&c.DataFile, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxConcurrentFetches, validation.Min(0)),
	)
}

// RequireCredentials reports whether the aggregator credentials needed for remote calls are set.
func (c Config) RequireCredentials() error {
	if c.PlaidClientID == "" || c.PlaidSecret == "" {
		return ErrMissingCredentials
	}

	return nil
}

func (c Config) BaseURL() string {
	if c.PlaidBaseURL != "" {
		return strings.TrimRight(c.PlaidBaseURL, "/")
	}

	return plaid.BaseURL(c.PlaidEnvironment)
}

type Loader struct {
	v           *viper.Viper
	searchPaths []string
}

type Option func(*Loader)

// WithSearchPaths replaces the directories searched for config.{yaml,toml,json} when no file is given.
func WithSearchPaths(paths ...string) Option {
	return func(l *Loader) {
		l.searchPaths = paths
	}
}

func NewLoader(opts ...Option) *Loader {
	l := &Loader{v: viper.New()}

	if dir, err := os.UserConfigDir(); err == nil {
		l.searchPaths = []string{filepath.Join(dir, appDir)}
	}

	for _, opt := range opts {
		if opt == nil {
			continue
		}

		opt(l)
	}

	l.v.SetDefault(KeyPlaidClientID, "")
	l.v.SetDefault(KeyPlaidSecret, "")
	l.v.SetDefault(KeyPlaidEnvironment, EnvironmentSandbox)
	l.v.SetDefault(KeyPlaidBaseURL, "")
	l.v.SetDefault(KeyDataFile, defaultDataFile())
	l.v.SetDefault(KeyTimeout, defaultTimeout)
	l.v.SetDefault(KeyMaxConcurrentFetches, 0)

	l.v.SetEnvPrefix(envPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	l.v.AutomaticEnv()

	return l
}

func defaultDataFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join("."+appDir, "snapshot.json")
	}

	return filepath.Join(dir, appDir, "snapshot.json")
}

// BindFlag lets flag override key when the flag is set on the command line.
func (l *Loader) BindFlag(key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("bind %s: flag not found", key)
	}

	return l.v.BindPFlag(key, flag)
}

// Load reads configFile, or the first config file found on the search paths when configFile is empty,
// and returns the validated result.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile != "" {
		l.v.SetConfigFile(configFile)
	} else {
		l.v.SetConfigName(configName)
		for _, path := range l.searchPaths {
			l.v.AddConfigPath(path)
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// ConfigFileUsed returns the config file read by Load, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}
