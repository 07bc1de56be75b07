package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/errbuilder-go"
	"github.com/spf13/viper"
)

var ErrInvalidConfig = errors.New("invalid configuration")

const (
	EnvPrefix  = "CURATOR"
	DefaultURL = "http://localhost:9200"
)

// Config is the cluster client and run configuration.
type Config struct {
	Host     string
	Username string
	Password string

	InsecureSkipVerify bool

	AWSRegion  string
	AWSProfile string
	AWSService string

	// Timeout bounds every cluster call.
	Timeout       time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
	Workers       int
	// RequestsPerSecond caps mutation calls; zero means no limit.
	RequestsPerSecond float64

	LogLevel  string
	LogFormat string

	PushgatewayURL string
	History        bool
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("aws.service", "es")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("max_retries", 3)
	v.SetDefault("retry_delay", time.Second)
	v.SetDefault("max_retry_delay", 30*time.Second)
	v.SetDefault("workers", 1)
	v.SetDefault("requests_per_second", 0.0)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("history", true)
}

// ReadFile points v at the client config file. An explicit path must exist;
// otherwise curator.yml is looked up in the working directory and the
// config dir, and a missing file is not an error.
func ReadFile(v *viper.Viper, path string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return invalidConfig("reading config file", err)
		}
		return nil
	}

	v.SetConfigName("curator")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if dir, err := Dir(); err == nil {
		v.AddConfigPath(dir)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return invalidConfig("reading config file", err)
	}
	return nil
}

// Load builds a Config from v. The URL comes from the url key, then ES_URL,
// then DefaultURL. Explicit username and password keys override
// credentials embedded in the URL.
func Load(v *viper.Viper) (*Config, error) {
	rawURL := v.GetString("url")
	if rawURL == "" {
		rawURL = os.Getenv("ES_URL")
	}
	if rawURL == "" {
		rawURL = DefaultURL
	}

	cfg, err := ParseURL(rawURL)
	if err != nil {
		return nil, invalidConfig("parsing url", err)
	}
	if u := v.GetString("username"); u != "" {
		cfg.Username = u
		cfg.Password = v.GetString("password")
	}

	cfg.InsecureSkipVerify = v.GetBool("insecure_skip_verify")
	cfg.AWSRegion = v.GetString("aws.region")
	cfg.AWSProfile = v.GetString("aws.profile")
	cfg.AWSService = v.GetString("aws.service")
	cfg.Timeout = v.GetDuration("timeout")
	cfg.MaxRetries = v.GetInt("max_retries")
	cfg.RetryDelay = v.GetDuration("retry_delay")
	cfg.MaxRetryDelay = v.GetDuration("max_retry_delay")
	cfg.Workers = v.GetInt("workers")
	cfg.RequestsPerSecond = v.GetFloat64("requests_per_second")
	cfg.LogLevel = v.GetString("log_level")
	cfg.LogFormat = v.GetString("log_format")
	cfg.PushgatewayURL = v.GetString("pushgateway_url")
	cfg.History = v.GetBool("history")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Timeout < 0:
		return invalidConfig("timeout must not be negative", nil)
	case c.MaxRetries < 0:
		return invalidConfig("max_retries must not be negative", nil)
	case c.Workers < 1:
		return invalidConfig("workers must be at least 1", nil)
	case c.RequestsPerSecond < 0:
		return invalidConfig("requests_per_second must not be negative", nil)
	}
	if c.AWSRegion != "" && c.Username != "" {
		return invalidConfig("aws.region and basic auth credentials are mutually exclusive", nil)
	}
	return nil
}

func ParseURL(rawURL string) (*Config, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid URL: missing scheme or host")
	}

	cfg := &Config{
		Host: fmt.Sprintf("%s://%s", u.Scheme, u.Host),
	}

	if u.User != nil {
		cfg.Username = u.User.Username()
		cfg.Password, _ = u.User.Password()
	}

	return cfg, nil
}

func (c *Config) MaskedURL() string {
	u, _ := url.Parse(c.Host)
	if c.Username != "" {
		return fmt.Sprintf("%s:***@%s", c.Username, u.Host)
	}
	return u.Host
}

func (c *Config) DisplayHost() string {
	u, _ := url.Parse(c.Host)
	return strings.TrimPrefix(u.Host, "www.")
}

// Dir is the per-user directory holding curator.yml and run history.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".curator"), nil
}

func EnsureConfigDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func invalidConfig(msg string, cause error) error {
	wrapped := ErrInvalidConfig
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", ErrInvalidConfig, cause)
	}
	return errbuilder.New().
		WithCode(errbuilder.CodeInvalidArgument).
		WithMsg(msg).
		WithCause(wrapped)
}
