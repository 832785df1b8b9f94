// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Explorer ExplorerConfig `mapstructure:"explorer"`
	RPC      RPCConfig      `mapstructure:"rpc"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Server   ServerConfig   `mapstructure:"server"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// ExplorerConfig contains block-explorer API configuration
type ExplorerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RequestDelay   time.Duration `mapstructure:"request_delay"`
}

// RPCConfig configures the optional JSON-RPC node used for code lookups.
// When NodeURL is empty the explorer proxy endpoint is used instead.
type RPCConfig struct {
	NodeURL        string        `mapstructure:"node_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // postgres, sqlite
	ConnectionString string        `mapstructure:"connection_string"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Database         string        `mapstructure:"database"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ServerConfig contains the optional status server configuration
type ServerConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("ENRICHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed variables shared with the rest of the data stack
	bindEnv(v, "storage.host", "POSTGRES_HOST")
	bindEnv(v, "storage.port", "POSTGRES_PORT")
	bindEnv(v, "storage.database", "POSTGRES_DB")
	bindEnv(v, "storage.user", "POSTGRES_USER")
	bindEnv(v, "storage.password", "POSTGRES_PASSWORD")
	bindEnv(v, "storage.ssl_mode", "POSTGRES_SSLMODE")
	bindEnv(v, "storage.connection_string", "DATABASE_URL")
	bindEnv(v, "explorer.api_key", "ETHERSCAN_API_KEY")
	bindEnv(v, "explorer.base_url", "ETHERSCAN_URL")
	bindEnv(v, "rpc.node_url", "RPC_NODE_URL")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

func bindEnv(v *viper.Viper, key, env string) {
	// BindEnv only fails when called without a key
	_ = v.BindEnv(key, "ENRICHER_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "evm-address-enricher")
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("explorer.base_url", "https://api.etherscan.io/api")
	v.SetDefault("explorer.request_timeout", "10s")
	// Etherscan free tier allows 5 req/s
	v.SetDefault("explorer.request_delay", "250ms")

	v.SetDefault("rpc.request_timeout", "10s")

	v.SetDefault("storage.type", "postgres")
	v.SetDefault("storage.port", 5432)
	v.SetDefault("storage.ssl_mode", "disable")
	v.SetDefault("storage.max_connections", 4)
	v.SetDefault("storage.max_idle_time", "15m")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8081)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.enable_metrics", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
}

// DSN returns the database connection string. An explicit connection string
// wins; otherwise a postgres URL is assembled from the individual fields.
func (s StorageConfig) DSN() string {
	if s.ConnectionString != "" {
		return s.ConnectionString
	}
	if !isPostgres(s.Type) {
		return ""
	}
	if s.Host == "" || s.Database == "" {
		return ""
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", s.Host, s.Port),
		Path:   "/" + s.Database,
	}
	if s.User != "" {
		if s.Password != "" {
			u.User = url.UserPassword(s.User, s.Password)
		} else {
			u.User = url.User(s.User)
		}
	}
	if s.SSLMode != "" {
		q := url.Values{}
		q.Set("sslmode", s.SSLMode)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// RedactedDSN returns DSN with the password masked, for logging
func (s StorageConfig) RedactedDSN() string {
	dsn := s.DSN()
	u, err := url.Parse(dsn)
	if err != nil || u.User == nil {
		return dsn
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Explorer.BaseURL == "" {
		return fmt.Errorf("explorer base URL is required")
	}
	if _, err := url.ParseRequestURI(c.Explorer.BaseURL); err != nil {
		return fmt.Errorf("explorer base URL is invalid: %w", err)
	}
	if c.Explorer.APIKey == "" {
		return fmt.Errorf("explorer API key is required")
	}
	if c.Explorer.RequestTimeout <= 0 {
		return fmt.Errorf("explorer request timeout must be positive")
	}
	if c.Explorer.RequestDelay < 0 {
		return fmt.Errorf("explorer request delay must not be negative")
	}
	switch strings.ToLower(c.Storage.Type) {
	case "postgres", "postgresql", "sqlite":
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}
	if c.Storage.DSN() == "" {
		return fmt.Errorf("storage connection string or postgres host/database is required")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server port must be positive")
	}
	return nil
}

func isPostgres(storageType string) bool {
	t := strings.ToLower(storageType)
	return t == "postgres" || t == "postgresql"
}
