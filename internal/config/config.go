package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	TOTP     TOTPConfig     `mapstructure:"totp"`
	Lockout  LockoutConfig  `mapstructure:"lockout"`
	Backup   BackupConfig   `mapstructure:"backup"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Security SecurityConfig `mapstructure:"security"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	HTTPS           bool          `mapstructure:"https"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	SSLRootCert     string        `mapstructure:"ssl_root_cert"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	DB       int    `mapstructure:"db"`
	Password string `mapstructure:"password"`
	PoolSize int    `mapstructure:"pool_size"`
}

type TOTPConfig struct {
	Issuer        string `mapstructure:"issuer"`
	EncryptionKey string `mapstructure:"encryption_key"`
}

// LockoutConfig tunes the failed-attempt state machine
type LockoutConfig struct {
	Threshold     int           `mapstructure:"threshold"`
	Window        time.Duration `mapstructure:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration"`
}

// BackupConfig tunes backup code generation
type BackupConfig struct {
	Count  int `mapstructure:"count"`
	Length int `mapstructure:"length"`
}

// EventsConfig tunes the security event recorder
type EventsConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
	MaxAge         int      `mapstructure:"max_age"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	InternalServiceSecret string `mapstructure:"internal_service_secret"` // JWT secret for internal service-to-service calls
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/bfc-mfa/")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("BFC")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("totp.encryption_key", "TOTP_ENCRYPTION_KEY")
	viper.BindEnv("security.internal_service_secret", "INTERNAL_SERVICE_SECRET")

	// Set defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout", 15*time.Second)
	viper.SetDefault("totp.issuer", "BFC-VPN")
	viper.SetDefault("lockout.threshold", 3)
	viper.SetDefault("lockout.window", 15*time.Minute)
	viper.SetDefault("lockout.block_duration", 15*time.Minute)
	viper.SetDefault("backup.count", 10)
	viper.SetDefault("backup.length", 10)
	viper.SetDefault("events.buffer_size", 256)
	viper.SetDefault("events.flush_interval", 5*time.Second)
	viper.SetDefault("events.flush_timeout", 5*time.Second)
	viper.SetDefault("events.max_backoff", 30*time.Second)

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Load from env if not in config
	if cfg.Database.Password == "" {
		cfg.Database.Password = os.Getenv("DB_PASSWORD")
	}
	if cfg.Redis.Password == "" {
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
	if cfg.TOTP.EncryptionKey == "" {
		cfg.TOTP.EncryptionKey = os.Getenv("TOTP_ENCRYPTION_KEY")
	}
	if cfg.Security.InternalServiceSecret == "" {
		cfg.Security.InternalServiceSecret = os.Getenv("INTERNAL_SERVICE_SECRET")
	}

	// CRITICAL: Validate required credentials
	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD environment variable is required")
	}
	if cfg.Redis.Password == "" {
		return nil, fmt.Errorf("REDIS_PASSWORD environment variable is required")
	}
	if cfg.TOTP.EncryptionKey == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY environment variable is required")
	}
	if cfg.Security.InternalServiceSecret == "" {
		return nil, fmt.Errorf("INTERNAL_SERVICE_SECRET environment variable is required")
	}

	// Default SSL mode
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "require"
	}

	// Default TOTP issuer
	if cfg.TOTP.Issuer == "" {
		cfg.TOTP.Issuer = "BFC-VPN"
	}

	return &cfg, nil
}

// DSN returns PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
	if c.SSLRootCert != "" {
		dsn += "&sslrootcert=" + c.SSLRootCert
	}
	return dsn
}
