package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Game     GameConfig     `mapstructure:"game"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"min=1,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr" validate:"required,hostname_port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db" validate:"min=0"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	// Postgres connection string; accounts and leaderboard are disabled when empty.
	URL string `mapstructure:"url"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

type GameConfig struct {
	TTL             time.Duration `mapstructure:"ttl" validate:"gt=0"`
	Retention       time.Duration `mapstructure:"retention" validate:"gt=0"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	RoomTTL         time.Duration `mapstructure:"room_ttl" validate:"gt=0"`
	AuditTTL        time.Duration `mapstructure:"audit_ttl" validate:"gt=0"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=error warn info debug trace"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// environment variable names understood in addition to the config file
var envBindings = map[string]string{
	"server.port":           "PORT",
	"redis.addr":            "REDIS_ADDR",
	"redis.password":        "REDIS_PASSWORD",
	"redis.db":              "REDIS_DB",
	"database.url":          "DB_URL",
	"auth.jwt_secret":       "JWT_SECRET",
	"auth.token_ttl":        "TOKEN_TTL",
	"game.ttl":              "GAME_TTL",
	"game.retention":        "GAME_RETENTION",
	"game.cleanup_interval": "CLEANUP_INTERVAL",
	"game.room_ttl":         "ROOM_TTL",
	"game.audit_ttl":        "AUDIT_TTL",
	"logging.level":         "LOG_LEVEL",
	"metrics.enabled":       "METRICS_ENABLED",
}

// LoadConfig reads, in increasing priority: defaults, the optional config file,
// a .env file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("game.ttl", 24*time.Hour)
	v.SetDefault("game.retention", 7*24*time.Hour)
	v.SetDefault("game.cleanup_interval", time.Hour)
	v.SetDefault("game.room_ttl", time.Hour)
	v.SetDefault("game.audit_ttl", 30*24*time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("metrics.enabled", true)
}

func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		if validationErrs, ok := err.(validator.ValidationErrors); ok {
			var messages []string
			for _, e := range validationErrs {
				messages = append(messages, fmt.Sprintf("field '%s' failed validation: %s (value: '%v')", e.Namespace(), e.Tag(), e.Value()))
			}
			return fmt.Errorf("validation failed:\n  %s", strings.Join(messages, "\n  "))
		}
		return err
	}
	return nil
}
