package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type DispatchConfig struct {
	Workers      int           `mapstructure:"workers"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type RateLimitConfig struct {
	DefaultLimit  int64      `mapstructure:"default_limit"`
	DefaultPeriod string     `mapstructure:"default_period"`
	Rules         []RateRule `mapstructure:"rules"`
}

type RateRule struct {
	Endpoint string `mapstructure:"endpoint"`
	Limit    int64  `mapstructure:"limit"`
	Period   string `mapstructure:"period"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("hookd")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/hookd")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("HOOKD")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/hookd.db")

	viper.SetDefault("dispatch.workers", 20)
	viper.SetDefault("dispatch.timeout", 30*time.Second)
	viper.SetDefault("dispatch.poll_interval", 1*time.Second)

	viper.SetDefault("ratelimit.default_limit", 1000)
	viper.SetDefault("ratelimit.default_period", "hour")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
