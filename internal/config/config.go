package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	AuthURL     string        `mapstructure:"auth_url"`
	AuthTimeout time.Duration `mapstructure:"auth_timeout"`

	WorkerCount      int           `mapstructure:"worker_count"`
	WorkerDeathGrace time.Duration `mapstructure:"worker_death_grace"`
	MediaCallTimeout time.Duration `mapstructure:"media_call_timeout"`

	JoinLimit    int           `mapstructure:"join_limit"`
	JoinWindow   time.Duration `mapstructure:"join_window"`
	SignalLimit  int           `mapstructure:"signal_limit"`
	SignalWindow time.Duration `mapstructure:"signal_window"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")

	v.SetDefault("auth_timeout", "3s")

	v.SetDefault("worker_count", 4)
	v.SetDefault("worker_death_grace", "3s")
	v.SetDefault("media_call_timeout", "5s")

	v.SetDefault("join_limit", 5)
	v.SetDefault("join_window", "60s")
	v.SetDefault("signal_limit", 30)
	v.SetDefault("signal_window", "10s")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
