// Package config loads the client configuration.
package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds every tunable of the client.
type Config struct {
	Env       string    `yaml:"env" env:"BIBLEDIVE_ENV" env-default:"local"`
	API       API       `yaml:"api"`
	Websocket Websocket `yaml:"websocket"`
}

// API configures the HTTP auth endpoints.
type API struct {
	BaseURL string `yaml:"base_url" env:"BIBLEDIVE_API_URL" env-default:"http://localhost:8080/api-v1"`
}

// Websocket configures the realtime channel.
type Websocket struct {
	Endpoint   string        `yaml:"endpoint" env:"BIBLEDIVE_WS_URL" env-default:"ws://localhost:8080/ws"`
	RetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
	MaxRetries int           `yaml:"max_retries" env-default:"5"`
	FlushDelay time.Duration `yaml:"flush_delay" env-default:"50ms"`
}

// MustLoad reads the config from the -config flag or CONFIG_PATH, falling
// back to env-defaults when neither is set.
func MustLoad() *Config {
	path := fetchConfigPath()

	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			panic("failed to read config from env: " + err.Error())
		}
		return &cfg
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		panic("config file does not exist: " + path)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		panic("failed to read config: " + err.Error())
	}
	return &cfg
}

// fetchConfigPath resolves the config file path from the -config flag, then
// the CONFIG_PATH environment variable.
func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}
	return res
}
