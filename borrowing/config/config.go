package config

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/Astemirdum/borrow-service/borrowing/internal/server"
	"github.com/Astemirdum/borrow-service/borrowing/internal/service"
	"github.com/Astemirdum/borrow-service/pkg/kafka"
	"github.com/Astemirdum/borrow-service/pkg/logger"
	"github.com/Astemirdum/borrow-service/pkg/postgres"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Server   server.Config   `yaml:"server"`
	Database postgres.Config `yaml:"database"`
	Kafka    kafka.Config
	Policy   service.Policy `yaml:"policy"`
	Log      logger.Log     `yaml:"log"`
}

var (
	once sync.Once
	cfg  Config
)

// NewConfig reads config from environment.
func NewConfig(ops ...Option) *Config {
	once.Do(func() {
		var config Config
		for _, op := range ops {
			op(&config)
		}
		err := envconfig.Process("", &config)
		if err != nil {
			log.Fatal("NewConfig ", err)
		}
		cfg = config
		printConfig(cfg)
	})

	return &cfg
}

func printConfig(cfg Config) {
	jscfg, _ := json.MarshalIndent(cfg, "", "	") //nolint:errcheck
	fmt.Println(string(jscfg))
}

type Option func(*Config)

func WithLogLevel(level zapcore.Level) Option {
	return func(c *Config) {
		c.Log.LogLevel = level
	}
}

func WithWriteTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Server.WriteTimeout = d
	}
}
