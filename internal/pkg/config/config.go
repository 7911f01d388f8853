package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresURL string `env:"POSTGRES_URL,required"`
	RedisAddr   string `env:"REDIS_ADDR" envDefault:""`

	APIServerAddr   string `env:"API_SERVER_ADDR" envDefault:":8080"`
	AdminServerAddr string `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`

	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	CheckWorkers   int           `env:"CHECK_WORKERS" envDefault:"16"`
	ProbesPerSec   float64       `env:"PROBES_PER_SECOND" envDefault:"100"`
	ReloadInterval time.Duration `env:"RELOAD_INTERVAL" envDefault:"30s"`

	DockerSocket string `env:"DOCKER_SOCKET" envDefault:"/var/run/docker.sock"`

	JournalDir         string `env:"JOURNAL_DIR" envDefault:"./data/journal"`
	JournalSegmentSize int64  `env:"JOURNAL_SEGMENT_SIZE_BYTES" envDefault:"10485760"`   // 10MB
	JournalMaxDiskSize int64  `env:"JOURNAL_MAX_DISK_SIZE_BYTES" envDefault:"104857600"` // 100MB

	EventBufferSize int `env:"EVENT_BUFFER_SIZE" envDefault:"1024"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
