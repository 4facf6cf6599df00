package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App      App
	Database Database
	Redis    Redis
	JWT      JWT
	Log      Log
	Chat     Chat
	Notify   Notify
}

type App struct {
	Port            string        `env:"PORT" env-default:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

type JWT struct {
	Secret              string `env:"JWT_SECRET" env-required:"true"`
	AccessExpirationMin int    `env:"JWT_ACCESS_EXP_MIN" env-default:"60"`
}

type Redis struct {
	Host     string `env:"REDIS_HOST" env-required:"true"`
	Port     string `env:"REDIS_PORT" env-default:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

func (r Redis) Addr() string {
	return r.Host + ":" + r.Port
}

type Database struct {
	Host              string `env:"POSTGRES_HOST" env-required:"true"`
	Port              string `env:"POSTGRES_PORT" env-default:"5432"`
	User              string `env:"POSTGRES_USER" env-required:"true"`
	DBName            string `env:"POSTGRES_DB" env-required:"true"`
	Password          string `env:"POSTGRES_PASSWORD" env-required:"true"`
	SSLMode           string `env:"POSTGRES_SSLMODE" env-default:"disable"`
	MigrateDownOnExit bool   `env:"POSTGRES_MIGRATE_DOWN_ON_EXIT" env-default:"false"`
}

func (d Database) DSN() string {
	return fmt.Sprintf(
		`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

type Log struct {
	Mode       string `env:"LOG_MODE" env-default:"dev"`
	Level      string `env:"LOG_LEVEL" env-default:"info"`
	File       string `env:"LOG_FILE"`
	MaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" env-default:"100"`
	MaxBackups int    `env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

type Chat struct {
	GroupCacheTTL    time.Duration `env:"CHAT_GROUP_CACHE_TTL" env-default:"1h"`
	MessageCacheTTL  time.Duration `env:"CHAT_MESSAGE_CACHE_TTL" env-default:"5m"`
	PresenceTTL      time.Duration `env:"CHAT_PRESENCE_TTL" env-default:"300s"`
	ChannelPrefix    string        `env:"CHAT_CHANNEL_PREFIX" env-default:"chat:group:"`
	SendBufferSize   int           `env:"CHAT_SEND_BUFFER" env-default:"256"`
	MaxMessageLength int           `env:"CHAT_MAX_MESSAGE_LENGTH" env-default:"4000"`
}

const (
	NotifyModeRedis = "redis"
	NotifyModeKafka = "kafka"
)

type Notify struct {
	Mode         string   `env:"NOTIFY_MODE" env-default:"redis"`
	KafkaBrokers []string `env:"NOTIFY_KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `env:"NOTIFY_KAFKA_TOPIC" env-default:"chat.mentions"`
}

func (n Notify) validate() error {
	switch strings.ToLower(n.Mode) {
	case NotifyModeRedis:
		return nil
	case NotifyModeKafka:
		if len(n.KafkaBrokers) == 0 || n.KafkaBrokers[0] == "" {
			return fmt.Errorf("NOTIFY_KAFKA_BROKERS is required when NOTIFY_MODE=kafka")
		}
		return nil
	default:
		return fmt.Errorf("unknown NOTIFY_MODE %q", n.Mode)
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment variables: %w", err)
	}
	if err := cfg.Notify.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
