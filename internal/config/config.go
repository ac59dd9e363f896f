package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN string `env:"DATABASE_DSN,required=true"`
	RabbitMQURL string `env:"RABBITMQ_URL,required=true"`
	RedisURL    string `env:"REDIS_URL,required=true"`

	SMSGatewayURL   string `env:"SMS_GATEWAY_URL,required=true"`
	SMSSenderNumber string `env:"SMS_SENDER_NUMBER,required=true"`
	ChatAGatewayURL string `env:"CHAT_A_GATEWAY_URL"`
	ChatBGatewayURL string `env:"CHAT_B_GATEWAY_URL"`
	ProviderAPIKey  string `env:"PROVIDER_API_KEY"`

	MailboxPollSeconds   int `env:"MAILBOX_POLL_SECONDS,default=60"`
	MailboxMaxReconnects int `env:"MAILBOX_MAX_RECONNECTS,default=10"`

	RetryScanCron     string `env:"RETRY_SCAN_CRON,default=@every 30s"`
	RateLimitPerSec   int    `env:"RATE_LIMIT_PER_SEC,default=50"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY,default=8"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
