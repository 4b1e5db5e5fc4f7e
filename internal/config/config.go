package config

import (
	"fmt"

	"github.com/Netflix/go-env"
)

type Config struct {
	DatabaseDSN      string `env:"DATABASE_DSN,required=true"`
	RedisURL         string `env:"REDIS_URL,required=true"`
	SMTPHost         string `env:"SMTP_HOST,required=true"`
	SMTPPort         int    `env:"SMTP_PORT,default=587"`
	SMTPUser         string `env:"SMTP_USER"`
	SMTPPassword     string `env:"SMTP_PASSWORD"`
	SenderAddress    string `env:"SENDER_ADDRESS,required=true"`
	SenderName       string `env:"SENDER_NAME,default=Student Records"`
	AdminEmail       string `env:"ADMIN_EMAIL,required=true"`
	AlertWebhookURL  string `env:"ALERT_WEBHOOK_URL"`
	SweepIntervalSec int    `env:"SWEEP_INTERVAL_SEC,default=60"`
	SweepBatchSize   int    `env:"SWEEP_BATCH_SIZE,default=100"`
	SweepConcurrency int    `env:"SWEEP_CONCURRENCY,default=20"`
	DispatchWorkers  int    `env:"DISPATCH_WORKERS,default=8"`
	MailRatePerSec   int    `env:"MAIL_RATE_PER_SEC,default=10"`
	APIPort          int    `env:"API_PORT,default=8080"`
	LogLevel         string `env:"LOG_LEVEL,default=info"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
