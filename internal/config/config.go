// Package config содержит логику чтения конфигурации сервиса оформления заказов.
package config

import (
	"flag"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации сервиса оформления заказов.
type Config struct {
	RunAddress       string `env:"RUN_ADDRESS"`
	DatabaseURI      string `env:"DATABASE_URI"`
	GatewayAddress   string `env:"GATEWAY_ADDRESS"`
	ErpAddress       string `env:"ERP_ADDRESS"`
	NotifyAddress    string `env:"NOTIFY_ADDRESS"`
	NotifyRecipients string `env:"NOTIFY_RECIPIENTS"`
	SessionSecret    string `env:"SESSION_SECRET"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envGatewayAddress := cfg.GatewayAddress
	envErpAddress := cfg.ErpAddress
	envNotifyAddress := cfg.NotifyAddress
	envNotifyRecipients := cfg.NotifyRecipients
	envSessionSecret := cfg.SessionSecret

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.GatewayAddress, "g", "", "payment gateway address")
	flag.StringVar(&cfg.ErpAddress, "e", "", "external record-keeping system address")
	flag.StringVar(&cfg.NotifyAddress, "n", "", "notification dispatch address")
	flag.StringVar(&cfg.NotifyRecipients, "r", "", "comma-separated notification recipients")
	flag.StringVar(&cfg.SessionSecret, "s", "", "session cookie signing secret")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envGatewayAddress != "" {
		cfg.GatewayAddress = envGatewayAddress
	}
	if envErpAddress != "" {
		cfg.ErpAddress = envErpAddress
	}
	if envNotifyAddress != "" {
		cfg.NotifyAddress = envNotifyAddress
	}
	if envNotifyRecipients != "" {
		cfg.NotifyRecipients = envNotifyRecipients
	}
	if envSessionSecret != "" {
		cfg.SessionSecret = envSessionSecret
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	return cfg, nil
}

// Recipients возвращает список получателей уведомлений из конфигурации.
func (c *Config) Recipients() []string {
	if c.NotifyRecipients == "" {
		return nil
	}

	var recipients []string
	for _, r := range strings.Split(c.NotifyRecipients, ",") {
		r = strings.TrimSpace(r)
		if r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}
