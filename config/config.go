// Package config читает конфигурацию бота из переменных окружения.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры запуска бота.
type Config struct {
	BotToken   string `env:"BOT_TOKEN"`
	OperatorID int64  `env:"OPERATOR_ID"`
	DBPath     string `env:"DB_PATH" envDefault:"orders.db"`

	PollTimeout    time.Duration `env:"POLL_TIMEOUT" envDefault:"30s"`
	BroadcastPause time.Duration `env:"BROADCAST_PAUSE" envDefault:"60ms"`

	// Порог лояльности и размер скидки для покупок.
	BonusThreshold int    `env:"BONUS_THRESHOLD" envDefault:"5"`
	BonusAmount    string `env:"BONUS_AMOUNT" envDefault:"20"`
}

// Parse считывает и валидирует конфигурацию.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.BotToken == "" {
		return nil, errors.New("BOT_TOKEN не задан в окружении")
	}
	if cfg.OperatorID == 0 {
		return nil, errors.New("OPERATOR_ID не задан в окружении")
	}

	return cfg, nil
}
