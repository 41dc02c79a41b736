package main

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"tom-exchange-bot/bot"
	"tom-exchange-bot/config"
	"tom-exchange-bot/ledger"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("ошибка конфигурации", "error", err)
	}

	store, err := ledger.Open(cfg.DBPath)
	if err != nil {
		sugar.Fatalw("ошибка открытия базы", "error", err)
	}
	if err := store.EnsureDefaults(); err != nil {
		sugar.Fatalw("ошибка инициализации настроек", "error", err)
	}

	b, err := bot.NewBot(cfg, store, sugar)
	if err != nil {
		sugar.Fatalw("ошибка запуска бота", "error", err)
	}

	// Ежечасная сводка оператору по ожидающим заявкам.
	c := cron.New()
	if _, err := c.AddFunc("0 * * * *", b.DigestPending); err != nil {
		sugar.Fatalw("ошибка планировщика", "error", err)
	}
	c.Start()

	sugar.Infow("бот запущен", "db", cfg.DBPath)
	b.Start()
}
