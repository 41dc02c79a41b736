// Package bot — Telegram-обвязка обменника: маршрутизация команд и кнопок,
// машина состояний диалога и административная поверхность оператора.
package bot

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gopkg.in/telebot.v3"

	"tom-exchange-bot/config"
	"tom-exchange-bot/ledger"
	"tom-exchange-bot/lifecycle"
	"tom-exchange-bot/model"
)

type Bot struct {
	B     *telebot.Bot
	store *ledger.Store
	coord *lifecycle.Coordinator
	log   *zap.SugaredLogger

	operatorID     int64
	bonusThreshold int
	bonusAmount    decimal.Decimal

	// Сессии диалогов: состояние + черновик на (пользователь, чат).
	states map[sessionKey]int
	drafts map[sessionKey]*draft
	mu     sync.RWMutex
}

func NewBot(cfg *config.Config, store *ledger.Store, log *zap.SugaredLogger) (*Bot, error) {
	pref := telebot.Settings{
		Token:     cfg.BotToken,
		Poller:    &telebot.LongPoller{Timeout: cfg.PollTimeout},
		ParseMode: telebot.ModeHTML,
		OnError: func(err error, c telebot.Context) {
			log.Errorw("ошибка обработчика", "error", err)
		},
	}

	b, err := telebot.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("telebot: %w", err)
	}

	bonus, err := decimal.NewFromString(cfg.BonusAmount)
	if err != nil {
		return nil, fmt.Errorf("BONUS_AMOUNT: %w", err)
	}

	msg := &messenger{b: b, log: log}
	bot := &Bot{
		B:              b,
		store:          store,
		coord:          lifecycle.New(store, msg, log, cfg.OperatorID, cfg.BroadcastPause),
		log:            log,
		operatorID:     cfg.OperatorID,
		bonusThreshold: cfg.BonusThreshold,
		bonusAmount:    bonus,
		states:         make(map[sessionKey]int),
		drafts:         make(map[sessionKey]*draft),
	}

	b.Use(bot.trackUsers)
	bot.registerHandlers()
	return bot, nil
}

func (bot *Bot) Start() {
	bot.B.Start()
}

// DigestPending — точка входа для планировщика: сводка оператору.
func (bot *Bot) DigestPending() {
	bot.coord.DigestPending()
}

func (bot *Bot) registerHandlers() {
	// Команды.
	bot.B.Handle("/start", bot.handleStart)
	bot.B.Handle("/cancel", bot.handleCancel)
	bot.B.Handle("/order", bot.handleOrderLookup)
	bot.B.Handle("/me", bot.handleProfile)
	bot.B.Handle("/orders", bot.handleMyOrders)
	bot.B.Handle("/admin", bot.handleAdminMenu)

	// Кнопки главного меню.
	bot.B.Handle(&btnBuy, bot.handleBuy)
	bot.B.Handle(&btnSell, bot.handleSell)
	bot.B.Handle(&btnProfile, bot.handleProfile)
	bot.B.Handle(&btnOrders, bot.handleMyOrders)
	bot.B.Handle(&btnContacts, bot.handleContacts)
	bot.B.Handle(&btnHelp, bot.handleHelp)
	bot.B.Handle(&btnBroadcast, bot.handleBroadcastStart)
	bot.B.Handle(&btnAdmin, bot.handleAdminMenu)
	bot.B.Handle(&btnCancel, bot.handleCancel)
	bot.B.Handle(&btnSent, bot.handleSellSent)

	// Inline-кнопки потока заявки.
	bot.B.Handle(&btnCrypto, bot.onCryptoSelect)
	bot.B.Handle(&btnBuyMethod, bot.onBuyMethod)

	// Решения оператора.
	bot.B.Handle(&btnApprove, bot.onDecision(model.StatusApproved))
	bot.B.Handle(&btnReject, bot.onDecision(model.StatusRejected))
	bot.B.Handle(&btnBan, bot.onSetBlocked(true))
	bot.B.Handle(&btnUnban, bot.onSetBlocked(false))

	// Настройки.
	bot.B.Handle(&btnAdmField, bot.onAdminField)
	bot.B.Handle(&btnAdmCryptos, bot.onAdminCryptos)
	bot.B.Handle(&btnAdmCryptoFlip, bot.onAdminCryptoFlip)
	bot.B.Handle(&btnAdmWallets, bot.onAdminWallets)
	bot.B.Handle(&btnAdmWalletPick, bot.onAdminWalletPick)

	// Рассылка.
	bot.B.Handle(&btnBcast, bot.onBroadcastConfirm)

	// Свободный ввод: текст и медиа разбираются по текущему состоянию.
	bot.B.Handle(telebot.OnText, bot.onText)
	bot.B.Handle(telebot.OnPhoto, bot.onPhoto)
	bot.B.Handle(telebot.OnMedia, bot.onMedia)
}

// trackUsers — upsert профиля на каждом входящем событии и отсечение
// заблокированных (оператор исключён).
func (bot *Bot) trackUsers(next telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return next(c)
		}

		name := model.DisplayNameOf(sender.FirstName, sender.LastName)
		if err := bot.store.UpsertUser(sender.ID, sender.Username, name); err != nil {
			bot.log.Errorw("не удалось обновить пользователя", "user", sender.ID, "error", err)
		}

		if sender.ID != bot.operatorID {
			if u, err := bot.store.GetUser(sender.ID); err == nil && u.Blocked {
				if c.Callback() != nil {
					return c.Respond(&telebot.CallbackResponse{Text: "Доступ ограничен"})
				}
				return c.Send("⛔ Доступ ограничен.")
			}
		}
		return next(c)
	}
}

func (bot *Bot) isOperator(c telebot.Context) bool {
	return c.Sender() != nil && c.Sender().ID == bot.operatorID
}

func (bot *Bot) sessionOf(c telebot.Context) sessionKey {
	return sessionKey{userID: c.Sender().ID, chatID: c.Chat().ID}
}

// onText разводит свободный текст по состоянию сессии.
func (bot *Bot) onText(c telebot.Context) error {
	key := bot.sessionOf(c)

	switch bot.state(key) {
	case stateAwaitAmount:
		return bot.handleAmount(c, key)
	case stateAwaitSellProof:
		return bot.handleSellProof(c, key, c.Text(), "")
	case stateAwaitAdminValue:
		return bot.handleAdminValue(c, key)
	case stateAwaitBroadcastContent:
		return bot.handleBroadcastContent(c, key)
	case stateAwaitCrypto, stateAwaitBuyMethod, stateAwaitSellConfirm,
		stateAdminMenu, stateAwaitWalletCrypto, stateAwaitBroadcastConfirm:
		return c.Send("Используйте кнопки под сообщением или «Отмена».")
	default:
		return c.Send("Выберите действие из меню или нажмите /start",
			mainMenu(bot.isOperator(c)))
	}
}

// onPhoto принимает фото как пруф продажи или как контент рассылки.
func (bot *Bot) onPhoto(c telebot.Context) error {
	key := bot.sessionOf(c)

	switch bot.state(key) {
	case stateAwaitSellProof:
		photo := c.Message().Photo
		if photo == nil {
			return nil
		}
		return bot.handleSellProof(c, key, c.Message().Caption, photo.FileID)
	case stateAwaitBroadcastContent:
		return bot.handleBroadcastContent(c, key)
	}
	return nil
}

// onMedia покрывает остальные типы контента для рассылки.
func (bot *Bot) onMedia(c telebot.Context) error {
	key := bot.sessionOf(c)
	if bot.state(key) == stateAwaitBroadcastContent {
		return bot.handleBroadcastContent(c, key)
	}
	return nil
}
