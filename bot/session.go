package bot

import (
	"github.com/shopspring/decimal"

	"tom-exchange-bot/model"
)

// Состояния диалога. Сессия ключуется парой (пользователь, чат),
// одновременно активен ровно один поток на сессию.
const (
	stateIdle = iota

	// Приём заявки.
	stateAwaitAmount
	stateAwaitCrypto
	stateAwaitBuyMethod
	stateAwaitSellConfirm
	stateAwaitSellProof

	// Настройки оператора.
	stateAdminMenu
	stateAwaitWalletCrypto
	stateAwaitAdminValue

	// Рассылка.
	stateAwaitBroadcastContent
	stateAwaitBroadcastConfirm
)

type sessionKey struct {
	userID int64
	chatID int64
}

// draft — черновик текущего потока: поля заявки плюс служебные поля
// административного потока и рассылки. Живёт до завершения, отмены или
// сброса сессии; TTL нет.
type draft struct {
	action model.Action
	amount decimal.Decimal
	crypto string

	adminField   string
	walletCrypto string

	srcChatID    int64
	srcMessageID int
}

func (bot *Bot) state(key sessionKey) int {
	bot.mu.RLock()
	defer bot.mu.RUnlock()
	return bot.states[key]
}

// setState переводит сессию в новое состояние; возврат в Idle уничтожает черновик.
func (bot *Bot) setState(key sessionKey, state int) {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if state == stateIdle {
		delete(bot.states, key)
		delete(bot.drafts, key)
		return
	}
	bot.states[key] = state
}

// draftView возвращает копию черновика для чтения.
func (bot *Bot) draftView(key sessionKey) draft {
	bot.mu.RLock()
	defer bot.mu.RUnlock()
	if d, ok := bot.drafts[key]; ok {
		return *d
	}
	return draft{}
}

// updateDraft мутирует черновик под блокировкой сессий, создавая его
// при необходимости.
func (bot *Bot) updateDraft(key sessionKey, fn func(*draft)) {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	d, ok := bot.drafts[key]
	if !ok {
		d = &draft{}
		bot.drafts[key] = d
	}
	fn(d)
}

// resetSession сбрасывает состояние и черновик. Начало нового потока
// всегда проходит через сброс: черновик на сессию ровно один.
func (bot *Bot) resetSession(key sessionKey) {
	bot.setState(key, stateIdle)
}
