package bot

import (
	"fmt"

	"gopkg.in/telebot.v3"
)

// handleBroadcastStart — вход в поток рассылки, только для оператора.
func (bot *Bot) handleBroadcastStart(c telebot.Context) error {
	if !bot.isOperator(c) {
		return c.Send("Недостаточно прав.", mainMenu(false))
	}

	key := bot.sessionOf(c)
	bot.resetSession(key)
	bot.setState(key, stateAwaitBroadcastContent)
	return c.Send("Отправьте текст/медиа для рассылки (любое сообщение).", cancelMenu())
}

// handleBroadcastContent запоминает ссылку на исходное сообщение и просит
// подтверждение с числом получателей.
func (bot *Bot) handleBroadcastContent(c telebot.Context, key sessionKey) error {
	if !bot.isOperator(c) {
		bot.resetSession(key)
		return nil
	}

	bot.updateDraft(key, func(d *draft) {
		d.srcChatID = c.Chat().ID
		d.srcMessageID = c.Message().ID
	})

	// Считаем только активных: заблокированные из рассылки исключены.
	ids, err := bot.store.AllUserIDs(true)
	if err != nil {
		bot.log.Errorw("не удалось получить получателей", "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}

	bot.setState(key, stateAwaitBroadcastConfirm)
	return c.Send(fmt.Sprintf("Готовы отправить рассылку %d пользователям?", len(ids)),
		broadcastConfirmMenu(len(ids)))
}

// onBroadcastConfirm запускает рассылку фоновой горутиной либо отменяет её.
// Основной поток обработки событий рассылкой не блокируется.
func (bot *Bot) onBroadcastConfirm(c telebot.Context) error {
	if !bot.isOperator(c) {
		return c.Respond(&telebot.CallbackResponse{Text: "Недостаточно прав"})
	}

	key := bot.sessionOf(c)
	if bot.state(key) != stateAwaitBroadcastConfirm {
		return c.Respond(&telebot.CallbackResponse{Text: "Рассылка не подготовлена"})
	}

	if _, err := bot.B.EditReplyMarkup(c.Message(), nil); err != nil {
		bot.log.Warnw("не удалось убрать кнопки", "error", err)
	}

	if c.Data() == "cancel" {
		bot.resetSession(key)
		if err := c.Respond(&telebot.CallbackResponse{Text: "Рассылка отменена"}); err != nil {
			bot.log.Warnw("не удалось ответить на callback", "error", err)
		}
		return c.Send("Отменено.", mainMenu(true))
	}

	d := bot.draftView(key)
	srcChat, srcMsg := d.srcChatID, d.srcMessageID
	bot.resetSession(key)

	if err := c.Respond(&telebot.CallbackResponse{Text: "Рассылка запущена"}); err != nil {
		bot.log.Warnw("не удалось ответить на callback", "error", err)
	}

	go bot.coord.Broadcast(srcChat, srcMsg)
	return nil
}
