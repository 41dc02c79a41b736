package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/telebot.v3"

	"tom-exchange-bot/ledger"
	"tom-exchange-bot/model"
)

// handleAdminMenu показывает оператору текущие настройки и меню правки.
// Не-оператору — минимальный отказ без раскрытия деталей.
func (bot *Bot) handleAdminMenu(c telebot.Context) error {
	if !bot.isOperator(c) {
		return c.Send("Недостаточно прав.")
	}

	st, err := bot.store.Snapshot()
	if err != nil {
		bot.log.Errorw("не удалось прочитать настройки", "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}

	key := bot.sessionOf(c)
	bot.resetSession(key)
	bot.setState(key, stateAdminMenu)

	var names []string
	for _, code := range st.Cryptos {
		names = append(names, model.CryptoHuman(code))
	}
	return c.Send(fmt.Sprintf(
		"⚙️ <b>Настройки</b>\n\n"+
			"💰 Курс покупки: <b>%s</b>\n"+
			"💸 Курс продажи: <b>%s</b>\n"+
			"📉 Мин. сумма: <b>%s$</b>\n"+
			"🪙 Криптовалюты: %s\n"+
			"📞 Поддержка: %s",
		st.BuyRate.String(), st.SellRate.String(), st.MinUSD.String(),
		strings.Join(names, ", "), st.Support),
		adminMenu())
}

// onAdminField переводит в ожидание нового значения выбранного поля.
func (bot *Bot) onAdminField(c telebot.Context) error {
	if !bot.isOperator(c) {
		return c.Respond(&telebot.CallbackResponse{Text: "Недостаточно прав"})
	}

	field := c.Data()
	var prompt string
	switch field {
	case ledger.KeyBuyRate:
		prompt = "Введите новый курс покупки (руб. за 1$):"
	case ledger.KeySellRate:
		prompt = "Введите новый курс продажи (руб. за 1$):"
	case ledger.KeyMinUSD:
		prompt = "Введите минимальную сумму заявки в $:"
	case ledger.KeySupport:
		prompt = "Введите контакт поддержки (например, @username):"
	default:
		return c.Respond(&telebot.CallbackResponse{Text: "Неверный выбор"})
	}

	key := bot.sessionOf(c)
	bot.updateDraft(key, func(d *draft) {
		d.adminField = field
		d.walletCrypto = ""
	})
	bot.setState(key, stateAwaitAdminValue)

	if err := c.Respond(); err != nil {
		bot.log.Warnw("не удалось ответить на callback", "error", err)
	}
	return c.Send(prompt, cancelMenu())
}

// onAdminCryptos показывает переключатели включённых криптовалют.
func (bot *Bot) onAdminCryptos(c telebot.Context) error {
	if !bot.isOperator(c) {
		return c.Respond(&telebot.CallbackResponse{Text: "Недостаточно прав"})
	}
	st, err := bot.store.Snapshot()
	if err != nil {
		bot.log.Errorw("не удалось прочитать настройки", "error", err)
		return c.Respond(&telebot.CallbackResponse{Text: "Внутренняя ошибка"})
	}
	if err := c.Respond(); err != nil {
		bot.log.Warnw("не удалось ответить на callback", "error", err)
	}
	return c.Send("Включённые криптовалюты:", cryptoToggleMenu(st))
}

// onAdminCryptoFlip включает/выключает код; набор всегда остаётся
// подмножеством допустимого.
func (bot *Bot) onAdminCryptoFlip(c telebot.Context) error {
	if !bot.isOperator(c) {
		return c.Respond(&telebot.CallbackResponse{Text: "Недостаточно прав"})
	}

	code := c.Data()
	if !model.CryptoAllowed(code) {
		return c.Respond(&telebot.CallbackResponse{Text: "Неизвестный код"})
	}

	st, err := bot.store.Snapshot()
	if err != nil {
		bot.log.Errorw("не удалось прочитать настройки", "error", err)
		return c.Respond(&telebot.CallbackResponse{Text: "Внутренняя ошибка"})
	}

	var next []string
	if st.Enabled(code) {
		for _, cc := range st.Cryptos {
			if cc != code {
				next = append(next, cc)
			}
		}
	} else {
		// Порядок берётся из допустимого набора, а не из порядка кликов.
		for _, cc := range model.AllowedCryptos {
			if cc == code || st.Enabled(cc) {
				next = append(next, cc)
			}
		}
	}

	if err := bot.store.SetSetting(ledger.KeyCryptos, strings.Join(next, ",")); err != nil {
		bot.log.Errorw("не удалось сохранить настройку", "key", ledger.KeyCryptos, "error", err)
		return c.Respond(&telebot.CallbackResponse{Text: "Внутренняя ошибка"})
	}

	st.Cryptos = next
	if err := c.Respond(&telebot.CallbackResponse{Text: "Обновлено"}); err != nil {
		bot.log.Warnw("не удалось ответить на callback", "error", err)
	}
	return c.Send("Включённые криптовалюты:", cryptoToggleMenu(st))
}

// onAdminWallets — выбор криптовалюты, чей кошелёк меняем.
func (bot *Bot) onAdminWallets(c telebot.Context) error {
	if !bot.isOperator(c) {
		return c.Respond(&telebot.CallbackResponse{Text: "Недостаточно прав"})
	}
	st, err := bot.store.Snapshot()
	if err != nil {
		bot.log.Errorw("не удалось прочитать настройки", "error", err)
		return c.Respond(&telebot.CallbackResponse{Text: "Внутренняя ошибка"})
	}

	bot.setState(bot.sessionOf(c), stateAwaitWalletCrypto)
	if err := c.Respond(); err != nil {
		bot.log.Warnw("не удалось ответить на callback", "error", err)
	}
	return c.Send("Кошелёк какой криптовалюты изменить?", walletPickMenu(st))
}

func (bot *Bot) onAdminWalletPick(c telebot.Context) error {
	if !bot.isOperator(c) {
		return c.Respond(&telebot.CallbackResponse{Text: "Недостаточно прав"})
	}
	key := bot.sessionOf(c)
	if bot.state(key) != stateAwaitWalletCrypto {
		return c.Respond(&telebot.CallbackResponse{Text: "Начните с меню настроек"})
	}

	code := c.Data()
	if !model.CryptoAllowed(code) {
		return c.Respond(&telebot.CallbackResponse{Text: "Неизвестный код"})
	}

	bot.updateDraft(key, func(d *draft) {
		d.adminField = "wallet"
		d.walletCrypto = code
	})
	bot.setState(key, stateAwaitAdminValue)

	if err := c.Respond(); err != nil {
		bot.log.Warnw("не удалось ответить на callback", "error", err)
	}

	current, err := bot.store.Wallet(code)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		bot.log.Errorw("не удалось прочитать кошелёк", "crypto", code, "error", err)
	}
	return c.Send(fmt.Sprintf("Текущий адрес %s:\n<code>%s</code>\n\nВведите новый адрес:",
		model.CryptoHuman(code), current), cancelMenu())
}

// handleAdminValue валидирует и сохраняет введённое значение.
// Невалидный ввод — переспрос без смены состояния.
func (bot *Bot) handleAdminValue(c telebot.Context, key sessionKey) error {
	if !bot.isOperator(c) {
		bot.resetSession(key)
		return c.Send("Недостаточно прав.")
	}

	d := bot.draftView(key)
	value := strings.TrimSpace(c.Text())

	var settingKey string
	switch d.adminField {
	case ledger.KeyBuyRate, ledger.KeySellRate, ledger.KeyMinUSD:
		num, err := decimal.NewFromString(strings.ReplaceAll(value, ",", "."))
		if err != nil || !num.IsPositive() {
			return c.Send("Введите положительное число. Пример: 18.6")
		}
		settingKey = d.adminField
		value = num.String()
	case ledger.KeySupport:
		if value == "" {
			return c.Send("Введите непустой контакт.")
		}
		if !strings.HasPrefix(value, "@") {
			value = "@" + value
		}
		settingKey = d.adminField
	case "wallet":
		if value == "" {
			return c.Send("Введите непустой адрес.")
		}
		settingKey = ledger.WalletKey(d.walletCrypto)
	default:
		bot.resetSession(key)
		return c.Send("Поле не выбрано. Откройте /admin ещё раз.")
	}

	if err := bot.store.SetSetting(settingKey, value); err != nil {
		bot.log.Errorw("не удалось сохранить настройку", "key", settingKey, "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}

	bot.resetSession(key)
	if err := c.Send("✅ Сохранено.", mainMenu(true)); err != nil {
		return err
	}
	return bot.handleAdminMenu(c)
}

// onDecision применяет решение оператора по заявке. Повторное решение по
// уже решённой заявке перезаписывает статус и заново уведомляет клиента.
func (bot *Bot) onDecision(status model.Status) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if !bot.isOperator(c) {
			return c.Respond(&telebot.CallbackResponse{Text: "Недостаточно прав"})
		}

		id, err := strconv.ParseUint(c.Data(), 10, 32)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Некорректный ID"})
		}

		o, err := bot.coord.ApplyDecision(uint(id), status)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				return c.Respond(&telebot.CallbackResponse{Text: "Заявка не найдена"})
			}
			bot.log.Errorw("не удалось применить решение", "order", id, "error", err)
			return c.Respond(&telebot.CallbackResponse{Text: "Внутренняя ошибка"})
		}

		// Снимаем кнопки с карточки, чтобы решение не кликали повторно.
		if _, err := bot.B.EditReplyMarkup(c.Message(), nil); err != nil {
			bot.log.Warnw("не удалось убрать кнопки", "order", id, "error", err)
		}

		verdict := "подтверждена"
		if status == model.StatusRejected {
			verdict = "отклонена"
		}
		if err := c.Respond(&telebot.CallbackResponse{
			Text: fmt.Sprintf("Заявка #%d %s", o.ID, verdict),
		}); err != nil {
			bot.log.Warnw("не удалось ответить на callback", "error", err)
		}
		return c.Send(fmt.Sprintf("Статус заявки #%d: %s", o.ID, o.Status))
	}
}

// onSetBlocked — бан/разбан отправителя заявки. Идемпотентно.
func (bot *Bot) onSetBlocked(blocked bool) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if !bot.isOperator(c) {
			return c.Respond(&telebot.CallbackResponse{Text: "Недостаточно прав"})
		}

		userID, err := strconv.ParseInt(c.Data(), 10, 64)
		if err != nil {
			return c.Respond(&telebot.CallbackResponse{Text: "Некорректный ID"})
		}

		if err := bot.coord.SetBlocked(userID, blocked); err != nil {
			bot.log.Errorw("не удалось сменить доступ", "user", userID, "error", err)
			return c.Respond(&telebot.CallbackResponse{Text: "Внутренняя ошибка"})
		}

		text := "Пользователь разблокирован"
		if blocked {
			text = "Пользователь заблокирован"
		}
		return c.Respond(&telebot.CallbackResponse{Text: text})
	}
}
