package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/telebot.v3"

	"tom-exchange-bot/intake"
	"tom-exchange-bot/ledger"
	"tom-exchange-bot/model"
	"tom-exchange-bot/pricing"
)

func (bot *Bot) handleStart(c telebot.Context) error {
	bot.resetSession(bot.sessionOf(c))
	return c.Send(
		"Вас приветствует <b>TOM EXCHANGE</b> 👋\n"+
			"У нас вы можете безопасно купить или продать криптовалюту.\n\n"+
			"Выберите действие ниже.",
		mainMenu(bot.isOperator(c)),
	)
}

// handleCancel — глобальная отмена: работает в любом состоянии,
// безусловно сбрасывает черновик.
func (bot *Bot) handleCancel(c telebot.Context) error {
	bot.resetSession(bot.sessionOf(c))
	return c.Send("Отменено.", mainMenu(bot.isOperator(c)))
}

func (bot *Bot) handleBuy(c telebot.Context) error {
	return bot.enterIntake(c, model.ActionBuy,
		"Введите сумму в $ (например, 150 или 150.50)")
}

func (bot *Bot) handleSell(c telebot.Context) error {
	return bot.enterIntake(c, model.ActionSell,
		"Введите сумму в $ (например, 200 или 200.00)")
}

// enterIntake начинает поток заявки: новый черновик, действие, ожидание суммы.
func (bot *Bot) enterIntake(c telebot.Context, action model.Action, prompt string) error {
	key := bot.sessionOf(c)
	bot.resetSession(key)
	bot.updateDraft(key, func(d *draft) { d.action = action })
	bot.setState(key, stateAwaitAmount)
	return c.Send(prompt, cancelMenu())
}

// handleAmount проверяет сумму и показывает расчёт до перехода к выбору
// криптовалюты. Любая невалидная сумма — переспрос без смены состояния.
func (bot *Bot) handleAmount(c telebot.Context, key sessionKey) error {
	amount, err := pricing.ParseAmount(c.Text())
	if err != nil {
		return c.Send("Введите корректную сумму > 0. Пример: 100 или 100.50")
	}

	st, err := bot.store.Snapshot()
	if err != nil {
		bot.log.Errorw("не удалось прочитать настройки", "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}
	if amount.LessThan(st.MinUSD) {
		return c.Send(fmt.Sprintf("Минимальная сумма заявки — %s$.", st.MinUSD.String()))
	}

	bot.updateDraft(key, func(d *draft) { d.amount = amount })
	d := bot.draftView(key)

	var preview string
	if d.action == model.ActionBuy {
		approved, err := bot.store.CountApprovedBuys(key.userID)
		if err != nil {
			bot.log.Errorw("не удалось посчитать покупки", "user", key.userID, "error", err)
			return c.Send("Внутренняя ошибка, попробуйте позже.")
		}
		total, withBonus := pricing.BuyTotal(amount, st.BuyRate, approved, bot.bonusThreshold, bot.bonusAmount)
		preview = fmt.Sprintf("Заявка: Покупка\nСумма: <b>%s$</b>\nК оплате: <b>%s руб.</b>",
			amount.StringFixed(2), total.String())
		if withBonus {
			preview += fmt.Sprintf("\n🎁 Скидка постоянного клиента: %s руб.", bot.bonusAmount.String())
		}
	} else {
		total := pricing.Quote(model.ActionSell, amount, st.SellRate)
		preview = fmt.Sprintf("Заявка: Продажа\nСумма: <b>%s$</b>\nК выплате: <b>%s руб.</b>",
			amount.StringFixed(2), total.String())
	}

	bot.setState(key, stateAwaitCrypto)
	if err := c.Send(preview); err != nil {
		return err
	}
	return c.Send("Выберите криптовалюту:", cryptoMenu(st.Cryptos))
}

// onCryptoSelect принимает только код из включённого на данный момент набора;
// устаревший выбор отклоняется без смены состояния.
func (bot *Bot) onCryptoSelect(c telebot.Context) error {
	key := bot.sessionOf(c)
	if bot.state(key) != stateAwaitCrypto {
		return c.Respond(&telebot.CallbackResponse{Text: "Заявка потеряна. Нажмите /start"})
	}

	st, err := bot.store.Snapshot()
	if err != nil {
		bot.log.Errorw("не удалось прочитать настройки", "error", err)
		return c.Respond(&telebot.CallbackResponse{Text: "Внутренняя ошибка"})
	}

	code := c.Data()
	if !st.Enabled(code) {
		return c.Respond(&telebot.CallbackResponse{Text: "Эта криптовалюта недоступна"})
	}

	bot.updateDraft(key, func(d *draft) { d.crypto = code })
	d := bot.draftView(key)

	if err := c.Respond(); err != nil {
		bot.log.Warnw("не удалось ответить на callback", "error", err)
	}

	if d.action == model.ActionBuy {
		bot.setState(key, stateAwaitBuyMethod)
		return c.Send(fmt.Sprintf(
			"Заявка: Покупка\nСумма: <b>%s$</b>\nКриптовалюта: <b>%s</b>\n\nВыберите способ оплаты:",
			d.amount.StringFixed(2), model.CryptoHuman(code)),
			buyMethodMenu())
	}

	wallet, err := bot.store.Wallet(code)
	if err != nil {
		bot.log.Errorw("кошелёк не настроен", "crypto", code, "error", err)
		return c.Send("Кошелёк для этой криптовалюты не настроен. Свяжитесь с оператором: " + st.Support)
	}

	bot.setState(key, stateAwaitSellConfirm)
	return c.Send(fmt.Sprintf(
		"Для продажи отправьте <b>%s</b> на адрес:\n<code>%s</code>\n\n"+
			"После отправки нажмите «📤 Я отправил», затем пришлите хеш транзакции "+
			"или скриншот и укажите реквизиты строкой «Выплата: …».",
		model.CryptoHuman(code), wallet),
		sellConfirmMenu())
}

// onBuyMethod завершает покупку: заявка создаётся сразу после выбора способа.
func (bot *Bot) onBuyMethod(c telebot.Context) error {
	key := bot.sessionOf(c)
	if bot.state(key) != stateAwaitBuyMethod {
		return c.Respond(&telebot.CallbackResponse{Text: "Заявка потеряна. Нажмите /start"})
	}

	method := c.Data()
	if method != "transfer" && method != "requisites" {
		return c.Respond(&telebot.CallbackResponse{Text: "Неверный выбор"})
	}

	d := bot.draftView(key)
	if d.action != model.ActionBuy || d.crypto == "" {
		bot.resetSession(key)
		return c.Respond(&telebot.CallbackResponse{Text: "Заявка потеряна. Нажмите /start"})
	}

	order := bot.newOrderFrom(c, d, "buy_method:"+method)
	id, err := bot.coord.CreateOrder(order)
	if err != nil {
		bot.log.Errorw("не удалось сохранить заявку", "error", err)
		return c.Respond(&telebot.CallbackResponse{Text: "Внутренняя ошибка, попробуйте позже"})
	}
	bot.coord.NotifyOperator(order, "", operatorMenu(id, order.UserID))

	if err := c.Respond(); err != nil {
		bot.log.Warnw("не удалось ответить на callback", "error", err)
	}
	bot.resetSession(key)

	detail := "детали перевода"
	if method == "requisites" {
		detail = "реквизиты"
	}
	return c.Send(fmt.Sprintf(
		"Заявка отправлена оператору! Номер: #%d\nОжидайте ответа. Оператор свяжется с вами и предоставит %s.",
		id, detail),
		mainMenu(bot.isOperator(c)))
}

// handleSellSent — явное подтверждение «я отправил» перед приёмом пруфа.
func (bot *Bot) handleSellSent(c telebot.Context) error {
	key := bot.sessionOf(c)
	if bot.state(key) != stateAwaitSellConfirm {
		return c.Send("Нет активной заявки на продажу. Нажмите /start",
			mainMenu(bot.isOperator(c)))
	}
	if bot.draftView(key).action != model.ActionSell {
		bot.resetSession(key)
		return c.Send("Нет активной заявки на продажу. Нажмите /start",
			mainMenu(bot.isOperator(c)))
	}

	bot.setState(key, stateAwaitSellProof)
	return c.Send("Отправьте хеш транзакции текстом или приложите скриншот.\n" +
		"Обязательно укажите реквизиты для выплаты строкой «Выплата: …».")
}

// handleSellProof — жёсткие ворота продажи: без распознанных реквизитов
// выплаты заявка не создаётся, состояние не меняется.
func (bot *Bot) handleSellProof(c telebot.Context, key sessionKey, text, photoID string) error {
	info, ok := intake.Extract(text)
	if !ok {
		return c.Send("Не найдены реквизиты выплаты. Добавьте строку «Выплата: …» " +
			"(например, «Выплата: Card 1234») и отправьте ещё раз.")
	}
	info.PhotoID = photoID

	d := bot.draftView(key)
	if d.action != model.ActionSell || d.crypto == "" {
		bot.resetSession(key)
		return c.Send("Данные заявки потеряны. Начните заново: /start",
			mainMenu(bot.isOperator(c)))
	}

	order := bot.newOrderFrom(c, d, info.Encode())
	id, err := bot.coord.CreateOrder(order)
	if err != nil {
		bot.log.Errorw("не удалось сохранить заявку", "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}
	bot.coord.NotifyOperator(order, photoID, operatorMenu(id, order.UserID))

	bot.resetSession(key)
	return c.Send(fmt.Sprintf("Заявка отправлена оператору! Номер: #%d\nОжидайте подтверждения.", id),
		mainMenu(bot.isOperator(c)))
}

func (bot *Bot) newOrderFrom(c telebot.Context, d draft, txInfo string) *model.Order {
	sender := c.Sender()
	return &model.Order{
		UserID:      sender.ID,
		Username:    sender.Username,
		DisplayName: model.DisplayNameOf(sender.FirstName, sender.LastName),
		Action:      d.action,
		AmountUSD:   d.amount.StringFixed(2),
		Crypto:      d.crypto,
		TxInfo:      txInfo,
	}
}

// handleOrderLookup — статус заявки по номеру. Чужие заявки видит только
// оператор; чужая и несуществующая неотличимы в ответе.
func (bot *Bot) handleOrderLookup(c telebot.Context) error {
	args := c.Args()
	if len(args) != 1 {
		return c.Send("Использование: /order номер (например, /order 12)")
	}
	id, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return c.Send("Некорректный номер заявки.")
	}

	o, err := bot.store.GetOrder(uint(id))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return c.Send("Заявка не найдена.")
		}
		bot.log.Errorw("не удалось прочитать заявку", "order", id, "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}
	if o.UserID != c.Sender().ID && !bot.isOperator(c) {
		return c.Send("Заявка не найдена.")
	}

	return c.Send(fmt.Sprintf(
		"Заявка <b>#%d</b>\nНаправление: %s\nСумма: %s$\nКриптовалюта: %s\nСтатус: <b>%s</b>",
		o.ID, actionHuman(o.Action), o.AmountUSD, model.CryptoHuman(o.Crypto), statusHuman(o.Status)))
}

// handleProfile — личная статистика: заявки, покупки, тир, бонус.
func (bot *Bot) handleProfile(c telebot.Context) error {
	userID := c.Sender().ID

	total, err := bot.store.CountOrders(userID)
	if err != nil {
		bot.log.Errorw("не удалось посчитать заявки", "user", userID, "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}
	approved, err := bot.store.CountApprovedBuys(userID)
	if err != nil {
		bot.log.Errorw("не удалось посчитать покупки", "user", userID, "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}

	bonus := "нет"
	if pricing.BonusEligible(approved, bot.bonusThreshold) {
		bonus = fmt.Sprintf("скидка %s руб. на покупку", bot.bonusAmount.String())
	}
	return c.Send(fmt.Sprintf(
		"📊 <b>Ваш профиль</b>\n\nЗаявок всего: %d\nПодтверждённых покупок: %d\nУровень: <b>%s</b>\nБонус: %s",
		total, approved, pricing.LoyaltyTier(approved), bonus))
}

// handleMyOrders — последние пять заявок пользователя.
func (bot *Bot) handleMyOrders(c telebot.Context) error {
	orders, err := bot.store.RecentOrders(c.Sender().ID, 5)
	if err != nil {
		bot.log.Errorw("не удалось прочитать заявки", "user", c.Sender().ID, "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}
	if len(orders) == 0 {
		return c.Send("У вас пока нет заявок.")
	}

	var b strings.Builder
	b.WriteString("📜 <b>Ваши последние заявки</b>\n")
	for _, o := range orders {
		fmt.Fprintf(&b, "\n#%d — %s %s$ %s — %s",
			o.ID, actionHuman(o.Action), o.AmountUSD, model.CryptoHuman(o.Crypto), statusHuman(o.Status))
	}
	return c.Send(b.String())
}

func (bot *Bot) handleContacts(c telebot.Context) error {
	st, err := bot.store.Snapshot()
	if err != nil {
		bot.log.Errorw("не удалось прочитать настройки", "error", err)
		return c.Send("Внутренняя ошибка, попробуйте позже.")
	}
	return c.Send(fmt.Sprintf(
		"📞 Оператор: %s\n⏰ Мы на связи с 04:00 до 23:00", st.Support),
		mainMenu(bot.isOperator(c)))
}

func (bot *Bot) handleHelp(c telebot.Context) error {
	return c.Send(
		"Как это работает:\n"+
			"— Покупка: сумма → выбор крипты → выбор способа (Переводилка/Реквизиты) → заявка уходит оператору.\n"+
			"— Продажа: сумма → выбор крипты → адрес кошелька → «Я отправил» → хеш/скрин с реквизитами → заявка оператору.\n\n"+
			"Статус заявки: /order номер. Отмена текущего действия: /cancel.",
		mainMenu(bot.isOperator(c)))
}

func actionHuman(a model.Action) string {
	if a == model.ActionBuy {
		return "покупка"
	}
	return "продажа"
}

func statusHuman(s model.Status) string {
	switch s {
	case model.StatusApproved:
		return "подтверждена"
	case model.StatusRejected:
		return "отклонена"
	default:
		return "ожидает"
	}
}
