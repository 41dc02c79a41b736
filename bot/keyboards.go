package bot

import (
	"fmt"
	"strconv"

	"gopkg.in/telebot.v3"

	"tom-exchange-bot/ledger"
	"tom-exchange-bot/model"
)

// Кнопки главного меню (reply) и служебные кнопки потоков.
var (
	btnBuy      = telebot.Btn{Text: "💰 Купить крипту"}
	btnSell     = telebot.Btn{Text: "💸 Продать крипту"}
	btnProfile  = telebot.Btn{Text: "📊 Мой профиль"}
	btnOrders   = telebot.Btn{Text: "📜 Мои заявки"}
	btnContacts = telebot.Btn{Text: "📞 Контакты"}
	btnHelp     = telebot.Btn{Text: "❓ Помощь"}

	// Только для оператора.
	btnBroadcast = telebot.Btn{Text: "📢 Рассылка"}
	btnAdmin     = telebot.Btn{Text: "⚙️ Настройки"}

	btnCancel = telebot.Btn{Text: "Отмена"}
	btnSent   = telebot.Btn{Text: "📤 Я отправил"}
)

// Шаблоны inline-кнопок: обработчики регистрируются по Unique,
// полезная нагрузка приходит через Data.
var (
	btnCrypto    = telebot.Btn{Unique: "crypto"}
	btnBuyMethod = telebot.Btn{Unique: "buymethod"}

	btnApprove = telebot.Btn{Unique: "approve"}
	btnReject  = telebot.Btn{Unique: "reject"}
	btnBan     = telebot.Btn{Unique: "ban"}
	btnUnban   = telebot.Btn{Unique: "unban"}

	btnAdmField      = telebot.Btn{Unique: "adm_field"}
	btnAdmCryptos    = telebot.Btn{Unique: "adm_cryptos"}
	btnAdmCryptoFlip = telebot.Btn{Unique: "adm_crypto_flip"}
	btnAdmWallets    = telebot.Btn{Unique: "adm_wallets"}
	btnAdmWalletPick = telebot.Btn{Unique: "adm_wallet_pick"}

	btnBcast = telebot.Btn{Unique: "bcast"}
)

func mainMenu(isOperator bool) *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{ResizeKeyboard: true}
	rows := []telebot.Row{
		kb.Row(btnBuy, btnSell),
		kb.Row(btnProfile, btnOrders),
		kb.Row(btnContacts, btnHelp),
	}
	if isOperator {
		rows = append(rows, kb.Row(btnBroadcast, btnAdmin))
	}
	kb.Reply(rows...)
	return kb
}

func cancelMenu() *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{ResizeKeyboard: true}
	kb.Reply(kb.Row(btnCancel))
	return kb
}

func sellConfirmMenu() *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{ResizeKeyboard: true}
	kb.Reply(kb.Row(btnSent), kb.Row(btnCancel))
	return kb
}

// cryptoMenu перечисляет только включённые в данный момент коды.
func cryptoMenu(enabled []string) *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{}
	var btns []telebot.Btn
	for _, code := range enabled {
		btns = append(btns, kb.Data(model.CryptoHuman(code), btnCrypto.Unique, code))
	}
	kb.Inline(kb.Row(btns...))
	return kb
}

func buyMethodMenu() *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{}
	kb.Inline(kb.Row(
		kb.Data("Переводилка", btnBuyMethod.Unique, "transfer"),
		kb.Data("Реквизиты", btnBuyMethod.Unique, "requisites"),
	))
	return kb
}

// operatorMenu — элементы решения по заявке плюс бан/разбан отправителя.
func operatorMenu(orderID uint, userID int64) *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{}
	oid := strconv.FormatUint(uint64(orderID), 10)
	uid := strconv.FormatInt(userID, 10)
	kb.Inline(
		kb.Row(
			kb.Data("✔ Подтвердить", btnApprove.Unique, oid),
			kb.Data("✖ Отклонить", btnReject.Unique, oid),
		),
		kb.Row(
			kb.Data("🚫 Бан", btnBan.Unique, uid),
			kb.Data("♻️ Разбан", btnUnban.Unique, uid),
		),
	)
	return kb
}

func adminMenu() *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{}
	kb.Inline(
		kb.Row(
			kb.Data("💰 Курс покупки", btnAdmField.Unique, ledger.KeyBuyRate),
			kb.Data("💸 Курс продажи", btnAdmField.Unique, ledger.KeySellRate),
		),
		kb.Row(
			kb.Data("📉 Мин. сумма", btnAdmField.Unique, ledger.KeyMinUSD),
			kb.Data("📞 Поддержка", btnAdmField.Unique, ledger.KeySupport),
		),
		kb.Row(
			kb.Data("🪙 Криптовалюты", btnAdmCryptos.Unique),
			kb.Data("👛 Кошельки", btnAdmWallets.Unique),
		),
	)
	return kb
}

// cryptoToggleMenu показывает все допустимые коды с отметкой включённости.
func cryptoToggleMenu(st *ledger.Settings) *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	for _, code := range model.AllowedCryptos {
		mark := "⬜"
		if st.Enabled(code) {
			mark = "✅"
		}
		rows = append(rows, kb.Row(
			kb.Data(fmt.Sprintf("%s %s", mark, model.CryptoHuman(code)), btnAdmCryptoFlip.Unique, code),
		))
	}
	kb.Inline(rows...)
	return kb
}

func walletPickMenu(st *ledger.Settings) *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{}
	var rows []telebot.Row
	for _, code := range st.Cryptos {
		rows = append(rows, kb.Row(kb.Data(model.CryptoHuman(code), btnAdmWalletPick.Unique, code)))
	}
	kb.Inline(rows...)
	return kb
}

func broadcastConfirmMenu(total int) *telebot.ReplyMarkup {
	kb := &telebot.ReplyMarkup{}
	kb.Inline(kb.Row(
		kb.Data(fmt.Sprintf("▶ Отправить (%d)", total), btnBcast.Unique, "send"),
		kb.Data("Отмена", btnBcast.Unique, "cancel"),
	))
	return kb
}
