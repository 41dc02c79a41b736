// Package lifecycle — координатор жизненного цикла заявок: создание,
// уведомление оператора, решения, баны и массовая рассылка. Работает поверх
// узких интерфейсов хранилища и транспорта, чтобы логика тестировалась
// заглушками без Telegram и sqlite.
package lifecycle

import (
	"errors"
	"fmt"
	"html"
	"time"

	"go.uber.org/zap"

	"tom-exchange-bot/model"
)

// ErrRecipientBlocked — транспорт сообщил, что получатель недоступен
// (заблокировал бота). Для вызывающего это не ошибка: флаг фиксируется
// в леджере, операция продолжается.
var ErrRecipientBlocked = errors.New("lifecycle: recipient blocked the bot")

// Store — подмножество леджера, нужное координатору.
type Store interface {
	CreateOrder(o *model.Order) (uint, error)
	GetOrder(id uint) (*model.Order, error)
	UpdateOrderStatus(id uint, status model.Status) error
	SetBlocked(userID int64, blocked bool) error
	AllUserIDs(onlyActive bool) ([]int64, error)
	PendingSummary() (int, time.Time, error)
}

// Messenger — контракт транспорта. Реализация обязана различать два сигнала:
// получатель недоступен (ErrRecipientBlocked) и rate limit (отрабатывается
// внутри реализации повторной попыткой); остальные ошибки непрозрачны.
type Messenger interface {
	SendText(to int64, text string, opts ...interface{}) error
	SendPhoto(to int64, fileID, caption string, opts ...interface{}) error
	Copy(to int64, fromChat int64, messageID int) error
}

// Coordinator связывает леджер и транспорт.
type Coordinator struct {
	store      Store
	msg        Messenger
	log        *zap.SugaredLogger
	operatorID int64
	pause      time.Duration // пауза между отправками рассылки
}

// New создаёт координатор.
func New(store Store, msg Messenger, log *zap.SugaredLogger, operatorID int64, pause time.Duration) *Coordinator {
	return &Coordinator{store: store, msg: msg, log: log, operatorID: operatorID, pause: pause}
}

// CreateOrder сохраняет заявку в статусе pending и возвращает номер.
// Ошибка хранилища поднимается наверх: молча потерять заявку нельзя.
func (c *Coordinator) CreateOrder(o *model.Order) (uint, error) {
	return c.store.CreateOrder(o)
}

// NotifyOperator отправляет оператору карточку заявки с приложенными
// элементами управления. Сбой доставки логируется и не отменяет заявку —
// она уже в леджере.
func (c *Coordinator) NotifyOperator(o *model.Order, photoID string, opts ...interface{}) {
	text := renderOrderCard(o)

	var err error
	if photoID != "" {
		err = c.msg.SendPhoto(c.operatorID, photoID, text, opts...)
	} else {
		err = c.msg.SendText(c.operatorID, text, opts...)
	}
	if err != nil {
		c.log.Warnw("не удалось уведомить оператора", "order", o.ID, "error", err)
	}
}

// ApplyDecision переводит заявку в терминальный статус и уведомляет
// отправителя. Повторное решение молча перезаписывает статус (поведение
// сохранено сознательно). Сбой уведомления статус не откатывает.
func (c *Coordinator) ApplyDecision(orderID uint, status model.Status) (*model.Order, error) {
	o, err := c.store.GetOrder(orderID)
	if err != nil {
		return nil, err
	}
	if err := c.store.UpdateOrderStatus(orderID, status); err != nil {
		return nil, err
	}
	o.Status = status

	var text string
	if status == model.StatusApproved {
		text = fmt.Sprintf("✅ Ваша заявка #%d подтверждена! Спасибо.", orderID)
	} else {
		text = fmt.Sprintf("❌ Ваша заявка #%d отклонена. Свяжитесь с оператором для уточнения.", orderID)
	}
	if err := c.notify(o.UserID, text); err != nil {
		c.log.Warnw("не удалось уведомить пользователя о решении", "order", orderID, "error", err)
	}
	return o, nil
}

// SetBlocked выставляет флаг доступа и уведомляет пользователя (best-effort).
func (c *Coordinator) SetBlocked(userID int64, blocked bool) error {
	if err := c.store.SetBlocked(userID, blocked); err != nil {
		return err
	}
	text := "✅ Доступ к боту восстановлен."
	if blocked {
		text = "⛔ Доступ к боту ограничен оператором."
	}
	if err := c.notify(userID, text); err != nil {
		c.log.Warnw("не удалось уведомить пользователя о смене доступа", "user", userID, "error", err)
	}
	return nil
}

// Broadcast пересылает исходное сообщение всем известным пользователям,
// кроме оператора, с фиксированной паузой между отправками. Недоступный
// получатель помечается заблокированным, рассылка продолжается. По
// завершении оператору уходит итог. Запускается в отдельной горутине и
// не имеет отмены.
func (c *Coordinator) Broadcast(fromChat int64, messageID int) (sent, failed int) {
	ids, err := c.store.AllUserIDs(false)
	if err != nil {
		c.log.Errorw("рассылка: не удалось получить получателей", "error", err)
		return 0, 0
	}

	for _, id := range ids {
		if id == c.operatorID {
			continue
		}
		err := c.msg.Copy(id, fromChat, messageID)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrRecipientBlocked):
			failed++
			if berr := c.store.SetBlocked(id, true); berr != nil {
				c.log.Errorw("рассылка: не удалось пометить пользователя", "user", id, "error", berr)
			}
		default:
			failed++
			c.log.Warnw("рассылка: сбой доставки", "user", id, "error", err)
		}
		time.Sleep(c.pause)
	}

	tally := fmt.Sprintf("Рассылка завершена.\nУспешно: %d\nОшибок: %d", sent, failed)
	if err := c.notify(c.operatorID, tally); err != nil {
		c.log.Warnw("рассылка: не удалось отправить итог", "error", err)
	}
	return sent, failed
}

// DigestPending отправляет оператору сводку по ожидающим заявкам.
// Вызывается по расписанию; при пустой очереди молчит.
func (c *Coordinator) DigestPending() {
	n, oldest, err := c.store.PendingSummary()
	if err != nil {
		c.log.Errorw("сводка: ошибка леджера", "error", err)
		return
	}
	if n == 0 {
		return
	}
	age := time.Since(oldest).Round(time.Minute)
	text := fmt.Sprintf("⏳ Ожидают решения: %d заявок, самая старая — %s назад.", n, age)
	if err := c.notify(c.operatorID, text); err != nil {
		c.log.Warnw("сводка: сбой доставки", "error", err)
	}
}

// notify шлёт текст и конвертирует блокировку в запись леджера.
func (c *Coordinator) notify(userID int64, text string) error {
	err := c.msg.SendText(userID, text)
	if errors.Is(err, ErrRecipientBlocked) {
		if berr := c.store.SetBlocked(userID, true); berr != nil {
			c.log.Errorw("не удалось пометить пользователя заблокированным", "user", userID, "error", berr)
		}
		return nil
	}
	return err
}

func renderOrderCard(o *model.Order) string {
	title := "ПОКУПКА"
	if o.Action == model.ActionSell {
		title = "ПРОДАЖА"
	}
	username := o.Username
	if username == "" {
		username = "—"
	}
	return fmt.Sprintf(
		"📩 <b>Новая заявка — %s</b>\n\n"+
			"ID заявки: <b>#%d</b>\n"+
			"Пользователь: <a href=\"tg://user?id=%d\">%s</a> @%s\n"+
			"Сумма: <b>%s$</b>\n"+
			"Криптовалюта: <b>%s</b>\n"+
			"Детали: %s\n"+
			"Статус: <b>%s</b>",
		title, o.ID, o.UserID, html.EscapeString(o.DisplayName), html.EscapeString(username),
		o.AmountUSD, model.CryptoHuman(o.Crypto), html.EscapeString(o.TxInfo), o.Status,
	)
}
