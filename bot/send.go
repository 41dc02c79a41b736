package bot

import (
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/telebot.v3"

	"tom-exchange-bot/lifecycle"
)

// messenger реализует lifecycle.Messenger поверх telebot: блокировка
// получателя превращается в lifecycle.ErrRecipientBlocked, rate limit
// отрабатывается одной повторной попыткой после подсказанной сервером паузы.
type messenger struct {
	b   *telebot.Bot
	log *zap.SugaredLogger
}

func (m *messenger) SendText(to int64, text string, opts ...interface{}) error {
	return m.withRetry(func() error {
		_, err := m.b.Send(telebot.ChatID(to), text, opts...)
		return err
	})
}

func (m *messenger) SendPhoto(to int64, fileID, caption string, opts ...interface{}) error {
	photo := &telebot.Photo{File: telebot.File{FileID: fileID}, Caption: caption}
	return m.withRetry(func() error {
		_, err := m.b.Send(telebot.ChatID(to), photo, opts...)
		return err
	})
}

// Copy перевозит исходное сообщение получателю как есть: транспорт сам
// воспроизводит любой тип контента, ветвления по типам в логике нет.
func (m *messenger) Copy(to int64, fromChat int64, messageID int) error {
	src := telebot.StoredMessage{
		MessageID: strconv.Itoa(messageID),
		ChatID:    fromChat,
	}
	return m.withRetry(func() error {
		_, err := m.b.Copy(telebot.ChatID(to), src)
		return err
	})
}

func (m *messenger) withRetry(send func() error) error {
	err := send()
	if err == nil {
		return nil
	}
	if isBlocked(err) {
		return lifecycle.ErrRecipientBlocked
	}

	var flood telebot.FloodError
	if errors.As(err, &flood) {
		wait := time.Duration(flood.RetryAfter+1) * time.Second
		m.log.Infow("rate limit, ждём перед повтором", "wait", wait)
		time.Sleep(wait)
		err = send()
		if isBlocked(err) {
			return lifecycle.ErrRecipientBlocked
		}
	}
	return err
}

func isBlocked(err error) bool {
	return errors.Is(err, telebot.ErrBlockedByUser) ||
		errors.Is(err, telebot.ErrUserIsDeactivated)
}
