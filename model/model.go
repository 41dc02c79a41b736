// Package model содержит сущности обменника: пользователей, заявки и настройки.
package model

import (
	"strings"
	"time"
)

// Action определяет направление заявки.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Status описывает жизненный цикл заявки.
// pending -> approved | rejected, терминальные статусы не переоткрываются.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// AllowedCryptos — полный набор кодов, которые вообще могут быть включены.
// Подмножество включённых кодов хранится в настройке "cryptos".
var AllowedCryptos = []string{"USDT_TRON", "LTC"}

// CryptoHuman возвращает человекочитаемое название криптовалюты.
func CryptoHuman(code string) string {
	switch code {
	case "USDT_TRON":
		return "USDT (TRC20)"
	case "LTC":
		return "LTC"
	}
	return code
}

// CryptoAllowed сообщает, известен ли код вообще (не путать с включённостью).
func CryptoAllowed(code string) bool {
	for _, c := range AllowedCryptos {
		if c == code {
			return true
		}
	}
	return false
}

// User — участник обмена, создаётся/обновляется на каждом входящем событии.
type User struct {
	ID          int64 `gorm:"primaryKey"` // Telegram User ID
	Username    string
	DisplayName string
	FirstSeen   time.Time
	LastSeen    time.Time
	Blocked     bool `gorm:"default:false"`
}

// Order — заявка на покупку или продажу. Профиль отправителя денормализован
// на момент создания; после терминального статуса запись не меняется.
type Order struct {
	ID          uint  `gorm:"primaryKey"`
	UserID      int64 `gorm:"index"`
	Username    string
	DisplayName string
	Action      Action
	AmountUSD   string // каноническая сумма с двумя знаками, записывается один раз
	Crypto      string
	TxInfo      string
	Status      Status `gorm:"default:pending"`
	CreatedAt   time.Time
}

// Setting — строковая настройка процесса (курсы, минимум, кошельки и т.д.).
type Setting struct {
	Key   string `gorm:"primaryKey"`
	Value string
}

// DisplayNameOf склеивает имя и фамилию Telegram-профиля.
func DisplayNameOf(first, last string) string {
	return strings.TrimSpace(first + " " + last)
}
