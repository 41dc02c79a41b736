// Package pricing — чистые функции котировки, бонуса и тиров лояльности.
// Вся арифметика на decimal: ошибки плавающей точки меняют показанные
// пользователю суммы и потому недопустимы.
package pricing

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"tom-exchange-bot/model"
)

// ErrBadAmount возвращается для нечисловой или неположительной суммы.
var ErrBadAmount = errors.New("pricing: bad amount")

// ParseAmount разбирает сумму в долларах: допускает и точку, и запятую,
// приводит к двум знакам банковским округлением. Сумма, которая после
// квантизации стала нулём, отклоняется наравне с неположительной.
func ParseAmount(text string) (decimal.Decimal, error) {
	t := strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
	d, err := decimal.NewFromString(t)
	if err != nil {
		return decimal.Zero, ErrBadAmount
	}
	d = d.RoundBank(2)
	if !d.IsPositive() {
		return decimal.Zero, ErrBadAmount
	}
	return d, nil
}

// Quote переводит сумму в долларах в целую сумму расчёта в местной валюте.
// Покупка округляется вверх, продажа — вниз: асимметрия защищает маржу
// в обе стороны.
func Quote(action model.Action, amountUSD, rate decimal.Decimal) decimal.Decimal {
	raw := amountUSD.Mul(rate)
	if action == model.ActionBuy {
		return raw.Ceil()
	}
	return raw.Floor()
}

// BonusEligible: бонус положен после threshold подтверждённых покупок.
func BonusEligible(approvedBuys, threshold int) bool {
	return approvedBuys >= threshold
}

// BuyTotal возвращает итог покупки с учётом бонуса. Скидка применяется
// только к покупке, пересчитывается в момент котировки и не уводит итог
// ниже нуля.
func BuyTotal(amountUSD, buyRate decimal.Decimal, approvedBuys, threshold int, bonus decimal.Decimal) (decimal.Decimal, bool) {
	total := Quote(model.ActionBuy, amountUSD, buyRate)
	if !BonusEligible(approvedBuys, threshold) {
		return total, false
	}
	total = total.Sub(bonus)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return total, true
}

// LoyaltyTier — презентационная метка по числу подтверждённых покупок.
func LoyaltyTier(approvedBuys int) string {
	switch {
	case approvedBuys < 5:
		return "Новичок"
	case approvedBuys < 9:
		return "Бронза"
	case approvedBuys < 15:
		return "Серебро"
	case approvedBuys < 25:
		return "Золото"
	default:
		return "Платина"
	}
}
