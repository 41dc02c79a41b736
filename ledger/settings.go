package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"tom-exchange-bot/model"
)

// Ключи настроек. Значения всегда строковые, разбираются при чтении.
const (
	KeyBuyRate    = "buy_rate"
	KeySellRate   = "sell_rate"
	KeyMinUSD     = "min_usd"
	KeyCryptos    = "cryptos"
	KeySupport    = "support_username"
	WalletKeyPref = "wallet_"
)

// WalletKey возвращает ключ кошелька для кода криптовалюты.
func WalletKey(code string) string { return WalletKeyPref + code }

// Defaults — стартовые значения, записываются один раз при первом запуске.
var Defaults = map[string]string{
	KeyBuyRate:  "18.6",
	KeySellRate: "16.5",
	KeyMinUSD:   "10",
	KeyCryptos:  "USDT_TRON,LTC",
	KeySupport:  "@TOM_EXCH_PMR",

	WalletKey("USDT_TRON"): "TBVKYMdP63hGm4wszvpRmsbUazCyriyYUT",
	WalletKey("LTC"):       "LWzfxJHnRswAhu5uYP1trdzVh68HrxYrDT",
}

// EnsureDefaults записывает отсутствующие настройки, не трогая существующие.
func (s *Store) EnsureDefaults() error {
	for k, v := range Defaults {
		err := s.db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.Setting{Key: k, Value: v}).Error
		if err != nil {
			return fmt.Errorf("ensure default %s: %w", k, err)
		}
	}
	return nil
}

// Setting возвращает сырое строковое значение настройки.
func (s *Store) Setting(key string) (string, error) {
	var row model.Setting
	if err := s.db.First(&row, "key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return row.Value, nil
}

// SetSetting записывает значение настройки (upsert).
func (s *Store) SetSetting(key, value string) error {
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"value": value}),
	}).Create(&model.Setting{Key: key, Value: value}).Error
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// Settings — типизированный снимок настроек на момент чтения. Котировки
// считаются от снимка, поэтому смена курса не влияет на уже показанные суммы.
type Settings struct {
	BuyRate  decimal.Decimal
	SellRate decimal.Decimal
	MinUSD   decimal.Decimal
	Cryptos  []string
	Support  string
}

// Enabled сообщает, включён ли код в текущем снимке.
func (st *Settings) Enabled(code string) bool {
	for _, c := range st.Cryptos {
		if c == code {
			return true
		}
	}
	return false
}

// Snapshot читает и разбирает все настройки разом.
func (s *Store) Snapshot() (*Settings, error) {
	st := &Settings{}

	var err error
	if st.BuyRate, err = s.decimalSetting(KeyBuyRate); err != nil {
		return nil, err
	}
	if st.SellRate, err = s.decimalSetting(KeySellRate); err != nil {
		return nil, err
	}
	if st.MinUSD, err = s.decimalSetting(KeyMinUSD); err != nil {
		return nil, err
	}

	raw, err := s.Setting(KeyCryptos)
	if err != nil {
		return nil, err
	}
	for _, code := range strings.Split(raw, ",") {
		code = strings.TrimSpace(code)
		if code != "" {
			st.Cryptos = append(st.Cryptos, code)
		}
	}

	if st.Support, err = s.Setting(KeySupport); err != nil {
		return nil, err
	}
	return st, nil
}

// Wallet возвращает адрес кошелька для включённой криптовалюты.
func (s *Store) Wallet(code string) (string, error) {
	return s.Setting(WalletKey(code))
}

func (s *Store) decimalSetting(key string) (decimal.Decimal, error) {
	raw, err := s.Setting(key)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("setting %s: %w", key, err)
	}
	return d, nil
}
