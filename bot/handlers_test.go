package bot

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/telebot.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tom-exchange-bot/ledger"
	"tom-exchange-bot/model"
)

// fakeContext подменяет telebot.Context для прогона обработчиков без
// транспорта: перехватывает отправки и ответы на callback. Методы,
// которые обработчики не зовут, падают через вложенный nil-интерфейс.
type fakeContext struct {
	telebot.Context

	sender *telebot.User
	chat   *telebot.Chat
	msg    *telebot.Message
	text   string
	data   string

	sent      []string
	responses []*telebot.CallbackResponse
}

func (c *fakeContext) Sender() *telebot.User     { return c.sender }
func (c *fakeContext) Chat() *telebot.Chat       { return c.chat }
func (c *fakeContext) Message() *telebot.Message { return c.msg }
func (c *fakeContext) Text() string              { return c.text }
func (c *fakeContext) Data() string              { return c.data }

func (c *fakeContext) Send(what interface{}, _ ...interface{}) error {
	if s, ok := what.(string); ok {
		c.sent = append(c.sent, s)
	}
	return nil
}

func (c *fakeContext) Respond(resp ...*telebot.CallbackResponse) error {
	if len(resp) == 0 {
		resp = []*telebot.CallbackResponse{{}}
	}
	c.responses = append(c.responses, resp...)
	return nil
}

func (c *fakeContext) lastSent() string {
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

func newCtx(userID int64) *fakeContext {
	return &fakeContext{
		sender: &telebot.User{ID: userID, FirstName: "Иван"},
		chat:   &telebot.Chat{ID: userID},
	}
}

// newHandlerBot собирает бота над настоящим хранилищем в памяти; транспорт
// и координатор не поднимаются — обработчики дергаются напрямую.
func newHandlerBot(t *testing.T) *Bot {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.Order{}, &model.Setting{}))

	store := ledger.NewStore(db)
	require.NoError(t, store.EnsureDefaults())

	return &Bot{
		store:          store,
		log:            zap.NewNop().Sugar(),
		operatorID:     100,
		bonusThreshold: 5,
		bonusAmount:    decimal.RequireFromString("20"),
		states:         make(map[sessionKey]int),
		drafts:         make(map[sessionKey]*draft),
	}
}

func startIntake(bot *Bot, key sessionKey, action model.Action) {
	bot.resetSession(key)
	bot.updateDraft(key, func(d *draft) { d.action = action })
	bot.setState(key, stateAwaitAmount)
}

func TestHandleAmountBelowMinimumReprompts(t *testing.T) {
	bot := newHandlerBot(t)
	c := newCtx(7)
	key := bot.sessionOf(c)
	startIntake(bot, key, model.ActionBuy)

	// Минимум по умолчанию 10$.
	c.text = "5"
	require.NoError(t, bot.handleAmount(c, key))

	assert.Equal(t, stateAwaitAmount, bot.state(key), "переспрос не меняет состояние")
	assert.True(t, bot.draftView(key).amount.IsZero(), "сумма в черновик не записана")
	assert.Contains(t, c.lastSent(), "Минимальная сумма")
}

func TestHandleAmountInvalidInputReprompts(t *testing.T) {
	bot := newHandlerBot(t)
	c := newCtx(7)
	key := bot.sessionOf(c)
	startIntake(bot, key, model.ActionBuy)

	for _, in := range []string{"abc", "-5", "0"} {
		c.text = in
		require.NoError(t, bot.handleAmount(c, key))
		assert.Equal(t, stateAwaitAmount, bot.state(key), "input %q", in)
		assert.True(t, bot.draftView(key).amount.IsZero(), "input %q", in)
		assert.Contains(t, c.lastSent(), "корректную сумму", "input %q", in)
	}
}

func TestHandleAmountValidAdvancesWithPreview(t *testing.T) {
	bot := newHandlerBot(t)
	c := newCtx(7)
	key := bot.sessionOf(c)
	startIntake(bot, key, model.ActionBuy)

	// 150.50 * 18.6 (курс по умолчанию) = 2799.30 -> вверх до 2800.
	c.text = "150.50"
	require.NoError(t, bot.handleAmount(c, key))

	assert.Equal(t, stateAwaitCrypto, bot.state(key))
	assert.True(t, bot.draftView(key).amount.Equal(decimal.RequireFromString("150.50")))
	require.Len(t, c.sent, 2)
	assert.Contains(t, c.sent[0], "2800")
	assert.Contains(t, c.sent[1], "криптовалюту")
}

func TestCryptoSelectWithoutDraftRejected(t *testing.T) {
	bot := newHandlerBot(t)
	c := newCtx(7)
	c.data = "LTC"

	// Сессия в Idle: устаревший клик по старой клавиатуре.
	require.NoError(t, bot.onCryptoSelect(c))

	key := bot.sessionOf(c)
	assert.Equal(t, stateIdle, bot.state(key))
	require.Len(t, c.responses, 1)
	assert.Contains(t, c.responses[0].Text, "Заявка потеряна")
}

func TestCryptoSelectDisabledCodeKeepsState(t *testing.T) {
	bot := newHandlerBot(t)
	require.NoError(t, bot.store.SetSetting(ledger.KeyCryptos, "USDT_TRON"))

	c := newCtx(7)
	key := bot.sessionOf(c)
	startIntake(bot, key, model.ActionBuy)
	c.text = "100"
	require.NoError(t, bot.handleAmount(c, key))
	require.Equal(t, stateAwaitCrypto, bot.state(key))

	// LTC выключен оператором после показа клавиатуры.
	c.data = "LTC"
	require.NoError(t, bot.onCryptoSelect(c))

	assert.Equal(t, stateAwaitCrypto, bot.state(key), "отказ не меняет состояние")
	assert.Empty(t, bot.draftView(key).crypto)
	require.NotEmpty(t, c.responses)
	assert.Contains(t, c.responses[len(c.responses)-1].Text, "недоступна")
}

func TestCryptoSelectEnabledCodeAdvancesBuy(t *testing.T) {
	bot := newHandlerBot(t)
	c := newCtx(7)
	key := bot.sessionOf(c)
	startIntake(bot, key, model.ActionBuy)
	c.text = "100"
	require.NoError(t, bot.handleAmount(c, key))

	c.data = "USDT_TRON"
	require.NoError(t, bot.onCryptoSelect(c))

	assert.Equal(t, stateAwaitBuyMethod, bot.state(key))
	assert.Equal(t, "USDT_TRON", bot.draftView(key).crypto)
	assert.Contains(t, c.lastSent(), "способ оплаты")
}

func TestBroadcastPromptCountsActiveOnly(t *testing.T) {
	bot := newHandlerBot(t)
	require.NoError(t, bot.store.UpsertUser(1, "a", "A"))
	require.NoError(t, bot.store.UpsertUser(2, "b", "B"))
	require.NoError(t, bot.store.UpsertUser(3, "c", "C"))
	require.NoError(t, bot.store.SetBlocked(2, true))

	c := newCtx(100) // оператор
	c.msg = &telebot.Message{ID: 5, Chat: c.chat}
	key := bot.sessionOf(c)
	bot.setState(key, stateAwaitBroadcastContent)

	require.NoError(t, bot.handleBroadcastContent(c, key))

	assert.Equal(t, stateAwaitBroadcastConfirm, bot.state(key))
	d := bot.draftView(key)
	assert.Equal(t, int64(100), d.srcChatID)
	assert.Equal(t, 5, d.srcMessageID)
	assert.True(t, strings.Contains(c.lastSent(), "2 пользователям"),
		"заблокированные не считаются: %q", c.lastSent())
}
