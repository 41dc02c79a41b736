package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tom-exchange-bot/ledger"
	"tom-exchange-bot/model"
)

type stubStore struct {
	orders  map[uint]*model.Order
	nextID  uint
	userIDs []int64
	blocked map[int64]bool

	pendingCount  int
	pendingOldest time.Time
}

func newStubStore() *stubStore {
	return &stubStore{
		orders:  make(map[uint]*model.Order),
		nextID:  1,
		blocked: make(map[int64]bool),
	}
}

func (s *stubStore) CreateOrder(o *model.Order) (uint, error) {
	o.ID = s.nextID
	s.nextID++
	if o.Status == "" {
		o.Status = model.StatusPending
	}
	s.orders[o.ID] = o
	return o.ID, nil
}

func (s *stubStore) GetOrder(id uint) (*model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *stubStore) UpdateOrderStatus(id uint, status model.Status) error {
	o, ok := s.orders[id]
	if !ok {
		return ledger.ErrNotFound
	}
	o.Status = status
	return nil
}

func (s *stubStore) SetBlocked(userID int64, blocked bool) error {
	s.blocked[userID] = blocked
	return nil
}

func (s *stubStore) AllUserIDs(onlyActive bool) ([]int64, error) {
	return s.userIDs, nil
}

func (s *stubStore) PendingSummary() (int, time.Time, error) {
	return s.pendingCount, s.pendingOldest, nil
}

// stubMessenger считает доставки; адресаты из unreachable получают
// ErrRecipientBlocked, из failing — непрозрачную ошибку.
type stubMessenger struct {
	texts       map[int64][]string
	copies      map[int64]int
	unreachable map[int64]bool
	failing     map[int64]bool
}

func newStubMessenger() *stubMessenger {
	return &stubMessenger{
		texts:       make(map[int64][]string),
		copies:      make(map[int64]int),
		unreachable: make(map[int64]bool),
		failing:     make(map[int64]bool),
	}
}

func (m *stubMessenger) SendText(to int64, text string, opts ...interface{}) error {
	if m.unreachable[to] {
		return ErrRecipientBlocked
	}
	if m.failing[to] {
		return errors.New("delivery failed")
	}
	m.texts[to] = append(m.texts[to], text)
	return nil
}

func (m *stubMessenger) SendPhoto(to int64, fileID, caption string, opts ...interface{}) error {
	return m.SendText(to, caption, opts...)
}

func (m *stubMessenger) Copy(to int64, fromChat int64, messageID int) error {
	if m.unreachable[to] {
		return ErrRecipientBlocked
	}
	if m.failing[to] {
		return errors.New("delivery failed")
	}
	m.copies[to]++
	return nil
}

const operatorID int64 = 100

func newCoordinator(store Store, msg Messenger) *Coordinator {
	return New(store, msg, zap.NewNop().Sugar(), operatorID, 0)
}

func TestApplyDecisionNotFound(t *testing.T) {
	store := newStubStore()
	msg := newStubMessenger()
	c := newCoordinator(store, msg)

	_, err := c.ApplyDecision(999, model.StatusApproved)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
	assert.Empty(t, msg.texts)
}

func TestApplyDecisionTransitionsAndNotifies(t *testing.T) {
	store := newStubStore()
	msg := newStubMessenger()
	c := newCoordinator(store, msg)

	id, err := store.CreateOrder(&model.Order{UserID: 7, Action: model.ActionBuy, AmountUSD: "10.00"})
	require.NoError(t, err)

	o, err := c.ApplyDecision(id, model.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, o.Status)

	stored, err := store.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)
	require.Len(t, msg.texts[7], 1)
	assert.Contains(t, msg.texts[7][0], "подтверждена")

	// Повторное решение молча перезаписывает статус.
	o, err = c.ApplyDecision(id, model.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, o.Status)
}

func TestApplyDecisionNotifyFailureKeepsStatus(t *testing.T) {
	store := newStubStore()
	msg := newStubMessenger()
	msg.failing[7] = true
	c := newCoordinator(store, msg)

	id, err := store.CreateOrder(&model.Order{UserID: 7, Action: model.ActionSell, AmountUSD: "10.00"})
	require.NoError(t, err)

	o, err := c.ApplyDecision(id, model.StatusRejected)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, o.Status)

	stored, err := store.GetOrder(id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, stored.Status)
}

func TestApplyDecisionBlockedRecipientMarked(t *testing.T) {
	store := newStubStore()
	msg := newStubMessenger()
	msg.unreachable[7] = true
	c := newCoordinator(store, msg)

	id, err := store.CreateOrder(&model.Order{UserID: 7, Action: model.ActionBuy, AmountUSD: "10.00"})
	require.NoError(t, err)

	_, err = c.ApplyDecision(id, model.StatusApproved)
	require.NoError(t, err)
	assert.True(t, store.blocked[7], "недоступность при доставке должна пометить пользователя")
}

func TestBroadcastTally(t *testing.T) {
	store := newStubStore()
	store.userIDs = []int64{1, 2, 3, 4, operatorID}
	msg := newStubMessenger()
	msg.unreachable[2] = true
	msg.unreachable[4] = true
	c := newCoordinator(store, msg)

	sent, failed := c.Broadcast(500, 600)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, failed)

	// Оператор пропущен, недоступные помечены, остальные получили копию.
	assert.Zero(t, msg.copies[operatorID])
	assert.True(t, store.blocked[2])
	assert.True(t, store.blocked[4])
	assert.Equal(t, 1, msg.copies[1])
	assert.Equal(t, 1, msg.copies[3])

	// Итог ушёл оператору.
	require.Len(t, msg.texts[operatorID], 1)
	assert.Contains(t, msg.texts[operatorID][0], "Успешно: 2")
	assert.Contains(t, msg.texts[operatorID][0], "Ошибок: 2")
}

func TestBroadcastToleratesOpaqueFailures(t *testing.T) {
	store := newStubStore()
	store.userIDs = []int64{1, 2, 3}
	msg := newStubMessenger()
	msg.failing[2] = true
	c := newCoordinator(store, msg)

	sent, failed := c.Broadcast(500, 600)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 1, failed)
	assert.False(t, store.blocked[2], "непрозрачный сбой — не повод для бана")
}

func TestSetBlockedNotifies(t *testing.T) {
	store := newStubStore()
	msg := newStubMessenger()
	c := newCoordinator(store, msg)

	require.NoError(t, c.SetBlocked(7, true))
	assert.True(t, store.blocked[7])
	require.Len(t, msg.texts[7], 1)
	assert.Contains(t, msg.texts[7][0], "ограничен")

	require.NoError(t, c.SetBlocked(7, false))
	assert.False(t, store.blocked[7])
}

func TestDigestPending(t *testing.T) {
	store := newStubStore()
	msg := newStubMessenger()
	c := newCoordinator(store, msg)

	c.DigestPending()
	assert.Empty(t, msg.texts[operatorID], "пустая очередь — без сводки")

	store.pendingCount = 3
	store.pendingOldest = time.Now().Add(-2 * time.Hour)
	c.DigestPending()
	require.Len(t, msg.texts[operatorID], 1)
	assert.Contains(t, msg.texts[operatorID][0], "3")
}

func TestNotifyOperatorCardContents(t *testing.T) {
	store := newStubStore()
	msg := newStubMessenger()
	c := newCoordinator(store, msg)

	o := &model.Order{ID: 12, UserID: 7, Username: "ivan", DisplayName: "Иван",
		Action: model.ActionSell, AmountUSD: "150.50", Crypto: "LTC",
		TxInfo: "tx: abc\nвыплата: Card 1234", Status: model.StatusPending}
	c.NotifyOperator(o, "")

	require.Len(t, msg.texts[operatorID], 1)
	card := msg.texts[operatorID][0]
	assert.Contains(t, card, "#12")
	assert.Contains(t, card, "150.50$")
	assert.Contains(t, card, "ПРОДАЖА")
	assert.Contains(t, card, "Card 1234")
}
