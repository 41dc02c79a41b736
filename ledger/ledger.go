// Package ledger — долговременное хранилище заявок, пользователей и настроек
// поверх gorm/sqlite. Каждый метод — самостоятельная транзакция: записи на
// уровне одного вызова атомарны, межвызовных блокировок не требуется.
package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"tom-exchange-bot/model"
)

// ErrNotFound возвращается при поиске несуществующей заявки или настройки.
var ErrNotFound = errors.New("ledger: not found")

// Store инкапсулирует доступ к базе.
type Store struct {
	db *gorm.DB
}

// Open открывает sqlite-базу в WAL-режиме и прогоняет миграции.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(30000)"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&model.User{}, &model.Order{}, &model.Setting{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore оборачивает уже открытое соединение (используется в тестах).
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// --- Пользователи ---

// UpsertUser создаёт пользователя либо обновляет username/display_name/last_seen.
// first_seen и blocked при конфликте не трогаются.
func (s *Store) UpsertUser(id int64, username, displayName string) error {
	now := time.Now().UTC()
	u := model.User{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		FirstSeen:   now,
		LastSeen:    now,
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"username":     username,
			"display_name": displayName,
			"last_seen":    now,
		}),
	}).Create(&u).Error
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", id, err)
	}
	return nil
}

// GetUser возвращает пользователя по Telegram ID.
func (s *Store) GetUser(id int64) (*model.User, error) {
	var u model.User
	if err := s.db.First(&u, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return &u, nil
}

// SetBlocked выставляет флаг доступа. Идемпотентно.
func (s *Store) SetBlocked(id int64, blocked bool) error {
	err := s.db.Model(&model.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"blocked": blocked, "last_seen": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("set blocked %d: %w", id, err)
	}
	return nil
}

// AllUserIDs возвращает идентификаторы всех известных пользователей.
// При onlyActive=true заблокированные исключаются.
func (s *Store) AllUserIDs(onlyActive bool) ([]int64, error) {
	var ids []int64
	q := s.db.Model(&model.User{})
	if onlyActive {
		q = q.Where("blocked = ?", false)
	}
	if err := q.Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

// --- Заявки ---

// CreateOrder сохраняет новую заявку и возвращает её номер.
func (s *Store) CreateOrder(o *model.Order) (uint, error) {
	if o.Status == "" {
		o.Status = model.StatusPending
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	if err := s.db.Create(o).Error; err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	return o.ID, nil
}

// GetOrder возвращает заявку по номеру.
func (s *Store) GetOrder(id uint) (*model.Order, error) {
	var o model.Order
	if err := s.db.First(&o, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order %d: %w", id, err)
	}
	return &o, nil
}

// UpdateOrderStatus переводит заявку в указанный статус.
// Повторное решение по уже решённой заявке молча перезаписывает статус.
func (s *Store) UpdateOrderStatus(id uint, status model.Status) error {
	res := s.db.Model(&model.Order{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("update order %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountOrders возвращает общее число заявок пользователя.
func (s *Store) CountOrders(userID int64) (int, error) {
	var n int64
	err := s.db.Model(&model.Order{}).Where("user_id = ?", userID).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count orders: %w", err)
	}
	return int(n), nil
}

// CountApprovedBuys считает подтверждённые покупки — основа бонуса и тиров.
func (s *Store) CountApprovedBuys(userID int64) (int, error) {
	var n int64
	err := s.db.Model(&model.Order{}).
		Where("user_id = ? AND action = ? AND status = ?", userID, model.ActionBuy, model.StatusApproved).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count approved buys: %w", err)
	}
	return int(n), nil
}

// RecentOrders возвращает последние n заявок пользователя, новые первыми.
func (s *Store) RecentOrders(userID int64, n int) ([]model.Order, error) {
	var orders []model.Order
	err := s.db.Where("user_id = ?", userID).
		Order("id DESC").Limit(n).Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("recent orders: %w", err)
	}
	return orders, nil
}

// PendingSummary возвращает число ожидающих заявок и время самой старой.
func (s *Store) PendingSummary() (int, time.Time, error) {
	var orders []model.Order
	err := s.db.Where("status = ?", model.StatusPending).
		Order("id ASC").Limit(1).Find(&orders).Error
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("pending summary: %w", err)
	}
	var n int64
	if err := s.db.Model(&model.Order{}).Where("status = ?", model.StatusPending).Count(&n).Error; err != nil {
		return 0, time.Time{}, fmt.Errorf("pending summary: %w", err)
	}
	if n == 0 {
		return 0, time.Time{}, nil
	}
	return int(n), orders[0].CreatedAt, nil
}
