// Package content 实现站点内容的持久化：可拖拽排序的列表资源与单例站点配置。
package content

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"portfolio/internal/apperr"
	"portfolio/internal/database"
)

const orderColumn = "sort_order"

// listOrder 保证 order 相同时按插入先后稳定排序。
const listOrder = "sort_order asc, created_at asc, id asc"

// OrderUpdate 是一次拖拽排序提交中的单个条目。
type OrderUpdate struct {
	ID    string `json:"id"`
	Order int    `json:"order"`
}

// OrderedStore 为带 order 字段的实体提供增删改查与批量排序。
type OrderedStore[T any, PT interface {
	*T
	database.Sortable
}] struct {
	db   *gorm.DB
	name string
}

// NewOrderedStore 构造列表资源存储，name 用于错误消息（如 "skill"）。
func NewOrderedStore[T any, PT interface {
	*T
	database.Sortable
}](db *gorm.DB, name string) *OrderedStore[T, PT] {
	return &OrderedStore[T, PT]{db: db, name: name}
}

// Name 返回资源名。
func (s *OrderedStore[T, PT]) Name() string { return s.name }

// List 返回按 order 升序排列的全部条目。
func (s *OrderedStore[T, PT]) List(ctx context.Context) ([]T, error) {
	items := make([]T, 0)
	if err := s.db.WithContext(ctx).Order(listOrder).Find(&items).Error; err != nil {
		return nil, apperr.E(apperr.KindPersistence, fmt.Sprintf("failed to fetch %s list", s.name), err)
	}
	return items, nil
}

// Get 按 ID 读取单个条目。
func (s *OrderedStore[T, PT]) Get(ctx context.Context, id string) (*T, error) {
	var item T
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(s.name + " not found")
		}
		return nil, apperr.E(apperr.KindPersistence, fmt.Sprintf("failed to fetch %s", s.name), err)
	}
	return &item, nil
}

// Create 插入条目；未显式指定 order 时追加到末尾（order = 当前条目数）。
func (s *OrderedStore[T, PT]) Create(ctx context.Context, item *T, order *int) error {
	db := s.db.WithContext(ctx)
	if order != nil {
		PT(item).SetOrder(*order)
	} else {
		var count int64
		if err := db.Model(new(T)).Count(&count).Error; err != nil {
			return apperr.E(apperr.KindPersistence, fmt.Sprintf("failed to count %s list", s.name), err)
		}
		PT(item).SetOrder(int(count))
	}
	if err := db.Create(item).Error; err != nil {
		return apperr.E(apperr.KindPersistence, fmt.Sprintf("failed to create %s", s.name), err)
	}
	return nil
}

// Update 仅更新 updates 中出现的列，返回更新后的条目与更新前的快照。
func (s *OrderedStore[T, PT]) Update(ctx context.Context, id string, updates map[string]any) (*T, *T, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	previous := *current

	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).Model(current).Updates(updates).Error; err != nil {
			return nil, nil, apperr.E(apperr.KindPersistence, fmt.Sprintf("failed to update %s", s.name), err)
		}
	}

	updated, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return updated, &previous, nil
}

// Delete 删除条目并返回被删除的数据，剩余条目不重新编号。
func (s *OrderedStore[T, PT]) Delete(ctx context.Context, id string) (*T, error) {
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(item).Error; err != nil {
		return nil, apperr.E(apperr.KindPersistence, fmt.Sprintf("failed to delete %s", s.name), err)
	}
	return item, nil
}

// Reorder 在单个事务中写入拖拽结果，任意条目失败则整体回滚。
func (s *OrderedStore[T, PT]) Reorder(ctx context.Context, updates []OrderUpdate) ([]T, error) {
	if err := validateOrderUpdates(updates); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			res := tx.Model(new(T)).Where("id = ?", u.ID).Update(orderColumn, u.Order)
			if res.Error != nil {
				return apperr.E(apperr.KindPersistence, fmt.Sprintf("failed to reorder %s list", s.name), res.Error)
			}
			if res.RowsAffected == 0 {
				return apperr.NotFound(fmt.Sprintf("%s %s not found", s.name, u.ID))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.List(ctx)
}

func validateOrderUpdates(updates []OrderUpdate) error {
	if len(updates) == 0 {
		return apperr.Validation("Invalid reorder payload", map[string]string{"items": "must not be empty"})
	}
	seen := make(map[string]struct{}, len(updates))
	for i, u := range updates {
		key := fmt.Sprintf("items[%d]", i)
		if u.ID == "" {
			return apperr.Validation("Invalid reorder payload", map[string]string{key: "id is required"})
		}
		if u.Order < 0 {
			return apperr.Validation("Invalid reorder payload", map[string]string{key: "order must not be negative"})
		}
		if _, dup := seen[u.ID]; dup {
			return apperr.Validation("Invalid reorder payload", map[string]string{key: "duplicate id"})
		}
		seen[u.ID] = struct{}{}
	}
	return nil
}
