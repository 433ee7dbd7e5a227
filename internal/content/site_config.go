package content

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"portfolio/internal/apperr"
	"portfolio/internal/database"
)

// SiteConfigStore 管理单例站点配置。
type SiteConfigStore struct {
	db *gorm.DB
}

// NewSiteConfigStore 构造单例配置存储。
func NewSiteConfigStore(db *gorm.DB) *SiteConfigStore {
	return &SiteConfigStore{db: db}
}

// Get 返回当前配置；尚未初始化时返回 (nil, nil)。
func (s *SiteConfigStore) Get(ctx context.Context) (*database.SiteConfig, error) {
	cfg, err := s.first(s.db.WithContext(ctx))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to fetch site config", err)
	}
	return cfg, nil
}

// Create 一次性初始化配置，已存在时返回 Conflict。
func (s *SiteConfigStore) Create(ctx context.Context, cfg *database.SiteConfig) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&database.SiteConfig{}).Count(&count).Error; err != nil {
			return apperr.E(apperr.KindPersistence, "Failed to create site config", err)
		}
		if count > 0 {
			return apperr.E(apperr.KindConflict, "Site config already exists", nil)
		}
		cfg.ID = ""
		if err := tx.Create(cfg).Error; err != nil {
			return apperr.E(apperr.KindPersistence, "Failed to create site config", err)
		}
		return nil
	})
}

// Update 更新现存的那一行，返回更新后与更新前的配置。
func (s *SiteConfigStore) Update(ctx context.Context, updates map[string]any) (*database.SiteConfig, *database.SiteConfig, error) {
	db := s.db.WithContext(ctx)
	current, err := s.first(db)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.NotFound("No site config found")
	}
	if err != nil {
		return nil, nil, apperr.E(apperr.KindPersistence, "Failed to update site config", err)
	}
	previous := *current

	if len(updates) > 0 {
		if err := db.Model(current).Updates(updates).Error; err != nil {
			return nil, nil, apperr.E(apperr.KindPersistence, "Failed to update site config", err)
		}
	}

	updated, err := s.first(db)
	if err != nil {
		return nil, nil, apperr.E(apperr.KindPersistence, "Failed to update site config", err)
	}
	return updated, &previous, nil
}

// Delete 删除现存的那一行并返回其内容，删除后可以再次 Create。
func (s *SiteConfigStore) Delete(ctx context.Context) (*database.SiteConfig, error) {
	db := s.db.WithContext(ctx)
	current, err := s.first(db)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("No site config found")
	}
	if err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to delete site config", err)
	}
	if err := db.Delete(current).Error; err != nil {
		return nil, apperr.E(apperr.KindPersistence, "Failed to delete site config", err)
	}
	return current, nil
}

func (s *SiteConfigStore) first(db *gorm.DB) (*database.SiteConfig, error) {
	var cfg database.SiteConfig
	if err := db.Order("created_at asc").First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}
