package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"Replayer/model"
)

// settingsRowID 播放设置只有一行
const settingsRowID int64 = 1

// SettingsRepository 播放设置数据访问接口
type SettingsRepository interface {
	// Get 读取设置，未保存过时返回 defaults
	Get(ctx context.Context) (model.Settings, error)
	Save(ctx context.Context, s model.Settings) (model.Settings, error)
}

// gormSettingsRepository GORM 实现
type gormSettingsRepository struct {
	db       *gorm.DB
	defaults model.Settings
}

// NewGormSettingsRepository 创建 GORM 设置仓库
func NewGormSettingsRepository(db *gorm.DB, defaults model.Settings) SettingsRepository {
	return &gormSettingsRepository{db: db, defaults: defaults}
}

func (r *gormSettingsRepository) Get(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	err := r.db.WithContext(ctx).Where("id = ?", settingsRowID).First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return r.defaults, nil
		}
		return model.Settings{}, err
	}
	return s, nil
}

func (r *gormSettingsRepository) Save(ctx context.Context, s model.Settings) (model.Settings, error) {
	s.ID = settingsRowID
	s.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(&s).Error; err != nil {
		return model.Settings{}, err
	}
	return s, nil
}
