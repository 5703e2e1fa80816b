package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"Replayer/model"
)

// CompilationRepository 合集数据访问接口
type CompilationRepository interface {
	Save(ctx context.Context, c *model.Compilation) error
	GetByID(ctx context.Context, id string) (*model.Compilation, error)
	List(ctx context.Context) ([]*model.Compilation, error)
	Delete(ctx context.Context, id string) error
}

// gormCompilationRepository GORM 实现
type gormCompilationRepository struct {
	db *gorm.DB
}

// NewGormCompilationRepository 创建 GORM 合集仓库
func NewGormCompilationRepository(db *gorm.DB) CompilationRepository {
	return &gormCompilationRepository{db: db}
}

// Save 保存合集，替换原有的音轨和 cue
func (r *gormCompilationRepository) Save(ctx context.Context, c *model.Compilation) error {
	c.Normalize()
	if err := c.Validate(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, c.ID); err != nil {
			return err
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).
			Clauses(clause.OnConflict{UpdateAll: true}).
			Create(c).Error
	})
}

// GetByID 根据ID获取合集，音轨和 cue 按排序字段加载
func (r *gormCompilationRepository) GetByID(ctx context.Context, id string) (*model.Compilation, error) {
	var c model.Compilation
	err := r.db.WithContext(ctx).
		Preload("Tracks", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Preload("Tracks.Cues", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC")
		}).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// List 列出所有合集（不含音轨）
func (r *gormCompilationRepository) List(ctx context.Context) ([]*model.Compilation, error) {
	var list []*model.Compilation
	err := r.db.WithContext(ctx).
		Order("updated_at DESC").
		Find(&list).Error
	return list, err
}

// Delete 删除合集及其音轨和 cue
func (r *gormCompilationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, id); err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.Compilation{}).Error
	})
}

func deleteChildren(tx *gorm.DB, compilationID string) error {
	trackIDs := tx.Model(&model.Track{}).Select("id").Where("compilation_id = ?", compilationID)
	if err := tx.Where("track_id IN (?)", trackIDs).Delete(&model.Cue{}).Error; err != nil {
		return err
	}
	return tx.Where("compilation_id = ?", compilationID).Delete(&model.Track{}).Error
}
