package repository

import (
	"archive-depot-go/internal/model"

	"gorm.io/gorm"
)

// SystemConfigRepository 定义了对 system_configs 表的数据操作接口。
type SystemConfigRepository interface {
	Create(cfg *model.SystemConfiguration) error
	FindByID(id uint) (*model.SystemConfiguration, error)
	FindAll() ([]model.SystemConfiguration, error)
}

type systemConfigRepository struct {
	db *gorm.DB
}

// NewSystemConfigRepository 创建一个新的 SystemConfigRepository 实例。
func NewSystemConfigRepository(db *gorm.DB) SystemConfigRepository {
	return &systemConfigRepository{db: db}
}

func (r *systemConfigRepository) Create(cfg *model.SystemConfiguration) error {
	return r.db.Create(cfg).Error
}

func (r *systemConfigRepository) FindByID(id uint) (*model.SystemConfiguration, error) {
	var cfg model.SystemConfiguration
	if err := r.db.First(&cfg, id).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *systemConfigRepository) FindAll() ([]model.SystemConfiguration, error) {
	var cfgs []model.SystemConfiguration
	err := r.db.Order("id asc").Find(&cfgs).Error
	return cfgs, err
}
