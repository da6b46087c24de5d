// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"archive-depot-go/internal/model"

	"gorm.io/gorm"
)

// ArchiveRepository 接口定义了归档记录的持久化操作。
type ArchiveRepository interface {
	Create(archive *model.Archive) error
	FindByID(id uint) (*model.Archive, error)
	FindAll() ([]model.Archive, error)
	Update(archive *model.Archive) error
	Delete(id uint) error
}

type archiveRepository struct {
	db *gorm.DB
}

// NewArchiveRepository 创建一个新的 ArchiveRepository 实例。
func NewArchiveRepository(db *gorm.DB) ArchiveRepository {
	return &archiveRepository{db: db}
}

// Create 在事务中插入一条归档记录，成功后 archive.ID 会被回填。
func (r *archiveRepository) Create(archive *model.Archive) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(archive).Error
	})
}

// FindByID 根据 ID 查找归档记录，不存在时返回 gorm.ErrRecordNotFound。
func (r *archiveRepository) FindByID(id uint) (*model.Archive, error) {
	var archive model.Archive
	if err := r.db.First(&archive, id).Error; err != nil {
		return nil, err
	}
	return &archive, nil
}

// FindAll 按 ID 升序返回所有归档记录。
func (r *archiveRepository) FindAll() ([]model.Archive, error) {
	var archives []model.Archive
	err := r.db.Order("id asc").Find(&archives).Error
	return archives, err
}

// Update 更新归档记录的名称、安装目录和哈希。流水线本身不会调用它。
func (r *archiveRepository) Update(archive *model.Archive) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Archive{}).Where("id = ?", archive.ID).Updates(map[string]interface{}{
			"zip_name":   archive.Name,
			"extract_to": archive.ExtractTo,
			"zip_hash":   archive.Hash,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// Delete 删除归档记录。引用它的系统配置不会被级联删除。
func (r *archiveRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Archive{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
