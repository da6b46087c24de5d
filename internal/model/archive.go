// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// Archive 定义了 archives 表的 ORM 模型。
// Hash 是写入存储时对原始字节流计算的 MD5，之后不会再从存储文件重新计算。
// BlobKey 是该记录独占的存储键，同名归档之间不会互相覆盖；为空的旧记录按 Name 读取。
type Archive struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"column:zip_name;type:varchar(255);not null" json:"zipName"`
	ExtractTo string    `gorm:"column:extract_to;type:varchar(512);not null" json:"extractTo"`
	Hash      string    `gorm:"column:zip_hash;type:varchar(32);not null;index" json:"zipHash"`
	BlobKey   string    `gorm:"column:blob_key;type:varchar(300);not null;default:'';index" json:"blobKey"`
	Size      int64     `gorm:"not null;default:0" json:"size"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Archive) TableName() string {
	return "archives"
}

// StorageKey 返回读取归档字节时使用的存储键。
func (a *Archive) StorageKey() string {
	if a.BlobKey != "" {
		return a.BlobKey
	}
	return a.Name
}
