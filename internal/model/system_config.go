package model

import "time"

// DefaultVariant 是未指定变体时使用的标签。
const DefaultVariant = "default"

// SystemConfiguration 对应 system_configs 表，记录一次引擎与 mod 的配对。
// EngineHash 与 ModHash 是解压后目录树的指纹，而不是归档字节的哈希。
type SystemConfiguration struct {
	ID              uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string    `gorm:"type:varchar(255);not null" json:"name"`
	EngineArchiveID uint      `gorm:"column:engine_id;not null;index" json:"engineId"`
	ModArchiveID    uint      `gorm:"column:mod_id;not null;index" json:"modId"`
	EngineHash      string    `gorm:"type:varchar(64);not null" json:"engineHash"`
	ModHash         string    `gorm:"type:varchar(64);not null" json:"modHash"`
	Variant         string    `gorm:"column:type;type:varchar(64);not null;default:'default'" json:"type"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (SystemConfiguration) TableName() string {
	return "system_configs"
}
