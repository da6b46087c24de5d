// Package storage 提供归档原始字节的存储，支持本地磁盘和 MinIO 两种后端。
package storage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"archive-depot-go/internal/config"
)

// ErrNotExist 表示存储中没有该归档文件。可以用 errors.Is 判断。
var ErrNotExist = fs.ErrNotExist

// ArchiveStorage 是归档字节的存储。只追加，不做清理。
type ArchiveStorage interface {
	// Create 返回一个写入 name 的 Writer，Close 成功后内容才算写入完成。
	// 已存在的同名文件会被覆盖。
	Create(ctx context.Context, name string) (io.WriteCloser, error)
	// ReadAll 读取 name 的全部内容，不存在时返回的错误满足 errors.Is(err, ErrNotExist)。
	ReadAll(ctx context.Context, name string) ([]byte, error)
	// Remove 删除 name，不存在时不报错。
	Remove(ctx context.Context, name string) error
}

// New 根据配置创建对应的存储后端。
func New(ctx context.Context, storageCfg config.StorageConfig, minioCfg config.MinIOConfig) (ArchiveStorage, error) {
	switch storageCfg.Backend {
	case "", "local":
		return NewLocal(storageCfg.ArchiveDir)
	case "minio":
		return NewMinIO(ctx, minioCfg)
	default:
		return nil, fmt.Errorf("不支持的存储后端: %q", storageCfg.Backend)
	}
}

// ValidName 检查归档文件名是否是单个路径段，两种后端共用同一套规则。
func ValidName(name string) error {
	base := filepath.Base(filepath.Clean("/" + name))
	if base == "/" || base == "." || base != strings.TrimSpace(name) || strings.ContainsRune(name, '\\') {
		return fmt.Errorf("非法的归档文件名 %q", name)
	}
	return nil
}
