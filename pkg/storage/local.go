package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local 将归档保存在本地目录中，文件名即归档名。
type Local struct {
	dir string
}

// NewLocal 创建本地存储，目录不存在时自动创建。
func NewLocal(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("归档目录不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建归档目录失败: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) path(name string) (string, error) {
	if err := ValidName(name); err != nil {
		return "", err
	}
	return filepath.Join(l.dir, name), nil
}

// Create 打开（或截断）目标文件用于写入。
func (l *Local) Create(_ context.Context, name string) (io.WriteCloser, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
}

// ReadAll 读取整个归档文件。
func (l *Local) ReadAll(_ context.Context, name string) ([]byte, error) {
	p, err := l.path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Remove 删除归档文件。
func (l *Local) Remove(_ context.Context, name string) error {
	p, err := l.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
