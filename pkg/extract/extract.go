// Package extract 负责将 zip 归档解压到安装目录。
package extract

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"archive-depot-go/pkg/apperr"

	"github.com/klauspost/compress/zip"
)

const op = "extract"

// Extract 将 data 中的 zip 内容写入 destDir。
//
// destDir 不存在时会被创建；已存在时直接在其中解压，不会清理旧文件，
// 因此上一次解压留下、而新归档中没有的文件会保留下来。
// 同名文件会被覆盖。任何错误都会中止整个解压，已写入的文件不会回滚。
func Extract(data []byte, destDir string) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return apperr.Wrap(apperr.Corrupted, op, err, "无法读取归档")
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return apperr.Wrap(apperr.IOFailure, op, err, "创建目录 %s 失败", destDir)
	}

	for _, f := range zr.File {
		target, err := entryPath(destDir, f.Name)
		if err != nil {
			return err
		}
		if target == "" {
			continue
		}

		if f.FileInfo().IsDir() || strings.HasSuffix(f.Name, "/") {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return apperr.Wrap(apperr.IOFailure, op, err, "创建目录 %s 失败", target)
			}
			continue
		}

		// 归档不保证目录条目先于其中的文件出现
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return apperr.Wrap(apperr.IOFailure, op, err, "创建目录 %s 失败", filepath.Dir(target))
		}
		if err := writeEntry(f, target); err != nil {
			return err
		}
	}
	return nil
}

func writeEntry(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return apperr.Wrap(apperr.Corrupted, op, err, "无法打开归档条目 %s", f.Name)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.IOFailure, op, err, "创建文件 %s 失败", target)
	}

	_, copyErr := io.Copy(out, rc)
	closeErr := out.Close()
	if copyErr != nil {
		if isCorruptEntry(copyErr) {
			return apperr.Wrap(apperr.Corrupted, op, copyErr, "归档条目 %s 已损坏", f.Name)
		}
		return apperr.Wrap(apperr.IOFailure, op, copyErr, "写入文件 %s 失败", target)
	}
	if closeErr != nil {
		return apperr.Wrap(apperr.IOFailure, op, closeErr, "写入文件 %s 失败", target)
	}
	return nil
}

func isCorruptEntry(err error) bool {
	return errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, io.ErrUnexpectedEOF) || strings.Contains(err.Error(), "flate")
}

// entryPath 将归档条目名映射到 destDir 下的路径，拒绝逃逸出 destDir 的条目。
// 条目指向 destDir 本身时返回空字符串。
func entryPath(destDir, name string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.Corrupted, op, "归档条目 %q 指向目标目录之外", name)
	}
	if clean == "." {
		return "", nil
	}
	return filepath.Join(destDir, clean), nil
}

// ResolveDest 将安装相对路径解析到 root 之下。
// subdir 为空、为绝对路径或逃逸出 root 时返回 InvalidArgument。
func ResolveDest(root, subdir string) (string, error) {
	if strings.TrimSpace(subdir) == "" {
		return "", apperr.New(apperr.InvalidArgument, "resolve_dest", "安装目录不能为空")
	}
	clean := filepath.Clean(filepath.FromSlash(subdir))
	if filepath.IsAbs(clean) || strings.HasPrefix(subdir, "/") {
		return "", apperr.New(apperr.InvalidArgument, "resolve_dest", "安装目录 %q 必须是相对路径", subdir)
	}
	if clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperr.New(apperr.InvalidArgument, "resolve_dest", "安装目录 %q 不在安装根目录之下", subdir)
	}
	return filepath.Join(root, clean), nil
}
