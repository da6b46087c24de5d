// Package fingerprint 计算解压后目录树中选定子集的确定性摘要。
//
// 摘要只取决于被选中条目的相对路径、类型（文件/目录）和文件内容，
// 与遍历顺序、修改时间和权限位无关。
package fingerprint

import (
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"archive-depot-go/pkg/apperr"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/zeebo/blake3"
)

// Selector 决定哪些路径参与摘要计算。
type Selector struct {
	// IncludeFolders 限定根目录下可以进入的顶层目录名，为空表示全部。
	IncludeFolders []string
	// ExcludeFolders 中的目录名在任意深度都会被剪掉，优先于 IncludeFolders。
	ExcludeFolders []string
	// IncludeFiles 是匹配文件名的 glob 列表，为空时等价于 {"*"}。
	IncludeFiles []string
}

// EngineSelector 选取引擎构建中的运行时资源目录。
var EngineSelector = Selector{
	IncludeFolders: []string{"base", "fonts", "AI", "lib", "bin", "shaders"},
	ExcludeFolders: []string{"cache", "logs", "temp", "demos", "screenshots"},
	IncludeFiles:   []string{"*"},
}

// ModSelector 选取 mod 中的游戏内容目录。
var ModSelector = Selector{
	IncludeFolders: []string{
		"units", "unitscripts", "weapons", "gamedata", "features",
		"luarules", "luaui", "luagaia", "scripts", "objects3d",
		"unittextures", "sounds", "bitmaps", "effects",
	},
	ExcludeFolders: []string{".git", ".svn", "cache", "docs"},
	IncludeFiles: []string{
		"*.lua", "*.tdf", "*.fbi", "*.cob", "*.bos", "*.s3o", "*.3do",
		"*.dds", "*.png", "*.tga", "*.bmp", "*.wav", "*.ogg", "*.glsl", "*.txt",
	},
}

// EmptyDigest 是没有任何条目被选中时返回的固定摘要。
var EmptyDigest = func() string {
	sum := blake3.Sum256(nil)
	return hex.EncodeToString(sum[:])
}()

type entry struct {
	rel   string
	isDir bool
	sum   [32]byte
}

// Fingerprint 计算 rootDir 在 sel 选择下的摘要。
// rootDir 不存在时返回 NotFound，不是目录时返回 InvalidArgument。
func Fingerprint(rootDir string, sel Selector) (string, error) {
	const op = "fingerprint"

	info, err := os.Stat(rootDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", apperr.Wrap(apperr.NotFound, op, err, "目录 %s 不存在", rootDir)
		}
		return "", apperr.Wrap(apperr.IOFailure, op, err, "读取目录 %s 失败", rootDir)
	}
	if !info.IsDir() {
		return "", apperr.New(apperr.InvalidArgument, op, "%s 不是目录", rootDir)
	}

	patterns := sel.IncludeFiles
	if len(patterns) == 0 {
		patterns = []string{"*"}
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return "", apperr.New(apperr.InvalidArgument, op, "非法的文件匹配模式 %q", p)
		}
	}
	include := toSet(sel.IncludeFolders)
	exclude := toSet(sel.ExcludeFolders)

	var entries []entry
	walkErr := filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == rootDir {
			return nil
		}
		rel, err := filepath.Rel(rootDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if _, ok := exclude[d.Name()]; ok {
				return filepath.SkipDir
			}
			if len(include) > 0 && !strings.Contains(rel, "/") {
				if _, ok := include[d.Name()]; !ok {
					return filepath.SkipDir
				}
			}
			entries = append(entries, entry{rel: rel, isDir: true})
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if !matchAny(patterns, d.Name()) {
			return nil
		}
		sum, err := hashFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, entry{rel: rel, sum: sum})
		return nil
	})
	if walkErr != nil {
		return "", apperr.Wrap(apperr.IOFailure, op, walkErr, "遍历 %s 失败", rootDir)
	}

	return digest(entries), nil
}

func digest(entries []entry) string {
	if len(entries) == 0 {
		return EmptyDigest
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].rel < entries[j].rel })

	h := blake3.New()
	for _, e := range entries {
		if e.isDir {
			h.Write([]byte{'d', 0})
			h.Write([]byte(e.rel))
			h.Write([]byte{0})
			continue
		}
		h.Write([]byte{'f', 0})
		h.Write([]byte(e.rel))
		h.Write([]byte{0})
		h.Write(e.sum[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

func hashFile(path string) ([32]byte, error) {
	var sum [32]byte
	f, err := os.Open(path)
	if err != nil {
		return sum, err
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return sum, err
	}
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, name); ok {
			return true
		}
	}
	return false
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}
