package service

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"archive-depot-go/pkg/log"
)

// ImportSeedArchives 扫描 dir 下的 zip 文件并通过标准上传流程导入（幂等）。
// dir/engine/7.0/spring.zip 会以 spring.zip 为名、engine/7.0 为安装目录导入；
// 同名同安装目录的归档已存在时跳过。返回新导入的数量。
func ImportSeedArchives(ctx context.Context, dir string, svc ArchiveService) (int, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		log.Infof("[ImportSeedArchives] 目录 '%s' 不存在或不可用，跳过初始化导入", dir)
		return 0, nil
	}

	existing, err := svc.List()
	if err != nil {
		return 0, err
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[seedKey(a.Name, a.ExtractTo)] = true
	}

	imported := 0
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(d.Name()), ".zip") {
			return nil
		}

		rel, err := filepath.Rel(dir, filepath.Dir(path))
		if err != nil || rel == "." {
			log.Warnf("[ImportSeedArchives] 文件不在子目录中，无法确定安装目录，跳过: %s", path)
			return nil
		}
		extractTo := filepath.ToSlash(rel)
		if seen[seedKey(d.Name(), extractTo)] {
			log.Infof("[ImportSeedArchives] 已存在，跳过: %s -> %s", d.Name(), extractTo)
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			log.Warnf("[ImportSeedArchives] 打开文件失败: %s, err=%v", path, err)
			return nil
		}
		defer f.Close()

		archive, err := svc.Upload(ctx, d.Name(), extractTo, f)
		if err != nil {
			log.Warnf("[ImportSeedArchives] 导入失败: %s, err=%v", path, err)
			return nil
		}
		seen[seedKey(archive.Name, archive.ExtractTo)] = true
		imported++
		log.Infof("[ImportSeedArchives] 导入完成: %s, 归档ID: %d", path, archive.ID)
		return nil
	})
	return imported, walkErr
}

func seedKey(name, extractTo string) string {
	return name + "\x00" + extractTo
}
