// Package pipeline 定义了系统配置装配的核心流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"archive-depot-go/internal/model"
	"archive-depot-go/internal/repository"
	"archive-depot-go/pkg/apperr"
	"archive-depot-go/pkg/extract"
	"archive-depot-go/pkg/fingerprint"
	"archive-depot-go/pkg/log"
	"archive-depot-go/pkg/metrics"
	"archive-depot-go/pkg/storage"
	"archive-depot-go/pkg/tasks"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Stage 是一次装配请求所处的阶段。
type Stage string

const (
	StageResolving      Stage = "resolving"
	StageExtracting     Stage = "extracting"
	StageFingerprinting Stage = "fingerprinting"
	StagePersisting     Stage = "persisting"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

// AssembleRequest 是一次装配请求的参数。
type AssembleRequest struct {
	ConfigName      string
	EngineArchiveID uint
	ModArchiveID    uint
	Variant         string
}

// Assembler 将一个引擎归档和一个 mod 归档装配成系统配置。
//
// 解压目标目录没有加锁：两个并发请求引用同一个归档时会同时向同一目录写入。
type Assembler struct {
	archiveRepo repository.ArchiveRepository
	configRepo  repository.SystemConfigRepository
	store       storage.ArchiveStorage
	installRoot string
}

// NewAssembler 创建一个新的 Assembler 实例。
func NewAssembler(archiveRepo repository.ArchiveRepository, configRepo repository.SystemConfigRepository, store storage.ArchiveStorage, installRoot string) *Assembler {
	return &Assembler{
		archiveRepo: archiveRepo,
		configRepo:  configRepo,
		store:       store,
		installRoot: installRoot,
	}
}

// run 记录一次装配的阶段转换。
type run struct {
	logger  *zap.SugaredLogger
	stage   Stage
	entered time.Time
}

func (r *run) enter(s Stage) {
	now := time.Now()
	if r.stage != "" {
		metrics.StageDuration.WithLabelValues(string(r.stage)).Observe(now.Sub(r.entered).Seconds())
	}
	r.logger.Infow("[Assembler] 阶段切换", "from", string(r.stage), "to", string(s))
	r.stage = s
	r.entered = now
}

// fail 将错误标记为当前阶段的失败。kind 为 Unknown 时沿用下层给出的分类。
func (r *run) fail(kind apperr.Kind, err error, format string, args ...interface{}) error {
	failed := r.stage
	r.enter(StageFailed)
	if kind == apperr.Unknown {
		kind = apperr.KindOf(err)
	}
	wrapped := apperr.Wrap(kind, "assemble."+string(failed), err, format, args...)
	metrics.AssembliesTotal.WithLabelValues(kind.String()).Inc()
	r.logger.Errorw("[Assembler] 装配失败", "stage", string(failed), "kind", kind.String(), "error", wrapped)
	return wrapped
}

// Assemble 解析、解压、计算指纹并保存系统配置。
// 任何阶段失败都会直接返回，已经解压的文件不会回滚，也不会重试。
func (a *Assembler) Assemble(ctx context.Context, req AssembleRequest) (*model.SystemConfiguration, error) {
	if strings.TrimSpace(req.ConfigName) == "" {
		return nil, apperr.New(apperr.InvalidArgument, "assemble", "配置名称不能为空")
	}
	if req.Variant == "" {
		req.Variant = model.DefaultVariant
	}
	r := &run{logger: log.With(
		"config", req.ConfigName,
		"engineId", req.EngineArchiveID,
		"modId", req.ModArchiveID,
	)}

	// 1. 解析归档记录，此时还没有任何副作用
	r.enter(StageResolving)
	engine, err := a.resolve(req.EngineArchiveID)
	if err != nil {
		return nil, r.fail(apperr.Unknown, err, "引擎归档 %d", req.EngineArchiveID)
	}
	mod, err := a.resolve(req.ModArchiveID)
	if err != nil {
		return nil, r.fail(apperr.Unknown, err, "mod 归档 %d", req.ModArchiveID)
	}
	engineDir, err := extract.ResolveDest(a.installRoot, engine.ExtractTo)
	if err != nil {
		return nil, r.fail(apperr.Corrupted, err, "引擎归档 %d 的安装目录无效", engine.ID)
	}
	modDir, err := extract.ResolveDest(a.installRoot, mod.ExtractTo)
	if err != nil {
		return nil, r.fail(apperr.Corrupted, err, "mod 归档 %d 的安装目录无效", mod.ID)
	}

	// 2. 读取归档字节。记录存在但文件缺失说明数据库与存储已经不一致
	if err := ctx.Err(); err != nil {
		return nil, r.fail(apperr.IOFailure, err, "装配已取消")
	}
	r.enter(StageExtracting)
	engineData, err := a.read(ctx, engine)
	if err != nil {
		return nil, r.fail(apperr.Unknown, err, "读取引擎归档失败")
	}
	modData, err := a.read(ctx, mod)
	if err != nil {
		return nil, r.fail(apperr.Unknown, err, "读取 mod 归档失败")
	}

	// 3. 解压到安装目录，已有目录直接复用
	if err := extract.Extract(engineData, engineDir); err != nil {
		return nil, r.fail(apperr.Unknown, err, "解压引擎归档 %s 失败", engine.Name)
	}
	if err := extract.Extract(modData, modDir); err != nil {
		return nil, r.fail(apperr.Unknown, err, "解压 mod 归档 %s 失败", mod.Name)
	}

	// 4. 计算指纹，两棵目录树只读，可以并行
	r.enter(StageFingerprinting)
	var engineHash, modHash string
	g := new(errgroup.Group)
	g.Go(func() error {
		var err error
		engineHash, err = fingerprint.Fingerprint(engineDir, fingerprint.EngineSelector)
		return err
	})
	g.Go(func() error {
		var err error
		modHash, err = fingerprint.Fingerprint(modDir, fingerprint.ModSelector)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, r.fail(apperr.IOFailure, err, "计算指纹失败")
	}

	// 5. 保存系统配置
	r.enter(StagePersisting)
	cfg := &model.SystemConfiguration{
		Name:            req.ConfigName,
		EngineArchiveID: engine.ID,
		ModArchiveID:    mod.ID,
		EngineHash:      engineHash,
		ModHash:         modHash,
		Variant:         req.Variant,
	}
	if err := a.configRepo.Create(cfg); err != nil {
		return nil, r.fail(apperr.PersistenceFailure, err, "保存系统配置失败")
	}

	r.enter(StageDone)
	metrics.AssembliesTotal.WithLabelValues("ok").Inc()
	r.logger.Infow("[Assembler] 系统配置已创建", "id", cfg.ID, "engineHash", engineHash, "modHash", modHash)
	return cfg, nil
}

func (a *Assembler) resolve(id uint) (*model.Archive, error) {
	archive, err := a.archiveRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Wrap(apperr.NotFound, "resolve", err, "归档 %d 不存在", id)
		}
		return nil, apperr.Wrap(apperr.PersistenceFailure, "resolve", err, "查询归档 %d 失败", id)
	}
	return archive, nil
}

func (a *Assembler) read(ctx context.Context, archive *model.Archive) ([]byte, error) {
	key := archive.StorageKey()
	data, err := a.store.ReadAll(ctx, key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(apperr.Corrupted, "read", err, "归档 %d 有记录但文件 %s 缺失", archive.ID, key)
		}
		return nil, apperr.Wrap(apperr.IOFailure, "read", err, "读取归档文件 %s 失败", key)
	}
	return data, nil
}

// Process 实现 kafka.TaskProcessor，供异步装配使用。
func (a *Assembler) Process(ctx context.Context, task tasks.AssemblyTask) error {
	cfg, err := a.Assemble(ctx, AssembleRequest{
		ConfigName:      task.ConfigName,
		EngineArchiveID: task.EngineArchiveID,
		ModArchiveID:    task.ModArchiveID,
		Variant:         task.Variant,
	})
	if err != nil {
		return fmt.Errorf("request %s: %w", task.RequestID, err)
	}
	log.Infof("[Assembler] 异步装配完成, request: %s, 配置ID: %d", task.RequestID, cfg.ID)
	return nil
}
