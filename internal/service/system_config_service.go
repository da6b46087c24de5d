package service

import (
	"context"
	"strings"

	"archive-depot-go/internal/model"
	"archive-depot-go/internal/repository"
	"archive-depot-go/pkg/apperr"
	"archive-depot-go/pkg/log"
	"archive-depot-go/pkg/tasks"

	"github.com/google/uuid"
)

// AssemblyPublisher 将装配任务投递到异步队列。
type AssemblyPublisher interface {
	PublishAssembly(ctx context.Context, task tasks.AssemblyTask) error
}

// SystemConfigService 接口定义了系统配置的查询和异步装配操作。
// 同步装配由 pipeline.Assembler 完成。
type SystemConfigService interface {
	List() ([]model.SystemConfiguration, error)
	Get(id uint) (*model.SystemConfiguration, error)
	SubmitAsync(ctx context.Context, name string, engineID, modID uint, variant string) (string, error)
}

type systemConfigService struct {
	configRepo  repository.SystemConfigRepository
	archiveRepo repository.ArchiveRepository
	publisher   AssemblyPublisher
}

// NewSystemConfigService 创建一个新的 SystemConfigService 实例。publisher 为 nil 时不支持异步装配。
func NewSystemConfigService(configRepo repository.SystemConfigRepository, archiveRepo repository.ArchiveRepository, publisher AssemblyPublisher) SystemConfigService {
	return &systemConfigService{configRepo: configRepo, archiveRepo: archiveRepo, publisher: publisher}
}

func (s *systemConfigService) List() ([]model.SystemConfiguration, error) {
	cfgs, err := s.configRepo.FindAll()
	if err != nil {
		log.Errorf("[List] 查询系统配置失败, error: %v", err)
		return nil, apperr.Wrap(apperr.PersistenceFailure, "list_system_configs", err, "查询系统配置失败")
	}
	return cfgs, nil
}

func (s *systemConfigService) Get(id uint) (*model.SystemConfiguration, error) {
	cfg, err := s.configRepo.FindByID(id)
	if err != nil {
		return nil, mapLookupErr("get_system_config", err, "系统配置 %d 不存在", id)
	}
	return cfg, nil
}

// SubmitAsync 检查两个归档存在后投递装配任务，返回请求 ID。
// 这里的检查只是尽早失败，真正的解析在消费者执行装配时重新进行。
func (s *systemConfigService) SubmitAsync(ctx context.Context, name string, engineID, modID uint, variant string) (string, error) {
	const op = "submit_assembly"
	if s.publisher == nil {
		return "", apperr.New(apperr.Unavailable, op, "未启用异步装配")
	}
	if strings.TrimSpace(name) == "" {
		return "", apperr.New(apperr.InvalidArgument, op, "配置名称不能为空")
	}
	for _, id := range []uint{engineID, modID} {
		if _, err := s.archiveRepo.FindByID(id); err != nil {
			return "", mapLookupErr(op, err, "归档 %d 不存在", id)
		}
	}

	task := tasks.AssemblyTask{
		RequestID:       uuid.NewString(),
		ConfigName:      name,
		EngineArchiveID: engineID,
		ModArchiveID:    modID,
		Variant:         variant,
	}
	if err := s.publisher.PublishAssembly(ctx, task); err != nil {
		log.Errorf("[SubmitAsync] 发送装配任务到Kafka失败, error: %v", err)
		return "", apperr.Wrap(apperr.IOFailure, op, err, "发送装配任务失败")
	}
	log.Infof("[SubmitAsync] 装配任务已发送, request: %s, name: %s", task.RequestID, name)
	return task.RequestID, nil
}
