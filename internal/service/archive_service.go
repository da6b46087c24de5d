// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"archive-depot-go/internal/model"
	"archive-depot-go/internal/repository"
	"archive-depot-go/pkg/apperr"
	"archive-depot-go/pkg/extract"
	"archive-depot-go/pkg/log"
	"archive-depot-go/pkg/storage"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ArchiveRegistrar 创建归档记录。下载任务在传输完成后通过它登记归档。
type ArchiveRegistrar interface {
	Register(fileName, extractTo, blobKey, hash string, size int64) (*model.Archive, error)
}

// ArchiveService 接口定义了归档相关的业务操作。
type ArchiveService interface {
	ArchiveRegistrar
	Upload(ctx context.Context, fileName, extractTo string, body io.Reader) (*model.Archive, error)
	Get(id uint) (*model.Archive, error)
	List() ([]model.Archive, error)
	Update(id uint, fileName, extractTo, hash string) (*model.Archive, error)
	Delete(id uint) error
}

type archiveService struct {
	archiveRepo repository.ArchiveRepository
	store       storage.ArchiveStorage
}

// NewArchiveService 创建一个新的 ArchiveService 实例。
func NewArchiveService(archiveRepo repository.ArchiveRepository, store storage.ArchiveStorage) ArchiveService {
	return &archiveService{archiveRepo: archiveRepo, store: store}
}

// newBlobKey 为一次写入生成独占的存储键，保留原文件名便于排查。
func newBlobKey(fileName string) string {
	return uuid.NewString() + "_" + fileName
}

// validateIngest 在任何 I/O 之前检查上传和下载共用的必填参数。
func validateIngest(op, fileName, extractTo string) error {
	if strings.TrimSpace(fileName) == "" {
		return apperr.New(apperr.InvalidArgument, op, "文件名不能为空")
	}
	if strings.TrimSpace(extractTo) == "" {
		return apperr.New(apperr.InvalidArgument, op, "安装目录不能为空")
	}
	if err := storage.ValidName(fileName); err != nil {
		return apperr.Wrap(apperr.InvalidArgument, op, err, "文件名不合法")
	}
	if _, err := extract.ResolveDest(".", extractTo); err != nil {
		return err
	}
	return nil
}

// Upload 将 body 写入存储，同时计算写入字节的 MD5，然后登记归档记录。
func (s *archiveService) Upload(ctx context.Context, fileName, extractTo string, body io.Reader) (*model.Archive, error) {
	const op = "upload"
	log.Infof("[Upload] 开始上传归档, 文件名: %s, 安装目录: %s", fileName, extractTo)
	if err := validateIngest(op, fileName, extractTo); err != nil {
		return nil, err
	}

	blobKey := newBlobKey(fileName)
	w, err := s.store.Create(ctx, blobKey)
	if err != nil {
		log.Errorf("[Upload] 创建存储文件失败, 文件名: %s, error: %v", fileName, err)
		return nil, apperr.Wrap(apperr.IOFailure, op, err, "创建存储文件失败")
	}
	h := md5.New()
	size, copyErr := io.Copy(io.MultiWriter(w, h), body)
	closeErr := w.Close()
	if err := firstErr(copyErr, closeErr); err != nil {
		log.Errorf("[Upload] 写入归档失败, 文件名: %s, error: %v", fileName, err)
		if rmErr := s.store.Remove(ctx, blobKey); rmErr != nil {
			log.Warnf("[Upload] 删除未完成的归档文件失败, key: %s, error: %v", blobKey, rmErr)
		}
		return nil, apperr.Wrap(apperr.IOFailure, op, err, "写入归档失败")
	}

	hash := hex.EncodeToString(h.Sum(nil))
	log.Infof("[Upload] 归档写入完成, 文件名: %s, 大小: %s, MD5: %s", fileName, humanize.Bytes(uint64(size)), hash)
	return s.Register(fileName, extractTo, blobKey, hash, size)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Register 创建一条归档记录。
func (s *archiveService) Register(fileName, extractTo, blobKey, hash string, size int64) (*model.Archive, error) {
	const op = "register"
	if err := validateIngest(op, fileName, extractTo); err != nil {
		return nil, err
	}
	if hash == "" || blobKey == "" {
		return nil, apperr.New(apperr.InvalidArgument, op, "哈希和存储键不能为空")
	}

	archive := &model.Archive{Name: fileName, ExtractTo: extractTo, BlobKey: blobKey, Hash: hash, Size: size}
	if err := s.archiveRepo.Create(archive); err != nil {
		log.Errorf("[Register] 创建归档记录失败, 文件名: %s, error: %v", fileName, err)
		return nil, apperr.Wrap(apperr.PersistenceFailure, op, err, "创建归档记录失败")
	}
	log.Infof("[Register] 归档记录已创建, ID: %d, 文件名: %s", archive.ID, fileName)
	return archive, nil
}

// Get 根据 ID 获取归档记录。
func (s *archiveService) Get(id uint) (*model.Archive, error) {
	archive, err := s.archiveRepo.FindByID(id)
	if err != nil {
		return nil, mapLookupErr("get_archive", err, "归档 %d 不存在", id)
	}
	return archive, nil
}

// List 返回所有归档记录。
func (s *archiveService) List() ([]model.Archive, error) {
	archives, err := s.archiveRepo.FindAll()
	if err != nil {
		log.Errorf("[List] 查询归档列表失败, error: %v", err)
		return nil, apperr.Wrap(apperr.PersistenceFailure, "list_archives", err, "查询归档列表失败")
	}
	return archives, nil
}

// Update 修改归档记录。流水线本身不会修改归档，这个接口只供管理使用。
func (s *archiveService) Update(id uint, fileName, extractTo, hash string) (*model.Archive, error) {
	const op = "update_archive"
	if err := validateIngest(op, fileName, extractTo); err != nil {
		return nil, err
	}
	archive := &model.Archive{ID: id, Name: fileName, ExtractTo: extractTo, Hash: hash}
	if err := s.archiveRepo.Update(archive); err != nil {
		return nil, mapLookupErr(op, err, "归档 %d 不存在", id)
	}
	log.Infof("[Update] 归档记录已更新, ID: %d", id)
	return s.Get(id)
}

// Delete 删除归档记录。存储中的文件和引用它的系统配置都保持不变。
func (s *archiveService) Delete(id uint) error {
	if err := s.archiveRepo.Delete(id); err != nil {
		return mapLookupErr("delete_archive", err, "归档 %d 不存在", id)
	}
	log.Infof("[Delete] 归档记录已删除, ID: %d", id)
	return nil
}

// mapLookupErr 将 gorm.ErrRecordNotFound 映射为 NotFound，其他错误视为存储失败。
func mapLookupErr(op string, err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Wrap(apperr.NotFound, op, err, format, args...)
	}
	return apperr.Wrap(apperr.PersistenceFailure, op, err, "访问数据库失败")
}
