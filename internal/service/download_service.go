package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"archive-depot-go/internal/model"
	"archive-depot-go/internal/repository"
	"archive-depot-go/pkg/apperr"
	"archive-depot-go/pkg/fetch"
	"archive-depot-go/pkg/log"
	"archive-depot-go/pkg/metrics"
	"archive-depot-go/pkg/storage"

	"github.com/dustin/go-humanize"
)

const (
	defaultBufferSize     = 32 * 1024
	defaultMirrorInterval = 500 * time.Millisecond
	mirrorTimeout         = 2 * time.Second
)

// Fetcher 打开一个远程字节流。
type Fetcher interface {
	Open(ctx context.Context, sourceRef string) (*fetch.Source, error)
}

// DownloadRequest 描述一次远程下载。
type DownloadRequest struct {
	Key       string
	Source    string
	FileName  string
	ExtractTo string
}

// DownloadOptions 是下载服务的可选参数，零值使用默认配置。
type DownloadOptions struct {
	BufferSize     int
	MirrorInterval time.Duration
	// Mirror 为 nil 时不向 Redis 镜像进度。
	Mirror repository.DownloadProgressRepository
}

// DownloadService 接口定义了远程下载任务的生命周期操作。
type DownloadService interface {
	// StartDownload 登记任务并立即返回，传输在后台进行。
	StartDownload(ctx context.Context, req DownloadRequest) (*model.DownloadProgress, error)
	// QueryStatus 返回任务进度，未知 key 返回 NotFound。
	QueryStatus(ctx context.Context, key string) (*model.DownloadProgress, error)
	// Wait 阻塞到任务结束或 ctx 取消。
	Wait(ctx context.Context, key string) (*model.DownloadProgress, error)
	List() []model.DownloadProgress
	// Close 取消所有进行中的传输并等待后台任务退出。
	Close()
}

type downloadService struct {
	registry  *JobRegistry
	fetcher   Fetcher
	store     storage.ArchiveStorage
	registrar ArchiveRegistrar
	opts      DownloadOptions

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDownloadService 创建一个新的 DownloadService 实例。registry 由调用方创建并独占传入。
func NewDownloadService(registry *JobRegistry, fetcher Fetcher, store storage.ArchiveStorage, registrar ArchiveRegistrar, opts DownloadOptions) DownloadService {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.MirrorInterval <= 0 {
		opts.MirrorInterval = defaultMirrorInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &downloadService{
		registry:  registry,
		fetcher:   fetcher,
		store:     store,
		registrar: registrar,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// StartDownload 校验参数、登记任务并启动后台传输。
func (s *downloadService) StartDownload(ctx context.Context, req DownloadRequest) (*model.DownloadProgress, error) {
	const op = "start_download"
	if strings.TrimSpace(req.Key) == "" {
		return nil, apperr.New(apperr.InvalidArgument, op, "任务 key 不能为空")
	}
	if strings.TrimSpace(req.Source) == "" {
		return nil, apperr.New(apperr.InvalidArgument, op, "下载地址不能为空")
	}
	if err := validateIngest(op, req.FileName, req.ExtractTo); err != nil {
		return nil, err
	}

	job := newDownloadJob(req)
	if err := s.registry.register(job); err != nil {
		log.Warnf("[StartDownload] 拒绝重复的任务 key: %s", req.Key)
		return nil, err
	}

	log.Infof("[StartDownload] 下载任务已登记, key: %s, 文件名: %s, 安装目录: %s", req.Key, req.FileName, req.ExtractTo)
	metrics.ActiveDownloads.Inc()
	s.wg.Add(1)
	go s.run(job)

	p := job.progress()
	s.mirror(p)
	return &p, nil
}

func (s *downloadService) run(job *downloadJob) {
	defer s.wg.Done()
	defer close(job.done)
	defer metrics.ActiveDownloads.Dec()

	src, err := s.fetcher.Open(s.ctx, job.source)
	if err != nil {
		s.fail(job, "打开远程地址失败", err)
		return
	}
	defer src.Body.Close()
	job.total.Store(src.Size)

	w, err := s.store.Create(s.ctx, job.blobKey)
	if err != nil {
		s.fail(job, "创建存储文件失败", err)
		return
	}

	h := md5.New()
	buf := make([]byte, s.opts.BufferSize)
	lastMirror := time.Now()
	for {
		n, readErr := src.Body.Read(buf)
		if n > 0 {
			job.bytes.Add(int64(n))
			metrics.DownloadedBytes.Add(float64(n))
			h.Write(buf[:n])
			if _, werr := w.Write(buf[:n]); werr != nil {
				s.discard(job, w, werr)
				s.fail(job, "写入存储文件失败", werr)
				return
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			s.discard(job, w, readErr)
			s.fail(job, "读取远程数据失败", readErr)
			return
		}
		if time.Since(lastMirror) >= s.opts.MirrorInterval {
			lastMirror = time.Now()
			s.mirror(job.progress())
		}
	}
	if err := w.Close(); err != nil {
		s.removeBlob(job)
		s.fail(job, "写入存储文件失败", err)
		return
	}

	received := job.bytes.Load()
	hash := hex.EncodeToString(h.Sum(nil))
	job.setStatus(model.DownloadDone)
	s.mirror(job.progress())
	log.Infof("[Download] 传输完成, key: %s, 大小: %s, MD5: %s", job.key, humanize.Bytes(uint64(received)), hash)

	archive, err := s.registrar.Register(job.fileName, job.extractTo, job.blobKey, hash, received)
	if err != nil {
		log.Errorf("[Download] 登记归档失败, key: %s, error: %v", job.key, err)
		s.removeBlob(job)
		job.finish(model.DownloadFailedToInsert, 0, hash, err.Error())
	} else {
		job.finish(model.DownloadInserted, archive.ID, hash, "")
		log.Infof("[Download] 归档已登记, key: %s, 归档ID: %d", job.key, archive.ID)
	}
	s.terminal(job)
}

func (s *downloadService) fail(job *downloadJob, msg string, err error) {
	log.Errorf("[Download] %s, key: %s, error: %v", msg, job.key, err)
	job.finish(model.DownloadFailed, 0, "", msg+": "+err.Error())
	s.terminal(job)
}

func (s *downloadService) terminal(job *downloadJob) {
	p := job.progress()
	metrics.DownloadsTotal.WithLabelValues(p.Status.String()).Inc()
	s.mirror(p)
}

// discard 丢弃未完成的写入。支持 CloseWithError 的后端（如 MinIO）会直接中止上传。
func (s *downloadService) discard(job *downloadJob, w io.WriteCloser, cause error) {
	if aw, ok := w.(interface{ CloseWithError(error) error }); ok {
		_ = aw.CloseWithError(cause)
	} else {
		_ = w.Close()
	}
	s.removeBlob(job)
}

// removeBlob 只删除本任务独占的存储键，同名的其他归档不受影响。
func (s *downloadService) removeBlob(job *downloadJob) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.store.Remove(ctx, job.blobKey); err != nil {
		log.Warnw("[Download] 删除未完成的归档文件失败", "key", job.key, "error", err)
	}
}

func (s *downloadService) mirror(p model.DownloadProgress) {
	if s.opts.Mirror == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.opts.Mirror.Save(ctx, p); err != nil {
		log.Warnw("[Download] 镜像下载进度到 Redis 失败", "key", p.Key, "error", err)
	}
}

// QueryStatus 优先返回本进程内的任务状态，本地未知时回退到 Redis 镜像。
func (s *downloadService) QueryStatus(ctx context.Context, key string) (*model.DownloadProgress, error) {
	if job, ok := s.registry.get(key); ok {
		p := job.progress()
		return &p, nil
	}
	if s.opts.Mirror != nil {
		p, err := s.opts.Mirror.Get(ctx, key)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrProgressNotFound) {
			log.Warnw("[QueryStatus] 读取 Redis 进度镜像失败", "key", key, "error", err)
		}
	}
	return nil, apperr.New(apperr.NotFound, "query_download", "下载任务 %q 不存在", key)
}

func (s *downloadService) Wait(ctx context.Context, key string) (*model.DownloadProgress, error) {
	job, ok := s.registry.get(key)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "wait_download", "下载任务 %q 不存在", key)
	}
	select {
	case <-job.done:
		p := job.progress()
		return &p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *downloadService) List() []model.DownloadProgress {
	return s.registry.snapshot()
}

func (s *downloadService) Close() {
	s.cancel()
	s.wg.Wait()
}
