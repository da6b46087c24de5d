package service

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"archive-depot-go/internal/model"
	"archive-depot-go/pkg/apperr"
)

// downloadJob 是一个下载任务的运行时状态。
// 字节计数与状态只由该任务自己的后台 goroutine 修改。
type downloadJob struct {
	key       string
	source    string
	fileName  string
	extractTo string
	blobKey   string
	startedAt time.Time

	bytes  atomic.Int64
	total  atomic.Int64
	status atomic.Int32

	mu        sync.Mutex
	archiveID uint
	hash      string
	errMsg    string

	done chan struct{}
}

func newDownloadJob(req DownloadRequest) *downloadJob {
	job := &downloadJob{
		key:       req.Key,
		source:    req.Source,
		fileName:  req.FileName,
		extractTo: req.ExtractTo,
		blobKey:   newBlobKey(req.FileName),
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	job.total.Store(-1)
	job.status.Store(int32(model.DownloadDownloading))
	return job
}

func (j *downloadJob) currentStatus() model.DownloadStatus {
	return model.DownloadStatus(j.status.Load())
}

func (j *downloadJob) setStatus(s model.DownloadStatus) {
	j.status.Store(int32(s))
}

// finish 先写入结果字段，再发布结束状态。
func (j *downloadJob) finish(s model.DownloadStatus, archiveID uint, hash, errMsg string) {
	j.mu.Lock()
	j.archiveID = archiveID
	j.hash = hash
	j.errMsg = errMsg
	j.mu.Unlock()
	j.setStatus(s)
}

func (j *downloadJob) progress() model.DownloadProgress {
	p := model.DownloadProgress{
		Key:           j.key,
		FileName:      j.fileName,
		ExtractTo:     j.extractTo,
		BytesReceived: j.bytes.Load(),
		TotalBytes:    j.total.Load(),
		Status:        j.currentStatus(),
		StartedAt:     model.LocalTime(j.startedAt),
	}
	j.mu.Lock()
	p.ArchiveID = j.archiveID
	p.Hash = j.hash
	p.Error = j.errMsg
	j.mu.Unlock()
	return p
}

// JobRegistry 是下载任务表，由持有它的 DownloadService 独占。
// 结束的任务不会被移除。
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*downloadJob
}

// NewJobRegistry 创建一个空的任务表。
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*downloadJob)}
}

// register 登记新任务。同一个 key 上的旧任务尚未结束时返回 Conflict，
// 已结束的旧任务会被替换。
func (r *JobRegistry) register(job *downloadJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if prev, ok := r.jobs[job.key]; ok && !prev.currentStatus().Terminal() {
		return apperr.New(apperr.Conflict, "start_download", "任务 %q 仍在进行中", job.key)
	}
	r.jobs[job.key] = job
	return nil
}

func (r *JobRegistry) get(key string) (*downloadJob, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[key]
	return job, ok
}

// snapshot 按开始时间返回所有任务的进度。
func (r *JobRegistry) snapshot() []model.DownloadProgress {
	r.mu.RLock()
	jobs := make([]*downloadJob, 0, len(r.jobs))
	for _, j := range r.jobs {
		jobs = append(jobs, j)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].startedAt.Equal(jobs[k].startedAt) {
			return jobs[i].key < jobs[k].key
		}
		return jobs[i].startedAt.Before(jobs[k].startedAt)
	})
	out := make([]model.DownloadProgress, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.progress())
	}
	return out
}
