package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"archive-depot-go/internal/model"

	"github.com/go-redis/redis/v8"
)

// ErrProgressNotFound 表示 Redis 中没有该下载任务的进度镜像。
var ErrProgressNotFound = errors.New("download progress not found")

// progressTTL 只约束 Redis 镜像的保留时间，进程内的任务表不受影响。
const progressTTL = 24 * time.Hour

// DownloadProgressRepository 将下载进度镜像到 Redis，供其他实例查询。
type DownloadProgressRepository interface {
	Save(ctx context.Context, p model.DownloadProgress) error
	Get(ctx context.Context, key string) (*model.DownloadProgress, error)
}

type downloadProgressRepository struct {
	redisClient *redis.Client
}

// NewDownloadProgressRepository 创建一个新的 DownloadProgressRepository 实例。
func NewDownloadProgressRepository(redisClient *redis.Client) DownloadProgressRepository {
	return &downloadProgressRepository{redisClient: redisClient}
}

func (r *downloadProgressRepository) redisKey(key string) string {
	return "download:" + key
}

// Save 以 hash 形式写入进度快照。
func (r *downloadProgressRepository) Save(ctx context.Context, p model.DownloadProgress) error {
	k := r.redisKey(p.Key)
	pipe := r.redisClient.TxPipeline()
	pipe.HSet(ctx, k, map[string]interface{}{
		"file_name":  p.FileName,
		"extract_to": p.ExtractTo,
		"bytes":      p.BytesReceived,
		"total":      p.TotalBytes,
		"status":     p.Status.String(),
		"archive_id": p.ArchiveID,
		"hash":       p.Hash,
		"error":      p.Error,
		"started_at": time.Time(p.StartedAt).Unix(),
	})
	pipe.Expire(ctx, k, progressTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Get 读取进度快照，不存在时返回 ErrProgressNotFound。
func (r *downloadProgressRepository) Get(ctx context.Context, key string) (*model.DownloadProgress, error) {
	fields, err := r.redisClient.HGetAll(ctx, r.redisKey(key)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrProgressNotFound
	}
	status, ok := model.ParseDownloadStatus(fields["status"])
	if !ok {
		return nil, errors.New("invalid download status in redis: " + fields["status"])
	}

	p := &model.DownloadProgress{
		Key:       key,
		FileName:  fields["file_name"],
		ExtractTo: fields["extract_to"],
		Status:    status,
		Hash:      fields["hash"],
		Error:     fields["error"],
	}
	p.BytesReceived, _ = strconv.ParseInt(fields["bytes"], 10, 64)
	p.TotalBytes, _ = strconv.ParseInt(fields["total"], 10, 64)
	if id, err := strconv.ParseUint(fields["archive_id"], 10, 64); err == nil {
		p.ArchiveID = uint(id)
	}
	if ts, err := strconv.ParseInt(fields["started_at"], 10, 64); err == nil {
		p.StartedAt = model.LocalTime(time.Unix(ts, 0))
	}
	return p, nil
}
