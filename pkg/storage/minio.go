package storage

import (
	"context"
	"fmt"
	"io"

	"archive-depot-go/internal/config"
	"archive-depot-go/pkg/log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectPrefix 与本地目录布局保持一致：archives/<name>
const objectPrefix = "archives/"

// MinIO 将归档保存为对象存储中的对象。
type MinIO struct {
	client *minio.Client
	bucket string
}

// NewMinIO 初始化 MinIO 客户端并确保指定的存储桶存在。
func NewMinIO(ctx context.Context, cfg config.MinIOConfig) (*MinIO, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 MinIO 客户端失败: %w", err)
	}
	log.Info("MinIO 客户端初始化成功")

	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("检查 MinIO 存储桶失败: %w", err)
	}
	if !exists {
		log.Infof("存储桶 '%s' 不存在，正在创建...", cfg.BucketName)
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("创建 MinIO 存储桶失败: %w", err)
		}
	}
	return &MinIO{client: client, bucket: cfg.BucketName}, nil
}

// pipeWriter 把流式写入转成一次 PutObject 调用，Close 时等待上传结果。
type pipeWriter struct {
	*io.PipeWriter
	done chan error
}

func (w *pipeWriter) Close() error {
	if err := w.PipeWriter.Close(); err != nil {
		return err
	}
	return <-w.done
}

// CloseWithError 中止上传，用于下载失败时丢弃不完整的对象。
func (w *pipeWriter) CloseWithError(err error) error {
	_ = w.PipeWriter.CloseWithError(err)
	<-w.done
	return nil
}

// Create 启动一个未知长度的流式上传。
func (m *MinIO) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := ValidName(name); err != nil {
		return nil, err
	}
	pr, pw := io.Pipe()
	w := &pipeWriter{PipeWriter: pw, done: make(chan error, 1)}
	go func() {
		_, err := m.client.PutObject(ctx, m.bucket, objectPrefix+name, pr, -1, minio.PutObjectOptions{
			ContentType: "application/zip",
		})
		_ = pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// ReadAll 读取整个对象，对象不存在时返回 ErrNotExist。
func (m *MinIO) ReadAll(ctx context.Context, name string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, objectPrefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.mapErr(name, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.mapErr(name, err)
	}
	return data, nil
}

// Remove 删除对象。
func (m *MinIO) Remove(ctx context.Context, name string) error {
	return m.client.RemoveObject(ctx, m.bucket, objectPrefix+name, minio.RemoveObjectOptions{})
}

func (m *MinIO) mapErr(name string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("对象 %s 不存在: %w", name, ErrNotExist)
	}
	return err
}
