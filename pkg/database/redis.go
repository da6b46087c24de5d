package database

import (
	"context"
	"fmt"
	"time"

	"archive-depot-go/pkg/log"

	"github.com/go-redis/redis/v8"
)

// RDB 保存下载进度镜像和 Kafka 重试计数。
var RDB *redis.Client

// NewRedisClient 创建 Redis 客户端并在 timeout 内确认连接可用。
func NewRedisClient(addr, password string, db int, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis %s 失败: %w", addr, err)
	}
	return client, nil
}

// InitRedis 初始化全局 Redis 客户端，连接失败时退出进程。
func InitRedis(addr, password string, db int) {
	client, err := NewRedisClient(addr, password, db, 5*time.Second)
	if err != nil {
		log.Fatal("failed to connect to redis", err)
	}
	RDB = client
	log.Info("Redis client connected successfully")
}
