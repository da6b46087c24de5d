// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"archive-depot-go/internal/config"
	"archive-depot-go/pkg/apperr"
	"archive-depot-go/pkg/log"
	"archive-depot-go/pkg/tasks"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
)

// maxAttempts 是同一任务的处理次数上限，包括第一次。
const maxAttempts = 3

// retryBackoff 是两次尝试之间的等待时间，第 n 次重试等待 n 倍。
var retryBackoff = 2 * time.Second

// TaskProcessor 解耦了消费者与具体的装配实现。
type TaskProcessor interface {
	Process(ctx context.Context, task tasks.AssemblyTask) error
}

// Producer 负责发送装配任务。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	log.Info("Kafka 生产者初始化成功")
	return &Producer{writer: &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers),
		Topic:    cfg.Topic,
		Balancer: &kafka.LeastBytes{},
	}}
}

// PublishAssembly 发送一个装配任务，以 RequestID 作为消息 key。
func (p *Producer) PublishAssembly(ctx context.Context, task tasks.AssemblyTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(task.RequestID),
		Value: taskBytes,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// AttemptCounter 记录每个任务已经尝试的次数。
// 计数放在 Redis 中，进程在提交 offset 之前重启时，重投的消息会接着之前的次数继续。
type AttemptCounter interface {
	Incr(ctx context.Context, requestID string) (int64, error)
	Reset(ctx context.Context, requestID string)
}

type redisCounter struct {
	rdb *redis.Client
}

// NewRedisCounter 基于 Redis INCR 实现 AttemptCounter，计数 24 小时后过期。
func NewRedisCounter(rdb *redis.Client) AttemptCounter {
	return &redisCounter{rdb: rdb}
}

func attemptsKey(requestID string) string {
	return fmt.Sprintf("kafka:attempts:%s", requestID)
}

func (c *redisCounter) Incr(ctx context.Context, requestID string) (int64, error) {
	key := attemptsKey(requestID)
	n, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	_ = c.rdb.Expire(ctx, key, 24*time.Hour).Err()
	return n, nil
}

func (c *redisCounter) Reset(ctx context.Context, requestID string) {
	_ = c.rdb.Del(ctx, attemptsKey(requestID)).Err()
}

// permanent 判断错误是否重试也不会改变结果。
func permanent(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.InvalidArgument, apperr.NotFound, apperr.Conflict, apperr.Corrupted:
		return true
	}
	return false
}

// processWithRetry 在当前消费者内重试任务，直到成功、遇到不可重试的错误或达到 maxAttempts。
// 返回 false 表示 ctx 已取消，此时不应提交 offset。
func processWithRetry(ctx context.Context, processor TaskProcessor, counter AttemptCounter, task tasks.AssemblyTask) bool {
	var local int64
	for {
		err := processor.Process(ctx, task)
		if err == nil {
			log.Infof("装配任务处理成功: request=%s", task.RequestID)
			counter.Reset(ctx, task.RequestID)
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		local++
		attempts, incErr := counter.Incr(ctx, task.RequestID)
		if incErr != nil {
			log.Warnf("记录装配任务尝试次数失败，改用本地计数: request=%s, error: %v", task.RequestID, incErr)
			attempts = local
		}
		log.Errorf("处理装配任务失败: request=%s, attempt=%d, error: %v", task.RequestID, attempts, err)

		if permanent(err) || attempts >= maxAttempts {
			log.Errorf("装配任务放弃重试: request=%s, attempts=%d, kind=%s", task.RequestID, attempts, apperr.KindOf(err))
			counter.Reset(ctx, task.RequestID)
			return true
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Duration(attempts) * retryBackoff):
		}
	}
}

// StartConsumer 启动一个 Kafka 消费者来处理装配任务，ctx 取消后退出。
// 消费组中未提交的消息不会被再次 Fetch，所以失败的任务在这里就地重试，结束后再提交 offset。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TaskProcessor, counter AttemptCounter) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者已停止")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var task tasks.AssemblyTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		log.Infof("开始处理装配任务: request=%s, name=%s", task.RequestID, task.ConfigName)
		if !processWithRetry(ctx, processor, counter, task) {
			log.Info("Kafka 消费者已停止，任务未提交")
			return
		}
		commit(ctx, r, m)
	}
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
