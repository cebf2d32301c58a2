package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTaskQueue is an alternative queue backend for deployments where the
// API process and the scheduler share a Redis instance. Task records still
// live only in the in-process store; Redis carries nothing but IDs.
type RedisTaskQueue struct {
	client    *redis.Client
	queueName string
}

var _ TaskQueue = (*RedisTaskQueue)(nil)

func NewRedisTaskQueue(url, queueName string) (*RedisTaskQueue, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisTaskQueue{
		client:    client,
		queueName: queueName,
	}, nil
}

func (q *RedisTaskQueue) Enqueue(ctx context.Context, taskID string) error {
	// Left push for FIFO with right pop
	return q.client.LPush(ctx, q.queueName, taskID).Err()
}

func (q *RedisTaskQueue) Dequeue(ctx context.Context) (string, error) {
	// Blocking right pop with 0 timeout (wait indefinitely)
	result, err := q.client.BRPop(ctx, 0, q.queueName).Result()
	if err != nil {
		return "", fmt.Errorf("failed to dequeue task: %w", err)
	}

	// BRPop returns [queueName, value]
	if len(result) != 2 {
		return "", fmt.Errorf("unexpected BRPop result format. Should have %d elements but got %d", 2, len(result))
	}

	return result[1], nil
}

func (q *RedisTaskQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}

func (q *RedisTaskQueue) Close() error {
	return q.client.Close()
}
