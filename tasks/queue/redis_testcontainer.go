//go:build integration

package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupRedisTestcontainer(t *testing.T) (*RedisTaskQueue, func()) {
	ctx := context.Background()

	uniqueQueueName := fmt.Sprintf("test_queue_%s_%d", t.Name(), time.Now().UnixNano())

	redisContainer, err := redis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("6379/tcp").WithStartupTimeout(30*time.Second),
			wait.ForLog("Ready to accept connections").WithOccurrence(1).WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("Failed to start Redis testcontainer: %v", err)
	}

	redisURL, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		redisContainer.Terminate(ctx)
		t.Fatalf("Failed to get Redis connection string: %v", err)
	}
	redisURL += "/1" // Add database selection

	t.Logf("Redis container started at: %s (queue: %s)", redisURL, uniqueQueueName)

	var q *RedisTaskQueue
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		q, err = NewRedisTaskQueue(redisURL, uniqueQueueName)
		if err == nil {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	if err != nil {
		redisContainer.Terminate(ctx)
		t.Fatalf("Failed to connect to Redis after %d attempts: %v", maxRetries, err)
	}

	cleanup := func() {
		q.Close()
		redisContainer.Terminate(ctx)
	}

	return q, cleanup
}
