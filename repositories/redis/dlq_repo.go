package redis

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"time"

	// Local Packages
	models "rwa-stream/models"

	// External Packages
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const deadLetterTTL = 7 * 24 * time.Hour

type DeadLetterQueue struct {
	client *redis.Client
	logger *zap.Logger
	prefix string
}

func NewDeadLetterQueue(client *redis.Client, logger *zap.Logger) *DeadLetterQueue {
	return &DeadLetterQueue{client: client, logger: logger, prefix: "dlq"}
}

func (r *DeadLetterQueue) key(record models.Record) string {
	return fmt.Sprintf("%s:%s:%s", r.prefix, record.Topic, record.Key)
}

// Send stores failed records in Redis under "dlq:{origin}:{key}". Records
// expire after a week.
func (r *DeadLetterQueue) Send(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	successCount := 0
	for _, record := range records {
		jsonData, err := json.Marshal(record)
		if err != nil {
			r.logger.Error("failed to marshal record", zap.Error(err))
			continue
		}

		key := r.key(record)
		if err := r.client.Set(ctx, key, jsonData, deadLetterTTL).Err(); err != nil {
			r.logger.Error("failed to store record", zap.String("key", key), zap.Error(err))
			continue
		}
		successCount++
	}

	if successCount < len(records) {
		return fmt.Errorf("stored %d of %d dead letters", successCount, len(records))
	}
	r.logger.Info("dead-lettered records", zap.Int("count", successCount))
	return nil
}
