package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ddx-dashboard/backend/internal/analytics"
	"github.com/ddx-dashboard/backend/pkg/logger"
)

const reportKeyPrefix = "analytics:report:"

type Client struct {
	client *redis.Client
}

func NewClient(addr, password string, db int) (*Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{client: client}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func reportKey(caseID uuid.UUID) string {
	return reportKeyPrefix + caseID.String()
}

func (c *Client) SetReport(ctx context.Context, caseID uuid.UUID, report *analytics.Report, ttl time.Duration) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := c.client.Set(ctx, reportKey(caseID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set report cache: %w", err)
	}

	logger.Debug("Report cached", zap.String("case_id", caseID.String()), zap.Duration("ttl", ttl))
	return nil
}

// GetReport returns the cached report, or false on a miss.
func (c *Client) GetReport(ctx context.Context, caseID uuid.UUID) (*analytics.Report, bool, error) {
	data, err := c.client.Get(ctx, reportKey(caseID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get report cache: %w", err)
	}

	var report analytics.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	logger.Debug("Report cache hit", zap.String("case_id", caseID.String()))
	return &report, true, nil
}

func (c *Client) Invalidate(ctx context.Context, caseID uuid.UUID) error {
	if err := c.client.Del(ctx, reportKey(caseID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate report cache: %w", err)
	}
	logger.Info("Report cache invalidated", zap.String("case_id", caseID.String()))
	return nil
}

// InvalidateAll drops every cached report.
func (c *Client) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, reportKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			logger.Warn("Failed to delete cache key", zap.Error(err))
		}
	}

	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to iterate cache keys: %w", err)
	}

	logger.Info("Report cache flushed")
	return nil
}
