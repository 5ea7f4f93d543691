// Package cache provides Redis-backed caching with graceful degradation.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"gap-reversion-bot/config"
	"gap-reversion-bot/internal/logging"
)

// ErrUnavailable is returned while the circuit breaker is open
var ErrUnavailable = errors.New("redis unavailable (circuit breaker open)")

// ErrMiss is returned when a key is not cached
var ErrMiss = redis.Nil

// Store is the subset of CacheService used by cache consumers
type Store interface {
	IsHealthy() bool
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// CacheService provides Redis-based caching with graceful degradation.
// When Redis is unavailable, operations return errors that callers should
// handle by going to the source.
type CacheService struct {
	client       *redis.Client
	config       config.RedisConfig
	logger       *logging.Logger
	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	// Circuit breaker settings
	maxFailures   int
	checkInterval time.Duration
}

// NewCacheService creates a new CacheService with the provided configuration.
// A failed initial ping returns the service in degraded mode, not an error.
func NewCacheService(cfg config.RedisConfig) (*CacheService, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("redis is not enabled in configuration")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 1,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	cs := &CacheService{
		client:        client,
		config:        cfg,
		logger:        logging.WithComponent("cache"),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		cs.logger.Warn("Initial Redis connection failed, running degraded", "address", cfg.Address, "error", err)
		return cs, nil
	}

	cs.healthy = true
	cs.lastCheck = time.Now()
	cs.logger.Info("Redis connected", "address", cfg.Address)

	return cs, nil
}

// IsHealthy returns whether Redis is currently available.
func (cs *CacheService) IsHealthy() bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.healthy
}

// recordFailure tracks a Redis operation failure for the circuit breaker.
func (cs *CacheService) recordFailure() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.failureCount++
	if cs.failureCount >= cs.maxFailures {
		if cs.healthy {
			cs.logger.Warn("Circuit breaker open, Redis marked unhealthy", "failures", cs.failureCount)
		}
		cs.healthy = false
	}
}

// recordSuccess resets the failure counter on a successful operation.
func (cs *CacheService) recordSuccess() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.healthy {
		cs.logger.Info("Circuit breaker closed, Redis recovered")
	}
	cs.healthy = true
	cs.failureCount = 0
	cs.lastCheck = time.Now()
}

// checkHealth pings in the background when unhealthy and enough time has
// passed since the last check.
func (cs *CacheService) checkHealth() {
	cs.mu.Lock()
	shouldCheck := !cs.healthy && time.Since(cs.lastCheck) >= cs.checkInterval
	if shouldCheck {
		cs.lastCheck = time.Now()
	}
	cs.mu.Unlock()

	if !shouldCheck {
		return
	}

	go func() {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := cs.client.Ping(pingCtx).Err(); err == nil {
			cs.recordSuccess()
		}
	}()
}

// Get retrieves a value from cache. A miss returns ErrMiss.
func (cs *CacheService) Get(ctx context.Context, key string) (string, error) {
	cs.checkHealth()

	if !cs.IsHealthy() {
		return "", ErrUnavailable
	}

	result, err := cs.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrMiss
		}
		cs.recordFailure()
		return "", fmt.Errorf("redis get failed: %w", err)
	}

	cs.recordSuccess()
	return result, nil
}

// Set stores a value in cache with TTL. Non-string values are stored as JSON.
func (cs *CacheService) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	cs.checkHealth()

	if !cs.IsHealthy() {
		return ErrUnavailable
	}

	var data string
	switch v := value.(type) {
	case string:
		data = v
	case []byte:
		data = string(v)
	default:
		jsonData, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("failed to marshal value: %w", err)
		}
		data = string(jsonData)
	}

	if err := cs.client.Set(ctx, key, data, ttl).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// Delete removes a key from cache.
func (cs *CacheService) Delete(ctx context.Context, key string) error {
	cs.checkHealth()

	if !cs.IsHealthy() {
		return ErrUnavailable
	}

	if err := cs.client.Del(ctx, key).Err(); err != nil {
		cs.recordFailure()
		return fmt.Errorf("redis delete failed: %w", err)
	}

	cs.recordSuccess()
	return nil
}

// Close closes the Redis connection.
func (cs *CacheService) Close() error {
	if cs.client != nil {
		return cs.client.Close()
	}
	return nil
}

// Ping checks Redis connectivity.
func (cs *CacheService) Ping(ctx context.Context) error {
	if err := cs.client.Ping(ctx).Err(); err != nil {
		cs.recordFailure()
		return err
	}
	cs.recordSuccess()
	return nil
}

// Stats returns cache statistics for monitoring.
type Stats struct {
	Healthy      bool   `json:"healthy"`
	FailureCount int    `json:"failure_count"`
	Address      string `json:"address"`
	PoolSize     int    `json:"pool_size"`
}

// GetStats returns current cache statistics.
func (cs *CacheService) GetStats() Stats {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	return Stats{
		Healthy:      cs.healthy,
		FailureCount: cs.failureCount,
		Address:      cs.config.Address,
		PoolSize:     cs.config.PoolSize,
	}
}

var _ Store = (*CacheService)(nil)
