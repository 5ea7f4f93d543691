package cache

import (
	"context"
	"errors"
	"testing"

	"gap-reversion-bot/config"
)

func TestNewCacheServiceDisabled(t *testing.T) {
	_, err := NewCacheService(config.RedisConfig{Enabled: false})
	if err == nil {
		t.Error("Expected error for disabled redis")
	}
}

func TestCacheServiceDegradedMode(t *testing.T) {
	// Nothing listens on port 1, so the initial ping fails fast.
	cs, err := NewCacheService(config.RedisConfig{Enabled: true, Address: "127.0.0.1:1", PoolSize: 1})
	if err != nil {
		t.Fatalf("Expected degraded service, got error: %v", err)
	}
	defer cs.Close()

	if cs.IsHealthy() {
		t.Error("Expected unhealthy service")
	}

	if _, err := cs.Get(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if err := cs.Set(context.Background(), "k", "v", 0); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if err := cs.Delete(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if err := cs.Ping(context.Background()); err == nil {
		t.Error("Expected ping to fail")
	}

	stats := cs.GetStats()
	if stats.Healthy || stats.Address != "127.0.0.1:1" {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestCircuitBreakerThresholds(t *testing.T) {
	cs := &CacheService{healthy: true, maxFailures: 3, logger: testLogger()}

	cs.recordFailure()
	cs.recordFailure()
	if !cs.IsHealthy() {
		t.Error("Expected healthy below the failure threshold")
	}

	cs.recordFailure()
	if cs.IsHealthy() {
		t.Error("Expected breaker to open at the threshold")
	}

	cs.recordSuccess()
	if !cs.IsHealthy() || cs.failureCount != 0 {
		t.Error("Expected success to close the breaker")
	}
}
