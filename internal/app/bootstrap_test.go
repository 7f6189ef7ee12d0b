package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reviewrag/internal/app"
	"reviewrag/internal/config"
)

type statefulSchemaStore struct {
	callCount int
	failUntil int
}

func (m *statefulSchemaStore) EnsureSchema(ctx context.Context) error {
	m.callCount++
	if m.callCount <= m.failUntil {
		return errors.New("schema error")
	}
	return nil
}

func TestEnsureSchemaWithRetry_Success(t *testing.T) {
	store := &statefulSchemaStore{}
	err := app.EnsureSchemaWithRetry(context.Background(), store, 1, 1*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 1, store.callCount)
}

func TestEnsureSchemaWithRetry_Retries(t *testing.T) {
	store := &statefulSchemaStore{failUntil: 2}
	err := app.EnsureSchemaWithRetry(context.Background(), store, 5, 1*time.Millisecond)
	assert.NoError(t, err)
	assert.Equal(t, 3, store.callCount)
}

func TestEnsureSchemaWithRetry_Fail(t *testing.T) {
	store := &statefulSchemaStore{failUntil: 100}
	err := app.EnsureSchemaWithRetry(context.Background(), store, 3, 1*time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, store.callCount)
}

func TestEnsureSchemaWithRetry_ContextCancelled(t *testing.T) {
	store := &statefulSchemaStore{failUntil: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := app.EnsureSchemaWithRetry(ctx, store, 5, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, store.callCount)
}

func TestBootstrap_WithoutJobs(t *testing.T) {
	cfg := &config.Config{NSQDHost: "localhost:4150"}

	deps, err := app.Bootstrap(context.Background(), cfg)
	assert.NoError(t, err)
	defer deps.Close()

	assert.Nil(t, deps.DB)
	assert.NotNil(t, deps.NSQProducer)
}

func TestBootstrap_Resilience_DBDown(t *testing.T) {
	cfg := &config.Config{
		JobsEnabled:                true,
		DBHost:                     "localhost",
		DBPort:                     54322, // Random port likely closed
		DBUser:                     "test",
		DBPass:                     "test",
		DBName:                     "test",
		BootstrapRetryAttempts:     1,
		BootstrapRetryDelaySeconds: 0,
	}

	start := time.Now()
	deps, err := app.Bootstrap(context.Background(), cfg)

	assert.Error(t, err)
	assert.Nil(t, deps)
	assert.Contains(t, err.Error(), "failed to ping db")
	assert.Less(t, time.Since(start), 2*time.Second)
}
