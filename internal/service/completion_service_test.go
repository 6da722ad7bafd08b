package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCompleter struct {
	count    int64
	err      error
	lastAsOf atomic.Value
	calls    atomic.Int64
}

func (m *mockCompleter) CompleteOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	m.calls.Add(1)
	m.lastAsOf.Store(asOf)
	return m.count, m.err
}

func TestCompletionServiceSweep(t *testing.T) {
	repo := &mockCompleter{count: 3}
	svc := NewCompletionService(repo, time.Hour, zap.NewNop(), nil)

	asOf := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	count, err := svc.Sweep(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, asOf, repo.lastAsOf.Load())
}

func TestCompletionServiceSweepError(t *testing.T) {
	repo := &mockCompleter{err: errors.New("db down")}
	svc := NewCompletionService(repo, time.Hour, zap.NewNop(), nil)

	_, err := svc.Sweep(context.Background(), time.Now().UTC())
	require.Error(t, err)
}

func TestCompletionServiceStartRunsInitialSweep(t *testing.T) {
	repo := &mockCompleter{}
	svc := NewCompletionService(repo, time.Hour, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	svc.Start(ctx)
	assert.Eventually(t, func() bool { return repo.calls.Load() >= 1 }, time.Second, 10*time.Millisecond)
	svc.Stop()
}
