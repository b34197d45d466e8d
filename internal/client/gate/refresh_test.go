package gate

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/atinyakov/gvagate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fakeFetcher struct {
	calls  atomic.Int32
	groups []models.GroupRecord
	err    error
}

func (f *fakeFetcher) Groups(ctx context.Context) ([]models.GroupRecord, error) {
	f.calls.Add(1)
	return f.groups, f.err
}

func TestRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gate.db")
	db := NewGroupDB(path)

	require.NoError(t, Refresh(context.Background(), &fakeFetcher{groups: testGroups}, db))
	assert.Equal(t, testGroups, db.Enumerate())
	assert.False(t, db.UpdatedAt().IsZero())

	reloaded := NewGroupDB(path)
	require.NoError(t, reloaded.Load())
	assert.Equal(t, testGroups, reloaded.Enumerate())
}

func TestRefresh_FetchErrorKeepsPreviousList(t *testing.T) {
	db := NewGroupDB(filepath.Join(t.TempDir(), "gate.db"))
	db.Replace(testGroups)

	err := Refresh(context.Background(), &fakeFetcher{err: errors.New("offline")}, db)
	assert.EqualError(t, err, "offline")
	assert.Equal(t, testGroups, db.Enumerate())
	assert.False(t, db.Exists())
}

func TestStartAutoRefresh(t *testing.T) {
	db := NewGroupDB(filepath.Join(t.TempDir(), "gate.db"))
	f := &fakeFetcher{groups: testGroups}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartAutoRefresh(ctx, f, db, 10*time.Millisecond, zap.NewNop())

	require.Eventually(t, func() bool { return f.calls.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, testGroups, db.Enumerate())

	cancel()
	time.Sleep(30 * time.Millisecond)
	stopped := f.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, stopped, f.calls.Load())
}

func TestStartAutoRefresh_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	db := NewGroupDB(filepath.Join(t.TempDir(), "gate.db"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartAutoRefresh(ctx, &fakeFetcher{err: errors.New("offline")}, db, time.Hour, zap.New(core))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("failed to refresh groups").Len() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestStartAutoRefresh_NonPositiveInterval(t *testing.T) {
	db := NewGroupDB(filepath.Join(t.TempDir(), "gate.db"))
	f := &fakeFetcher{groups: testGroups}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NotPanics(t, func() { StartAutoRefresh(ctx, f, db, 0, nil) })
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, testGroups, db.Enumerate())
}
