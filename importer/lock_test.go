package importer

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
)

func TestMemoryLocker(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.TryLock(ctx, "import:cpu")
	require.NoError(t, err)

	_, err = l.TryLock(ctx, "import:cpu")
	assert.ErrorIs(t, err, ErrImportInProgress)

	other, err := l.TryLock(ctx, "import:gpu")
	require.NoError(t, err, "keys are independent")
	other()

	unlock()
	unlock()

	again, err := l.TryLock(ctx, "import:cpu")
	require.NoError(t, err)
	again()
}

func TestMemoryLocker_Concurrent(t *testing.T) {
	l := NewMemoryLocker()
	var acquired atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := l.TryLock(context.Background(), "import:cpu"); err == nil {
				acquired.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), acquired.Load())
}

func startRedis(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Redis container")
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisLocker(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()

	first := NewRedisLocker(client, time.Minute, zaptest.NewLogger(t))
	second := NewRedisLocker(client, time.Minute, zaptest.NewLogger(t))

	unlock, err := first.TryLock(ctx, "import:cpu")
	require.NoError(t, err)

	_, err = second.TryLock(ctx, "import:cpu")
	assert.ErrorIs(t, err, ErrImportInProgress, "the lock is shared between lockers")

	ttl, err := client.PTTL(ctx, "partsdb:lock:import:cpu").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	unlock()

	unlockSecond, err := second.TryLock(ctx, "import:cpu")
	require.NoError(t, err)

	// a second unlock from the previous holder is a no-op
	unlock()
	_, err = first.TryLock(ctx, "import:cpu")
	assert.ErrorIs(t, err, ErrImportInProgress)

	// releasing only deletes the key while it carries the holder's token
	require.NoError(t, client.Set(ctx, "partsdb:lock:import:gpu", "someone-else", time.Minute).Err())
	require.NoError(t, releaseScript.Run(ctx, client, []string{"partsdb:lock:import:gpu"}, "my-token").Err())
	assert.Equal(t, int64(1), client.Exists(ctx, "partsdb:lock:import:gpu").Val())

	unlockSecond()
}

func TestRedisLocker_Expires(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	l := NewRedisLocker(client, 200*time.Millisecond, nil)

	_, err := l.TryLock(ctx, "import:cpu")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		unlock, err := l.TryLock(ctx, "import:cpu")
		if err != nil {
			return false
		}
		unlock()
		return true
	}, 5*time.Second, 50*time.Millisecond)
}
