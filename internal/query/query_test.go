package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuery_RefetchAppliesData(t *testing.T) {
	q := New("devices", func(ctx context.Context, key string) (string, error) {
		return "rows:" + key, nil
	}, nil)

	var seen []string
	q.Subscribe(func(s Snapshot[string]) { seen = append(seen, s.Data) })

	data, err := q.Refetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "rows:", data)

	snapshot := q.Snapshot()
	require.True(t, snapshot.Loaded)
	require.False(t, snapshot.Fetching)
	require.Equal(t, "rows:", snapshot.Data)
	require.Equal(t, []string{"rows:"}, seen)
}

func TestQuery_OlderResponseDoesNotRegress(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	q := New("sessions", func(ctx context.Context, key string) (int, error) {
		n := calls.Add(1)
		if n == 1 {
			<-release
			return 1, nil
		}
		return 2, nil
	}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Refetch(context.Background())
	}()
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	data, err := q.Refetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, data)

	close(release)
	wg.Wait()

	require.Equal(t, 2, q.Snapshot().Data)
}

func TestQuery_ErrorKeepsPreviousData(t *testing.T) {
	fail := false
	q := New("activities", func(ctx context.Context, key string) ([]string, error) {
		if fail {
			return nil, errors.New("backend down")
		}
		return []string{"a1"}, nil
	}, nil)

	_, err := q.Refetch(context.Background())
	require.NoError(t, err)

	fail = true
	_, err = q.Refetch(context.Background())
	require.Error(t, err)

	snapshot := q.Snapshot()
	require.Equal(t, []string{"a1"}, snapshot.Data)
	require.EqualError(t, snapshot.Err, "backend down")
}

func TestQuery_EnsureCoalescesCallers(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	q := New("activities", func(ctx context.Context, key string) (string, error) {
		calls.Add(1)
		<-release
		return "catalog", nil
	}, nil)

	var wg sync.WaitGroup
	results := make([]string, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, err := q.Ensure(context.Background())
			require.NoError(t, err)
			results[i] = data
		}(i)
	}
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		require.Equal(t, "catalog", r)
	}

	_, err := q.Ensure(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestQuery_SetKeyKeepsPerKeyCache(t *testing.T) {
	q := New("devices", func(ctx context.Context, key string) (string, error) {
		return "rows:" + key, nil
	}, nil)

	_, err := q.Refetch(context.Background())
	require.NoError(t, err)

	require.True(t, q.SetKey("quest"))
	require.False(t, q.SetKey("quest"))
	require.False(t, q.Snapshot().Loaded)

	_, err = q.Refetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "rows:quest", q.Snapshot().Data)

	q.SetKey("")
	require.Equal(t, "rows:", q.Snapshot().Data)
}

func TestQuery_PollStopsOnCancel(t *testing.T) {
	var calls atomic.Int32
	q := New("sessions", func(ctx context.Context, key string) (int, error) {
		return int(calls.Add(1)), nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.Poll(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poll did not stop")
	}
}
