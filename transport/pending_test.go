package transport

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"light-rpc/internal/errs"
	"light-rpc/message"
)

func TestPendingTableCompletesInAnyOrder(t *testing.T) {
	table := NewPendingTable(zap.NewNop())
	const k = 64
	futures := make(map[uint64]*Future, k)
	ids := make([]uint64, 0, k)
	for i := 0; i < k; i++ {
		id := uint64(1000 + i*7)
		f, err := table.Register(id)
		require.NoError(t, err)
		futures[id] = f
		ids = append(ids, id)
	}

	rand.New(rand.NewSource(42)).Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			assert.True(t, table.Complete(&message.Response{RequestID: id, Code: message.CodeSuccess, Data: id}))
		}(id)
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for id, f := range futures {
		resp, err := f.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, id, resp.RequestID)
		assert.Equal(t, id, resp.Data)
	}
	assert.Zero(t, table.Len())
}

func TestPendingTableOrphanResponse(t *testing.T) {
	table := NewPendingTable(zap.NewNop())
	f, err := table.Register(1)
	require.NoError(t, err)

	assert.False(t, table.Complete(&message.Response{RequestID: 2}))
	assert.Equal(t, 1, table.Len())
	select {
	case <-f.Done():
		t.Fatal("unrelated future must stay pending")
	default:
	}

	assert.True(t, table.Complete(&message.Response{RequestID: 1, Code: message.CodeSuccess}))
	// a second response for the same id is an orphan too
	assert.False(t, table.Complete(&message.Response{RequestID: 1}))
}

func TestPendingTableDuplicateID(t *testing.T) {
	table := NewPendingTable(zap.NewNop())
	_, err := table.Register(9)
	require.NoError(t, err)
	_, err = table.Register(9)
	assert.ErrorIs(t, err, errs.ErrDuplicateRequestID)
}

func TestFutureTimeoutRemovesEntry(t *testing.T) {
	table := NewPendingTable(zap.NewNop())
	f, err := table.Register(5)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	resp, err := f.Get(ctx)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, table.Len())

	// the late arrival is dropped without touching the abandoned future
	assert.False(t, table.Complete(&message.Response{RequestID: 5, Code: message.CodeSuccess}))
}

func TestPendingTableFailAll(t *testing.T) {
	table := NewPendingTable(zap.NewNop())
	f1, _ := table.Register(1)
	f2, _ := table.Register(2)
	cause := errors.New("connection reset")

	table.FailAll(cause)
	assert.Zero(t, table.Len())
	for _, f := range []*Future{f1, f2} {
		_, err := f.Get(context.Background())
		assert.ErrorIs(t, err, cause)
	}
}

func TestPendingTableFail(t *testing.T) {
	table := NewPendingTable(zap.NewNop())
	f, _ := table.Register(3)
	cause := errors.New("bad body")

	assert.True(t, table.Fail(3, cause))
	assert.False(t, table.Fail(3, cause))
	_, err := f.Get(context.Background())
	assert.ErrorIs(t, err, cause)
}
