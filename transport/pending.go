package transport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"light-rpc/internal/errs"
	"light-rpc/message"
)

// Future is a single-assignment slot for the response of one request.
// Exactly one completion wins; later ones are ignored.
type Future struct {
	requestID uint64
	done      chan struct{}
	once      sync.Once
	resp      *message.Response
	err       error
	table     *PendingTable
}

func newFuture(requestID uint64, table *PendingTable) *Future {
	return &Future{
		requestID: requestID,
		done:      make(chan struct{}),
		table:     table,
	}
}

// RequestID returns the id the future is registered under.
func (f *Future) RequestID() uint64 {
	return f.requestID
}

// Done is closed once the future has been completed.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

func (f *Future) complete(resp *message.Response, err error) bool {
	completed := false
	f.once.Do(func() {
		f.resp, f.err = resp, err
		completed = true
		close(f.done)
	})
	return completed
}

// Get blocks until the response arrives or ctx ends. When ctx ends first the
// pending entry is removed, so a late response is logged and dropped instead
// of being kept forever.
func (f *Future) Get(ctx context.Context) (*message.Response, error) {
	select {
	case <-f.done:
		return f.resp, f.err
	case <-ctx.Done():
		if f.table != nil {
			f.table.Remove(f.requestID)
		}
		// the response may have raced with the deadline
		select {
		case <-f.done:
			return f.resp, f.err
		default:
		}
		return nil, fmt.Errorf("light-rpc: waiting for request %d: %w", f.requestID, ctx.Err())
	}
}

// PendingTable correlates in-flight requests with their futures. Inserts
// happen on the caller's goroutine before the frame is written; completions
// happen on the connection's receive loop.
type PendingTable struct {
	mu      sync.Mutex
	pending map[uint64]*Future
	logger  *zap.Logger
}

func NewPendingTable(logger *zap.Logger) *PendingTable {
	if logger == nil {
		logger = zap.L()
	}
	return &PendingTable{
		pending: make(map[uint64]*Future),
		logger:  logger,
	}
}

// Register inserts a future for requestID. Ids must be unique among
// outstanding calls; a collision is reported instead of overwriting.
func (t *PendingTable) Register(requestID uint64) (*Future, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.pending[requestID]; ok {
		return nil, fmt.Errorf("%w: %d", errs.ErrDuplicateRequestID, requestID)
	}
	f := newFuture(requestID, t)
	t.pending[requestID] = f
	return f, nil
}

// Complete removes the future registered for resp.RequestID and fulfils it.
// A response with no matching entry is normal when the caller already gave
// up; it is logged and dropped.
func (t *PendingTable) Complete(resp *message.Response) bool {
	t.mu.Lock()
	f, ok := t.pending[resp.RequestID]
	delete(t.pending, resp.RequestID)
	t.mu.Unlock()

	if !ok {
		t.logger.Warn("received a response but no matching pending call found",
			zap.Uint64("requestId", resp.RequestID))
		return false
	}
	return f.complete(resp, nil)
}

// Fail removes the entry for requestID and completes it with err.
func (t *PendingTable) Fail(requestID uint64, err error) bool {
	t.mu.Lock()
	f, ok := t.pending[requestID]
	delete(t.pending, requestID)
	t.mu.Unlock()
	if !ok {
		return false
	}
	return f.complete(nil, err)
}

// Remove drops the entry for requestID without completing it.
func (t *PendingTable) Remove(requestID uint64) {
	t.mu.Lock()
	delete(t.pending, requestID)
	t.mu.Unlock()
}

// FailAll completes every pending future with err and empties the table.
// It is called when the connection breaks so no caller waits forever.
func (t *PendingTable) FailAll(err error) {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[uint64]*Future)
	t.mu.Unlock()

	for _, f := range pending {
		f.complete(nil, err)
	}
}

// Len returns the number of outstanding calls.
func (t *PendingTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
