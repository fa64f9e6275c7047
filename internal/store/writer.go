package store

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultWriteTimeout bounds each background write.
const DefaultWriteTimeout = 5 * time.Second

// WriterConfig configures a Writer.
type WriterConfig struct {
	Logger  *slog.Logger
	Timeout time.Duration
	// OnWrite is called after every background write with its outcome.
	OnWrite func(key string, deleted bool, err error)
}

type pendingOp struct {
	value  []byte
	delete bool
}

// Writer persists records in the background. Callers never wait on
// storage: Put and Delete only enqueue. Consecutive writes to the same key
// coalesce, so only the latest value reaches the store.
type Writer struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
	onWrite func(string, bool, error)

	mu      sync.Mutex
	pending map[string]pendingOp
	order   []string
	closed  bool

	wake  chan struct{}
	flush chan chan struct{}
	stop  chan struct{}
	done  chan struct{}
}

// NewWriter starts a Writer on s.
func NewWriter(s Store, cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	w := &Writer{
		store:   s,
		logger:  logger,
		timeout: timeout,
		onWrite: cfg.OnWrite,
		pending: make(map[string]pendingOp),
		wake:    make(chan struct{}, 1),
		flush:   make(chan chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

// Put schedules key to be set to value.
func (w *Writer) Put(key string, value []byte) {
	w.enqueue(key, pendingOp{value: append([]byte(nil), value...)})
}

// Delete schedules key to be removed.
func (w *Writer) Delete(key string) {
	w.enqueue(key, pendingOp{delete: true})
}

func (w *Writer) enqueue(key string, op pendingOp) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("write after close dropped", "key", key)
		return
	}
	if _, queued := w.pending[key]; !queued {
		w.order = append(w.order, key)
	}
	w.pending[key] = op
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Flush blocks until every write enqueued before the call has been applied.
func (w *Writer) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case w.flush <- ack:
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains pending writes and stops the background goroutine.
func (w *Writer) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	w.mu.Unlock()
	close(w.stop)
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case ack := <-w.flush:
			w.drain()
			close(ack)
		case <-w.stop:
			w.drain()
			return
		}
	}
}

func (w *Writer) drain() {
	for {
		w.mu.Lock()
		if len(w.order) == 0 {
			w.mu.Unlock()
			return
		}
		batch, order := w.pending, w.order
		w.pending = make(map[string]pendingOp)
		w.order = nil
		w.mu.Unlock()

		for _, key := range order {
			w.apply(key, batch[key])
		}
	}
}

func (w *Writer) apply(key string, op pendingOp) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	var err error
	if op.delete {
		err = w.store.Delete(ctx, key)
	} else {
		err = w.store.Put(ctx, key, op.value)
	}
	if err != nil {
		w.logger.Error("background write failed", "key", key, "delete", op.delete, "error", err)
	}
	if w.onWrite != nil {
		w.onWrite(key, op.delete, err)
	}
}
