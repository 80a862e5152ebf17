package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// WriteFunc performs database writes inside a batch transaction. tx is nil
// when the writer has no database.
type WriteFunc func(ctx context.Context, tx *sql.Tx) error

// ErrBatchWriterClosed is returned by Submit and Close after Close.
var ErrBatchWriterClosed = errors.New("batch writer closed")

// BatchWriter groups writes into transactions of a fixed size and commits
// them on a background goroutine, so readers see each committed chunk while
// the rest of the sync is still being produced. A failed chunk is rolled back
// and the first error is reported by Close.
type BatchWriter struct {
	db   *sql.DB
	size int

	mu     sync.Mutex
	buf    []WriteFunc
	closed bool

	commitCh chan []WriteFunc
	done     chan struct{}

	// OnCommit, if set, is called from the committer after each successful
	// chunk with the number of writes it held.
	OnCommit func(n int)
	// OnError, if set, is called for every failed chunk.
	OnError func(error)

	errMu     sync.Mutex
	firstErr  error
	committed int
}

// NewBatchWriter starts a writer that commits every size submissions.
func NewBatchWriter(db *sql.DB, size int) *BatchWriter {
	if size <= 0 {
		size = 50
	}
	bw := &BatchWriter{
		db:       db,
		size:     size,
		buf:      make([]WriteFunc, 0, size),
		commitCh: make(chan []WriteFunc, 2),
		done:     make(chan struct{}),
	}
	go bw.committer()
	return bw
}

// Submit enqueues w. It blocks when two full chunks are already waiting.
func (bw *BatchWriter) Submit(w WriteFunc) error {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	if bw.closed {
		return ErrBatchWriterClosed
	}
	bw.buf = append(bw.buf, w)
	if len(bw.buf) >= bw.size {
		bw.flushLocked()
	}
	return nil
}

func (bw *BatchWriter) flushLocked() {
	if len(bw.buf) == 0 {
		return
	}
	bw.commitCh <- bw.buf
	bw.buf = make([]WriteFunc, 0, bw.size)
}

func (bw *BatchWriter) committer() {
	defer close(bw.done)
	for batch := range bw.commitCh {
		if err := bw.execute(batch); err != nil {
			bw.errMu.Lock()
			if bw.firstErr == nil {
				bw.firstErr = err
			}
			bw.errMu.Unlock()
			if bw.OnError != nil {
				bw.OnError(err)
			}
			continue
		}
		bw.errMu.Lock()
		bw.committed += len(batch)
		bw.errMu.Unlock()
		if bw.OnCommit != nil {
			bw.OnCommit(len(batch))
		}
	}
}

func (bw *BatchWriter) execute(batch []WriteFunc) error {
	// Chunks already handed over are finished even when the sync is
	// cancelled, so they run on a fresh context.
	ctx := context.Background()
	if bw.db == nil {
		for _, w := range batch {
			if err := w(ctx, nil); err != nil {
				return err
			}
		}
		return nil
	}

	tx, err := bw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()
	for _, w := range batch {
		if err := w(ctx, tx); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch of %d: %w", len(batch), err)
	}
	return nil
}

// Committed returns how many writes have been committed so far.
func (bw *BatchWriter) Committed() int {
	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.committed
}

// Close flushes the partial chunk, waits for every chunk to finish and
// returns the first commit error.
func (bw *BatchWriter) Close() error {
	bw.mu.Lock()
	if bw.closed {
		bw.mu.Unlock()
		return ErrBatchWriterClosed
	}
	bw.closed = true
	bw.flushLocked()
	close(bw.commitCh)
	bw.mu.Unlock()

	<-bw.done

	bw.errMu.Lock()
	defer bw.errMu.Unlock()
	return bw.firstErr
}
