package audit

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"docvault-backend/internal/store"
)

// Log collects decisions in memory and periodically flushes them to the
// policy_decisions table in a batch insert.
type Log struct {
	mu      sync.Mutex
	pending []Decision
	store   *store.Store
	maxSize int
	ticker  *time.Ticker
	done    chan struct{}
}

var _ Recorder = (*Log)(nil)

// NewLog creates a decision log that flushes on a timer or when full.
func NewLog(s *store.Store, maxSize int, flushIntervalMs int) *Log {
	l := &Log{
		store:   s,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	l.ticker = time.NewTicker(time.Duration(flushIntervalMs) * time.Millisecond)
	go l.run()
	return l
}

func (l *Log) run() {
	for {
		select {
		case <-l.done:
			return
		case <-l.ticker.C:
			l.Flush()
		}
	}
}

// Record adds a decision to the buffer. If the buffer is full, a flush is
// triggered asynchronously.
func (l *Log) Record(d Decision) {
	l.mu.Lock()
	l.pending = append(l.pending, d)
	shouldFlush := len(l.pending) >= l.maxSize
	l.mu.Unlock()
	if shouldFlush {
		go l.Flush()
	}
}

// Flush writes all buffered decisions in a single batch insert.
func (l *Log) Flush() {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	batch := l.pending
	l.pending = nil
	l.mu.Unlock()

	cols := []string{"decided_at", "tenant", "user_key", "action", "resource_type", "resource_key", "allowed"}
	var placeholders []string
	var args []any
	for i, d := range batch {
		offset := i * len(cols)
		ph := make([]string, len(cols))
		for j := range cols {
			ph[j] = fmt.Sprintf("$%d", offset+j+1)
		}
		placeholders = append(placeholders, "("+strings.Join(ph, ",")+")")
		args = append(args, d.DecidedAt, d.Tenant, d.UserKey, d.Action, d.ResourceType, d.ResourceKey, d.Allowed)
	}

	sql := fmt.Sprintf("INSERT INTO policy_decisions (%s) VALUES %s",
		strings.Join(cols, ","), strings.Join(placeholders, ","))
	if _, err := store.Exec(context.Background(), l.store.DB, sql, args...); err != nil {
		log.Printf("ERROR: decision log insert: %v", err)
	}
}

// Stop halts the background ticker and flushes remaining decisions.
func (l *Log) Stop() {
	if l.ticker != nil {
		l.ticker.Stop()
	}
	close(l.done)
	l.Flush()
}
