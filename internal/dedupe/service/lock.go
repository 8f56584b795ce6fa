package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rollguard/pkg/platform/sentinel"
)

// localRunLock serializes runs within one process. TTLs are ignored: a held
// key is released only by its holder.
type localRunLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newLocalRunLock() *localRunLock {
	return &localRunLock{held: make(map[string]struct{})}
}

func (l *localRunLock) Acquire(_ context.Context, key string, _ time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, fmt.Errorf("run lock %s: %w", key, sentinel.ErrConflict)
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}
