package infrastructure

import (
	"context"
	"sync"
)

// ConversationLocks is an in-process keyed mutex. Entries are reference
// counted and dropped once nobody holds or waits on them.
type ConversationLocks struct {
	mu    sync.Mutex
	locks map[string]*conversationLock
}

type conversationLock struct {
	sem  chan struct{}
	refs int
}

func NewConversationLocks() *ConversationLocks {
	return &ConversationLocks{
		locks: make(map[string]*conversationLock),
	}
}

// Lock blocks until key is free or ctx is done.
func (l *ConversationLocks) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[key]
	if !ok {
		entry = &conversationLock{sem: make(chan struct{}, 1)}
		l.locks[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, entry)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(key, entry)
		})
	}, nil
}

func (l *ConversationLocks) release(key string, entry *conversationLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *ConversationLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
