package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/progami/wms-ecomos-sub005/pkg/errors"
)

// lockTable hands out one exclusive lock per token. Entries are reference
// counted and dropped when nobody holds or waits on them.
type lockTable struct {
	mu      sync.Mutex
	entries map[int64]*lockEntry
}

type lockEntry struct {
	ch   chan struct{}
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[int64]*lockEntry)}
}

func (lt *lockTable) ref(token int64) *lockEntry {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	e, ok := lt.entries[token]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		lt.entries[token] = e
	}
	e.refs++
	return e
}

func (lt *lockTable) unref(token int64) {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if e, ok := lt.entries[token]; ok {
		e.refs--
		if e.refs == 0 {
			delete(lt.entries, token)
		}
	}
}

// acquire blocks until the token is free, wait elapses or ctx is done.
// wait <= 0 tries once.
func (lt *lockTable) acquire(ctx context.Context, token int64, wait time.Duration) error {
	e := lt.ref(token)

	if wait <= 0 {
		select {
		case e.ch <- struct{}{}:
			return nil
		default:
			lt.unref(token)
			return errors.LockContention(fmt.Sprintf("%016x", uint64(token)))
		}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-timer.C:
		lt.unref(token)
		return errors.LockContention(fmt.Sprintf("%016x", uint64(token)))
	case <-ctx.Done():
		lt.unref(token)
		return ctx.Err()
	}
}

func (lt *lockTable) release(token int64) {
	lt.mu.Lock()
	e, ok := lt.entries[token]
	lt.mu.Unlock()
	if !ok {
		return
	}
	<-e.ch
	lt.unref(token)
}
