// Package reg keeps an in-process cache of registered groups keyed by chat id.
package reg

import (
	"context"
	"sync"

	"github.com/iamwavecut/shiftbot/internal/db"
)

type GroupLoader interface {
	GetGroupByChat(ctx context.Context, chatID int64) (*db.Group, error)
}

type Registry struct {
	mu     sync.RWMutex
	loader GroupLoader
	groups map[int64]*db.Group
}

func New(loader GroupLoader) *Registry {
	return &Registry{loader: loader, groups: map[int64]*db.Group{}}
}

// Group returns the registered group of a chat, or nil. Misses are cached too.
func (r *Registry) Group(ctx context.Context, chatID int64) (*db.Group, error) {
	r.mu.RLock()
	group, ok := r.groups[chatID]
	r.mu.RUnlock()
	if ok {
		return group, nil
	}

	group, err := r.loader.GetGroupByChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.groups[chatID] = group
	r.mu.Unlock()
	return group, nil
}

// Forget drops the cached entry after the group changed.
func (r *Registry) Forget(chatID int64) {
	r.mu.Lock()
	delete(r.groups, chatID)
	r.mu.Unlock()
}
