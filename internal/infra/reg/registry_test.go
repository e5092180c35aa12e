package reg

import (
	"context"
	"testing"

	"github.com/iamwavecut/shiftbot/internal/db"
)

type countingLoader struct {
	calls  int
	groups map[int64]*db.Group
}

func (l *countingLoader) GetGroupByChat(_ context.Context, chatID int64) (*db.Group, error) {
	l.calls++
	return l.groups[chatID], nil
}

func TestRegistryCachesHitsAndMisses(t *testing.T) {
	t.Parallel()

	loader := &countingLoader{groups: map[int64]*db.Group{-1: {ID: 1, ChatID: -1}}}
	registry := New(loader)
	ctx := context.Background()

	for range 3 {
		group, err := registry.Group(ctx, -1)
		if err != nil || group == nil || group.ID != 1 {
			t.Fatalf("unexpected group: %#v, %v", group, err)
		}
		if group, _ := registry.Group(ctx, -2); group != nil {
			t.Fatalf("expected no group for unknown chat")
		}
	}
	if loader.calls != 2 {
		t.Fatalf("expected 2 loads, got %d", loader.calls)
	}

	loader.groups[-2] = &db.Group{ID: 2, ChatID: -2}
	registry.Forget(-2)
	if group, _ := registry.Group(ctx, -2); group == nil || group.ID != 2 {
		t.Fatalf("expected reload after Forget, got %#v", group)
	}
}
