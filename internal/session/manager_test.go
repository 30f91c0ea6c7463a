package session

import (
	"context"
	"testing"

	cachemock "github.com/lumenforge/tutorcore/pkg/cache/mock"
	"github.com/lumenforge/tutorcore/pkg/drs"
	drsmock "github.com/lumenforge/tutorcore/pkg/drs/mock"
	"github.com/lumenforge/tutorcore/pkg/model"
)

func TestManager_GetOrCreateAndAppend(t *testing.T) {
	ctx := context.Background()
	store := drsmock.New()
	c := cachemock.New()
	mgr := NewManager(store, c)

	sess, err := mgr.GetOrCreate(ctx, "user-1", drs.ClientInfo{IP: "127.0.0.1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := mgr.Append(ctx, model.Message{UserID: "user-1", SessionID: sess.SessionID, Role: model.RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	history, err := mgr.RecentHistory(ctx, sess.SessionID, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Content != "hello" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestManager_RecentHistory_FallsBackWhenCacheMisses(t *testing.T) {
	ctx := context.Background()
	store := drsmock.New()
	mgr := NewManager(store, nil)

	sess, err := mgr.GetOrCreate(ctx, "user-2", drs.ClientInfo{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := mgr.Append(ctx, model.Message{UserID: "user-2", SessionID: sess.SessionID, Role: model.RoleAssistant, Content: "hi there"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	history, err := mgr.RecentHistory(ctx, sess.SessionID, 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected durable fallback to return 1 message, got %d", len(history))
	}
}

func TestManager_End(t *testing.T) {
	ctx := context.Background()
	store := drsmock.New()
	c := cachemock.New()
	mgr := NewManager(store, c)

	sess, _ := mgr.GetOrCreate(ctx, "user-3", drs.ClientInfo{})
	if err := mgr.End(ctx, sess.SessionID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := mgr.End(ctx, sess.SessionID); err == nil {
		t.Fatal("expected error ending an already-ended session")
	}
}
