package storage

import (
	"context"
	"reflect"
	"testing"
	"time"
)

func TestUpsertConversation(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	last := time.Date(2026, 2, 19, 9, 30, 0, 0, time.UTC)
	c := Conversation{ConvID: "c1", Title: "客户A - 合同与报价", Participants: []string{"张三", "李四"}, LastActive: &last}
	if err := db.UpsertConversation(ctx, c); err != nil {
		t.Fatalf("UpsertConversation failed: %v", err)
	}

	got, err := db.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if got.Title != c.Title || !reflect.DeepEqual(got.Participants, c.Participants) {
		t.Errorf("GetConversation = %+v, want %+v", got, c)
	}
	if got.LastActive == nil || !got.LastActive.Equal(last) {
		t.Errorf("LastActive = %v, want %v", got.LastActive, last)
	}

	// 更新标题，参与者为空
	c.Title = "客户A"
	c.Participants = nil
	c.LastActive = nil
	if err := db.UpsertConversation(ctx, c); err != nil {
		t.Fatalf("second UpsertConversation failed: %v", err)
	}
	got, _ = db.GetConversation(ctx, "c1")
	if got.Title != "客户A" || len(got.Participants) != 0 || got.LastActive != nil {
		t.Errorf("after update = %+v", got)
	}
}

func TestUpsertConversation_RequiresID(t *testing.T) {
	db := openTestDB(t)
	if err := db.UpsertConversation(context.Background(), Conversation{Title: "x"}); err == nil {
		t.Error("expected error for empty conv id")
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetConversation(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListConversations_InsertionOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"zeta", "alpha", "mid"} {
		if err := db.UpsertConversation(ctx, Conversation{ConvID: id}); err != nil {
			t.Fatalf("UpsertConversation failed: %v", err)
		}
	}
	// 更新不改变顺序
	_ = db.UpsertConversation(ctx, Conversation{ConvID: "zeta", Title: "updated"})

	convs, err := db.ListConversations(ctx)
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	ids, _ := db.ConversationIDs(ctx)
	want := []string{"zeta", "alpha", "mid"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ConversationIDs = %v, want %v", ids, want)
	}
	if len(convs) != 3 || convs[0].Title != "updated" {
		t.Errorf("ListConversations = %+v", convs)
	}
}

func TestDeleteConversation_Cascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	seedConversation(t, db, "c1", Message{ID: "m1", Timestamp: t0, Text: "a"})

	if err := db.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	n, _ := db.CountMessages(ctx)
	if n != 0 {
		t.Errorf("messages left = %d, want 0", n)
	}
	if err := db.DeleteConversation(ctx, "c1"); err != ErrNotFound {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}
