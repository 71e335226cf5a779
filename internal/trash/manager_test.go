package trash

import (
	"fmt"
	"testing"
	"time"

	"sudooom.im.sync/internal/expiry"
	"sudooom.im.sync/internal/model"
	"sudooom.im.sync/internal/store"
	apperrors "sudooom.im.sync/pkg/errors"
)

const day = 24 * time.Hour

var t0 = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func newManager(n int) (*Manager, *store.MessageStore) {
	s := store.NewMessageStore()
	for i := 1; i <= n; i++ {
		s.Append("c-1", &model.Message{
			ID:        fmt.Sprintf("m-%d", i),
			SenderID:  "u-1",
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
	}
	return NewManager(s, expiry.DefaultPolicy()), s
}

func snapshot(s *store.MessageStore) string {
	var out []string
	for _, m := range s.Messages("c-1") {
		out = append(out, m.ID)
	}
	return fmt.Sprint(out)
}

func TestTrashMovesMessage(t *testing.T) {
	m, s := newManager(3)

	entry, err := m.Trash("c-1", "m-2", "u-9", "spam", t0)
	if err != nil {
		t.Fatalf("Trash failed: %v", err)
	}
	if s.Has("m-2") {
		t.Error("Expected message cut from store")
	}
	if !m.Has("m-2") || m.Len() != 1 {
		t.Error("Expected message in trash")
	}
	if !entry.ExpiresAt.Equal(t0.Add(30 * day)) {
		t.Errorf("Expected expiresAt %v, got %v", t0.Add(30*day), entry.ExpiresAt)
	}
	if entry.DaysRemaining != 30 || entry.IsExpiringSoon {
		t.Errorf("Unexpected expiry fields: %+v", entry)
	}
	if entry.TrashedBy != "u-9" || entry.Reason != "spam" {
		t.Errorf("Unexpected actor fields: %+v", entry)
	}
}

func TestTrashFrontInsertion(t *testing.T) {
	m, _ := newManager(3)
	m.Trash("c-1", "m-1", "u-1", "", t0)
	m.Trash("c-1", "m-3", "u-1", "", t0.Add(time.Second))

	list := m.List()
	if list[0].Message.ID != "m-3" || list[1].Message.ID != "m-1" {
		t.Errorf("Expected newest first, got %s %s", list[0].Message.ID, list[1].Message.ID)
	}
}

func TestTrashUnknown(t *testing.T) {
	m, _ := newManager(1)

	if _, err := m.Trash("c-1", "missing", "u-1", "", t0); !apperrors.Is(err, apperrors.ErrUnknownEntity) {
		t.Errorf("Expected ErrUnknownEntity, got %v", err)
	}
	if _, err := m.Trash("c-2", "m-1", "u-1", "", t0); !apperrors.Is(err, apperrors.ErrUnknownEntity) {
		t.Errorf("Expected ErrUnknownEntity for wrong channel, got %v", err)
	}
	if _, err := m.Restore("missing", "c-1"); !apperrors.Is(err, apperrors.ErrUnknownEntity) {
		t.Errorf("Expected ErrUnknownEntity, got %v", err)
	}
	if _, err := m.PermanentlyDelete("missing"); !apperrors.Is(err, apperrors.ErrUnknownEntity) {
		t.Errorf("Expected ErrUnknownEntity, got %v", err)
	}
}

func TestTrashRestoreRoundTrip(t *testing.T) {
	for _, id := range []string{"m-1", "m-3", "m-5"} {
		t.Run(id, func(t *testing.T) {
			m, s := newManager(5)
			before := snapshot(s)

			if _, err := m.Trash("c-1", id, "u-1", "", t0); err != nil {
				t.Fatalf("Trash failed: %v", err)
			}
			if _, err := m.Restore(id, "c-1"); err != nil {
				t.Fatalf("Restore failed: %v", err)
			}
			if after := snapshot(s); after != before {
				t.Errorf("Expected %s, got %s", before, after)
			}
			if m.Len() != 0 {
				t.Errorf("Expected empty trash, got %d", m.Len())
			}
		})
	}
}

func TestRestoreWrongChannel(t *testing.T) {
	m, _ := newManager(2)
	m.Trash("c-1", "m-1", "u-1", "", t0)

	if _, err := m.Restore("m-1", "c-2"); !apperrors.Is(err, apperrors.ErrUnknownEntity) {
		t.Errorf("Expected ErrUnknownEntity, got %v", err)
	}
	if !m.Has("m-1") {
		t.Error("Expected entry kept after failed restore")
	}
}

func TestPermanentlyDelete(t *testing.T) {
	m, s := newManager(2)
	m.Trash("c-1", "m-1", "u-1", "", t0)

	if _, err := m.PermanentlyDelete("m-1"); err != nil {
		t.Fatalf("PermanentlyDelete failed: %v", err)
	}
	if m.Has("m-1") || s.Has("m-1") {
		t.Error("Expected message gone everywhere")
	}
	if !m.IsTombstoned("m-1") {
		t.Error("Expected tombstone recorded")
	}
}

func TestDestroy(t *testing.T) {
	m, s := newManager(2)

	if _, err := m.Destroy("m-2"); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if s.Has("m-2") || !m.IsTombstoned("m-2") {
		t.Error("Expected active message destroyed")
	}

	m.Trash("c-1", "m-1", "u-1", "", t0)
	if _, err := m.Destroy("m-1"); err != nil {
		t.Fatalf("Destroy failed: %v", err)
	}
	if m.Has("m-1") || !m.IsTombstoned("m-1") {
		t.Error("Expected trashed message destroyed")
	}
}

func TestRecomputeExpiryScenario(t *testing.T) {
	m, _ := newManager(1)
	m.Trash("c-1", "m-1", "u-1", "", t0)

	if evicted := m.RecomputeExpiry(t0.Add(24 * day)); len(evicted) != 0 {
		t.Fatalf("Expected nothing evicted, got %d", len(evicted))
	}
	entry, _ := m.Get("m-1")
	if entry.DaysRemaining != 6 || !entry.IsExpiringSoon {
		t.Errorf("Expected 6 days and expiring soon, got %d %v", entry.DaysRemaining, entry.IsExpiringSoon)
	}

	evicted := m.RecomputeExpiry(t0.Add(31 * day))
	if len(evicted) != 1 || evicted[0].Message.ID != "m-1" {
		t.Fatalf("Expected m-1 evicted, got %v", evicted)
	}
	if m.Len() != 0 || !m.IsTombstoned("m-1") {
		t.Error("Expected trash empty and tombstone recorded")
	}
}

func TestRecomputeExpiryMonotonic(t *testing.T) {
	m, _ := newManager(3)
	m.Trash("c-1", "m-1", "u-1", "", t0)
	m.Trash("c-1", "m-2", "u-1", "", t0.Add(10*day))
	m.Trash("c-1", "m-3", "u-1", "", t0.Add(20*day))

	now := t0.Add(20 * day)
	m.RecomputeExpiry(now)
	prev := map[string]int{}
	for _, e := range m.List() {
		prev[e.Message.ID] = e.DaysRemaining
	}

	// 时钟回拨也不能让剩余天数增加
	m.RecomputeExpiry(t0)
	for _, e := range m.List() {
		if e.DaysRemaining > prev[e.Message.ID] {
			t.Errorf("Expected %s days not to increase: %d > %d", e.Message.ID, e.DaysRemaining, prev[e.Message.ID])
		}
	}

	evicted := m.RecomputeExpiry(t0.Add(40 * day))
	if len(evicted) != 2 {
		t.Fatalf("Expected 2 evicted, got %d", len(evicted))
	}
	for _, e := range evicted {
		if e.DaysRemaining != 0 {
			t.Errorf("Expected evicted entry at 0 days, got %d", e.DaysRemaining)
		}
	}
	if list := m.List(); len(list) != 1 || list[0].Message.ID != "m-3" {
		t.Errorf("Expected only m-3 left, got %d entries", len(list))
	}
}

func TestMutateTrashedCopy(t *testing.T) {
	m, _ := newManager(1)
	m.Trash("c-1", "m-1", "u-1", "", t0)

	content := "edited in trash"
	err := m.Mutate("m-1", func(msg *model.Message) error {
		model.MessagePatch{Content: &content}.Apply(msg)
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}
	err = m.Mutate("m-1", func(msg *model.Message) error {
		return store.AddReaction(msg, model.Reaction{ID: "r-1", UserID: "u-2", Emoji: "👍"})
	})
	if err != nil {
		t.Fatalf("Mutate failed: %v", err)
	}

	entry, _ := m.Get("m-1")
	if entry.Message.Content != content || len(entry.Message.Reactions) != 1 {
		t.Errorf("Unexpected trashed message: %+v", entry.Message)
	}
}

func TestTombstoneBounded(t *testing.T) {
	m, _ := newManager(0)
	m.tombstoneLimit = 2
	m.tombstone("a")
	m.tombstone("b")
	m.tombstone("c")

	if m.IsTombstoned("a") {
		t.Error("Expected oldest tombstone dropped")
	}
	if !m.IsTombstoned("b") || !m.IsTombstoned("c") {
		t.Error("Expected newest tombstones kept")
	}
}
