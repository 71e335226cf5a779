package model

import (
	"strings"
	"testing"
	"time"
)

func TestMessageClone(t *testing.T) {
	edited := time.Unix(100, 0)
	m := &Message{
		ID:        "m-1",
		EditedAt:  &edited,
		Reactions: []Reaction{{ID: "r-1", UserID: "u-1", Emoji: "👍"}},
	}

	c := m.Clone()
	c.Reactions[0].Emoji = "🎉"
	*c.EditedAt = time.Unix(200, 0)

	if m.Reactions[0].Emoji != "👍" {
		t.Errorf("Expected original reaction untouched, got %s", m.Reactions[0].Emoji)
	}
	if !m.EditedAt.Equal(edited) {
		t.Errorf("Expected original EditedAt untouched, got %v", m.EditedAt)
	}
}

func TestMessagePatchApply(t *testing.T) {
	m := &Message{ID: "m-1", Content: "old", Optimistic: true}

	content := "new"
	optimistic := false
	p := MessagePatch{Content: &content, Optimistic: &optimistic}
	if p.IsEmpty() {
		t.Fatal("Expected non-empty patch")
	}
	p.Apply(m)

	if m.Content != "new" {
		t.Errorf("Expected content 'new', got '%s'", m.Content)
	}
	if m.Optimistic {
		t.Error("Expected optimistic flag cleared")
	}
	if !(MessagePatch{}).IsEmpty() {
		t.Error("Expected zero patch to be empty")
	}
}

func TestPatchFrom(t *testing.T) {
	edited := time.Unix(50, 0)
	p := PatchFrom(&Message{Content: "edited", EditedAt: &edited})

	m := &Message{Content: "orig", Optimistic: true}
	p.Apply(m)
	if m.Content != "edited" || m.Optimistic || m.EditedAt == nil {
		t.Errorf("Unexpected message after patch: %+v", m)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("hello"); got != "hello" {
		t.Errorf("Expected 'hello', got '%s'", got)
	}
	long := strings.Repeat("字", previewLimit+5)
	got := Preview(long)
	if len([]rune(got)) != previewLimit+1 {
		t.Errorf("Expected %d runes, got %d", previewLimit+1, len([]rune(got)))
	}
}

func TestChannelMembers(t *testing.T) {
	c := &Channel{ID: "c-1", Members: []Member{{UserID: "u-1", DisplayName: "Alice"}}}

	if !c.HasMember("u-1") || c.HasMember("u-2") {
		t.Error("Unexpected membership result")
	}
	if got := c.MemberName("u-1"); got != "Alice" {
		t.Errorf("Expected 'Alice', got '%s'", got)
	}
	if got := c.MemberName("u-2"); got != "u-2" {
		t.Errorf("Expected fallback 'u-2', got '%s'", got)
	}

	cp := c.Clone()
	cp.Members[0].Online = true
	if c.Members[0].Online {
		t.Error("Expected clone to own its member slice")
	}
}

func TestPageRequestInPage(t *testing.T) {
	at := time.Unix(1000, 0)
	older := PageRequest{Direction: PageOlder, Cursor: at, CursorID: "m-5"}
	newer := PageRequest{Direction: PageNewer, Cursor: at, CursorID: "m-5"}

	tests := []struct {
		name  string
		m     *Message
		older bool
		newer bool
	}{
		{"earlier", &Message{ID: "m-9", CreatedAt: at.Add(-time.Second)}, true, false},
		{"later", &Message{ID: "m-1", CreatedAt: at.Add(time.Second)}, false, true},
		{"tie lower id", &Message{ID: "m-4", CreatedAt: at}, true, false},
		{"tie higher id", &Message{ID: "m-6", CreatedAt: at}, false, true},
		{"cursor itself", &Message{ID: "m-5", CreatedAt: at}, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := older.InPage(tt.m); got != tt.older {
				t.Errorf("older.InPage = %v, want %v", got, tt.older)
			}
			if got := newer.InPage(tt.m); got != tt.newer {
				t.Errorf("newer.InPage = %v, want %v", got, tt.newer)
			}
		})
	}

	if !(PageRequest{Direction: PageOlder}).InPage(&Message{ID: "m-1", CreatedAt: at}) {
		t.Error("Expected zero cursor to match every message")
	}
}
