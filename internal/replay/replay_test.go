package replay

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.sync/internal/model"
)

const scenario = `
user: {id: u-me, name: mika}
start: 2026-03-10T09:00:00Z
online: [u-ann]
channels:
  - ChannelId: c1
    Name: general
    LastMessageAt: 1773133200000
    UnreadCount: 2
    Members: [{UserId: u-me, DisplayName: Mika}, {UserId: u-ann, DisplayName: Ann}]
  - ChannelId: c2
    Name: random
    LastMessageAt: 1773129600000
    Members: [{UserId: u-me, DisplayName: Mika}, {UserId: u-ann, DisplayName: Ann}]
history:
  c2:
    - {MessageId: h1, SenderId: u-ann, Content: earlier, CreatedAt: 1773129000000}
steps:
  - expect: {total_unread: 2, channel_order: [c1, c2], online: [u-ann]}

  - event:
      EventId: e1
      Payload:
        NewMessage:
          ChannelId: c2
          Message: {MessageId: m1, SenderId: u-ann, Content: "hi @mika", CreatedAt: 1773133260000}
    expect: {total_unread: 3, channel_order: [c2, c1], unread: {c2: 1}}

  - intent: {action: select, channel: c2}
    expect: {total_unread: 2, unread: {c2: 0}}

  - intent: {action: fetch, channel: c2, direction: older}
    expect: {messages: {c2: [h1, m1]}, total_unread: 2}

  - event:
      EventId: e2
      Payload: {TypingStart: {ChannelId: c1, UserId: u-ann, DisplayName: Ann}}
    expect: {typing: {c1: [u-ann]}}

  - advance: 3s
    expect: {typing: {c1: []}}

  - event:
      EventId: e3
      Payload:
        ReactionAdded:
          MessageId: m2
          Reaction: {ReactionId: r1, UserId: u-ann, Emoji: "+1", CreatedAt: 1773133203000}

  - event:
      EventId: e4
      Payload:
        NewMessage:
          ChannelId: c1
          Message: {MessageId: m2, SenderId: u-ann, Content: "lunch?", CreatedAt: 1773133202000}
    expect: {total_unread: 3, unread: {c1: 3}}

  - intent: {action: send, channel: c1, content: "sure"}
    expect: {messages: {c1: [m2, srv-local-1]}, total_unread: 3}

  - intent: {action: trash, channel: c2, message: m1, reason: cleanup}
    expect: {trash: [m1], messages: {c2: [h1]}}

  - advance: 576h
    expect: {trash: [m1]}

  - advance: 168h
    expect: {trash: []}
`

func TestRunScenario(t *testing.T) {
	s, err := Parse([]byte(scenario))
	require.NoError(t, err)

	r, err := NewRunner(s)
	require.NoError(t, err)

	res, err := r.Run()
	require.NoError(t, err)

	assert.Equal(t, 3, res.Applied)
	assert.Equal(t, 1, res.Ignored)
	assert.GreaterOrEqual(t, res.Fired, 1)

	m2, ok := r.Engine().Message("m2")
	require.True(t, ok)
	require.Len(t, m2.Reactions, 1)
	assert.Equal(t, "+1", m2.Reactions[0].Emoji)

	sent, ok := r.Engine().Message("srv-local-1")
	require.True(t, ok)
	assert.False(t, sent.Optimistic)

	assert.Contains(t, res.Intents, "subscribe c1")
	assert.Contains(t, res.Intents, "subscribe c2")
	assert.Contains(t, res.Intents, "mark_read c2 m1")
	assert.Contains(t, res.Intents, "send c1 local-1")

	require.Len(t, res.Snapshot.Notifications, 1)
	assert.Equal(t, "c1", res.Snapshot.Notifications[0].ChannelID)
	assert.Equal(t, model.NotificationMessage, res.Snapshot.Notifications[0].Kind)
	assert.Empty(t, res.Snapshot.Trash)
	assert.Equal(t, 3, res.Snapshot.Stats.TotalUnread)
}

func TestRunReportsFailedExpectation(t *testing.T) {
	s, err := Parse([]byte(`
user: {id: u-me}
channels:
  - {ChannelId: c1, Name: general, UnreadCount: 1}
steps:
  - expect: {total_unread: 1}
  - expect: {total_unread: 5, channel_order: [c9]}
`))
	require.NoError(t, err)

	r, err := NewRunner(s)
	require.NoError(t, err)

	_, err = r.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step 1")
	assert.Contains(t, err.Error(), "total_unread: expected 5, got 1")
	assert.Contains(t, err.Error(), "channel_order")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"missing user", "steps: []", "user.id"},
		{"bad yaml", "user: [", "failed to parse"},
		{"negative advance", "user: {id: u}\nsteps:\n  - advance: -1s", "negative advance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.script))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRunRejectsBadSteps(t *testing.T) {
	tests := []struct {
		name string
		step string
		want string
	}{
		{"unknown action", "  - intent: {action: dance}", "unknown action"},
		{"empty event", "  - event: {EventId: e1}", "event without payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse([]byte("user: {id: u-me}\nsteps:\n" + tt.step))
			require.NoError(t, err)
			r, err := NewRunner(s)
			require.NoError(t, err)

			_, err = r.Run()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestVirtualTimersFireInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	clk := testclock.NewClock(start)
	v := newVirtualTimers(clk)

	var fired []string
	var firedAt []time.Duration
	record := func(id string) func() {
		return func() {
			fired = append(fired, id)
			firedAt = append(firedAt, clk.Now().Sub(start))
		}
	}

	require.NoError(t, v.Schedule("b", 2*time.Second, record("b")))
	require.NoError(t, v.Schedule("a", time.Second, record("a")))
	require.NoError(t, v.Schedule("c", 5*time.Second, record("c")))
	require.NoError(t, v.Schedule("b", 3*time.Second, record("b2")))
	assert.True(t, v.Cancel("c"))
	assert.False(t, v.Cancel("c"))

	assert.Equal(t, 2, v.Advance(4*time.Second))
	assert.Equal(t, []string{"a", "b2"}, fired)
	assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, firedAt)
	assert.Equal(t, 4*time.Second, clk.Now().Sub(start))
	assert.Equal(t, 0, v.Len())
}

func TestScriptHistoryPaging(t *testing.T) {
	s, err := Parse([]byte(`
user: {id: u-me}
history:
  c1:
    - {MessageId: m3, CreatedAt: 3000}
    - {MessageId: m1, CreatedAt: 1000}
    - {MessageId: m2, CreatedAt: 2000}
`))
	require.NoError(t, err)
	h, err := newScriptHistory(s)
	require.NoError(t, err)

	ids := func(p *model.Page) []string {
		var out []string
		for _, m := range p.Messages {
			out = append(out, m.ID)
		}
		return out
	}

	page, err := h.FetchPage(context.Background(), model.PageRequest{ChannelID: "c1", Direction: model.PageNewer, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2", "m3"}, ids(page))
	assert.True(t, page.HasMore)

	page, err = h.FetchPage(context.Background(), model.PageRequest{ChannelID: "c1", Direction: model.PageOlder, Cursor: page.Messages[0].CreatedAt, CursorID: page.Messages[0].ID, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, ids(page))
	assert.False(t, page.HasMore)
}

func TestScriptHistoryPagingTiedTimestamps(t *testing.T) {
	s, err := Parse([]byte(`
user: {id: u-me}
history:
  c1:
    - {MessageId: m3, CreatedAt: 1000}
    - {MessageId: m1, CreatedAt: 1000}
    - {MessageId: m2, CreatedAt: 1000}
`))
	require.NoError(t, err)
	h, err := newScriptHistory(s)
	require.NoError(t, err)

	page, err := h.FetchPage(context.Background(), model.PageRequest{ChannelID: "c1", Direction: model.PageNewer, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m2", page.Messages[0].ID)

	first := page.Messages[0]
	page, err = h.FetchPage(context.Background(), model.PageRequest{ChannelID: "c1", Direction: model.PageOlder, Cursor: first.CreatedAt, CursorID: first.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "m1", page.Messages[0].ID)
	assert.False(t, page.HasMore)
}
