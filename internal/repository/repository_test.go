package repository

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sudooom.im.sync/internal/model"
)

var t0 = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func TestPageQuery(t *testing.T) {
	tests := []struct {
		name       string
		req        model.PageRequest
		contains   string
		args       int
		descending bool
	}{
		{"latest", model.PageRequest{ChannelID: "c", Direction: model.PageNewer}, "ORDER BY created_at DESC", 2, true},
		{"older", model.PageRequest{ChannelID: "c", Direction: model.PageOlder, Cursor: t0, CursorID: "m-1"}, "(created_at, id) < ($2, $3)", 4, true},
		{"newer", model.PageRequest{ChannelID: "c", Direction: model.PageNewer, Cursor: t0, CursorID: "m-1"}, "(created_at, id) > ($2, $3)", 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, desc := pageQuery(tt.req, 10)
			if !strings.Contains(sql, tt.contains) {
				t.Errorf("Expected query to contain %q, got %s", tt.contains, sql)
			}
			if len(args) != tt.args {
				t.Errorf("Expected %d args, got %d", tt.args, len(args))
			}
			if args[len(args)-1] != 11 {
				t.Errorf("Expected limit+1 = 11, got %v", args[len(args)-1])
			}
			if desc != tt.descending {
				t.Errorf("Expected descending %v, got %v", tt.descending, desc)
			}
		})
	}
}

func TestBuildPage(t *testing.T) {
	msgs := []*model.Message{{ID: "m-3"}, {ID: "m-2"}, {ID: "m-1"}}
	page := buildPage(model.PageRequest{ChannelID: "c", Direction: model.PageOlder}, msgs, 2, true)

	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m-2", page.Messages[0].ID)
	assert.Equal(t, "m-3", page.Messages[1].ID)

	page = buildPage(model.PageRequest{ChannelID: "c"}, []*model.Message{{ID: "m-1"}}, 2, false)
	assert.False(t, page.HasMore)
	assert.Len(t, page.Messages, 1)
}

// 注意：以下测试需要 IMSYNC_TEST_DATABASE_URL 指向可写的 PostgreSQL，否则跳过

func getTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("IMSYNC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("跳过测试：未设置 IMSYNC_TEST_DATABASE_URL")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("跳过测试：无法连接 PostgreSQL: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("跳过测试：无法连接 PostgreSQL: %v", err)
	}
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS message_receipts, message_reactions, messages, channel_members, channels`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, Schema)
	require.NoError(t, err)
	return pool
}

type stmt struct {
	sql  string
	args []any
}

func seed(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	stmts := []stmt{
		{`INSERT INTO channels (id, name, last_message_at) VALUES ('a', 'general', $1), ('b', 'random', $2), ('z', 'hidden', $2)`, []any{t0, t0.Add(time.Hour)}},
		{`INSERT INTO channel_members (channel_id, user_id, display_name, unread_count) VALUES
			('a', 'u-1', 'mika', 2), ('a', 'u-2', 'jo', 0), ('b', 'u-1', 'mika', 0), ('z', 'u-2', 'jo', 0)`, nil},
	}
	for i := 1; i <= 5; i++ {
		stmts = append(stmts, stmt{
			`INSERT INTO messages (id, channel_id, sender_id, content, created_at) VALUES ($1, 'a', 'u-2', $2, $3)`,
			[]any{fmt.Sprintf("m-%d", i), fmt.Sprintf("hello %d", i), t0.Add(time.Duration(i) * time.Minute)},
		})
	}
	stmts = append(stmts,
		stmt{`INSERT INTO message_reactions (id, message_id, user_id, emoji) VALUES ('r-1', 'm-5', 'u-1', '👍')`, nil},
		stmt{`INSERT INTO message_receipts (message_id, user_id, read_at) VALUES ('m-4', 'u-1', $1)`, []any{t0}},
	)
	for _, s := range stmts {
		_, err := pool.Exec(context.Background(), s.sql, s.args...)
		require.NoError(t, err, s.sql)
	}
}

func TestListChannels(t *testing.T) {
	pool := getTestPool(t)
	seed(t, pool)
	repo := NewHistoryRepository(pool)

	channels, err := repo.ListChannels(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, channels, 2)

	a := channels[0]
	if channels[1].ID == "a" {
		a = channels[1]
	}
	assert.Equal(t, "general", a.Name)
	assert.Equal(t, 2, a.Unread)
	assert.Len(t, a.Members, 2)
	require.NotNil(t, a.LastMessage)
	assert.Equal(t, "m-5", a.LastMessage.MessageID)
}

func TestFetchPage(t *testing.T) {
	pool := getTestPool(t)
	seed(t, pool)
	repo := NewHistoryRepository(pool)
	ctx := context.Background()

	latest, err := repo.FetchPage(ctx, model.PageRequest{ChannelID: "a", Direction: model.PageNewer, Limit: 2})
	require.NoError(t, err)
	assert.True(t, latest.HasMore)
	require.Len(t, latest.Messages, 2)
	assert.Equal(t, "m-4", latest.Messages[0].ID)
	assert.Equal(t, "m-5", latest.Messages[1].ID)
	assert.Len(t, latest.Messages[1].Reactions, 1)
	assert.Len(t, latest.Messages[0].ReadReceipts, 1)

	older, err := repo.FetchPage(ctx, model.PageRequest{ChannelID: "a", Direction: model.PageOlder, Cursor: latest.Messages[0].CreatedAt, CursorID: latest.Messages[0].ID, Limit: 10})
	require.NoError(t, err)
	assert.False(t, older.HasMore)
	require.Len(t, older.Messages, 3)
	assert.Equal(t, "m-1", older.Messages[0].ID)

	newer, err := repo.FetchPage(ctx, model.PageRequest{ChannelID: "a", Direction: model.PageNewer, Cursor: t0.Add(3 * time.Minute), CursorID: "m-3", Limit: 10})
	require.NoError(t, err)
	require.Len(t, newer.Messages, 2)
	assert.Equal(t, "m-4", newer.Messages[0].ID)
}

func TestFetchPageTiedTimestamps(t *testing.T) {
	pool := getTestPool(t)
	seed(t, pool)
	ctx := context.Background()
	for _, id := range []string{"t-1", "t-2", "t-3"} {
		_, err := pool.Exec(ctx, `INSERT INTO messages (id, channel_id, sender_id, content, created_at) VALUES ($1, 'b', 'u-2', 'tie', $2)`, id, t0)
		require.NoError(t, err)
	}
	repo := NewHistoryRepository(pool)

	latest, err := repo.FetchPage(ctx, model.PageRequest{ChannelID: "b", Direction: model.PageNewer, Limit: 2})
	require.NoError(t, err)
	require.Len(t, latest.Messages, 2)
	assert.True(t, latest.HasMore)
	assert.Equal(t, "t-2", latest.Messages[0].ID)

	first := latest.Messages[0]
	older, err := repo.FetchPage(ctx, model.PageRequest{ChannelID: "b", Direction: model.PageOlder, Cursor: first.CreatedAt, CursorID: first.ID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, older.Messages, 1)
	assert.Equal(t, "t-1", older.Messages[0].ID)
	assert.False(t, older.HasMore)
}
