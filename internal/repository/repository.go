// Package repository PostgreSQL 历史数据读取，实现引擎的 History
package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier pgxpool.Pool 与 pgx.Tx 的公共查询接口
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema 读取所需的表结构
const Schema = `
CREATE TABLE IF NOT EXISTS channels (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL DEFAULT '',
	last_message_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channel_members (
	channel_id   TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	user_id      TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	unread_count INT  NOT NULL DEFAULT 0,
	PRIMARY KEY (channel_id, user_id)
);

CREATE TABLE IF NOT EXISTS messages (
	id            TEXT PRIMARY KEY,
	client_msg_id TEXT NOT NULL DEFAULT '',
	channel_id    TEXT NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	sender_id     TEXT NOT NULL,
	content       TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	edited_at     TIMESTAMPTZ,
	attachments   JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_messages_channel_created ON messages (channel_id, created_at);

CREATE TABLE IF NOT EXISTS message_reactions (
	id         TEXT PRIMARY KEY,
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	emoji      TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (message_id, user_id, emoji)
);

CREATE TABLE IF NOT EXISTS message_receipts (
	message_id TEXT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	read_at    TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (message_id, user_id)
);
`
