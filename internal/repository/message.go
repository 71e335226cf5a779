package repository

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"time"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
)

// DefaultPageSize 未指定 Limit 时的分页大小
const DefaultPageSize = 50

// HistoryRepository 历史数据仓库
type HistoryRepository struct {
	db     Querier
	logger *slog.Logger
}

// NewHistoryRepository 创建历史数据仓库
func NewHistoryRepository(db Querier) *HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: slog.Default().With("component", "repository"),
	}
}

const selectMessage = `
	SELECT id, client_msg_id, channel_id, sender_id, content, created_at, edited_at, attachments
	FROM messages
`

// pageQuery 按方向与游标构造分页查询，多取一条用于判断 HasMore
// 游标为空时两种方向都返回最新一页；游标按 (created_at, id) 行比较
func pageQuery(req model.PageRequest, limit int) (sql string, args []any, descending bool) {
	args = []any{req.ChannelID}
	switch {
	case req.Cursor.IsZero():
		sql = selectMessage + `WHERE channel_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`
		descending = true
	case req.Direction == model.PageOlder:
		sql = selectMessage + `WHERE channel_id = $1 AND (created_at, id) < ($2, $3) ORDER BY created_at DESC, id DESC LIMIT $4`
		args = append(args, req.Cursor, req.CursorID)
		descending = true
	default:
		sql = selectMessage + `WHERE channel_id = $1 AND (created_at, id) > ($2, $3) ORDER BY created_at ASC, id ASC LIMIT $4`
		args = append(args, req.Cursor, req.CursorID)
	}
	args = append(args, limit+1)
	return sql, args, descending
}

// FetchPage 拉取一页历史消息（升序），附带表情回应和已读回执
func (r *HistoryRepository) FetchPage(ctx context.Context, req model.PageRequest) (*model.Page, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if req.Direction == "" {
		req.Direction = model.PageOlder
	}

	query, args, descending := pageQuery(req, limit)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.ErrFetch.Wrap(err)
	}
	defer rows.Close()

	var messages []*model.Message
	for rows.Next() {
		var m model.Message
		var editedAt *time.Time
		var attachments []byte
		if err := rows.Scan(&m.ID, &m.ClientID, &m.ChannelID, &m.SenderID, &m.Content, &m.CreatedAt, &editedAt, &attachments); err != nil {
			return nil, apperrors.ErrFetch.Wrap(err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		if editedAt != nil {
			t := editedAt.UTC()
			m.EditedAt = &t
		}
		if len(attachments) > 0 {
			if err := json.Unmarshal(attachments, &m.Attachments); err != nil {
				r.logger.Warn("Invalid attachments column", "messageId", m.ID, "error", err)
			}
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrFetch.Wrap(err)
	}

	page := buildPage(req, messages, limit, descending)
	if err := r.loadReactions(ctx, page.Messages); err != nil {
		return nil, err
	}
	if err := r.loadReceipts(ctx, page.Messages); err != nil {
		return nil, err
	}

	r.logger.Debug("Page fetched",
		"channelId", req.ChannelID,
		"direction", req.Direction,
		"count", len(page.Messages),
		"hasMore", page.HasMore)
	return page, nil
}

// buildPage 截断到 limit 并转为升序
func buildPage(req model.PageRequest, messages []*model.Message, limit int, descending bool) *model.Page {
	page := &model.Page{ChannelID: req.ChannelID, Direction: req.Direction}
	if len(messages) > limit {
		page.HasMore = true
		messages = messages[:limit]
	}
	if descending {
		slices.Reverse(messages)
	}
	page.Messages = messages
	return page
}

func messageIndex(messages []*model.Message) ([]string, map[string]*model.Message) {
	ids := make([]string, len(messages))
	byID := make(map[string]*model.Message, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
		byID[m.ID] = m
	}
	return ids, byID
}

// loadReactions 批量加载表情回应
func (r *HistoryRepository) loadReactions(ctx context.Context, messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids, byID := messageIndex(messages)
	query := `
		SELECT message_id, id, user_id, emoji, created_at
		FROM message_reactions
		WHERE message_id = ANY($1)
		ORDER BY created_at, id
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return apperrors.ErrFetch.Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID string
		var rc model.Reaction
		if err := rows.Scan(&messageID, &rc.ID, &rc.UserID, &rc.Emoji, &rc.CreatedAt); err != nil {
			return apperrors.ErrFetch.Wrap(err)
		}
		if m, ok := byID[messageID]; ok {
			m.Reactions = append(m.Reactions, rc)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.ErrFetch.Wrap(err)
	}
	return nil
}

// loadReceipts 批量加载已读回执
func (r *HistoryRepository) loadReceipts(ctx context.Context, messages []*model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	ids, byID := messageIndex(messages)
	query := `
		SELECT message_id, user_id, read_at
		FROM message_receipts
		WHERE message_id = ANY($1)
		ORDER BY read_at, user_id
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return apperrors.ErrFetch.Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID string
		var rr model.ReadReceipt
		if err := rows.Scan(&messageID, &rr.UserID, &rr.ReadAt); err != nil {
			return apperrors.ErrFetch.Wrap(err)
		}
		if m, ok := byID[messageID]; ok {
			m.ReadReceipts = append(m.ReadReceipts, rr)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.ErrFetch.Wrap(err)
	}
	return nil
}
