package repository

import (
	"context"
	"time"

	"sudooom.im.sync/internal/model"
	apperrors "sudooom.im.sync/pkg/errors"
)

// ListChannels 用户加入的频道，按最后消息时间倒序，附带成员和最后一条消息摘要
func (r *HistoryRepository) ListChannels(ctx context.Context, userID string) ([]*model.Channel, error) {
	query := `
		SELECT c.id, c.name, c.last_message_at, m.unread_count
		FROM channels c
		JOIN channel_members m ON m.channel_id = c.id
		WHERE m.user_id = $1
		ORDER BY c.last_message_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, apperrors.ErrFetch.Wrap(err)
	}
	defer rows.Close()

	var channels []*model.Channel
	byID := make(map[string]*model.Channel)
	for rows.Next() {
		ch := &model.Channel{}
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.LastMessageAt, &ch.Unread); err != nil {
			return nil, apperrors.ErrFetch.Wrap(err)
		}
		channels = append(channels, ch)
		byID[ch.ID] = ch
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.ErrFetch.Wrap(err)
	}
	if len(channels) == 0 {
		return channels, nil
	}

	ids := make([]string, len(channels))
	for i, ch := range channels {
		ids[i] = ch.ID
	}
	if err := r.loadMembers(ctx, ids, byID); err != nil {
		return nil, err
	}
	if err := r.loadLastMessages(ctx, ids, byID); err != nil {
		return nil, err
	}

	r.logger.Debug("Channels loaded", "userId", userID, "count", len(channels))
	return channels, nil
}

// loadMembers 批量加载频道成员
func (r *HistoryRepository) loadMembers(ctx context.Context, ids []string, byID map[string]*model.Channel) error {
	query := `
		SELECT channel_id, user_id, display_name
		FROM channel_members
		WHERE channel_id = ANY($1)
		ORDER BY channel_id, user_id
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return apperrors.ErrFetch.Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		var channelID string
		var m model.Member
		if err := rows.Scan(&channelID, &m.UserID, &m.DisplayName); err != nil {
			return apperrors.ErrFetch.Wrap(err)
		}
		if ch, ok := byID[channelID]; ok {
			ch.Members = append(ch.Members, m)
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.ErrFetch.Wrap(err)
	}
	return nil
}

// loadLastMessages 每个频道的最后一条消息摘要
func (r *HistoryRepository) loadLastMessages(ctx context.Context, ids []string, byID map[string]*model.Channel) error {
	query := `
		SELECT DISTINCT ON (channel_id) channel_id, id, sender_id, content, created_at
		FROM messages
		WHERE channel_id = ANY($1)
		ORDER BY channel_id, created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return apperrors.ErrFetch.Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		var channelID, content string
		var s model.MessageSummary
		var createdAt time.Time
		if err := rows.Scan(&channelID, &s.MessageID, &s.SenderID, &content, &createdAt); err != nil {
			return apperrors.ErrFetch.Wrap(err)
		}
		ch, ok := byID[channelID]
		if !ok {
			continue
		}
		s.Preview = model.Preview(content)
		s.CreatedAt = createdAt.UTC()
		ch.LastMessage = &s
		if createdAt.After(ch.LastMessageAt) {
			ch.LastMessageAt = createdAt
		}
	}
	if err := rows.Err(); err != nil {
		return apperrors.ErrFetch.Wrap(err)
	}
	return nil
}
