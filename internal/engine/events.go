package engine

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/juju/collections/set"

	"sudooom.im.sync/internal/model"
	"sudooom.im.sync/internal/store"
	apperrors "sudooom.im.sync/pkg/errors"
	"sudooom.im.sync/pkg/proto"
)

// ApplyPush 应用一条推送事件，返回是否产生了状态变化
func (e *Engine) ApplyPush(ev *proto.PushEvent) bool {
	if ev == nil {
		return false
	}
	p := &ev.Payload
	kind := p.Kind()

	var err error
	switch {
	case p.NewMessage != nil:
		err = e.HandleNewMessage(p.NewMessage.ChannelId, p.NewMessage.Message.ToModel())
	case p.MessageUpdated != nil:
		err = e.HandleMessageUpdated(p.MessageUpdated.Message.ToModel())
	case p.MessageDeleted != nil:
		d := p.MessageDeleted
		err = e.HandleMessageDeleted(d.MessageId, d.DeletedBy, d.Permanent)
	case p.ReactionAdded != nil:
		err = e.HandleReactionAdded(p.ReactionAdded.MessageId, p.ReactionAdded.Reaction.ToModel())
	case p.ReactionRemoved != nil:
		r := p.ReactionRemoved
		err = e.HandleReactionRemoved(r.MessageId, r.ReactionId, r.UserId, r.Emoji)
	case p.ReadReceipt != nil:
		rr := p.ReadReceipt
		err = e.HandleReadReceipt(rr.MessageId, rr.UserId, proto.FromMillis(rr.ReadAt))
	case p.UserOnline != nil:
		err = e.HandleUserOnline(p.UserOnline.UserId)
	case p.UserOffline != nil:
		err = e.HandleUserOffline(p.UserOffline.UserId)
	case p.TypingStart != nil:
		t := p.TypingStart
		err = e.HandleTypingStart(t.ChannelId, t.UserId, t.DisplayName)
	case p.TypingStop != nil:
		err = e.HandleTypingStop(p.TypingStop.ChannelId, p.TypingStop.UserId)
	case p.ChannelAdded != nil:
		err = e.HandleChannelUpsert(p.ChannelAdded.Channel.ToModel())
	case p.ChannelUpdated != nil:
		err = e.HandleChannelUpsert(p.ChannelUpdated.Channel.ToModel())
	case p.ChannelRemoved != nil:
		err = e.RemoveChannel(p.ChannelRemoved.ChannelId)
	default:
		err = apperrors.ErrInvalidEvent.Withf("event %s has no payload", ev.EventId)
	}

	if err != nil {
		e.noop(kind, err, "eventId", ev.EventId)
		return false
	}
	e.metrics.EventApplied(kind)
	return true
}

// noop 按错误分类记录未产生变化的事件
func (e *Engine) noop(kind string, err error, attrs ...any) {
	attrs = append(attrs, "kind", kind, "reason", err.Error())
	switch {
	case apperrors.Is(err, apperrors.ErrEvicted):
		e.logger.Warn("event targets a permanently deleted message, possible silent data loss", attrs...)
		e.metrics.Noop("evicted")
	case apperrors.Is(err, apperrors.ErrStaleOrdering):
		e.logger.Debug("event parked until its message arrives", attrs...)
		e.metrics.Noop("stale_parked")
	case apperrors.Is(err, apperrors.ErrDuplicateEvent):
		e.logger.Debug("duplicate event ignored", attrs...)
		e.metrics.Noop("duplicate")
	case apperrors.Is(err, apperrors.ErrUnknownEntity):
		e.logger.Debug("event references unknown entity", attrs...)
		e.metrics.Noop("unknown_entity")
	default:
		e.logger.Warn("event rejected", attrs...)
		e.metrics.Noop("invalid")
	}
}

// HandleNewMessage 新消息到达（推送）
func (e *Engine) HandleNewMessage(channelID string, msg *model.Message) error {
	if msg == nil || msg.ID == "" {
		return apperrors.ErrInvalidEvent.Withf("message without id")
	}
	if channelID == "" {
		channelID = msg.ChannelID
	}
	if channelID == "" {
		return apperrors.ErrInvalidEvent.Withf("message %s without channel", msg.ID)
	}
	msg.ChannelID = channelID
	msg.Optimistic = false
	msg.Failed = false

	if e.trash.Has(msg.ID) || e.trash.IsTombstoned(msg.ID) {
		return apperrors.ErrDuplicateEvent.Withf("message %s was deleted locally", msg.ID)
	}
	if e.listed && !e.channels.Has(channelID) {
		return apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}

	// 本地乐观消息的服务端回显
	if msg.ClientID != "" && msg.ClientID != msg.ID && e.messages.Has(msg.ClientID) && !e.messages.Has(msg.ID) {
		return e.reconcile(msg)
	}

	if err := e.messages.Append(channelID, msg); err != nil {
		return err
	}
	e.arrived(msg, true)
	return nil
}

// arrived 消息进入存储后的联动：目录摘要、未读、通知、暂存重放
func (e *Engine) arrived(msg *model.Message, live bool) {
	channelID := msg.ChannelID
	e.channels.Touch(channelID, msg.Summary(), msg.CreatedAt)

	if live {
		if e.typing.Remove(channelID, msg.SenderID) {
			e.timers.Cancel(typingTimerID(channelID, msg.SenderID))
		}
		if channelID != e.channels.Active() && msg.SenderID != e.opts.LocalUserID && e.channels.Has(channelID) {
			applied, _ := e.channels.IncrementUnread(channelID, 1)
			e.unread.Increment(applied)
			e.unread.Notify(e.notificationKind(msg), channelID, msg.ID, model.Preview(msg.Content), msg.CreatedAt)
		}
	}

	e.replayPending(msg.ID)
}

// notificationKind 内容中提到本地用户时为 mention
func (e *Engine) notificationKind(msg *model.Message) model.NotificationKind {
	for _, handle := range []string{e.opts.LocalUserName, e.opts.LocalUserID} {
		if handle != "" && strings.Contains(msg.Content, "@"+handle) {
			return model.NotificationMention
		}
	}
	return model.NotificationMessage
}

// replayPending 按到达顺序重放暂存的操作
func (e *Engine) replayPending(messageID string) {
	ops := e.pending.take(messageID)
	for _, op := range ops {
		e.logger.Debug("replaying parked event", "messageId", messageID, "kind", op.kind)
		op.apply(e)
	}
}

// mutate 修改消息：活动存储 > 回收站 > 已彻底删除 > 暂存等待
func (e *Engine) mutate(kind, messageID string, fn func(*model.Message) error, retry func(*Engine)) error {
	switch {
	case messageID == "":
		return apperrors.ErrInvalidEvent.Withf("%s without message id", kind)
	case e.messages.Has(messageID):
		return e.messages.Mutate(messageID, fn)
	case e.trash.Has(messageID):
		return e.trash.Mutate(messageID, fn)
	case e.trash.IsTombstoned(messageID):
		return apperrors.ErrEvicted.Withf("%s for message %s", kind, messageID)
	}

	e.pending.park(messageID, kind, e.now(), retry)
	return apperrors.ErrStaleOrdering.Withf("%s for message %s", kind, messageID)
}

// HandleMessageUpdated 消息被编辑
func (e *Engine) HandleMessageUpdated(msg *model.Message) error {
	if msg == nil {
		return apperrors.ErrInvalidEvent.Withf("empty update")
	}
	patch := model.PatchFrom(msg)
	err := e.mutate("message_updated", msg.ID, func(m *model.Message) error {
		patch.Apply(m)
		return nil
	}, func(e *Engine) {
		if err := e.HandleMessageUpdated(msg); err != nil {
			e.noop("message_updated", err, "messageId", msg.ID)
		}
	})
	if err != nil {
		return err
	}
	if current, ok := e.messages.Get(msg.ID); ok {
		e.channels.ReplaceSummary(current.ChannelID, current.ID, current.Summary())
	}
	return nil
}

// HandleMessageDeleted 消息被远端删除
// permanent 为 false 时剪切到回收站，否则彻底删除
func (e *Engine) HandleMessageDeleted(messageID, deletedBy string, permanent bool) error {
	if messageID == "" {
		return apperrors.ErrInvalidEvent.Withf("message_deleted without message id")
	}

	inStore, inTrash := e.messages.Has(messageID), e.trash.Has(messageID)
	if !inStore && (!inTrash || !permanent) {
		if inTrash || e.trash.IsTombstoned(messageID) {
			return apperrors.ErrDuplicateEvent.Withf("message %s already deleted", messageID)
		}
		e.pending.park(messageID, "message_deleted", e.now(), func(e *Engine) {
			if err := e.HandleMessageDeleted(messageID, deletedBy, permanent); err != nil {
				e.noop("message_deleted", err, "messageId", messageID)
			}
		})
		return apperrors.ErrStaleOrdering.Withf("message_deleted for message %s", messageID)
	}

	if permanent {
		msg, err := e.trash.Destroy(messageID)
		if err != nil {
			return err
		}
		e.forget(msg.ChannelID, messageID)
		return nil
	}

	_, err := e.cut("", messageID, deletedBy, "deleted remotely")
	return err
}

// cut 剪切到回收站并修正目录摘要与通知
func (e *Engine) cut(channelID, messageID, actorID, reason string) (*model.TrashedMessage, error) {
	entry, err := e.trash.Trash(channelID, messageID, actorID, reason, e.now())
	if err != nil {
		return nil, err
	}
	e.forget(entry.Message.ChannelID, messageID)
	return entry, nil
}

// forget 消息离开活动存储后的清理
func (e *Engine) forget(channelID, messageID string) {
	e.unread.RemoveForMessage(messageID)
	e.pending.drop(messageID)
	var summary *model.MessageSummary
	if last := e.messages.Last(channelID); last != nil {
		summary = last.Summary()
	}
	e.channels.ReplaceSummary(channelID, messageID, summary)
}

// HandleReactionAdded 新增表情回应
func (e *Engine) HandleReactionAdded(messageID string, r model.Reaction) error {
	if r.UserID == "" || r.Emoji == "" {
		return apperrors.ErrInvalidEvent.Withf("reaction without user or emoji")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = e.now()
	}
	return e.mutate("reaction_added", messageID, func(m *model.Message) error {
		return store.AddReaction(m, r)
	}, func(e *Engine) {
		if err := e.HandleReactionAdded(messageID, r); err != nil {
			e.noop("reaction_added", err, "messageId", messageID)
		}
	})
}

// HandleReactionRemoved 移除表情回应，reactionID 为空时按 (userID, emoji) 匹配
func (e *Engine) HandleReactionRemoved(messageID, reactionID, userID, emoji string) error {
	match := func(r model.Reaction) bool {
		if reactionID != "" {
			return r.ID == reactionID
		}
		return r.UserID == userID && r.Emoji == emoji
	}
	return e.mutate("reaction_removed", messageID, func(m *model.Message) error {
		return store.RemoveReaction(m, match)
	}, func(e *Engine) {
		if err := e.HandleReactionRemoved(messageID, reactionID, userID, emoji); err != nil {
			e.noop("reaction_removed", err, "messageId", messageID)
		}
	})
}

// HandleReadReceipt 已读回执
// 本地用户在其他设备读到频道最新消息时，清零该频道未读
func (e *Engine) HandleReadReceipt(messageID, userID string, readAt time.Time) error {
	if userID == "" {
		return apperrors.ErrInvalidEvent.Withf("read_receipt without user")
	}
	if readAt.IsZero() {
		readAt = e.now()
	}
	rr := model.ReadReceipt{UserID: userID, ReadAt: readAt}
	err := e.mutate("read_receipt", messageID, func(m *model.Message) error {
		return store.AddReadReceipt(m, rr)
	}, func(e *Engine) {
		if err := e.HandleReadReceipt(messageID, userID, readAt); err != nil {
			e.noop("read_receipt", err, "messageId", messageID)
		}
	})
	if err != nil {
		return err
	}

	if userID == e.opts.LocalUserID {
		channelID, ok := e.messages.ChannelOf(messageID)
		if !ok {
			return nil
		}
		if ch, ok := e.channels.Get(channelID); ok && ch.Unread > 0 &&
			ch.LastMessage != nil && ch.LastMessage.MessageID == messageID {
			e.CorrectUnread(channelID, -ch.Unread)
			e.unread.ClearChannel(channelID)
		}
	}
	return nil
}

// HandleUserOnline 用户上线
func (e *Engine) HandleUserOnline(userID string) error {
	if !e.presence.MarkOnline(userID) {
		return apperrors.ErrDuplicateEvent.Withf("user %s already online", userID)
	}
	e.channels.Each(func(ch *model.Channel) { e.presence.ProjectUser(ch, userID) })
	return nil
}

// HandleUserOffline 用户下线
func (e *Engine) HandleUserOffline(userID string) error {
	if !e.presence.MarkOffline(userID) {
		return apperrors.ErrDuplicateEvent.Withf("user %s already offline", userID)
	}
	e.channels.Each(func(ch *model.Channel) { e.presence.ProjectUser(ch, userID) })
	return nil
}

// SetOnline 用在线快照整体替换
func (e *Engine) SetOnline(userIDs []string) bool {
	if !e.presence.SetOnline(userIDs) {
		return false
	}
	e.channels.Each(e.presence.ProjectChannel)
	return true
}

func typingTimerID(channelID, userID string) string {
	return "typing:" + channelID + ":" + userID
}

// HandleTypingStart 远端用户开始输入，TypingTimeout 后自动移除
func (e *Engine) HandleTypingStart(channelID, userID, displayName string) error {
	ch, ok := e.channels.Get(channelID)
	if !ok {
		return apperrors.ErrUnknownEntity.Withf("channel %s", channelID)
	}
	if displayName == "" {
		displayName = ch.MemberName(userID)
	}

	at := e.now()
	if !e.typing.Set(channelID, userID, displayName, at) {
		return apperrors.ErrDuplicateEvent.Withf("typing echo of local user")
	}

	err := e.timers.Schedule(typingTimerID(channelID, userID), e.opts.TypingTimeout, func() {
		e.post(func(e *Engine) {
			e.typing.RemoveIfAt(channelID, userID, at)
		})
	})
	if err != nil {
		// Maintain 的扫描会兜底移除
		e.logger.Warn("failed to schedule typing timeout", "channelId", channelID, "userId", userID, "error", err)
	}
	return nil
}

// HandleTypingStop 远端用户停止输入
func (e *Engine) HandleTypingStop(channelID, userID string) error {
	if !e.typing.Remove(channelID, userID) {
		return apperrors.ErrUnknownEntity.Withf("typing %s in %s", userID, channelID)
	}
	e.timers.Cancel(typingTimerID(channelID, userID))
	return nil
}

// HandleChannelUpsert 频道新增或更新
func (e *Engine) HandleChannelUpsert(ch *model.Channel) error {
	if ch == nil || ch.ID == "" {
		return apperrors.ErrInvalidEvent.Withf("channel without id")
	}

	delta, added := e.channels.Upsert(ch)
	e.channels.Each(func(c *model.Channel) {
		if c.ID == ch.ID {
			e.presence.ProjectChannel(c)
		}
	})
	if !added {
		return nil
	}

	e.unread.Increment(delta)
	if last := e.messages.Last(ch.ID); last != nil {
		e.channels.Touch(ch.ID, last.Summary(), last.CreatedAt)
	}
	e.subscribe(ch.ID)
	return nil
}

// RemoveChannel 移除频道及其消息、输入状态、通知
func (e *Engine) RemoveChannel(channelID string) error {
	ch, wasActive, err := e.channels.Remove(channelID)
	if err != nil {
		return err
	}
	e.unread.Decrement(ch.Unread)
	e.dropChannelState(channelID)
	e.unsubscribe(channelID)

	e.logger.Debug("channel removed", "channelId", channelID, "wasActive", wasActive, "unread", ch.Unread)
	return nil
}

// dropChannelState 清除频道的子状态（不含目录）
func (e *Engine) dropChannelState(channelID string) {
	for _, id := range e.messages.ClearChannel(channelID) {
		e.pending.drop(id)
	}
	for _, ind := range e.typing.List(channelID) {
		e.timers.Cancel(typingTimerID(channelID, ind.UserID))
	}
	e.typing.ClearChannel(channelID)
	e.unread.ClearChannel(channelID)
	e.StopTyping(channelID)
	for id, req := range e.outbox {
		if req.ChannelId == channelID {
			delete(e.outbox, id)
		}
	}
}

// dropOrphans 清理目录中不存在的频道在存储中残留的消息
// 频道列表到达前推送的消息先入库，列表中没有该频道时丢弃
func (e *Engine) dropOrphans() {
	for _, id := range e.messages.ChannelIDs() {
		if !e.channels.Has(id) {
			e.logger.Debug("dropping messages for unknown channel", "channelId", id, "messages", e.messages.Len(id))
			e.dropChannelState(id)
		}
	}
}

// ApplyChannels 应用初始频道列表，频道ID集合未变化时不做任何事
func (e *Engine) ApplyChannels(channels []*model.Channel) bool {
	before := set.NewStrings(e.channels.IDs()...)
	changed, sum := e.channels.ReplaceAll(channels)
	e.listed = true
	e.dropOrphans()
	if !changed {
		e.logger.Debug("channel list unchanged", "channels", before.Size())
		return false
	}
	e.unread.Reset(sum)
	e.channels.Each(e.presence.ProjectChannel)

	after := set.NewStrings(e.channels.IDs()...)
	for _, id := range before.Difference(after).SortedValues() {
		e.dropChannelState(id)
		e.unsubscribe(id)
	}
	for _, id := range after.Difference(before).SortedValues() {
		if last := e.messages.Last(id); last != nil {
			e.channels.Touch(id, last.Summary(), last.CreatedAt)
		}
		e.subscribe(id)
	}

	e.logger.Info("channel list applied", "channels", after.Size(), "totalUnread", sum)
	return true
}

// ApplyPage 合并一页历史消息，不影响未读数和通知
func (e *Engine) ApplyPage(page *model.Page) int {
	if page == nil || len(page.Messages) == 0 {
		return 0
	}
	channelID := page.ChannelID
	if !e.channels.Has(channelID) {
		e.logger.Debug("page for unknown channel dropped", "channelId", channelID, "count", len(page.Messages))
		return 0
	}

	incoming := make([]*model.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if m == nil || e.trash.Has(m.ID) || e.trash.IsTombstoned(m.ID) {
			continue
		}
		m.ChannelID = channelID
		m.Optimistic = false
		if m.ClientID != "" && m.ClientID != m.ID && e.messages.Has(m.ClientID) && !e.messages.Has(m.ID) {
			e.reconcile(m)
			continue
		}
		incoming = append(incoming, m)
	}

	var added []*model.Message
	switch page.Direction {
	case model.PageOlder:
		added = e.messages.Prepend(channelID, incoming)
	default:
		slices.SortStableFunc(incoming, func(a, b *model.Message) int {
			return a.CreatedAt.Compare(b.CreatedAt)
		})
		for _, m := range incoming {
			if err := e.messages.Append(channelID, m); err == nil {
				added = append(added, m)
			}
		}
	}

	if last := e.messages.Last(channelID); last != nil {
		e.channels.Touch(channelID, last.Summary(), last.CreatedAt)
	}
	for _, m := range added {
		e.replayPending(m.ID)
	}

	e.logger.Debug("page applied",
		"channelId", channelID,
		"direction", page.Direction,
		"received", len(page.Messages),
		"added", len(added))
	return len(added)
}
