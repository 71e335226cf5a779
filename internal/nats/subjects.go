package nats

// NATS Subject 常量定义
const (
	// SubjectUserEventsPrefix Server -> Sync 用户级推送
	// 完整格式: im.sync.{user_id}.events
	SubjectUserEventsPrefix = "im.sync."
	SubjectUserEventsSuffix = ".events"

	// SubjectChannelPrefix Server -> Sync 频道级推送
	// 完整格式: im.sync.channel.{channel_id}
	SubjectChannelPrefix = "im.sync.channel."

	// SubjectSendMessage Sync -> Server 发送消息 (request/reply)
	SubjectSendMessage = "im.sync.intent.send"

	// SubjectMarkRead Sync -> Server 已读上报
	SubjectMarkRead = "im.sync.intent.read"

	// SubjectTyping Sync -> Server 输入状态
	SubjectTyping = "im.sync.intent.typing"

	// SubjectSubscription Sync -> Server 频道订阅变更
	SubjectSubscription = "im.sync.intent.subscription"
)

// BuildUserEventsSubject 构建用户推送 Subject
func BuildUserEventsSubject(userID string) string {
	return SubjectUserEventsPrefix + userID + SubjectUserEventsSuffix
}

// BuildChannelSubject 构建频道推送 Subject
func BuildChannelSubject(channelID string) string {
	return SubjectChannelPrefix + channelID
}
