package snowflake

import (
	"strconv"
	"sync"
	"time"
)

const (
	// 起始时间戳 (2024-01-01 00:00:00 UTC)
	epoch int64 = 1704067200000

	// 位数分配
	nodeBits     = 10
	sequenceBits = 12

	// 最大值
	maxNodeID   = -1 ^ (-1 << nodeBits)
	maxSequence = -1 ^ (-1 << sequenceBits)

	// 位移
	nodeShift      = sequenceBits
	timestampShift = nodeBits + sequenceBits

	// ClientPrefix 本地乐观消息ID前缀
	ClientPrefix = "local-"
)

// ID 雪花ID
type ID int64

// String 转换为字符串
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Int64 转换为 int64
func (id ID) Int64() int64 {
	return int64(id)
}

// Time 生成时间
func (id ID) Time() time.Time {
	return time.UnixMilli((int64(id) >> timestampShift) + epoch)
}

// Node 雪花ID生成器节点
type Node struct {
	mu       sync.Mutex
	nodeID   int64
	sequence int64
	lastTime int64
	now      func() int64
}

// NewNode 创建雪花ID生成器
func NewNode(nodeID int64) (*Node, error) {
	if nodeID < 0 || nodeID > maxNodeID {
		nodeID = 1
	}
	return &Node{
		nodeID:   nodeID,
		sequence: 0,
		now:      func() int64 { return time.Now().UnixMilli() },
	}, nil
}

// Generate 生成雪花ID
func (n *Node) Generate() ID {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	if now < n.lastTime {
		// 时钟回拨，沿用上次时间
		now = n.lastTime
	}

	if now == n.lastTime {
		n.sequence = (n.sequence + 1) & maxSequence
		if n.sequence == 0 {
			// 序号用尽，等待下一毫秒
			for now <= n.lastTime {
				now = n.now()
			}
		}
	} else {
		n.sequence = 0
	}

	n.lastTime = now

	id := ((now - epoch) << timestampShift) |
		(n.nodeID << nodeShift) |
		n.sequence

	return ID(id)
}

// ClientMsgID 生成本地乐观消息ID
func (n *Node) ClientMsgID() string {
	return ClientPrefix + n.Generate().String()
}
