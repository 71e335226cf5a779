package engine

import "time"

// pendingOp 目标消息尚未到达时暂存的操作
type pendingOp struct {
	kind     string
	parkedAt time.Time
	apply    func(*Engine)
}

// pendingBuffer 按消息ID暂存乱序到达的更新，按到达顺序重放
type pendingBuffer struct {
	ops   map[string][]pendingOp
	count int
}

func newPendingBuffer() *pendingBuffer {
	return &pendingBuffer{ops: make(map[string][]pendingOp)}
}

func (p *pendingBuffer) park(messageID, kind string, at time.Time, apply func(*Engine)) {
	p.ops[messageID] = append(p.ops[messageID], pendingOp{kind: kind, parkedAt: at, apply: apply})
	p.count++
}

// take 取出某条消息的全部暂存操作
func (p *pendingBuffer) take(messageID string) []pendingOp {
	ops := p.ops[messageID]
	if len(ops) == 0 {
		return nil
	}
	delete(p.ops, messageID)
	p.count -= len(ops)
	return ops
}

// drop 丢弃某条消息的暂存操作
func (p *pendingBuffer) drop(messageID string) int {
	return len(p.take(messageID))
}

// expire 丢弃暂存超过 ttl 的操作，返回 messageID -> 被丢弃的操作类型
func (p *pendingBuffer) expire(now time.Time, ttl time.Duration) map[string][]string {
	var discarded map[string][]string
	for id, ops := range p.ops {
		kept := ops[:0]
		for _, op := range ops {
			if now.Sub(op.parkedAt) >= ttl {
				if discarded == nil {
					discarded = make(map[string][]string)
				}
				discarded[id] = append(discarded[id], op.kind)
				p.count--
				continue
			}
			kept = append(kept, op)
		}
		if len(kept) == 0 {
			delete(p.ops, id)
		} else {
			p.ops[id] = kept
		}
	}
	return discarded
}

func (p *pendingBuffer) Len() int {
	return p.count
}
