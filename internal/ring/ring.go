// Package ring 提供中断上下文与处理循环之间的单生产者/单消费者有界队列。
//
// 生产者 Put 永不阻塞（最多一次 CAS），消费者 Get 无锁。槽位使用原子读写，
// overwrite-oldest 策略下生产者与消费者争用同一槽位时不会产生数据竞争。
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// ErrOverflow 队列已满时的写入（按策略丢弃最新值或覆盖最旧值）
var ErrOverflow = errors.New("ring: queue overflow")

// OverflowPolicy 队列满时的处理策略
type OverflowPolicy int

const (
	// DropNewest 丢弃正在写入的新值
	DropNewest OverflowPolicy = iota
	// OverwriteOldest 丢弃最旧的未读值，为新值腾出位置
	OverwriteOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case DropNewest:
		return "drop-newest"
	case OverwriteOldest:
		return "overwrite-oldest"
	default:
		return fmt.Sprintf("OverflowPolicy(%d)", int(p))
	}
}

// ParsePolicy 解析配置中的策略名称
func ParsePolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "drop-newest", "":
		return DropNewest, nil
	case "overwrite-oldest":
		return OverwriteOldest, nil
	default:
		return 0, fmt.Errorf("ring: unknown overflow policy %q", s)
	}
}

// Ring 单生产者/单消费者有界队列
type Ring struct {
	slots  []atomic.Uint32
	size   uint64
	policy OverflowPolicy

	head    atomic.Uint64 // 下一个读取位置
	tail    atomic.Uint64 // 下一个写入位置
	dropped atomic.Uint64
}

// New 创建容量为 capacity 的队列
func New(capacity int, policy OverflowPolicy) *Ring {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Ring{
		slots:  make([]atomic.Uint32, capacity),
		size:   uint64(capacity),
		policy: policy,
	}
}

// Put 写入一个值，仅由生产者调用。
// 返回 false 表示新值被丢弃；OverwriteOldest 下总是返回 true。
func (r *Ring) Put(v uint32) bool {
	t := r.tail.Load()
	h := r.head.Load()
	if t-h >= r.size {
		if r.policy == DropNewest {
			r.dropped.Add(1)
			return false
		}
		// CAS 失败说明消费者刚好读走了一个值，队列已有空位
		if r.head.CompareAndSwap(h, h+1) {
			r.dropped.Add(1)
		}
	}
	r.slots[t%r.size].Store(v)
	r.tail.Store(t + 1)
	return true
}

// Get 读取最旧的值，仅由消费者调用
func (r *Ring) Get() (uint32, bool) {
	for {
		h := r.head.Load()
		if h == r.tail.Load() {
			return 0, false
		}
		v := r.slots[h%r.size].Load()
		if r.head.CompareAndSwap(h, h+1) {
			return v, true
		}
		// 生产者覆盖了该槽位，重读
	}
}

// Len 当前队列深度
func (r *Ring) Len() int {
	h := r.head.Load()
	n := r.tail.Load() - h
	if n > r.size {
		n = r.size
	}
	return int(n)
}

// Cap 队列容量
func (r *Ring) Cap() int {
	return int(r.size)
}

// Dropped 累计丢弃的值数量
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}

// Policy 溢出策略
func (r *Ring) Policy() OverflowPolicy {
	return r.policy
}

// Drain 丢弃所有未读值，仅由消费者调用
func (r *Ring) Drain() int {
	n := 0
	for {
		if _, ok := r.Get(); !ok {
			return n
		}
		n++
	}
}
