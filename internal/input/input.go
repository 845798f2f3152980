// Package input 手动控制输入。每个输入源（按键、控制 topic、控制台）各自拥有一条
// 单生产者事件队列 Line，控制器通过 Debouncer 统一取出并去抖。
package input

import (
	"fmt"
	"strings"
	"time"

	"wisefido-hrv/internal/ring"
)

// Trigger 控制事件
type Trigger uint32

const (
	TriggerNone Trigger = iota
	TriggerStart
	TriggerStop
)

func (t Trigger) String() string {
	switch t {
	case TriggerStart:
		return "start"
	case TriggerStop:
		return "stop"
	default:
		return fmt.Sprintf("Trigger(%d)", uint32(t))
	}
}

// ParseTrigger 解析文本命令（不区分大小写，忽略首尾空白）
func ParseTrigger(s string) (Trigger, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "start":
		return TriggerStart, true
	case "stop":
		return TriggerStop, true
	default:
		return TriggerNone, false
	}
}

// Line 单个输入源的事件队列，只能有一个生产者
type Line struct {
	name  string
	queue *ring.Ring
}

// NewLine 创建容量为 size 的事件队列，满时丢弃新事件
func NewLine(name string, size int) *Line {
	return &Line{name: name, queue: ring.New(size, ring.DropNewest)}
}

// Press 投递事件，不阻塞；队列满时返回 false
func (l *Line) Press(t Trigger) bool {
	return l.queue.Put(uint32(t))
}

// Name 输入源名称
func (l *Line) Name() string { return l.name }

// Dropped 因队列满丢弃的事件数
func (l *Line) Dropped() uint64 { return l.queue.Dropped() }

// Debouncer 汇总多个 Line，两次被接受的事件之间至少间隔 interval。
// start 和 stop 共用同一个时间戳。只能由控制器 goroutine 调用。
type Debouncer struct {
	lines    []*Line
	interval time.Duration
	now      func() time.Time

	last       time.Time
	hasLast    bool
	suppressed uint64
}

// NewDebouncer 创建去抖器
func NewDebouncer(interval time.Duration, lines ...*Line) *Debouncer {
	return &Debouncer{lines: lines, interval: interval, now: time.Now}
}

// SetClock 替换时钟
func (d *Debouncer) SetClock(now func() time.Time) { d.now = now }

// Add 追加输入源，需在开始 Poll 之前调用
func (d *Debouncer) Add(l *Line) { d.lines = append(d.lines, l) }

// Poll 取空所有队列，返回第一个通过去抖的事件；其余事件被丢弃并计数
func (d *Debouncer) Poll() (Trigger, bool) {
	accepted := TriggerNone
	for _, l := range d.lines {
		for {
			v, ok := l.queue.Get()
			if !ok {
				break
			}
			t := Trigger(v)
			if accepted != TriggerNone || !d.allow() {
				d.suppressed++
				continue
			}
			accepted = t
		}
	}
	return accepted, accepted != TriggerNone
}

func (d *Debouncer) allow() bool {
	now := d.now()
	if d.hasLast && now.Sub(d.last) < d.interval {
		return false
	}
	d.last = now
	d.hasLast = true
	return true
}

// Suppressed 被去抖丢弃的事件数
func (d *Debouncer) Suppressed() uint64 { return d.suppressed }
