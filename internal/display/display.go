// Package display 会话状态显示。Screen 收集一帧绘制指令，Show 时把整帧交给各个 Sink
// （日志、websocket 推送）。
package display

import (
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Display 控制器使用的显示接口
type Display interface {
	Clear()
	Text(s string, x, y int)
	Show()
}

// TextOp 一条文本绘制指令
type TextOp struct {
	Text string `json:"text"`
	X    int    `json:"x"`
	Y    int    `json:"y"`
}

// Frame 一次 Show 提交的整帧内容
type Frame struct {
	Seq   uint64   `json:"seq"`
	Lines []TextOp `json:"lines"`
}

// String 按绘制顺序拼接文本
func (f Frame) String() string {
	parts := make([]string, 0, len(f.Lines))
	for _, l := range f.Lines {
		parts = append(parts, strings.TrimSpace(l.Text))
	}
	return strings.Join(parts, " | ")
}

// Sink 帧接收方
type Sink interface {
	Render(f Frame)
}

// Screen 帧缓冲显示
type Screen struct {
	mu      sync.Mutex
	pending []TextOp
	last    Frame
	seq     uint64
	sinks   []Sink
}

// NewScreen 创建 Screen
func NewScreen(sinks ...Sink) *Screen {
	return &Screen{sinks: sinks}
}

// Clear 清空待提交内容
func (s *Screen) Clear() {
	s.mu.Lock()
	s.pending = s.pending[:0]
	s.mu.Unlock()
}

// Text 追加一条文本
func (s *Screen) Text(text string, x, y int) {
	s.mu.Lock()
	s.pending = append(s.pending, TextOp{Text: text, X: x, Y: y})
	s.mu.Unlock()
}

// Show 提交当前内容；未 Clear 的内容保留，后续 Text 叠加在上面
func (s *Screen) Show() {
	s.mu.Lock()
	s.seq++
	f := Frame{Seq: s.seq, Lines: append([]TextOp(nil), s.pending...)}
	s.last = f
	sinks := s.sinks
	s.mu.Unlock()

	for _, sink := range sinks {
		sink.Render(f)
	}
}

// Last 最近一次提交的帧
func (s *Screen) Last() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// LogSink 把每帧写入日志
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志 Sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Render 记录帧内容
func (l *LogSink) Render(f Frame) {
	l.logger.Info("Display updated",
		zap.Uint64("seq", f.Seq),
		zap.String("text", f.String()),
	)
}
