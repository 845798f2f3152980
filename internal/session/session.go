// Package session 测量会话控制器：Idle → Running → Reporting → Idle。
//
// 控制器在单个 goroutine 上运行，消费采样队列和输入事件队列；采样源和各个输入源
// 只向各自的队列写入。
package session

import (
	"context"
	"fmt"
	"time"

	"wisefido-hrv/internal/hrv"
	"wisefido-hrv/internal/models"
)

// State 控制器状态
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateReporting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateReporting:
		return "reporting"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Session 一次测量会话，由 Controller 独占
type Session struct {
	ID        string
	StartedAt time.Time

	intervals []int
	stats     hrv.Accumulator
}

func newSession(id string, startedAt time.Time) *Session {
	return &Session{ID: id, StartedAt: startedAt}
}

func (s *Session) add(ppi int) {
	s.intervals = append(s.intervals, ppi)
	s.stats.Add(ppi)
}

// Intervals 已接受的 PPI 副本
func (s *Session) Intervals() []int {
	return append([]int(nil), s.intervals...)
}

// Outcome 会话报告结果。Err 为 hrv.ErrInsufficientData 时 Metrics 为空；
// 为 kubios.ErrClassificationUnavailable 时 Metrics 有效、Indices 为空。
type Outcome struct {
	SessionID string
	Metrics   *models.HRVMetrics
	Indices   *models.AutonomicIndices
	Label     models.StressLabel
	Err       error
}

// Recorder 会话汇总的持久化接口（数据库、报告文件）
type Recorder interface {
	Record(ctx context.Context, rec *models.SessionRecord) error
}

// Source 采样源控制
type Source interface {
	Arm()
	Disarm()
}
