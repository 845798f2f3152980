package sampler

import (
	"sync"
	"sync/atomic"
	"time"

	"wisefido-hrv/internal/models"
	"wisefido-hrv/internal/ring"
)

// Reader 采样器：每次调用读取一个瞬时幅值
type Reader interface {
	Read() (models.RawSample, error)
}

// Source 周期采样源。每个 tick 读取一个值写入队列，tick 路径不记录日志、不阻塞，
// 读取失败和队列溢出只做计数。
type Source struct {
	reader Reader
	period time.Duration
	queue  *ring.Ring

	ticks      atomic.Uint64
	readErrors atomic.Uint64

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewSource 创建采样源，rate 为采样频率（Hz）
func NewSource(reader Reader, rate int, queue *ring.Ring) *Source {
	return &Source{
		reader: reader,
		period: time.Second / time.Duration(rate),
		queue:  queue,
	}
}

// Arm 启动周期采样；已启动时无操作
func (s *Source) Arm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(s.stop, s.done)
}

// Disarm 停止采样并等待采样 goroutine 退出；未启动时无操作
func (s *Source) Disarm() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}

// Armed 是否正在采样
func (s *Source) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

// Ticks 累计 tick 次数
func (s *Source) Ticks() uint64 { return s.ticks.Load() }

// ReadErrors 累计读取失败次数
func (s *Source) ReadErrors() uint64 { return s.readErrors.Load() }

// Queue 采样队列
func (s *Source) Queue() *ring.Ring { return s.queue }

func (s *Source) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Source) tick() {
	s.ticks.Add(1)
	v, err := s.reader.Read()
	if err != nil {
		s.readErrors.Add(1)
		return
	}
	s.queue.Put(uint32(v))
}
