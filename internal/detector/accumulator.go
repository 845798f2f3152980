package detector

import (
	"math"

	"wisefido-hrv/internal/models"
)

// Candidate 一个待校验的峰间期
type Candidate struct {
	Position   int64 // 峰值在会话内的绝对采样序号
	IntervalMs int   // 与上一个峰值的间隔（毫秒）
}

// Accumulator 窗口累加器 + 峰值检测器。
//
// 峰值参考位置使用会话内的绝对采样序号，跨窗口保留；每检测到一个峰值就更新参考位置。
// 会话内第一个峰值只建立参考，不产生间隔。
type Accumulator struct {
	size  int
	rate  int
	ratio float64

	window []models.RawSample
	peaks  []int
	out    []Candidate

	start   int64 // window[0] 的绝对序号
	ref     int64
	hasRef  bool
	windows uint64
}

// NewAccumulator size 为窗口长度（采样数），rate 为采样频率（Hz），ratio 为阈值比例
func NewAccumulator(size, rate int, ratio float64) *Accumulator {
	return &Accumulator{
		size:   size,
		rate:   rate,
		ratio:  ratio,
		window: make([]models.RawSample, 0, size),
	}
}

// Add 追加一个采样。窗口未满时返回 nil；窗口满时完成检测并返回本窗口的候选间隔，
// 返回的切片在下一次 Add 前有效。
func (a *Accumulator) Add(s models.RawSample) []Candidate {
	a.window = append(a.window, s)
	if len(a.window) < a.size {
		return nil
	}
	return a.analyze()
}

func (a *Accumulator) analyze() []Candidate {
	a.out = a.out[:0]
	a.peaks = appendPeaks(a.peaks[:0], a.window, a.ratio)

	for _, i := range a.peaks {
		pos := a.start + int64(i)
		if a.hasRef {
			a.out = append(a.out, Candidate{
				Position:   pos,
				IntervalMs: a.toMillis(pos - a.ref),
			})
		}
		a.ref = pos
		a.hasRef = true
	}

	// 窗口不重叠：丢弃原始数据，只保留参考位置
	a.start += int64(len(a.window))
	a.window = a.window[:0]
	a.windows++
	return a.out
}

func (a *Accumulator) toMillis(samples int64) int {
	return int(math.Round(float64(samples) * 1000 / float64(a.rate)))
}

// Reset 清空窗口、采样计数和峰值参考（新会话）
func (a *Accumulator) Reset() {
	a.window = a.window[:0]
	a.start = 0
	a.ref = 0
	a.hasRef = false
	a.windows = 0
}

// Len 当前窗口已累积的采样数
func (a *Accumulator) Len() int { return len(a.window) }

// Windows 已完成分析的窗口数
func (a *Accumulator) Windows() uint64 { return a.windows }
