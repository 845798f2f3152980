// Package hrv 计算会话级心率变异性统计，并根据自主神经指数给出压力标签。
package hrv

import (
	"errors"
	"math"

	"wisefido-hrv/internal/models"
)

// ErrInsufficientData 有效 PPI 少于 2 个，无法计算统计量
var ErrInsufficientData = errors.New("hrv: insufficient data")

// Accumulator 增量统计：Welford 均值/方差 + 相邻差平方和。
// 零值可直接使用。
type Accumulator struct {
	n      int
	mean   float64
	m2     float64
	last   float64
	sumSq  float64 // 相邻差平方和
	hasOne bool
}

// Add 追加一个有效 PPI（ms）
func (a *Accumulator) Add(ppi int) {
	x := float64(ppi)
	if a.hasOne {
		d := x - a.last
		a.sumSq += d * d
	}
	a.last = x
	a.hasOne = true

	a.n++
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

// Len 已累积的 PPI 个数
func (a *Accumulator) Len() int { return a.n }

// Reset 清空
func (a *Accumulator) Reset() { *a = Accumulator{} }

// Metrics 返回全精度统计结果：
// meanHR = 60000/meanPPI，SDNN 为样本标准差（n-1），RMSSD 为相邻差平方均值的平方根。
func (a *Accumulator) Metrics() (models.HRVMetrics, error) {
	if a.n < 2 {
		return models.HRVMetrics{}, ErrInsufficientData
	}
	variance := a.m2 / float64(a.n-1)
	if variance < 0 {
		variance = 0
	}
	return models.HRVMetrics{
		MeanPPI: a.mean,
		MeanHR:  60000 / a.mean,
		SDNN:    math.Sqrt(variance),
		RMSSD:   math.Sqrt(a.sumSq / float64(a.n-1)),
	}, nil
}

// Compute 对一组 PPI 做一次性计算
func Compute(intervals []int) (models.HRVMetrics, error) {
	var a Accumulator
	for _, v := range intervals {
		a.Add(v)
	}
	return a.Metrics()
}
