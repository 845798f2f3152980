// Package detector 把原始采样分成固定长度的不重叠窗口，在每个窗口内用自适应阈值寻找
// 局部极大值，并把相邻峰值的间隔换算成毫秒后交给 Validator 校验。
package detector

import "wisefido-hrv/internal/models"

// Threshold 计算窗口的最小值、最大值和阈值 max - ratio*(max-min)。
// 空窗口返回全零。
func Threshold(window []models.RawSample, ratio float64) (lo, hi models.RawSample, threshold float64) {
	if len(window) == 0 {
		return 0, 0, 0
	}
	lo, hi = window[0], window[0]
	for _, v := range window[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	amplitude := float64(hi - lo)
	threshold = float64(hi) - ratio*amplitude
	return lo, hi, threshold
}

// FindPeaks 返回窗口内所有高于阈值的严格局部极大值下标（不含首尾两个采样）。
// 平直信号的阈值等于最大值，不会产生峰值。
func FindPeaks(window []models.RawSample, ratio float64) []int {
	return appendPeaks(nil, window, ratio)
}

func appendPeaks(dst []int, window []models.RawSample, ratio float64) []int {
	if len(window) < 3 {
		return dst
	}
	_, _, threshold := Threshold(window, ratio)
	for i := 1; i < len(window)-1; i++ {
		v := window[i]
		if float64(v) > threshold && window[i-1] < v && v > window[i+1] {
			dst = append(dst, i)
		}
	}
	return dst
}
