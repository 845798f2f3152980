package detector

import "math"

// Validator 峰间期生理范围校验
type Validator struct {
	MinPPI int // ms
	MaxPPI int // ms
	MinHR  int // bpm
	MaxHR  int // bpm
}

// DefaultValidator 700~1200ms，30~240bpm
func DefaultValidator() Validator {
	return Validator{MinPPI: 700, MaxPPI: 1200, MinHR: 30, MaxHR: 240}
}

// Validate 校验候选间隔，返回对应心率。不合格的间隔视为噪声或运动伪影，直接丢弃。
func (v Validator) Validate(intervalMs int) (heartRate int, ok bool) {
	if intervalMs < v.MinPPI || intervalMs > v.MaxPPI || intervalMs <= 0 {
		return 0, false
	}
	heartRate = int(math.Round(60000 / float64(intervalMs)))
	if heartRate < v.MinHR || heartRate > v.MaxHR {
		return 0, false
	}
	return heartRate, true
}
