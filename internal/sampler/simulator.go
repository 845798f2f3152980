package sampler

import (
	"math"

	"wisefido-hrv/internal/models"
)

// Simulator 合成 PPG 波形（非临床），用于没有传感器时联调。
// 收缩峰 + 重搏波两个高斯分量，叠加基线漂移、呼吸性窦性心律不齐和确定性噪声。
type Simulator struct {
	fs       float64
	hrBPM    float64
	rsaBPM   float64 // 呼吸调制的心率摆幅
	noise    float64 // 噪声幅度（相对脉搏幅度）
	baseline float64
	gain     float64

	n     uint64
	phase float64
	seed  uint64
}

// NewSimulator fs=250, hrBPM 典型 55~85, noise ~0.0-0.02
func NewSimulator(fs, hrBPM, rsaBPM, noise float64) *Simulator {
	return &Simulator{
		fs:       fs,
		hrBPM:    hrBPM,
		rsaBPM:   rsaBPM,
		noise:    noise,
		baseline: 24000,
		gain:     20000,
		seed:     0x9E3779B97F4A7C15,
	}
}

// Read 返回下一个采样值并推进时间
func (s *Simulator) Read() (models.RawSample, error) {
	t := float64(s.n) / s.fs
	s.n++

	// 呼吸频率约 0.25Hz
	hr := s.hrBPM + s.rsaBPM*math.Sin(2*math.Pi*0.25*t)
	s.phase += hr / 60.0 / s.fs
	if s.phase >= 1.0 {
		s.phase -= 1.0
	}

	p := s.phase
	systolic := gauss(p, 0.15, 0.05)
	dicrotic := 0.35 * gauss(p, 0.45, 0.07)
	wander := 0.04 * math.Sin(2*math.Pi*0.1*t)
	v := systolic + dicrotic + wander + s.noise*s.next()

	out := s.baseline + s.gain*v
	return models.RawSample(clamp(out, 0, math.MaxUint16)), nil
}

// next 返回 [-1, 1) 的确定性伪随机数（xorshift64）
func (s *Simulator) next() float64 {
	s.seed ^= s.seed << 13
	s.seed ^= s.seed >> 7
	s.seed ^= s.seed << 17
	return float64(s.seed>>11)/float64(1<<53)*2 - 1
}

func gauss(x, mu, sigma float64) float64 {
	z := (x - mu) / sigma
	return math.Exp(-0.5 * z * z)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
