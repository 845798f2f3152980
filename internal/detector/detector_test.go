package detector_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-hrv/internal/detector"
	"wisefido-hrv/internal/models"
	"wisefido-hrv/internal/sampler"
)

// spikes 生成基线 1000、每 spacing 个采样一个三角形尖峰的信号，第一个峰在 offset
func spikes(n, offset, spacing int) []models.RawSample {
	out := make([]models.RawSample, n)
	for i := range out {
		out[i] = 1000
	}
	for p := offset; p < n; p += spacing {
		out[p] = 2000
		if p > 0 {
			out[p-1] = 1500
		}
		if p+1 < n {
			out[p+1] = 1500
		}
	}
	return out
}

func feed(acc *detector.Accumulator, samples []models.RawSample) []detector.Candidate {
	var all []detector.Candidate
	for _, s := range samples {
		all = append(all, acc.Add(s)...)
	}
	return all
}

func TestThreshold(t *testing.T) {
	lo, hi, th := detector.Threshold([]models.RawSample{10, 110, 20}, 0.15)
	assert.Equal(t, models.RawSample(10), lo)
	assert.Equal(t, models.RawSample(110), hi)
	assert.InDelta(t, 95.0, th, 1e-9)

	_, _, th = detector.Threshold(nil, 0.15)
	assert.Equal(t, 0.0, th)
}

func TestFindPeaks_FlatWindow(t *testing.T) {
	window := make([]models.RawSample, 750)
	for i := range window {
		window[i] = 32000
	}
	assert.Empty(t, detector.FindPeaks(window, 0.15))

	acc := detector.NewAccumulator(750, 250, 0.15)
	assert.Empty(t, feed(acc, window))
	assert.Equal(t, uint64(1), acc.Windows())
	assert.Equal(t, 0, acc.Len())
}

func TestFindPeaks_StrictLocalMaximum(t *testing.T) {
	// 平顶（相邻相等）不是严格极大值；首尾采样不参与
	window := []models.RawSample{3000, 1000, 2000, 2000, 1000, 2900, 1000, 3000}
	assert.Equal(t, []int{5}, detector.FindPeaks(window, 0.15))
}

func TestAccumulator_RecoversSpacing(t *testing.T) {
	cases := []struct {
		name    string
		rate    int
		offset  int
		spacing int
		wantMs  int
	}{
		// offset 选在不让峰值落到窗口首尾采样上的位置
		{"250Hz 200 samples", 250, 120, 200, 800},
		{"250Hz 213 samples", 250, 130, 213, 852},
		{"200Hz 170 samples", 200, 120, 170, 850},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			acc := detector.NewAccumulator(750, tc.rate, 0.15)
			cands := feed(acc, spikes(750*4, tc.offset, tc.spacing))

			require.NotEmpty(t, cands)
			for _, c := range cands {
				assert.Equal(t, tc.wantMs, c.IntervalMs, "position %d", c.Position)
			}
			// 第一个峰只建立参考
			assert.Equal(t, int64(tc.offset+tc.spacing), cands[0].Position)
		})
	}
}

func TestAccumulator_ReferenceCarriesAcrossWindows(t *testing.T) {
	acc := detector.NewAccumulator(750, 250, 0.15)
	// 峰值位于 700 和 950，跨越第一个窗口边界
	samples := make([]models.RawSample, 1500)
	for i := range samples {
		samples[i] = 1000
	}
	for _, p := range []int{700, 950} {
		samples[p-1], samples[p], samples[p+1] = 1500, 2000, 1500
	}

	cands := feed(acc, samples)
	require.Len(t, cands, 1)
	assert.Equal(t, int64(950), cands[0].Position)
	assert.Equal(t, 1000, cands[0].IntervalMs)
}

func TestAccumulator_MultiplePeaksPerWindow(t *testing.T) {
	acc := detector.NewAccumulator(750, 250, 0.15)
	var got []detector.Candidate
	for i, s := range spikes(750, 50, 100) {
		c := acc.Add(s)
		if i < 749 {
			require.Nil(t, c)
		}
		got = append(got, c...)
	}
	// 峰值 50,150,...,650：7 个峰，6 个间隔
	assert.Len(t, got, 6)
}

func TestAccumulator_Reset(t *testing.T) {
	acc := detector.NewAccumulator(750, 250, 0.15)
	feed(acc, spikes(750, 100, 200))
	feed(acc, spikes(100, 10, 200))
	assert.Equal(t, 100, acc.Len())

	acc.Reset()
	assert.Equal(t, 0, acc.Len())
	assert.Equal(t, uint64(0), acc.Windows())

	// 重置后第一个峰重新只建立参考
	cands := feed(acc, spikes(750, 300, 200))
	require.Len(t, cands, 2)
	assert.Equal(t, 800, cands[0].IntervalMs)
}

func TestValidator_Bounds(t *testing.T) {
	v := detector.DefaultValidator()
	cases := []struct {
		interval int
		ok       bool
		hr       int
	}{
		{650, false, 0},
		{699, false, 0},
		{700, true, 86},
		{800, true, 75},
		{1200, true, 50},
		{1201, false, 0},
		{0, false, 0},
	}
	for _, tc := range cases {
		hr, ok := v.Validate(tc.interval)
		assert.Equal(t, tc.ok, ok, "interval %d", tc.interval)
		assert.Equal(t, tc.hr, hr, "interval %d", tc.interval)
	}
}

func TestValidator_HeartRateBound(t *testing.T) {
	v := detector.Validator{MinPPI: 200, MaxPPI: 3000, MinHR: 30, MaxHR: 240}

	_, ok := v.Validate(2100) // 29 bpm
	assert.False(t, ok)
	_, ok = v.Validate(240) // 250 bpm
	assert.False(t, ok)
	hr, ok := v.Validate(2000)
	assert.True(t, ok)
	assert.Equal(t, 30, hr)
}

func TestPipeline_SimulatedPPG(t *testing.T) {
	const rate = 250
	sim := sampler.NewSimulator(rate, 72, 0, 0)
	acc := detector.NewAccumulator(750, rate, 0.15)
	v := detector.DefaultValidator()

	var accepted []int
	for i := 0; i < rate*25; i++ {
		s, err := sim.Read()
		require.NoError(t, err)
		for _, c := range acc.Add(s) {
			if _, ok := v.Validate(c.IntervalMs); ok {
				accepted = append(accepted, c.IntervalMs)
			}
		}
	}

	// 72 bpm ≈ 833ms，量化到 4ms
	assert.GreaterOrEqual(t, len(accepted), 20)
	for _, ppi := range accepted {
		assert.InDelta(t, 833, ppi, 8)
	}
}
