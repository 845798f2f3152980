package models

import (
	"math"
	"time"
)

// RawSample 一次 ADC 采样值（无符号幅值）
type RawSample uint16

// HRVMetrics 会话 HRV 统计结果（全精度）
type HRVMetrics struct {
	MeanPPI float64 `json:"mean_ppi"` // ms
	MeanHR  float64 `json:"mean_hr"`  // bpm
	SDNN    float64 `json:"sdnn"`     // ms
	RMSSD   float64 `json:"rmssd"`    // ms
}

// Rounded 报告边界的取整：平均值取整数，SDNN/RMSSD 保留两位小数
func (m HRVMetrics) Rounded() HRVMetrics {
	return HRVMetrics{
		MeanPPI: math.Round(m.MeanPPI),
		MeanHR:  math.Round(m.MeanHR),
		SDNN:    RoundTo(m.SDNN, 2),
		RMSSD:   RoundTo(m.RMSSD, 2),
	}
}

// AutonomicIndices 远程分析服务返回的交感/副交感指数
type AutonomicIndices struct {
	SNS float64 `json:"sns_index"`
	PNS float64 `json:"pns_index"`
}

// Rounded 指数保留三位小数
func (a AutonomicIndices) Rounded() AutonomicIndices {
	return AutonomicIndices{SNS: RoundTo(a.SNS, 3), PNS: RoundTo(a.PNS, 3)}
}

// StressLabel 压力分类标签
type StressLabel string

const (
	LabelStressed StressLabel = "stressed"
	LabelNormal   StressLabel = "normal"
)

// StopReason 会话结束原因
type StopReason string

const (
	StopElapsed  StopReason = "elapsed"
	StopManual   StopReason = "manual"
	StopShutdown StopReason = "shutdown"
)

// SessionRecord 已完成会话的汇总，交给各个 Recorder 持久化
type SessionRecord struct {
	SessionID  string            `json:"session_id"`
	StartedAt  time.Time         `json:"started_at"`
	EndedAt    time.Time         `json:"ended_at"`
	StopReason StopReason        `json:"stop_reason"`
	Intervals  []int             `json:"intervals"`
	Metrics    *HRVMetrics       `json:"metrics,omitempty"`
	Indices    *AutonomicIndices `json:"indices,omitempty"`
	Label      StressLabel       `json:"label,omitempty"`
	Failure    string            `json:"failure,omitempty"`
}

// RoundTo 四舍五入到指定小数位
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
