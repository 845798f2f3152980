package models

// Message 发布消息：字段名 -> 数值
type Message map[string]float64

// 消息字段名
const (
	FieldPPI       = "ppi"
	FieldHeartRate = "heart_rate"
	FieldMeanPPI   = "mean_ppi"
	FieldMeanHR    = "mean_hr"
	FieldSDNN      = "sdnn"
	FieldRMSSD     = "rmssd"
	FieldSNSIndex  = "sns_index"
	FieldPNSIndex  = "pns_index"
)

// LiveMessage 每个有效 PPI 的实时消息
func LiveMessage(ppi, heartRate int) Message {
	return Message{
		FieldPPI:       float64(ppi),
		FieldHeartRate: float64(heartRate),
	}
}

// SessionMessage 会话结束消息；indices 为 nil 时不包含 sns/pns 字段
func SessionMessage(m HRVMetrics, indices *AutonomicIndices) Message {
	r := m.Rounded()
	msg := Message{
		FieldMeanPPI: r.MeanPPI,
		FieldMeanHR:  r.MeanHR,
		FieldSDNN:    r.SDNN,
		FieldRMSSD:   r.RMSSD,
	}
	if indices != nil {
		ri := indices.Rounded()
		msg[FieldSNSIndex] = ri.SNS
		msg[FieldPNSIndex] = ri.PNS
	}
	return msg
}
