package hrv

import "wisefido-hrv/internal/models"

// 压力判定阈值
const (
	stressSNSLow  = 5.0
	stressSNSHigh = 35.0
	stressPNSMax  = -2.0
)

// Classify (5 < SNS < 35) 或 PNS < -2 判定为 stressed，否则 normal
func Classify(idx models.AutonomicIndices) models.StressLabel {
	if (idx.SNS > stressSNSLow && idx.SNS < stressSNSHigh) || idx.PNS < stressPNSMax {
		return models.LabelStressed
	}
	return models.LabelNormal
}
