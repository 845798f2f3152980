package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionMessage_RoundsAtBoundary(t *testing.T) {
	m := HRVMetrics{MeanPPI: 802.5, MeanHR: 74.766355, SDNN: 17.078251, RMSSD: 30.550504}
	idx := &AutonomicIndices{SNS: 1.23456, PNS: -2.71828}

	msg := SessionMessage(m, idx)

	assert.Equal(t, 803.0, msg[FieldMeanPPI])
	assert.Equal(t, 75.0, msg[FieldMeanHR])
	assert.Equal(t, 17.08, msg[FieldSDNN])
	assert.Equal(t, 30.55, msg[FieldRMSSD])
	assert.Equal(t, 1.235, msg[FieldSNSIndex])
	assert.Equal(t, -2.718, msg[FieldPNSIndex])
}

func TestSessionMessage_WithoutIndices(t *testing.T) {
	msg := SessionMessage(HRVMetrics{MeanPPI: 800, MeanHR: 75}, nil)

	_, ok := msg[FieldSNSIndex]
	assert.False(t, ok)
	_, ok = msg[FieldPNSIndex]
	assert.False(t, ok)
}

func TestLiveMessage_JSON(t *testing.T) {
	b, err := json.Marshal(LiveMessage(800, 75))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ppi":800,"heart_rate":75}`, string(b))
}
