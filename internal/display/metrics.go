package display

import (
	"github.com/prometheus/client_golang/prometheus"
)

// statsCollector 每次抓取时调用一次 StatsFunc，按快照输出指标
type statsCollector struct {
	snapshot func() Stats

	state          *prometheus.Desc
	queueDepth     *prometheus.Desc
	queueDropped   *prometheus.Desc
	sampleTicks    *prometheus.Desc
	readErrors     *prometheus.Desc
	sessions       *prometheus.Desc
	validPPI       *prometheus.Desc
	displayClients *prometheus.Desc
	displayDropped *prometheus.Desc
}

func newStatsCollector(snapshot func() Stats) *statsCollector {
	return &statsCollector{
		snapshot:       snapshot,
		state:          prometheus.NewDesc("hrv_state", "Current session controller state.", []string{"state"}, nil),
		queueDepth:     prometheus.NewDesc("hrv_queue_depth", "Samples waiting in the sample ring.", nil, nil),
		queueDropped:   prometheus.NewDesc("hrv_queue_dropped_total", "Samples dropped by the sample ring overflow policy.", nil, nil),
		sampleTicks:    prometheus.NewDesc("hrv_sample_ticks_total", "Sampling ticks while armed.", nil, nil),
		readErrors:     prometheus.NewDesc("hrv_sample_read_errors_total", "Failed sample reads.", nil, nil),
		sessions:       prometheus.NewDesc("hrv_sessions_total", "Completed measurement sessions.", nil, nil),
		validPPI:       prometheus.NewDesc("hrv_session_valid_ppi", "Accepted intervals in the current session.", nil, nil),
		displayClients: prometheus.NewDesc("hrv_display_clients", "Connected display websocket clients.", nil, nil),
		displayDropped: prometheus.NewDesc("hrv_display_dropped_frames_total", "Display frames dropped for slow clients.", nil, nil),
	}
}

// Describe 实现 prometheus.Collector
func (c *statsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.queueDepth
	ch <- c.queueDropped
	ch <- c.sampleTicks
	ch <- c.readErrors
	ch <- c.sessions
	ch <- c.validPPI
	ch <- c.displayClients
	ch <- c.displayDropped
}

// Collect 实现 prometheus.Collector
func (c *statsCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.snapshot()

	if st.State != "" {
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, 1, st.State)
	}
	ch <- prometheus.MustNewConstMetric(c.queueDepth, prometheus.GaugeValue, float64(st.QueueDepth))
	ch <- prometheus.MustNewConstMetric(c.queueDropped, prometheus.CounterValue, float64(st.QueueDropped))
	ch <- prometheus.MustNewConstMetric(c.sampleTicks, prometheus.CounterValue, float64(st.SampleTicks))
	ch <- prometheus.MustNewConstMetric(c.readErrors, prometheus.CounterValue, float64(st.ReadErrors))
	ch <- prometheus.MustNewConstMetric(c.sessions, prometheus.CounterValue, float64(st.Sessions))
	ch <- prometheus.MustNewConstMetric(c.validPPI, prometheus.GaugeValue, float64(st.ValidPPI))
	ch <- prometheus.MustNewConstMetric(c.displayClients, prometheus.GaugeValue, float64(st.DisplayClient))
	ch <- prometheus.MustNewConstMetric(c.displayDropped, prometheus.CounterValue, float64(st.DisplayDropped))
}
