package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"wisefido-hrv/internal/detector"
	"wisefido-hrv/internal/display"
	"wisefido-hrv/internal/hrv"
	"wisefido-hrv/internal/input"
	"wisefido-hrv/internal/kubios"
	"wisefido-hrv/internal/models"
	"wisefido-hrv/internal/publisher"
	"wisefido-hrv/internal/ring"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeSource struct {
	arms, disarms int
	armed         bool
}

func (s *fakeSource) Arm() {
	if !s.armed {
		s.arms++
	}
	s.armed = true
}

func (s *fakeSource) Disarm() {
	if s.armed {
		s.disarms++
	}
	s.armed = false
}

type fakeAnalyzer struct {
	indices models.AutonomicIndices
	err     error
	calls   int
	got     []int
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, intervals []int) (models.AutonomicIndices, error) {
	a.calls++
	a.got = intervals
	if _, ok := ctx.Deadline(); !ok {
		return models.AutonomicIndices{}, errors.New("analysis must be bounded by a deadline")
	}
	return a.indices, a.err
}

type published struct {
	topic string
	msg   models.Message
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, msg models.Message) error {
	p.msgs = append(p.msgs, published{topic, msg})
	return p.err
}

type fakeRecorder struct {
	recs []*models.SessionRecord
	err  error
}

func (r *fakeRecorder) Record(_ context.Context, rec *models.SessionRecord) error {
	r.recs = append(r.recs, rec)
	return r.err
}

type frames struct{ all []display.Frame }

func (f *frames) Render(fr display.Frame) { f.all = append(f.all, fr) }

func (f *frames) last() string {
	if len(f.all) == 0 {
		return ""
	}
	return f.all[len(f.all)-1].String()
}

type harness struct {
	ctrl      *Controller
	clock     *fakeClock
	source    *fakeSource
	samples   *ring.Ring
	buttons   *input.Line
	analyzer  *fakeAnalyzer
	publisher *fakePublisher
	recorder  *fakeRecorder
	frames    *frames
}

func newHarness(t *testing.T, analyzer *fakeAnalyzer, logger *zap.Logger) *harness {
	t.Helper()
	h := &harness{
		clock:     &fakeClock{t: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)},
		source:    &fakeSource{},
		samples:   ring.New(500, ring.DropNewest),
		buttons:   input.NewLine("buttons", 30),
		publisher: &fakePublisher{},
		recorder:  &fakeRecorder{},
		frames:    &frames{},
		analyzer:  analyzer,
	}
	debouncer := input.NewDebouncer(500*time.Millisecond, h.buttons)
	debouncer.SetClock(h.clock.now)

	if logger == nil {
		logger = zap.NewNop()
	}
	deps := Deps{
		Source:    h.source,
		Samples:   h.samples,
		Input:     debouncer,
		Display:   display.NewScreen(h.frames),
		Publisher: h.publisher,
		Recorders: []Recorder{h.recorder},
		Logger:    logger,
	}
	if analyzer != nil {
		deps.Analyzer = analyzer
	}
	h.ctrl = NewController(Config{
		SampleRate:     250,
		WindowSize:     750,
		ThresholdRatio: 0.15,
		Validator:      detector.DefaultValidator(),
		Duration:       25 * time.Second,
		Topic:          "pico/test",
	}, deps)
	h.ctrl.SetClock(h.clock.now)
	return h
}

func (h *harness) press(t *testing.T, trig input.Trigger) {
	t.Helper()
	require.True(t, h.buttons.Press(trig))
	h.ctrl.Step(context.Background())
}

// feedSpikes 向采样队列写入尖峰信号，每写满 400 个采样执行一次 Step
func (h *harness) feedSpikes(t *testing.T, n, offset, spacing int) {
	t.Helper()
	for i := 0; i < n; i++ {
		v := uint32(1000)
		switch {
		case i >= offset && (i-offset)%spacing == 0:
			v = 2000
		case i >= offset-1 && (i+1-offset)%spacing == 0, i > offset && (i-1-offset)%spacing == 0:
			v = 1500
		}
		require.True(t, h.samples.Put(v))
		if h.samples.Len() >= 400 {
			h.ctrl.Step(context.Background())
		}
	}
	h.ctrl.Step(context.Background())
}

func TestController_FullSession(t *testing.T) {
	analyzer := &fakeAnalyzer{indices: models.AutonomicIndices{SNS: 12.3456, PNS: -0.25}}
	h := newHarness(t, analyzer, nil)

	h.press(t, input.TriggerStart)
	require.Equal(t, StateRunning, h.ctrl.State())
	require.True(t, h.source.armed)
	sessionID := h.ctrl.Current().ID
	assert.NotEmpty(t, sessionID)

	// 峰值间隔 200 个采样 = 800ms，共 15 个峰、14 个间隔
	h.feedSpikes(t, 3000, 120, 200)
	assert.Equal(t, 14, h.ctrl.ValidPPI())
	assert.Contains(t, h.frames.last(), "BPM: 75")

	h.clock.advance(25 * time.Second)
	h.ctrl.Step(context.Background())

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.False(t, h.source.armed)
	assert.Equal(t, uint64(1), h.ctrl.Sessions())

	out := h.ctrl.LastOutcome()
	require.NotNil(t, out)
	require.NoError(t, out.Err)
	assert.Equal(t, sessionID, out.SessionID)
	require.NotNil(t, out.Metrics)
	assert.InDelta(t, 800, out.Metrics.MeanPPI, 1e-9)
	assert.InDelta(t, 75, out.Metrics.MeanHR, 1e-9)
	assert.Equal(t, 0.0, out.Metrics.SDNN)
	assert.Equal(t, 0.0, out.Metrics.RMSSD)
	assert.Equal(t, models.LabelStressed, out.Label)

	require.Equal(t, 1, analyzer.calls)
	assert.Len(t, analyzer.got, 14)

	// 14 条实时消息 + 1 条会话消息
	require.Len(t, h.publisher.msgs, 15)
	assert.Equal(t, models.LiveMessage(800, 75), h.publisher.msgs[0].msg)
	final := h.publisher.msgs[14]
	assert.Equal(t, "pico/test", final.topic)
	assert.Equal(t, 800.0, final.msg[models.FieldMeanPPI])
	assert.Equal(t, 12.346, final.msg[models.FieldSNSIndex])
	assert.Equal(t, -0.25, final.msg[models.FieldPNSIndex])

	require.Len(t, h.recorder.recs, 1)
	rec := h.recorder.recs[0]
	assert.Equal(t, models.StopElapsed, rec.StopReason)
	assert.Equal(t, 25*time.Second, rec.EndedAt.Sub(rec.StartedAt))
	assert.Len(t, rec.Intervals, 14)
	assert.Empty(t, rec.Failure)

	assert.Contains(t, h.frames.last(), "STRESSED OUT !!!")
}

func TestController_StartWhileRunningIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.press(t, input.TriggerStart)
	id := h.ctrl.Current().ID
	startedAt := h.ctrl.Current().StartedAt

	h.clock.advance(time.Second)
	h.press(t, input.TriggerStart)

	assert.Equal(t, StateRunning, h.ctrl.State())
	assert.Equal(t, id, h.ctrl.Current().ID)
	assert.Equal(t, startedAt, h.ctrl.Current().StartedAt)
	assert.Equal(t, 1, h.source.arms)
}

func TestController_StopWhileIdleIsNoop(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.press(t, input.TriggerStop)
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Equal(t, 0, h.source.disarms)
	assert.Empty(t, h.recorder.recs)
	assert.Nil(t, h.ctrl.LastOutcome())
}

func TestController_DebouncedStop(t *testing.T) {
	h := newHarness(t, nil, nil)

	h.press(t, input.TriggerStart)
	h.clock.advance(200 * time.Millisecond)
	h.press(t, input.TriggerStop)
	assert.Equal(t, StateRunning, h.ctrl.State(), "stop within debounce interval is ignored")

	h.clock.advance(500 * time.Millisecond)
	h.press(t, input.TriggerStop)
	assert.Equal(t, StateIdle, h.ctrl.State())
}

func TestController_InsufficientData(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	h := newHarness(t, analyzer, nil)

	h.press(t, input.TriggerStart)
	h.clock.advance(time.Second)
	h.press(t, input.TriggerStop)

	assert.Equal(t, StateIdle, h.ctrl.State())
	out := h.ctrl.LastOutcome()
	require.NotNil(t, out)
	assert.ErrorIs(t, out.Err, hrv.ErrInsufficientData)
	assert.Nil(t, out.Metrics)
	assert.Equal(t, 0, analyzer.calls)
	assert.Empty(t, h.publisher.msgs)

	require.Len(t, h.recorder.recs, 1)
	assert.Equal(t, models.StopManual, h.recorder.recs[0].StopReason)
	assert.Equal(t, hrv.ErrInsufficientData.Error(), h.recorder.recs[0].Failure)
	assert.Contains(t, h.frames.last(), "Not enough data")

	// 回到 Idle 后可以开始新会话
	h.clock.advance(time.Second)
	h.press(t, input.TriggerStart)
	assert.Equal(t, StateRunning, h.ctrl.State())
}

func TestController_ClassificationUnavailable(t *testing.T) {
	analyzer := &fakeAnalyzer{err: fmt.Errorf("%w: status 503", kubios.ErrClassificationUnavailable)}
	h := newHarness(t, analyzer, nil)

	h.press(t, input.TriggerStart)
	h.feedSpikes(t, 1500, 120, 200)
	h.clock.advance(2 * time.Second)
	h.press(t, input.TriggerStop)

	out := h.ctrl.LastOutcome()
	require.NotNil(t, out)
	assert.ErrorIs(t, out.Err, kubios.ErrClassificationUnavailable)
	require.NotNil(t, out.Metrics)
	assert.Nil(t, out.Indices)
	assert.Empty(t, out.Label)
	assert.Equal(t, StateIdle, h.ctrl.State())

	final := h.publisher.msgs[len(h.publisher.msgs)-1].msg
	assert.Contains(t, final, models.FieldMeanHR)
	assert.NotContains(t, final, models.FieldSNSIndex)

	require.Len(t, h.recorder.recs, 1)
	assert.NotNil(t, h.recorder.recs[0].Metrics)
	assert.Contains(t, h.recorder.recs[0].Failure, "classification unavailable")
	assert.Contains(t, h.frames.last(), "Analysis failed")
}

func TestController_RecorderFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.recorder.err = errors.New("disk full")

	h.press(t, input.TriggerStart)
	h.feedSpikes(t, 1500, 120, 200)
	h.clock.advance(25 * time.Second)
	h.ctrl.Step(context.Background())

	assert.Equal(t, StateIdle, h.ctrl.State())
	require.NotNil(t, h.ctrl.LastOutcome())
	assert.NoError(t, h.ctrl.LastOutcome().Err)
	assert.Empty(t, h.ctrl.LastOutcome().Label, "no analyzer configured")
}

func TestController_PublishFailureDoesNotAffectSession(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	analyzer := &fakeAnalyzer{indices: models.AutonomicIndices{SNS: 3, PNS: 0.5}}
	h := newHarness(t, analyzer, zap.New(core))
	h.publisher.err = fmt.Errorf("%w: broker down", publisher.ErrPublishFailure)

	h.press(t, input.TriggerStart)
	h.feedSpikes(t, 3000, 120, 200)
	assert.Equal(t, StateRunning, h.ctrl.State())
	assert.Equal(t, 14, h.ctrl.ValidPPI())

	h.clock.advance(25 * time.Second)
	h.ctrl.Step(context.Background())

	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.Len(t, h.publisher.msgs, 15)

	out := h.ctrl.LastOutcome()
	require.NotNil(t, out)
	assert.NoError(t, out.Err)
	assert.Equal(t, models.LabelNormal, out.Label)

	require.Len(t, h.recorder.recs, 1)
	assert.Len(t, h.recorder.recs[0].Intervals, 14)
	assert.Equal(t, models.LabelNormal, h.recorder.recs[0].Label)
	assert.Empty(t, h.recorder.recs[0].Failure)

	live := logs.FilterMessage("Failed to publish live PPI").All()
	assert.Len(t, live, 14)
	final := logs.FilterMessage("Failed to publish session result").All()
	require.Len(t, final, 1)
	assert.Equal(t, zapcore.WarnLevel, final[0].Level)
	assert.Contains(t, final[0].ContextMap()["error"], "broker down")

	assert.Contains(t, h.frames.last(), "NORMAL !!!")
}

func TestController_OverflowLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	h := newHarness(t, nil, zap.New(core))

	h.press(t, input.TriggerStart)
	for i := 0; i < 510; i++ {
		h.samples.Put(1000)
	}
	h.ctrl.Step(context.Background())

	entries := logs.FilterMessage("Sample queue overflow").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, uint64(10), fields["dropped"])
	assert.Equal(t, ring.ErrOverflow.Error(), fields["error"])

	// 没有新的丢弃时不再告警
	h.ctrl.Step(context.Background())
	assert.Len(t, logs.FilterMessage("Sample queue overflow").All(), 1)
}

func TestController_RunStopsOnCancel(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.ctrl.cfg.PollInterval = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.Contains(t, h.frames.all[0].String(), "Press To Start")
}

func TestController_ShutdownAbortsRunningSession(t *testing.T) {
	h := newHarness(t, nil, nil)
	h.press(t, input.TriggerStart)

	h.ctrl.shutdown()
	assert.Equal(t, StateIdle, h.ctrl.State())
	assert.False(t, h.source.armed)
	require.Len(t, h.recorder.recs, 1)
	assert.Equal(t, models.StopShutdown, h.recorder.recs[0].StopReason)
}
