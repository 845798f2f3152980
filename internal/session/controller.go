package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-hrv/internal/detector"
	"wisefido-hrv/internal/display"
	"wisefido-hrv/internal/hrv"
	"wisefido-hrv/internal/input"
	"wisefido-hrv/internal/kubios"
	"wisefido-hrv/internal/models"
	"wisefido-hrv/internal/publisher"
	"wisefido-hrv/internal/ring"
)

// Config 控制器参数
type Config struct {
	SampleRate      int
	WindowSize      int
	ThresholdRatio  float64
	Validator       detector.Validator
	Duration        time.Duration // 会话时长，到时自动结束
	PollInterval    time.Duration
	AnalysisTimeout time.Duration
	RecordTimeout   time.Duration
	Topic           string // 发布目标
}

// Deps 控制器依赖。Analyzer 为 nil 时跳过远程分析；Publisher 为 nil 时不发布。
type Deps struct {
	Source    Source
	Samples   *ring.Ring
	Input     *input.Debouncer
	Display   display.Display
	Publisher publisher.Publisher
	Analyzer  kubios.Analyzer
	Recorders []Recorder
	Logger    *zap.Logger
}

// Controller 会话状态机
type Controller struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
	now  func() time.Time

	state    atomic.Int32
	detector *detector.Accumulator
	session  *Session

	lastDropped uint64
	rejected    uint64
	last        *Outcome

	sessions atomic.Uint64
	validPPI atomic.Int32
}

// NewController 创建控制器
func NewController(cfg Config, deps Deps) *Controller {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Millisecond
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 15 * time.Second
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 5 * time.Second
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Publisher == nil {
		deps.Publisher = publisher.Nop{}
	}
	return &Controller{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger,
		now:      time.Now,
		detector: detector.NewAccumulator(cfg.WindowSize, cfg.SampleRate, cfg.ThresholdRatio),
	}
}

// SetClock 替换时钟
func (c *Controller) SetClock(now func() time.Time) { c.now = now }

// State 当前状态（可在其他 goroutine 读取）
func (c *Controller) State() State { return State(c.state.Load()) }

// Sessions 已完成的会话数
func (c *Controller) Sessions() uint64 { return c.sessions.Load() }

// ValidPPI 当前会话已接受的 PPI 数
func (c *Controller) ValidPPI() int { return int(c.validPPI.Load()) }

// Current 当前会话；Idle 时为 nil
func (c *Controller) Current() *Session { return c.session }

// LastOutcome 最近一次会话报告
func (c *Controller) LastOutcome() *Outcome { return c.last }

func (c *Controller) setState(s State) { c.state.Store(int32(s)) }

// Run 以 PollInterval 为周期循环执行 Step，直到 ctx 结束
func (c *Controller) Run(ctx context.Context) error {
	c.showIdle()

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-ticker.C:
			c.Step(ctx)
		}
	}
}

// Step 执行一次循环：处理采样、处理输入事件、检查会话时长
func (c *Controller) Step(ctx context.Context) {
	if c.State() == StateRunning {
		c.drainSamples(ctx)
	}

	if trig, ok := c.deps.Input.Poll(); ok {
		c.handle(ctx, trig)
	}

	if c.State() == StateRunning && c.now().Sub(c.session.StartedAt) >= c.cfg.Duration {
		c.finish(ctx, models.StopElapsed)
	}
}

func (c *Controller) handle(ctx context.Context, trig input.Trigger) {
	state := c.State()
	switch {
	case trig == input.TriggerStart && state == StateIdle:
		c.start()
	case trig == input.TriggerStop && state == StateRunning:
		c.finish(ctx, models.StopManual)
	default:
		c.log.Debug("Ignoring trigger",
			zap.Stringer("trigger", trig),
			zap.Stringer("state", state),
		)
	}
}

func (c *Controller) start() {
	c.session = newSession(uuid.New().String(), c.now())
	c.detector.Reset()
	c.validPPI.Store(0)
	c.rejected = 0

	// 丢弃上一次会话残留的采样
	c.deps.Samples.Drain()
	c.lastDropped = c.deps.Samples.Dropped()

	c.deps.Display.Clear()
	c.deps.Display.Show()
	c.deps.Display.Text("..Starting..", 0, 10)
	c.deps.Display.Show()

	c.deps.Source.Arm()
	c.setState(StateRunning)

	c.log.Info("Measurement started",
		zap.String("session_id", c.session.ID),
		zap.Duration("duration", c.cfg.Duration),
	)
}

func (c *Controller) drainSamples(ctx context.Context) {
	for {
		v, ok := c.deps.Samples.Get()
		if !ok {
			break
		}
		for _, cand := range c.detector.Add(models.RawSample(v)) {
			c.accept(ctx, cand)
		}
	}

	if dropped := c.deps.Samples.Dropped(); dropped > c.lastDropped {
		c.log.Warn("Sample queue overflow",
			zap.Error(ring.ErrOverflow),
			zap.Uint64("dropped", dropped-c.lastDropped),
			zap.Uint64("dropped_total", dropped),
			zap.Stringer("policy", c.deps.Samples.Policy()),
		)
		c.lastDropped = dropped
	}
}

func (c *Controller) accept(ctx context.Context, cand detector.Candidate) {
	hr, ok := c.cfg.Validator.Validate(cand.IntervalMs)
	if !ok {
		c.rejected++
		c.log.Debug("Interval rejected",
			zap.Int("interval_ms", cand.IntervalMs),
			zap.Int64("position", cand.Position),
		)
		return
	}

	c.session.add(cand.IntervalMs)
	c.validPPI.Add(1)

	c.deps.Display.Clear()
	c.deps.Display.Text(fmt.Sprintf("  BPM: %d  ", hr), 0, 10)
	c.deps.Display.Text("---------------", 0, 20)
	c.deps.Display.Text("   Measuring   ", 0, 30)
	c.deps.Display.Show()

	if err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, models.LiveMessage(cand.IntervalMs, hr)); err != nil {
		c.log.Warn("Failed to publish live PPI", zap.Error(err))
	}
}

// finish Running → Reporting → Idle
func (c *Controller) finish(ctx context.Context, reason models.StopReason) {
	c.setState(StateReporting)
	c.deps.Source.Disarm()
	c.drainSamples(ctx)

	sess := c.session
	endedAt := c.now()
	c.log.Info("Measurement stopped",
		zap.String("session_id", sess.ID),
		zap.String("reason", string(reason)),
		zap.Int("valid_ppi", len(sess.intervals)),
		zap.Uint64("rejected", c.rejected),
		zap.Uint64("windows", c.detector.Windows()),
	)

	out := c.report(ctx, sess)
	c.record(sess, endedAt, reason, out)

	c.last = &out
	c.sessions.Add(1)
	c.session = nil
	c.setState(StateIdle)
}

func (c *Controller) report(ctx context.Context, sess *Session) Outcome {
	out := Outcome{SessionID: sess.ID}

	metrics, err := sess.stats.Metrics()
	if err != nil {
		out.Err = err
		c.log.Warn("HRV statistics unavailable",
			zap.String("session_id", sess.ID),
			zap.Int("valid_ppi", len(sess.intervals)),
			zap.Error(err),
		)
		c.deps.Display.Clear()
		c.deps.Display.Text("Not enough data", 0, 10)
		c.deps.Display.Text("Press To Start", 0, 30)
		c.deps.Display.Show()
		return out
	}
	out.Metrics = &metrics

	r := metrics.Rounded()
	c.log.Info("Basic HRV analysis parameters",
		zap.String("session_id", sess.ID),
		zap.Float64("mean_ppi", r.MeanPPI),
		zap.Float64("mean_hr", r.MeanHR),
		zap.Float64("sdnn", r.SDNN),
		zap.Float64("rmssd", r.RMSSD),
	)

	if c.deps.Analyzer != nil {
		actx, cancel := context.WithTimeout(ctx, c.cfg.AnalysisTimeout)
		indices, err := c.deps.Analyzer.Analyze(actx, sess.Intervals())
		cancel()
		if err != nil {
			out.Err = err
			c.log.Error("Remote HRV analysis failed",
				zap.String("session_id", sess.ID),
				zap.Error(err),
			)
		} else {
			out.Indices = &indices
			out.Label = hrv.Classify(indices)
		}
	}

	c.showResult(out)

	if err := c.deps.Publisher.Publish(ctx, c.cfg.Topic, models.SessionMessage(metrics, out.Indices)); err != nil {
		c.log.Warn("Failed to publish session result", zap.Error(err))
	}
	return out
}

func (c *Controller) showResult(out Outcome) {
	d := c.deps.Display
	d.Clear()
	if out.Indices == nil {
		r := out.Metrics.Rounded()
		d.Text(fmt.Sprintf("HR: %.0f bpm", r.MeanHR), 0, 10)
		d.Text(fmt.Sprintf("SDNN: %.2f", r.SDNN), 0, 20)
		d.Text(fmt.Sprintf("RMSSD: %.2f", r.RMSSD), 0, 30)
		if out.Err != nil {
			d.Text("Analysis failed", 0, 50)
		}
		d.Show()
		return
	}

	idx := out.Indices.Rounded()
	d.Text(fmt.Sprintf("SNS: %g", idx.SNS), 0, 10)
	d.Text(fmt.Sprintf("PNS: %g", idx.PNS), 0, 20)
	d.Show()
	if out.Label == models.LabelStressed {
		d.Text("STRESSED OUT !!!", 20, 40)
	} else {
		d.Text("NORMAL !!!", 30, 40)
	}
	d.Show()
}

func (c *Controller) record(sess *Session, endedAt time.Time, reason models.StopReason, out Outcome) {
	if len(c.deps.Recorders) == 0 {
		return
	}
	rec := &models.SessionRecord{
		SessionID:  sess.ID,
		StartedAt:  sess.StartedAt,
		EndedAt:    endedAt,
		StopReason: reason,
		Intervals:  sess.Intervals(),
		Metrics:    out.Metrics,
		Indices:    out.Indices,
		Label:      out.Label,
	}
	if out.Err != nil {
		rec.Failure = out.Err.Error()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.RecordTimeout)
	defer cancel()
	for _, r := range c.deps.Recorders {
		if err := r.Record(ctx, rec); err != nil {
			c.log.Error("Failed to record session",
				zap.String("session_id", sess.ID),
				zap.String("recorder", fmt.Sprintf("%T", r)),
				zap.Error(err),
			)
		}
	}
}

// shutdown 进程退出时中止正在进行的会话，不做远程分析
func (c *Controller) shutdown() {
	if c.State() != StateRunning {
		return
	}
	c.deps.Source.Disarm()
	sess := c.session
	out := Outcome{SessionID: sess.ID, Err: errAborted}
	if m, err := sess.stats.Metrics(); err == nil {
		out.Metrics = &m
	}
	c.record(sess, c.now(), models.StopShutdown, out)
	c.log.Info("Measurement aborted by shutdown", zap.String("session_id", sess.ID))

	c.last = &out
	c.session = nil
	c.setState(StateIdle)
}

var errAborted = errors.New("session aborted by shutdown")

func (c *Controller) showIdle() {
	c.deps.Display.Clear()
	c.deps.Display.Text("Press To Start", 0, 10)
	c.deps.Display.Text("<--------", 0, 40)
	c.deps.Display.Show()
}
