package service

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"wisefido-hrv/common/database"
	mqttcommon "wisefido-hrv/common/mqtt"
	rediscommon "wisefido-hrv/common/redis"
	"wisefido-hrv/internal/config"
	"wisefido-hrv/internal/detector"
	"wisefido-hrv/internal/display"
	"wisefido-hrv/internal/input"
	"wisefido-hrv/internal/kubios"
	"wisefido-hrv/internal/publisher"
	"wisefido-hrv/internal/report"
	"wisefido-hrv/internal/repository"
	"wisefido-hrv/internal/ring"
	"wisefido-hrv/internal/sampler"
	"wisefido-hrv/internal/session"
)

// HRVService HRV 测量服务
type HRVService struct {
	config *config.Config
	logger *zap.Logger

	reader  sampler.Reader
	source  *sampler.Source
	samples *ring.Ring

	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client
	natsConn   *nats.Conn

	sessions   *repository.SessionRepository
	debouncer  *input.Debouncer
	consoleIn  *input.Line
	buttons    []*input.Button
	hub        *display.Hub
	server     *display.Server
	controller *session.Controller

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHRVService 创建服务并连接所有外部依赖
func NewHRVService(cfg *config.Config, logger *zap.Logger) (*HRVService, error) {
	s := &HRVService{config: cfg, logger: logger}
	if err := s.init(); err != nil {
		s.closeAll()
		return nil, err
	}
	return s, nil
}

func (s *HRVService) init() error {
	cfg := s.config
	ctx := context.Background()

	// 采样
	policy, err := ring.ParsePolicy(cfg.Sampler.Overflow)
	if err != nil {
		return err
	}
	s.samples = ring.New(cfg.Sampler.QueueSize, policy)
	if s.reader, err = s.openReader(); err != nil {
		return fmt.Errorf("failed to open sample reader: %w", err)
	}
	s.source = sampler.NewSource(s.reader, cfg.Sampler.Rate, s.samples)

	// 外部连接
	if cfg.NeedsMQTT() {
		if s.mqttClient, err = mqttcommon.NewClient(&cfg.MQTT, s.logger); err != nil {
			return fmt.Errorf("failed to connect to MQTT: %w", err)
		}
	}
	if cfg.Uses(config.TransportRedis) {
		s.redis = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(ctx, s.redis); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
	}
	if cfg.Uses(config.TransportNATS) {
		if s.natsConn, err = publisher.ConnectNATS(cfg.Publish.NATSURL, "wisefido-hrv"); err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
	}
	if cfg.DBEnabled {
		if s.db, err = database.NewPostgresDB(ctx, &cfg.Database); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
	}

	// 输入
	s.debouncer = input.NewDebouncer(cfg.Session.Debounce)
	if err := s.initInputs(); err != nil {
		return err
	}

	// 显示
	sinks := []display.Sink{display.NewLogSink(s.logger)}
	if cfg.Display.Addr != "" {
		s.hub = display.NewHub(s.logger)
		sinks = append(sinks, s.hub)
	}
	screen := display.NewScreen(sinks...)

	// 记录
	recorders, err := s.initRecorders(ctx)
	if err != nil {
		return err
	}

	deps := session.Deps{
		Source:    s.source,
		Samples:   s.samples,
		Input:     s.debouncer,
		Display:   screen,
		Publisher: s.buildPublisher(),
		Recorders: recorders,
		Logger:    s.logger,
	}
	if cfg.Kubios.Enabled {
		deps.Analyzer = kubios.NewClient(kubios.Config{
			AuthURL:      cfg.Kubios.AuthURL,
			AnalysisURL:  cfg.Kubios.AnalysisURL,
			ClientID:     cfg.Kubios.ClientID,
			ClientSecret: cfg.Kubios.ClientSecret,
			APIKey:       cfg.Kubios.APIKey,
			Timeout:      cfg.Kubios.Timeout,
			RetryCount:   cfg.Kubios.RetryCount,
		}, s.logger)
	}

	s.controller = session.NewController(session.Config{
		SampleRate:     cfg.Sampler.Rate,
		WindowSize:     cfg.Detector.WindowSize,
		ThresholdRatio: cfg.Detector.ThresholdRatio,
		Validator: detector.Validator{
			MinPPI: cfg.Detector.MinPPI,
			MaxPPI: cfg.Detector.MaxPPI,
			MinHR:  cfg.Detector.MinHR,
			MaxHR:  cfg.Detector.MaxHR,
		},
		Duration:        cfg.Session.Duration,
		PollInterval:    cfg.Session.PollInterval,
		AnalysisTimeout: cfg.Kubios.Timeout,
		Topic:           cfg.Publish.Topic,
	}, deps)

	if s.hub != nil {
		var store display.SessionStore
		if s.sessions != nil {
			store = s.sessions
		}
		s.server = display.NewServer(cfg.Display.Addr, s.hub, s.stats, store, s.logger)
	}
	return nil
}

func (s *HRVService) openReader() (sampler.Reader, error) {
	c := s.config.Sampler
	switch c.Source {
	case config.SourceSerial:
		r, err := sampler.OpenSerial(c.SerialPort, c.SerialBaud, s.logger)
		if err != nil {
			return nil, err
		}
		return r, nil
	case config.SourceI2C:
		adc, err := sampler.OpenADS1115(c.I2CBus, uint16(c.I2CAddr), c.I2CChannel)
		if err != nil {
			return nil, err
		}
		return adc, nil
	default:
		return sampler.NewSimulator(float64(c.Rate), c.SimHR, 3, c.SimNoise), nil
	}
}

func (s *HRVService) initInputs() error {
	cfg := s.config
	size := cfg.Session.EventQueueSize

	if cfg.Control.Topic != "" {
		line := input.NewLine("mqtt", size)
		s.debouncer.Add(line)
		if err := input.SubscribeControl(s.mqttClient, cfg.Control.Topic, line, s.logger); err != nil {
			return fmt.Errorf("failed to subscribe control topic: %w", err)
		}
	}
	if cfg.Control.Stdin {
		s.consoleIn = input.NewLine("console", size)
		s.debouncer.Add(s.consoleIn)
	}
	for _, b := range []struct {
		pin     string
		trigger input.Trigger
	}{
		{cfg.Control.StartPin, input.TriggerStart},
		{cfg.Control.StopPin, input.TriggerStop},
	} {
		if b.pin == "" {
			continue
		}
		line := input.NewLine("gpio-"+b.pin, size)
		s.debouncer.Add(line)
		btn, err := input.OpenButton(b.pin, b.trigger, line, s.logger)
		if err != nil {
			return fmt.Errorf("failed to open button: %w", err)
		}
		s.buttons = append(s.buttons, btn)
	}
	return nil
}

func (s *HRVService) initRecorders(ctx context.Context) ([]session.Recorder, error) {
	var recorders []session.Recorder
	if s.db != nil {
		s.sessions = repository.NewSessionRepository(s.db, s.logger)
		if err := s.sessions.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		recorders = append(recorders, s.sessions)
	}
	if s.config.ReportDir != "" {
		recorders = append(recorders, report.NewExporter(s.config.ReportDir, s.logger))
	}
	return recorders, nil
}

func (s *HRVService) buildPublisher() publisher.Publisher {
	var multi publisher.Multi
	if s.mqttClient != nil && s.config.Uses(config.TransportMQTT) {
		multi = append(multi, publisher.NewMQTTPublisher(s.mqttClient, s.config.MQTT.QoS))
	}
	if s.natsConn != nil {
		multi = append(multi, publisher.NewNATSPublisher(s.natsConn))
	}
	if s.redis != nil {
		multi = append(multi, publisher.NewStreamPublisher(s.redis, s.config.Publish.Stream, s.config.Publish.StreamLen))
	}
	switch len(multi) {
	case 0:
		return publisher.Nop{}
	case 1:
		return multi[0]
	default:
		return multi
	}
}

func (s *HRVService) stats() display.Stats {
	return display.Stats{
		State:        s.controller.State().String(),
		QueueDepth:   s.samples.Len(),
		QueueDropped: s.samples.Dropped(),
		SampleTicks:  s.source.Ticks(),
		ReadErrors:   s.source.ReadErrors(),
		Sessions:     s.controller.Sessions(),
		ValidPPI:     s.controller.ValidPPI(),
	}
}

// Start 启动输入源、显示服务和会话控制器
func (s *HRVService) Start(ctx context.Context) error {
	s.logger.Info("Starting HRV service components",
		zap.String("sample_source", s.config.Sampler.Source),
		zap.Int("sample_rate", s.config.Sampler.Rate),
		zap.Strings("publish_transports", s.config.Publish.Transports),
	)

	ctx, s.cancel = context.WithCancel(ctx)

	if s.server != nil {
		s.goRun(func() {
			if err := s.server.Start(); err != nil {
				s.logger.Error("Display server stopped", zap.Error(err))
			}
		})
	}
	if s.consoleIn != nil {
		// 阻塞在 Stdin 上，不计入 wg
		go input.ReadConsole(ctx, os.Stdin, s.consoleIn, s.logger)
	}
	for _, btn := range s.buttons {
		s.goRun(func() { btn.Run(ctx) })
	}
	s.goRun(func() {
		if err := s.controller.Run(ctx); err != nil {
			s.logger.Error("Session controller stopped", zap.Error(err))
		}
	})

	s.logger.Info("HRV service started successfully")
	return nil
}

func (s *HRVService) goRun(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

// Stop 停止服务并释放所有连接
func (s *HRVService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HRV service")

	if s.cancel != nil {
		s.cancel()
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Display server shutdown error", zap.Error(err))
		}
		cancel()
	}
	s.wg.Wait()
	s.closeAll()

	s.logger.Info("HRV service stopped")
	return nil
}

func (s *HRVService) closeAll() {
	if s.source != nil {
		s.source.Disarm()
	}
	if c, ok := s.reader.(io.Closer); ok {
		if err := c.Close(); err != nil {
			s.logger.Warn("Failed to close sample reader", zap.Error(err))
		}
	}
	if s.mqttClient != nil {
		if topic := s.config.Control.Topic; topic != "" {
			if err := s.mqttClient.Unsubscribe(topic); err != nil {
				s.logger.Warn("Failed to unsubscribe control topic", zap.String("topic", topic), zap.Error(err))
			}
		}
		s.mqttClient.Disconnect()
	}
	if s.natsConn != nil {
		s.natsConn.Close()
	}
	if s.redis != nil {
		_ = rediscommon.Close(s.redis)
	}
	if s.db != nil {
		_ = database.Close(s.db)
	}
}
