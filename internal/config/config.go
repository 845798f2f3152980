package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wisefido-hrv/common/config"
	"wisefido-hrv/internal/ring"
)

// 采样源类型
const (
	SourceSim    = "sim"
	SourceSerial = "serial"
	SourceI2C    = "i2c"
)

// 发布通道
const (
	TransportMQTT  = "mqtt"
	TransportNATS  = "nats"
	TransportRedis = "redis"
	TransportNone  = "none"
)

// MaxSampleRate 采样率上限（Hz）
const MaxSampleRate = 10000

// Config HRV 服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	Sampler struct {
		Rate       int    // Hz
		Source     string // sim | serial | i2c
		QueueSize  int
		Overflow   string // drop-newest | overwrite-oldest
		SerialPort string
		SerialBaud int
		I2CBus     string
		I2CAddr    int
		I2CChannel int
		SimHR      float64 // 模拟心率（bpm）
		SimNoise   float64
	}

	Detector struct {
		WindowSize     int
		ThresholdRatio float64
		MinPPI         int
		MaxPPI         int
		MinHR          int
		MaxHR          int
	}

	Session struct {
		Duration       time.Duration
		Debounce       time.Duration
		EventQueueSize int
		PollInterval   time.Duration
	}

	Kubios struct {
		Enabled      bool
		AuthURL      string
		AnalysisURL  string
		ClientID     string
		ClientSecret string
		APIKey       string
		Timeout      time.Duration
		RetryCount   int
	}

	Publish struct {
		Transports []string // mqtt / nats / redis，可组合
		Topic      string
		Stream     string // Redis Streams 名称
		StreamLen  int64
		NATSURL    string
	}

	Control struct {
		Topic    string // MQTT 控制 topic，空表示不订阅
		Stdin    bool
		StartPin string // GPIO 引脚名，空表示不使用
		StopPin  string
	}

	Display struct {
		Addr string // 空表示不启动 HTTP 服务
	}

	DBEnabled bool
	ReportDir string // 空表示不导出 xlsx

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "hrv",
		SSLMode:  "disable",
		MaxConns: 5,
		MaxIdle:  2,
	}
	cfg.Database.LoadFromEnv("DB")
	cfg.DBEnabled = config.GetEnvBool("DB_ENABLED", false)

	cfg.Redis = config.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Broker:         "tcp://localhost:1883",
		ClientID:       "wisefido-hrv",
		QoS:            1,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Sampler.Rate = config.GetEnvInt("SAMPLE_RATE", 250)
	cfg.Sampler.Source = config.GetEnv("SAMPLE_SOURCE", SourceSim)
	cfg.Sampler.QueueSize = config.GetEnvInt("SAMPLE_QUEUE_SIZE", 500)
	cfg.Sampler.Overflow = config.GetEnv("SAMPLE_OVERFLOW", ring.DropNewest.String())
	cfg.Sampler.SerialPort = config.GetEnv("SERIAL_PORT", "/dev/ttyACM0")
	cfg.Sampler.SerialBaud = config.GetEnvInt("SERIAL_BAUD", 115200)
	cfg.Sampler.I2CBus = config.GetEnv("I2C_BUS", "")
	cfg.Sampler.I2CAddr = config.GetEnvInt("I2C_ADDR", 0x48)
	cfg.Sampler.I2CChannel = config.GetEnvInt("I2C_CHANNEL", 0)
	cfg.Sampler.SimHR = config.GetEnvFloat("SIM_HEART_RATE", 72)
	cfg.Sampler.SimNoise = config.GetEnvFloat("SIM_NOISE", 0.01)

	cfg.Detector.WindowSize = config.GetEnvInt("WINDOW_SIZE", 750)
	cfg.Detector.ThresholdRatio = config.GetEnvFloat("THRESHOLD_RATIO", 0.15)
	cfg.Detector.MinPPI = config.GetEnvInt("PPI_MIN", 700)
	cfg.Detector.MaxPPI = config.GetEnvInt("PPI_MAX", 1200)
	cfg.Detector.MinHR = config.GetEnvInt("HR_MIN", 30)
	cfg.Detector.MaxHR = config.GetEnvInt("HR_MAX", 240)

	cfg.Session.Duration = config.GetEnvDuration("SESSION_DURATION", 25*time.Second)
	cfg.Session.Debounce = config.GetEnvDuration("DEBOUNCE", 500*time.Millisecond)
	cfg.Session.EventQueueSize = config.GetEnvInt("EVENT_QUEUE_SIZE", 30)
	cfg.Session.PollInterval = config.GetEnvDuration("POLL_INTERVAL", 10*time.Millisecond)

	cfg.Kubios.Enabled = config.GetEnvBool("KUBIOS_ENABLED", false)
	cfg.Kubios.AuthURL = config.GetEnv("KUBIOS_AUTH_URL", "https://kubioscloud.auth.eu-west-1.amazoncognito.com/oauth2/token")
	cfg.Kubios.AnalysisURL = config.GetEnv("KUBIOS_ANALYSIS_URL", "https://analysis.kubioscloud.com/v2/analytics/analyze")
	cfg.Kubios.ClientID = config.GetEnv("KUBIOS_CLIENT_ID", "")
	cfg.Kubios.ClientSecret = config.GetEnv("KUBIOS_CLIENT_SECRET", "")
	cfg.Kubios.APIKey = config.GetEnv("KUBIOS_API_KEY", "")
	cfg.Kubios.Timeout = config.GetEnvDuration("KUBIOS_TIMEOUT", 15*time.Second)
	cfg.Kubios.RetryCount = config.GetEnvInt("KUBIOS_RETRY", 1)

	cfg.Publish.Transports = splitList(config.GetEnv("PUBLISH_TRANSPORT", TransportMQTT))
	cfg.Publish.Topic = config.GetEnv("PUBLISH_TOPIC", "pico/test")
	cfg.Publish.Stream = config.GetEnv("PUBLISH_STREAM", "hrv:data:stream")
	cfg.Publish.StreamLen = int64(config.GetEnvInt("PUBLISH_STREAM_MAXLEN", 10000))
	cfg.Publish.NATSURL = config.GetEnv("NATS_URL", "nats://127.0.0.1:4222")

	cfg.Control.Topic = config.GetEnv("CONTROL_TOPIC", "")
	cfg.Control.Stdin = config.GetEnvBool("CONTROL_STDIN", false)
	cfg.Control.StartPin = config.GetEnv("GPIO_START_PIN", "")
	cfg.Control.StopPin = config.GetEnv("GPIO_STOP_PIN", "")

	cfg.Display.Addr = config.GetEnv("DISPLAY_ADDR", ":8090")
	cfg.ReportDir = config.GetEnv("REPORT_DIR", "")

	cfg.Log.Level = config.GetEnv("LOG_LEVEL", "info")
	cfg.Log.Format = config.GetEnv("LOG_FORMAT", "json")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	var errs []error

	if c.Sampler.Rate <= 0 || c.Sampler.Rate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("SAMPLE_RATE must be in (0,%d], got %d", MaxSampleRate, c.Sampler.Rate))
	}
	if c.Sampler.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("SAMPLE_QUEUE_SIZE must be positive, got %d", c.Sampler.QueueSize))
	}
	if _, err := ring.ParsePolicy(c.Sampler.Overflow); err != nil {
		errs = append(errs, err)
	}
	switch c.Sampler.Source {
	case SourceSim, SourceSerial, SourceI2C:
	default:
		errs = append(errs, fmt.Errorf("unknown SAMPLE_SOURCE %q", c.Sampler.Source))
	}

	if c.Detector.WindowSize < 3 {
		errs = append(errs, fmt.Errorf("WINDOW_SIZE must be at least 3, got %d", c.Detector.WindowSize))
	}
	if c.Detector.ThresholdRatio < 0 || c.Detector.ThresholdRatio > 1 {
		errs = append(errs, fmt.Errorf("THRESHOLD_RATIO must be in [0,1], got %v", c.Detector.ThresholdRatio))
	}
	if c.Detector.MinPPI <= 0 || c.Detector.MinPPI > c.Detector.MaxPPI {
		errs = append(errs, fmt.Errorf("invalid PPI bounds [%d,%d]", c.Detector.MinPPI, c.Detector.MaxPPI))
	}
	if c.Detector.MinHR <= 0 || c.Detector.MinHR > c.Detector.MaxHR {
		errs = append(errs, fmt.Errorf("invalid HR bounds [%d,%d]", c.Detector.MinHR, c.Detector.MaxHR))
	}

	if c.Session.Duration <= 0 {
		errs = append(errs, errors.New("SESSION_DURATION must be positive"))
	}
	if c.Session.EventQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_QUEUE_SIZE must be positive, got %d", c.Session.EventQueueSize))
	}

	for _, t := range c.Publish.Transports {
		switch t {
		case TransportMQTT, TransportNATS, TransportRedis, TransportNone:
		default:
			errs = append(errs, fmt.Errorf("unknown PUBLISH_TRANSPORT %q", t))
		}
	}

	if c.Kubios.Enabled && (c.Kubios.ClientID == "" || c.Kubios.ClientSecret == "" || c.Kubios.APIKey == "") {
		errs = append(errs, errors.New("KUBIOS_CLIENT_ID, KUBIOS_CLIENT_SECRET and KUBIOS_API_KEY are required when KUBIOS_ENABLED"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Uses 是否启用了某个发布通道
func (c *Config) Uses(transport string) bool {
	for _, t := range c.Publish.Transports {
		if t == transport {
			return true
		}
	}
	return false
}

// NeedsMQTT MQTT 用于发布或控制 topic
func (c *Config) NeedsMQTT() bool {
	return c.Uses(TransportMQTT) || c.Control.Topic != ""
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
