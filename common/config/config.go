package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// LoadFromEnv 从环境变量加载配置（未设置的键保留原值）
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	c.Host = GetEnv(prefix+"_HOST", c.Host)
	c.Port = GetEnvInt(prefix+"_PORT", c.Port)
	c.User = GetEnv(prefix+"_USER", c.User)
	c.Password = GetEnv(prefix+"_PASSWORD", c.Password)
	c.Database = GetEnv(prefix+"_NAME", c.Database)
	c.SSLMode = GetEnv(prefix+"_SSLMODE", c.SSLMode)
	c.MaxConns = GetEnvInt(prefix+"_MAX_CONNS", c.MaxConns)
	c.MaxIdle = GetEnvInt(prefix+"_MAX_IDLE", c.MaxIdle)
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	c.Addr = GetEnv(prefix+"_ADDR", c.Addr)
	c.Password = GetEnv(prefix+"_PASSWORD", c.Password)
	c.DB = GetEnvInt(prefix+"_DB", c.DB)
}

// LoadFromEnv 从环境变量加载MQTT配置
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	c.Broker = GetEnv(prefix+"_BROKER", c.Broker)
	c.ClientID = GetEnv(prefix+"_CLIENT_ID", c.ClientID)
	c.Username = GetEnv(prefix+"_USERNAME", c.Username)
	c.Password = GetEnv(prefix+"_PASSWORD", c.Password)
	c.QoS = byte(GetEnvInt(prefix+"_QOS", int(c.QoS)))
	c.ConnectTimeout = GetEnvDuration(prefix+"_CONNECT_TIMEOUT", c.ConnectTimeout)
	c.PublishTimeout = GetEnvDuration(prefix+"_PUBLISH_TIMEOUT", c.PublishTimeout)
}

// GetEnv 读取字符串环境变量，未设置时返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetEnvInt 读取整数环境变量，解析失败时返回默认值
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// GetEnvFloat 读取浮点环境变量
func GetEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvBool 读取布尔环境变量（"true"/"1"/"false"/"0"）
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvDuration 读取时长环境变量，如 "25s"、"500ms"
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
