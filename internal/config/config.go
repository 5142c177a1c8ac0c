package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AniketZimane/EduVision-AI/common/config"
)

// Config 监控网关与客户端共用的配置
type Config struct {
	HTTP struct {
		Addr string
		// AllowedOrigins 浏览器前端来源，为空时允许所有来源
		AllowedOrigins []string
	}

	Redis config.RedisConfig
	MQTT  config.MQTTConfig

	// Store 事件历史（memory 或 redis）
	Store struct {
		Backend  string
		Key      string
		Capacity int
	}

	Inference struct {
		URL     string
		Timeout time.Duration
	}

	Hub struct {
		QueueSize    int
		WriteTimeout time.Duration
	}

	// Stream 每个事件写入 Redis Stream
	Stream struct {
		Enabled bool
		Name    string
		MaxLen  int64
	}

	// Alerts 告警事件发布到 MQTT
	Alerts struct {
		Enabled     bool
		TopicPrefix string
	}

	// Capture 学生端采集参数
	Capture struct {
		Interval    time.Duration
		Warmup      time.Duration
		JPEGQuality int
		SourceDir   string // 为空时使用合成画面
		Width       int
		Height      int
	}

	// Observer 客户端连接参数
	Observer struct {
		GatewayURL   string
		ReportPeriod time.Duration
		Timezone     string
	}

	Log struct {
		Level  string
		Format string
	}
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Load 加载配置（环境变量，带默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8000")
	cfg.HTTP.AllowedOrigins = splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"))

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "eduvision-monitor"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Store.Backend = strings.ToLower(getEnv("EVENT_STORE", StoreMemory))
	if cfg.Store.Backend != StoreRedis {
		cfg.Store.Backend = StoreMemory
	}
	cfg.Store.Key = getEnv("EVENT_STORE_KEY", "eduvision:session:events")
	cfg.Store.Capacity = getInt("EVENT_STORE_CAPACITY", 1000)

	cfg.Inference.URL = getEnv("INFERENCE_URL", "http://localhost:8001")
	cfg.Inference.Timeout = getDuration("INFERENCE_TIMEOUT", 2*time.Second)

	cfg.Hub.QueueSize = getInt("HUB_QUEUE_SIZE", 64)
	cfg.Hub.WriteTimeout = getDuration("HUB_WRITE_TIMEOUT", 5*time.Second)

	cfg.Stream.Enabled = getEnv("STREAM_ENABLED", "false") == "true"
	cfg.Stream.Name = getEnv("STREAM_NAME", "eduvision:analysis")
	cfg.Stream.MaxLen = int64(getInt("STREAM_MAXLEN", 10000))

	cfg.Alerts.Enabled = getEnv("ALERTS_ENABLED", "false") == "true"
	cfg.Alerts.TopicPrefix = getEnv("ALERTS_TOPIC_PREFIX", "eduvision")

	cfg.Capture.Interval = getDuration("CAPTURE_INTERVAL", 200*time.Millisecond)
	cfg.Capture.Warmup = getDuration("CAPTURE_WARMUP", 500*time.Millisecond)
	cfg.Capture.JPEGQuality = getInt("CAPTURE_JPEG_QUALITY", 80)
	cfg.Capture.SourceDir = getEnv("CAPTURE_SOURCE_DIR", "")
	cfg.Capture.Width = getInt("CAPTURE_WIDTH", 640)
	cfg.Capture.Height = getInt("CAPTURE_HEIGHT", 480)

	cfg.Observer.GatewayURL = getEnv("GATEWAY_URL", "ws://localhost:8000")
	cfg.Observer.ReportPeriod = getDuration("OBSERVER_REPORT_PERIOD", 5*time.Second)
	cfg.Observer.Timezone = getEnv("OBSERVER_TIMEZONE", "Local")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getInt 非法或非正值使用默认值
func getInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

// getDuration 接受 time.ParseDuration 格式（如 "250ms"）
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
