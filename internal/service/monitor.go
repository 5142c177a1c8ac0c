package service

import (
	"context"
	"fmt"
	"time"

	"github.com/AniketZimane/EduVision-AI/internal/clock"
	"github.com/AniketZimane/EduVision-AI/internal/config"
	"github.com/AniketZimane/EduVision-AI/internal/emitter"
	httpapi "github.com/AniketZimane/EduVision-AI/internal/http"
	"github.com/AniketZimane/EduVision-AI/internal/hub"
	"github.com/AniketZimane/EduVision-AI/internal/inference"
	"github.com/AniketZimane/EduVision-AI/internal/store"

	mqttcommon "github.com/AniketZimane/EduVision-AI/common/mqtt"
	rediscommon "github.com/AniketZimane/EduVision-AI/common/redis"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// statsInterval 网关计数日志周期
const statsInterval = time.Minute

// Dependencies 可替换的外部依赖（测试中注入）
type Dependencies struct {
	Analyzer inference.Analyzer
	Events   store.EventLog
	Emitters []emitter.Emitter
}

// MonitorService 监控网关：学生/教师 websocket 通道、事件历史与下游转发
type MonitorService struct {
	config      *config.Config
	logger      *zap.Logger
	redisClient *redis.Client
	mqttClient  *mqttcommon.Client
	hub         *hub.Manager
	gateway     *httpapi.Gateway
	server      *Server
}

// NewMonitorService 按配置连接 Redis / MQTT 并创建服务
func NewMonitorService(cfg *config.Config, logger *zap.Logger) (*MonitorService, error) {
	var redisClient *redis.Client
	if cfg.Store.Backend == config.StoreRedis || cfg.Stream.Enabled {
		redisClient = rediscommon.NewRedisClient(&cfg.Redis)
		if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	deps := Dependencies{
		Analyzer: inference.NewHTTPAnalyzer(cfg.Inference.URL, cfg.Inference.Timeout, clock.Real(), logger),
	}

	if cfg.Store.Backend == config.StoreRedis {
		deps.Events = store.NewRedisLog(redisClient, cfg.Store.Key, cfg.Store.Capacity, logger)
	} else {
		deps.Events = store.NewMemoryLog(cfg.Store.Capacity)
	}

	if cfg.Stream.Enabled {
		deps.Emitters = append(deps.Emitters, emitter.NewStreamEmitter(redisClient, cfg.Stream.Name, cfg.Stream.MaxLen))
	}

	var mqttClient *mqttcommon.Client
	if cfg.Alerts.Enabled {
		c, err := mqttcommon.NewClient(&cfg.MQTT, logger)
		if err != nil {
			if redisClient != nil {
				_ = rediscommon.Close(redisClient)
			}
			return nil, fmt.Errorf("failed to connect to mqtt: %w", err)
		}
		mqttClient = c
		deps.Emitters = append(deps.Emitters, emitter.NewAlertEmitter(c, cfg.Alerts.TopicPrefix, cfg.MQTT.QoS))
	}

	s := NewMonitorServiceWith(cfg, deps, logger)
	s.redisClient = redisClient
	s.mqttClient = mqttClient
	return s, nil
}

// NewMonitorServiceWith 使用给定依赖创建服务
func NewMonitorServiceWith(cfg *config.Config, deps Dependencies, logger *zap.Logger) *MonitorService {
	if deps.Events == nil {
		deps.Events = store.NewMemoryLog(cfg.Store.Capacity)
	}

	h := hub.NewManager(cfg.Hub.QueueSize, cfg.Hub.WriteTimeout, logger)
	cors := httpapi.NewCORS(cfg.HTTP.AllowedOrigins)
	gateway := httpapi.NewGateway(httpapi.GatewayOptions{
		Analyzer: deps.Analyzer,
		Events:   deps.Events,
		Hub:      h,
		Emitter:  emitter.NewMulti(logger, deps.Emitters...),
		CORS:     cors,
	}, logger)

	router := httpapi.NewRouter(cors, logger)
	router.RegisterGatewayRoutes(gateway)

	return &MonitorService{
		config:  cfg,
		logger:  logger,
		hub:     h,
		gateway: gateway,
		server:  NewServer(cfg.HTTP.Addr, router, logger),
	}
}

// Start 启动 HTTP 服务器，阻塞直到 ctx 取消或服务器出错
func (s *MonitorService) Start(ctx context.Context) error {
	s.logger.Info("Starting eduvision monitor service",
		zap.String("addr", s.config.HTTP.Addr),
		zap.String("event_store", s.config.Store.Backend),
		zap.Bool("stream_enabled", s.config.Stream.Enabled),
		zap.Bool("alerts_enabled", s.config.Alerts.Enabled),
	)

	if err := s.server.Listen(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve()
	}()

	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		case <-ticker.C:
			stats := s.gateway.Stats()
			s.logger.Info("Gateway stats",
				zap.Uint64("frames_received", stats.FramesReceived),
				zap.Uint64("frames_skipped", stats.FramesSkipped),
				zap.Uint64("events_analyzed", stats.EventsAnalyzed),
				zap.Int("connections", stats.Connections),
				zap.Int("teachers", s.hub.Count()),
			)
		}
	}
}

// Addr 实际监听地址
func (s *MonitorService) Addr() string { return s.server.Addr() }

// Stop 停止服务
func (s *MonitorService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping eduvision monitor service")

	err := s.server.Stop(ctx)
	s.gateway.CloseAll()
	s.hub.Close()

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}
	if s.redisClient != nil {
		if cerr := rediscommon.Close(s.redisClient); cerr != nil {
			s.logger.Warn("Failed to close redis client", zap.Error(cerr))
		}
	}
	return err
}
