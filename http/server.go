// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mswebapp/monitoring"
)

const maxRequestBody = 1 << 20

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	Logger         *zap.Logger
	Metrics        *monitoring.Metrics
	Templates      *Templates
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           5000,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Metrics == nil {
		c.Metrics = monitoring.NewMetrics()
	}
	if c.Templates == nil {
		c.Templates = mustEmbeddedTemplates(c.Logger)
	}
	return c
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig) *Server {
	config = config.withDefaults()

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewHandler(config),
			ReadTimeout:       config.Timeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      config.Timeout + 5*time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
	}
}

// NewHandler 注册路由并包装中间件链
func NewHandler(config ServerConfig) http.Handler {
	config = config.withDefaults()
	mux := http.NewServeMux()

	// 注册所有处理器
	RegisterHandlers(mux, config.Templates, config.Logger, config.Metrics)
	mux.Handle("GET /metrics", config.Metrics.Handler())

	// 创建中间件链
	chain := Chain(
		RecoveryMiddleware(config.Logger),     // 1. 恢复中间件（最先执行，捕获panic）
		LoggerMiddleware(config.Logger),       // 2. 日志中间件
		SecurityHeadersMiddleware,             // 3. 安全头中间件
		CORSMiddleware(config.AllowedOrigins), // 4. CORS中间件
		RequestSizeMiddleware(maxRequestBody), // 5. 请求体大小限制
		TimeoutMiddleware(config.Timeout),     // 6. 超时中间件
		MetricsMiddleware(config.Metrics),     // 7. 指标中间件（最内层）
	)

	return chain(mux)
}

// Start 启动服务器
func (s *Server) Start() error {
	s.config.Logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop(ctx context.Context) error {
	s.config.Logger.Info("shutting down HTTP server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Handler 返回包装好中间件的处理器
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
