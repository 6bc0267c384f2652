package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/log/writer"
	httplog "github.com/oddbit-project/walletguard/provider/httpserver/log"
	"github.com/oddbit-project/walletguard/provider/httpserver/response"
)

type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`
	WriteTimeout int    `json:"writeTimeout"`
	Debug        bool   `json:"debug"`
	Name         string `json:"name"`
	// TrustedProxies lists the proxies allowed to set X-Forwarded-For; empty trusts none
	TrustedProxies []string `json:"trustedProxies"`
}

type Server struct {
	Config *ServerConfig
	Router *gin.Engine
	Server *http.Server
}

func NewServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:           "",
		Port:           ServerDefaultPort,
		ReadTimeout:    ServerDefaultReadTimeout,
		WriteTimeout:   ServerDefaultWriteTimeout,
		Name:           ServerDefaultName,
		TrustedProxies: []string{},
	}
}

func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	return nil
}

// NewRouter creates a new gin router with request logging and panic recovery
func NewRouter(cfg *ServerConfig, logger *log.Logger) (*gin.Engine, error) {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	router.Use(httplog.HTTPLogMiddleware(logger))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		response.Http500(c, fmt.Errorf("panic: %v", recovered))
	}))
	router.NoRoute(response.Http404)
	return router, nil
}

// NewServer creates a new http server; logger may be nil
func NewServer(cfg *ServerConfig, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name := cfg.Name
	if name == "" {
		name = ServerDefaultName
	}
	if logger == nil {
		logger = log.New(name)
	}

	router, err := NewRouter(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Server{
		Config: cfg,
		Router: router,
		Server: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           router,
			ReadTimeout:       time.Duration(cfg.ReadTimeout) * time.Second,
			ReadHeaderTimeout: time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout:      time.Duration(cfg.WriteTimeout) * time.Second,
			ErrorLog:          writer.NewErrorLog(logger),
		},
	}, nil
}

// AddMiddleware adds a middleware to every route registered afterwards
func (s *Server) AddMiddleware(middlewareFunc gin.HandlerFunc) {
	s.Router.Use(middlewareFunc)
}

// Group creates a new RouterGroup with the specified relativePath
func (s *Server) Group(relativePath string) *gin.RouterGroup {
	return s.Router.Group(relativePath)
}

func (s *Server) Route() *gin.Engine {
	return s.Router
}

// Start blocks serving requests; returns nil after Shutdown
func (s *Server) Start() error {
	err := s.Server.ListenAndServe()
	// when Shutdown() is called, the return error is http.ErrServerClosed
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
