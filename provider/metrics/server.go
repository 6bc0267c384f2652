// Package metrics exposes Prometheus metrics on a dedicated listener
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oddbit-project/walletguard/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ErrInvalidPort     = utils.Error("metrics port must be between 1 and 65535")
	ErrInvalidEndpoint = utils.Error("metrics endpoint must start with /")

	DefaultReadTimeout  = 600
	DefaultWriteTimeout = 600
	DefaultHost         = "localhost"
	DefaultPort         = 2201
	DefaultEndpoint     = "/metrics"
)

type Config struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Endpoint     string `json:"endpoint"`
	ReadTimeout  int    `json:"readTimeout"`
	WriteTimeout int    `json:"writeTimeout"`
}

type Server struct {
	server   *http.Server
	registry *prometheus.Registry
}

func NewConfig() *Config {
	return &Config{
		Enabled:      true,
		Host:         DefaultHost,
		Port:         DefaultPort,
		ReadTimeout:  DefaultReadTimeout,
		WriteTimeout: DefaultWriteTimeout,
		Endpoint:     DefaultEndpoint,
	}
}

func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if len(c.Endpoint) == 0 || c.Endpoint[0] != '/' {
		return ErrInvalidEndpoint
	}
	return nil
}

// NewRegistry returns a registry holding the process and Go runtime collectors plus cs
func NewRegistry(cs ...prometheus.Collector) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	all := append([]prometheus.Collector{
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	}, cs...)
	for _, c := range all {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// NewServer creates a metrics server exposing a private registry with cs registered
func NewServer(cfg *Config, cs ...prometheus.Collector) (*Server, error) {
	if cfg == nil {
		cfg = NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	registry, err := NewRegistry(cs...)
	if err != nil {
		return nil, err
	}

	router := http.NewServeMux()
	router.Handle(cfg.Endpoint, promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
		registry: registry,
	}, nil
}

// Registry returns the registry backing the endpoint
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the http handler serving the endpoint
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start blocks serving metrics; returns nil after Shutdown
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
