package main

import (
	"context"
	"time"

	"github.com/oddbit-project/walletguard"
	"github.com/oddbit-project/walletguard/api"
	"github.com/oddbit-project/walletguard/config"
	"github.com/oddbit-project/walletguard/gateway"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/provider/httpserver"
	httpsecurity "github.com/oddbit-project/walletguard/provider/httpserver/security"
	"github.com/oddbit-project/walletguard/provider/kv"
	"github.com/oddbit-project/walletguard/provider/metrics"
	"github.com/oddbit-project/walletguard/provider/nats"
	"github.com/oddbit-project/walletguard/provider/ratelimiter"
	"github.com/oddbit-project/walletguard/provider/redis"
	"github.com/oddbit-project/walletguard/provider/sqlite"
	"github.com/oddbit-project/walletguard/recovery"
	"github.com/oddbit-project/walletguard/security"
	"github.com/oddbit-project/walletguard/telegram"
	"github.com/oddbit-project/walletguard/utils"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSqlite = "sqlite"

	shutdownTimeout = 15 * time.Second

	ErrInvalidStore = utils.Error("store type must be one of memory, redis or sqlite")
)

type StoreConfig struct {
	Type string `json:"type"`
}

func (c *StoreConfig) Validate() error {
	switch c.Type {
	case StoreMemory, StoreRedis, StoreSqlite:
		return nil
	}
	return ErrInvalidStore
}

// BusConfig holds the optional NATS endpoints; absent sections fall back to logging
type BusConfig struct {
	Alerts     *nats.ProducerConfig `json:"alerts"`
	Recovery   *nats.ProducerConfig `json:"recovery"`
	Acceptance *nats.ConsumerConfig `json:"acceptance"`
}

func (c *BusConfig) Validate() error {
	if c.Alerts != nil {
		if err := c.Alerts.Validate(); err != nil {
			return err
		}
	}
	if c.Recovery != nil {
		if err := c.Recovery.Validate(); err != nil {
			return err
		}
	}
	if c.Acceptance != nil {
		return c.Acceptance.Validate()
	}
	return nil
}

// Application wires the wallet security services behind the http api
type Application struct {
	container *walletguard.Container
	logger    *log.Logger

	store      kv.KV
	gateway    *gateway.Gateway
	validator  *telegram.Validator
	limiter    *ratelimiter.RateLimiter
	security   *security.Manager
	recovery   *recovery.Manager
	contacts   *recovery.ContactDirectory
	consumer   *nats.Consumer
	httpServer *httpserver.Server
	metrics    *metrics.Server
}

func NewApplication(cfg config.ConfigProvider, logger *log.Logger) *Application {
	return &Application{
		container: walletguard.NewContainer(cfg, logger),
		logger:    logger,
	}
}

func loadKey(p config.ConfigProvider, key string, dest interface{}) error {
	return config.Load(p, key, dest)
}

// Build assembles the application; any error aborts execution
func (a *Application) Build() {
	a.logger.Info("building application")
	c := a.container
	c.AbortFatal(a.buildStore())

	secMetrics := security.NewMetrics()
	metricsCfg := metrics.NewConfig()
	c.AbortFatal(loadKey(c.Config, "metrics", metricsCfg))
	if metricsCfg.Enabled {
		var err error
		a.metrics, err = metrics.NewServer(metricsCfg, secMetrics.Collectors()...)
		c.AbortFatal(err)
	}

	bus := &BusConfig{}
	c.AbortFatal(loadKey(c.Config, "nats", bus))

	gwCfg := gateway.NewConfig()
	c.AbortFatal(loadKey(c.Config, "gateway", gwCfg))
	gw, err := gateway.New(gwCfg)
	c.AbortFatal(err)
	a.gateway = gw
	c.RegisterDestructor(func() error {
		gw.Close()
		return nil
	})

	tgCfg := telegram.NewConfig()
	c.AbortFatal(loadKey(c.Config, "telegram", tgCfg))
	a.validator, err = telegram.NewValidator(tgCfg)
	c.AbortFatal(err)
	c.RegisterDestructor(func() error {
		a.validator.Close()
		return nil
	})

	limiterCfg := ratelimiter.NewConfig()
	c.AbortFatal(loadKey(c.Config, "apiRateLimit", limiterCfg))
	a.limiter, err = ratelimiter.NewRateLimiter(limiterCfg)
	c.AbortFatal(err)

	// security manager
	notifiers := security.MultiNotifier{security.NewLogNotifier(log.NewWithComponent("security", "alerts"))}
	if bus.Alerts != nil {
		producer, err := nats.NewProducer(bus.Alerts, nil)
		c.AbortFatal(err)
		c.RegisterDestructor(func() error {
			producer.Disconnect()
			return nil
		})
		notifiers = append(notifiers, security.NewPublisherNotifier(producer))
	}
	secCfg := security.NewConfig()
	c.AbortFatal(loadKey(c.Config, "security", secCfg))
	a.security, err = security.NewManager(secCfg, a.store,
		security.WithNotifier(notifiers),
		security.WithMetrics(secMetrics),
	)
	c.AbortFatal(err)

	// recovery manager
	var messenger recovery.Messenger = recovery.NewLogMessenger(log.NewWithComponent("recovery", "messenger"))
	if bus.Recovery != nil {
		producer, err := nats.NewProducer(bus.Recovery, nil)
		c.AbortFatal(err)
		c.RegisterDestructor(func() error {
			producer.Disconnect()
			return nil
		})
		messenger = recovery.NewNatsMessenger(producer, bus.Recovery.Subject)
	}
	a.contacts = recovery.NewContactDirectory(a.store)
	recCfg := recovery.NewConfig()
	c.AbortFatal(loadKey(c.Config, "recovery", recCfg))
	a.recovery, err = recovery.NewManager(recCfg, a.store,
		recovery.WithContactSource(a.contacts),
		recovery.WithMessenger(messenger),
		recovery.WithAuditor(a.security),
	)
	c.AbortFatal(err)
	if bus.Acceptance != nil {
		a.consumer, err = nats.NewConsumer(bus.Acceptance, nil)
		c.AbortFatal(err)
	}

	// http api
	serverCfg := httpserver.NewServerConfig()
	c.AbortFatal(loadKey(c.Config, "server", serverCfg))
	a.httpServer, err = httpserver.NewServer(serverCfg, log.New("http"))
	c.AbortFatal(err)

	headersCfg := httpsecurity.NewSecurityConfig()
	c.AbortFatal(loadKey(c.Config, "headers", headersCfg))
	a.httpServer.AddMiddleware(httpsecurity.Headers(headersCfg, gw))

	apiCfg := api.NewConfig()
	c.AbortFatal(loadKey(c.Config, "api", apiCfg))
	handler, err := api.New(apiCfg, api.Services{
		Gateway:   gw,
		Security:  a.security,
		Recovery:  a.recovery,
		Contacts:  a.contacts,
		Validator: a.validator,
		Limiter:   a.limiter,
	}, api.WithLogger(log.NewWithComponent("api", "handler")))
	c.AbortFatal(err)
	handler.Register(a.httpServer.Route())
}

func (a *Application) buildStore() error {
	c := a.container
	storeCfg := &StoreConfig{Type: StoreMemory}
	if err := loadKey(c.Config, "store", storeCfg); err != nil {
		return err
	}

	switch storeCfg.Type {
	case StoreRedis:
		redisCfg := redis.NewConfig()
		if err := loadKey(c.Config, "redis", redisCfg); err != nil {
			return err
		}
		client, err := redis.NewClient(redisCfg)
		if err != nil {
			return err
		}
		if err = client.Connect(); err != nil {
			return err
		}
		c.RegisterDestructor(client.Close)
		a.store = client

	case StoreSqlite:
		sqliteCfg := sqlite.NewConfig()
		if err := loadKey(c.Config, "sqlite", sqliteCfg); err != nil {
			return err
		}
		db, err := sqlite.NewKV(sqliteCfg)
		if err != nil {
			return err
		}
		c.RegisterDestructor(db.Close)
		a.store = db

	default:
		a.store = kv.NewMemoryKV()
	}
	a.logger.Info("state store ready", log.KV{"type": storeCfg.Type})
	return nil
}

// Run starts the background workers and servers, then blocks until shutdown.
// Destructors run in reverse order, so servers stop before the managers they call
func (a *Application) Run() {
	c := a.container

	a.limiter.Start()
	c.RegisterDestructor(func() error {
		return a.shutdown(a.limiter.Shutdown)
	})
	a.security.Start()
	c.RegisterDestructor(func() error {
		return a.shutdown(a.security.Shutdown)
	})
	a.recovery.Start()
	c.RegisterDestructor(func() error {
		return a.shutdown(a.recovery.Shutdown)
	})

	if a.consumer != nil {
		c.RegisterDestructor(func() error {
			a.consumer.Disconnect()
			return nil
		})
		handler := recovery.NewAcceptanceHandler(a.recovery)
		c.AbortFatal(a.consumer.Subscribe(c.GetContext(), handler.Consume))
	}

	if a.metrics != nil {
		c.RegisterDestructor(func() error {
			return a.shutdown(a.metrics.Shutdown)
		})
	}
	c.RegisterDestructor(func() error {
		return a.shutdown(a.httpServer.Shutdown)
	})

	c.Run(func(c *walletguard.Container) error {
		if a.metrics != nil {
			go func() {
				a.logger.Info("serving metrics")
				c.AbortFatal(a.metrics.Start())
			}()
		}
		go func() {
			a.logger.Info("serving api", log.KV{
				"host": a.httpServer.Config.Host,
				"port": a.httpServer.Config.Port,
			})
			c.AbortFatal(a.httpServer.Start())
		}()
		return nil
	})
}

// shutdown runs fn with a fresh deadline; the application context is already cancelled at this point
func (a *Application) shutdown(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return fn(ctx)
}
