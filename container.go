// Package walletguard hosts the application container that runs the wallet
// security services and tears them down in order.
package walletguard

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/oddbit-project/walletguard/config"
	"github.com/oddbit-project/walletguard/log"
	"github.com/oddbit-project/walletguard/types/callstack"
)

type RuntimeFn func(c *Container) error

type Container struct {
	Config    config.ConfigProvider
	Context   context.Context
	CancelCtx context.CancelFunc
	Logger    *log.Logger

	destructors *callstack.CallStack
	exit        func(code int)
}

// NewContainer creates a container runtime with the specified config provider and a new application context
func NewContainer(cfg config.ConfigProvider, logger *log.Logger) *Container {
	ctx, cancelFn := context.WithCancel(context.Background())
	if logger == nil {
		logger = log.New("walletguard")
	}
	return &Container{
		Config:      cfg,
		Context:     ctx,
		CancelCtx:   cancelFn,
		Logger:      logger,
		destructors: callstack.NewCallStack(),
		exit:        os.Exit,
	}
}

// GetContext helper function to retrieve context
func (c *Container) GetContext() context.Context {
	return c.Context
}

// Run executes mainFn in order; each must be non-blocking.
// The container then waits for SIGINT, SIGTERM or SIGHUP, or for the application
// context to be cancelled, and terminates in an orderly fashion
func (c *Container) Run(mainFn ...RuntimeFn) {
	monitor := make(chan os.Signal, 1)
	signal.Notify(monitor, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(monitor)

	for _, fn := range mainFn {
		if err := fn(c); err != nil {
			c.Terminate(err)
			return
		}
	}

	select {
	case sig := <-monitor:
		c.Logger.Info("shutting down application", log.KV{"signal": sig.String()})
		c.CancelCtx()
	case <-c.Context.Done():
	}
	c.Terminate(nil)
}

// AbortFatal aborts execution in case of fatal error
func (c *Container) AbortFatal(err error) {
	if err != nil {
		c.Terminate(err)
	}
}

// Terminate runs the destructors and exits to the operating system
func (c *Container) Terminate(err error) {
	retCode := 0
	if err != nil {
		retCode = -1
		c.Logger.Error(err, "fatal error")
	}
	if c.CancelCtx != nil && !errors.Is(c.Context.Err(), context.Canceled) {
		c.CancelCtx()
	}
	if shutdownErr := c.Shutdown(); shutdownErr != nil {
		c.Logger.Error(shutdownErr, "error while shutting down")
		retCode = -1
	}
	c.exit(retCode)
}
