package walletguard

import (
	"sync"

	"github.com/oddbit-project/walletguard/types/callstack"
)

var shutdownMx sync.Mutex

// GetDestructorManager returns the container destructor stack
func (c *Container) GetDestructorManager() *callstack.CallStack {
	return c.destructors
}

// RegisterDestructor registers a function to perform shutdown procedures.
// Destructors run in reverse registration order
func (c *Container) RegisterDestructor(fn callstack.CallableFn) {
	c.destructors.Add(fn)
}

// Shutdown runs every registered destructor once; errors are joined
func (c *Container) Shutdown() error {
	shutdownMx.Lock()
	defer shutdownMx.Unlock()
	return c.destructors.Run(false)
}
