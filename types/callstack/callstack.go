package callstack

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
)

// CallableFn is a deferred shutdown handler
type CallableFn func() error

// CallStack keeps a LIFO list of handlers, typically resource destructors
type CallStack struct {
	handlers []CallableFn
	mu       sync.Mutex
}

// NewCallStack creates an empty CallStack
func NewCallStack() *CallStack {
	return &CallStack{
		handlers: make([]CallableFn, 0),
	}
}

// Add registers a handler
func (c *CallStack) Add(fn CallableFn) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Len returns the number of registered handlers
func (c *CallStack) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}

// Run executes all handlers in reverse registration order and empties the stack.
// If abortOnError is true, execution stops on the first failing handler; otherwise all
// handlers run and their errors are joined
func (c *CallStack) Run(abortOnError bool) error {
	c.mu.Lock()
	handlers := c.handlers
	c.handlers = make([]CallableFn, 0)
	c.mu.Unlock()

	var errs []error
	for i := len(handlers) - 1; i >= 0; i-- {
		if err := handlers[i](); err != nil {
			if abortOnError {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns the current goroutine stack as "file:line function" entries,
// skipping the first skip frames above the caller and any runtime frames
func Get(skip int) []string {
	const depth = 32
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	result := make([]string, 0, n)
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "runtime/") {
			result = append(result, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return result
}
