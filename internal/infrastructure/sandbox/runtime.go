package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// Config bounds a runtime
type Config struct {
	Timeout       time.Duration // per script
	MaxCallStack  int
	EnableConsole bool
}

// DefaultConfig returns limits suited to small inline page scripts
func DefaultConfig() Config {
	return Config{
		Timeout:       250 * time.Millisecond,
		MaxCallStack:  1024,
		EnableConsole: true,
	}
}

// LogEntry is one console call
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// ScriptError records a script that failed to evaluate
type ScriptError struct {
	Index int
	Err   error
}

func (e ScriptError) Error() string {
	return fmt.Sprintf("script %d: %v", e.Index, e.Err)
}

func (e ScriptError) Unwrap() error { return e.Err }

// Runtime wraps one goja VM standing in for a page's window
type Runtime struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	config  Config
	console []LogEntry
}

// New creates a runtime with window, console and timer globals installed
func New(config Config) (*Runtime, error) {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	r := &Runtime{vm: goja.New(), config: config}
	if config.MaxCallStack > 0 {
		r.vm.SetMaxCallStackSize(config.MaxCallStack)
	}
	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return fmt.Errorf("unset %s: %w", name, err)
		}
	}

	global := r.vm.GlobalObject()
	if err := r.vm.Set("window", global); err != nil {
		return err
	}
	if err := r.vm.Set("self", global); err != nil {
		return err
	}

	if r.config.EnableConsole {
		console := r.vm.NewObject()
		for _, level := range []string{"log", "info", "warn", "error", "debug"} {
			if err := console.Set(level, r.consoleFunc(level)); err != nil {
				return err
			}
		}
		if err := r.vm.Set("console", console); err != nil {
			return err
		}
	}

	inert := func(goja.FunctionCall) goja.Value { return r.vm.ToValue(0) }
	for _, name := range []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"} {
		if err := r.vm.Set(name, inert); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runtime) consoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		var msg string
		for i, arg := range call.Arguments {
			if i > 0 {
				msg += " "
			}
			msg += arg.String()
		}
		r.console = append(r.console, LogEntry{Level: level, Message: msg, Time: time.Now()})
		return goja.Undefined()
	}
}

// Run evaluates scripts in order, each under its own timeout, and returns
// the scripts that failed.
func (r *Runtime) Run(ctx context.Context, scripts ...string) []ScriptError {
	r.mu.Lock()
	defer r.mu.Unlock()

	var failed []ScriptError
	for i, src := range scripts {
		if err := r.runOne(ctx, src); err != nil {
			failed = append(failed, ScriptError{Index: i, Err: err})
		}
		if ctx.Err() != nil {
			break
		}
	}
	return failed
}

func (r *Runtime) runOne(ctx context.Context, src string) error {
	timer := time.NewTimer(r.config.Timeout)
	defer timer.Stop()

	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		select {
		case <-timer.C:
			r.vm.Interrupt("execution timeout exceeded")
		case <-ctx.Done():
			r.vm.Interrupt("context cancelled")
		case <-done:
		}
	}()

	_, err := r.vm.RunString(src)
	close(done)
	<-exited
	r.vm.ClearInterrupt()
	return err
}

// Global exports a global by name. Missing, undefined and null globals
// report false.
func (r *Runtime) Global(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.vm.Get(name)
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil, false
	}
	return v.Export(), true
}

// Truthy applies JavaScript truthiness to a global
func (r *Runtime) Truthy(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := r.vm.Get(name)
	if v == nil {
		return false
	}
	return v.ToBoolean()
}

// Console returns a copy of recorded console output
func (r *Runtime) Console() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]LogEntry(nil), r.console...)
}
