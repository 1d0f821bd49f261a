package autobet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dop251/goja"
)

var (
	// ErrScript wraps errors thrown by the script.
	ErrScript = errors.New("script error")

	// ErrScriptTimeout is returned when a script call runs past its budget.
	ErrScriptTimeout = errors.New("script timed out")
)

// LogEntry is one message written by the script with log().
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM is a sandboxed goja runtime. It is not safe for concurrent use; the
// runner drives it from a single goroutine.
type VM struct {
	runtime *goja.Runtime
	timeout time.Duration

	logs    []LogEntry
	maxLogs int

	stopRequested  bool
	resetRequested bool
}

// NewVM creates a runtime with the strategy globals installed. Each call
// into the script is interrupted after timeout.
func NewVM(timeout time.Duration) *VM {
	vm := &VM{
		runtime: goja.New(),
		timeout: timeout,
		maxLogs: 500,
	}
	vm.injectGlobalFunctions()
	return vm
}

// injectGlobalFunctions registers log, console.log, stop and resetstats
// and removes code-loading globals.
func (vm *VM) injectGlobalFunctions() {
	logFn := func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		if len(vm.logs) >= vm.maxLogs {
			vm.logs = vm.logs[1:]
		}
		vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: strings.Join(parts, " ")})
		return goja.Undefined()
	}
	_ = vm.runtime.Set("log", logFn)

	console := vm.runtime.NewObject()
	_ = console.Set("log", logFn)
	_ = vm.runtime.Set("console", console)

	_ = vm.runtime.Set("stop", func(goja.FunctionCall) goja.Value {
		vm.stopRequested = true
		return goja.Undefined()
	})

	_ = vm.runtime.Set("resetstats", func(goja.FunctionCall) goja.Value {
		vm.resetRequested = true
		return goja.Undefined()
	})

	for _, name := range []string{"require", "fetch", "XMLHttpRequest", "eval", "Function"} {
		_ = vm.runtime.Set(name, goja.Undefined())
	}
}

// Execute runs the script body once, which defines dobet() and sets the
// starting variables.
func (vm *VM) Execute(ctx context.Context, source string) error {
	return vm.guard(ctx, func() error {
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("%w: %w", ErrScript, err)
		}
		return nil
	})
}

// HasDobet reports whether the script defined a dobet function.
func (vm *VM) HasDobet() bool {
	_, ok := goja.AssertFunction(vm.runtime.Get("dobet"))
	return ok
}

// CallDobet calls the user-defined dobet() function.
func (vm *VM) CallDobet(ctx context.Context) error {
	fn, ok := goja.AssertFunction(vm.runtime.Get("dobet"))
	if !ok {
		return errors.New("dobet is not a function")
	}
	return vm.guard(ctx, func() error {
		if _, err := fn(goja.Undefined()); err != nil {
			return fmt.Errorf("%w: dobet(): %w", ErrScript, err)
		}
		return nil
	})
}

// guard runs fn with the call budget. The runtime is interrupted when the
// budget runs out or ctx is cancelled.
func (vm *VM) guard(ctx context.Context, fn func() error) error {
	vm.runtime.ClearInterrupt()
	timer := time.AfterFunc(vm.timeout, func() {
		vm.runtime.Interrupt(ErrScriptTimeout)
	})
	stopCtx := context.AfterFunc(ctx, func() {
		vm.runtime.Interrupt(ctx.Err())
	})
	defer func() {
		timer.Stop()
		stopCtx()
		vm.runtime.ClearInterrupt()
	}()

	err := fn()
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if cause, ok := interrupted.Value().(error); ok {
			return fmt.Errorf("%w: %v", cause, err)
		}
	}
	return err
}

// StopRequested reports whether the script called stop().
func (vm *VM) StopRequested() bool {
	return vm.stopRequested
}

// TakeReset reports whether the script called resetstats() since the last
// call and clears the request.
func (vm *VM) TakeReset() bool {
	r := vm.resetRequested
	vm.resetRequested = false
	return r
}

// SetVariables pushes vars into the runtime.
func (vm *VM) SetVariables(vars *Variables) {
	injectVariables(vm.runtime, vars)
}

// SyncVariables reads the script-writable variables back into vars.
func (vm *VM) SyncVariables(vars *Variables) {
	syncFromVM(vm.runtime, vars)
}

// Logs returns a copy of the log buffer.
func (vm *VM) Logs() []LogEntry {
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}
