// Package autoplay drives runs with a user strategy written in JavaScript.
// A strategy defines decide(run) and returns a card index, "exit" or
// "pause" for every step of a run.
package autoplay

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
)

// LogEntry is one log() line from a strategy.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// VM wraps a goja runtime with sandbox restrictions.
type VM struct {
	runtime *goja.Runtime
	mu      sync.Mutex

	logs    []LogEntry
	logsMu  sync.Mutex
	maxLogs int
}

const (
	scriptInitTimeout = 2 * time.Second
	scriptCallTimeout = 250 * time.Millisecond
)

// NewVM creates a sandboxed runtime. Go values handed to the script use
// their json field names.
func NewVM() *VM {
	vm := &VM{
		runtime: goja.New(),
		maxLogs: 500,
	}
	vm.runtime.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	vm.injectGlobals()
	return vm
}

func (vm *VM) injectGlobals() {
	vm.runtime.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		vm.logsMu.Lock()
		if len(vm.logs) >= vm.maxLogs {
			vm.logs = vm.logs[1:]
		}
		vm.logs = append(vm.logs, LogEntry{Time: time.Now(), Message: strings.Join(parts, " ")})
		vm.logsMu.Unlock()
		return goja.Undefined()
	})
	console := vm.runtime.NewObject()
	console.Set("log", vm.runtime.Get("log"))
	vm.runtime.Set("console", console)

	// Block dangerous globals.
	vm.runtime.Set("require", goja.Undefined())
	vm.runtime.Set("fetch", goja.Undefined())
	vm.runtime.Set("eval", goja.Undefined())
	vm.runtime.Set("Function", goja.Undefined())
}

// Load runs the strategy source once and checks that it defines decide().
func (vm *VM) Load(source string) error {
	return vm.runWithTimeout(scriptInitTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()
		if _, err := vm.runtime.RunString(source); err != nil {
			return fmt.Errorf("strategy execution error: %w", err)
		}
		if _, ok := goja.AssertFunction(vm.runtime.Get("decide")); !ok {
			return fmt.Errorf("strategy must define a decide() function")
		}
		return nil
	})
}

// Decide calls decide(view) and parses its answer.
func (vm *VM) Decide(view View) (Decision, error) {
	var out Decision
	err := vm.runWithTimeout(scriptCallTimeout, func() error {
		vm.mu.Lock()
		defer vm.mu.Unlock()

		fn, ok := goja.AssertFunction(vm.runtime.Get("decide"))
		if !ok {
			return fmt.Errorf("decide is not a function")
		}
		res, err := fn(goja.Undefined(), vm.runtime.ToValue(view))
		if err != nil {
			return fmt.Errorf("decide() error: %w", err)
		}
		out, err = parseDecision(res.Export())
		return err
	})
	return out, err
}

// Logs returns a copy of the log buffer.
func (vm *VM) Logs() []LogEntry {
	vm.logsMu.Lock()
	defer vm.logsMu.Unlock()
	out := make([]LogEntry, len(vm.logs))
	copy(out, vm.logs)
	return out
}

func (vm *VM) runWithTimeout(timeout time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		// Interrupt a runaway strategy.
		vm.runtime.Interrupt("strategy timeout")
		err := <-done
		vm.runtime.ClearInterrupt()
		if err != nil {
			return fmt.Errorf("strategy timed out: %w", err)
		}
		return fmt.Errorf("strategy timed out")
	}
}
