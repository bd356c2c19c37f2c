// Package jsruntime implements the single-threaded cooperative JavaScript
// executor extensions run inside: a synchronous Eval, an
// asynchronous Tick that runs one macrotask and drains microtasks, and a
// hostcall request/completion queue mediating every effectful operation
// the sandboxed script performs.
package jsruntime

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/dop251/goja"
)

// Hostcall kinds.
const (
	KindTool    = "tool"
	KindExec    = "exec"
	KindHTTP    = "http"
	KindSession = "session"
	KindUI      = "ui"
)

// Result is the outcome of a synchronous Eval call.
type Result struct {
	Value goja.Value
	Err   error
}

// TickStats reports what a single Tick call did.
type TickStats struct {
	RanMacrotask bool
}

type pendingCall struct {
	resolve goja.Callable
	reject  goja.Callable
}

type timer struct {
	id     int64
	fireAt time.Time
	fn     goja.Callable
}

// Runtime is the sandboxed executor. Not safe for concurrent use: it is
// single-threaded by design.
type Runtime struct {
	vm    *goja.Runtime
	clock Clock

	callCounter int64
	requests    []HostcallRequest
	pending     map[int64]pendingCall

	microtasks []func()

	timerCounter int64
	timers       map[int64]*timer
}

// New constructs a Runtime with a real wall clock.
func New() *Runtime {
	return NewWithClock(WallClock{})
}

// NewWithClock constructs a Runtime whose timers are driven by clock,
// wall time in production and a VirtualClock in tests.
func NewWithClock(clock Clock) *Runtime {
	rt := &Runtime{
		vm:      goja.New(),
		clock:   clock,
		pending: map[int64]pendingCall{},
		timers:  map[int64]*timer{},
	}
	rt.install()
	return rt
}

// install wires the __schedule/__setTimeout/__clearTimeout/__hostcall
// primitives and the Promise polyfill/pi surface built on top of them.
func (rt *Runtime) install() {
	rt.vm.Set("__schedule", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return goja.Undefined()
		}
		rt.microtasks = append(rt.microtasks, func() {
			_, _ = fn(goja.Undefined())
		})
		return goja.Undefined()
	})

	rt.vm.Set("__setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			return rt.vm.ToValue(int64(0))
		}
		delayMS := call.Argument(1).ToInteger()
		rt.timerCounter++
		id := rt.timerCounter
		rt.timers[id] = &timer{
			id:     id,
			fireAt: rt.clock.Now().Add(time.Duration(delayMS) * time.Millisecond),
			fn:     fn,
		}
		return rt.vm.ToValue(id)
	})

	rt.vm.Set("__clearTimeout", func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).ToInteger()
		delete(rt.timers, id)
		return goja.Undefined()
	})

	rt.vm.Set("__hostcall", func(call goja.FunctionCall) goja.Value {
		kind := call.Argument(0).String()
		payload := call.Argument(1).Export()
		data, err := json.Marshal(payload)
		if err != nil {
			data = []byte("null")
		}
		rt.callCounter++
		callID := rt.callCounter
		rt.requests = append(rt.requests, HostcallRequest{CallID: callID, Kind: kind, Payload: data})
		return rt.newPendingPromise(callID)
	})

	if _, err := rt.vm.RunString(promisePolyfill); err != nil {
		panic(fmt.Sprintf("jsruntime: install promise polyfill: %v", err))
	}
	if _, err := rt.vm.RunString(piSurface); err != nil {
		panic(fmt.Sprintf("jsruntime: install pi surface: %v", err))
	}
}

// newPendingPromise builds a new native Promise whose executor records
// its resolve/reject callables against callID, returning the Promise
// value to the caller immediately; the sandbox never blocks on a hostcall.
func (rt *Runtime) newPendingPromise(callID int64) goja.Value {
	ctor := rt.vm.Get("Promise")
	executor := rt.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		resolveFn, _ := goja.AssertFunction(call.Argument(0))
		rejectFn, _ := goja.AssertFunction(call.Argument(1))
		rt.pending[callID] = pendingCall{resolve: resolveFn, reject: rejectFn}
		return goja.Undefined()
	})
	obj, err := rt.vm.New(ctor, executor)
	if err != nil {
		panic(fmt.Sprintf("jsruntime: construct promise: %v", err))
	}
	return obj
}

// piSurface defines the `pi` object sandboxed code sees:
// each method enqueues a HostcallRequest with a kind-specific payload
// shape the dispatcher understands.
const piSurface = `
globalThis.pi = {
  tool: function(name, args) {
    return __hostcall('tool', { name: name, arguments: args });
  },
  exec: function(cmd, args, options) {
    return __hostcall('exec', { cmd: cmd, args: args || [], options: options || {} });
  },
  http: function(request) {
    return __hostcall('http', request);
  },
  session: function(op, payload) {
    return __hostcall('session', Object.assign({ op: op }, payload || {}));
  },
  ui: function(op, payload) {
    return __hostcall('ui', Object.assign({ op: op }, payload || {}));
  },
};
`

// Eval synchronously evaluates source, returning whatever value it
// produced. It does not drain microtasks or run timers; call Tick for
// that.
func (rt *Runtime) Eval(source string) Result {
	v, err := rt.vm.RunString(source)
	return Result{Value: v, Err: err}
}

// DrainHostcallRequests returns and clears the queue of hostcall
// requests accumulated since the last call. The dispatcher owns the
// policy for draining frequency and concurrency.
func (rt *Runtime) DrainHostcallRequests() []HostcallRequest {
	out := rt.requests
	rt.requests = nil
	return out
}

// CompleteHostcall resolves or rejects the promise awaiting callID
//. The reaction callbacks this schedules run as
// microtasks on the next Tick, not synchronously.
func (rt *Runtime) CompleteHostcall(callID int64, outcome Outcome) error {
	call, ok := rt.pending[callID]
	if !ok {
		return fmt.Errorf("jsruntime: no pending hostcall %d", callID)
	}
	delete(rt.pending, callID)

	if outcome.Err != nil {
		errObj := rt.vm.NewObject()
		_ = errObj.Set("code", outcome.Err.Code)
		_ = errObj.Set("message", outcome.Err.Message)
		_, err := call.reject(goja.Undefined(), errObj)
		return err
	}

	var decoded any
	if len(outcome.Result) > 0 {
		if err := json.Unmarshal(outcome.Result, &decoded); err != nil {
			return fmt.Errorf("jsruntime: decode outcome: %w", err)
		}
	}
	_, err := call.resolve(goja.Undefined(), rt.vm.ToValue(decoded))
	return err
}

// Tick runs at most one due macrotask (earliest-firing timer) and then
// drains every microtask the runtime has queued, including any the
// macrotask itself enqueued.
func (rt *Runtime) Tick() TickStats {
	stats := TickStats{}

	if id, due := rt.nextDueTimer(); due {
		t := rt.timers[id]
		delete(rt.timers, id)
		stats.RanMacrotask = true
		_, _ = t.fn(goja.Undefined())
	}

	rt.drainMicrotasks()
	return stats
}

func (rt *Runtime) nextDueTimer() (int64, bool) {
	if len(rt.timers) == 0 {
		return 0, false
	}
	ids := make([]int64, 0, len(rt.timers))
	for id := range rt.timers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := rt.clock.Now()
	var bestID int64
	var bestAt time.Time
	found := false
	for _, id := range ids {
		t := rt.timers[id]
		if t.fireAt.After(now) {
			continue
		}
		if !found || t.fireAt.Before(bestAt) {
			bestID, bestAt, found = id, t.fireAt, true
		}
	}
	return bestID, found
}

func (rt *Runtime) drainMicrotasks() {
	for len(rt.microtasks) > 0 {
		task := rt.microtasks[0]
		rt.microtasks = rt.microtasks[1:]
		task()
	}
}

// PendingTimers reports how many timers are still scheduled, for tests
// and diagnostics.
func (rt *Runtime) PendingTimers() int {
	return len(rt.timers)
}
