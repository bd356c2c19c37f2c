package jsruntime

import (
	"testing"
	"time"
)

func TestEvalSynchronous(t *testing.T) {
	rt := New()
	res := rt.Eval("1 + 2")
	if res.Err != nil {
		t.Fatalf("Eval: %v", res.Err)
	}
	if got := res.Value.ToInteger(); got != 3 {
		t.Fatalf("got %d, want 3", got)
	}
}

func TestHostcallRoundTrip(t *testing.T) {
	rt := New()
	res := rt.Eval(`
		var seen = null;
		pi.tool('Read', { file_path: '/x' }).then(function(v) { seen = v; });
	`)
	if res.Err != nil {
		t.Fatalf("Eval: %v", res.Err)
	}

	reqs := rt.DrainHostcallRequests()
	if len(reqs) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqs))
	}
	if reqs[0].Kind != KindTool {
		t.Fatalf("kind = %q, want %q", reqs[0].Kind, KindTool)
	}

	if err := rt.CompleteHostcall(reqs[0].CallID, Success(map[string]any{"ok": true})); err != nil {
		t.Fatalf("CompleteHostcall: %v", err)
	}

	stats := rt.Tick()
	if stats.RanMacrotask {
		t.Fatalf("expected no macrotask to run")
	}

	seen := rt.Eval("seen")
	if seen.Err != nil {
		t.Fatalf("Eval seen: %v", seen.Err)
	}
	obj := seen.Value.ToObject(nil)
	if ok := obj.Get("ok"); ok == nil || !ok.ToBoolean() {
		t.Fatalf("seen.ok = %v, want true", ok)
	}
}

func TestHostcallRejection(t *testing.T) {
	rt := New()
	rt.Eval(`
		var errMsg = null;
		pi.exec('ls', []).catch(function(e) { errMsg = e.message; });
	`)
	reqs := rt.DrainHostcallRequests()
	if len(reqs) != 1 || reqs[0].Kind != KindExec {
		t.Fatalf("requests = %+v", reqs)
	}
	if err := rt.CompleteHostcall(reqs[0].CallID, Error("not_found", "no such file")); err != nil {
		t.Fatalf("CompleteHostcall: %v", err)
	}
	rt.Tick()

	res := rt.Eval("errMsg")
	if res.Err != nil {
		t.Fatalf("Eval errMsg: %v", res.Err)
	}
	if res.Value.String() != "no such file" {
		t.Fatalf("errMsg = %q", res.Value.String())
	}
}

func TestTimerFiresOnlyAfterClockAdvance(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	rt := NewWithClock(clock)

	rt.Eval(`
		var fired = false;
		setTimeout(function() { fired = true; }, 1000);
	`)

	stats := rt.Tick()
	if stats.RanMacrotask {
		t.Fatalf("timer fired before clock advanced")
	}
	if res := rt.Eval("fired"); res.Value.ToBoolean() {
		t.Fatalf("fired = true before clock advanced")
	}

	clock.Advance(1500 * time.Millisecond)
	stats = rt.Tick()
	if !stats.RanMacrotask {
		t.Fatalf("expected timer to run after clock advance")
	}
	if res := rt.Eval("fired"); !res.Value.ToBoolean() {
		t.Fatalf("fired = false after clock advance and tick")
	}
	if rt.PendingTimers() != 0 {
		t.Fatalf("pending timers = %d, want 0", rt.PendingTimers())
	}
}

func TestClearTimeoutPreventsFiring(t *testing.T) {
	clock := NewVirtualClock(time.Unix(0, 0))
	rt := NewWithClock(clock)

	rt.Eval(`
		var fired = false;
		var id = setTimeout(function() { fired = true; }, 100);
		clearTimeout(id);
	`)
	clock.Advance(time.Second)
	rt.Tick()

	if res := rt.Eval("fired"); res.Value.ToBoolean() {
		t.Fatalf("cleared timer fired")
	}
}

func TestPromiseChainResolvesAcrossMultipleTicks(t *testing.T) {
	rt := New()
	rt.Eval(`
		var log = [];
		pi.tool('A', {})
			.then(function(v) { log.push('a'); return pi.tool('B', {}); })
			.then(function(v) { log.push('b'); });
	`)

	reqA := rt.DrainHostcallRequests()
	if len(reqA) != 1 {
		t.Fatalf("requests = %d, want 1", len(reqA))
	}
	if err := rt.CompleteHostcall(reqA[0].CallID, Success("done-a")); err != nil {
		t.Fatalf("CompleteHostcall A: %v", err)
	}
	rt.Tick()

	if logVal := rt.Eval("log.length"); logVal.Value.ToInteger() != 1 {
		t.Fatalf("log.length after first tick = %d, want 1", logVal.Value.ToInteger())
	}

	reqB := rt.DrainHostcallRequests()
	if len(reqB) != 1 {
		t.Fatalf("second requests = %d, want 1", len(reqB))
	}
	if err := rt.CompleteHostcall(reqB[0].CallID, Success("done-b")); err != nil {
		t.Fatalf("CompleteHostcall B: %v", err)
	}
	rt.Tick()

	if logVal := rt.Eval("log.length"); logVal.Value.ToInteger() != 2 {
		t.Fatalf("log.length after second tick = %d, want 2", logVal.Value.ToInteger())
	}
}
