package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/cwbudde/algo-patch/graph"
)

func oscFilterOutGraph(t *testing.T, r *Registry) (*graph.Graph, *graph.Node, *graph.Node) {
	t.Helper()

	g := graph.New()
	src := addTyped(t, g, r, "osc")
	fx := addTyped(t, g, r, "filter")
	sink := addTyped(t, g, r, "out")

	connectPorts(t, g, src.ID(), 0, fx.ID(), 0)
	connectPorts(t, g, fx.ID(), 0, sink.ID(), 0)

	return g, src, fx
}

func TestLifecycle(t *testing.T) {
	r := DefaultRegistry()
	g, _, _ := oscFilterOutGraph(t, r)
	e := New(g, r)

	if e.State() != StateIdle {
		t.Fatalf("state: got %v want idle", e.State())
	}

	if err := e.Start(); !errors.Is(err, ErrNotPrepared) {
		t.Fatalf("start before prepare: got %v", err)
	}

	out := [][]float64{make([]float64, 128)}
	if err := e.ProcessBuffer(nil, out); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("process before start: got %v", err)
	}

	if err := e.Prepare(context.Background(), 48000, 128); err != nil {
		t.Fatal(err)
	}
	if e.State() != StatePrepared {
		t.Fatalf("state: got %v want prepared", e.State())
	}

	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.Prepare(context.Background(), 48000, 128); !errors.Is(err, ErrRunning) {
		t.Fatalf("prepare while running: got %v", err)
	}

	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}

	e.Stop()
	if e.State() != StateStopped {
		t.Fatalf("state: got %v want stopped", e.State())
	}

	out[0][0] = 42
	if err := e.ProcessBuffer(nil, out); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("process after stop: got %v", err)
	}
	if out[0][0] != 0 {
		t.Fatal("stopped engine must deliver silence")
	}

	// Restart resumes from silence.
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}
	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}
}

func TestPrepareFailureLeavesIdle(t *testing.T) {
	r := DefaultRegistry()
	g := graph.New()

	spec := graph.Spec{
		Kind:    graph.KindSource,
		Type:    "martian",
		Outputs: []graph.Port{{Name: "out", Signal: graph.SignalAudio}},
	}
	if _, err := g.AddNode(spec); err != nil {
		t.Fatal(err)
	}

	e := New(g, r)
	if err := e.Prepare(context.Background(), 48000, 128); err == nil {
		t.Fatal("expected prepare to fail")
	}
	if e.State() != StateIdle {
		t.Fatalf("state after failed prepare: got %v want idle", e.State())
	}
}

// A 440 Hz oscillator through a 1 kHz lowpass into the output,
// processed for one 128-sample buffer at 48 kHz, must produce a
// non-silent band-limited buffer.
func TestEndToEndLowpass(t *testing.T) {
	r := DefaultRegistry()
	g, src, fx := oscFilterOutGraph(t, r)

	setParam(t, g, src.ID(), "freq", 440)
	setParam(t, g, fx.ID(), "shape", 0) // lowpass
	setParam(t, g, fx.ID(), "freq", 1000)
	setParam(t, g, fx.ID(), "q", 1.0)

	e := New(g, r)
	if err := e.Prepare(context.Background(), 48000, 128); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	out := [][]float64{make([]float64, 128)}
	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}

	var peak float64
	for _, v := range out[0] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatal("non-finite output sample")
		}
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	if peak == 0 {
		t.Fatal("output buffer is silent")
	}
	if peak > 2 {
		t.Fatalf("output peak %v suggests instability", peak)
	}
}

func TestSetParameterWhileRunning(t *testing.T) {
	r := DefaultRegistry()

	g := graph.New()
	src := addTyped(t, g, r, "osc")
	vol := addTyped(t, g, r, "gain")
	sink := addTyped(t, g, r, "out")
	connectPorts(t, g, src.ID(), 0, vol.ID(), 0)
	connectPorts(t, g, vol.ID(), 0, sink.ID(), 0)

	e := New(g, r)
	if err := e.Prepare(context.Background(), 48000, 128); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	out := [][]float64{make([]float64, 128)}
	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}

	// Mute while running; the change lands at the next buffer boundary.
	effective, clamped, err := e.SetParameter(vol.ID(), "gain", 0)
	if err != nil {
		t.Fatal(err)
	}
	if effective != 0 || clamped {
		t.Fatalf("set gain: got %v clamped=%v", effective, clamped)
	}

	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}
	for i, v := range out[0] {
		if v != 0 {
			t.Fatalf("sample %d not muted: %v", i, v)
		}
	}

	// Out-of-range values clamp instead of failing.
	effective, clamped, err = e.SetParameter(vol.ID(), "gain", 99)
	if err != nil {
		t.Fatal(err)
	}
	if effective != 4 || !clamped {
		t.Fatalf("clamp: got %v clamped=%v", effective, clamped)
	}
}

func TestScriptFaultFallsBackToPassthrough(t *testing.T) {
	r := DefaultRegistry()

	// log of a negative sample faults; a sine input goes negative
	// within the first buffer.
	scSpec, err := r.Resolve(graph.KindScript, "script", `process = log(x)`)
	if err != nil {
		t.Fatal(err)
	}

	g := graph.New()
	src := addTyped(t, g, r, "osc")
	sc, err := g.AddNode(scSpec)
	if err != nil {
		t.Fatal(err)
	}
	sink := addTyped(t, g, r, "out")
	connectPorts(t, g, src.ID(), 0, sc.ID(), 0)
	connectPorts(t, g, sc.ID(), 0, sink.ID(), 0)

	e := New(g, r)
	if err := e.Prepare(context.Background(), 48000, 128); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	out := [][]float64{make([]float64, 128)}

	for i := 0; i < faultLimit; i++ {
		if err := e.ProcessBuffer(nil, out); err != nil {
			t.Fatal(err)
		}
		for j, v := range out[0] {
			if v != 0 {
				t.Fatalf("buffer %d sample %d: faulting script must yield silence, got %v", i, j, v)
			}
		}
	}

	events := e.Events()
	if len(events) != faultLimit {
		t.Fatalf("events: got %d want %d", len(events), faultLimit)
	}
	for _, ev := range events {
		if ev.Kind != EventScriptFault {
			t.Fatalf("event kind: got %v want script-fault", ev.Kind)
		}
		if ev.Node != sc.ID() {
			t.Fatalf("event node: got %q want %q", ev.Node, sc.ID())
		}
	}

	// Past the fault limit the node passes its input through.
	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}
	silent := true
	for _, v := range out[0] {
		if v != 0 {
			silent = false
			break
		}
	}
	if silent {
		t.Fatal("expected passthrough output after repeated faults")
	}
}

func TestBufferShapeMismatch(t *testing.T) {
	r := DefaultRegistry()
	g, _, _ := oscFilterOutGraph(t, r)

	e := New(g, r)
	if err := e.Prepare(context.Background(), 48000, 128); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	out := [][]float64{make([]float64, 64)}
	if err := e.ProcessBuffer(nil, out); !errors.Is(err, ErrBufferShape) {
		t.Fatalf("expected ErrBufferShape, got %v", err)
	}
}

func TestInputNodePassesHostAudio(t *testing.T) {
	r := DefaultRegistry()

	g := graph.New()
	src := addTyped(t, g, r, "input")
	sink := addTyped(t, g, r, "out")
	connectPorts(t, g, src.ID(), 0, sink.ID(), 0)

	e := New(g, r)
	if err := e.Prepare(context.Background(), 48000, 4); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	in := [][]float64{{0.5, -0.5, 0.25, 0}}
	out := [][]float64{make([]float64, 4)}
	if err := e.ProcessBuffer(in, out); err != nil {
		t.Fatal(err)
	}

	for i := range in[0] {
		if out[0][i] != in[0][i] {
			t.Fatalf("sample %d: got %v want %v", i, out[0][i], in[0][i])
		}
	}
}

func TestNestedParameterAddressing(t *testing.T) {
	r := DefaultRegistry()

	inner := graph.New()
	gainSpec, err := r.Spec("gain")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := inner.AddNodeWithID("vol", gainSpec); err != nil {
		t.Fatal(err)
	}

	subSpec := graph.Spec{
		Kind: graph.KindSubroutine,
		Type: "subgraph",
		Inputs: []graph.Port{
			{Name: "in", Signal: graph.SignalAudio, Summing: true},
		},
		Outputs: []graph.Port{
			{Name: "out", Signal: graph.SignalAudio},
		},
		Subgraph: inner,
		SubInputs: []graph.Export{
			{Port: graph.Port{Name: "in", Signal: graph.SignalAudio, Summing: true}, NodeID: "vol", PortIndex: 0},
		},
		SubOutputs: []graph.Export{
			{Port: graph.Port{Name: "out", Signal: graph.SignalAudio}, NodeID: "vol", PortIndex: 0},
		},
	}

	g := graph.New()
	src := addTyped(t, g, r, "osc")
	if _, err := g.AddNodeWithID("sub", subSpec); err != nil {
		t.Fatal(err)
	}
	sink := addTyped(t, g, r, "out")
	connectPorts(t, g, src.ID(), 0, "sub", 0)
	connectPorts(t, g, "sub", 0, sink.ID(), 0)

	e := New(g, r)
	if err := e.Prepare(context.Background(), 48000, 64); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	if _, _, err := e.SetParameter("sub/vol", "gain", 0); err != nil {
		t.Fatal(err)
	}

	out := [][]float64{make([]float64, 64)}
	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}
	for i, v := range out[0] {
		if v != 0 {
			t.Fatalf("sample %d: inner gain not applied: %v", i, v)
		}
	}

	if _, _, err := e.SetParameter("sub/nope", "gain", 1); err == nil {
		t.Fatal("expected error for unknown nested node")
	}
}

func TestApplySwapsProgram(t *testing.T) {
	r := DefaultRegistry()

	g := graph.New()
	src := addTyped(t, g, r, "osc")
	sink := addTyped(t, g, r, "out")
	connectPorts(t, g, src.ID(), 0, sink.ID(), 0)

	e := New(g, r)
	if err := e.Apply(context.Background()); !errors.Is(err, ErrNotPrepared) {
		t.Fatalf("apply before prepare: got %v", err)
	}

	if err := e.Prepare(context.Background(), 48000, 64); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(); err != nil {
		t.Fatal(err)
	}

	out := [][]float64{make([]float64, 64)}
	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}

	// Structural edit while running: sever the source, republish.
	if err := g.RemoveNode(src.ID()); err != nil {
		t.Fatal(err)
	}
	if err := e.Apply(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := e.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}
	for i, v := range out[0] {
		if v != 0 {
			t.Fatalf("sample %d: removed source still audible: %v", i, v)
		}
	}
}

// A queued parameter update must land on the node it was addressed
// to even when a program swap reorders the steps before the update
// drains at the buffer boundary.
func TestQueuedUpdateSurvivesProgramSwap(t *testing.T) {
	r := DefaultRegistry()
	ctx := context.Background()

	g := graph.New()
	first := addTyped(t, g, r, "osc")
	second := addTyped(t, g, r, "osc")
	third := addTyped(t, g, r, "osc")
	sink := addTyped(t, g, r, "out")
	connectPorts(t, g, first.ID(), 0, sink.ID(), 0)
	connectPorts(t, g, second.ID(), 0, sink.ID(), 0)
	connectPorts(t, g, third.ID(), 0, sink.ID(), 0)

	eng := New(g, r)
	if err := eng.Prepare(ctx, 48000, 128); err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(); err != nil {
		t.Fatal(err)
	}

	// Queued while running, so it is still pending at the swap.
	if _, _, err := eng.SetParameter(second.ID(), "freq", 2000); err != nil {
		t.Fatal(err)
	}

	// Removing an earlier node shifts every following step index in
	// the recompiled program.
	if err := g.RemoveNode(first.ID()); err != nil {
		t.Fatal(err)
	}
	if err := eng.Apply(ctx); err != nil {
		t.Fatal(err)
	}

	out := [][]float64{make([]float64, 128)}
	if err := eng.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}

	// Both remaining oscillators at their graph values: the update
	// belongs to the second node, the third keeps its default.
	ref := graph.New()
	refHigh := addTyped(t, ref, r, "osc")
	refLow := addTyped(t, ref, r, "osc")
	refSink := addTyped(t, ref, r, "out")
	connectPorts(t, ref, refHigh.ID(), 0, refSink.ID(), 0)
	connectPorts(t, ref, refLow.ID(), 0, refSink.ID(), 0)
	setParam(t, ref, refHigh.ID(), "freq", 2000)

	want := renderOne(t, ref, r, 48000, 128)
	for i := range want {
		if math.Abs(out[0][i]-want[i]) > 1e-9 {
			t.Fatalf("sample %d: got %v, want %v", i, out[0][i], want[i])
		}
	}
}

// stallRuntime emits a constant block, then overruns the buffer period.
type stallRuntime struct {
	pause time.Duration
}

func (r *stallRuntime) Configure(_ Context, _ Params) error { return nil }

func (r *stallRuntime) Process(_ Context, _, out [][]float64) error {
	for i := range out[0] {
		out[0][i] = 1
	}
	time.Sleep(r.pause)
	return nil
}

func TestDeadlineMissSilencesSlowNode(t *testing.T) {
	r := DefaultRegistry()
	r.MustRegister(graph.Spec{
		Kind:    graph.KindSource,
		Type:    "stall",
		Outputs: []graph.Port{{Name: "out", Signal: graph.SignalAudio}},
	}, func(_ Context, _ *graph.Node) (Runtime, error) {
		return &stallRuntime{pause: 20 * time.Millisecond}, nil
	})

	g := graph.New()
	slow := addTyped(t, g, r, "stall")
	src := addTyped(t, g, r, "osc")
	sink := addTyped(t, g, r, "out")
	connectPorts(t, g, slow.ID(), 0, sink.ID(), 0)
	connectPorts(t, g, src.ID(), 0, sink.ID(), 0)

	eng := New(g, r)

	// 16 samples at 48 kHz is a ~333µs period, far below the stall.
	if err := eng.Prepare(context.Background(), 48000, 16); err != nil {
		t.Fatal(err)
	}
	if err := eng.Start(); err != nil {
		t.Fatal(err)
	}

	out := [][]float64{make([]float64, 16)}
	if err := eng.ProcessBuffer(nil, out); err != nil {
		t.Fatal(err)
	}

	var misses []Event
	for _, ev := range eng.Events() {
		if ev.Kind == EventDeadlineMiss {
			misses = append(misses, ev)
		}
	}
	if len(misses) != 1 {
		t.Fatalf("got %d deadline misses, want 1", len(misses))
	}
	if misses[0].Node != slow.ID() {
		t.Fatalf("deadline miss on %q, want %q", misses[0].Node, slow.ID())
	}

	// The slow node's contribution is silenced; the oscillator
	// scheduled after it still reaches the master bus untouched.
	ref := graph.New()
	refSrc := addTyped(t, ref, r, "osc")
	refSink := addTyped(t, ref, r, "out")
	connectPorts(t, ref, refSrc.ID(), 0, refSink.ID(), 0)

	want := renderOne(t, ref, r, 48000, 16)
	for i := range want {
		if math.Abs(out[0][i]-want[i]) > 1e-9 {
			t.Fatalf("sample %d: got %v, want %v", i, out[0][i], want[i])
		}
	}
}
