package graph

import (
	"errors"
	"testing"
)

func sourceSpec() Spec {
	return Spec{
		Kind:    KindSource,
		Type:    "osc",
		Outputs: []Port{{Name: "out", Signal: SignalAudio}},
		Params: []Param{
			{Name: "freq", Min: 0, Max: 20000, Default: 440},
		},
	}
}

func effectSpec() Spec {
	return Spec{
		Kind:    KindEffect,
		Type:    "gain",
		Inputs:  []Port{{Name: "in", Signal: SignalAudio, Summing: true}},
		Outputs: []Port{{Name: "out", Signal: SignalAudio}},
		Params: []Param{
			{Name: "gain", Min: 0, Max: 4, Default: 1},
		},
	}
}

func outputSpec() Spec {
	return Spec{
		Kind:   KindOutput,
		Type:   "out",
		Inputs: []Port{{Name: "in", Signal: SignalAudio, Summing: true}},
	}
}

func controlSpec() Spec {
	return Spec{
		Kind:    KindControl,
		Type:    "lfo",
		Outputs: []Port{{Name: "out", Signal: SignalControl}},
	}
}

func feedbackSpec() Spec {
	return Spec{
		Kind: KindEffect,
		Type: "fbdelay",
		Inputs: []Port{
			{Name: "in", Signal: SignalAudio},
			{Name: "feedback", Signal: SignalAudio, Feedback: true},
		},
		Outputs: []Port{{Name: "out", Signal: SignalAudio}},
	}
}

func mustAdd(t *testing.T, g *Graph, spec Spec) *Node {
	t.Helper()
	n, err := g.AddNode(spec)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestAddNodeAssignsUniqueIDs(t *testing.T) {
	g := New()

	a := mustAdd(t, g, sourceSpec())
	b := mustAdd(t, g, sourceSpec())

	if a.ID() == b.ID() {
		t.Fatalf("duplicate generated IDs: %s", a.ID())
	}

	if g.Len() != 2 {
		t.Fatalf("Len: got %d want 2", g.Len())
	}
}

func TestAddNodeRejectsEmptySpec(t *testing.T) {
	g := New()

	if _, err := g.AddNode(Spec{Kind: KindEffect, Type: "empty"}); !errors.Is(err, ErrNoPorts) {
		t.Fatalf("expected ErrNoPorts, got %v", err)
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	g := New()
	src := mustAdd(t, g, sourceSpec())
	fx := mustAdd(t, g, effectSpec())

	if err := g.Connect(src.ID(), 0, fx.ID(), 0); err != nil {
		t.Fatal(err)
	}

	if conns := g.Connections(); len(conns) != 1 {
		t.Fatalf("connections: got %d want 1", len(conns))
	}

	if err := g.Disconnect(fx.ID(), 0); err != nil {
		t.Fatal(err)
	}

	if conns := g.Connections(); len(conns) != 0 {
		t.Fatalf("connections after disconnect: got %d want 0", len(conns))
	}
}

func TestConnectKindMismatchLeavesGraphUnchanged(t *testing.T) {
	g := New()
	lfo := mustAdd(t, g, controlSpec())
	fx := mustAdd(t, g, effectSpec())

	err := g.Connect(lfo.ID(), 0, fx.ID(), 0)
	if !errors.Is(err, ErrKindMismatch) {
		t.Fatalf("expected ErrKindMismatch, got %v", err)
	}

	if len(g.Connections()) != 0 {
		t.Fatal("failed connect mutated the graph")
	}
}

func TestConnectValidation(t *testing.T) {
	g := New()
	src := mustAdd(t, g, sourceSpec())
	fx := mustAdd(t, g, effectSpec())

	cases := []struct {
		name string
		err  error
		call func() error
	}{
		{"unknown source", ErrUnknownNode, func() error {
			return g.Connect("nope", 0, fx.ID(), 0)
		}},
		{"unknown dest", ErrUnknownNode, func() error {
			return g.Connect(src.ID(), 0, "nope", 0)
		}},
		{"self loop", ErrSelfLoop, func() error {
			return g.Connect(fx.ID(), 0, fx.ID(), 0)
		}},
		{"bad output index", ErrPortIndex, func() error {
			return g.Connect(src.ID(), 5, fx.ID(), 0)
		}},
		{"bad input index", ErrPortIndex, func() error {
			return g.Connect(src.ID(), 0, fx.ID(), 5)
		}},
	}

	for _, tc := range cases {
		if err := tc.call(); !errors.Is(err, tc.err) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.err, err)
		}
	}
}

func TestNonSummingInputSingleConnection(t *testing.T) {
	g := New()
	a := mustAdd(t, g, sourceSpec())
	b := mustAdd(t, g, sourceSpec())
	fb := mustAdd(t, g, feedbackSpec()) // input 0 is non-summing

	if err := g.Connect(a.ID(), 0, fb.ID(), 0); err != nil {
		t.Fatal(err)
	}

	if err := g.Connect(b.ID(), 0, fb.ID(), 0); !errors.Is(err, ErrPortOccupied) {
		t.Fatalf("expected ErrPortOccupied, got %v", err)
	}
}

func TestSummingInputAcceptsMultiple(t *testing.T) {
	g := New()
	a := mustAdd(t, g, sourceSpec())
	b := mustAdd(t, g, sourceSpec())
	out := mustAdd(t, g, outputSpec())

	if err := g.Connect(a.ID(), 0, out.ID(), 0); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(b.ID(), 0, out.ID(), 0); err != nil {
		t.Fatal(err)
	}

	if got := len(g.Incoming(out.ID())); got != 2 {
		t.Fatalf("incoming: got %d want 2", got)
	}
}

func TestConnectRejectsCycle(t *testing.T) {
	g := New()
	a := mustAdd(t, g, effectSpec())
	b := mustAdd(t, g, effectSpec())
	c := mustAdd(t, g, effectSpec())

	if err := g.Connect(a.ID(), 0, b.ID(), 0); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(b.ID(), 0, c.ID(), 0); err != nil {
		t.Fatal(err)
	}

	before := len(g.Connections())
	if err := g.Connect(c.ID(), 0, a.ID(), 0); !errors.Is(err, ErrCycle) {
		t.Fatalf("expected ErrCycle, got %v", err)
	}
	if len(g.Connections()) != before {
		t.Fatal("failed connect mutated the graph")
	}
}

func TestFeedbackPortMayCloseCycle(t *testing.T) {
	g := New()
	fb := mustAdd(t, g, feedbackSpec())
	fx := mustAdd(t, g, effectSpec())

	if err := g.Connect(fb.ID(), 0, fx.ID(), 0); err != nil {
		t.Fatal(err)
	}

	// Closing the loop through the feedback input is allowed.
	if err := g.Connect(fx.ID(), 0, fb.ID(), 1); err != nil {
		t.Fatalf("feedback connection rejected: %v", err)
	}

	// The ordering must still exist because the feedback edge is
	// excluded from dependency ordering.
	if _, err := g.SortedIDs(); err != nil {
		t.Fatalf("SortedIDs with feedback loop: %v", err)
	}
}

func TestRemoveNodeSeversConnections(t *testing.T) {
	g := New()
	src := mustAdd(t, g, sourceSpec())
	fx := mustAdd(t, g, effectSpec())
	out := mustAdd(t, g, outputSpec())

	if err := g.Connect(src.ID(), 0, fx.ID(), 0); err != nil {
		t.Fatal(err)
	}
	if err := g.Connect(fx.ID(), 0, out.ID(), 0); err != nil {
		t.Fatal(err)
	}

	if err := g.RemoveNode(fx.ID()); err != nil {
		t.Fatal(err)
	}

	if len(g.Connections()) != 0 {
		t.Fatalf("dangling connections after remove: %v", g.Connections())
	}

	if _, ok := g.Node(fx.ID()); ok {
		t.Fatal("removed node still present")
	}

	if err := g.RemoveNode(fx.ID()); !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
}

func TestSortedIDsRespectsDependencies(t *testing.T) {
	g := New()
	src := mustAdd(t, g, sourceSpec())
	fx1 := mustAdd(t, g, effectSpec())
	fx2 := mustAdd(t, g, effectSpec())
	out := mustAdd(t, g, outputSpec())

	// Diamond: src -> fx1 -> out, src -> fx2 -> out.
	for _, c := range []Connection{
		{From: src.ID(), To: fx1.ID()},
		{From: src.ID(), To: fx2.ID()},
		{From: fx1.ID(), To: out.ID()},
		{From: fx2.ID(), To: out.ID()},
	} {
		if err := g.Connect(c.From, 0, c.To, 0); err != nil {
			t.Fatal(err)
		}
	}

	order, err := g.SortedIDs()
	if err != nil {
		t.Fatal(err)
	}

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	for _, c := range g.Connections() {
		if pos[c.From] >= pos[c.To] {
			t.Fatalf("node %s ordered before its input %s", c.To, c.From)
		}
	}
}

func TestSortedIDsDeterministic(t *testing.T) {
	g := New()
	a := mustAdd(t, g, sourceSpec())
	b := mustAdd(t, g, sourceSpec())
	c := mustAdd(t, g, sourceSpec())

	order, err := g.SortedIDs()
	if err != nil {
		t.Fatal(err)
	}

	want := []string{a.ID(), b.ID(), c.ID()}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order[%d]: got %s want %s (creation-order tie-break)", i, order[i], want[i])
		}
	}

	for i := 0; i < 10; i++ {
		again, err := g.SortedIDs()
		if err != nil {
			t.Fatal(err)
		}
		for j := range again {
			if again[j] != order[j] {
				t.Fatalf("run %d: nondeterministic order", i)
			}
		}
	}
}

func TestParameters(t *testing.T) {
	g := New()
	src := mustAdd(t, g, sourceSpec())

	infos, err := g.Parameters(src.ID())
	if err != nil {
		t.Fatal(err)
	}

	if len(infos) != 1 || infos[0].Name != "freq" || infos[0].Current != 440 {
		t.Fatalf("unexpected params: %+v", infos)
	}

	v, clamped, err := g.SetParameter(src.ID(), "freq", 1000)
	if err != nil || clamped || v != 1000 {
		t.Fatalf("in-range set: v=%v clamped=%v err=%v", v, clamped, err)
	}

	v, clamped, err = g.SetParameter(src.ID(), "freq", 90000)
	if err != nil || !clamped || v != 20000 {
		t.Fatalf("out-of-range set: v=%v clamped=%v err=%v", v, clamped, err)
	}

	if _, _, err := g.SetParameter(src.ID(), "nope", 1); err == nil {
		t.Fatal("unknown param accepted")
	}
}

func TestSetParameterStrict(t *testing.T) {
	g := New()
	src := mustAdd(t, g, sourceSpec())

	if err := g.SetParameterStrict(src.ID(), "freq", 30000); err == nil {
		t.Fatal("expected RangeError")
	} else {
		var re *RangeError
		if !errors.As(err, &re) {
			t.Fatalf("expected *RangeError, got %T", err)
		}
		if re.Min != 0 || re.Max != 20000 {
			t.Fatalf("range: %+v", re)
		}
	}

	if err := g.SetParameterStrict(src.ID(), "freq", 220); err != nil {
		t.Fatal(err)
	}

	if v, _ := src.Param("freq"); v != 220 {
		t.Fatalf("value: got %v want 220", v)
	}
}

func TestSubgraphDepthLimit(t *testing.T) {
	leaf := New()
	mustAdd(t, leaf, sourceSpec())

	spec := Spec{
		Kind:       KindSubroutine,
		Type:       "sub",
		Subgraph:   leaf,
		Outputs:    []Port{{Name: "out", Signal: SignalAudio}},
		SubOutputs: []Export{{Port: Port{Name: "out", Signal: SignalAudio}, NodeID: leaf.Nodes()[0].ID()}},
	}

	// Nest until one past the limit.
	for i := 0; i < MaxSubgraphDepth; i++ {
		wrapper := New()
		inner, err := wrapper.AddNode(spec)
		if err != nil {
			t.Fatalf("depth %d: %v", i+1, err)
		}
		spec = Spec{
			Kind:       KindSubroutine,
			Type:       "sub",
			Subgraph:   wrapper,
			Outputs:    []Port{{Name: "out", Signal: SignalAudio}},
			SubOutputs: []Export{{Port: Port{Name: "out", Signal: SignalAudio}, NodeID: inner.ID()}},
		}
	}

	g := New()
	if _, err := g.AddNode(spec); !errors.Is(err, ErrMaxDepth) {
		t.Fatalf("expected ErrMaxDepth, got %v", err)
	}
}
