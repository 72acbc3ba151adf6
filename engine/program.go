package engine

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-patch/graph"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// flatSep joins outer and inner node IDs when subroutine graphs are
// flattened, so "sub1/osc2" addresses a node inside a subroutine.
const flatSep = "/"

// sumSpec is one summing input: dst is zeroed, then every src is
// accumulated into it before the node processes.
type sumSpec struct {
	dst  []float64
	srcs [][]float64
}

// copyEdge carries a feedback connection: after every buffer, src is
// copied into dst so consumers read the previous period's data.
type copyEdge struct {
	dst []float64
	src []float64
}

// step is one node of a compiled program, in execution order.
type step struct {
	id     string
	typ    string
	rt     Runtime
	in     [][]float64
	out    [][]float64
	sums   []sumSpec
	params Params
}

// program is an immutable, fully preallocated execution plan for one
// graph snapshot. The processing context only ever reads it; edits
// produce a new program that is swapped in at a buffer boundary.
type program struct {
	ctx    Context
	period time.Duration

	steps    []step
	index    map[string]int
	feedback []copyEdge
}

// compile flattens the graph, orders it, builds a runtime per node,
// and wires every connection to preallocated buffers.
func compile(g *graph.Graph, reg *Registry, sampleRate float64, bufferSize int) (*program, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("engine: invalid sample rate %v", sampleRate)
	}
	if bufferSize <= 0 {
		return nil, fmt.Errorf("engine: invalid buffer size %d", bufferSize)
	}

	flat := graph.New()
	if err := flattenInto(flat, g, ""); err != nil {
		return nil, err
	}

	order, err := flat.SortedIDs()
	if err != nil {
		return nil, err
	}

	ctx := Context{
		SampleRate: sampleRate,
		BufferSize: bufferSize,
		Input:      make([]float64, bufferSize),
		Master:     make([]float64, bufferSize),
	}

	p := &program{
		ctx:    ctx,
		period: time.Duration(float64(bufferSize) / sampleRate * float64(time.Second)),
		steps:  make([]step, 0, len(order)),
		index:  make(map[string]int, len(order)),
	}

	// Output buffers first, so inputs can reference them regardless of
	// execution order.
	outBufs := make(map[string][][]float64, len(order))
	for _, id := range order {
		n, _ := flat.Node(id)
		bufs := make([][]float64, len(n.Outputs()))
		for i, port := range n.Outputs() {
			bufs[i] = make([]float64, portLen(port, bufferSize))
		}
		outBufs[id] = bufs
	}

	for _, id := range order {
		n, _ := flat.Node(id)

		rt, err := buildRuntime(ctx, reg, n)
		if err != nil {
			return nil, err
		}

		s := step{
			id:     id,
			typ:    n.Type(),
			rt:     rt,
			out:    outBufs[id],
			in:     make([][]float64, len(n.Inputs())),
			params: nodeParams(flat, id),
		}

		for portIdx, port := range n.Inputs() {
			srcs := p.inputSources(flat, outBufs, id, portIdx, port)

			switch len(srcs) {
			case 0:
				s.in[portIdx] = nil
			case 1:
				s.in[portIdx] = srcs[0]
			default:
				scratch := make([]float64, portLen(port, bufferSize))
				s.in[portIdx] = scratch
				s.sums = append(s.sums, sumSpec{dst: scratch, srcs: srcs})
			}
		}

		p.index[id] = len(p.steps)
		p.steps = append(p.steps, s)
	}

	return p, nil
}

// inputSources resolves the effective source buffers feeding one input
// port. Feedback connections get a dedicated previous-buffer copy.
func (p *program) inputSources(flat *graph.Graph, outBufs map[string][][]float64, id string, portIdx int, port graph.Port) [][]float64 {
	var srcs [][]float64

	for _, c := range flat.Incoming(id) {
		if c.ToPort != portIdx {
			continue
		}

		src := outBufs[c.From][c.FromPort]
		if port.Feedback {
			prev := make([]float64, len(src))
			p.feedback = append(p.feedback, copyEdge{dst: prev, src: src})
			src = prev
		}

		srcs = append(srcs, src)
	}

	return srcs
}

func buildRuntime(ctx Context, reg *Registry, n *graph.Node) (Runtime, error) {
	if n.Kind() == graph.KindScript {
		return newScriptRuntime(ctx, n)
	}

	factory := reg.Lookup(n.Type())
	if factory == nil {
		return nil, fmt.Errorf("engine: %w: %s", ErrUnknownType, n.Type())
	}

	rt, err := factory(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("engine: build node %s (%s): %w", n.ID(), n.Type(), err)
	}

	return rt, nil
}

func portLen(port graph.Port, bufferSize int) int {
	if port.Signal == graph.SignalControl {
		return 1
	}
	return bufferSize
}

// nodeParams snapshots a node's current parameter values. The map is
// always non-nil so applyParam never allocates on the processing path.
func nodeParams(g *graph.Graph, id string) Params {
	infos, err := g.Parameters(id)
	if err != nil {
		return Params{}
	}

	params := make(Params, len(infos))
	for _, info := range infos {
		params[info.Name] = info.Current
	}

	return params
}

// flattenInto expands g into dst, replacing every subroutine node by
// its subgraph contents under a namespaced ID and rewiring outer
// connections through the exported ports.
func flattenInto(dst *graph.Graph, g *graph.Graph, prefix string) error {
	for _, n := range g.Nodes() {
		if n.Kind() == graph.KindSubroutine {
			if err := flattenInto(dst, n.Subgraph(), prefix+n.ID()+flatSep); err != nil {
				return err
			}
			continue
		}

		flatID := prefix + n.ID()
		if _, err := dst.AddNodeWithID(flatID, n.Spec()); err != nil {
			return err
		}

		infos, err := g.Parameters(n.ID())
		if err != nil {
			return err
		}
		for _, info := range infos {
			if _, _, err := dst.SetParameter(flatID, info.Name, info.Current); err != nil {
				return err
			}
		}
	}

	for _, c := range g.Connections() {
		from, fromPort := resolveOutput(g, prefix, c.From, c.FromPort)
		to, toPort := resolveInput(g, prefix, c.To, c.ToPort)

		if err := dst.Connect(from, fromPort, to, toPort); err != nil {
			return err
		}
	}

	return nil
}

func resolveOutput(g *graph.Graph, prefix, id string, port int) (string, int) {
	n, ok := g.Node(id)
	if !ok || n.Kind() != graph.KindSubroutine {
		return prefix + id, port
	}

	ex := n.Spec().SubOutputs[port]

	return resolveOutput(n.Subgraph(), prefix+id+flatSep, ex.NodeID, ex.PortIndex)
}

func resolveInput(g *graph.Graph, prefix, id string, port int) (string, int) {
	n, ok := g.Node(id)
	if !ok || n.Kind() != graph.KindSubroutine {
		return prefix + id, port
	}

	ex := n.Spec().SubInputs[port]

	return resolveInput(n.Subgraph(), prefix+id+flatSep, ex.NodeID, ex.PortIndex)
}

// process walks one buffer through every step in order. It is the hot
// path: no allocation except on fault reporting, no locks, no I/O.
func (p *program) process(events *eventRing) {
	zeroBlock(p.ctx.Master)

	deadline := time.Now().Add(p.period)

	for i := range p.steps {
		s := &p.steps[i]

		for _, sum := range s.sums {
			zeroBlock(sum.dst)
			for _, src := range sum.srcs {
				vecmath.AddBlockInPlace(sum.dst, src)
			}
		}

		started := time.Now()

		if err := s.rt.Process(p.ctx, s.in, s.out); err != nil {
			events.push(Event{
				Kind:    EventScriptFault,
				Node:    s.id,
				Elapsed: time.Since(started),
				Err:     err,
			})
		}

		// Flag the node only when the deadline fell during its own
		// Process call, so one culprit does not mark every node after
		// it as late too.
		if time.Now().After(deadline) && started.Before(deadline) {
			for _, buf := range s.out {
				zeroBlock(buf)
			}
			events.push(Event{
				Kind:    EventDeadlineMiss,
				Node:    s.id,
				Elapsed: time.Since(started),
			})
		}
	}

	for _, fb := range p.feedback {
		copy(fb.dst, fb.src)
	}
}

// applyParam updates one step's parameter snapshot and reconfigures
// its runtime. Runs in the processing context at a buffer boundary.
func (p *program) applyParam(stepIdx int, name string, value float64) error {
	s := &p.steps[stepIdx]
	s.params[name] = value

	return s.rt.Configure(p.ctx, s.params)
}

// reset clears all runtime state, so a stopped program can run again
// from silence.
func (p *program) reset() {
	for i := range p.steps {
		if r, ok := p.steps[i].rt.(Resetter); ok {
			r.Reset()
		}
	}

	for _, fb := range p.feedback {
		zeroBlock(fb.dst)
	}

	zeroBlock(p.ctx.Input)
	zeroBlock(p.ctx.Master)
}
