package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-patch/graph"
	"github.com/cwbudde/algo-patch/internal/ctxlog"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// State is the engine lifecycle phase.
type State int32

const (
	// StateIdle means no program has been compiled yet.
	StateIdle State = iota
	// StatePrepared means a program is compiled and buffers are
	// allocated, but processing has not started.
	StatePrepared
	// StateRunning means ProcessBuffer is being serviced.
	StateRunning
	// StateStopped means processing halted; Start resumes from silence.
	StateStopped
)

// String returns the canonical state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePrepared:
		return "prepared"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

var (
	// ErrNotPrepared is returned when an operation needs a compiled
	// program and none exists.
	ErrNotPrepared = errors.New("engine: not prepared")
	// ErrNotRunning is returned by ProcessBuffer outside the Running state.
	ErrNotRunning = errors.New("engine: not running")
	// ErrRunning is returned when Prepare is called while processing.
	ErrRunning = errors.New("engine: stop before re-preparing")
	// ErrBufferShape is returned when host channel buffers do not
	// match the prepared buffer size.
	ErrBufferShape = errors.New("engine: host buffer length mismatch")

	errQueueFull = errors.New("engine: parameter queue full")
)

const paramQueueSize = 256

// paramUpdate is keyed by flattened node ID, not step index: the
// program may be swapped between enqueue and drain, and indices do
// not survive a swap.
type paramUpdate struct {
	node  string
	name  string
	value float64
}

// Engine owns a graph and runs compiled snapshots of it against
// fixed-size buffers. All methods except ProcessBuffer belong to the
// control context; ProcessBuffer belongs to the host's processing
// callback and is safe against concurrent control-side calls.
type Engine struct {
	reg *Registry
	g   *graph.Graph

	state   atomic.Int32
	prog    atomic.Pointer[program]
	updates chan paramUpdate
	events  eventRing

	sampleRate float64
	bufferSize int
}

// New returns an engine for the given graph and registry.
func New(g *graph.Graph, reg *Registry) *Engine {
	return &Engine{
		g:       g,
		reg:     reg,
		updates: make(chan paramUpdate, paramQueueSize),
	}
}

// Graph returns the graph the engine was built around. It must only
// be edited from the control context; structural edits take effect on
// the next Prepare or Apply.
func (e *Engine) Graph() *graph.Graph { return e.g }

// State returns the current lifecycle phase.
func (e *Engine) State() State { return State(e.state.Load()) }

// Prepare compiles the graph into a program for the given format and
// allocates every working buffer. No allocation happens on the
// processing path afterwards. A failed Prepare leaves the engine Idle.
func (e *Engine) Prepare(ctx context.Context, sampleRate float64, bufferSize int) error {
	if e.State() == StateRunning {
		return ErrRunning
	}

	prog, err := compile(e.g, e.reg, sampleRate, bufferSize)
	if err != nil {
		e.state.Store(int32(StateIdle))
		return err
	}

	e.sampleRate = sampleRate
	e.bufferSize = bufferSize
	e.prog.Store(prog)
	e.state.Store(int32(StatePrepared))

	ctxlog.FromContext(ctx).Info("engine prepared",
		"nodes", len(prog.steps),
		"sampleRate", sampleRate,
		"bufferSize", bufferSize,
		"period", prog.period,
	)

	return nil
}

// Start transitions to Running. Starting from Stopped resumes from
// silence: all node state is reset first.
func (e *Engine) Start() error {
	switch e.State() {
	case StatePrepared:
	case StateStopped:
		e.prog.Load().reset()
	case StateRunning:
		return nil
	default:
		return ErrNotPrepared
	}

	e.state.Store(int32(StateRunning))

	return nil
}

// Stop halts processing cooperatively: an in-flight ProcessBuffer call
// completes, subsequent calls deliver silence.
func (e *Engine) Stop() {
	if e.State() == StateRunning {
		e.state.Store(int32(StateStopped))
	}
}

// Apply recompiles the current graph and publishes the new program.
// The processing context picks it up at the next buffer boundary, so
// every buffer runs against one consistent snapshot. Node state does
// not carry over.
func (e *Engine) Apply(ctx context.Context) error {
	if e.State() == StateIdle {
		return ErrNotPrepared
	}

	prog, err := compile(e.g, e.reg, e.sampleRate, e.bufferSize)
	if err != nil {
		return err
	}

	e.prog.Store(prog)

	ctxlog.FromContext(ctx).Info("engine program swapped", "nodes", len(prog.steps))

	return nil
}

// SetParameter validates and clamps a parameter change against the
// graph, then hands the effective value to the processing context,
// which applies it at the next buffer boundary. Nested subroutine
// nodes are addressed as "outerID/innerID". It returns the effective
// value and whether clamping occurred.
func (e *Engine) SetParameter(nodeID, name string, value float64) (float64, bool, error) {
	effective, clamped, err := setGraphParam(e.g, nodeID, name, value)
	if err != nil {
		return 0, false, err
	}

	prog := e.prog.Load()
	if prog == nil {
		return effective, clamped, nil
	}

	if e.State() != StateRunning {
		idx, ok := prog.index[nodeID]
		if !ok {
			return effective, clamped, nil
		}
		if err := prog.applyParam(idx, name, effective); err != nil {
			return effective, clamped, err
		}
		return effective, clamped, nil
	}

	select {
	case e.updates <- paramUpdate{node: nodeID, name: name, value: effective}:
	default:
		return effective, clamped, errQueueFull
	}

	return effective, clamped, nil
}

// setGraphParam walks "outer/inner" paths into subroutine graphs.
func setGraphParam(g *graph.Graph, nodeID, name string, value float64) (float64, bool, error) {
	head, rest, nested := strings.Cut(nodeID, flatSep)
	if !nested {
		return g.SetParameter(nodeID, name, value)
	}

	n, ok := g.Node(head)
	if !ok || n.Kind() != graph.KindSubroutine {
		return 0, false, fmt.Errorf("graph: %w: %s", graph.ErrUnknownNode, nodeID)
	}

	return setGraphParam(n.Subgraph(), rest, name, value)
}

// ProcessBuffer runs one period: host input channels are downmixed
// onto the input bus, the program snapshot processes every node in
// order, and the master bus is written to every output channel. It is
// the real-time entry point and never blocks or allocates on the
// steady-state path.
func (e *Engine) ProcessBuffer(in, out [][]float64) error {
	if e.State() != StateRunning {
		for _, ch := range out {
			zeroBlock(ch)
		}
		return ErrNotRunning
	}

	prog := e.prog.Load()

	for _, ch := range in {
		if len(ch) != prog.ctx.BufferSize {
			return fmt.Errorf("%w: input %d, want %d", ErrBufferShape, len(ch), prog.ctx.BufferSize)
		}
	}
	for _, ch := range out {
		if len(ch) != prog.ctx.BufferSize {
			return fmt.Errorf("%w: output %d, want %d", ErrBufferShape, len(ch), prog.ctx.BufferSize)
		}
	}

	e.drainUpdates(prog)
	e.downmixInput(prog, in)

	prog.process(&e.events)

	for _, ch := range out {
		copy(ch, prog.ctx.Master)
	}

	return nil
}

func (e *Engine) drainUpdates(prog *program) {
	for {
		select {
		case u := <-e.updates:
			idx, ok := prog.index[u.node]
			if !ok {
				continue // node left the graph before the boundary
			}
			if err := prog.applyParam(idx, u.name, u.value); err != nil {
				e.events.push(Event{
					Kind: EventConfigError,
					Node: u.node,
					Err:  err,
				})
			}
		default:
			return
		}
	}
}

func (e *Engine) downmixInput(prog *program, in [][]float64) {
	bus := prog.ctx.Input
	zeroBlock(bus)

	if len(in) == 0 {
		return
	}

	for _, ch := range in {
		vecmath.AddBlockInPlace(bus, ch)
	}

	if len(in) > 1 {
		vecmath.ScaleBlock(bus, bus, 1/float64(len(in)))
	}
}

// Events drains and returns the pending processing events. Call it
// from the control context; the processing context only records.
func (e *Engine) Events() []Event {
	return e.events.drain()
}

// LogEvents drains pending events into the context logger.
func (e *Engine) LogEvents(ctx context.Context) {
	log := ctxlog.FromContext(ctx)

	for _, ev := range e.Events() {
		switch ev.Kind {
		case EventDeadlineMiss:
			log.Warn("node missed buffer deadline", "node", ev.Node, "elapsed", ev.Elapsed)
		case EventScriptFault:
			log.Warn("script node faulted", "node", ev.Node, "elapsed", ev.Elapsed, "err", ev.Err)
		case EventConfigError:
			log.Warn("node rejected parameter change", "node", ev.Node, "err", ev.Err)
		}
	}
}

func budgetDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
