package engine

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-patch/graph"
)

// Context provides environmental information that node runtimes need.
// Input and Master are the engine's external buses: Input holds the
// downmixed host input for the current period, Master accumulates
// everything the output nodes deliver.
type Context struct {
	SampleRate float64
	BufferSize int

	Input  []float64
	Master []float64
}

// Period returns the wall-clock duration of one buffer.
func (c Context) Period() float64 {
	if c.SampleRate <= 0 {
		return 0
	}
	return float64(c.BufferSize) / c.SampleRate
}

// Runtime is the per-node processing and configuration contract. The
// slices of in and out are the node's port buffers in declaration
// order; control ports carry a single value, audio ports a full block.
// Process must not allocate, perform I/O, or block. A non-nil error
// reports a node-local fault; the scheduler records it and continues.
type Runtime interface {
	Configure(ctx Context, params Params) error
	Process(ctx Context, in, out [][]float64) error
}

// Resetter is an optional interface for runtimes with internal state
// that Stop should clear before the next run.
type Resetter interface {
	Reset()
}

// SampleProvider supplies preloaded sample data to runtimes that play
// files, without the engine depending on application storage.
type SampleProvider interface {
	Sample(index int) (data []float64, sampleRate float64, ok bool)
}

// SampleSink receives the capture stream of recording nodes. Append is
// called from the processing context once per buffer.
type SampleSink interface {
	Append(block []float64)
}

// Factory builds one Runtime instance for a node.
type Factory func(ctx Context, node *graph.Node) (Runtime, error)

var (
	// ErrUnknownType is returned when no factory or spec is registered
	// for a node type name.
	ErrUnknownType = errors.New("unknown node type")

	errDuplicateType = errors.New("duplicate node type")
)

type registration struct {
	spec    graph.Spec
	factory Factory
}

// Registry maps node type names to their specs and runtime factories.
// It implements graph.Resolver, so a registry deserializes the graphs
// it can run.
type Registry struct {
	types map[string]registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]registration)}
}

// Register adds a node type with its port/param spec and factory.
func (r *Registry) Register(spec graph.Spec, factory Factory) error {
	if spec.Type == "" {
		return errors.New("empty node type")
	}

	if factory == nil {
		return errors.New("nil factory")
	}

	if _, exists := r.types[spec.Type]; exists {
		return fmt.Errorf("%w: %s", errDuplicateType, spec.Type)
	}

	r.types[spec.Type] = registration{spec: spec, factory: factory}

	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(spec graph.Spec, factory Factory) {
	err := r.Register(spec, factory)
	if err != nil {
		panic("engine registry: " + err.Error())
	}
}

// Spec returns the registered spec for a node type.
func (r *Registry) Spec(typ string) (graph.Spec, error) {
	reg, ok := r.types[typ]
	if !ok {
		return graph.Spec{}, fmt.Errorf("%w: %s", ErrUnknownType, typ)
	}
	return reg.spec, nil
}

// Lookup returns the factory for the given node type, or nil.
func (r *Registry) Lookup(typ string) Factory {
	return r.types[typ].factory
}

// Types returns the registered type names in no particular order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.types))
	for typ := range r.types {
		out = append(out, typ)
	}
	return out
}

// Resolve implements graph.Resolver. Script nodes derive their param
// spec from the compiled source; every other type must be registered.
func (r *Registry) Resolve(kind graph.Kind, typ, source string) (graph.Spec, error) {
	if kind == graph.KindScript {
		return scriptSpec(typ, source)
	}

	spec, err := r.Spec(typ)
	if err != nil {
		return graph.Spec{}, err
	}

	if spec.Kind != kind {
		return graph.Spec{}, fmt.Errorf("node type %q is %s, not %s", typ, spec.Kind, kind)
	}

	return spec, nil
}
