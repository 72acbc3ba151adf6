package engine

import (
	"github.com/cwbudde/algo-patch/graph"
	"github.com/cwbudde/algo-patch/script"
)

type registryConfig struct {
	samples SampleProvider
	sink    SampleSink
}

// RegistryOption configures the default registry.
type RegistryOption func(*registryConfig)

// WithSampleProvider sets the sample storage used by file-player nodes.
func WithSampleProvider(p SampleProvider) RegistryOption {
	return func(c *registryConfig) { c.samples = p }
}

// WithSampleSink sets the capture sink used by recording nodes.
func WithSampleSink(s SampleSink) RegistryOption {
	return func(c *registryConfig) { c.sink = s }
}

// DefaultRegistry returns a Registry pre-populated with all built-in
// node types.
//
//nolint:funlen
func DefaultRegistry(opts ...RegistryOption) *Registry {
	cfg := &registryConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	r := NewRegistry()

	audioIn := graph.Port{Name: "in", Signal: graph.SignalAudio, Summing: true}
	audioOut := graph.Port{Name: "out", Signal: graph.SignalAudio}

	r.MustRegister(graph.Spec{
		Kind:    graph.KindSource,
		Type:    "osc",
		Inputs:  []graph.Port{{Name: "freq", Signal: graph.SignalControl}},
		Outputs: []graph.Port{audioOut},
		Params: []graph.Param{
			{Name: "freq", Min: 0, Max: 20000, Default: 440},
			{Name: "wave", Min: 0, Max: 3, Default: 0},
			{Name: "gain", Min: 0, Max: 4, Default: 1},
		},
	}, newOscRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindSource,
		Type:    "noise",
		Outputs: []graph.Port{audioOut},
		Params: []graph.Param{
			{Name: "gain", Min: 0, Max: 1, Default: 0.5},
			{Name: "seed", Min: 1, Max: 1 << 31, Default: 1},
		},
	}, newNoiseRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindSource,
		Type:    "input",
		Outputs: []graph.Port{audioOut},
		Params: []graph.Param{
			{Name: "gain", Min: 0, Max: 4, Default: 1},
		},
	}, newInputRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindSource,
		Type:    "wav-in",
		Outputs: []graph.Port{audioOut},
		Params: []graph.Param{
			{Name: "sample", Min: 0, Max: 1023, Default: 0},
			{Name: "loop", Min: 0, Max: 1, Default: 1},
			{Name: "gain", Min: 0, Max: 4, Default: 1},
		},
	}, func(ctx Context, node *graph.Node) (Runtime, error) {
		return newWavInRuntime(ctx, node, cfg.samples)
	})

	r.MustRegister(graph.Spec{
		Kind:    graph.KindControl,
		Type:    "const",
		Outputs: []graph.Port{{Name: "value", Signal: graph.SignalControl}},
		Params: []graph.Param{
			{Name: "value", Min: -20000, Max: 20000, Default: 0},
		},
	}, newConstRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindControl,
		Type:    "lfo",
		Outputs: []graph.Port{{Name: "out", Signal: graph.SignalControl}},
		Params: []graph.Param{
			{Name: "freq", Min: 0, Max: 100, Default: 1},
			{Name: "wave", Min: 0, Max: 3, Default: 0},
			{Name: "depth", Min: 0, Max: 20000, Default: 1},
			{Name: "offset", Min: -20000, Max: 20000, Default: 0},
		},
	}, newLFORuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindEffect,
		Type:    "filter",
		Inputs:  []graph.Port{audioIn, {Name: "freq", Signal: graph.SignalControl}},
		Outputs: []graph.Port{audioOut},
		Params: []graph.Param{
			{Name: "shape", Min: 0, Max: 6, Default: 0},
			{Name: "freq", Min: 10, Max: 20000, Default: 1000},
			{Name: "q", Min: 0.025, Max: 40, Default: 0.7071},
			{Name: "gainDb", Min: -24, Max: 24, Default: 0},
		},
	}, newFilterRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindEffect,
		Type:    "delay",
		Inputs:  []graph.Port{audioIn},
		Outputs: []graph.Port{audioOut},
		Params: []graph.Param{
			{Name: "timeMs", Min: 0, Max: 2000, Default: 250},
			{Name: "feedback", Min: 0, Max: 0.99, Default: 0.3},
			{Name: "mix", Min: 0, Max: 1, Default: 0.5},
		},
	}, newDelayRuntime)

	r.MustRegister(graph.Spec{
		Kind: graph.KindEffect,
		Type: "fbdelay",
		Inputs: []graph.Port{
			audioIn,
			{Name: "fb", Signal: graph.SignalAudio, Summing: true, Feedback: true},
		},
		Outputs: []graph.Port{audioOut},
		Params: []graph.Param{
			{Name: "timeMs", Min: 0, Max: 2000, Default: 250},
			{Name: "feedback", Min: 0, Max: 0.99, Default: 0.5},
		},
	}, newFeedbackDelayRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindEffect,
		Type:    "gain",
		Inputs:  []graph.Port{audioIn, {Name: "gain", Signal: graph.SignalControl}},
		Outputs: []graph.Port{audioOut},
		Params: []graph.Param{
			{Name: "gain", Min: 0, Max: 4, Default: 1},
		},
	}, newGainRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindAnalyzer,
		Type:    "meter",
		Inputs:  []graph.Port{audioIn},
		Outputs: []graph.Port{{Name: "level", Signal: graph.SignalControl}},
		Params: []graph.Param{
			{Name: "attackMs", Min: 0.01, Max: 100, Default: 5},
			{Name: "releaseMs", Min: 0.01, Max: 10000, Default: 50},
		},
	}, newMeterRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindAnalyzer,
		Type:    "spectrum",
		Inputs:  []graph.Port{audioIn},
		Outputs: []graph.Port{{Name: "centroid", Signal: graph.SignalControl}},
		Params: []graph.Param{
			{Name: "size", Min: 256, Max: 8192, Default: 1024},
			{Name: "smoothing", Min: 0, Max: 0.99, Default: 0.8},
		},
	}, newSpectrumRuntime)

	r.MustRegister(graph.Spec{
		Kind:   graph.KindOutput,
		Type:   "out",
		Inputs: []graph.Port{audioIn},
		Params: []graph.Param{
			{Name: "gain", Min: 0, Max: 4, Default: 1},
		},
	}, newOutRuntime)

	r.MustRegister(graph.Spec{
		Kind:    graph.KindOutput,
		Type:    "wav-out",
		Inputs:  []graph.Port{audioIn},
		Outputs: []graph.Port{audioOut},
	}, func(ctx Context, node *graph.Node) (Runtime, error) {
		return newWavOutRuntime(ctx, node, cfg.sink)
	})

	return r
}

// scriptSpec derives the graph spec of a script node from its compiled
// source: one audio input, one audio output, and the declared params.
func scriptSpec(typ, source string) (graph.Spec, error) {
	compiled, err := script.Compile(source)
	if err != nil {
		return graph.Spec{}, err
	}

	decls := compiled.Params()
	params := make([]graph.Param, len(decls))
	for i, d := range decls {
		params[i] = graph.Param{Name: d.Name, Min: d.Min, Max: d.Max, Default: d.Default}
	}

	if typ == "" {
		typ = "script"
	}

	return graph.Spec{
		Kind:    graph.KindScript,
		Type:    typ,
		Inputs:  []graph.Port{{Name: "in", Signal: graph.SignalAudio, Summing: true}},
		Outputs: []graph.Port{{Name: "out", Signal: graph.SignalAudio}},
		Params:  params,
		Script:  source,
	}, nil
}
