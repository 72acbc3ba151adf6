package script

import (
	"fmt"
	"math"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

// sandboxFuncs is the full set of functions a script may call. All are
// pure numeric transforms; there is deliberately no way to reach
// timers, I/O, or host state from here.
var sandboxFuncs = map[string]function.Function{
	"abs":   unaryFunc(math.Abs),
	"floor": unaryFunc(math.Floor),
	"ceil":  unaryFunc(math.Ceil),
	"sin":   unaryFunc(math.Sin),
	"cos":   unaryFunc(math.Cos),
	"tan":   unaryFunc(math.Tan),
	"tanh":  unaryFunc(math.Tanh),
	"exp":   unaryFunc(math.Exp),
	"log":   unaryFunc(math.Log),
	"sqrt":  unaryFunc(math.Sqrt),
	"pow":   binaryFunc(math.Pow),
	"min":   binaryFunc(math.Min),
	"max":   binaryFunc(math.Max),
	"clamp": clampFunc(),
}

func unaryFunc(impl func(float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "x", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			x, _ := args[0].AsBigFloat().Float64()
			return numberVal(impl(x))
		},
	})
}

func binaryFunc(impl func(a, b float64) float64) function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "a", Type: cty.Number},
			{Name: "b", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			a, _ := args[0].AsBigFloat().Float64()
			b, _ := args[1].AsBigFloat().Float64()
			return numberVal(impl(a, b))
		},
	})
}

func clampFunc() function.Function {
	return function.New(&function.Spec{
		Params: []function.Parameter{
			{Name: "x", Type: cty.Number},
			{Name: "lo", Type: cty.Number},
			{Name: "hi", Type: cty.Number},
		},
		Type: function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			x, _ := args[0].AsBigFloat().Float64()
			lo, _ := args[1].AsBigFloat().Float64()
			hi, _ := args[2].AsBigFloat().Float64()
			return numberVal(math.Min(math.Max(x, lo), hi))
		},
	})
}

// numberVal converts a float to a cty number, rejecting non-finite
// results so they surface as evaluation faults instead of propagating
// NaN into the output stream.
func numberVal(v float64) (cty.Value, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return cty.NilVal, fmt.Errorf("non-finite result: %v", v)
	}
	return cty.NumberFloatVal(v), nil
}
