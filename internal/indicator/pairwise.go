package indicator

import (
	"math"

	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// Ops maps pairwise type names to their operation. Comparisons yield 1 or 0,
// and NaN when either side is NaN.
var Ops = map[string]series.Op{
	"ADD": func(l, r float64) float64 { return l + r },
	"SUB": func(l, r float64) float64 { return l - r },
	"MUL": func(l, r float64) float64 { return l * r },
	"DIV": func(l, r float64) float64 { return l / r },
	"MAX": math.Max,
	"MIN": math.Min,
	"GT":  compare(func(l, r float64) bool { return l > r }),
	"LT":  compare(func(l, r float64) bool { return l < r }),
}

func compare(pred func(l, r float64) bool) series.Op {
	return func(l, r float64) float64 {
		if math.IsNaN(l) || math.IsNaN(r) {
			return math.NaN()
		}
		if pred(l, r) {
			return 1
		}
		return 0
	}
}

func lookupOp(op string) (series.Op, error) {
	fn, ok := Ops[op]
	if !ok {
		return nil, series.Configf("pairwise", "op", "unknown operation %q", op)
	}
	return fn, nil
}

// NewPairwise combines two sources with a named operation.
func NewPairwise(name string, left, right series.Source, op string) (*series.Pair, error) {
	fn, err := lookupOp(op)
	if err != nil {
		return nil, err
	}
	return series.NewPair(name, left, right, fn)
}

// Scalar is the one-source form of a pairwise combinator: the right side is a
// constant. It is hot when its upstream is.
type Scalar struct {
	*series.Derived[struct{}]
	src series.Source
}

// Hot follows the upstream.
func (s *Scalar) Hot() bool { return s.Len() > 0 && s.src.Hot() }

// NewScalar combines src with a constant right operand.
func NewScalar(name string, src series.Source, op string, k float64) (*Scalar, error) {
	fn, err := lookupOp(op)
	if err != nil {
		return nil, err
	}
	tr := series.TransformFunc[struct{}](func(v float64, _ bool, s struct{}) (float64, struct{}) {
		return fn(v, k), s
	})
	d, err := series.NewDerived[struct{}](name, src, tr, series.Warmup{Period: 1})
	if err != nil {
		return nil, err
	}
	return &Scalar{Derived: d, src: src}, nil
}
