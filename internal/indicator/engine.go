package indicator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

// pipeline holds one symbol+TF's bar series and every node built over it.
type pipeline struct {
	bars    *series.BarSeries
	nodes   map[string]Node
	configs map[string]IndicatorConfig // by config Key
}

// resolve maps an input name to a bar field or an already built node.
func (p *pipeline) resolve(name string) (series.Source, error) {
	if f, ok := model.ParseField(name); ok {
		return p.bars.Field(f), nil
	}
	if n, ok := p.nodes[name]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("input %q not built", name)
}

func (p *pipeline) close() {
	for _, n := range p.nodes {
		n.Close()
	}
}

// Engine maintains one pipeline per symbol and timeframe, built lazily on the
// first bar. Designed for single-goroutine usage; no locks.
type Engine struct {
	configs  []IndicatorConfig
	order    []int
	maxDepth int

	// pipelines[bar.Key()]
	pipelines map[string]*pipeline

	// OnPipeline is called after a new symbol pipeline is built.
	OnPipeline func(key string, nodes int)
}

// NewEngine validates configs and creates an engine. maxDepth <= 0 means
// DefaultMaxDepth.
func NewEngine(configs []IndicatorConfig, maxDepth int) (*Engine, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	order, err := plan(configs, maxDepth)
	if err != nil {
		return nil, fmt.Errorf("indicator configs: %w", err)
	}
	return &Engine{
		configs:   configs,
		order:     order,
		maxDepth:  maxDepth,
		pipelines: make(map[string]*pipeline, 64),
	}, nil
}

// Configs returns the active configuration.
func (e *Engine) Configs() []IndicatorConfig { return e.configs }

// Outputs lists every node name in configuration order.
func (e *Engine) Outputs() []string {
	var names []string
	for _, c := range e.configs {
		names = append(names, c.Outputs()...)
	}
	return names
}

// Process applies one bar to its symbol's pipeline: a new bar appends, a
// revision replaces the newest bar. The returned results hold the tail of
// every node that has produced output.
func (e *Engine) Process(bar model.Bar, revise bool) ([]model.IndicatorResult, error) {
	key := bar.Key()
	p, ok := e.pipelines[key]
	if !ok {
		var err error
		p, err = e.buildPipeline(bar.Symbol, bar.TF)
		if err != nil {
			return nil, fmt.Errorf("build pipeline %s: %w", key, err)
		}
		e.pipelines[key] = p
		if e.OnPipeline != nil {
			e.OnPipeline(key, len(p.nodes))
		}
	}

	var err error
	if revise {
		err = p.bars.Revise(bar)
	} else {
		err = p.bars.Append(bar)
	}
	if err != nil {
		return nil, fmt.Errorf("process %s: %w", key, err)
	}
	return e.results(p, bar, revise), nil
}

func (e *Engine) results(p *pipeline, bar model.Bar, revise bool) []model.IndicatorResult {
	out := make([]model.IndicatorResult, 0, len(p.nodes))
	for _, c := range e.configs {
		for _, name := range c.Outputs() {
			n := p.nodes[name]
			smp, ok := n.Last()
			if !ok {
				continue
			}
			out = append(out, model.IndicatorResult{
				Name:    name,
				Symbol:  bar.Symbol,
				TF:      bar.TF,
				Value:   smp.Value,
				TS:      smp.TS,
				Hot:     n.Hot(),
				Revised: revise,
			})
		}
	}
	return out
}

func (e *Engine) buildPipeline(symbol string, tf int) (*pipeline, error) {
	p := &pipeline{
		bars:    series.NewBarSeries(symbol, tf),
		nodes:   make(map[string]Node, len(e.configs)),
		configs: make(map[string]IndicatorConfig, len(e.configs)),
	}
	for _, i := range e.order {
		if err := p.add(e.configs[i]); err != nil {
			p.close()
			return nil, err
		}
	}
	return p, nil
}

// add builds the nodes for one config. Upstreams that already hold samples
// are replayed into the new node before it goes live.
func (p *pipeline) add(c IndicatorConfig) error {
	src, err := p.resolve(c.input())
	if err != nil {
		return err
	}
	var right series.Source
	if c.Right != "" {
		if right, err = p.resolve(c.Right); err != nil {
			return err
		}
	}

	key := c.Key()
	opts := c.options()
	t := strings.ToUpper(c.Type)

	var n Node
	switch c.family() {
	case famWindow:
		n, err = NewWindowed(key, src, windowTypes[t], c.Period, opts...)
	case famPole:
		switch t {
		case "EMA":
			n, err = NewEMA(key, src, c.Period, opts...)
		case "SMOOTH":
			n, err = NewSmooth(key, src, c.Alpha, c.Period, opts...)
		default:
			n, err = NewRMA(key, src, c.Period, opts...)
		}
	case famCascade:
		combine := LastStage
		switch t {
		case "DEMA":
			combine = DEMACombine
		case "TEMA":
			combine = TEMACombine
		}
		n, err = NewCascaded(key, src, c.stages(), c.Period, combine, opts...)
	case famRSI:
		n, err = NewRSI(key, src, c.Period, opts...)
	case famCross:
		n, err = NewCross(key, src, right)
	case famPairwise:
		if c.Scalar != nil {
			n, err = NewScalar(key, src, t, *c.Scalar)
		} else {
			n, err = NewPairwise(key, src, right, t)
		}
	case famMACD:
		f, s, g := c.macdPeriods()
		var m *MACD
		if m, err = NewMACD(key, src, f, s, g, opts...); err != nil {
			return err
		}
		p.nodes[m.Line.Name()] = m.Line
		p.nodes[m.Signal.Name()] = m.Signal
		p.nodes[m.Hist.Name()] = m.Hist
		p.configs[key] = c
		return nil
	default:
		return fmt.Errorf("unknown indicator type %q", c.Type)
	}
	if err != nil {
		return err
	}
	p.nodes[key] = n
	p.configs[key] = c
	return nil
}

// Node returns a node of the pipeline keyed "symbol:tf", e.g. for an
// external subscriber.
func (e *Engine) Node(key, name string) (Node, bool) {
	p, ok := e.pipelines[key]
	if !ok {
		return nil, false
	}
	n, ok := p.nodes[name]
	return n, ok
}

// Bars returns the bar series of a pipeline.
func (e *Engine) Bars(key string) (*series.BarSeries, bool) {
	p, ok := e.pipelines[key]
	if !ok {
		return nil, false
	}
	return p.bars, true
}

// Keys lists the pipelines built so far, sorted.
func (e *Engine) Keys() []string {
	keys := make([]string, 0, len(e.pipelines))
	for k := range e.pipelines {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookback is the number of bars that warms every node.
func (e *Engine) Lookback() int { return Lookback(e.configs) }

// Close detaches every node of every pipeline.
func (e *Engine) Close() {
	for _, p := range e.pipelines {
		p.close()
	}
}
