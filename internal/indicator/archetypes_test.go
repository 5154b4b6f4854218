package indicator

import (
	"errors"
	"math"
	"testing"

	"github.com/mihakralj/QuanTAlib-sub003/internal/series"
)

var nan = math.NaN()

// ────────────────────────────────────────────────────────────
// Windowed aggregate
// ────────────────────────────────────────────────────────────

func TestSMA_WarmupNaNOnCold(t *testing.T) {
	src := series.New("close")
	sma := must[*series.Derived[WindowState]](t)(NewSMA("SMA_3", src, 3, NaNOnCold()))
	feed(t, src, 1, 2, 3, 4, 5)
	assertValues(t, "SMA_3", values(sma), []float64{nan, nan, 2, 3, 4})
	if !sma.Hot() {
		t.Error("expected hot after 5 inputs")
	}
}

func TestSMA_SmallWindowRevise(t *testing.T) {
	src := series.New("close")
	sma := must[*series.Derived[WindowState]](t)(NewSMA("SMA_2", src, 2, NaNOnCold()))
	feed(t, src, 2, 4, 6)
	assertValues(t, "before", values(sma), []float64{nan, 3, 5})
	revise(t, src, 10)
	assertValues(t, "after", values(sma), []float64{nan, 3, 7})
}

func TestSMA_BestEffortWhileCold(t *testing.T) {
	src := series.New("close")
	sma := must[*series.Derived[WindowState]](t)(NewSMA("SMA_4", src, 4))
	feed(t, src, 2, 4)
	assertValues(t, "partial", values(sma), []float64{2, 3})
	if sma.Hot() {
		t.Error("hot before period inputs")
	}
}

func TestWindow_Kinds(t *testing.T) {
	cases := []struct {
		kind   WindowKind
		period int
		in     []float64
		want   []float64
	}{
		{WindowSum, 2, []float64{1, 2, 3}, []float64{1, 3, 5}},
		{WindowVar, 3, []float64{1, 2, 3}, []float64{0, 0.25, 2.0 / 3}},
		{WindowStdDev, 2, []float64{1, 3, 3}, []float64{0, 1, 0}},
		{WindowMin, 3, []float64{5, 1, 3, 2, 4}, []float64{5, 1, 1, 1, 2}},
		{WindowMax, 3, []float64{5, 1, 3, 2, 4}, []float64{5, 5, 5, 3, 4}},
		{WindowMedian, 3, []float64{5, 1, 3, 2, 4}, []float64{5, 3, 3, 2, 3}},
	}
	for _, tc := range cases {
		t.Run(tc.kind.String(), func(t *testing.T) {
			src := series.New("close")
			w := must[*series.Derived[WindowState]](t)(NewWindowed(tc.kind.String(), src, tc.kind, tc.period))
			feed(t, src, tc.in...)
			assertValues(t, tc.kind.String(), values(w), tc.want)
		})
	}
}

func TestWindow_ReviseUsesLastEviction(t *testing.T) {
	src := series.New("close")
	sum := must[*series.Derived[WindowState]](t)(NewWindowed("SUM_2", src, WindowSum, 2))
	lo := must[*series.Derived[WindowState]](t)(NewWindowed("MIN_3", src, WindowMin, 3))
	feed(t, src, 1, 2, 3)
	revise(t, src, 10)
	assertValues(t, "sum", values(sum), []float64{1, 3, 12})
	revise(t, src, 0)
	assertValues(t, "sum again", values(sum), []float64{1, 3, 2})
	assertValues(t, "min", values(lo), []float64{1, 1, 0})
}

func TestWindow_NaNPoisonsRunningSum(t *testing.T) {
	src := series.New("close")
	sma := must[*series.Derived[WindowState]](t)(NewSMA("SMA_2", src, 2))
	feed(t, src, 1, nan, 3, 4, 5)
	for i, v := range values(sma)[1:] {
		if !math.IsNaN(v) {
			t.Errorf("sample %d: expected NaN, got %v", i+1, v)
		}
	}
}

func TestWindow_Configuration(t *testing.T) {
	var cfg *series.ConfigurationError
	if _, err := NewSMA("SMA_0", series.New("x"), 0); !errors.As(err, &cfg) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if cfg.Param != "period" {
		t.Errorf("param = %q", cfg.Param)
	}
}

// ────────────────────────────────────────────────────────────
// Single-pole filter
// ────────────────────────────────────────────────────────────

func TestSmooth_RollbackFromCommitted(t *testing.T) {
	const k = 0.25
	src := series.New("close")
	f := must[*series.Derived[Pole]](t)(NewSmooth("SMOOTH", src, k, 1))

	feed(t, src, 8)
	V := 8.0
	feed(t, src, 16)
	last, _ := f.Last()
	assertClose(t, "candidate", last.Value, V+k*(16-V), 1e-12)

	revise(t, src, 40)
	last, _ = f.Last()
	assertClose(t, "revised", last.Value, V+k*(40-V), 1e-12)

	committed, _ := f.State()
	assertClose(t, "committed untouched", committed.Value, V, 0)
}

func TestEMA_SMASeed(t *testing.T) {
	// EMA(3): k = 0.5. Seed averages 1, 1.5, 2; then 2+0.5*(4-2)=3, 3+0.5*(5-3)=4.
	src := series.New("close")
	ema := must[*series.Derived[Pole]](t)(NewEMA("EMA_3", src, 3))
	feed(t, src, 1, 2, 3, 4, 5)
	assertValues(t, "EMA_3", values(ema), []float64{1, 1.5, 2, 3, 4})

	revise(t, src, 7)
	assertValues(t, "revised", values(ema), []float64{1, 1.5, 2, 3, 5})
}

func TestEMA_ReviseDuringSeed(t *testing.T) {
	src := series.New("close")
	ema := must[*series.Derived[Pole]](t)(NewEMA("EMA_3", src, 3))
	feed(t, src, 2, 4)
	revise(t, src, 8)
	assertValues(t, "seed", values(ema), []float64{2, 5})
}

func TestRMA_WilderFactor(t *testing.T) {
	src := series.New("close")
	rma := must[*series.Derived[Pole]](t)(NewRMA("RMA_2", src, 2))
	feed(t, src, 2, 4, 8)
	// seed avg(2,4)=3, then 3 + 0.5*(8-3) = 5.5
	assertValues(t, "RMA_2", values(rma), []float64{2, 3, 5.5})
}

func TestSinglePole_Configuration(t *testing.T) {
	for _, k := range []float64{0, -0.1, 1.5, nan} {
		if _, err := NewSinglePole(k, 1); err == nil {
			t.Errorf("k=%v accepted", k)
		}
	}
	if _, err := NewSinglePole(0.5, 0); err == nil {
		t.Error("seed=0 accepted")
	}
}

// ────────────────────────────────────────────────────────────
// Cascade
// ────────────────────────────────────────────────────────────

func TestDEMA_MatchesChainedEMAs(t *testing.T) {
	src := series.New("close")
	e1 := must[*series.Derived[Pole]](t)(NewEMA("E1", src, 3))
	e2 := must[*series.Derived[Pole]](t)(NewEMA("E2", e1, 3))
	e3 := must[*series.Derived[Pole]](t)(NewEMA("E3", e2, 3))
	dema := must[*series.Derived[struct{}]](t)(NewDEMA("DEMA_3", src, 3))
	tema := must[*series.Derived[struct{}]](t)(NewTEMA("TEMA_3", src, 3))

	check := func(label string) {
		t.Helper()
		for i := 0; i < src.Len(); i++ {
			a, b, c := e1.At(i).Value, e2.At(i).Value, e3.At(i).Value
			assertClose(t, label+" dema", dema.At(i).Value, 2*a-b, 1e-9)
			assertClose(t, label+" tema", tema.At(i).Value, 3*a-3*b+c, 1e-9)
		}
	}

	feed(t, src, 10, 11, 13, 12, 15, 18, 17, 16)
	check("live")
	revise(t, src, 25)
	check("revise")
	revise(t, src, 14)
	check("revise twice")
	feed(t, src, 19)
	check("after promote")
}

func TestCascade_Warmup(t *testing.T) {
	src := series.New("close")
	dema := must[*series.Derived[struct{}]](t)(NewDEMA("DEMA_3", src, 3))
	if w := dema.Warmup().Period; w != 5 {
		t.Fatalf("warmup = %d, want 5", w)
	}
	feed(t, src, 1, 2, 3, 4)
	if dema.Hot() {
		t.Error("hot after 4 inputs")
	}
	feed(t, src, 5)
	if !dema.Hot() {
		t.Error("cold after 5 inputs")
	}
}

func TestCascade_StagesRollBackTogether(t *testing.T) {
	live := series.New("close")
	c := must[*series.Derived[struct{}]](t)(NewCascaded("C3", live, 3, 2, LastStage))
	feed(t, live, 4, 8, 6)
	revise(t, live, 100)
	revise(t, live, 6)

	fresh := series.New("close")
	f := must[*series.Derived[struct{}]](t)(NewCascaded("C3", fresh, 3, 2, LastStage))
	feed(t, fresh, 4, 8, 6)

	assertValues(t, "cascade", values(c), values(f))
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_Components(t *testing.T) {
	src := series.New("close")
	m, err := NewMACD("MACD", src, 2, 4, 3)
	if err != nil {
		t.Fatal(err)
	}
	fast := must[*series.Derived[Pole]](t)(NewEMA("F", src, 2))
	slow := must[*series.Derived[Pole]](t)(NewEMA("S", src, 4))

	feed(t, src, 10, 12, 11, 15, 14, 13, 17, 20)
	revise(t, src, 16)

	// Signal is an EMA over the line values.
	lineCopy := series.New("line")
	sig := must[*series.Derived[Pole]](t)(NewEMA("SIG", lineCopy, 3))
	for i := 0; i < src.Len(); i++ {
		line := fast.At(i).Value - slow.At(i).Value
		assertClose(t, "line", m.Line.At(i).Value, line, 1e-9)
		feed(t, lineCopy, line)
		assertClose(t, "signal", m.Signal.At(i).Value, sig.At(i).Value, 1e-9)
		assertClose(t, "hist", m.Hist.At(i).Value, line-sig.At(i).Value, 1e-9)
	}
	if m.Signal.Warmup().Period != 6 || m.Line.Warmup().Period != 4 {
		t.Errorf("warmups line=%d signal=%d", m.Line.Warmup().Period, m.Signal.Warmup().Period)
	}
}

func TestMACD_Configuration(t *testing.T) {
	src := series.New("close")
	if _, err := NewMACD("M", src, 26, 12, 9); err == nil {
		t.Error("fast >= slow accepted")
	}
	if _, err := NewMACD("M", src, 12, 26, 0); err == nil {
		t.Error("signal=0 accepted")
	}
	if src.Subscribers() != 0 {
		t.Errorf("failed constructions left %d subscriptions", src.Subscribers())
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_Wilder(t *testing.T) {
	src := series.New("close")
	rsi := must[*series.Derived[RSIState]](t)(NewRSI("RSI_2", src, 2))
	feed(t, src, 1, 2, 1, 3)
	// deltas +1, -1, +2; averages (1,0), (0.5,0.5), (1.25,0.25)
	assertValues(t, "RSI_2", values(rsi), []float64{50, 100, 50, 100 - 100.0/6})
	if !rsi.HotAt(2) || rsi.HotAt(1) {
		t.Error("RSI(2) should be hot from the 3rd input")
	}
}

func TestRSI_AllGainsIs100(t *testing.T) {
	src := series.New("close")
	rsi := must[*series.Derived[RSIState]](t)(NewRSI("RSI_3", src, 3))
	feed(t, src, 1, 2, 3, 4, 5)
	last, _ := rsi.Last()
	assertClose(t, "RSI", last.Value, 100, 0)
}

// ────────────────────────────────────────────────────────────
// Pairwise
// ────────────────────────────────────────────────────────────

func TestPairwise_AlignmentScenario(t *testing.T) {
	l, r := series.New("l"), series.New("r")
	p := must[*series.Pair](t)(NewPairwise("SUB", l, r, "SUB"))
	feed(t, r, 10)
	feed(t, l, 1, 2)
	last, _ := p.Last()
	assertClose(t, "diff", last.Value, -8, 0)
	if p.Len() != 2 || r.Len() != 1 {
		t.Errorf("len = %d (right %d), want 2", p.Len(), r.Len())
	}
}

func TestPairwise_Ops(t *testing.T) {
	cases := map[string]float64{"ADD": 8, "SUB": 4, "MUL": 12, "DIV": 3, "MAX": 6, "MIN": 2, "GT": 1, "LT": 0}
	for op, want := range cases {
		l, r := series.New("l"), series.New("r")
		p := must[*series.Pair](t)(NewPairwise(op, l, r, op))
		feed(t, l, 6)
		feed(t, r, 2)
		last, _ := p.Last()
		assertClose(t, op, last.Value, want, 1e-12)
	}
	if _, err := NewPairwise("POW", series.New("l"), series.New("r"), "POW"); err == nil {
		t.Error("unknown op accepted")
	}
}

func TestPairwise_ComparisonNaN(t *testing.T) {
	if v := Ops["GT"](nan, 1); !math.IsNaN(v) {
		t.Errorf("GT(NaN,1) = %v", v)
	}
	if v := Ops["DIV"](1, 0); !math.IsInf(v, 1) {
		t.Errorf("DIV(1,0) = %v", v)
	}
}

func TestScalar_FollowsUpstreamHot(t *testing.T) {
	src := series.New("close")
	sma := must[*series.Derived[WindowState]](t)(NewSMA("SMA_2", src, 2))
	over := must[*Scalar](t)(NewScalar("GT_SMA_2_3", sma, "GT", 3))
	feed(t, src, 2)
	if over.Hot() {
		t.Error("scalar hot while upstream cold")
	}
	feed(t, src, 6)
	if !over.Hot() {
		t.Error("scalar cold while upstream hot")
	}
	assertValues(t, "GT", values(over), []float64{0, 1})
}

// ────────────────────────────────────────────────────────────
// Crossover
// ────────────────────────────────────────────────────────────

func TestCross_Signals(t *testing.T) {
	fast, slow := series.New("fast"), series.New("slow")
	c := must[*Cross](t)(NewCross("CROSS", fast, slow))
	for _, v := range []float64{1, 3, 1} {
		feed(t, slow, 2)
		feed(t, fast, v)
	}
	assertValues(t, "cross", values(c), []float64{0, 1, -1})
	c.Close()
	if fast.Subscribers() != 0 || slow.Subscribers() != 0 {
		t.Error("close left subscriptions behind")
	}
}

func TestCross_ReviseUndoesSignal(t *testing.T) {
	fast, slow := series.New("fast"), series.New("slow")
	c := must[*Cross](t)(NewCross("CROSS", fast, slow))
	feed(t, slow, 5)
	feed(t, fast, 4)
	feed(t, fast, 6)
	if last, _ := c.Last(); last.Value != 1 {
		t.Fatalf("expected golden cross, got %v", last.Value)
	}
	revise(t, fast, 4.5)
	if last, _ := c.Last(); last.Value != 0 {
		t.Errorf("revised signal = %v, want 0", last.Value)
	}
}

// ────────────────────────────────────────────────────────────
// Properties over every archetype
// ────────────────────────────────────────────────────────────

type builder func(t *testing.T, src series.Source) Node

var archetypes = map[string]builder{
	"SMA": func(t *testing.T, src series.Source) Node {
		return must[*series.Derived[WindowState]](t)(NewSMA("SMA_4", src, 4, NaNOnCold()))
	},
	"MEDIAN": func(t *testing.T, src series.Source) Node {
		return must[*series.Derived[WindowState]](t)(NewWindowed("MEDIAN_4", src, WindowMedian, 4))
	},
	"STDDEV": func(t *testing.T, src series.Source) Node {
		return must[*series.Derived[WindowState]](t)(NewWindowed("STDDEV_3", src, WindowStdDev, 3))
	},
	"EMA": func(t *testing.T, src series.Source) Node {
		return must[*series.Derived[Pole]](t)(NewEMA("EMA_3", src, 3))
	},
	"TEMA": func(t *testing.T, src series.Source) Node {
		return must[*series.Derived[struct{}]](t)(NewTEMA("TEMA_3", src, 3, NaNOnCold()))
	},
	"MACD.hist": func(t *testing.T, src series.Source) Node {
		m, err := NewMACD("MACD", src, 2, 4, 3)
		if err != nil {
			t.Fatal(err)
		}
		return m.Hist
	},
	"RSI": func(t *testing.T, src series.Source) Node {
		return must[*series.Derived[RSIState]](t)(NewRSI("RSI_3", src, 3))
	},
	"scalar": func(t *testing.T, src series.Source) Node {
		return must[*Scalar](t)(NewScalar("MUL_2", src, "MUL", 2))
	},
	"chain": func(t *testing.T, src series.Source) Node {
		ema := must[*series.Derived[Pole]](t)(NewEMA("EMA_2", src, 2))
		return must[*series.Derived[WindowState]](t)(NewSMA("SMA_3", ema, 3))
	},
}

var inputs = []float64{100, 102, 101, 105, 107, 106, 104, 108, 111, 110}

func TestArchetypes_ReplayEquivalence(t *testing.T) {
	for name, build := range archetypes {
		t.Run(name, func(t *testing.T) {
			live := series.New("live")
			ln := build(t, live)
			feed(t, live, inputs...)

			pre := series.New("pre")
			feed(t, pre, inputs...)
			bn := build(t, pre)

			assertValues(t, name, values(bn), values(ln))
			if bn.Hot() != ln.Hot() {
				t.Error("hot flag differs")
			}

			feed(t, live, 99)
			feed(t, pre, 99)
			revise(t, live, 120)
			revise(t, pre, 120)
			assertValues(t, name+" continued", values(bn), values(ln))
		})
	}
}

func TestArchetypes_ReviseIdempotent(t *testing.T) {
	for name, build := range archetypes {
		t.Run(name, func(t *testing.T) {
			src := series.New("src")
			n := build(t, src)
			feed(t, src, inputs...)
			revise(t, src, 95)
			once := values(n)
			revise(t, src, 95)
			assertValues(t, name, values(n), once)
		})
	}
}

func TestArchetypes_ReviseEqualsFreshAppend(t *testing.T) {
	for name, build := range archetypes {
		t.Run(name, func(t *testing.T) {
			a := series.New("a")
			na := build(t, a)
			feed(t, a, inputs...)
			revise(t, a, 50)
			revise(t, a, 130)

			b := series.New("b")
			nb := build(t, b)
			feed(t, b, inputs[:len(inputs)-1]...)
			feed(t, b, 130)

			assertValues(t, name, values(na), values(nb))
		})
	}
}

func TestArchetypes_LengthTracksSource(t *testing.T) {
	for name, build := range archetypes {
		t.Run(name, func(t *testing.T) {
			src := series.New("src")
			n := build(t, src)
			appends := 0
			for i, v := range inputs {
				feed(t, src, v)
				appends++
				for j := 0; j < i%3; j++ {
					revise(t, src, v+float64(j))
				}
				if n.Len() != appends {
					t.Fatalf("after %d appends: len %d", appends, n.Len())
				}
			}
		})
	}
}
