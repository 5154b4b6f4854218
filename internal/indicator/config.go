package indicator

import (
	"fmt"
	"strings"

	"github.com/mihakralj/QuanTAlib-sub003/internal/model"
)

// DefaultMaxDepth bounds how many nodes may be chained behind one another.
// Notifications recurse once per level.
const DefaultMaxDepth = 32

// IndicatorConfig specifies one node of a symbol's pipeline. Input and Right
// name either a bar field (open, high, low, close, volume) or another node.
type IndicatorConfig struct {
	Name      string   `yaml:"name,omitempty" json:"name,omitempty"`
	Type      string   `yaml:"type" json:"type"`
	Input     string   `yaml:"input,omitempty" json:"input,omitempty"` // default "close"
	Right     string   `yaml:"right,omitempty" json:"right,omitempty"`
	Scalar    *float64 `yaml:"scalar,omitempty" json:"scalar,omitempty"`
	Period    int      `yaml:"period,omitempty" json:"period,omitempty"`
	Fast      int      `yaml:"fast,omitempty" json:"fast,omitempty"`
	Slow      int      `yaml:"slow,omitempty" json:"slow,omitempty"`
	Signal    int      `yaml:"signal,omitempty" json:"signal,omitempty"`
	Stages    int      `yaml:"stages,omitempty" json:"stages,omitempty"`
	Alpha     float64  `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	NaNOnCold bool     `yaml:"nan_on_cold,omitempty" json:"nan_on_cold,omitempty"`
}

type family int

const (
	famUnknown family = iota
	famWindow
	famPole
	famCascade
	famMACD
	famRSI
	famCross
	famPairwise
)

var windowTypes = map[string]WindowKind{
	"SUM":    WindowSum,
	"SMA":    WindowMean,
	"VAR":    WindowVar,
	"STDDEV": WindowStdDev,
	"MIN":    WindowMin,
	"MAX":    WindowMax,
	"MEDIAN": WindowMedian,
}

// family classifies the config. MIN and MAX are windowed over one input and
// pairwise when a right operand is given.
func (c IndicatorConfig) family() family {
	t := strings.ToUpper(c.Type)
	if _, ok := Ops[t]; ok && (c.Right != "" || c.Scalar != nil) {
		return famPairwise
	}
	if _, ok := windowTypes[t]; ok {
		return famWindow
	}
	switch t {
	case "EMA", "RMA", "SMMA", "SMOOTH":
		return famPole
	case "DEMA", "TEMA", "CASCADE":
		return famCascade
	case "MACD":
		return famMACD
	case "RSI":
		return famRSI
	case "CROSS":
		return famCross
	}
	if _, ok := Ops[t]; ok {
		return famPairwise
	}
	return famUnknown
}

func (c IndicatorConfig) macdPeriods() (fast, slow, signal int) {
	fast, slow, signal = c.Fast, c.Slow, c.Signal
	if fast == 0 {
		fast = 12
	}
	if slow == 0 {
		slow = 26
	}
	if signal == 0 {
		signal = 9
	}
	return
}

// Key is the node name: Name when set, otherwise TYPE_PERIOD in the style of
// "SMA_20", or TYPE_input_right for combinators.
func (c IndicatorConfig) Key() string {
	if c.Name != "" {
		return c.Name
	}
	t := strings.ToUpper(c.Type)
	switch c.family() {
	case famMACD:
		f, s, g := c.macdPeriods()
		return t + "_" + model.Itoa(f) + "_" + model.Itoa(s) + "_" + model.Itoa(g)
	case famPairwise, famCross:
		if c.Scalar != nil {
			return t + "_" + c.input() + "_" + fmt.Sprint(*c.Scalar)
		}
		return t + "_" + c.input() + "_" + c.Right
	}
	if c.Input != "" && c.Input != "close" {
		return t + "_" + model.Itoa(c.Period) + "_" + c.Input
	}
	return t + "_" + model.Itoa(c.Period)
}

// Outputs lists every node name the config produces.
func (c IndicatorConfig) Outputs() []string {
	k := c.Key()
	if c.family() == famMACD {
		return []string{k, k + ".signal", k + ".hist"}
	}
	return []string{k}
}

func (c IndicatorConfig) input() string {
	if c.Input == "" {
		return model.FieldClose.String()
	}
	return c.Input
}

// Inputs lists the upstream names the config reads from.
func (c IndicatorConfig) Inputs() []string {
	if c.Right != "" {
		return []string{c.input(), c.Right}
	}
	return []string{c.input()}
}

// warmup is the number of inputs the node needs before it is hot.
func (c IndicatorConfig) warmup() int {
	switch c.family() {
	case famCascade:
		return CascadeWarmup(c.stages(), c.Period)
	case famMACD:
		_, s, g := c.macdPeriods()
		return s + g - 1
	case famRSI:
		return c.Period + 1
	case famCross:
		return 2
	case famPairwise:
		return 1
	}
	return c.Period
}

func (c IndicatorConfig) stages() int {
	switch strings.ToUpper(c.Type) {
	case "DEMA":
		return 2
	case "TEMA":
		return 3
	}
	return c.Stages
}

func (c IndicatorConfig) options() []Option {
	if c.NaNOnCold {
		return []Option{NaNOnCold()}
	}
	return nil
}

func (c IndicatorConfig) validate() error {
	switch c.family() {
	case famUnknown:
		return fmt.Errorf("unknown indicator type %q", c.Type)
	case famMACD:
		f, s, g := c.macdPeriods()
		if f <= 0 || s <= 0 || g <= 0 || f >= s {
			return fmt.Errorf("%s: invalid periods fast=%d slow=%d signal=%d", c.Key(), f, s, g)
		}
		return nil
	case famPairwise:
		if (c.Right == "") == (c.Scalar == nil) {
			return fmt.Errorf("%s: exactly one of right and scalar must be set", c.Key())
		}
		return nil
	case famCross:
		if c.Right == "" {
			return fmt.Errorf("%s: right is required", c.Key())
		}
		return nil
	case famCascade:
		if c.stages() <= 0 {
			return fmt.Errorf("%s: invalid stages=%d", c.Key(), c.stages())
		}
	}
	if c.Period <= 0 {
		return fmt.Errorf("%s: invalid period=%d", c.Key(), c.Period)
	}
	if strings.ToUpper(c.Type) == "SMOOTH" && !(c.Alpha > 0 && c.Alpha <= 1) {
		return fmt.Errorf("%s: alpha must be in (0, 1], got %g", c.Key(), c.Alpha)
	}
	return nil
}

// plan validates configs and returns them in build order: every node after
// the nodes it reads from.
func plan(configs []IndicatorConfig, maxDepth int) ([]int, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	owner := make(map[string]int, len(configs))
	for i, c := range configs {
		if err := c.validate(); err != nil {
			return nil, err
		}
		for _, out := range c.Outputs() {
			if _, ok := model.ParseField(out); ok {
				return nil, fmt.Errorf("%s: name collides with bar field", out)
			}
			if j, dup := owner[out]; dup {
				return nil, fmt.Errorf("duplicate indicator %q (configs %d and %d)", out, j, i)
			}
			owner[out] = i
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make([]int, len(configs))
	depth := make([]int, len(configs))
	order := make([]int, 0, len(configs))

	var visit func(i int, path []string) error
	visit = func(i int, path []string) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("cycle: %s", strings.Join(append(path, configs[i].Key()), " -> "))
		}
		state[i] = visiting
		path = append(path, configs[i].Key())
		d := 1
		for _, in := range configs[i].Inputs() {
			if _, ok := model.ParseField(in); ok {
				continue
			}
			j, ok := owner[in]
			if !ok {
				return fmt.Errorf("%s: unknown input %q", configs[i].Key(), in)
			}
			if err := visit(j, path); err != nil {
				return err
			}
			d = max(d, depth[j]+1)
		}
		if d > maxDepth {
			return fmt.Errorf("%s: chain depth %d exceeds max %d", configs[i].Key(), d, maxDepth)
		}
		depth[i] = d
		state[i] = done
		order = append(order, i)
		return nil
	}
	for i := range configs {
		if err := visit(i, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// ValidateConfigs checks a pipeline definition for unknown types, bad
// parameters, duplicate names, dangling inputs, cycles and excessive depth.
func ValidateConfigs(configs []IndicatorConfig, maxDepth int) error {
	_, err := plan(configs, maxDepth)
	return err
}

// Lookback returns how many bars a cold pipeline needs before every node is
// hot, following chained warmups.
func Lookback(configs []IndicatorConfig) int {
	owner := make(map[string]int, len(configs))
	for i, c := range configs {
		for _, out := range c.Outputs() {
			owner[out] = i
		}
	}
	memo := make(map[int]int, len(configs))
	var lb func(i int, guard int) int
	lb = func(i int, guard int) int {
		if v, ok := memo[i]; ok {
			return v
		}
		if guard > len(configs) {
			return 0
		}
		upstream := 0
		for _, in := range configs[i].Inputs() {
			if j, ok := owner[in]; ok {
				upstream = max(upstream, lb(j, guard+1))
			}
		}
		v := configs[i].warmup() + max(upstream-1, 0)
		memo[i] = v
		return v
	}
	total := 0
	for i := range configs {
		total = max(total, lb(i, 0))
	}
	return total
}
