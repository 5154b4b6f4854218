package indicator

import (
	"fmt"
	"log"
)

// ReloadConfigs swaps in a new pipeline definition without losing the
// history already accumulated. Per symbol, a node whose config and upstreams
// are unchanged is kept as is; a new or changed node is bound to its (already
// populated) upstream and bulk-replays it; nodes no longer configured are
// closed. Returns the number of kept, created and removed nodes summed over
// all pipelines.
func (e *Engine) ReloadConfigs(newConfigs []IndicatorConfig) (preserved, created, removed int, err error) {
	order, err := plan(newConfigs, e.maxDepth)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("reload: %w", err)
	}

	nexts := make(map[string]*pipeline, len(e.pipelines))
	abort := func() {
		for key, next := range nexts {
			next.closeNew(e.pipelines[key])
		}
	}

	for key, p := range e.pipelines {
		next := &pipeline{
			bars:    p.bars,
			nodes:   make(map[string]Node, len(newConfigs)),
			configs: make(map[string]IndicatorConfig, len(newConfigs)),
		}
		nexts[key] = next
		rebuilt := make(map[string]bool)

		for _, i := range order {
			c := newConfigs[i]
			k := c.Key()
			old, existed := p.configs[k]
			if existed && sameConfig(old, c) && !dependsOn(c, rebuilt) {
				for _, out := range c.Outputs() {
					next.nodes[out] = p.nodes[out]
				}
				next.configs[k] = c
				preserved += len(c.Outputs())
				continue
			}
			if addErr := next.add(c); addErr != nil {
				abort()
				return 0, 0, 0, fmt.Errorf("reload %s: %w", key, addErr)
			}
			for _, out := range c.Outputs() {
				rebuilt[out] = true
			}
			created += len(c.Outputs())
		}
	}

	// Everything built; retire what the new definition no longer uses.
	for key, next := range nexts {
		for name, n := range e.pipelines[key].nodes {
			if next.nodes[name] != n {
				n.Close()
				removed++
			}
		}
		e.pipelines[key] = next
	}

	e.configs = newConfigs
	e.order = order

	log.Printf("[reload] config reloaded: %d configs, %d preserved, %d new, %d removed",
		len(newConfigs), preserved, created, removed)
	return preserved, created, removed, nil
}

// closeNew closes the nodes of next that were created during a failed reload,
// leaving the nodes shared with old untouched.
func (next *pipeline) closeNew(old *pipeline) {
	for name, n := range next.nodes {
		if old.nodes[name] != n {
			n.Close()
		}
	}
}

// dependsOn reports whether c reads from a rebuilt node.
func dependsOn(c IndicatorConfig, rebuilt map[string]bool) bool {
	for _, in := range c.Inputs() {
		if rebuilt[in] {
			return true
		}
	}
	return false
}

func sameConfig(a, b IndicatorConfig) bool {
	as, bs := a.Scalar, b.Scalar
	a.Scalar, b.Scalar = nil, nil
	if a != b {
		return false
	}
	if (as == nil) != (bs == nil) {
		return false
	}
	return as == nil || *as == *bs
}
