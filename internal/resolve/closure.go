// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import "sort"

// closure is a union-find over identifiers linked by sameAs facts in one
// batch.
type closure struct {
	parent map[string]string
}

func newClosure() *closure {
	return &closure{parent: make(map[string]string)}
}

func (c *closure) find(x string) string {
	p, ok := c.parent[x]
	if !ok {
		c.parent[x] = x
		return x
	}
	if p == x {
		return x
	}
	root := c.find(p)
	c.parent[x] = root
	return root
}

func (c *closure) union(a, b string) {
	ra, rb := c.find(a), c.find(b)
	if ra == rb {
		return
	}
	// Smaller root wins so the structure is independent of insertion order.
	if rb < ra {
		ra, rb = rb, ra
	}
	c.parent[rb] = ra
}

// classes groups every known identifier by its root. Members are sorted.
func (c *closure) classes() map[string][]string {
	out := make(map[string][]string)
	for x := range c.parent {
		r := c.find(x)
		out[r] = append(out[r], x)
	}
	for _, ms := range out {
		sort.Strings(ms)
	}
	return out
}
