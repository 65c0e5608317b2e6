package worldstate

import "sort"

// CoreOverlays are the fixed, predeclared overlay names every WorldState
// carries from construction. Core overlays are never subject to
// UnknownCoreOverlay-style rejection: they always exist. Additional
// "dynamic" overlays are created on first write by AdjustOverlay.
var CoreOverlays = []string{"momentum", "sentiment", "liquidity", "risk"}

// OverlayMeta carries the descriptive metadata attached to every overlay,
// core or dynamic, per spec §3 ("partitioned into a fixed core set and an
// extensible dynamic set, each with metadata (category, optional parent,
// priority)").
type OverlayMeta struct {
	Category string `json:"category"`
	Parent   string `json:"parent,omitempty"`
	Priority int    `json:"priority"`
}

// Overlay is a single continuous [0,1] latent plus its metadata.
type Overlay struct {
	Value float64     `json:"value"`
	Meta  OverlayMeta `json:"meta"`
	Core  bool        `json:"core"`
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// OverlayContainer holds the core + dynamic overlay maps behind a uniform
// get/set/as-mapping interface, per the "Dynamic, named overlay
// containers" design note in spec §9.
type OverlayContainer struct {
	entries map[string]*Overlay
}

func newOverlayContainer() *OverlayContainer {
	c := &OverlayContainer{entries: make(map[string]*Overlay, len(CoreOverlays))}
	for i, name := range CoreOverlays {
		c.entries[name] = &Overlay{Value: 0.5, Core: true, Meta: OverlayMeta{Category: "core", Priority: i}}
	}
	return c
}

// Get returns the overlay's current value, or 0.5 (the neutral midpoint)
// if it has never been created.
func (c *OverlayContainer) Get(name string) float64 {
	if o, ok := c.entries[name]; ok {
		return o.Value
	}
	return 0.5
}

// Set writes a value directly, clamping to [0,1], creating a dynamic
// overlay entry if name is unknown.
func (c *OverlayContainer) Set(name string, value float64) {
	o, ok := c.entries[name]
	if !ok {
		o = &Overlay{Meta: OverlayMeta{Category: "dynamic"}}
		c.entries[name] = o
	}
	o.Value = clamp01(value)
}

// Adjust applies a saturating delta, clamping the result to [0,1] and
// creating a dynamic overlay on first use. Never raises
// UnknownCoreOverlay — that condition cannot occur because core overlays
// are predeclared and dynamic ones are created on demand.
func (c *OverlayContainer) Adjust(name string, delta float64) {
	c.Set(name, c.Get(name)+delta)
}

// AsMapping returns a copy of every overlay's scalar value, keyed by
// overlay name.
func (c *OverlayContainer) AsMapping() map[string]float64 {
	out := make(map[string]float64, len(c.entries))
	for k, o := range c.entries {
		out[k] = o.Value
	}
	return out
}

// Names returns all overlay names (core first, in declaration order,
// then dynamic names sorted lexically) for deterministic iteration.
func (c *OverlayContainer) Names() []string {
	dynamic := make([]string, 0, len(c.entries))
	seen := make(map[string]bool, len(CoreOverlays))
	for _, n := range CoreOverlays {
		seen[n] = true
	}
	for n := range c.entries {
		if !seen[n] {
			dynamic = append(dynamic, n)
		}
	}
	sort.Strings(dynamic)
	return append(append([]string{}, CoreOverlays...), dynamic...)
}

// clone returns a deep, alias-free copy of the container.
func (c *OverlayContainer) clone() *OverlayContainer {
	cp := &OverlayContainer{entries: make(map[string]*Overlay, len(c.entries))}
	for k, o := range c.entries {
		dup := *o
		cp.entries[k] = &dup
	}
	return cp
}
