// Package palette maps smoothed escape velocities to display colors.
// Palettes are looked up by id so render requests can carry a palette
// reference without carrying color data.
package palette

import (
	"image/color"
	"math"

	colorful "github.com/lucasb-eyer/go-colorful"
)

// Interior is the color of points that never escape.
var Interior = color.RGBA{0, 0, 0, 0xff}

type stop struct {
	pos float64
	col colorful.Color
}

// Palette is a cyclic gradient over escape velocity.
type Palette struct {
	id     string
	stops  []stop
	period float64 // velocities per gradient cycle
}

// ID returns the palette's registry id.
func (p *Palette) ID() string { return p.id }

// At blends the gradient at the given velocity. Velocities at or beyond
// the iteration cap are interior and render black.
func (p *Palette) At(velocity float64, maxIter int) color.RGBA {
	if velocity >= float64(maxIter) || math.IsNaN(velocity) {
		return Interior
	}
	if velocity < 0 {
		velocity = 0
	}
	t := math.Mod(velocity/p.period, 1)

	for i := 0; i < len(p.stops)-1; i++ {
		a, b := p.stops[i], p.stops[i+1]
		if t > b.pos {
			continue
		}
		span := b.pos - a.pos
		f := 0.0
		if span > 0 {
			f = (t - a.pos) / span
		}
		c := a.col.BlendLuv(b.col, f).Clamped()
		r, g, bb := c.RGB255()
		return color.RGBA{r, g, bb, 0xff}
	}
	r, g, b := p.stops[len(p.stops)-1].col.RGB255()
	return color.RGBA{r, g, b, 0xff}
}

var registry = map[string]*Palette{}

func register(p *Palette) *Palette {
	registry[p.id] = p
	return p
}

// Default is the palette used when a request names an unknown id.
var Default = register(&Palette{
	id:     "classic",
	period: 64,
	stops: []stop{
		{0.0, colorful.Color{R: 0.00, G: 0.03, B: 0.39}},
		{0.16, colorful.Color{R: 0.13, G: 0.42, B: 0.80}},
		{0.42, colorful.Color{R: 0.93, G: 1.00, B: 1.00}},
		{0.64, colorful.Color{R: 1.00, G: 0.67, B: 0.00}},
		{0.86, colorful.Color{R: 0.25, G: 0.01, B: 0.10}},
		{1.0, colorful.Color{R: 0.00, G: 0.03, B: 0.39}},
	},
})

var _ = register(&Palette{
	id:     "ember",
	period: 48,
	stops: []stop{
		{0.0, colorful.Color{R: 0.02, G: 0.0, B: 0.0}},
		{0.35, colorful.Color{R: 0.80, G: 0.15, B: 0.02}},
		{0.7, colorful.Color{R: 1.00, G: 0.85, B: 0.30}},
		{1.0, colorful.Color{R: 0.02, G: 0.0, B: 0.0}},
	},
})

var _ = register(&Palette{
	id:     "glacier",
	period: 96,
	stops: []stop{
		{0.0, colorful.Color{R: 0.0, G: 0.05, B: 0.12}},
		{0.5, colorful.Color{R: 0.45, G: 0.80, B: 0.95}},
		{0.8, colorful.Color{R: 0.95, G: 0.98, B: 1.0}},
		{1.0, colorful.Color{R: 0.0, G: 0.05, B: 0.12}},
	},
})

// Lookup resolves a palette id, falling back to the default.
func Lookup(id string) *Palette {
	if p, ok := registry[id]; ok {
		return p
	}
	return Default
}

// IDs lists the registered palette ids.
func IDs() []string {
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	return ids
}
