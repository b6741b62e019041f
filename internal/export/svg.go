package export

import (
	"bytes"
	"fmt"
	"html"
	"math"
)

type Line struct{ X, Y float64 }

type Marker struct {
	X    float64
	Y    float64
	Kind string // buy | sell
}

// Curve is one named polyline of a chart.
type Curve struct {
	Name   string
	Color  string
	Points []Line
}

// SimpleSVGChart draws one polyline with buy/sell markers.
func SimpleSVGChart(w, h int, line []Line, marks []Marker, title string) []byte {
	return LinesSVGChart(w, h, []Curve{{Color: "#59a6ff", Points: line}}, marks, title)
}

// LinesSVGChart draws several polylines on shared axes. NaN points are left
// out; named curves get a legend entry.
func LinesSVGChart(w, h int, curves []Curve, marks []Marker, title string) []byte {
	if w <= 0 {
		w = 900
	}
	if h <= 0 {
		h = 300
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, "<svg xmlns='http://www.w3.org/2000/svg' width='%d' height='%d' viewBox='0 0 %d %d'>", w, h, w, h)
	b.WriteString("<rect width='100%' height='100%' fill='#0b0f17'/>")
	minx, maxx := math.Inf(1), math.Inf(-1)
	miny, maxy := math.Inf(1), math.Inf(-1)
	for _, c := range curves {
		for _, p := range c.Points {
			minx = math.Min(minx, p.X)
			maxx = math.Max(maxx, p.X)
			if math.IsNaN(p.Y) {
				continue
			}
			miny = math.Min(miny, p.Y)
			maxy = math.Max(maxy, p.Y)
		}
	}
	if minx > maxx {
		fmt.Fprintf(&b, "<text x='16' y='18' fill='#e6edf3' font-family='Inter' font-size='14'>%s (no data)</text></svg>", html.EscapeString(title))
		return b.Bytes()
	}
	if miny > maxy {
		miny, maxy = 0, 0
	}
	pw, ph := float64(w-80), float64(h-60)
	sx := pw / (maxx - minx + 1e-9)
	sy := ph / (maxy - miny + 1e-9)
	b.WriteString("<g transform='translate(40,20)'>")
	// axes
	fmt.Fprintf(&b, "<line x1='0' y1='0' x2='0' y2='%d' stroke='#1f2837' />", h-60)
	fmt.Fprintf(&b, "<line x1='0' y1='%d' x2='%d' y2='%d' stroke='#1f2837' />", h-60, w-80, h-60)
	for _, c := range curves {
		fmt.Fprintf(&b, "<polyline fill='none' stroke='%s' stroke-width='1.5' points='", c.Color)
		first := true
		for _, p := range c.Points {
			if math.IsNaN(p.Y) {
				continue
			}
			if !first {
				b.WriteByte(' ')
			}
			first = false
			fmt.Fprintf(&b, "%.2f,%.2f", (p.X-minx)*sx, ph-(p.Y-miny)*sy)
		}
		b.WriteString("'/>")
	}
	for _, m := range marks {
		color := "#8bff9b"
		if m.Kind == "sell" {
			color = "#ff7a7a"
		}
		fmt.Fprintf(&b, "<circle cx='%.2f' cy='%.2f' r='3' fill='%s' />", (m.X-minx)*sx, ph-(m.Y-miny)*sy, color)
	}
	b.WriteString("</g>")
	fmt.Fprintf(&b, "<text x='16' y='18' fill='#e6edf3' font-family='Inter' font-size='14'>%s</text>", html.EscapeString(title))
	x := w - 40
	for i := len(curves) - 1; i >= 0; i-- {
		c := curves[i]
		if c.Name == "" {
			continue
		}
		fmt.Fprintf(&b, "<text x='%d' y='18' fill='%s' font-family='Inter' font-size='12' text-anchor='end'>%s</text>", x, c.Color, html.EscapeString(c.Name))
		x -= 8 * (len(c.Name) + 2)
	}
	b.WriteString("</svg>")
	return b.Bytes()
}

// HBarChart draws one horizontal bar per label, top to bottom, with the value
// printed as a percentage next to each bar.
func HBarChart(labels []string, values []float64, title string) []byte {
	const (
		w      = 1000
		rowH   = 22
		left   = 260
		right  = 90
		top    = 40
		bottom = 20
	)
	n := len(values)
	h := top + bottom + rowH*max(n, 1)
	lo, hi := 0.0, 0.0
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pw := float64(w - left - right)
	scale := pw / (hi - lo + 1e-9)
	zero := float64(left) + (0-lo)*scale

	var b bytes.Buffer
	fmt.Fprintf(&b, "<svg xmlns='http://www.w3.org/2000/svg' width='%d' height='%d' viewBox='0 0 %d %d'>", w, h, w, h)
	b.WriteString("<rect width='100%' height='100%' fill='#0b0f17'/>")
	fmt.Fprintf(&b, "<text x='16' y='24' fill='#e6edf3' font-family='Inter' font-size='16'>%s</text>", html.EscapeString(title))
	fmt.Fprintf(&b, "<line x1='%.2f' y1='%d' x2='%.2f' y2='%d' stroke='#1f2837' />", zero, top, zero, h-bottom)
	for i := 0; i < n && i < len(labels); i++ {
		v := values[i]
		y := top + i*rowH
		x0, x1 := zero, zero+v*scale
		if x1 < x0 {
			x0, x1 = x1, x0
		}
		color := "#87ceeb"
		if v < 0 {
			color = "#ff7a7a"
		}
		fmt.Fprintf(&b, "<text x='%d' y='%d' fill='#e6edf3' font-family='Inter' font-size='11' text-anchor='end'>%s</text>",
			left-8, y+rowH/2+4, html.EscapeString(labels[i]))
		fmt.Fprintf(&b, "<rect x='%.2f' y='%d' width='%.2f' height='%d' fill='%s' />", x0, y+3, x1-x0, rowH-6, color)
		fmt.Fprintf(&b, "<text x='%.2f' y='%d' fill='#e6edf3' font-family='Inter' font-size='11'>%s%%</text>",
			math.Max(x1, zero)+4, y+rowH/2+4, Money(v))
	}
	b.WriteString("</svg>")
	return b.Bytes()
}
