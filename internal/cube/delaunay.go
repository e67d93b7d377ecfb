package cube

import (
	"errors"
	"math"
)

var errDegenerate = errors.New("degenerate point set")

// triangle holds vertex indexes in counter-clockwise order.
type triangle struct {
	a, b, c int

	// bounding box, for point location
	minX, minY, maxX, maxY float64
}

type edge struct{ a, b int }

// triangulation is a Delaunay triangulation of scattered points, built with
// the Bowyer-Watson algorithm. Vertex i is input point i; exact duplicates of
// an earlier point are not inserted.
type triangulation struct {
	x, y []float64
	tris []triangle
}

// triangulate builds the triangulation of (x, y). It fails when the points
// are collinear or fewer than three are distinct.
func triangulate(x, y []float64) (*triangulation, error) {
	n := len(x)
	if n < 3 {
		return nil, errDegenerate
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for i := range x {
		minX, maxX = math.Min(minX, x[i]), math.Max(maxX, x[i])
		minY, maxY = math.Min(minY, y[i]), math.Max(maxY, y[i])
	}
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 {
		return nil, errDegenerate
	}
	midX, midY := (minX+maxX)/2, (minY+maxY)/2

	// Vertices n, n+1, n+2 form a super triangle enclosing every point.
	px := append(append([]float64(nil), x...), midX-100*span, midX, midX+100*span)
	py := append(append([]float64(nil), y...), midY-100*span, midY+100*span, midY-100*span)

	t := &triangulation{x: px, y: py}
	t.tris = []triangle{t.newTriangle(n, n+2, n+1)}

	seen := make(map[[2]float64]struct{}, n)
	for i := 0; i < n; i++ {
		key := [2]float64{x[i], y[i]}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		t.insert(i)
	}

	kept := t.tris[:0]
	for _, tr := range t.tris {
		if tr.a >= n || tr.b >= n || tr.c >= n {
			continue
		}
		if orient(px[tr.a], py[tr.a], px[tr.b], py[tr.b], px[tr.c], py[tr.c]) == 0 {
			continue
		}
		kept = append(kept, tr)
	}
	t.tris = kept
	if len(t.tris) == 0 {
		return nil, errDegenerate
	}
	return t, nil
}

func (t *triangulation) newTriangle(a, b, c int) triangle {
	if orient(t.x[a], t.y[a], t.x[b], t.y[b], t.x[c], t.y[c]) < 0 {
		b, c = c, b
	}
	return triangle{
		a: a, b: b, c: c,
		minX: math.Min(t.x[a], math.Min(t.x[b], t.x[c])),
		maxX: math.Max(t.x[a], math.Max(t.x[b], t.x[c])),
		minY: math.Min(t.y[a], math.Min(t.y[b], t.y[c])),
		maxY: math.Max(t.y[a], math.Max(t.y[b], t.y[c])),
	}
}

func (t *triangulation) insert(p int) {
	var bad []triangle
	good := t.tris[:0:0]
	for _, tr := range t.tris {
		if t.inCircumcircle(tr, p) {
			bad = append(bad, tr)
		} else {
			good = append(good, tr)
		}
	}

	// Cavity boundary: edges used by exactly one bad triangle.
	count := make(map[edge]int, 3*len(bad))
	for _, tr := range bad {
		for _, e := range [3]edge{{tr.a, tr.b}, {tr.b, tr.c}, {tr.c, tr.a}} {
			count[undirected(e)]++
		}
	}
	for _, tr := range bad {
		for _, e := range [3]edge{{tr.a, tr.b}, {tr.b, tr.c}, {tr.c, tr.a}} {
			if count[undirected(e)] == 1 {
				good = append(good, t.newTriangle(e.a, e.b, p))
			}
		}
	}
	t.tris = good
}

func undirected(e edge) edge {
	if e.a > e.b {
		return edge{e.b, e.a}
	}
	return e
}

// inCircumcircle reports whether point p lies strictly inside the
// circumcircle of the counter-clockwise triangle tr.
func (t *triangulation) inCircumcircle(tr triangle, p int) bool {
	px, py := t.x[p], t.y[p]
	adx, ady := t.x[tr.a]-px, t.y[tr.a]-py
	bdx, bdy := t.x[tr.b]-px, t.y[tr.b]-py
	cdx, cdy := t.x[tr.c]-px, t.y[tr.c]-py

	det := (adx*adx+ady*ady)*(bdx*cdy-cdx*bdy) +
		(bdx*bdx+bdy*bdy)*(cdx*ady-adx*cdy) +
		(cdx*cdx+cdy*cdy)*(adx*bdy-bdx*ady)
	return det > 0
}

func orient(ax, ay, bx, by, cx, cy float64) float64 {
	return (bx-ax)*(cy-ay) - (by-ay)*(cx-ax)
}

// interpolate returns the piecewise-linear interpolant of values at (px, py),
// NaN outside the convex hull.
func (t *triangulation) interpolate(px, py float64, values []float64) float64 {
	const eps = 1e-12

	for _, tr := range t.tris {
		if px < tr.minX-eps || px > tr.maxX+eps || py < tr.minY-eps || py > tr.maxY+eps {
			continue
		}

		x1, y1 := t.x[tr.a], t.y[tr.a]
		x2, y2 := t.x[tr.b], t.y[tr.b]
		x3, y3 := t.x[tr.c], t.y[tr.c]

		det := (y2-y3)*(x1-x3) + (x3-x2)*(y1-y3)
		if det == 0 {
			continue
		}
		l1 := ((y2-y3)*(px-x3) + (x3-x2)*(py-y3)) / det
		l2 := ((y3-y1)*(px-x3) + (x1-x3)*(py-y3)) / det
		l3 := 1 - l1 - l2
		if l1 < -eps || l2 < -eps || l3 < -eps {
			continue
		}
		return l1*values[tr.a] + l2*values[tr.b] + l3*values[tr.c]
	}
	return math.NaN()
}
