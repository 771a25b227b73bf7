package accel

import (
	"container/heap"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// boundaryWeight scales the constraint planes that pin open borders when
// topology is preserved.
const boundaryWeight = 1000

// collapseCandidate is a heap entry for edge (u, v). Entries go stale when
// either endpoint changes; stamps detect that.
type collapseCandidate struct {
	cost   float64
	u, v   uint32
	target r3.Vec
	stampU uint32
	stampV uint32
}

type candidateHeap []collapseCandidate

func (h candidateHeap) Len() int { return len(h) }
func (h candidateHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].u != h[j].u {
		return h[i].u < h[j].u
	}
	return h[i].v < h[j].v
}
func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *candidateHeap) Push(x any)   { *h = append(*h, x.(collapseCandidate)) }
func (h *candidateHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// collapser runs iterative edge collapse under a quadric error metric.
type collapser struct {
	pos      []r3.Vec
	quadrics []quadric
	faces    [][3]uint32
	alive    []bool
	incident [][]int // vertex -> faces, may contain dead faces
	dead     []bool  // collapsed-away vertices
	stamp    []uint32
	heap     candidateHeap
	optimal  bool // solve for the optimal position, else endpoints/midpoint
	live     int
}

func newCollapser(m *mesh.Mesh, optimal, preserveBoundary bool) *collapser {
	nv := m.VertexCount()
	nf := m.TriangleCount()
	c := &collapser{
		pos:      make([]r3.Vec, nv),
		quadrics: make([]quadric, nv),
		faces:    make([][3]uint32, nf),
		alive:    make([]bool, nf),
		incident: make([][]int, nv),
		dead:     make([]bool, nv),
		stamp:    make([]uint32, nv),
		optimal:  optimal,
		live:     nf,
	}
	for v := 0; v < nv; v++ {
		p := m.Position(uint32(v))
		c.pos[v] = r3.Vec{X: float64(p[0]), Y: float64(p[1]), Z: float64(p[2])}
	}
	for f := 0; f < nf; f++ {
		tri := m.Triangle(f)
		c.faces[f] = tri
		c.alive[f] = true
		for _, v := range tri {
			c.incident[v] = appendUnique(c.incident[v], f)
		}
		n, d, ok := facePlane(c.pos[tri[0]], c.pos[tri[1]], c.pos[tri[2]])
		if !ok {
			continue
		}
		q := planeQuadric(n, d, 1)
		for _, v := range tri {
			c.quadrics[v].add(q)
		}
	}
	if preserveBoundary {
		c.addBoundaryConstraints()
	}
	return c
}

func appendUnique(s []int, f int) []int {
	if len(s) > 0 && s[len(s)-1] == f {
		return s
	}
	return append(s, f)
}

type edgeKey struct{ a, b uint32 }

func makeEdge(a, b uint32) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

// addBoundaryConstraints adds, for every edge used by a single face, a heavily
// weighted plane through the edge perpendicular to that face.
func (c *collapser) addBoundaryConstraints() {
	type use struct {
		count int
		face  int
	}
	edges := make(map[edgeKey]use)
	for f, tri := range c.faces {
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			if a == b {
				continue
			}
			e := makeEdge(a, b)
			u := edges[e]
			u.count++
			u.face = f
			edges[e] = u
		}
	}
	for e, u := range edges {
		if u.count != 1 {
			continue
		}
		tri := c.faces[u.face]
		n, _, ok := facePlane(c.pos[tri[0]], c.pos[tri[1]], c.pos[tri[2]])
		if !ok {
			continue
		}
		pa, pb := c.pos[e.a], c.pos[e.b]
		dir := r3.Sub(pb, pa)
		bn := r3.Cross(dir, n)
		l := r3.Norm(bn)
		if l == 0 {
			continue
		}
		bn = r3.Scale(1/l, bn)
		q := planeQuadric(bn, -r3.Dot(bn, pa), boundaryWeight)
		c.quadrics[e.a].add(q)
		c.quadrics[e.b].add(q)
	}
}

// seed pushes every unique edge.
func (c *collapser) seed() {
	seen := make(map[edgeKey]struct{}, len(c.faces)*3/2)
	for _, tri := range c.faces {
		for k := 0; k < 3; k++ {
			a, b := tri[k], tri[(k+1)%3]
			if a == b {
				continue
			}
			e := makeEdge(a, b)
			if _, ok := seen[e]; ok {
				continue
			}
			seen[e] = struct{}{}
			c.heap = append(c.heap, c.candidate(e.a, e.b))
		}
	}
	heap.Init(&c.heap)
}

func (c *collapser) candidate(u, v uint32) collapseCandidate {
	q := c.quadrics[u].plus(c.quadrics[v])
	target, cost := c.place(q, c.pos[u], c.pos[v])
	return collapseCandidate{
		cost:   cost,
		u:      u,
		v:      v,
		target: target,
		stampU: c.stamp[u],
		stampV: c.stamp[v],
	}
}

// place chooses the merged vertex position. The optimal solve is tried first
// when enabled; otherwise, or when the system is singular, the cheapest of
// both endpoints and the midpoint wins.
// Solutions farther than one edge length from the midpoint come from
// ill-conditioned systems and are rejected.
func (c *collapser) place(q quadric, pu, pv r3.Vec) (r3.Vec, float64) {
	mid := r3.Scale(0.5, r3.Add(pu, pv))
	if c.optimal {
		if p, ok := q.optimum(); ok && r3.Norm(r3.Sub(p, mid)) <= r3.Norm(r3.Sub(pv, pu)) {
			return p, q.eval(p)
		}
	}
	best, bestCost := pu, q.eval(pu)
	for _, p := range []r3.Vec{pv, mid} {
		if cost := q.eval(p); cost < bestCost {
			best, bestCost = p, cost
		}
	}
	return best, bestCost
}

// run collapses edges until at most target faces are alive or no legal
// collapse remains.
func (c *collapser) run(target int) {
	c.seed()
	for c.live > target && c.heap.Len() > 0 {
		cand := heap.Pop(&c.heap).(collapseCandidate)
		u, v := cand.u, cand.v
		if c.dead[u] || c.dead[v] || cand.stampU != c.stamp[u] || cand.stampV != c.stamp[v] {
			continue
		}
		if math.IsNaN(cand.cost) || !finite(cand.target) {
			continue
		}
		removed := c.removedBy(u, v)
		if c.live-removed < target {
			continue
		}
		if c.flips(u, v, cand.target) || c.flips(v, u, cand.target) {
			continue
		}
		c.collapse(u, v, cand.target)
	}
}

// removedBy counts the live faces that would become degenerate when v is
// merged into u.
func (c *collapser) removedBy(u, v uint32) int {
	n := 0
	for _, f := range c.incident[v] {
		if !c.alive[f] {
			continue
		}
		if degenerateAfter(c.faces[f], u, v) {
			n++
		}
	}
	return n
}

func degenerateAfter(tri [3]uint32, u, v uint32) bool {
	for k := range tri {
		if tri[k] == v {
			tri[k] = u
		}
	}
	return tri[0] == tri[1] || tri[1] == tri[2] || tri[0] == tri[2]
}

// flips reports whether moving vertex a to p turns any surviving face around
// a upside down. b is the other endpoint of the collapsing edge.
func (c *collapser) flips(a, b uint32, p r3.Vec) bool {
	for _, f := range c.incident[a] {
		if !c.alive[f] {
			continue
		}
		tri := c.faces[f]
		if tri[0] == b || tri[1] == b || tri[2] == b {
			continue
		}
		var before, after [3]r3.Vec
		for k, w := range tri {
			before[k] = c.pos[w]
			after[k] = c.pos[w]
			if w == a {
				after[k] = p
			}
		}
		n0 := r3.Cross(r3.Sub(before[1], before[0]), r3.Sub(before[2], before[0]))
		n1 := r3.Cross(r3.Sub(after[1], after[0]), r3.Sub(after[2], after[0]))
		if r3.Dot(n0, n1) < 0 {
			return true
		}
	}
	return false
}

// collapse merges v into u at position p.
func (c *collapser) collapse(u, v uint32, p r3.Vec) {
	c.pos[u] = p
	c.quadrics[u].add(c.quadrics[v])
	c.dead[v] = true
	c.stamp[u]++
	c.stamp[v]++

	for _, f := range c.incident[v] {
		if !c.alive[f] {
			continue
		}
		if degenerateAfter(c.faces[f], u, v) {
			c.alive[f] = false
			c.live--
			continue
		}
		for k := range c.faces[f] {
			if c.faces[f][k] == v {
				c.faces[f][k] = u
			}
		}
		c.incident[u] = append(c.incident[u], f)
	}
	c.incident[v] = nil

	// Drop dead faces from u's list and re-queue its edges.
	kept := c.incident[u][:0]
	neighbours := make(map[uint32]struct{})
	for _, f := range c.incident[u] {
		if !c.alive[f] {
			continue
		}
		kept = append(kept, f)
		for _, w := range c.faces[f] {
			if w != u {
				neighbours[w] = struct{}{}
			}
		}
	}
	c.incident[u] = kept
	for w := range neighbours {
		a, b := u, w
		if a > b {
			a, b = b, a
		}
		heap.Push(&c.heap, c.candidate(a, b))
	}
}

// mesh returns the live faces in their original order with unused vertices
// removed.
func (c *collapser) mesh() *mesh.Mesh {
	out := &mesh.Mesh{
		Vertices: make([]float32, 0, len(c.pos)*3),
		Indices:  make([]uint32, 0, c.live*3),
	}
	for _, p := range c.pos {
		out.Vertices = append(out.Vertices, float32(p.X), float32(p.Y), float32(p.Z))
	}
	for f, tri := range c.faces {
		if c.alive[f] {
			out.Indices = append(out.Indices, tri[0], tri[1], tri[2])
		}
	}
	return out.Compact()
}
