package accel

import (
	"container/heap"
	"math"

	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// Forsyth's linear-speed vertex cache optimization parameters.
const (
	forsythCacheSize   = 32
	cacheDecayPower    = 1.5
	lastTriScore       = 0.75
	valenceBoostScale  = 2.0
	valenceBoostPower  = 0.5
	notInCache         = -1
	triangleNotInQueue = -1
)

// vertexScore scores a vertex by its cache position and the number of
// triangles still using it.
func vertexScore(cachePos, remaining, cacheSize int) float32 {
	if remaining == 0 {
		return -1
	}
	var score float64
	switch {
	case cachePos == notInCache:
	case cachePos < 3:
		// The most recent triangle's vertices get a fixed score so the
		// optimizer does not simply repeat them.
		score = lastTriScore
	default:
		scaler := 1.0 / float64(cacheSize-3)
		score = math.Pow(1-float64(cachePos-3)*scaler, cacheDecayPower)
	}
	score += valenceBoostScale * math.Pow(float64(remaining), -valenceBoostPower)
	return float32(score)
}

// triangleQueue is an indexed max-heap of triangles by score.
type triangleQueue struct {
	items []int     // triangle ids
	index []int     // triangle -> position in items
	score []float32 // triangle -> current score
}

func (q *triangleQueue) Len() int { return len(q.items) }
func (q *triangleQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if q.score[a] != q.score[b] {
		return q.score[a] > q.score[b]
	}
	return a < b
}
func (q *triangleQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
	q.index[q.items[i]] = i
	q.index[q.items[j]] = j
}
func (q *triangleQueue) Push(x any) {
	t := x.(int)
	q.index[t] = len(q.items)
	q.items = append(q.items, t)
}
func (q *triangleQueue) Pop() any {
	n := len(q.items)
	t := q.items[n-1]
	q.items = q.items[:n-1]
	q.index[t] = triangleNotInQueue
	return t
}

// forsyth reorders the triangles of m. The input must pass mesh.Check; the
// per-vertex tables are sized by the vertex buffer.
func forsyth(m *mesh.Mesh, cacheSize int) *mesh.Mesh {
	out := &mesh.Mesh{
		Vertices: make([]float32, len(m.Vertices)),
		Indices:  make([]uint32, 0, len(m.Indices)),
	}
	copy(out.Vertices, m.Vertices)

	nt := len(m.Indices) / 3
	if nt == 0 {
		return out
	}

	nv := m.VertexCount()

	remaining := make([]int, nv)
	for _, v := range m.Indices {
		remaining[v]++
	}
	offsets := make([]int, nv+1)
	for v := 0; v < nv; v++ {
		offsets[v+1] = offsets[v] + remaining[v]
	}
	adjacency := make([]int, len(m.Indices))
	fill := make([]int, nv)
	copy(fill, offsets[:nv])
	for i, v := range m.Indices {
		adjacency[fill[v]] = i / 3
		fill[v]++
	}

	cachePos := make([]int, nv)
	vScore := make([]float32, nv)
	for v := range cachePos {
		cachePos[v] = notInCache
		vScore[v] = vertexScore(notInCache, remaining[v], cacheSize)
	}

	q := &triangleQueue{
		items: make([]int, 0, nt),
		index: make([]int, nt),
		score: make([]float32, nt),
	}
	for t := 0; t < nt; t++ {
		for _, v := range m.Indices[t*3 : t*3+3] {
			q.score[t] += vScore[v]
		}
		q.items = append(q.items, t)
		q.index[t] = t
	}
	heap.Init(q)

	cache := make([]uint32, 0, cacheSize+3)
	emitted := make([]bool, nt)

	for q.Len() > 0 {
		t := heap.Pop(q).(int)
		emitted[t] = true
		tri := m.Indices[t*3 : t*3+3]
		out.Indices = append(out.Indices, tri...)

		for _, v := range tri {
			remaining[v]--
		}

		// Move the triangle's vertices to the front of the LRU cache.
		next := make([]uint32, 0, cacheSize+3)
		for _, v := range tri {
			if !containsVertex(next, v) {
				next = append(next, v)
			}
		}
		for _, v := range cache {
			if !containsVertex(next, v) {
				next = append(next, v)
			}
		}

		touched := next
		if len(next) > cacheSize {
			for _, v := range next[cacheSize:] {
				cachePos[v] = notInCache
			}
			next = next[:cacheSize]
		}
		for p, v := range next {
			cachePos[v] = p
		}
		cache = next

		for _, v := range touched {
			vScore[v] = vertexScore(cachePos[v], remaining[v], cacheSize)
		}
		for _, v := range touched {
			for _, tt := range adjacency[offsets[v]:offsets[v+1]] {
				if emitted[tt] {
					continue
				}
				var s float32
				for _, w := range m.Indices[tt*3 : tt*3+3] {
					s += vScore[w]
				}
				if s != q.score[tt] {
					q.score[tt] = s
					heap.Fix(q, q.index[tt])
				}
			}
		}
	}
	return out
}

func containsVertex(s []uint32, v uint32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
