// Package vcache reorders triangles to improve post-transform vertex cache
// reuse.
package vcache

import (
	"github.com/Faultbox/meshjuice/pkg/mesh"
)

// DefaultCacheSize is the simulated FIFO cache capacity.
const DefaultCacheSize = 32

// Optimize reorders the triangles of m for a cache of DefaultCacheSize.
func Optimize(m *mesh.Mesh) (*mesh.Mesh, error) {
	return OptimizeWithCacheSize(m, DefaultCacheSize)
}

// OptimizeWithCacheSize reorders the triangles of m greedily. At each step
// every unemitted triangle scores 2*(C-p)/C for each of its vertices sitting
// at position p of the simulated cache of capacity C; the highest score wins
// and ties go to the lowest original triangle index. The emitted triangle's
// vertices are pushed to the front of the cache in corner order, leaving the
// third corner at position 0, and entries beyond C are evicted.
//
// Only the index buffer is reordered; the output holds the same triangles as
// the input. Vertex positions are not checked against the indices.
func OptimizeWithCacheSize(m *mesh.Mesh, cacheSize int) (*mesh.Mesh, error) {
	if len(m.Indices)%3 != 0 {
		return nil, mesh.InvalidInput("optimize vertex cache",
			"index buffer length %d is not divisible by 3", len(m.Indices))
	}
	if cacheSize < 1 {
		return nil, mesh.InvalidInput("optimize vertex cache", "cache size %d must be positive", cacheSize)
	}

	out := &mesh.Mesh{
		Vertices: make([]float32, len(m.Vertices)),
		Indices:  make([]uint32, 0, len(m.Indices)),
	}
	copy(out.Vertices, m.Vertices)

	n := len(m.Indices) / 3
	if n == 0 {
		return out, nil
	}

	adj := buildAdjacency(m.Indices)
	emitted := make([]bool, n)
	cache := make([]uint32, 0, cacheSize+3)
	position := make(map[uint32]int, cacheSize+3) // vertex -> cache slot
	next := 0                                     // lowest triangle that may be unemitted

	for done := 0; done < n; done++ {
		best, bestScore := -1, -1

		// Only triangles touching a cached vertex can score above zero.
		for _, v := range cache {
			for _, t := range adj[v] {
				if emitted[t] {
					continue
				}
				s := score(m.Indices[t*3:t*3+3], position, cacheSize)
				if s > bestScore || (s == bestScore && int(t) < best) {
					best, bestScore = int(t), s
				}
			}
		}
		if best < 0 {
			for emitted[next] {
				next++
			}
			best = next
		}

		emitted[best] = true
		tri := m.Indices[best*3 : best*3+3]
		out.Indices = append(out.Indices, tri...)
		cache = touch(cache, tri, cacheSize)
		clear(position)
		for p, v := range cache {
			position[v] = p
		}
	}
	return out, nil
}

// score returns the triangle score scaled by C/2 so that ties compare
// exactly.
func score(tri []uint32, position map[uint32]int, cacheSize int) int {
	s := 0
	for _, v := range tri {
		if p, ok := position[v]; ok {
			s += cacheSize - p
		}
	}
	return s
}

// touch pushes the triangle's vertices to the front of the FIFO one after
// another, so the last corner ends up most recent, and evicts entries beyond
// capacity.
func touch(cache []uint32, tri []uint32, cacheSize int) []uint32 {
	front := make([]uint32, 0, cacheSize+3)
	for i := len(tri) - 1; i >= 0; i-- {
		if v := tri[i]; !contains(front, v) {
			front = append(front, v)
		}
	}
	for _, v := range cache {
		if !contains(front, v) {
			front = append(front, v)
		}
	}
	if len(front) > cacheSize {
		front = front[:cacheSize]
	}
	return front
}

func contains(s []uint32, v uint32) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// buildAdjacency maps each vertex index to the triangles using it.
func buildAdjacency(indices []uint32) map[uint32][]uint32 {
	adj := make(map[uint32][]uint32)
	for i, v := range indices {
		t := uint32(i / 3)
		list := adj[v]
		if len(list) > 0 && list[len(list)-1] == t {
			continue
		}
		adj[v] = append(list, t)
	}
	return adj
}

// ACMR returns the average cache miss ratio of an index buffer: FIFO cache
// misses per triangle. Lower is better; 0.5 is the practical optimum for
// large regular meshes and 3 the worst case.
func ACMR(indices []uint32, cacheSize int) float64 {
	n := len(indices) / 3
	if n == 0 || cacheSize < 1 {
		return 0
	}
	fifo := make([]uint32, 0, cacheSize)
	misses := 0
	for _, v := range indices[:n*3] {
		if contains(fifo, v) {
			continue
		}
		misses++
		if len(fifo) == cacheSize {
			fifo = fifo[1:]
		}
		fifo = append(fifo, v)
	}
	return float64(misses) / float64(n)
}
