package soft

import (
	"math"

	"github.com/ospray/hdospray-sub000/types"
)

const (
	// Chunks with at most this many primitives are not partitioned.
	minLeafItems = 4

	// Split planes evaluated per axis when partitioning a node.
	splitCandidates = 16

	// Axes whose extent is below this threshold are not split.
	minSideLength float32 = 1e-5
)

// A bvh node covers the primitives order[first:first+count] when count > 0;
// otherwise left and right index its children.
type bvhNode struct {
	min, max    types.Vec3
	left, right int32
	first       int32
	count       int32
}

// A bounding volume hierarchy over the primitives of one chunk.
type bvh struct {
	nodes []bvhNode

	// Primitive indices in leaf order. Indices below len(tris) refer to
	// triangles, the rest to capsules.
	order []int32
}

type primBounds struct {
	min, max, center types.Vec3
}

type splitCandidate struct {
	axis                  int
	splitPoint            float32
	leftCount, rightCount int
	score                 float32
}

func emptyBounds() (types.Vec3, types.Vec3) {
	return types.XYZ(math.MaxFloat32, math.MaxFloat32, math.MaxFloat32),
		types.XYZ(-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32)
}

// Half the surface area of a box.
func halfArea(min, max types.Vec3) float32 {
	side := max.Sub(min)
	return side[0]*side[1] + side[1]*side[2] + side[0]*side[2]
}

// Build a bvh for the chunk primitives. Splits are scored with the surface
// area heuristic: count * node face area summed over both children.
func buildBVH(c *chunk) *bvh {
	items := make([]primBounds, 0, len(c.tris)+len(c.capsules))
	for i := range c.tris {
		tri := &c.tris[i]
		v1, v2 := tri.v0.Add(tri.e1), tri.v0.Add(tri.e2)
		min := types.MinVec3(tri.v0, types.MinVec3(v1, v2))
		max := types.MaxVec3(tri.v0, types.MaxVec3(v1, v2))
		items = append(items, primBounds{min: min, max: max, center: min.Add(max).Mul(0.5)})
	}
	for i := range c.capsules {
		cp := &c.capsules[i]
		pad := types.XYZ(cp.radius, cp.radius, cp.radius)
		min := types.MinVec3(cp.a, cp.b).Sub(pad)
		max := types.MaxVec3(cp.a, cp.b).Add(pad)
		items = append(items, primBounds{min: min, max: max, center: cp.a.Add(cp.b).Mul(0.5)})
	}

	b := &bvh{order: make([]int32, len(items))}
	for i := range b.order {
		b.order[i] = int32(i)
	}
	b.partition(items, 0, len(items))
	return b
}

// Partition order[first:last] and return the index of the created node.
func (b *bvh) partition(items []primBounds, first, last int) int32 {
	node := bvhNode{}
	node.min, node.max = emptyBounds()
	for _, idx := range b.order[first:last] {
		node.min = types.MinVec3(node.min, items[idx].min)
		node.max = types.MaxVec3(node.max, items[idx].max)
	}

	nodeIndex := int32(len(b.nodes))
	b.nodes = append(b.nodes, node)

	count := last - first
	best := b.bestSplit(items, first, last, node)
	if count <= minLeafItems || best == nil {
		b.nodes[nodeIndex].first = int32(first)
		b.nodes[nodeIndex].count = int32(count)
		return nodeIndex
	}

	// Move items left of the split plane to the front.
	mid := first
	for i := first; i < last; i++ {
		if items[b.order[i]].center[best.axis] < best.splitPoint {
			b.order[i], b.order[mid] = b.order[mid], b.order[i]
			mid++
		}
	}

	left := b.partition(items, first, mid)
	right := b.partition(items, mid, last)
	b.nodes[nodeIndex].left, b.nodes[nodeIndex].right = left, right
	return nodeIndex
}

// Score split planes on every axis in parallel and return the best one, or
// nil if no split beats keeping the node as a leaf.
func (b *bvh) bestSplit(items []primBounds, first, last int, node bvhNode) *splitCandidate {
	count := last - first
	if count <= minLeafItems {
		return nil
	}

	side := node.max.Sub(node.min)
	resChan := make(chan splitCandidate)
	pending := 0
	for axis := 0; axis < 3; axis++ {
		if side[axis] < minSideLength {
			continue
		}
		step := side[axis] / (splitCandidates + 1)
		for i := 1; i <= splitCandidates; i++ {
			pending++
			go scoreSplit(splitCandidate{axis: axis, splitPoint: node.min[axis] + float32(i)*step}, items, b.order[first:last], resChan)
		}
	}

	var best *splitCandidate
	bestScore := float32(count) * halfArea(node.min, node.max)
	for ; pending > 0; pending-- {
		candidate := <-resChan
		if candidate.score < bestScore {
			bestScore = candidate.score
			best = &candidate
		}
	}
	return best
}

func scoreSplit(c splitCandidate, items []primBounds, order []int32, resChan chan<- splitCandidate) {
	lmin, lmax := emptyBounds()
	rmin, rmax := emptyBounds()
	for _, idx := range order {
		item := &items[idx]
		if item.center[c.axis] < c.splitPoint {
			c.leftCount++
			lmin, lmax = types.MinVec3(lmin, item.min), types.MaxVec3(lmax, item.max)
		} else {
			c.rightCount++
			rmin, rmax = types.MinVec3(rmin, item.min), types.MaxVec3(rmax, item.max)
		}
	}

	if c.leftCount == 0 || c.rightCount == 0 {
		c.score = math.MaxFloat32
	} else {
		c.score = float32(c.leftCount)*halfArea(lmin, lmax) + float32(c.rightCount)*halfArea(rmin, rmax)
	}
	resChan <- c
}

// Slab test against a node box.
func (n *bvhNode) hit(r ray, tMax float32) bool {
	return hitBox(n.min, n.max, r, tMax)
}

// Visit the primitives whose leaf boxes r enters before *tMax. visit may
// shrink *tMax and returns true to stop the traversal.
func (b *bvh) traverse(r ray, tMax *float32, visit func(prim int32) bool) {
	if len(b.nodes) == 0 {
		return
	}

	var stack [64]int32
	sp := 0
	stack[sp] = 0
	sp++
	for sp > 0 {
		sp--
		node := &b.nodes[stack[sp]]
		if !node.hit(r, *tMax) {
			continue
		}
		if node.count > 0 {
			for _, prim := range b.order[node.first : node.first+node.count] {
				if visit(prim) {
					return
				}
			}
			continue
		}
		if sp+2 > len(stack) {
			// Degenerate trees deeper than the stack fall back to
			// testing the whole subtree's leaves one by one.
			if b.visitSubtree(stack[sp], visit) {
				return
			}
			continue
		}
		stack[sp] = node.left
		stack[sp+1] = node.right
		sp += 2
	}
}

func (b *bvh) visitSubtree(index int32, visit func(prim int32) bool) bool {
	node := &b.nodes[index]
	if node.count > 0 {
		for _, prim := range b.order[node.first : node.first+node.count] {
			if visit(prim) {
				return true
			}
		}
		return false
	}
	return b.visitSubtree(node.left, visit) || b.visitSubtree(node.right, visit)
}
