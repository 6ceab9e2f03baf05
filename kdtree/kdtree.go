// Package kdtree is the reference spatial index behind the finder: a
// 3D KD-tree over particle positions with k-nearest-neighbor queries and a
// kernel density estimate. The finder only sees the halo.Index contract, so
// any externally built index can replace this one.
package kdtree

import (
	"fmt"
	"sort"
)

const leafSize = 16

// kdNode is one node in the flat node array. Interior nodes split on axis at
// value split; leaves hold a [start,end) range of the permutation array.
type kdNode struct {
	split       float64
	left, right int32 // -1 on leaves
	start, end  int32
	axis        uint8
}

// Tree is a static KD-tree over 3D positions. The input slices are not
// copied or reordered; the tree keeps its own permutation.
type Tree struct {
	nodes []kdNode
	perm  []int32
	x     []float64
	y     []float64
	z     []float64
}

// Build constructs a tree over the given coordinates.
func Build(x, y, z []float64) (*Tree, error) {
	n := len(x)
	if len(y) != n || len(z) != n {
		return nil, fmt.Errorf("kdtree: coordinate lengths %d/%d/%d differ", n, len(y), len(z))
	}
	if n == 0 {
		return nil, fmt.Errorf("kdtree: no points")
	}
	t := &Tree{
		nodes: make([]kdNode, 0, 2*n/leafSize+1),
		perm:  make([]int32, n),
		x:     x,
		y:     y,
		z:     z,
	}
	for i := range t.perm {
		t.perm[i] = int32(i)
	}
	t.buildNodes(0, n, 0)
	return t, nil
}

func (t *Tree) coord(i int32, axis uint8) float64 {
	switch axis {
	case 0:
		return t.x[i]
	case 1:
		return t.y[i]
	default:
		return t.z[i]
	}
}

func (t *Tree) buildNodes(start, end, depth int) int32 {
	nodeIdx := int32(len(t.nodes))
	t.nodes = append(t.nodes, kdNode{left: -1, right: -1, start: int32(start), end: int32(end)})

	if end-start <= leafSize {
		return nodeIdx
	}

	axis := uint8(depth % 3)
	sub := t.perm[start:end]
	sort.Slice(sub, func(i, j int) bool {
		return t.coord(sub[i], axis) < t.coord(sub[j], axis)
	})
	median := (start + end) / 2

	t.nodes[nodeIdx].axis = axis
	t.nodes[nodeIdx].split = t.coord(t.perm[median], axis)
	left := t.buildNodes(start, median, depth+1)
	right := t.buildNodes(median, end, depth+1)
	t.nodes[nodeIdx].left = left
	t.nodes[nodeIdx].right = right
	return nodeIdx
}

// neighbor is one k-NN candidate; d2 is squared distance.
type neighbor struct {
	idx int32
	d2  float64
}

// nnHeap is a bounded max-heap on d2, so the worst candidate is evicted
// first once the heap is full.
type nnHeap []neighbor

func (h nnHeap) worst() float64 { return h[0].d2 }

func (h *nnHeap) push(n neighbor, k int) {
	if len(*h) < k {
		*h = append(*h, n)
		i := len(*h) - 1
		for i > 0 {
			parent := (i - 1) / 2
			if (*h)[parent].d2 >= (*h)[i].d2 {
				break
			}
			(*h)[parent], (*h)[i] = (*h)[i], (*h)[parent]
			i = parent
		}
		return
	}
	if n.d2 >= h.worst() {
		return
	}
	(*h)[0] = n
	i := 0
	for {
		l, r := 2*i+1, 2*i+2
		largest := i
		if l < len(*h) && (*h)[l].d2 > (*h)[largest].d2 {
			largest = l
		}
		if r < len(*h) && (*h)[r].d2 > (*h)[largest].d2 {
			largest = r
		}
		if largest == i {
			return
		}
		(*h)[i], (*h)[largest] = (*h)[largest], (*h)[i]
		i = largest
	}
}

// KNN returns the k nearest neighbors of the query point, nearest first.
// The query point itself, if it is one of the indexed points, appears at
// distance zero.
func (t *Tree) KNN(qx, qy, qz float64, k int) []neighbor {
	h := make(nnHeap, 0, k)
	t.search(0, qx, qy, qz, k, &h)
	out := []neighbor(h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].d2 != out[j].d2 {
			return out[i].d2 < out[j].d2
		}
		return out[i].idx < out[j].idx
	})
	return out
}

func (t *Tree) search(nodeIdx int32, qx, qy, qz float64, k int, h *nnHeap) {
	node := &t.nodes[nodeIdx]
	if node.left == -1 {
		for _, i := range t.perm[node.start:node.end] {
			dx := t.x[i] - qx
			dy := t.y[i] - qy
			dz := t.z[i] - qz
			h.push(neighbor{idx: i, d2: dx*dx + dy*dy + dz*dz}, k)
		}
		return
	}

	var q float64
	switch node.axis {
	case 0:
		q = qx
	case 1:
		q = qy
	default:
		q = qz
	}
	near, far := node.left, node.right
	if q >= node.split {
		near, far = far, near
	}
	t.search(near, qx, qy, qz, k, h)

	// Visit the far side only if the splitting plane is closer than the
	// current worst candidate.
	plane := q - node.split
	if len(*h) < k || plane*plane < h.worst() {
		t.search(far, qx, qy, qz, k, h)
	}
}

// Len returns the number of indexed points.
func (t *Tree) Len() int { return len(t.perm) }
