package halo

// unionFind tracks group identity under merging. Merges redirect the
// lower-peak group's root onto the higher-peak group's root (union by
// density rank), so "rewrite every chain mapped to X onto Y" becomes a
// near-constant-time pointer move instead of a full scan. Group ids are
// never reused; find resolves any historical id to its current root.
type unionFind struct {
	parent map[int64]int64
	dens   map[int64]float64 // densest-in-group, maintained at roots
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[int64]int64),
		dens:   make(map[int64]float64),
	}
}

// add registers a fresh group rooted at itself.
func (u *unionFind) add(g int64, dens float64) {
	u.parent[g] = g
	u.dens[g] = dens
}

// find resolves g to its current root, compressing the path. An id never
// registered is its own root.
func (u *unionFind) find(g int64) int64 {
	if _, ok := u.parent[g]; !ok {
		return g
	}
	root := g
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[g] != root {
		u.parent[g], g = root, u.parent[g]
	}
	return root
}

// union merges the groups of high and low. The surviving root is the one
// with the higher densest-in-group value; a tie keeps the high side's root,
// so equal densities favor the group already recorded as denser-side.
func (u *unionFind) union(high, low int64) {
	rh, rl := u.find(high), u.find(low)
	if rh == rl {
		return
	}
	if u.dens[rl] > u.dens[rh] {
		rh, rl = rl, rh
	}
	u.parent[rl] = rh
	if u.dens[rl] > u.dens[rh] {
		u.dens[rh] = u.dens[rl]
	}
	delete(u.dens, rl)
}

// peak returns the densest-in-group value of g's group.
func (u *unionFind) peak(g int64) float64 { return u.dens[u.find(g)] }
