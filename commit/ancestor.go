package commit

import (
	"context"

	"github.com/evalgo-chronicle/chronicle/storage"
)

// ParentResolver looks up a commit's parent hashes, implemented over a
// storage.Backend (LoadCommit) or an in-memory map in tests.
type ParentResolver interface {
	Parents(ctx context.Context, hash string) ([]string, bool, error)
}

// backendResolver resolves parents by loading each commit from storage.
type backendResolver struct {
	backend storage.Backend
}

// NewBackendResolver adapts a storage.Backend into a ParentResolver.
func NewBackendResolver(backend storage.Backend) ParentResolver {
	return backendResolver{backend: backend}
}

func (r backendResolver) Parents(ctx context.Context, hash string) ([]string, bool, error) {
	c, err := LoadCommit(ctx, r.backend, hash)
	if err != nil {
		return nil, false, err
	}
	return c.Parents, true, nil
}

// Cache is the memoization structure findCommonAncestor's memoize option
// retains across calls: a (hash -> parents) map plus a negative cache of
// hashes known not to exist, both growing monotonically.
type Cache struct {
	parents  map[string][]string
	notFound map[string]bool
}

// NewCache creates an empty memoization cache.
func NewCache() *Cache {
	return &Cache{parents: map[string][]string{}, notFound: map[string]bool{}}
}

func (c *Cache) parentsOf(ctx context.Context, r ParentResolver, hash string) ([]string, bool, error) {
	if c == nil {
		return r.Parents(ctx, hash)
	}
	if c.notFound[hash] {
		return nil, false, nil
	}
	if p, ok := c.parents[hash]; ok {
		return p, true, nil
	}
	p, found, err := r.Parents(ctx, hash)
	if err != nil {
		return nil, false, err
	}
	if !found {
		c.notFound[hash] = true
		return nil, false, nil
	}
	c.parents[hash] = p
	return p, true, nil
}

// AncestorResult is findCommonAncestor's return shape.
type AncestorResult struct {
	Ancestor         string
	Found            bool
	DepthFromCommit1 int
	DepthFromCommit2 int
	CommitsTraversed int
}

// FindCommonAncestorOptions configures findCommonAncestor.
type FindCommonAncestorOptions struct {
	MaxDepth int // 0 means unbounded
	Cache    *Cache
}

// FindCommonAncestor runs bidirectional BFS from a and b over the parent
// relation, expanding the smaller frontier one hop at a time, returning the
// first hash discovered in both frontiers' visited sets.
func FindCommonAncestor(ctx context.Context, r ParentResolver, a, b string, opts FindCommonAncestorOptions) (AncestorResult, error) {
	if a == b {
		return AncestorResult{Ancestor: a, Found: true}, nil
	}

	cache := opts.Cache
	visited1 := map[string]int{a: 0}
	visited2 := map[string]int{b: 0}
	frontier1 := []string{a}
	frontier2 := []string{b}
	touched := map[string]bool{a: true, b: true}

	depth1, depth2 := 0, 0
	for len(frontier1) > 0 && len(frontier2) > 0 {
		// Expand whichever frontier is smaller; on a tie, expand whichever
		// is currently shallower so neither side starves the other when
		// both frontiers happen to stay the same size for several hops.
		expandFirst := len(frontier1) < len(frontier2) || (len(frontier1) == len(frontier2) && depth1 <= depth2)

		if expandFirst {
			if opts.MaxDepth > 0 && depth1 >= opts.MaxDepth {
				frontier1 = nil
				continue
			}
			next, found, err := expandFrontier(ctx, r, cache, frontier1, visited1, visited2, depth1+1, touched)
			if err != nil {
				return AncestorResult{}, err
			}
			depth1++
			if found != "" {
				return AncestorResult{Ancestor: found, Found: true, DepthFromCommit1: visited1[found], DepthFromCommit2: visited2[found], CommitsTraversed: len(touched)}, nil
			}
			frontier1 = next
		} else {
			if opts.MaxDepth > 0 && depth2 >= opts.MaxDepth {
				frontier2 = nil
				continue
			}
			next, found, err := expandFrontier(ctx, r, cache, frontier2, visited2, visited1, depth2+1, touched)
			if err != nil {
				return AncestorResult{}, err
			}
			depth2++
			if found != "" {
				return AncestorResult{Ancestor: found, Found: true, DepthFromCommit1: visited1[found], DepthFromCommit2: visited2[found], CommitsTraversed: len(touched)}, nil
			}
			frontier2 = next
		}
	}

	return AncestorResult{Found: false, CommitsTraversed: len(touched)}, nil
}

// expandFrontier advances frontier by one hop, recording newly discovered
// hashes into visited at depth. If a newly discovered hash is already
// present in otherVisited, the two frontiers have met: that hash is
// returned as the common ancestor.
func expandFrontier(ctx context.Context, r ParentResolver, cache *Cache, frontier []string, visited, otherVisited map[string]int, depth int, touched map[string]bool) ([]string, string, error) {
	var next []string
	for _, hash := range frontier {
		parents, found, err := cache.parentsOf(ctx, r, hash)
		if err != nil {
			return nil, "", err
		}
		if !found {
			continue
		}
		for _, p := range parents {
			touched[p] = true
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = depth
			next = append(next, p)
			if _, metOther := otherVisited[p]; metOther {
				return nil, p, nil
			}
		}
	}
	return next, "", nil
}

// FindAllCommonAncestors returns every minimal common ancestor of a and b:
// a common ancestor is minimal if none of its descendants (within the
// reachable set) is also a common ancestor.
func FindAllCommonAncestors(ctx context.Context, r ParentResolver, a, b string) ([]string, error) {
	cache := NewCache()
	ancestorsOf1, err := reachableSet(ctx, r, cache, a)
	if err != nil {
		return nil, err
	}
	ancestorsOf2, err := reachableSet(ctx, r, cache, b)
	if err != nil {
		return nil, err
	}

	var common []string
	for h := range ancestorsOf1 {
		if _, ok := ancestorsOf2[h]; ok {
			common = append(common, h)
		}
	}

	hasCommonDescendant := func(candidate string) (bool, error) {
		for _, other := range common {
			if other == candidate {
				continue
			}
			reachable, err := isAncestorOf(ctx, r, cache, candidate, other)
			if err != nil {
				return false, err
			}
			if reachable {
				return true, nil
			}
		}
		return false, nil
	}

	var minimal []string
	for _, h := range common {
		dominated, err := hasCommonDescendant(h)
		if err != nil {
			return nil, err
		}
		if !dominated {
			minimal = append(minimal, h)
		}
	}
	return minimal, nil
}

func reachableSet(ctx context.Context, r ParentResolver, cache *Cache, start string) (map[string]bool, error) {
	visited := map[string]bool{start: true}
	frontier := []string{start}
	for len(frontier) > 0 {
		var next []string
		for _, hash := range frontier {
			parents, found, err := cache.parentsOf(ctx, r, hash)
			if err != nil {
				return nil, err
			}
			if !found {
				continue
			}
			for _, p := range parents {
				if !visited[p] {
					visited[p] = true
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	return visited, nil
}

// isAncestorOf reports whether x is reachable from y via parent edges
// (reflexive: isAncestorOf(x, x) == true).
func isAncestorOf(ctx context.Context, r ParentResolver, cache *Cache, x, y string) (bool, error) {
	if x == y {
		return true, nil
	}
	reachable, err := reachableSet(ctx, r, cache, y)
	if err != nil {
		return false, err
	}
	return reachable[x], nil
}

// IsAncestor reports whether x is reachable from y via parent edges.
func IsAncestor(ctx context.Context, r ParentResolver, x, y string) (bool, error) {
	return isAncestorOf(ctx, r, NewCache(), x, y)
}
