package graph

// computePageRank runs the classic power-iteration PageRank over numNodes
// vertices and the given directed edges (already filtered to the "calls"
// relation by the caller), per spec.md §4.5: damping 0.85, tolerance 1e-6,
// max 100 iterations, uniform seed. Dangling nodes (zero out-degree)
// redistribute their mass uniformly across all nodes, the standard fix for
// keeping the iteration a proper stochastic process.
func computePageRank(numNodes int, edges []EdgeRecord, damping, tolerance float64, maxIterations int) []float64 {
	if numNodes == 0 {
		return nil
	}

	outDegree := make([]int, numNodes)
	incoming := make([][]int, numNodes)
	for _, e := range edges {
		outDegree[e.Source]++
		incoming[e.Target] = append(incoming[e.Target], e.Source)
	}

	rank := make([]float64, numNodes)
	uniform := 1.0 / float64(numNodes)
	for i := range rank {
		rank[i] = uniform
	}

	next := make([]float64, numNodes)
	for iter := 0; iter < maxIterations; iter++ {
		var danglingMass float64
		for i, deg := range outDegree {
			if deg == 0 {
				danglingMass += rank[i]
			}
		}
		base := (1-damping)/float64(numNodes) + damping*danglingMass/float64(numNodes)

		var delta float64
		for i := 0; i < numNodes; i++ {
			var sum float64
			for _, src := range incoming[i] {
				sum += rank[src] / float64(outDegree[src])
			}
			next[i] = base + damping*sum
			diff := next[i] - rank[i]
			if diff < 0 {
				diff = -diff
			}
			delta += diff
		}
		copy(rank, next)
		if delta < tolerance {
			break
		}
	}
	return rank
}
