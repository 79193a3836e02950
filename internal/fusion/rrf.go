// Package fusion implements C10: Reciprocal Rank Fusion over the lexical
// and vector result lists, plus optional depth-1 graph expansion. Grounded
// on spec.md §4.10's formula; no ranked-fusion library was found anywhere
// in the retrieval pack (the closest candidates, siherrmann-grapher and
// bbiangul-go-reason, are generic graph libraries with no ranking
// primitive), so this is hand-written numeric code like C5's PageRank.
package fusion

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"mnemolite/internal/storage"
	"mnemolite/pkg/types"
)

// Weights holds the per-list RRF weights and constant, defaulting to
// spec.md §4.10's 0.4/0.6/60.
type Weights struct {
	Lexical float64
	Vector  float64
	K       int
}

// DefaultWeights matches the configured hybrid defaults.
func DefaultWeights() Weights {
	return Weights{Lexical: 0.4, Vector: 0.6, K: 60}
}

type candidate struct {
	chunkID        uuid.UUID
	score          float64
	lexical        float64
	vector         float64
	hasLexical     bool
	hasVector      bool
	lexicalScore   float64
	vectorDistance float64
}

// Fuse combines a lexical result list and a vector result list into a
// ranked, deduplicated top-K per spec.md §4.10. Either list may be nil —
// the other alone determines ranking, and HybridMetadata records which
// legs were active.
func Fuse(lexical []types.LexicalResult, vector []types.VectorResult, weights Weights, topK int) ([]types.FusedResult, types.HybridMetadata) {
	if weights.K <= 0 {
		weights.K = 60
	}

	byChunk := make(map[uuid.UUID]*candidate)

	for _, l := range lexical {
		c := byChunk[l.ChunkID]
		if c == nil {
			c = &candidate{chunkID: l.ChunkID}
			byChunk[l.ChunkID] = c
		}
		contribution := weights.Lexical / float64(weights.K+l.Rank)
		c.score += contribution
		c.lexical = contribution
		c.hasLexical = true
		c.lexicalScore = l.Score
	}

	for _, v := range vector {
		c := byChunk[v.ChunkID]
		if c == nil {
			c = &candidate{chunkID: v.ChunkID}
			byChunk[v.ChunkID] = c
		}
		contribution := weights.Vector / float64(weights.K+v.Rank)
		c.score += contribution
		c.vector = contribution
		c.hasVector = true
		c.vectorDistance = v.Distance
	}

	candidates := make([]*candidate, 0, len(byChunk))
	for _, c := range byChunk {
		candidates = append(candidates, c)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.lexicalScore != b.lexicalScore {
			return a.lexicalScore > b.lexicalScore
		}
		if a.vectorDistance != b.vectorDistance {
			return a.vectorDistance < b.vectorDistance
		}
		return a.chunkID.String() < b.chunkID.String()
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	out := make([]types.FusedResult, len(candidates))
	for i, c := range candidates {
		out[i] = types.FusedResult{
			ChunkID:        c.chunkID,
			Score:          c.score,
			Contribution:   types.Contribution{Lexical: c.lexical, Vector: c.vector},
			LexicalScore:   c.lexicalScore,
			VectorDistance: c.vectorDistance,
		}
	}

	metadata := types.HybridMetadata{
		LexicalEnabled: len(lexical) > 0,
		VectorEnabled:  len(vector) > 0,
	}
	return out, metadata
}

const maxRelatedPerChunk = 5

// ExpandGraph attaches up to maxRelatedPerChunk related chunk IDs to each
// result by following calls/imports edges one hop from the result's graph
// node, for caller convenience. It never changes ranking or scores.
func ExpandGraph(ctx context.Context, gw *storage.Gateway, results []types.FusedResult) error {
	relations := []types.RelationType{types.RelationCalls, types.RelationImports}

	for i := range results {
		node, err := gw.NodeByChunkID(ctx, results[i].ChunkID)
		if err != nil {
			return err
		}
		if node == nil {
			continue
		}

		edges, err := gw.EdgesFrom(ctx, node.ID, relations)
		if err != nil {
			return err
		}

		var related []uuid.UUID
		for _, e := range edges {
			if len(related) >= maxRelatedPerChunk {
				break
			}
			target, err := gw.GetNode(ctx, e.TargetNodeID)
			if err != nil {
				return err
			}
			if target == nil {
				continue
			}
			if chunkID, ok := target.ChunkID(); ok {
				related = append(related, chunkID)
			}
		}
		results[i].RelatedChunks = related
	}
	return nil
}
