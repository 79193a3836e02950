// Package graph implements C5: turning a repository's chunks into a node
// and edge graph, resolving call/import targets, and deriving per-node
// coupling and PageRank metrics.
//
// Construction works over a flat, integer-indexed arena rather than
// allocating a UUID per node up front (spec.md §9's arena+index
// representation): edges reference nodes by slice index during the build,
// and Arena.Commit is the single place integer indices are projected to
// database UUIDs, at write time.
package graph

import (
	"context"

	"github.com/google/uuid"

	"mnemolite/internal/storage"
	"mnemolite/pkg/types"
)

// NodeRecord is one graph vertex under construction, keyed by its index
// in Arena.Nodes rather than a UUID.
type NodeRecord struct {
	Type       types.NodeType
	Label      string
	NamePath   string // empty for synthesised External nodes
	FilePath   string // empty for synthesised External/Module-less nodes
	ChunkID    *uuid.UUID
	Properties map[string]interface{}
}

// EdgeRecord is one directed edge under construction, referencing its
// endpoints by Arena.Nodes index.
type EdgeRecord struct {
	Source, Target int
	Relation       types.RelationType
}

// Arena holds one repository's graph under construction.
type Arena struct {
	Repository string
	Nodes      []NodeRecord
	Edges      []EdgeRecord

	seenEdges map[[2]int]map[types.RelationType]bool
}

// NewArena creates an empty arena for the given repository.
func NewArena(repository string) *Arena {
	return &Arena{
		Repository: repository,
		seenEdges:  make(map[[2]int]map[types.RelationType]bool),
	}
}

// AddNode appends a node and returns its index.
func (a *Arena) AddNode(n NodeRecord) int {
	a.Nodes = append(a.Nodes, n)
	return len(a.Nodes) - 1
}

// AddEdge appends an edge unless (source, target, relation) was already
// added, per spec.md §4.5's no-duplicate-edge invariant.
func (a *Arena) AddEdge(source, target int, relation types.RelationType) {
	if source == target {
		return
	}
	key := [2]int{source, target}
	if a.seenEdges[key] == nil {
		a.seenEdges[key] = make(map[types.RelationType]bool)
	}
	if a.seenEdges[key][relation] {
		return
	}
	a.seenEdges[key][relation] = true
	a.Edges = append(a.Edges, EdgeRecord{Source: source, Target: target, Relation: relation})
}

// edgeBatchSize bounds the number of edges written per transaction for
// large repositories, per spec.md §4.5.
const edgeBatchSize = 1000

// Commit projects the arena's integer-indexed nodes and edges into the
// gateway: one transaction for all nodes, then one transaction per batch
// of up to edgeBatchSize edges, then one transaction for the per-node
// detailed metadata and computed metrics. metricsByNode and detailsByNode
// are indexed in parallel with a.Nodes; a nil entry is skipped (e.g.
// synthesised External nodes never get DetailedMetadata).
func (a *Arena) Commit(ctx context.Context, gw *storage.Gateway, metricsByNode []*types.ComputedMetrics, detailsByNode []*types.DetailedMetadata) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, len(a.Nodes))

	err := gw.InTransaction(ctx, func(tx *storage.Tx) error {
		for i, n := range a.Nodes {
			node := &types.Node{
				NodeType:   n.Type,
				Label:      n.Label,
				Properties: n.Properties,
			}
			if err := tx.UpsertNode(ctx, node); err != nil {
				return err
			}
			ids[i] = node.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for start := 0; start < len(a.Edges); start += edgeBatchSize {
		end := start + edgeBatchSize
		if end > len(a.Edges) {
			end = len(a.Edges)
		}
		batch := a.Edges[start:end]
		err := gw.InTransaction(ctx, func(tx *storage.Tx) error {
			for _, e := range batch {
				edge := &types.Edge{
					SourceNodeID: ids[e.Source],
					TargetNodeID: ids[e.Target],
					RelationType: e.Relation,
				}
				if err := tx.UpsertEdge(ctx, edge); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return ids, err
		}
	}

	err = gw.InTransaction(ctx, func(tx *storage.Tx) error {
		for i := range a.Nodes {
			if i < len(detailsByNode) && detailsByNode[i] != nil {
				detailsByNode[i].NodeID = ids[i]
				if err := tx.InsertDetailedMetadata(ctx, detailsByNode[i]); err != nil {
					return err
				}
			}
			if i < len(metricsByNode) && metricsByNode[i] != nil {
				metricsByNode[i].NodeID = ids[i]
				if err := tx.UpsertComputedMetrics(ctx, metricsByNode[i]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return ids, err
	}

	return ids, nil
}
