package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/lib/pq"

	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/pkg/types"
)

// GetNode returns the node, or nil if it does not exist.
func (g *Gateway) GetNode(ctx context.Context, id uuid.UUID) (*types.Node, error) {
	var n types.Node
	var propsRaw []byte
	err := g.db.QueryRowContext(ctx, `SELECT id, node_type, label, properties, created_at FROM nodes WHERE id = $1`, id).
		Scan(&n.ID, &n.NodeType, &n.Label, &propsRaw, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "get node", err)
	}
	if err := json.Unmarshal(propsRaw, &n.Properties); err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindInternal, "unmarshal node properties", err)
	}
	return &n, nil
}

// Direction selects which side of an edge GraphTraverse/GraphFindPath walk.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
	DirectionBoth
)

// EdgesFrom returns edges leaving nodeID, optionally filtered to relations.
// Passing an empty relations slice returns edges of every relation type.
func (g *Gateway) EdgesFrom(ctx context.Context, nodeID uuid.UUID, relations []types.RelationType) ([]types.Edge, error) {
	return g.edgesByDirection(ctx, nodeID, DirectionOutgoing, relations)
}

// EdgesTo returns edges arriving at nodeID, optionally filtered to relations.
func (g *Gateway) EdgesTo(ctx context.Context, nodeID uuid.UUID, relations []types.RelationType) ([]types.Edge, error) {
	return g.edgesByDirection(ctx, nodeID, DirectionIncoming, relations)
}

func (g *Gateway) edgesByDirection(ctx context.Context, nodeID uuid.UUID, dir Direction, relations []types.RelationType) ([]types.Edge, error) {
	col := "source_node_id"
	if dir == DirectionIncoming {
		col = "target_node_id"
	}

	args := []interface{}{nodeID}
	query := "SELECT id, source_node_id, target_node_id, relation_type, properties, created_at FROM edges WHERE " + col + " = $1"
	if len(relations) > 0 {
		relStrings := make([]string, len(relations))
		for i, r := range relations {
			relStrings[i] = string(r)
		}
		query += " AND relation_type = ANY($2)"
		args = append(args, pq.Array(relStrings))
	}

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "query edges", err)
	}
	defer rows.Close()

	var out []types.Edge
	for rows.Next() {
		var e types.Edge
		var relType string
		var propsRaw []byte
		if err := rows.Scan(&e.ID, &e.SourceNodeID, &e.TargetNodeID, &relType, &propsRaw, &e.CreatedAt); err != nil {
			return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "scan edge", err)
		}
		e.RelationType = types.RelationType(relType)
		if len(propsRaw) > 0 {
			_ = json.Unmarshal(propsRaw, &e.Properties)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// NodesByRepository lists every node belonging to a repository.
func (g *Gateway) NodesByRepository(ctx context.Context, repository string) ([]types.Node, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, node_type, label, properties, created_at
		FROM nodes WHERE properties->>'repository' = $1`, repository)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "list nodes by repository", err)
	}
	defer rows.Close()

	var out []types.Node
	for rows.Next() {
		var n types.Node
		var propsRaw []byte
		if err := rows.Scan(&n.ID, &n.NodeType, &n.Label, &propsRaw, &n.CreatedAt); err != nil {
			return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "scan node", err)
		}
		_ = json.Unmarshal(propsRaw, &n.Properties)
		out = append(out, n)
	}
	return out, rows.Err()
}

// NodeByChunkID looks up the graph node derived from a given chunk, the
// bridge graph expansion of hybrid search uses to go from a search result
// chunk to its node.
func (g *Gateway) NodeByChunkID(ctx context.Context, chunkID uuid.UUID) (*types.Node, error) {
	var n types.Node
	var propsRaw []byte
	err := g.db.QueryRowContext(ctx, `
		SELECT id, node_type, label, properties, created_at
		FROM nodes WHERE properties->>'chunk_id' = $1`, chunkID.String()).
		Scan(&n.ID, &n.NodeType, &n.Label, &propsRaw, &n.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "get node by chunk id", err)
	}
	_ = json.Unmarshal(propsRaw, &n.Properties)
	return &n, nil
}
