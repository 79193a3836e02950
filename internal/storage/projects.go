package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/pkg/types"
)

// CreateProject inserts a project, enforcing the case-insensitive unique
// name constraint backed by projects_name_ci_idx.
func (g *Gateway) CreateProject(ctx context.Context, name string) (*types.Project, error) {
	p := &types.Project{ID: types.NewUUID(), Name: name, CreatedAt: time.Now().UTC()}

	var exists bool
	err := g.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM projects WHERE lower(name) = lower($1))`, name).Scan(&exists)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "check project uniqueness", err)
	}
	if exists {
		return nil, mnemoerrors.New(mnemoerrors.KindConflict, "project name already exists")
	}

	_, err = g.db.ExecContext(ctx, `INSERT INTO projects (id, name, created_at) VALUES ($1,$2,$3)`,
		p.ID, p.Name, p.CreatedAt)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "insert project", err)
	}
	return p, nil
}

// GetProjectByID returns the project, or nil if it does not exist.
func (g *Gateway) GetProjectByID(ctx context.Context, id uuid.UUID) (*types.Project, error) {
	var p types.Project
	err := g.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "get project", err)
	}
	return &p, nil
}

// GetProjectByName looks up a project by its case-insensitive name.
func (g *Gateway) GetProjectByName(ctx context.Context, name string) (*types.Project, error) {
	var p types.Project
	err := g.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM projects WHERE lower(name) = lower($1)`, name).
		Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "get project by name", err)
	}
	return &p, nil
}

// ListProjects returns all projects, ordered by name.
func (g *Gateway) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT id, name, created_at FROM projects ORDER BY name`)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "list projects", err)
	}
	defer rows.Close()

	var out []types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "scan project", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project. Memories referencing it keep their
// project_id as a dangling reference; spec.md §4.11 treats project scoping
// as advisory metadata, not a foreign-key-enforced relationship, so no
// cascade is performed here.
func (g *Gateway) DeleteProject(ctx context.Context, id uuid.UUID) error {
	result, err := g.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "delete project", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "delete project rows affected", err)
	}
	if rows == 0 {
		return mnemoerrors.New(mnemoerrors.KindNotFound, "project not found")
	}
	return nil
}
