package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/furlat/Abstractions-sub003/pkg/logger"
	"github.com/furlat/Abstractions-sub003/pkg/recordgraph"
)

// Repository persists entity graphs to PostgreSQL, one row per root
// version_id, grounded in the teacher's domain/backups.Repository
// (upsert Create, Scan-based GetByID, plain Model(nil)-based List).
type Repository struct {
	db  *bun.DB
	log *slog.Logger
}

// NewRepository builds a Repository over an already-connected bun.DB.
func NewRepository(db *bun.DB, log *slog.Logger) *Repository {
	return &Repository{db: db, log: log.With(logger.Scope("persistence"))}
}

// Save upserts g by its root version_id (SPEC_FULL.md §4.15: "Save
// serializes the whole RecordGraph to JSON and upserts by
// root_version_id").
func (r *Repository) Save(ctx context.Context, g *recordgraph.Graph) error {
	payload, err := json.Marshal(FromGraph(g))
	if err != nil {
		return fmt.Errorf("marshal graph snapshot: %w", err)
	}

	row := &graphRow{
		RootVersionID: g.RootVersionID,
		LineageID:     g.Nodes[g.RootVersionID].Record.LineageID,
		Payload:       payload,
	}

	_, err = r.db.NewInsert().
		Model(row).
		On("CONFLICT (root_version_id) DO UPDATE").
		Set("lineage_id = EXCLUDED.lineage_id").
		Set("payload = EXCLUDED.payload").
		Exec(ctx)
	if err != nil {
		r.log.Error("failed to save graph", slog.String("root_version_id", g.RootVersionID.String()), logger.Error(err))
		return fmt.Errorf("save graph: %w", err)
	}
	return nil
}

// Load retrieves and deserializes the graph stored under rootVersionID.
// Returns nil, nil when no such graph exists.
func (r *Repository) Load(ctx context.Context, rootVersionID uuid.UUID) (*recordgraph.Graph, error) {
	row := new(graphRow)
	err := r.db.NewSelect().
		Model(row).
		Where("root_version_id = ?", rootVersionID).
		Scan(ctx)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.log.Error("failed to load graph", slog.String("root_version_id", rootVersionID.String()), logger.Error(err))
		return nil, fmt.Errorf("load graph: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(row.Payload, &snap); err != nil {
		return nil, fmt.Errorf("unmarshal graph snapshot: %w", err)
	}
	return ToGraph(&snap)
}

// ListRoots returns every persisted root version_id.
func (r *Repository) ListRoots(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.NewSelect().
		Model((*graphRow)(nil)).
		Column("root_version_id").
		Scan(ctx, &ids)
	if err != nil {
		r.log.Error("failed to list graph roots", logger.Error(err))
		return nil, fmt.Errorf("list graph roots: %w", err)
	}
	return ids, nil
}

// Delete removes the persisted graph for rootVersionID, if any.
func (r *Repository) Delete(ctx context.Context, rootVersionID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*graphRow)(nil)).
		Where("root_version_id = ?", rootVersionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete graph: %w", err)
	}
	return nil
}
