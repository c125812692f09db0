package persistence

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// graphRow is the bun model for entitycore.graphs (SPEC_FULL.md §4.15).
type graphRow struct {
	bun.BaseModel `bun:"table:entitycore.graphs,alias:g"`

	RootVersionID uuid.UUID `bun:"root_version_id,pk,type:uuid"`
	LineageID     uuid.UUID `bun:"lineage_id,notnull,type:uuid"`
	Payload       []byte    `bun:"payload,notnull,type:jsonb"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
}
